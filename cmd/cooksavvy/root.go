package main

import (
	"github.com/spf13/cobra"
)

// Global flags available to all subcommands.
var configFile string

// NewRootCmd creates the root command for the Cooksavvy CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cooksavvy",
		Short: "Cooksavvy - account and session API",
		Long: `Cooksavvy serves the account API of the Cooksavvy recipe platform:
registration, email verification, login with rotating refresh tokens,
password reset, and profile management backed by PostgreSQL.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&configFile, "config", "", "config file path (default $XDG_CONFIG_HOME/cooksavvy/config.yaml)")
	cmd.PersistentFlags().String("log-format", "json", "log format (json or text)")
	cmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")

	cmd.AddCommand(NewServeCmd())
	cmd.AddCommand(NewMigrateCmd())

	return cmd
}
