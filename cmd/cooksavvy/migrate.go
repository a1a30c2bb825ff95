// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Cooksavvy Contributors

package main

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/cooksavvy/cooksavvy/internal/config"
	"github.com/cooksavvy/cooksavvy/internal/store"
	"github.com/cooksavvy/cooksavvy/internal/xdg"
)

// NewMigrateCmd creates the migrate subcommand.
func NewMigrateCmd() *cobra.Command {
	return newMigrateCmd(nil)
}

func newMigrateCmd(deps *MigrateDeps) *cobra.Command {
	if deps == nil {
		deps = &MigrateDeps{}
	}
	deps.applyDefaults()

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
		Long: `Manage the PostgreSQL schema. Without a subcommand, all pending
migrations are applied.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runMigrateUp(cmd, deps)
		},
	}
	cmd.PersistentFlags().String("database-url", "", "PostgreSQL connection URL")

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runMigrateUp(cmd, deps)
		},
	})

	down := &cobra.Command{
		Use:   "down",
		Short: "Roll back migrations",
		Long: `Roll back the most recent migration, or every migration with --all.
Rolling back every migration drops all account data.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runMigrateDown(cmd, deps)
		},
	}
	down.Flags().Bool("all", false, "roll back every migration")
	cmd.AddCommand(down)

	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Show the applied schema version",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runMigrateVersion(cmd, deps)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "force VERSION",
		Short: "Mark VERSION as applied without running it",
		Long: `Record VERSION as the applied schema version and clear the dirty flag.
Use after repairing a migration that failed partway.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMigrateForce(cmd, deps, args[0])
		},
	})

	return cmd
}

// databaseURL reads the database URL from the layered configuration. The
// rest of the configuration is not needed to migrate and is not validated.
func databaseURL(cmd *cobra.Command) (string, error) {
	cfg, err := config.Read(config.LoadOptions{File: xdg.ResolveConfigFile(configFile), Flags: cmd.Flags()})
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(cfg.Database.URL) == "" {
		return "", oops.Code("CONFIG_INVALID").Errorf("database url is required (DATABASE_URL or --database-url)")
	}
	return cfg.Database.URL, nil
}

func openMigrator(cmd *cobra.Command, deps *MigrateDeps) (Migrator, error) {
	url, err := databaseURL(cmd)
	if err != nil {
		return nil, err
	}
	m, err := deps.MigratorFactory(url)
	if err != nil {
		return nil, oops.Code("DB_CONNECT_FAILED").With("operation", "create migrator").Wrap(err)
	}
	return m, nil
}

func closeMigrator(cmd *cobra.Command, m Migrator) {
	if err := m.Close(); err != nil {
		cmd.PrintErrf("Warning: failed to close migrator: %v\n", err)
	}
}

func runMigrateUp(cmd *cobra.Command, deps *MigrateDeps) error {
	m, err := openMigrator(cmd, deps)
	if err != nil {
		return err
	}
	defer closeMigrator(cmd, m)

	cmd.Println("Running migrations...")
	if err := m.Up(); err != nil {
		return oops.Code("MIGRATION_FAILED").With("operation", "run migrations").Wrap(err)
	}
	return printVersion(cmd, m, "Migrations completed successfully")
}

func runMigrateDown(cmd *cobra.Command, deps *MigrateDeps) error {
	all, _ := cmd.Flags().GetBool("all")

	m, err := openMigrator(cmd, deps)
	if err != nil {
		return err
	}
	defer closeMigrator(cmd, m)

	if all {
		cmd.Println("Rolling back all migrations...")
		err = m.Down()
	} else {
		cmd.Println("Rolling back one migration...")
		err = m.Steps(-1)
	}
	if err != nil {
		return oops.Code("MIGRATION_FAILED").With("operation", "roll back migrations").Wrap(err)
	}
	return printVersion(cmd, m, "Rollback completed successfully")
}

func runMigrateVersion(cmd *cobra.Command, deps *MigrateDeps) error {
	m, err := openMigrator(cmd, deps)
	if err != nil {
		return err
	}
	defer closeMigrator(cmd, m)
	return printVersion(cmd, m, "")
}

func runMigrateForce(cmd *cobra.Command, deps *MigrateDeps, arg string) error {
	version, err := parseForceVersion(arg)
	if err != nil {
		return err
	}

	m, err := openMigrator(cmd, deps)
	if err != nil {
		return err
	}
	defer closeMigrator(cmd, m)

	if err := m.Force(version); err != nil {
		return oops.Code("MIGRATION_FAILED").With("operation", "force version").With("version", version).Wrap(err)
	}
	return printVersion(cmd, m, "Version forced")
}

// parseForceVersion parses a non-negative migration version.
func parseForceVersion(s string) (int, error) {
	var version int
	if _, err := fmt.Sscanf(strings.TrimSpace(s), "%d", &version); err != nil {
		return 0, oops.Code("INVALID_VERSION").With("input", s).Errorf("version must be an integer")
	}
	if version < 0 {
		return 0, oops.Code("INVALID_VERSION").With("input", s).Errorf("version must be non-negative")
	}
	return version, nil
}

func printVersion(cmd *cobra.Command, m Migrator, headline string) error {
	version, dirty, err := m.Version()
	if err != nil {
		return oops.Code("MIGRATION_FAILED").With("operation", "read version").Wrap(err)
	}
	if headline != "" {
		cmd.Println(headline)
	}

	name, err := store.MigrationName(version)
	if err != nil || name == "" {
		name = "none"
	}
	line := fmt.Sprintf("Schema version: %d (%s)", version, name)
	if dirty {
		line += " [dirty]"
	}
	cmd.Println(line)

	if latest, err := store.LatestVersion(); err == nil && latest > version && !dirty {
		cmd.Printf("Pending migrations: %d (latest %d)\n", latest-version, latest)
	}
	return nil
}

// applyMigrations runs pending migrations before the server starts.
func applyMigrations(factory func(string) (Migrator, error), databaseURL string, logger *slog.Logger) error {
	m, err := factory(databaseURL)
	if err != nil {
		return oops.Code("DB_CONNECT_FAILED").With("operation", "create migrator").Wrap(err)
	}
	defer func() {
		if closeErr := m.Close(); closeErr != nil {
			logger.Warn("failed to close migrator", "error", closeErr)
		}
	}()

	if err := m.Up(); err != nil {
		return oops.Code("MIGRATION_FAILED").With("operation", "run migrations").Wrap(err)
	}
	version, dirty, err := m.Version()
	if err != nil {
		return oops.Code("MIGRATION_FAILED").With("operation", "read version").Wrap(err)
	}
	logger.Info("database migrations applied", "version", version, "dirty", dirty)
	return nil
}
