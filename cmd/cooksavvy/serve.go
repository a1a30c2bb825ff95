// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Cooksavvy Contributors

package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/cooksavvy/cooksavvy/internal/auth"
	"github.com/cooksavvy/cooksavvy/internal/config"
	"github.com/cooksavvy/cooksavvy/internal/httpapi"
	"github.com/cooksavvy/cooksavvy/internal/logging"
	"github.com/cooksavvy/cooksavvy/internal/mail"
	"github.com/cooksavvy/cooksavvy/internal/observability"
	"github.com/cooksavvy/cooksavvy/internal/sessioncookie"
	"github.com/cooksavvy/cooksavvy/internal/xdg"
)

const serviceName = "cooksavvy"

// NewServeCmd creates the serve subcommand.
func NewServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the API server",
		Long: `Start the HTTP API together with the metrics and health server.
Settings come from built-in defaults, the --config file, the environment
and explicitly set flags, each overriding the previous.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServeWithDeps(cmd.Context(), cmd, nil)
		},
	}

	cmd.Flags().String("addr", "", "API listen address")
	cmd.Flags().String("metrics-addr", "", "metrics/health listen address (empty = disabled)")
	cmd.Flags().String("database-url", "", "PostgreSQL connection URL")
	cmd.Flags().Bool("migrate", false, "apply pending migrations before serving")

	return cmd
}

// runServeWithDeps runs the API until ctx is cancelled or a signal arrives.
// If deps is nil, default implementations are used.
func runServeWithDeps(ctx context.Context, cmd *cobra.Command, deps *ServeDeps) error {
	if deps == nil {
		deps = &ServeDeps{}
	}
	deps.applyDefaults()

	cfg, err := config.Load(config.LoadOptions{File: xdg.ResolveConfigFile(configFile), Flags: cmd.Flags()})
	if err != nil {
		return err
	}

	logger, err := logging.Setup(logging.Options{
		Service: serviceName,
		Version: version,
		Format:  cfg.Log.Format,
		Level:   cfg.Log.Level,
		Output:  deps.LogOutput,
	})
	if err != nil {
		return oops.With("operation", "set up logging").Wrap(err)
	}
	slog.SetDefault(logger)

	logger.Info("starting api server",
		"addr", cfg.Server.ListenAddr(),
		"env", cfg.Server.Env,
		"database", cfg.Database,
		"tokens", cfg.Tokens,
		"mail", cfg.Mail,
	)

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if runMigrations, _ := cmd.Flags().GetBool("migrate"); runMigrations {
		if err := applyMigrations(deps.MigratorFactory, cfg.Database.URL, logger); err != nil {
			return err
		}
	}

	pool, err := deps.PoolFactory(ctx, cfg.Database)
	if err != nil {
		return oops.Code("DB_CONNECT_FAILED").With("operation", "connect to database").Wrap(err)
	}
	defer pool.Close()
	logger.Info("connected to database")

	var (
		obsServer ObservabilityServer
		metrics   *observability.Metrics
	)
	if cfg.Server.MetricsAddr != "" {
		obsServer = deps.ObservabilityServerFactory(cfg.Server.MetricsAddr, pool.Ping, logger)
		metrics = obsServer.Metrics()
	}

	api, err := buildAPI(cfg, deps, pool, metrics, logger)
	if err != nil {
		return err
	}

	listener, err := deps.Listen(cfg.Server.ListenAddr())
	if err != nil {
		return oops.Code("LISTEN_FAILED").With("addr", cfg.Server.ListenAddr()).Wrap(err)
	}

	if obsServer != nil {
		obsErrCh, err := obsServer.Start()
		if err != nil {
			_ = listener.Close() //nolint:errcheck // start error takes precedence
			return oops.Code("OBSERVABILITY_START_FAILED").Wrap(err)
		}
		go monitorServerErrors(ctx, cancel, obsErrCh, "observability", logger)
	}

	httpServer := &http.Server{
		Handler:           api.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
		ErrorLog:          slog.NewLogLogger(logger.Handler(), slog.LevelWarn),
	}
	serveErr := make(chan error, 1)
	go func() {
		defer close(serveErr)
		if err := httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	cmd.Println("Cooksavvy API started")
	logger.Info("api server ready", "addr", listener.Addr().String())

	var runErr error
	select {
	case err := <-serveErr:
		if err != nil {
			runErr = oops.Code("SERVER_FAILED").Wrap(err)
		}
	case <-ctx.Done():
		logger.Info("shutdown requested")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("error stopping api server", "error", err)
	}
	if obsServer != nil {
		if err := obsServer.Stop(shutdownCtx); err != nil {
			logger.Warn("error stopping observability server", "error", err)
		}
	}

	logger.Info("shutdown complete")
	return runErr
}

// buildAPI wires the auth service and its collaborators into the HTTP API.
func buildAPI(cfg *config.Config, deps *ServeDeps, pool Pool, metrics *observability.Metrics, logger *slog.Logger) (*httpapi.API, error) {
	tokens, err := auth.NewTokenForge(auth.TokenForgeConfig{
		AccessSecret:  []byte(cfg.Tokens.AccessSecret),
		RefreshSecret: []byte(cfg.Tokens.RefreshSecret),
		AccessTTL:     cfg.Tokens.AccessTTL,
		RefreshTTL:    cfg.Tokens.RefreshTTL,
		Issuer:        cfg.Tokens.Issuer,
	})
	if err != nil {
		return nil, err
	}

	sender, err := deps.MailSenderFactory(cfg.Mail, logger)
	if err != nil {
		return nil, err
	}
	renderer, err := mail.NewRenderer(mail.Product{
		Name: cfg.Mail.ProductName,
		Link: cfg.App.URL,
		Logo: cfg.Mail.LogoURL,
	})
	if err != nil {
		return nil, err
	}
	notifier, err := mail.NewNotifier(sender, renderer,
		mail.Links{APIURL: cfg.App.APIURL, AppURL: cfg.App.URL},
		mail.WithMetrics(metrics),
		mail.WithLogger(logger),
	)
	if err != nil {
		return nil, err
	}

	svc, err := auth.NewService(deps.RepositoryFactory(pool), auth.NewArgon2idHasher(), tokens, notifier,
		auth.WithLogger(logger),
		auth.WithVerificationMode(auth.VerificationMode(cfg.Verification.Mode)),
		auth.WithVerificationTTL(cfg.Verification.TTL),
		auth.WithResetTTL(cfg.Reset.TTL),
	)
	if err != nil {
		return nil, err
	}

	return httpapi.New(svc, httpapi.Options{
		Cookies:        sessioncookie.NewPolicy(cfg.Server.Env, tokens.AccessTTL(), tokens.RefreshTTL()),
		AllowedOrigins: cfg.Server.AllowedOrigins,
		Metrics:        metrics,
		Logger:         logger,
	})
}

// monitorServerErrors cancels the process context when a background server
// fails. It exits when the channel closes or ctx is done.
func monitorServerErrors(ctx context.Context, cancel context.CancelFunc, errCh <-chan error, serverName string, logger *slog.Logger) {
	select {
	case err, ok := <-errCh:
		if !ok {
			return
		}
		if err != nil {
			logger.Error("server error, triggering shutdown",
				"server", serverName,
				"error", err,
			)
			cancel()
		}
	case <-ctx.Done():
	}
}
