// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Cooksavvy Contributors

package main

import (
	"context"
	"io"
	"log/slog"
	"net"
	"os"

	"github.com/cooksavvy/cooksavvy/internal/auth"
	"github.com/cooksavvy/cooksavvy/internal/auth/postgres"
	"github.com/cooksavvy/cooksavvy/internal/config"
	"github.com/cooksavvy/cooksavvy/internal/mail"
	"github.com/cooksavvy/cooksavvy/internal/observability"
	"github.com/cooksavvy/cooksavvy/internal/store"
)

// Pool wraps the methods used from *pgxpool.Pool.
type Pool interface {
	postgres.Querier
	Ping(ctx context.Context) error
	Close()
}

// Migrator wraps the methods used from store.Migrator.
type Migrator interface {
	Up() error
	Down() error
	Steps(n int) error
	Version() (version uint, dirty bool, err error)
	Force(version int) error
	Close() error
}

// ObservabilityServer wraps the methods used from observability.Server.
type ObservabilityServer interface {
	Start() (<-chan error, error)
	Stop(ctx context.Context) error
	Addr() string
	Metrics() *observability.Metrics
}

// ServeDeps holds the injectable dependencies of the serve command.
// Nil fields use the production implementations.
type ServeDeps struct {
	PoolFactory                func(ctx context.Context, cfg config.DatabaseConfig) (Pool, error)
	RepositoryFactory          func(pool Pool) auth.UserRepository
	MigratorFactory            func(databaseURL string) (Migrator, error)
	MailSenderFactory          func(cfg config.MailConfig, logger *slog.Logger) (mail.Sender, error)
	ObservabilityServerFactory func(addr string, readiness observability.ReadinessChecker, logger *slog.Logger) ObservabilityServer
	Listen                     func(addr string) (net.Listener, error)
	LogOutput                  io.Writer
}

func (d *ServeDeps) applyDefaults() {
	if d.PoolFactory == nil {
		d.PoolFactory = connectPool
	}
	if d.RepositoryFactory == nil {
		d.RepositoryFactory = func(pool Pool) auth.UserRepository {
			return postgres.NewUserRepository(pool)
		}
	}
	if d.MigratorFactory == nil {
		d.MigratorFactory = newMigrator
	}
	if d.MailSenderFactory == nil {
		d.MailSenderFactory = newMailSender
	}
	if d.ObservabilityServerFactory == nil {
		d.ObservabilityServerFactory = func(addr string, readiness observability.ReadinessChecker, logger *slog.Logger) ObservabilityServer {
			return observability.NewServer(addr, readiness, logger)
		}
	}
	if d.Listen == nil {
		d.Listen = func(addr string) (net.Listener, error) {
			return net.Listen("tcp", addr)
		}
	}
	if d.LogOutput == nil {
		d.LogOutput = os.Stderr
	}
}

// MigrateDeps holds the injectable dependencies of the migrate commands.
type MigrateDeps struct {
	MigratorFactory func(databaseURL string) (Migrator, error)
}

func (d *MigrateDeps) applyDefaults() {
	if d.MigratorFactory == nil {
		d.MigratorFactory = newMigrator
	}
}

func connectPool(ctx context.Context, cfg config.DatabaseConfig) (Pool, error) {
	pool, err := store.Connect(ctx, cfg.URL, store.PoolConfig{
		MaxConns:       cfg.MaxConns,
		MinConns:       cfg.MinConns,
		ConnectTimeout: cfg.ConnectTimeout,
	})
	if err != nil {
		return nil, err
	}
	return pool, nil
}

func newMigrator(databaseURL string) (Migrator, error) {
	m, err := store.NewMigrator(databaseURL)
	if err != nil {
		return nil, err
	}
	return m, nil
}

// newMailSender builds the outbound sender for the configured driver. SMTP
// delivery is retried; the log driver never sends.
func newMailSender(cfg config.MailConfig, logger *slog.Logger) (mail.Sender, error) {
	if cfg.Driver == "log" {
		return mail.NewLogSender(cfg.From, logger), nil
	}
	smtpSender, err := mail.NewSMTPSender(mail.SMTPConfig{
		Host:     cfg.Host,
		Port:     cfg.Port,
		Username: cfg.Username,
		Password: cfg.Password,
		From:     cfg.From,
		Timeout:  cfg.Timeout,
	})
	if err != nil {
		return nil, err
	}
	return mail.NewRetryingSender(smtpSender, cfg.MaxAttempts, cfg.RetryBase, logger), nil
}
