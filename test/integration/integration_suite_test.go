// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Cooksavvy Contributors

//go:build integration

// Package integration provides end-to-end tests of the account API against
// a real PostgreSQL.
package integration

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention
	"github.com/prometheus/client_golang/prometheus"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/cooksavvy/cooksavvy/internal/auth"
	"github.com/cooksavvy/cooksavvy/internal/auth/postgres"
	"github.com/cooksavvy/cooksavvy/internal/httpapi"
	"github.com/cooksavvy/cooksavvy/internal/mail"
	"github.com/cooksavvy/cooksavvy/internal/observability"
	"github.com/cooksavvy/cooksavvy/internal/sessioncookie"
	"github.com/cooksavvy/cooksavvy/internal/store"
)

func TestIntegration(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Integration Suite")
}

const (
	apiURL = "http://api.cooksavvy.test"
	appURL = "http://app.cooksavvy.test"
)

var (
	container *tcpostgres.PostgresContainer
	pool      *pgxpool.Pool
)

var _ = BeforeSuite(func() {
	ctx := context.Background()
	var err error
	container, err = tcpostgres.Run(ctx,
		"postgres:18-alpine",
		tcpostgres.WithDatabase("cooksavvy_test"),
		tcpostgres.WithUsername("cooksavvy"),
		tcpostgres.WithPassword("cooksavvy"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	Expect(err).NotTo(HaveOccurred())

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	Expect(err).NotTo(HaveOccurred())

	migrator, err := store.NewMigrator(connStr)
	Expect(err).NotTo(HaveOccurred())
	Expect(migrator.Up()).To(Succeed())
	Expect(migrator.Close()).To(Succeed())

	pool, err = store.Connect(ctx, connStr, store.PoolConfig{MaxConns: 4})
	Expect(err).NotTo(HaveOccurred())
})

var _ = AfterSuite(func() {
	if pool != nil {
		pool.Close()
	}
	if container != nil {
		Expect(container.Terminate(context.Background())).To(Succeed())
	}
})

// outbox is a mail.Sender that keeps every message.
type outbox struct {
	mu       sync.Mutex
	messages []mail.Message
}

func (o *outbox) Send(_ context.Context, msg mail.Message) (string, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.messages = append(o.messages, msg)
	return "<test@cooksavvy.test>", nil
}

// last returns the most recent message sent to addr.
func (o *outbox) last(addr string) (mail.Message, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	for i := len(o.messages) - 1; i >= 0; i-- {
		if o.messages[i].To == addr {
			return o.messages[i], true
		}
	}
	return mail.Message{}, false
}

// stack is the full account API over the suite database.
type stack struct {
	server *httptest.Server
	outbox *outbox
}

func newStack(mode auth.VerificationMode) *stack {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	metrics := observability.NewMetrics(prometheus.NewRegistry())

	forge, err := auth.NewTokenForge(auth.TokenForgeConfig{
		AccessSecret:  []byte("integration-access-secret-0123456789"),
		RefreshSecret: []byte("integration-refresh-secret-0123456789"),
		AccessTTL:     15 * time.Minute,
		RefreshTTL:    24 * time.Hour,
	})
	Expect(err).NotTo(HaveOccurred())

	box := &outbox{}
	renderer, err := mail.NewRenderer(mail.Product{Name: "Cooksavvy", Link: appURL})
	Expect(err).NotTo(HaveOccurred())
	notifier, err := mail.NewNotifier(box, renderer, mail.Links{APIURL: apiURL, AppURL: appURL},
		mail.WithMetrics(metrics), mail.WithLogger(logger))
	Expect(err).NotTo(HaveOccurred())

	svc, err := auth.NewService(postgres.NewUserRepository(pool), auth.NewArgon2idHasher(), forge, notifier,
		auth.WithLogger(logger),
		auth.WithVerificationMode(mode),
	)
	Expect(err).NotTo(HaveOccurred())

	api, err := httpapi.New(svc, httpapi.Options{
		Cookies: sessioncookie.NewPolicy("test", forge.AccessTTL(), forge.RefreshTTL()),
		Metrics: metrics,
		Logger:  logger,
	})
	Expect(err).NotTo(HaveOccurred())

	s := &stack{server: httptest.NewServer(api.Routes()), outbox: box}
	DeferCleanup(s.server.Close)
	return s
}

// client returns an HTTP client with its own cookie jar.
func (s *stack) client() *http.Client {
	jar, err := cookiejar.New(nil)
	Expect(err).NotTo(HaveOccurred())
	return &http.Client{Jar: jar, Timeout: 10 * time.Second}
}
