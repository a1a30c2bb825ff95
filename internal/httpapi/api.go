// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Cooksavvy Contributors

// Package httpapi exposes the auth service over JSON/HTTP under /api/v1.
//
// Every response uses one envelope. Successes are
// {"success":true,"message":...,"data":...}; failures are
// {"success":false,"kind":...,"message":...} with the status taken from the
// error kind (see StatusFor). Session tokens travel in the accessToken and
// refreshToken cookies; protected routes also accept an
// "Authorization: Bearer" access token.
package httpapi

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/cooksavvy/cooksavvy/internal/auth"
	"github.com/cooksavvy/cooksavvy/internal/observability"
	"github.com/cooksavvy/cooksavvy/internal/sessioncookie"
	"github.com/cooksavvy/cooksavvy/pkg/errutil"
)

// AuthService is the part of auth.Service the transport calls.
type AuthService interface {
	Register(ctx context.Context, in auth.RegisterInput) (*auth.Profile, error)
	VerifyEmail(ctx context.Context, tokenOrCode string) error
	ResendVerification(ctx context.Context, email string) (bool, error)
	Login(ctx context.Context, identifier, password string) (*auth.Session, error)
	RefreshSession(ctx context.Context, refreshToken string) (*auth.Session, error)
	Logout(ctx context.Context, userID ulid.ULID) error
	Authenticate(ctx context.Context, accessToken string) (*auth.AccessClaims, error)
	ForgotPassword(ctx context.Context, email string) error
	ResetPassword(ctx context.Context, token, newPassword string) error
	GetProfile(ctx context.Context, userID ulid.ULID) (*auth.Profile, error)
	UpdateProfile(ctx context.Context, userID ulid.ULID, update auth.ProfileUpdate) (*auth.Profile, error)
}

var _ AuthService = (*auth.Service)(nil)

// DefaultMaxBodyBytes bounds request bodies when Options.MaxBodyBytes is unset.
const DefaultMaxBodyBytes = 1 << 20

// Options configures the API.
type Options struct {
	Cookies        sessioncookie.Policy
	AllowedOrigins []string
	Metrics        *observability.Metrics
	Logger         *slog.Logger
	MaxBodyBytes   int64
}

// API holds the HTTP handlers.
type API struct {
	svc            AuthService
	cookies        sessioncookie.Policy
	allowedOrigins []string
	metrics        *observability.Metrics
	logger         *slog.Logger
	maxBody        int64
}

// New creates the API.
func New(svc AuthService, opts Options) (*API, error) {
	if svc == nil {
		return nil, oops.Code("HTTP_CONFIG_INVALID").Errorf("auth service is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	maxBody := opts.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = DefaultMaxBodyBytes
	}
	return &API{
		svc:            svc,
		cookies:        opts.Cookies,
		allowedOrigins: opts.AllowedOrigins,
		metrics:        opts.Metrics,
		logger:         logger,
		maxBody:        maxBody,
	}, nil
}

// Routes returns the router.
func (a *API) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(a.observe)
	r.Use(a.recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   a.allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PATCH", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeKind(w, r, auth.KindNotFound, "route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeStatus(w, r, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "method not allowed")
	})

	// Sub-routers inherit NotFound and MethodNotAllowed only when mounted
	// after those are set, so routes are mounted one level deep.
	r.Get("/api/v1/health-check", a.healthCheck)
	r.Route("/api/v1/users", func(users chi.Router) {
		users.Post("/register", a.register)
		users.Post("/login", a.login)
		users.Get("/refresh-token", a.refreshToken)
		users.Get("/verify", a.verifyLink)
		users.Post("/verify", a.verifyCode)
		users.Post("/resend-verification", a.resendVerification)
		users.Post("/forgot-password", a.forgotPassword)
		users.Post("/reset-password", a.resetPassword)

		users.Group(func(private chi.Router) {
			private.Use(a.requireAuth)
			private.Post("/logout", a.logout)
			private.Get("/profile", a.getProfile)
			private.Patch("/profile", a.updateProfile)
		})
	})
	return r
}

// observe records request latency by route pattern.
func (a *API) observe(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		var route string
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			route = rctx.RoutePattern()
		}
		a.metrics.ObserveHTTP(route, r.Method, status, time.Since(start))
	})
}

// recoverer turns a handler panic into a 500 envelope.
func (a *API) recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				a.logger.ErrorContext(r.Context(), "handler panic",
					"panic", rec,
					"path", r.URL.Path,
					"request_id", middleware.GetReqID(r.Context()),
				)
				writeKind(w, r, auth.KindInternal, publicMessage(auth.KindInternal, nil))
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// succeed records a successful operation and writes the envelope.
func (a *API) succeed(w http.ResponseWriter, r *http.Request, op string, status int, message string, data any) {
	a.metrics.RecordAuth(op, observability.OutcomeOK)
	writeOK(w, r, status, message, data)
}

// fail records a failed operation and writes the error envelope. Internal
// and dependency failures are logged with their cause.
func (a *API) fail(w http.ResponseWriter, r *http.Request, op string, err error) {
	kind := auth.KindOf(err)
	a.metrics.RecordAuth(op, string(kind))

	switch kind {
	case auth.KindInternal, auth.KindDependencyFailure:
		errutil.LogError(r.Context(), a.logger.With(
			"operation", op,
			"request_id", middleware.GetReqID(r.Context()),
		), "request failed", err)
	default:
		a.logger.DebugContext(r.Context(), "request rejected", "operation", op, "kind", string(kind))
	}
	writeKind(w, r, kind, publicMessage(kind, err))
}
