// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Cooksavvy Contributors

package auth

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/cooksavvy/cooksavvy/internal/auth"

// maxOTPAttempts bounds regeneration of a six digit code that collides with
// another user's pending code.
const maxOTPAttempts = 5

// Service provides the credential and session lifecycle: registration,
// verification, login, refresh, logout, password reset and profile access.
type Service struct {
	users    UserRepository
	hasher   PasswordHasher
	tokens   *TokenForge
	notifier Notifier

	logger          *slog.Logger
	tracer          trace.Tracer
	now             func() time.Time
	mode            VerificationMode
	verificationTTL time.Duration
	resetTTL        time.Duration
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

// WithClock overrides the clock used for token expiry.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithTracer overrides the OpenTelemetry tracer.
func WithTracer(tracer trace.Tracer) Option {
	return func(s *Service) { s.tracer = tracer }
}

// WithVerificationMode selects link or OTP verification.
func WithVerificationMode(mode VerificationMode) Option {
	return func(s *Service) { s.mode = mode }
}

// WithVerificationTTL sets how long a verification token stays valid.
func WithVerificationTTL(ttl time.Duration) Option {
	return func(s *Service) { s.verificationTTL = ttl }
}

// WithResetTTL sets how long a password reset token stays valid.
func WithResetTTL(ttl time.Duration) Option {
	return func(s *Service) { s.resetTTL = ttl }
}

// NewService creates a new Service.
func NewService(users UserRepository, hasher PasswordHasher, tokens *TokenForge, notifier Notifier, opts ...Option) (*Service, error) {
	if users == nil {
		return nil, oops.Code("AUTH_INVALID_CONFIG").Errorf("user repository is required")
	}
	if hasher == nil {
		return nil, oops.Code("AUTH_INVALID_CONFIG").Errorf("password hasher is required")
	}
	if tokens == nil {
		return nil, oops.Code("AUTH_INVALID_CONFIG").Errorf("token forge is required")
	}
	if notifier == nil {
		return nil, oops.Code("AUTH_INVALID_CONFIG").Errorf("notifier is required")
	}

	s := &Service{
		users:           users,
		hasher:          hasher,
		tokens:          tokens,
		notifier:        notifier,
		logger:          slog.Default(),
		tracer:          otel.Tracer(tracerName),
		now:             time.Now,
		mode:            VerificationLink,
		verificationTTL: DefaultTokenTTL,
		resetTTL:        DefaultTokenTTL,
	}
	for _, opt := range opts {
		opt(s)
	}

	if !s.mode.Valid() {
		return nil, oops.Code("AUTH_INVALID_CONFIG").
			With("mode", string(s.mode)).
			Errorf("unknown verification mode")
	}
	if s.verificationTTL <= 0 || s.resetTTL <= 0 {
		return nil, oops.Code("AUTH_INVALID_CONFIG").Errorf("token validity windows must be positive")
	}
	return s, nil
}

// Session is the result of a successful login or refresh.
type Session struct {
	User   Profile
	Tokens TokenPair
}

// dummyPasswordHash is used when a user doesn't exist to prevent timing attacks.
// We still run password verification to make response time consistent.
// This is NOT a real credential - it's a fake hash that will never match any password.
//
//nolint:gosec // G101: This is an intentionally fake hash for timing attack prevention, not a credential.
const dummyPasswordHash = "$argon2id$v=19$m=65536,t=1,p=4$AAAAAAAAAAAAAAAAAAAAAA$AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA"

func (s *Service) startSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	return s.tracer.Start(ctx, "auth."+name)
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.SetAttributes(attribute.String("auth.error_kind", string(KindOf(err))))
		span.SetStatus(codes.Error, string(KindOf(err)))
	}
	span.End()
}

// RegisterInput carries the fields of a new account.
type RegisterInput struct {
	Email       string
	UserName    string
	FullName    string
	Password    string
	Preferences Preferences
}

// Register creates an unverified account and mails a verification token or
// code. If the mail cannot be sent the account still exists and the error
// is KindDependencyFailure; the caller can offer ResendVerification.
func (s *Service) Register(ctx context.Context, in RegisterInput) (_ *Profile, err error) {
	ctx, span := s.startSpan(ctx, "Register")
	defer func() { endSpan(span, err) }()

	email := NormalizeEmail(in.Email)
	userName := NormalizeUserName(in.UserName)
	fullName := strings.TrimSpace(in.FullName)
	prefs := normalizePreferences(in.Preferences)

	for _, check := range []error{
		ValidateEmail(email),
		ValidateUserName(userName),
		ValidateFullName(fullName),
		ValidatePassword(in.Password),
		ValidatePreferences(prefs),
	} {
		if check != nil {
			return nil, check
		}
	}

	if err := s.ensureAvailable(ctx, ulid.ULID{}, email, userName); err != nil {
		return nil, err
	}

	passwordHash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, oops.With("operation", "hash password").Wrap(err)
	}

	now := s.now()
	user := &User{
		ID:           ulid.Make(),
		UserName:     userName,
		Email:        email,
		FullName:     fullName,
		PasswordHash: passwordHash,
		Preferences:  prefs,
		Avatar:       Avatar{URL: DefaultAvatarURL},
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	plain, pending, err := s.storeVerification(ctx, func(p PendingToken) error {
		user.Verification = &p
		return s.users.Create(ctx, user)
	})
	if err != nil {
		if errors.Is(err, ErrDuplicate) {
			return nil, kindError(KindConflict, msgConflict)
		}
		return nil, dependencyError("create user", err)
	}

	s.logger.InfoContext(ctx, "user registered",
		"user_id", user.ID.String(),
		"verification_mode", string(s.mode))

	if err := s.sendVerification(ctx, user, plain, pending); err != nil {
		return nil, err
	}

	profile := user.Profile()
	return &profile, nil
}

// ensureAvailable returns KindConflict if email or userName is held by a
// user other than self.
func (s *Service) ensureAvailable(ctx context.Context, self ulid.ULID, email, userName string) error {
	if email != "" {
		existing, err := s.users.GetByEmail(ctx, email)
		switch {
		case err == nil && existing.ID != self:
			return kindError(KindConflict, msgConflict)
		case err != nil && !errors.Is(err, ErrNotFound):
			return dependencyError("get user by email", err)
		}
	}
	if userName != "" {
		existing, err := s.users.GetByUserName(ctx, userName)
		switch {
		case err == nil && existing.ID != self:
			return kindError(KindConflict, msgConflict)
		case err != nil && !errors.Is(err, ErrNotFound):
			return dependencyError("get user by username", err)
		}
	}
	return nil
}

// Login authenticates by email or user name and starts a new session,
// replacing any session the user already had.
// Uses constant-time operations to prevent timing-based username enumeration.
func (s *Service) Login(ctx context.Context, identifier, password string) (_ *Session, err error) {
	ctx, span := s.startSpan(ctx, "Login")
	defer func() { endSpan(span, err) }()

	identifier = strings.ToLower(strings.TrimSpace(identifier))
	if identifier == "" || password == "" {
		return nil, validationError("identifier", "email or username and password are required")
	}

	var user *User
	var lookupErr error
	if strings.Contains(identifier, "@") {
		user, lookupErr = s.users.GetByEmail(ctx, identifier)
	} else {
		user, lookupErr = s.users.GetByUserName(ctx, identifier)
	}

	targetHash := dummyPasswordHash
	switch {
	case lookupErr == nil:
		targetHash = user.PasswordHash
	case errors.Is(lookupErr, ErrNotFound):
		user = nil
	default:
		return nil, dependencyError("get user for login", lookupErr)
	}

	// Always verify, even against the dummy hash, to keep timing uniform.
	valid, verifyErr := s.hasher.Verify(password, targetHash)
	if verifyErr != nil && user != nil {
		s.logger.WarnContext(ctx, "stored password hash is malformed",
			"user_id", user.ID.String(),
			"error", verifyErr)
	}
	if user == nil || !valid || verifyErr != nil {
		return nil, kindError(KindInvalidCredentials, msgInvalidCredentials)
	}

	// Checked after password verification so the response does not reveal
	// whether an unverified account exists.
	if !user.EmailVerified {
		return nil, kindError(KindEmailNotVerified, msgEmailNotVerified)
	}

	if s.hasher.NeedsUpgrade(user.PasswordHash) {
		s.upgradePasswordHash(ctx, user, password)
	}

	session, err := s.startSession(ctx, user)
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "user logged in", "user_id", user.ID.String())
	return session, nil
}

// upgradePasswordHash re-hashes a legacy password. Login succeeds regardless.
func (s *Service) upgradePasswordHash(ctx context.Context, user *User, password string) {
	newHash, err := s.hasher.Hash(password)
	if err != nil {
		s.logger.WarnContext(ctx, "failed to re-hash legacy password",
			"user_id", user.ID.String(), "error", err)
		return
	}
	if err := s.users.UpdatePasswordHash(ctx, user.ID, newHash); err != nil {
		s.logger.WarnContext(ctx, "failed to store upgraded password hash",
			"user_id", user.ID.String(), "error", err)
		return
	}
	user.PasswordHash = newHash
}

// startSession issues a token pair and overwrites the stored refresh token.
func (s *Service) startSession(ctx context.Context, user *User) (*Session, error) {
	pair, err := s.tokens.IssuePair(user)
	if err != nil {
		return nil, oops.With("operation", "issue token pair").Wrap(err)
	}
	if err := s.users.SetRefreshToken(ctx, user.ID, HashToken(pair.RefreshToken)); err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, kindError(KindInvalidCredentials, msgInvalidCredentials)
		}
		return nil, dependencyError("store refresh token", err)
	}
	return &Session{User: user.Profile(), Tokens: pair}, nil
}

// RefreshSession exchanges a refresh token for a new token pair. The
// presented token is invalidated whether or not the new one is ever used.
func (s *Service) RefreshSession(ctx context.Context, refreshToken string) (_ *Session, err error) {
	ctx, span := s.startSpan(ctx, "RefreshSession")
	defer func() { endSpan(span, err) }()

	if refreshToken == "" {
		return nil, kindError(KindMissingToken, msgMissingToken)
	}

	claims, err := s.tokens.VerifyRefresh(refreshToken)
	if err != nil {
		return nil, oops.Code(string(KindInvalidOrExpiredToken)).
			With("reason", tokenErrorCode(err)).
			Errorf("%s", msgInvalidSession)
	}
	userID, err := ulid.Parse(claims.UserID)
	if err != nil {
		return nil, kindError(KindInvalidOrExpiredToken, msgInvalidSession)
	}

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, kindError(KindSessionMismatch, msgSessionMismatch)
		}
		return nil, dependencyError("get user by id", err)
	}

	presentedHash := HashToken(refreshToken)
	if !VerifyTokenHash(refreshToken, user.RefreshTokenHash) {
		s.logger.WarnContext(ctx, "refresh token does not match live session", "user_id", user.ID.String())
		return nil, kindError(KindSessionMismatch, msgSessionMismatch)
	}

	pair, err := s.tokens.IssuePair(user)
	if err != nil {
		return nil, oops.With("operation", "issue token pair").Wrap(err)
	}

	rotated, err := s.users.RotateRefreshToken(ctx, user.ID, presentedHash, HashToken(pair.RefreshToken))
	if err != nil {
		return nil, dependencyError("rotate refresh token", err)
	}
	if !rotated {
		// Another request rotated or cleared the session first.
		return nil, kindError(KindSessionMismatch, msgSessionMismatch)
	}

	s.logger.InfoContext(ctx, "session refreshed", "user_id", user.ID.String())
	return &Session{User: user.Profile(), Tokens: pair}, nil
}

// Logout ends the user's session.
func (s *Service) Logout(ctx context.Context, userID ulid.ULID) (err error) {
	ctx, span := s.startSpan(ctx, "Logout")
	defer func() { endSpan(span, err) }()

	if err := requireUser(userID); err != nil {
		return err
	}
	if err := s.users.SetRefreshToken(ctx, userID, ""); err != nil {
		if errors.Is(err, ErrNotFound) {
			return kindError(KindNotFound, "user not found")
		}
		return dependencyError("clear refresh token", err)
	}

	s.logger.InfoContext(ctx, "user logged out", "user_id", userID.String())
	return nil
}

// Authenticate validates an access token and returns its claims.
func (s *Service) Authenticate(_ context.Context, accessToken string) (*AccessClaims, error) {
	if accessToken == "" {
		return nil, kindError(KindUnauthenticated, msgUnauthenticated)
	}
	claims, err := s.tokens.VerifyAccess(accessToken)
	if err != nil {
		return nil, oops.Code(string(KindInvalidOrExpiredToken)).
			With("reason", tokenErrorCode(err)).
			Errorf("%s", msgInvalidSession)
	}
	return claims, nil
}

// tokenErrorCode returns the TOKEN_* code of a forge error for diagnostics.
func tokenErrorCode(err error) string {
	if oopsErr, ok := oops.AsOops(err); ok {
		if code, ok := oopsErr.Code().(string); ok {
			return code
		}
	}
	return CodeTokenMalformed
}
