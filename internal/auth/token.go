// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Cooksavvy Contributors

package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// Session token defaults.
const (
	DefaultAccessTokenTTL  = 15 * time.Minute
	DefaultRefreshTokenTTL = 7 * 24 * time.Hour
	DefaultTokenIssuer     = "cooksavvy"
)

// Token verification error codes.
const (
	CodeTokenInvalidSignature = "TOKEN_INVALID_SIGNATURE"
	CodeTokenExpired          = "TOKEN_EXPIRED"
	CodeTokenMalformed        = "TOKEN_MALFORMED"
)

// AccessClaims are carried by access tokens.
type AccessClaims struct {
	UserID   string `json:"userId"`
	Email    string `json:"email"`
	UserName string `json:"userName"`
	jwt.RegisteredClaims
}

// RefreshClaims are carried by refresh tokens.
type RefreshClaims struct {
	UserID string `json:"userId"`
	jwt.RegisteredClaims
}

// TokenPair is an issued access and refresh token.
type TokenPair struct {
	AccessToken      string
	AccessExpiresAt  time.Time
	RefreshToken     string
	RefreshExpiresAt time.Time
}

// TokenForgeConfig configures a TokenForge.
type TokenForgeConfig struct {
	AccessSecret  []byte
	RefreshSecret []byte
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	Issuer        string
	// Now overrides the clock. Defaults to time.Now.
	Now func() time.Time
}

// TokenForge signs and verifies HS256 session tokens. Access and refresh
// tokens use distinct secrets so one cannot be replayed as the other.
type TokenForge struct {
	accessSecret  []byte
	refreshSecret []byte
	accessTTL     time.Duration
	refreshTTL    time.Duration
	issuer        string
	now           func() time.Time
}

// NewTokenForge creates a TokenForge, validating secrets and TTLs.
func NewTokenForge(cfg TokenForgeConfig) (*TokenForge, error) {
	if len(cfg.AccessSecret) == 0 {
		return nil, oops.Code("TOKEN_CONFIG_INVALID").Errorf("access token secret is required")
	}
	if len(cfg.RefreshSecret) == 0 {
		return nil, oops.Code("TOKEN_CONFIG_INVALID").Errorf("refresh token secret is required")
	}
	if string(cfg.AccessSecret) == string(cfg.RefreshSecret) {
		return nil, oops.Code("TOKEN_CONFIG_INVALID").Errorf("access and refresh token secrets must differ")
	}
	if cfg.AccessTTL <= 0 || cfg.RefreshTTL <= 0 {
		return nil, oops.Code("TOKEN_CONFIG_INVALID").
			With("access_ttl", cfg.AccessTTL.String()).
			With("refresh_ttl", cfg.RefreshTTL.String()).
			Errorf("token TTLs must be positive")
	}
	issuer := cfg.Issuer
	if issuer == "" {
		issuer = DefaultTokenIssuer
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &TokenForge{
		accessSecret:  cfg.AccessSecret,
		refreshSecret: cfg.RefreshSecret,
		accessTTL:     cfg.AccessTTL,
		refreshTTL:    cfg.RefreshTTL,
		issuer:        issuer,
		now:           now,
	}, nil
}

// AccessTTL returns the lifetime of access tokens.
func (f *TokenForge) AccessTTL() time.Duration { return f.accessTTL }

// RefreshTTL returns the lifetime of refresh tokens.
func (f *TokenForge) RefreshTTL() time.Duration { return f.refreshTTL }

func (f *TokenForge) registered(userID ulid.ULID, ttl time.Duration) jwt.RegisteredClaims {
	now := f.now()
	return jwt.RegisteredClaims{
		Issuer:    f.issuer,
		Subject:   userID.String(),
		ID:        ulid.Make().String(),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
}

// IssueAccess signs an access token for user.
func (f *TokenForge) IssueAccess(user *User) (string, time.Time, error) {
	claims := AccessClaims{
		UserID:           user.ID.String(),
		Email:            user.Email,
		UserName:         user.UserName,
		RegisteredClaims: f.registered(user.ID, f.accessTTL),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(f.accessSecret)
	if err != nil {
		return "", time.Time{}, oops.Code("TOKEN_SIGN_FAILED").With("token", "access").Wrap(err)
	}
	return signed, claims.ExpiresAt.Time, nil
}

// IssueRefresh signs a refresh token for userID.
func (f *TokenForge) IssueRefresh(userID ulid.ULID) (string, time.Time, error) {
	claims := RefreshClaims{
		UserID:           userID.String(),
		RegisteredClaims: f.registered(userID, f.refreshTTL),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(f.refreshSecret)
	if err != nil {
		return "", time.Time{}, oops.Code("TOKEN_SIGN_FAILED").With("token", "refresh").Wrap(err)
	}
	return signed, claims.ExpiresAt.Time, nil
}

// IssuePair signs a fresh access and refresh token for user.
func (f *TokenForge) IssuePair(user *User) (TokenPair, error) {
	access, accessExp, err := f.IssueAccess(user)
	if err != nil {
		return TokenPair{}, err
	}
	refresh, refreshExp, err := f.IssueRefresh(user.ID)
	if err != nil {
		return TokenPair{}, err
	}
	return TokenPair{
		AccessToken:      access,
		AccessExpiresAt:  accessExp,
		RefreshToken:     refresh,
		RefreshExpiresAt: refreshExp,
	}, nil
}

// VerifyAccess validates an access token and returns its claims.
func (f *TokenForge) VerifyAccess(token string) (*AccessClaims, error) {
	claims := &AccessClaims{}
	if err := f.parse(token, claims, f.accessSecret); err != nil {
		return nil, err
	}
	if _, err := ulid.Parse(claims.UserID); err != nil {
		return nil, oops.Code(CodeTokenMalformed).Errorf("token subject is not a user id")
	}
	return claims, nil
}

// VerifyRefresh validates a refresh token and returns its claims.
func (f *TokenForge) VerifyRefresh(token string) (*RefreshClaims, error) {
	claims := &RefreshClaims{}
	if err := f.parse(token, claims, f.refreshSecret); err != nil {
		return nil, err
	}
	if _, err := ulid.Parse(claims.UserID); err != nil {
		return nil, oops.Code(CodeTokenMalformed).Errorf("token subject is not a user id")
	}
	return claims, nil
}

func (f *TokenForge) parse(token string, claims jwt.Claims, secret []byte) error {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(f.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(f.now),
	)
	_, err := parser.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return secret, nil
	})
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return oops.Code(CodeTokenExpired).Errorf("token has expired")
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return oops.Code(CodeTokenInvalidSignature).Errorf("token signature is invalid")
	default:
		return oops.Code(CodeTokenMalformed).With("reason", err.Error()).Errorf("token is malformed")
	}
}
