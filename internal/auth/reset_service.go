// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Cooksavvy Contributors

package auth

import (
	"context"
	"errors"
	"strings"

	"github.com/samber/oops"
)

// ForgotPassword starts a password reset. It returns nil for unknown emails
// so callers cannot tell which addresses have accounts; a mail failure for
// a known email is surfaced as KindDependencyFailure.
func (s *Service) ForgotPassword(ctx context.Context, email string) (err error) {
	ctx, span := s.startSpan(ctx, "ForgotPassword")
	defer func() { endSpan(span, err) }()

	email = NormalizeEmail(email)
	if err := ValidateEmail(email); err != nil {
		return err
	}

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		return dependencyError("get user by email", err)
	}

	token, hash, err := GenerateLinkToken()
	if err != nil {
		return dependencyError("generate reset token", err)
	}
	pending := PendingToken{Hash: hash, ExpiresAt: s.now().Add(s.resetTTL)}

	if err := s.users.SetReset(ctx, user.ID, pending); err != nil {
		if errors.Is(err, ErrNotFound) {
			// Deleted between lookup and write; still indistinguishable.
			return nil
		}
		return dependencyError("store reset token", err)
	}

	s.logger.InfoContext(ctx, "password reset requested", "user_id", user.ID.String())

	err = s.notifier.SendPasswordReset(ctx, ResetNotice{
		To:        user.Email,
		UserName:  user.UserName,
		FullName:  user.FullName,
		Token:     token,
		ExpiresAt: pending.ExpiresAt,
	})
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to send password reset email",
			"user_id", user.ID.String(), "error", err)
		return dependencyError("send password reset email", err)
	}
	return nil
}

// ResetPassword replaces the password using a pending reset token. The
// token is single use: it is cleared on success and when found expired.
func (s *Service) ResetPassword(ctx context.Context, token, newPassword string) (err error) {
	ctx, span := s.startSpan(ctx, "ResetPassword")
	defer func() { endSpan(span, err) }()

	token = strings.TrimSpace(token)
	if token == "" {
		return validationError("token", "reset token is required")
	}
	// Checked before touching the token so a rejected password does not
	// burn it.
	if err := ValidatePassword(newPassword); err != nil {
		return err
	}
	hash := HashToken(token)

	user, err := s.users.GetByResetHash(ctx, hash)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return kindError(KindInvalidToken, msgInvalidToken)
		}
		return dependencyError("get user by reset token", err)
	}
	if user.Reset == nil || !VerifyTokenHash(token, user.Reset.Hash) {
		return kindError(KindInvalidToken, msgInvalidToken)
	}

	if user.Reset.IsExpired(s.now()) {
		if _, err := s.users.ClearReset(ctx, user.ID, hash); err != nil {
			return dependencyError("clear expired reset token", err)
		}
		s.logger.InfoContext(ctx, "expired reset token cleared", "user_id", user.ID.String())
		return kindError(KindExpired, msgExpiredToken)
	}

	passwordHash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return oops.With("operation", "hash password").Wrap(err)
	}

	consumed, err := s.users.ConsumeReset(ctx, user.ID, hash, passwordHash)
	if err != nil {
		return dependencyError("store new password", err)
	}
	if !consumed {
		return kindError(KindInvalidToken, msgInvalidToken)
	}

	s.logger.InfoContext(ctx, "password reset", "user_id", user.ID.String())
	return nil
}
