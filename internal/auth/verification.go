// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Cooksavvy Contributors

package auth

import (
	"context"
	"errors"
	"strings"

	"github.com/samber/oops"
)

// newVerification generates a fresh verification token in the configured
// mode. OTPs are regenerated while they collide with another user's pending
// code so a code always identifies exactly one user.
func (s *Service) newVerification(ctx context.Context) (string, PendingToken, error) {
	expiresAt := s.now().Add(s.verificationTTL)

	if s.mode == VerificationLink {
		token, hash, err := GenerateLinkToken()
		if err != nil {
			return "", PendingToken{}, dependencyError("generate verification token", err)
		}
		return token, PendingToken{Hash: hash, ExpiresAt: expiresAt}, nil
	}

	for range maxOTPAttempts {
		code, hash, err := GenerateOTP()
		if err != nil {
			return "", PendingToken{}, dependencyError("generate verification code", err)
		}
		_, err = s.users.GetByVerificationHash(ctx, hash)
		if errors.Is(err, ErrNotFound) {
			return code, PendingToken{Hash: hash, ExpiresAt: expiresAt}, nil
		}
		if err != nil {
			return "", PendingToken{}, dependencyError("check verification code", err)
		}
	}
	return "", PendingToken{}, oops.Code(string(KindDependencyFailure)).
		With("attempts", maxOTPAttempts).
		Errorf("could not allocate a unique verification code")
}

// storeVerification generates a pending verification and hands it to write,
// starting over with a fresh one while write reports ErrTokenCollision.
// Generation failures carry KindDependencyFailure; write errors are
// returned as is.
func (s *Service) storeVerification(ctx context.Context, write func(PendingToken) error) (string, PendingToken, error) {
	for range maxOTPAttempts {
		plain, pending, err := s.newVerification(ctx)
		if err != nil {
			return "", PendingToken{}, err
		}
		err = write(pending)
		if errors.Is(err, ErrTokenCollision) {
			s.logger.DebugContext(ctx, "verification token collided, regenerating")
			continue
		}
		return plain, pending, err
	}
	return "", PendingToken{}, oops.Code(string(KindDependencyFailure)).
		With("attempts", maxOTPAttempts).
		Wrap(ErrTokenCollision)
}

func (s *Service) sendVerification(ctx context.Context, user *User, plain string, pending PendingToken) error {
	err := s.notifier.SendVerification(ctx, VerificationNotice{
		To:        user.Email,
		UserName:  user.UserName,
		FullName:  user.FullName,
		Mode:      s.mode,
		Token:     plain,
		ExpiresAt: pending.ExpiresAt,
	})
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to send verification email",
			"user_id", user.ID.String(), "error", err)
		return dependencyError("send verification email", err)
	}
	return nil
}

// VerifyEmail consumes a pending verification token or code. An expired
// token is cleared so it cannot be retried.
func (s *Service) VerifyEmail(ctx context.Context, tokenOrCode string) (err error) {
	ctx, span := s.startSpan(ctx, "VerifyEmail")
	defer func() { endSpan(span, err) }()

	tokenOrCode = strings.TrimSpace(tokenOrCode)
	if tokenOrCode == "" {
		return validationError("token", "verification token is required")
	}
	hash := HashToken(tokenOrCode)

	user, err := s.users.GetByVerificationHash(ctx, hash)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return kindError(KindNotFound, "verification token not found")
		}
		return dependencyError("get user by verification token", err)
	}
	if user.Verification == nil || !VerifyTokenHash(tokenOrCode, user.Verification.Hash) {
		return kindError(KindNotFound, "verification token not found")
	}

	if user.Verification.IsExpired(s.now()) {
		if _, err := s.users.ClearVerification(ctx, user.ID, hash); err != nil {
			return dependencyError("clear expired verification", err)
		}
		s.logger.InfoContext(ctx, "expired verification token cleared", "user_id", user.ID.String())
		return kindError(KindExpired, "verification token has expired")
	}

	consumed, err := s.users.ConsumeVerification(ctx, user.ID, hash)
	if err != nil {
		return dependencyError("mark email verified", err)
	}
	if !consumed {
		return kindError(KindNotFound, "verification token not found")
	}

	s.logger.InfoContext(ctx, "email verified", "user_id", user.ID.String())
	return nil
}

// ResendVerification issues a fresh verification token, invalidating any
// earlier one, and mails it. It reports alreadyVerified without side
// effects when there is nothing to verify.
func (s *Service) ResendVerification(ctx context.Context, email string) (alreadyVerified bool, err error) {
	ctx, span := s.startSpan(ctx, "ResendVerification")
	defer func() { endSpan(span, err) }()

	email = NormalizeEmail(email)
	if err := ValidateEmail(email); err != nil {
		return false, err
	}

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return false, kindError(KindNotFound, "user not found")
		}
		return false, dependencyError("get user by email", err)
	}
	if user.EmailVerified {
		return true, nil
	}

	if err := s.reissueVerification(ctx, user); err != nil {
		return false, err
	}
	return false, nil
}

// reissueVerification stores a new pending verification for user and mails it.
func (s *Service) reissueVerification(ctx context.Context, user *User) error {
	plain, pending, err := s.storeVerification(ctx, func(p PendingToken) error {
		return s.users.SetVerification(ctx, user.ID, p)
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return kindError(KindNotFound, "user not found")
		}
		return dependencyError("store verification token", err)
	}
	user.Verification = &pending

	s.logger.InfoContext(ctx, "verification token issued", "user_id", user.ID.String())
	return s.sendVerification(ctx, user, plain, pending)
}

