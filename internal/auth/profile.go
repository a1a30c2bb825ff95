// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Cooksavvy Contributors

package auth

import (
	"context"
	"errors"
	"strings"

	"github.com/oklog/ulid/v2"
)

// ProfileUpdate lists the profile fields to change. Nil fields are left as is.
type ProfileUpdate struct {
	UserName    *string
	Email       *string
	FullName    *string
	Preferences *Preferences
}

func requireUser(id ulid.ULID) error {
	if id.IsZero() {
		return kindError(KindUnauthenticated, msgUnauthenticated)
	}
	return nil
}

func (s *Service) loadUser(ctx context.Context, id ulid.ULID) (*User, error) {
	user, err := s.users.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, kindError(KindNotFound, "user not found")
		}
		return nil, dependencyError("get user by id", err)
	}
	return user, nil
}

// GetProfile returns the profile of the authenticated user.
func (s *Service) GetProfile(ctx context.Context, userID ulid.ULID) (_ *Profile, err error) {
	ctx, span := s.startSpan(ctx, "GetProfile")
	defer func() { endSpan(span, err) }()

	if err := requireUser(userID); err != nil {
		return nil, err
	}
	user, err := s.loadUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	profile := user.Profile()
	return &profile, nil
}

// UpdateProfile changes identity and preference fields. A new email address
// must be verified again: the account becomes unverified and a verification
// message is sent to the new address.
func (s *Service) UpdateProfile(ctx context.Context, userID ulid.ULID, update ProfileUpdate) (_ *Profile, err error) {
	ctx, span := s.startSpan(ctx, "UpdateProfile")
	defer func() { endSpan(span, err) }()

	if err := requireUser(userID); err != nil {
		return nil, err
	}
	user, err := s.loadUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	var newEmail, newUserName string
	if update.Email != nil {
		email := NormalizeEmail(*update.Email)
		if err := ValidateEmail(email); err != nil {
			return nil, err
		}
		if email != user.Email {
			newEmail = email
		}
	}
	if update.UserName != nil {
		userName := NormalizeUserName(*update.UserName)
		if err := ValidateUserName(userName); err != nil {
			return nil, err
		}
		if userName != user.UserName {
			newUserName = userName
		}
	}
	if update.FullName != nil {
		fullName := strings.TrimSpace(*update.FullName)
		if err := ValidateFullName(fullName); err != nil {
			return nil, err
		}
		user.FullName = fullName
	}
	if update.Preferences != nil {
		prefs := normalizePreferences(*update.Preferences)
		if err := ValidatePreferences(prefs); err != nil {
			return nil, err
		}
		user.Preferences = prefs
	}

	if err := s.ensureAvailable(ctx, user.ID, newEmail, newUserName); err != nil {
		return nil, err
	}
	if newUserName != "" {
		user.UserName = newUserName
	}

	user.UpdatedAt = s.now()
	var plain string
	var pending PendingToken
	if newEmail != "" {
		user.Email = newEmail
		user.EmailVerified = false
		plain, pending, err = s.storeVerification(ctx, func(p PendingToken) error {
			user.Verification = &p
			return s.users.UpdateProfile(ctx, user)
		})
	} else {
		err = s.users.UpdateProfile(ctx, user)
	}
	if err != nil {
		switch {
		case errors.Is(err, ErrDuplicate):
			return nil, kindError(KindConflict, msgConflict)
		case errors.Is(err, ErrNotFound):
			return nil, kindError(KindNotFound, "user not found")
		default:
			return nil, dependencyError("update profile", err)
		}
	}

	s.logger.InfoContext(ctx, "profile updated",
		"user_id", user.ID.String(),
		"email_changed", newEmail != "")

	if newEmail != "" {
		if err := s.sendVerification(ctx, user, plain, pending); err != nil {
			return nil, err
		}
	}

	profile := user.Profile()
	return &profile, nil
}
