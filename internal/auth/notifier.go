// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Cooksavvy Contributors

package auth

import (
	"context"
	"time"
)

// VerificationNotice is the content of an email verification message.
type VerificationNotice struct {
	To        string
	UserName  string
	FullName  string
	Mode      VerificationMode
	Token     string
	ExpiresAt time.Time
}

// ResetNotice is the content of a password reset message.
type ResetNotice struct {
	To        string
	UserName  string
	FullName  string
	Token     string
	ExpiresAt time.Time
}

// Notifier delivers account messages to users. Implementations render and
// send the message; Service treats any error as a dependency failure.
type Notifier interface {
	SendVerification(ctx context.Context, notice VerificationNotice) error
	SendPasswordReset(ctx context.Context, notice ResetNotice) error
}
