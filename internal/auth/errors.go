// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Cooksavvy Contributors

package auth

import (
	"errors"

	"github.com/samber/oops"
)

// ErrNotFound is returned when a requested entity does not exist.
var ErrNotFound = errors.New("not found")

// ErrDuplicate is returned by a UserRepository when a write would violate
// userName or email uniqueness.
var ErrDuplicate = errors.New("duplicate")

// ErrTokenCollision is returned by a UserRepository when a pending
// verification hash is already held by another user.
var ErrTokenCollision = errors.New("verification token collision")

// Kind classifies an error returned by Service. Kinds are carried as the
// oops error code so transports can map them without string matching.
type Kind string

// Error kinds surfaced by Service operations.
const (
	KindValidation            Kind = "VALIDATION_ERROR"
	KindConflict              Kind = "CONFLICT"
	KindInvalidCredentials    Kind = "INVALID_CREDENTIALS"
	KindEmailNotVerified      Kind = "EMAIL_NOT_VERIFIED"
	KindMissingToken          Kind = "MISSING_TOKEN"
	KindInvalidOrExpiredToken Kind = "INVALID_OR_EXPIRED_TOKEN"
	KindSessionMismatch       Kind = "SESSION_MISMATCH"
	KindInvalidToken          Kind = "INVALID_TOKEN"
	KindExpired               Kind = "EXPIRED"
	KindNotFound              Kind = "NOT_FOUND"
	KindDependencyFailure     Kind = "DEPENDENCY_FAILURE"
	KindUnauthenticated       Kind = "UNAUTHENTICATED"
	KindInternal              Kind = "INTERNAL"
)

var knownKinds = map[Kind]struct{}{
	KindValidation:            {},
	KindConflict:              {},
	KindInvalidCredentials:    {},
	KindEmailNotVerified:      {},
	KindMissingToken:          {},
	KindInvalidOrExpiredToken: {},
	KindSessionMismatch:       {},
	KindInvalidToken:          {},
	KindExpired:               {},
	KindNotFound:              {},
	KindDependencyFailure:     {},
	KindUnauthenticated:       {},
}

// KindOf returns the Kind carried by err. Errors without a recognised code
// are reported as KindInternal.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	oopsErr, ok := oops.AsOops(err)
	if !ok {
		return KindInternal
	}
	code, _ := oopsErr.Code().(string)
	kind := Kind(code)
	if _, known := knownKinds[kind]; !known {
		return KindInternal
	}
	return kind
}

// Public messages for authentication failures. They never depend on which
// check failed.
const (
	msgInvalidCredentials = "invalid username or password"
	msgEmailNotVerified   = "email address has not been verified"
	msgMissingToken       = "refresh token is required"
	msgInvalidSession     = "access token expired"
	msgSessionMismatch    = "refresh token is no longer valid"
	msgInvalidToken       = "token is invalid"
	msgExpiredToken       = "token has expired"
	msgConflict           = "user with email or username already exists"
	msgUnauthenticated    = "authentication required"
)

func kindError(kind Kind, msg string) error {
	return oops.Code(string(kind)).Errorf("%s", msg)
}

// dependencyError wraps an infrastructure failure (store, mail, token
// generation) so it surfaces as KindDependencyFailure.
func dependencyError(operation string, err error) error {
	return oops.Code(string(KindDependencyFailure)).
		With("operation", operation).
		Wrap(err)
}
