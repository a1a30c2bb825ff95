// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Cooksavvy Contributors

// Package auth provides the Cooksavvy credential and session lifecycle.
//
// # Primitives
//
//   - Argon2idHasher - salted password hashing, verifies legacy bcrypt hashes
//   - TokenForge - HS256 access and refresh tokens with distinct secrets
//   - GenerateLinkToken, GenerateOTP - single-use tokens, stored as SHA-256
//
// # Service
//
// Service orchestrates registration, email verification, login, refresh,
// logout, password reset and profile access against a UserRepository and a
// Notifier. Every failure is an oops error whose code is a Kind; use KindOf
// at the transport boundary.
//
// A user has at most one live refresh token. Login and refresh overwrite it,
// so a second login invalidates the first session.
//
// Consumption of single-use tokens and refresh rotation go through the
// conditional UserRepository methods, so concurrent requests cannot both
// consume the same token.
package auth
