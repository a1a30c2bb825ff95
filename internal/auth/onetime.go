// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Cooksavvy Contributors

package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"math/big"
	"strconv"
	"time"

	"github.com/samber/oops"
)

// Single-use token configuration.
const (
	LinkTokenBytes  = 32 // 32 bytes = 64 hex chars
	OTPDigits       = 6
	DefaultTokenTTL = 10 * time.Minute
)

// otpFloor and otpSpan bound six-digit codes to [100000, 999999].
var (
	otpFloor = big.NewInt(100000)
	otpSpan  = big.NewInt(900000)
)

// VerificationMode selects how email verification codes are delivered.
type VerificationMode string

// Verification modes.
const (
	// VerificationLink mails a URL carrying a 64 character random token.
	VerificationLink VerificationMode = "link"
	// VerificationOTP mails a six digit code.
	VerificationOTP VerificationMode = "otp"
)

// Valid reports whether m is a known mode.
func (m VerificationMode) Valid() bool {
	return m == VerificationLink || m == VerificationOTP
}

// GenerateLinkToken creates a secure random token and its hash.
// The plaintext token is sent to the user; the hash is stored.
func GenerateLinkToken() (token, hash string, err error) {
	tokenBytes := make([]byte, LinkTokenBytes)
	if _, err = rand.Read(tokenBytes); err != nil {
		return "", "", oops.With("operation", "generate link token").Wrap(err)
	}
	token = hex.EncodeToString(tokenBytes)
	return token, HashToken(token), nil
}

// GenerateOTP creates a six digit one-time code and its hash.
func GenerateOTP() (code, hash string, err error) {
	n, err := rand.Int(rand.Reader, otpSpan)
	if err != nil {
		return "", "", oops.With("operation", "generate otp").Wrap(err)
	}
	code = strconv.FormatInt(n.Add(n, otpFloor).Int64(), 10)
	return code, HashToken(code), nil
}

// HashToken returns the hex SHA-256 of a token. Single-use tokens, OTPs and
// refresh tokens are stored only in this form.
func HashToken(token string) string {
	h := sha256.Sum256([]byte(token))
	return hex.EncodeToString(h[:])
}

// VerifyTokenHash checks a plaintext token against a stored hash in
// constant time.
func VerifyTokenHash(token, hash string) bool {
	if token == "" || hash == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(HashToken(token)), []byte(hash)) == 1
}
