// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Cooksavvy Contributors

package auth

import (
	"context"
	"net/mail"
	"slices"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// Field length constraints.
const (
	MinNameLength     = 3
	MaxNameLength     = 255
	MaxEmailLength    = 255
	MinPasswordLength = 12
	MaxPasswordLength = 1024
)

// DefaultAvatarURL is shown until a user uploads an avatar.
const DefaultAvatarURL = "https://placehold.co/600x400"

// passwordSymbols are the characters accepted as the required special character.
const passwordSymbols = `!@#$%^&*(),.?":{}|<>`

// Diet is a dietary preference.
type Diet string

// Supported diets.
const (
	DietVegetarian  Diet = "vegetarian"
	DietVegan       Diet = "vegan"
	DietPaleo       Diet = "paleo"
	DietHighFiber   Diet = "high-fiber"
	DietHighProtein Diet = "high-protein"
	DietLowCarb     Diet = "low-carb"
	DietLowFat      Diet = "low-fat"
	DietLowSodium   Diet = "low-sodium"
	DietLowSugar    Diet = "low-sugar"
	DietAlcoholFree Diet = "alcohol-free"
	DietImmunity    Diet = "immunity"
	DietBalanced    Diet = "balanced"
)

// Diets lists every supported diet.
var Diets = []Diet{
	DietVegetarian, DietVegan, DietPaleo, DietHighFiber, DietHighProtein, DietLowCarb,
	DietLowFat, DietLowSodium, DietLowSugar, DietAlcoholFree, DietImmunity, DietBalanced,
}

// Allergy is a food allergy.
type Allergy string

// Supported allergies.
const (
	AllergyGluten    Allergy = "gluten"
	AllergyDairy     Allergy = "dairy"
	AllergyEggs      Allergy = "eggs"
	AllergySoy       Allergy = "soy"
	AllergyWheat     Allergy = "wheat"
	AllergyFish      Allergy = "fish"
	AllergyShellfish Allergy = "shellfish"
	AllergyTreeNuts  Allergy = "tree-nuts"
	AllergyPeanuts   Allergy = "peanuts"
)

// Allergies lists every supported allergy.
var Allergies = []Allergy{
	AllergyGluten, AllergyDairy, AllergyEggs, AllergySoy, AllergyWheat,
	AllergyFish, AllergyShellfish, AllergyTreeNuts, AllergyPeanuts,
}

// PendingToken is a single-use token awaiting consumption. The hash and the
// expiry always travel together.
type PendingToken struct {
	Hash      string
	ExpiresAt time.Time
}

// IsExpired reports whether the token has expired at now.
func (p *PendingToken) IsExpired(now time.Time) bool {
	return now.After(p.ExpiresAt)
}

// Avatar references a user's profile picture.
type Avatar struct {
	URL       string `json:"url"`
	LocalPath string `json:"localPath,omitempty"`
}

// Preferences are the user's dietary settings.
type Preferences struct {
	Diets     []Diet    `json:"dietPreferences"`
	Allergies []Allergy `json:"allergies"`
}

// User is the persisted identity and its credential, verification, reset
// and session state.
type User struct {
	ID       ulid.ULID
	UserName string
	Email    string
	FullName string

	PasswordHash  string
	EmailVerified bool

	// Verification is non-nil while an email verification is pending.
	Verification *PendingToken
	// Reset is non-nil while a password reset is pending.
	Reset *PendingToken
	// RefreshTokenHash is the hash of the single live refresh token, or
	// empty when logged out.
	RefreshTokenHash string

	Preferences Preferences
	Avatar      Avatar

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Profile is the read projection of a User. It never carries credential,
// token or session material.
type Profile struct {
	ID            string      `json:"id"`
	UserName      string      `json:"userName"`
	Email         string      `json:"email"`
	FullName      string      `json:"fullName"`
	EmailVerified bool        `json:"isEmailVerified"`
	Preferences   Preferences `json:"preferences"`
	Avatar        Avatar      `json:"avatar"`
	CreatedAt     time.Time   `json:"createdAt"`
	UpdatedAt     time.Time   `json:"updatedAt"`
}

// Profile returns the public projection of u.
func (u *User) Profile() Profile {
	avatar := u.Avatar
	if avatar.URL == "" {
		avatar.URL = DefaultAvatarURL
	}
	prefs := Preferences{
		Diets:     slices.Clone(u.Preferences.Diets),
		Allergies: slices.Clone(u.Preferences.Allergies),
	}
	if prefs.Diets == nil {
		prefs.Diets = []Diet{}
	}
	if prefs.Allergies == nil {
		prefs.Allergies = []Allergy{}
	}
	return Profile{
		ID:            u.ID.String(),
		UserName:      u.UserName,
		Email:         u.Email,
		FullName:      u.FullName,
		EmailVerified: u.EmailVerified,
		Preferences:   prefs,
		Avatar:        avatar,
		CreatedAt:     u.CreatedAt,
		UpdatedAt:     u.UpdatedAt,
	}
}

// NormalizeEmail lowercases and trims an email address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// NormalizeUserName lowercases and trims a user name.
func NormalizeUserName(userName string) string {
	return strings.ToLower(strings.TrimSpace(userName))
}

func validationError(field, format string, args ...any) error {
	return oops.Code(string(KindValidation)).
		With("field", field).
		Errorf(format, args...)
}

// ValidateUserName checks a normalized user name. A user name may not
// contain "@", which marks a login identifier as an email address.
func ValidateUserName(userName string) error {
	if err := validateName("userName", userName); err != nil {
		return err
	}
	if strings.Contains(userName, "@") {
		return validationError("userName", "userName must not contain @")
	}
	return nil
}

// ValidateFullName checks a trimmed full name.
func ValidateFullName(fullName string) error {
	return validateName("fullName", fullName)
}

func validateName(field, value string) error {
	n := utf8.RuneCountInString(value)
	if n == 0 {
		return validationError(field, "%s is required", field)
	}
	if n < MinNameLength {
		return validationError(field, "%s must be at least %d characters", field, MinNameLength)
	}
	if n > MaxNameLength {
		return validationError(field, "%s must be at most %d characters", field, MaxNameLength)
	}
	return nil
}

// ValidateEmail checks a normalized email address.
func ValidateEmail(email string) error {
	if email == "" {
		return validationError("email", "email is required")
	}
	if len(email) > MaxEmailLength {
		return validationError("email", "email must be at most %d characters", MaxEmailLength)
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email || !strings.Contains(email[strings.LastIndex(email, "@"):], ".") {
		return validationError("email", "email is invalid")
	}
	return nil
}

// ValidatePassword enforces the password policy: 12 to 1024 characters with
// at least one upper case letter, one lower case letter, one digit and one
// symbol.
func ValidatePassword(password string) error {
	n := utf8.RuneCountInString(password)
	if n == 0 {
		return validationError("password", "password is required")
	}
	if n < MinPasswordLength {
		return validationError("password", "password must be at least %d characters", MinPasswordLength)
	}
	if n > MaxPasswordLength {
		return validationError("password", "password must be at most %d characters", MaxPasswordLength)
	}
	var upper, lower, digit, symbol bool
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsLower(r):
			lower = true
		case unicode.IsDigit(r):
			digit = true
		case strings.ContainsRune(passwordSymbols, r):
			symbol = true
		}
	}
	if !upper || !lower || !digit || !symbol {
		return validationError("password",
			"password must contain an upper case letter, a lower case letter, a digit and a special character")
	}
	return nil
}

// ValidatePreferences checks that every diet and allergy is supported.
func ValidatePreferences(p Preferences) error {
	for _, d := range p.Diets {
		if !slices.Contains(Diets, d) {
			return validationError("dietPreferences", "unsupported diet %q", d)
		}
	}
	for _, a := range p.Allergies {
		if !slices.Contains(Allergies, a) {
			return validationError("allergies", "unsupported allergy %q", a)
		}
	}
	return nil
}

// normalizePreferences removes duplicates, keeping first-seen order.
func normalizePreferences(p Preferences) Preferences {
	return Preferences{
		Diets:     dedupe(p.Diets),
		Allergies: dedupe(p.Allergies),
	}
}

func dedupe[T comparable](in []T) []T {
	if in == nil {
		return nil
	}
	out := make([]T, 0, len(in))
	for _, v := range in {
		if !slices.Contains(out, v) {
			out = append(out, v)
		}
	}
	return out
}

// UserRepository manages user persistence. Lookups return an error wrapping
// ErrNotFound when no row matches; writes that would break userName or email
// uniqueness return an error wrapping ErrDuplicate.
//
// Methods returning (bool, error) are conditional updates: they apply only
// if the stored value still equals the expected one and report whether a
// row changed.
type UserRepository interface {
	// Create stores a new user.
	Create(ctx context.Context, user *User) error

	// GetByID retrieves a user by ID.
	GetByID(ctx context.Context, id ulid.ULID) (*User, error)

	// GetByEmail retrieves a user by normalized email.
	GetByEmail(ctx context.Context, email string) (*User, error)

	// GetByUserName retrieves a user by normalized user name.
	GetByUserName(ctx context.Context, userName string) (*User, error)

	// GetByVerificationHash retrieves the user holding a pending
	// verification with the given hash.
	GetByVerificationHash(ctx context.Context, hash string) (*User, error)

	// GetByResetHash retrieves the user holding a pending reset with the
	// given hash.
	GetByResetHash(ctx context.Context, hash string) (*User, error)

	// UpdateProfile saves identity, preference and avatar fields of user.
	// The verified flag and pending verification are taken from user only
	// when user.Email differs from the stored email, so a verification
	// consumed concurrently is never rolled back.
	UpdateProfile(ctx context.Context, user *User) error

	// UpdatePasswordHash replaces the stored password hash.
	UpdatePasswordHash(ctx context.Context, id ulid.ULID, passwordHash string) error

	// SetVerification replaces any pending verification with token.
	SetVerification(ctx context.Context, id ulid.ULID, token PendingToken) error

	// ConsumeVerification marks the email verified and clears the pending
	// verification if it still has the given hash.
	ConsumeVerification(ctx context.Context, id ulid.ULID, hash string) (bool, error)

	// ClearVerification clears the pending verification if it still has
	// the given hash.
	ClearVerification(ctx context.Context, id ulid.ULID, hash string) (bool, error)

	// SetReset replaces any pending reset with token.
	SetReset(ctx context.Context, id ulid.ULID, token PendingToken) error

	// ConsumeReset stores passwordHash and clears the pending reset if it
	// still has the given hash.
	ConsumeReset(ctx context.Context, id ulid.ULID, hash, passwordHash string) (bool, error)

	// ClearReset clears the pending reset if it still has the given hash.
	ClearReset(ctx context.Context, id ulid.ULID, hash string) (bool, error)

	// SetRefreshToken overwrites the live refresh token hash. An empty hash
	// logs the user out.
	SetRefreshToken(ctx context.Context, id ulid.ULID, hash string) error

	// RotateRefreshToken replaces the live refresh token hash only if it
	// still equals expected.
	RotateRefreshToken(ctx context.Context, id ulid.ULID, expected, next string) (bool, error)
}
