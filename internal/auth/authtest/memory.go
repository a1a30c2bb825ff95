// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Cooksavvy Contributors

// Package authtest provides in-memory fakes of the auth package's
// collaborators for use in tests.
package authtest

import (
	"context"
	"slices"
	"sync"

	"github.com/oklog/ulid/v2"

	"github.com/cooksavvy/cooksavvy/internal/auth"
)

// UserRepository is an in-memory auth.UserRepository. Conditional methods
// behave like single-row conditional UPDATEs. Safe for concurrent use.
type UserRepository struct {
	mu     sync.Mutex
	users  map[ulid.ULID]*auth.User
	fail   map[string]error
	counts map[string]int
}

// NewUserRepository creates an empty repository.
func NewUserRepository() *UserRepository {
	return &UserRepository{
		users:  make(map[ulid.ULID]*auth.User),
		fail:   make(map[string]error),
		counts: make(map[string]int),
	}
}

// FailOn makes every later call to method return err. A nil err clears it.
func (r *UserRepository) FailOn(method string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err == nil {
		delete(r.fail, method)
		return
	}
	r.fail[method] = err
}

// Calls returns how many times method was called.
func (r *UserRepository) Calls(method string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.counts[method]
}

// Len returns the number of stored users.
func (r *UserRepository) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.users)
}

// Snapshot returns a copy of the stored user, or nil.
func (r *UserRepository) Snapshot(id ulid.ULID) *auth.User {
	r.mu.Lock()
	defer r.mu.Unlock()
	if u, ok := r.users[id]; ok {
		return clone(u)
	}
	return nil
}

// Put stores user as is, bypassing uniqueness checks.
func (r *UserRepository) Put(user *auth.User) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.users[user.ID] = clone(user)
}

func clone(u *auth.User) *auth.User {
	c := *u
	if u.Verification != nil {
		v := *u.Verification
		c.Verification = &v
	}
	if u.Reset != nil {
		p := *u.Reset
		c.Reset = &p
	}
	c.Preferences.Diets = slices.Clone(u.Preferences.Diets)
	c.Preferences.Allergies = slices.Clone(u.Preferences.Allergies)
	return &c
}

// enter locks the repository and records the call. The caller must unlock.
func (r *UserRepository) enter(method string) error {
	r.mu.Lock()
	r.counts[method]++
	return r.fail[method]
}

func (r *UserRepository) find(match func(*auth.User) bool) (*auth.User, error) {
	for _, u := range r.users {
		if match(u) {
			return clone(u), nil
		}
	}
	return nil, auth.ErrNotFound
}

func (r *UserRepository) taken(self ulid.ULID, email, userName string) bool {
	for id, u := range r.users {
		if id != self && (u.Email == email || u.UserName == userName) {
			return true
		}
	}
	return false
}

func (r *UserRepository) verificationTaken(self ulid.ULID, p *auth.PendingToken) bool {
	if p == nil {
		return false
	}
	for id, u := range r.users {
		if id != self && u.Verification != nil && u.Verification.Hash == p.Hash {
			return true
		}
	}
	return false
}

// Create stores a new user.
func (r *UserRepository) Create(_ context.Context, user *auth.User) error {
	err := r.enter("Create")
	defer r.mu.Unlock()
	if err != nil {
		return err
	}
	if _, exists := r.users[user.ID]; exists || r.taken(user.ID, user.Email, user.UserName) {
		return auth.ErrDuplicate
	}
	if r.verificationTaken(user.ID, user.Verification) {
		return auth.ErrTokenCollision
	}
	r.users[user.ID] = clone(user)
	return nil
}

// GetByID retrieves a user by ID.
func (r *UserRepository) GetByID(_ context.Context, id ulid.ULID) (*auth.User, error) {
	err := r.enter("GetByID")
	defer r.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return r.find(func(u *auth.User) bool { return u.ID == id })
}

// GetByEmail retrieves a user by email.
func (r *UserRepository) GetByEmail(_ context.Context, email string) (*auth.User, error) {
	err := r.enter("GetByEmail")
	defer r.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return r.find(func(u *auth.User) bool { return u.Email == email })
}

// GetByUserName retrieves a user by user name.
func (r *UserRepository) GetByUserName(_ context.Context, userName string) (*auth.User, error) {
	err := r.enter("GetByUserName")
	defer r.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return r.find(func(u *auth.User) bool { return u.UserName == userName })
}

// GetByVerificationHash retrieves the user with a matching pending verification.
func (r *UserRepository) GetByVerificationHash(_ context.Context, hash string) (*auth.User, error) {
	err := r.enter("GetByVerificationHash")
	defer r.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return r.find(func(u *auth.User) bool { return u.Verification != nil && u.Verification.Hash == hash })
}

// GetByResetHash retrieves the user with a matching pending reset.
func (r *UserRepository) GetByResetHash(_ context.Context, hash string) (*auth.User, error) {
	err := r.enter("GetByResetHash")
	defer r.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return r.find(func(u *auth.User) bool { return u.Reset != nil && u.Reset.Hash == hash })
}

// UpdateProfile saves identity, preference and avatar fields, and the
// verification fields when the email changes.
func (r *UserRepository) UpdateProfile(_ context.Context, user *auth.User) error {
	err := r.enter("UpdateProfile")
	defer r.mu.Unlock()
	if err != nil {
		return err
	}
	stored, ok := r.users[user.ID]
	if !ok {
		return auth.ErrNotFound
	}
	if r.taken(user.ID, user.Email, user.UserName) {
		return auth.ErrDuplicate
	}
	next := clone(user)
	if stored.Email != next.Email {
		if r.verificationTaken(user.ID, next.Verification) {
			return auth.ErrTokenCollision
		}
		stored.EmailVerified = next.EmailVerified
		stored.Verification = next.Verification
	}
	stored.UserName = next.UserName
	stored.Email = next.Email
	stored.FullName = next.FullName
	stored.Preferences = next.Preferences
	stored.Avatar = next.Avatar
	stored.UpdatedAt = next.UpdatedAt
	return nil
}

func (r *UserRepository) mutate(method string, id ulid.ULID, apply func(*auth.User) bool) (bool, error) {
	err := r.enter(method)
	defer r.mu.Unlock()
	if err != nil {
		return false, err
	}
	u, ok := r.users[id]
	if !ok {
		return false, auth.ErrNotFound
	}
	return apply(u), nil
}

func (r *UserRepository) mutateConditional(method string, id ulid.ULID, apply func(*auth.User) bool) (bool, error) {
	changed, err := r.mutate(method, id, apply)
	if err == auth.ErrNotFound { //nolint:errorlint // sentinel returned unwrapped by mutate
		return false, nil
	}
	return changed, err
}

// UpdatePasswordHash replaces the password hash.
func (r *UserRepository) UpdatePasswordHash(_ context.Context, id ulid.ULID, passwordHash string) error {
	_, err := r.mutate("UpdatePasswordHash", id, func(u *auth.User) bool {
		u.PasswordHash = passwordHash
		return true
	})
	return err
}

// SetVerification replaces the pending verification.
func (r *UserRepository) SetVerification(_ context.Context, id ulid.ULID, token auth.PendingToken) error {
	err := r.enter("SetVerification")
	defer r.mu.Unlock()
	if err != nil {
		return err
	}
	u, ok := r.users[id]
	if !ok {
		return auth.ErrNotFound
	}
	if r.verificationTaken(id, &token) {
		return auth.ErrTokenCollision
	}
	u.Verification = &token
	return nil
}

// ConsumeVerification marks the email verified if the pending hash matches.
func (r *UserRepository) ConsumeVerification(_ context.Context, id ulid.ULID, hash string) (bool, error) {
	return r.mutateConditional("ConsumeVerification", id, func(u *auth.User) bool {
		if u.Verification == nil || u.Verification.Hash != hash {
			return false
		}
		u.Verification = nil
		u.EmailVerified = true
		return true
	})
}

// ClearVerification clears the pending verification if the hash matches.
func (r *UserRepository) ClearVerification(_ context.Context, id ulid.ULID, hash string) (bool, error) {
	return r.mutateConditional("ClearVerification", id, func(u *auth.User) bool {
		if u.Verification == nil || u.Verification.Hash != hash {
			return false
		}
		u.Verification = nil
		return true
	})
}

// SetReset replaces the pending reset.
func (r *UserRepository) SetReset(_ context.Context, id ulid.ULID, token auth.PendingToken) error {
	_, err := r.mutate("SetReset", id, func(u *auth.User) bool {
		u.Reset = &token
		return true
	})
	return err
}

// ConsumeReset stores the new password hash if the pending hash matches.
func (r *UserRepository) ConsumeReset(_ context.Context, id ulid.ULID, hash, passwordHash string) (bool, error) {
	return r.mutateConditional("ConsumeReset", id, func(u *auth.User) bool {
		if u.Reset == nil || u.Reset.Hash != hash {
			return false
		}
		u.Reset = nil
		u.PasswordHash = passwordHash
		return true
	})
}

// ClearReset clears the pending reset if the hash matches.
func (r *UserRepository) ClearReset(_ context.Context, id ulid.ULID, hash string) (bool, error) {
	return r.mutateConditional("ClearReset", id, func(u *auth.User) bool {
		if u.Reset == nil || u.Reset.Hash != hash {
			return false
		}
		u.Reset = nil
		return true
	})
}

// SetRefreshToken overwrites the refresh token hash.
func (r *UserRepository) SetRefreshToken(_ context.Context, id ulid.ULID, hash string) error {
	_, err := r.mutate("SetRefreshToken", id, func(u *auth.User) bool {
		u.RefreshTokenHash = hash
		return true
	})
	return err
}

// RotateRefreshToken swaps the refresh token hash if it equals expected.
func (r *UserRepository) RotateRefreshToken(_ context.Context, id ulid.ULID, expected, next string) (bool, error) {
	return r.mutateConditional("RotateRefreshToken", id, func(u *auth.User) bool {
		if u.RefreshTokenHash == "" || u.RefreshTokenHash != expected {
			return false
		}
		u.RefreshTokenHash = next
		return true
	})
}

// Compile-time interface check.
var _ auth.UserRepository = (*UserRepository)(nil)
