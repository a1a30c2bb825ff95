// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Cooksavvy Contributors

// Package postgres implements auth.UserRepository on PostgreSQL.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/cooksavvy/cooksavvy/internal/auth"
)

// Querier is the subset of *pgxpool.Pool the repository uses.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// UserRepository implements auth.UserRepository using PostgreSQL.
type UserRepository struct {
	db Querier
}

// NewUserRepository creates a new UserRepository.
func NewUserRepository(db Querier) *UserRepository {
	return &UserRepository{db: db}
}

const userColumns = `id, user_name, email, full_name, password_hash, email_verified,
	verification_hash, verification_expires_at, reset_hash, reset_expires_at,
	refresh_token_hash, preferences, avatar_url, avatar_local_path,
	created_at, updated_at`

// Create stores a new user.
func (r *UserRepository) Create(ctx context.Context, user *auth.User) error {
	prefs, err := marshalPreferences(user.Preferences)
	if err != nil {
		return err
	}
	verificationHash, verificationExpires := pendingArgs(user.Verification)
	resetHash, resetExpires := pendingArgs(user.Reset)

	_, err = r.db.Exec(ctx, `
		INSERT INTO users (`+userColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
	`,
		user.ID.String(),
		user.UserName,
		user.Email,
		user.FullName,
		user.PasswordHash,
		user.EmailVerified,
		verificationHash,
		verificationExpires,
		resetHash,
		resetExpires,
		user.RefreshTokenHash,
		prefs,
		user.Avatar.URL,
		user.Avatar.LocalPath,
		user.CreatedAt,
		user.UpdatedAt,
	)
	if err != nil {
		return writeError("insert user", err)
	}
	return nil
}

// GetByID retrieves a user by ID.
func (r *UserRepository) GetByID(ctx context.Context, id ulid.ULID) (*auth.User, error) {
	return r.getOne(ctx, "get user by id", `WHERE id = $1`, id.String())
}

// GetByEmail retrieves a user by normalized email.
func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*auth.User, error) {
	return r.getOne(ctx, "get user by email", `WHERE email = $1`, email)
}

// GetByUserName retrieves a user by normalized user name.
func (r *UserRepository) GetByUserName(ctx context.Context, userName string) (*auth.User, error) {
	return r.getOne(ctx, "get user by user name", `WHERE user_name = $1`, userName)
}

// GetByVerificationHash retrieves the user with a matching pending verification.
func (r *UserRepository) GetByVerificationHash(ctx context.Context, hash string) (*auth.User, error) {
	return r.getOne(ctx, "get user by verification hash", `WHERE verification_hash = $1`, hash)
}

// GetByResetHash retrieves the user with a matching pending reset.
func (r *UserRepository) GetByResetHash(ctx context.Context, hash string) (*auth.User, error) {
	return r.getOne(ctx, "get user by reset hash", `WHERE reset_hash = $1`, hash)
}

func (r *UserRepository) getOne(ctx context.Context, operation, where string, arg any) (*auth.User, error) {
	row := r.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users `+where+` LIMIT 1`, arg)
	user, err := scanUser(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.With("operation", operation).Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.With("operation", operation).Wrap(err)
	}
	return user, nil
}

// UpdateProfile saves identity, preference and avatar fields. The
// verification columns are written only when the stored email differs from
// user.Email; SET expressions see the row as it was before the update.
func (r *UserRepository) UpdateProfile(ctx context.Context, user *auth.User) error {
	prefs, err := marshalPreferences(user.Preferences)
	if err != nil {
		return err
	}
	verificationHash, verificationExpires := pendingArgs(user.Verification)

	tag, err := r.db.Exec(ctx, `
		UPDATE users
		SET user_name = $2, email = $3, full_name = $4,
		    email_verified = CASE WHEN email = $3 THEN email_verified ELSE $5 END,
		    verification_hash = CASE WHEN email = $3 THEN verification_hash ELSE $6 END,
		    verification_expires_at = CASE WHEN email = $3 THEN verification_expires_at ELSE $7 END,
		    preferences = $8, avatar_url = $9, avatar_local_path = $10,
		    updated_at = $11
		WHERE id = $1
	`,
		user.ID.String(),
		user.UserName,
		user.Email,
		user.FullName,
		user.EmailVerified,
		verificationHash,
		verificationExpires,
		prefs,
		user.Avatar.URL,
		user.Avatar.LocalPath,
		user.UpdatedAt,
	)
	if err != nil {
		return writeError("update profile", err)
	}
	return requireRow(tag, "update profile", user.ID)
}

// UpdatePasswordHash replaces the password hash.
func (r *UserRepository) UpdatePasswordHash(ctx context.Context, id ulid.ULID, passwordHash string) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE users SET password_hash = $2, updated_at = now() WHERE id = $1`,
		id.String(), passwordHash)
	if err != nil {
		return oops.With("operation", "update password hash").With("user_id", id.String()).Wrap(err)
	}
	return requireRow(tag, "update password hash", id)
}

// SetVerification replaces the pending verification. A hash already pending
// for another user yields auth.ErrTokenCollision.
func (r *UserRepository) SetVerification(ctx context.Context, id ulid.ULID, token auth.PendingToken) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE users
		SET verification_hash = $2, verification_expires_at = $3, updated_at = now()
		WHERE id = $1
	`, id.String(), token.Hash, token.ExpiresAt)
	if err != nil {
		return oops.With("user_id", id.String()).Wrap(writeError("set verification", err))
	}
	return requireRow(tag, "set verification", id)
}

// ConsumeVerification marks the email verified if the pending hash matches.
func (r *UserRepository) ConsumeVerification(ctx context.Context, id ulid.ULID, hash string) (bool, error) {
	return r.conditional(ctx, "consume verification", `
		UPDATE users
		SET email_verified = TRUE, verification_hash = NULL, verification_expires_at = NULL,
		    updated_at = now()
		WHERE id = $1 AND verification_hash = $2
	`, id.String(), hash)
}

// ClearVerification clears the pending verification if the hash matches.
func (r *UserRepository) ClearVerification(ctx context.Context, id ulid.ULID, hash string) (bool, error) {
	return r.conditional(ctx, "clear verification", `
		UPDATE users
		SET verification_hash = NULL, verification_expires_at = NULL, updated_at = now()
		WHERE id = $1 AND verification_hash = $2
	`, id.String(), hash)
}

// SetReset replaces the pending reset.
func (r *UserRepository) SetReset(ctx context.Context, id ulid.ULID, token auth.PendingToken) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE users
		SET reset_hash = $2, reset_expires_at = $3, updated_at = now()
		WHERE id = $1
	`, id.String(), token.Hash, token.ExpiresAt)
	if err != nil {
		return oops.With("operation", "set reset").With("user_id", id.String()).Wrap(err)
	}
	return requireRow(tag, "set reset", id)
}

// ConsumeReset stores the new password hash if the pending hash matches.
func (r *UserRepository) ConsumeReset(ctx context.Context, id ulid.ULID, hash, passwordHash string) (bool, error) {
	return r.conditional(ctx, "consume reset", `
		UPDATE users
		SET password_hash = $3, reset_hash = NULL, reset_expires_at = NULL, updated_at = now()
		WHERE id = $1 AND reset_hash = $2
	`, id.String(), hash, passwordHash)
}

// ClearReset clears the pending reset if the hash matches.
func (r *UserRepository) ClearReset(ctx context.Context, id ulid.ULID, hash string) (bool, error) {
	return r.conditional(ctx, "clear reset", `
		UPDATE users
		SET reset_hash = NULL, reset_expires_at = NULL, updated_at = now()
		WHERE id = $1 AND reset_hash = $2
	`, id.String(), hash)
}

// SetRefreshToken overwrites the refresh token hash. An empty hash logs the
// user out.
func (r *UserRepository) SetRefreshToken(ctx context.Context, id ulid.ULID, hash string) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE users SET refresh_token_hash = $2 WHERE id = $1`,
		id.String(), hash)
	if err != nil {
		return oops.With("operation", "set refresh token").With("user_id", id.String()).Wrap(err)
	}
	return requireRow(tag, "set refresh token", id)
}

// RotateRefreshToken swaps the refresh token hash if it still equals expected.
func (r *UserRepository) RotateRefreshToken(ctx context.Context, id ulid.ULID, expected, next string) (bool, error) {
	return r.conditional(ctx, "rotate refresh token", `
		UPDATE users
		SET refresh_token_hash = $3
		WHERE id = $1 AND refresh_token_hash = $2 AND refresh_token_hash <> ''
	`, id.String(), expected, next)
}

func (r *UserRepository) conditional(ctx context.Context, operation, sql string, args ...any) (bool, error) {
	tag, err := r.db.Exec(ctx, sql, args...)
	if err != nil {
		return false, oops.With("operation", operation).Wrap(err)
	}
	return tag.RowsAffected() == 1, nil
}

func requireRow(tag pgconn.CommandTag, operation string, id ulid.ULID) error {
	if tag.RowsAffected() == 0 {
		return oops.With("operation", operation).With("user_id", id.String()).Wrap(auth.ErrNotFound)
	}
	return nil
}

// verificationHashKey is the unique index over pending verification hashes.
const verificationHashKey = "users_verification_hash_key"

// writeError maps unique violations to auth.ErrTokenCollision for the
// verification hash and auth.ErrDuplicate otherwise.
func writeError(operation string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
		sentinel := auth.ErrDuplicate
		if pgErr.ConstraintName == verificationHashKey {
			sentinel = auth.ErrTokenCollision
		}
		return oops.With("operation", operation).
			With("constraint", pgErr.ConstraintName).
			Wrap(sentinel)
	}
	return oops.With("operation", operation).Wrap(err)
}

func pendingArgs(p *auth.PendingToken) (*string, *time.Time) {
	if p == nil {
		return nil, nil
	}
	hash, expires := p.Hash, p.ExpiresAt
	return &hash, &expires
}

func pendingFrom(hash *string, expires *time.Time) *auth.PendingToken {
	if hash == nil || expires == nil {
		return nil
	}
	return &auth.PendingToken{Hash: *hash, ExpiresAt: *expires}
}

func marshalPreferences(p auth.Preferences) ([]byte, error) {
	if p.Diets == nil {
		p.Diets = []auth.Diet{}
	}
	if p.Allergies == nil {
		p.Allergies = []auth.Allergy{}
	}
	data, err := json.Marshal(p)
	if err != nil {
		return nil, oops.With("operation", "marshal preferences").Wrap(err)
	}
	return data, nil
}

func scanUser(row pgx.Row) (*auth.User, error) {
	var (
		user                              auth.User
		id                                string
		verificationHash, resetHash       *string
		verificationExpires, resetExpires *time.Time
		prefs                             []byte
	)
	err := row.Scan(
		&id,
		&user.UserName,
		&user.Email,
		&user.FullName,
		&user.PasswordHash,
		&user.EmailVerified,
		&verificationHash,
		&verificationExpires,
		&resetHash,
		&resetExpires,
		&user.RefreshTokenHash,
		&prefs,
		&user.Avatar.URL,
		&user.Avatar.LocalPath,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	user.ID, err = ulid.Parse(id)
	if err != nil {
		return nil, oops.With("operation", "parse user id").With("id", id).Wrap(err)
	}
	user.Verification = pendingFrom(verificationHash, verificationExpires)
	user.Reset = pendingFrom(resetHash, resetExpires)
	if len(prefs) > 0 {
		if err := json.Unmarshal(prefs, &user.Preferences); err != nil {
			return nil, oops.With("operation", "unmarshal preferences").With("id", id).Wrap(err)
		}
	}
	return &user, nil
}

// Compile-time interface check.
var _ auth.UserRepository = (*UserRepository)(nil)
