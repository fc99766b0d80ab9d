// Copyright 2026 The OpenTrusty Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/kodexcore/kodex/user"
)

// uniqueViolation is the Postgres SQLSTATE for a unique constraint
// violation (23505). See
// https://www.postgresql.org/docs/current/errcodes-appendix.html.
const uniqueViolation = "23505"

// mapUniqueViolation translates a unique-constraint violation on the
// users table's per-realm email/phone indexes to the domain sentinel
// the update package's mapRepoError matches on, so a duplicate identifier
// surfaces as a ConstraintViolationError instead of an opaque failure.
func mapUniqueViolation(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != uniqueViolation {
		return nil
	}
	switch pgErr.ConstraintName {
	case "users_realm_email_idx":
		return user.ErrEmailAlreadyExists
	case "users_realm_phone_idx":
		return user.ErrPhoneAlreadyExists
	}
	return nil
}

// UserRepository implements user.Repository over Postgres.
type UserRepository struct {
	db *DB
}

// NewUserRepository creates a new user repository.
func NewUserRepository(db *DB) *UserRepository {
	return &UserRepository{db: db}
}

// WithinTx runs fn inside a single Postgres transaction, satisfying
// update.Transactor so a batch of ApplyUserFields calls commits or
// rolls back together. Repository methods called with the ctx passed
// to fn automatically join the transaction via DB.querier.
func (r *UserRepository) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	tx, err := r.db.beginTx(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(withTx(ctx, tx)); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// Create persists a new user identity.
func (r *UserRepository) Create(ctx context.Context, u *user.User) error {
	attrs, err := json.Marshal(u.CustomAttributes)
	if err != nil {
		return fmt.Errorf("failed to encode custom attributes: %w", err)
	}

	now := time.Now()
	_, err = r.db.querier(ctx).Exec(ctx, `
		INSERT INTO users (
			id, realm_id, email, phone, password_hash, is_verified, status,
			custom_attributes, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`,
		u.ID, u.RealmID, u.Email, u.Phone, u.PasswordHash, u.IsVerified, string(u.Status),
		attrs, now, now,
	)
	if err != nil {
		if dup := mapUniqueViolation(err); dup != nil {
			return dup
		}
		return fmt.Errorf("failed to insert user: %w", err)
	}

	u.CreatedAt = now
	u.UpdatedAt = now
	return nil
}

func scanUser(row pgx.Row) (*user.User, error) {
	var u user.User
	var status string
	var attrs []byte
	var lastLogin sql.NullTime

	err := row.Scan(
		&u.ID, &u.RealmID, &u.Email, &u.Phone, &u.PasswordHash, &u.IsVerified, &status,
		&attrs, &u.CreatedAt, &u.UpdatedAt, &lastLogin,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, user.ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to scan user: %w", err)
	}

	u.Status = user.Status(status)
	if lastLogin.Valid {
		u.LastLoginAt = &lastLogin.Time
	}
	if len(attrs) > 0 {
		if err := json.Unmarshal(attrs, &u.CustomAttributes); err != nil {
			return nil, fmt.Errorf("failed to decode custom attributes: %w", err)
		}
	}

	return &u, nil
}

const selectUserColumns = `
	id, realm_id, email, phone, password_hash, is_verified, status,
	custom_attributes, created_at, updated_at, last_login_at
`

// GetByID retrieves a user by id within a realm.
func (r *UserRepository) GetByID(ctx context.Context, realmID, id string) (*user.User, error) {
	row := r.db.querier(ctx).QueryRow(ctx, `SELECT `+selectUserColumns+` FROM users WHERE realm_id = $1 AND id = $2`, realmID, id)
	return scanUser(row)
}

// GetByEmail retrieves a user by email within a realm.
func (r *UserRepository) GetByEmail(ctx context.Context, realmID, email string) (*user.User, error) {
	row := r.db.querier(ctx).QueryRow(ctx, `SELECT `+selectUserColumns+` FROM users WHERE realm_id = $1 AND email = $2`, realmID, email)
	return scanUser(row)
}

// GetByPhone retrieves a user by phone within a realm.
func (r *UserRepository) GetByPhone(ctx context.Context, realmID, phone string) (*user.User, error) {
	row := r.db.querier(ctx).QueryRow(ctx, `SELECT `+selectUserColumns+` FROM users WHERE realm_id = $1 AND phone = $2`, realmID, phone)
	return scanUser(row)
}

// GetByIdentifier resolves either an email or a phone number to a user.
func (r *UserRepository) GetByIdentifier(ctx context.Context, realmID, identifier string) (*user.User, error) {
	row := r.db.querier(ctx).QueryRow(ctx, `
		SELECT `+selectUserColumns+`
		FROM users
		WHERE realm_id = $1 AND (email = $2 OR phone = $2)
	`, realmID, identifier)
	return scanUser(row)
}

// Update persists changes to a user's mutable fields.
func (r *UserRepository) Update(ctx context.Context, u *user.User) error {
	result, err := r.db.querier(ctx).Exec(ctx, `
		UPDATE users SET email = $3, phone = $4, is_verified = $5, status = $6, updated_at = NOW()
		WHERE realm_id = $1 AND id = $2
	`, u.RealmID, u.ID, u.Email, u.Phone, u.IsVerified, string(u.Status))
	if err != nil {
		if dup := mapUniqueViolation(err); dup != nil {
			return dup
		}
		return fmt.Errorf("failed to update user: %w", err)
	}
	if result.RowsAffected() == 0 {
		return user.ErrUserNotFound
	}
	return nil
}

// UpdatePassword replaces a user's stored password digest.
func (r *UserRepository) UpdatePassword(ctx context.Context, realmID, userID, passwordHash string) error {
	result, err := r.db.querier(ctx).Exec(ctx, `
		UPDATE users SET password_hash = $3, updated_at = NOW()
		WHERE realm_id = $1 AND id = $2
	`, realmID, userID, passwordHash)
	if err != nil {
		return fmt.Errorf("failed to update password: %w", err)
	}
	if result.RowsAffected() == 0 {
		return user.ErrUserNotFound
	}
	return nil
}

// UpdateLastLogin stamps the most recent successful login time.
func (r *UserRepository) UpdateLastLogin(ctx context.Context, realmID, userID string, at time.Time) error {
	result, err := r.db.querier(ctx).Exec(ctx, `
		UPDATE users SET last_login_at = $3 WHERE realm_id = $1 AND id = $2
	`, realmID, userID, at)
	if err != nil {
		return fmt.Errorf("failed to update last login: %w", err)
	}
	if result.RowsAffected() == 0 {
		return user.ErrUserNotFound
	}
	return nil
}

// Delete removes a user record.
func (r *UserRepository) Delete(ctx context.Context, realmID, userID string) error {
	result, err := r.db.querier(ctx).Exec(ctx, `DELETE FROM users WHERE realm_id = $1 AND id = $2`, realmID, userID)
	if err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}
	if result.RowsAffected() == 0 {
		return user.ErrUserNotFound
	}
	return nil
}

// GetProfile retrieves the zero-or-one PII record attached to a user.
func (r *UserRepository) GetProfile(ctx context.Context, realmID, userID string) (*user.Profile, error) {
	var p user.Profile
	p.UserID = userID
	err := r.db.querier(ctx).QueryRow(ctx, `
		SELECT first_name, last_name, address, picture_url, updated_at
		FROM user_profiles up
		JOIN users u ON u.id = up.user_id
		WHERE u.realm_id = $1 AND up.user_id = $2
	`, realmID, userID).Scan(&p.FirstName, &p.LastName, &p.Address, &p.PictureURL, &p.UpdatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, user.ErrProfileNotFound
		}
		return nil, fmt.Errorf("failed to get profile: %w", err)
	}
	return &p, nil
}

// UpsertProfile creates or replaces a user's profile.
func (r *UserRepository) UpsertProfile(ctx context.Context, p *user.Profile) error {
	_, err := r.db.querier(ctx).Exec(ctx, `
		INSERT INTO user_profiles (user_id, first_name, last_name, address, picture_url, updated_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
		ON CONFLICT (user_id) DO UPDATE SET
			first_name = EXCLUDED.first_name,
			last_name = EXCLUDED.last_name,
			address = EXCLUDED.address,
			picture_url = EXCLUDED.picture_url,
			updated_at = NOW()
	`, p.UserID, p.FirstName, p.LastName, p.Address, p.PictureURL)
	if err != nil {
		return fmt.Errorf("failed to upsert profile: %w", err)
	}
	return nil
}

// GetCustomAttributes returns a user's free-form attribute bag.
func (r *UserRepository) GetCustomAttributes(ctx context.Context, realmID, userID string) (map[string]any, error) {
	var attrs []byte
	err := r.db.querier(ctx).QueryRow(ctx, `
		SELECT custom_attributes FROM users WHERE realm_id = $1 AND id = $2
	`, realmID, userID).Scan(&attrs)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, user.ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get custom attributes: %w", err)
	}

	out := map[string]any{}
	if len(attrs) > 0 {
		if err := json.Unmarshal(attrs, &out); err != nil {
			return nil, fmt.Errorf("failed to decode custom attributes: %w", err)
		}
	}
	return out, nil
}

// SetCustomAttributes replaces a user's entire attribute bag.
func (r *UserRepository) SetCustomAttributes(ctx context.Context, realmID, userID string, attrs map[string]any) error {
	encoded, err := json.Marshal(attrs)
	if err != nil {
		return fmt.Errorf("failed to encode custom attributes: %w", err)
	}

	result, err := r.db.querier(ctx).Exec(ctx, `
		UPDATE users SET custom_attributes = $3, updated_at = NOW()
		WHERE realm_id = $1 AND id = $2
	`, realmID, userID, encoded)
	if err != nil {
		return fmt.Errorf("failed to set custom attributes: %w", err)
	}
	if result.RowsAffected() == 0 {
		return user.ErrUserNotFound
	}
	return nil
}
