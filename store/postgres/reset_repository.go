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
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/kodexcore/kodex/reset"
)

// ResetTokenRepository implements reset.Repository over Postgres.
type ResetTokenRepository struct {
	db *DB
}

// NewResetTokenRepository creates a new password-reset token repository.
func NewResetTokenRepository(db *DB) *ResetTokenRepository {
	return &ResetTokenRepository{db: db}
}

// Create persists a new password-reset token.
func (r *ResetTokenRepository) Create(ctx context.Context, t *reset.Token) error {
	_, err := r.db.pool.Exec(ctx, `
		INSERT INTO password_reset_tokens (
			id, realm_id, user_id, token_hash, contact_value, ip_address, created_at, expires_at, used_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, t.ID, t.RealmID, t.UserID, t.TokenHash, t.ContactValue, t.IPAddress, t.CreatedAt, t.ExpiresAt, t.UsedAt)
	if err != nil {
		return fmt.Errorf("failed to insert reset token: %w", err)
	}
	return nil
}

// Get retrieves a reset token by id within a realm.
func (r *ResetTokenRepository) Get(ctx context.Context, realmID, id string) (*reset.Token, error) {
	var t reset.Token
	var usedAt sql.NullTime

	err := r.db.pool.QueryRow(ctx, `
		SELECT id, realm_id, user_id, token_hash, contact_value, ip_address, created_at, expires_at, used_at
		FROM password_reset_tokens
		WHERE realm_id = $1 AND id = $2
	`, realmID, id).Scan(
		&t.ID, &t.RealmID, &t.UserID, &t.TokenHash, &t.ContactValue, &t.IPAddress, &t.CreatedAt, &t.ExpiresAt, &usedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, fmt.Errorf("reset: token not found")
		}
		return nil, fmt.Errorf("failed to get reset token: %w", err)
	}
	if usedAt.Valid {
		t.UsedAt = &usedAt.Time
	}
	return &t, nil
}

// Consume atomically stamps used_at if and only if the token has not
// already been consumed, so a reset token can never be redeemed twice.
func (r *ResetTokenRepository) Consume(ctx context.Context, id string, at time.Time) (bool, error) {
	result, err := r.db.pool.Exec(ctx, `
		UPDATE password_reset_tokens SET used_at = $2 WHERE id = $1 AND used_at IS NULL
	`, id, at)
	if err != nil {
		return false, fmt.Errorf("failed to consume reset token: %w", err)
	}
	return result.RowsAffected() > 0, nil
}

// RevokeAllForUser marks every outstanding reset token for a user as
// used, preventing a stale token from being redeemed after the account
// was otherwise secured (e.g. after an explicit password change).
func (r *ResetTokenRepository) RevokeAllForUser(ctx context.Context, realmID, userID string) error {
	_, err := r.db.pool.Exec(ctx, `
		UPDATE password_reset_tokens SET used_at = NOW()
		WHERE realm_id = $1 AND user_id = $2 AND used_at IS NULL
	`, realmID, userID)
	if err != nil {
		return fmt.Errorf("failed to revoke reset tokens: %w", err)
	}
	return nil
}
