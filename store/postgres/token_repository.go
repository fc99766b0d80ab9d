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

	"github.com/kodexcore/kodex/token"
)

// TokenRepository implements token.Repository over Postgres.
type TokenRepository struct {
	db *DB
}

// NewTokenRepository creates a new token repository.
func NewTokenRepository(db *DB) *TokenRepository {
	return &TokenRepository{db: db}
}

// Create persists a new access or refresh token record.
func (r *TokenRepository) Create(ctx context.Context, t *token.Token) error {
	_, err := r.db.pool.Exec(ctx, `
		INSERT INTO tokens (
			id, realm_id, user_id, token_hash, token_type, revoked,
			created_at, expires_at, token_family, parent_token_id, first_used_at, last_used_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`,
		t.ID, t.RealmID, t.UserID, t.TokenHash, string(t.Type), t.Revoked,
		t.CreatedAt, t.ExpiresAt, t.TokenFamily, t.ParentTokenID, t.FirstUsedAt, t.LastUsedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert token: %w", err)
	}
	return nil
}

// Get retrieves a token by id within a realm.
func (r *TokenRepository) Get(ctx context.Context, realmID, id string) (*token.Token, error) {
	var t token.Token
	var tokenType string
	var parentTokenID sql.NullString
	var firstUsed, lastUsed sql.NullTime

	err := r.db.pool.QueryRow(ctx, `
		SELECT id, realm_id, user_id, token_hash, token_type, revoked,
			created_at, expires_at, token_family, parent_token_id, first_used_at, last_used_at
		FROM tokens
		WHERE realm_id = $1 AND id = $2
	`, realmID, id).Scan(
		&t.ID, &t.RealmID, &t.UserID, &t.TokenHash, &tokenType, &t.Revoked,
		&t.CreatedAt, &t.ExpiresAt, &t.TokenFamily, &parentTokenID, &firstUsed, &lastUsed,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, token.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get token: %w", err)
	}

	t.Type = token.Type(tokenType)
	if parentTokenID.Valid {
		t.ParentTokenID = &parentTokenID.String
	}
	if firstUsed.Valid {
		t.FirstUsedAt = &firstUsed.Time
	}
	if lastUsed.Valid {
		t.LastUsedAt = &lastUsed.Time
	}

	return &t, nil
}

// MarkFirstUsed atomically stamps first_used_at if and only if it is
// still unset, so two concurrent refresh attempts can never both
// observe themselves as the first use. The query always returns the
// authoritative first_used_at in the same round trip — the losing call
// gets back the winner's timestamp rather than having to re-Get and risk
// acting on a stale value.
func (r *TokenRepository) MarkFirstUsed(ctx context.Context, id string, at time.Time) (time.Time, bool, error) {
	var firstUsedAt time.Time
	var won bool

	err := r.db.pool.QueryRow(ctx, `
		WITH updated AS (
			UPDATE tokens SET first_used_at = $2 WHERE id = $1 AND first_used_at IS NULL
			RETURNING first_used_at
		)
		SELECT first_used_at, true FROM updated
		UNION ALL
		SELECT first_used_at, false FROM tokens
		WHERE id = $1 AND NOT EXISTS (SELECT 1 FROM updated)
	`, id, at).Scan(&firstUsedAt, &won)
	if err != nil {
		if err == pgx.ErrNoRows {
			return time.Time{}, false, token.ErrNotFound
		}
		return time.Time{}, false, fmt.Errorf("failed to mark token first used: %w", err)
	}
	return firstUsedAt, won, nil
}

// UpdateLastUsed stamps the most recent use of a token.
func (r *TokenRepository) UpdateLastUsed(ctx context.Context, id string, at time.Time) error {
	_, err := r.db.pool.Exec(ctx, `UPDATE tokens SET last_used_at = $2 WHERE id = $1`, id, at)
	if err != nil {
		return fmt.Errorf("failed to update token last used: %w", err)
	}
	return nil
}

// Revoke flags a single token record as revoked.
func (r *TokenRepository) Revoke(ctx context.Context, id string) error {
	result, err := r.db.pool.Exec(ctx, `UPDATE tokens SET revoked = true WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to revoke token: %w", err)
	}
	if result.RowsAffected() == 0 {
		return token.ErrNotFound
	}
	return nil
}

// RevokeAllForUser revokes every token issued to userID in realmID.
func (r *TokenRepository) RevokeAllForUser(ctx context.Context, realmID, userID string) error {
	_, err := r.db.pool.Exec(ctx, `
		UPDATE tokens SET revoked = true WHERE realm_id = $1 AND user_id = $2
	`, realmID, userID)
	if err != nil {
		return fmt.Errorf("failed to revoke user tokens: %w", err)
	}
	return nil
}

// RevokeFamily revokes every token sharing tokenFamily, used on replay
// detection to kill a potentially-compromised refresh chain outright.
func (r *TokenRepository) RevokeFamily(ctx context.Context, tokenFamily string) error {
	_, err := r.db.pool.Exec(ctx, `
		UPDATE tokens SET revoked = true WHERE token_family = $1
	`, tokenFamily)
	if err != nil {
		return fmt.Errorf("failed to revoke token family: %w", err)
	}
	return nil
}
