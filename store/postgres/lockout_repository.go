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

	"github.com/kodexcore/kodex/lockout"
)

// LockoutRepository implements lockout.Repository over Postgres.
type LockoutRepository struct {
	db *DB
}

// NewLockoutRepository creates a new lockout repository.
func NewLockoutRepository(db *DB) *LockoutRepository {
	return &LockoutRepository{db: db}
}

// InsertAttempt records one failed login attempt.
func (r *LockoutRepository) InsertAttempt(ctx context.Context, a lockout.Attempt) error {
	_, err := r.db.pool.Exec(ctx, `
		INSERT INTO failed_login_attempts (id, realm_id, identifier, ip_address, user_id, reason, occurred_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, a.ID, a.RealmID, a.Identifier, a.IPAddress, a.UserID, a.Reason, a.OccurredAt)
	if err != nil {
		return fmt.Errorf("failed to insert failed login attempt: %w", err)
	}
	return nil
}

// CountAttemptsSince counts failed attempts for identifier in the
// sliding window starting at since.
func (r *LockoutRepository) CountAttemptsSince(ctx context.Context, realmID, identifier string, since time.Time) (int, error) {
	var count int
	err := r.db.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM failed_login_attempts
		WHERE realm_id = $1 AND identifier = $2 AND occurred_at > $3
	`, realmID, identifier, since).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count failed login attempts: %w", err)
	}
	return count, nil
}

// DeleteAttempts clears the sliding window for identifier, called on a
// successful login.
func (r *LockoutRepository) DeleteAttempts(ctx context.Context, realmID, identifier string) error {
	_, err := r.db.pool.Exec(ctx, `
		DELETE FROM failed_login_attempts WHERE realm_id = $1 AND identifier = $2
	`, realmID, identifier)
	if err != nil {
		return fmt.Errorf("failed to delete failed login attempts: %w", err)
	}
	return nil
}

// GetLock retrieves identifier's lock, if any.
func (r *LockoutRepository) GetLock(ctx context.Context, realmID, identifier string) (*lockout.Lock, error) {
	var l lockout.Lock
	var unlockAt sql.NullTime

	err := r.db.pool.QueryRow(ctx, `
		SELECT realm_id, identifier, locked_at, unlock_at
		FROM account_lockouts
		WHERE realm_id = $1 AND identifier = $2
	`, realmID, identifier).Scan(&l.RealmID, &l.Identifier, &l.LockedAt, &unlockAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, lockout.ErrLockNotFound
		}
		return nil, fmt.Errorf("failed to get lock: %w", err)
	}
	if unlockAt.Valid {
		l.UnlockAt = &unlockAt.Time
	}
	return &l, nil
}

// UpsertLock creates or replaces identifier's lock.
func (r *LockoutRepository) UpsertLock(ctx context.Context, l *lockout.Lock) error {
	_, err := r.db.pool.Exec(ctx, `
		INSERT INTO account_lockouts (realm_id, identifier, locked_at, unlock_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (realm_id, identifier) DO UPDATE SET
			locked_at = EXCLUDED.locked_at,
			unlock_at = EXCLUDED.unlock_at
	`, l.RealmID, l.Identifier, l.LockedAt, l.UnlockAt)
	if err != nil {
		return fmt.Errorf("failed to upsert lock: %w", err)
	}
	return nil
}

// DeleteLock removes identifier's lock, if any.
func (r *LockoutRepository) DeleteLock(ctx context.Context, realmID, identifier string) error {
	_, err := r.db.pool.Exec(ctx, `
		DELETE FROM account_lockouts WHERE realm_id = $1 AND identifier = $2
	`, realmID, identifier)
	if err != nil {
		return fmt.Errorf("failed to delete lock: %w", err)
	}
	return nil
}
