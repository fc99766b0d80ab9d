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
	"encoding/json"
	"fmt"
	"time"

	"github.com/kodexcore/kodex/audit"
)

// AuditRepository implements audit.Repository over Postgres.
type AuditRepository struct {
	db *DB
}

// NewAuditRepository creates a new audit repository.
func NewAuditRepository(db *DB) *AuditRepository {
	return &AuditRepository{db: db}
}

// Insert appends one audit record.
func (r *AuditRepository) Insert(ctx context.Context, rec audit.Record) error {
	metadata, err := json.Marshal(rec.Metadata)
	if err != nil {
		return fmt.Errorf("failed to encode audit metadata: %w", err)
	}

	_, err = r.db.pool.Exec(ctx, `
		INSERT INTO audit_logs (
			id, event_type, occurred_at, realm_id, actor_id, actor_type,
			target_id, target_type, result, session_id, severity, metadata
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`,
		rec.ID, rec.EventType, rec.Timestamp, rec.RealmID, rec.ActorID, string(rec.ActorType),
		rec.TargetID, rec.TargetType, string(rec.Result), rec.SessionID, string(rec.Severity), metadata,
	)
	if err != nil {
		return fmt.Errorf("failed to insert audit record: %w", err)
	}
	return nil
}

// DeleteOlderThan prunes every record whose occurred_at precedes cutoff,
// returning the number of rows removed.
func (r *AuditRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := r.db.pool.Exec(ctx, `DELETE FROM audit_logs WHERE occurred_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete old audit records: %w", err)
	}
	return result.RowsAffected(), nil
}
