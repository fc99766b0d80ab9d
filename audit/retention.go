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

package audit

import (
	"context"
	"time"
)

// RetentionService prunes audit records older than a configured period.
type RetentionService struct {
	repo   Repository
	period time.Duration
}

// NewRetentionService creates a retention service that keeps records for
// period before they become eligible for cleanup.
func NewRetentionService(repo Repository, period time.Duration) *RetentionService {
	return &RetentionService{repo: repo, period: period}
}

// CleanupOlderThan deletes every record timestamped before cutoff and
// returns the number removed. Idempotent: a second call with the same
// cutoff removes nothing further.
func (s *RetentionService) CleanupOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	return s.repo.DeleteOlderThan(ctx, cutoff)
}

// Cleanup deletes every record older than the configured retention
// period, measured from now.
func (s *RetentionService) Cleanup(ctx context.Context) (int64, error) {
	return s.CleanupOlderThan(ctx, time.Now().Add(-s.period))
}
