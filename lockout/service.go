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

package lockout

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kodexcore/kodex/events"
	"github.com/kodexcore/kodex/idgen"
)

// Status is the result of CheckLockout.
type Status struct {
	Locked   bool
	UnlockAt *time.Time
}

// Service enforces one Policy for a realm.
type Service struct {
	repo   Repository
	policy Policy
	bus    *events.Bus
}

// NewService creates a Service enforcing policy.
func NewService(repo Repository, policy Policy, bus *events.Bus) *Service {
	return &Service{repo: repo, policy: policy, bus: bus}
}

// RecordFailedAttempt inserts a failure row and, if the sliding window
// now holds at least Threshold rows for identifier, upserts a lock and
// publishes ACCOUNT_LOCKED. A Disabled policy (Threshold == 0) never
// locks.
func (s *Service) RecordFailedAttempt(ctx context.Context, realmID, identifier, ipAddress, userID, reason string) error {
	now := time.Now()
	attempt := Attempt{
		ID:         idgen.NewID(),
		RealmID:    realmID,
		Identifier: identifier,
		IPAddress:  ipAddress,
		UserID:     userID,
		Reason:     reason,
		OccurredAt: now,
	}
	if err := s.repo.InsertAttempt(ctx, attempt); err != nil {
		return fmt.Errorf("lockout: insert attempt: %w", err)
	}

	if s.policy.Threshold <= 0 {
		return nil
	}

	count, err := s.repo.CountAttemptsSince(ctx, realmID, identifier, now.Add(-s.policy.Window))
	if err != nil {
		return fmt.Errorf("lockout: count attempts: %w", err)
	}
	if count < s.policy.Threshold {
		return nil
	}

	var unlockAt *time.Time
	if s.policy.LockDuration > 0 {
		at := now.Add(s.policy.LockDuration)
		unlockAt = &at
	}
	lock := &Lock{RealmID: realmID, Identifier: identifier, LockedAt: now, UnlockAt: unlockAt}
	if err := s.repo.UpsertLock(ctx, lock); err != nil {
		return fmt.Errorf("lockout: upsert lock: %w", err)
	}

	s.publish(events.TypeAccountLocked, realmID, userID, events.ActorSystem, map[string]any{"identifier": identifier})
	return nil
}

// CheckLockout reports whether identifier is currently locked as of now,
// auto-clearing an expired lock so callers never see a stale one.
func (s *Service) CheckLockout(ctx context.Context, realmID, identifier string, now time.Time) (Status, error) {
	lock, err := s.repo.GetLock(ctx, realmID, identifier)
	if err != nil {
		if errors.Is(err, ErrLockNotFound) {
			return Status{Locked: false}, nil
		}
		return Status{}, fmt.Errorf("lockout: get lock: %w", err)
	}

	if !lock.IsActive(now) {
		if err := s.repo.DeleteLock(ctx, realmID, identifier); err != nil {
			return Status{}, fmt.Errorf("lockout: clear expired lock: %w", err)
		}
		return Status{Locked: false}, nil
	}

	return Status{Locked: true, UnlockAt: lock.UnlockAt}, nil
}

// ClearFailedAttempts wipes the sliding window for identifier, called on
// a successful login.
func (s *Service) ClearFailedAttempts(ctx context.Context, realmID, identifier string) error {
	return s.repo.DeleteAttempts(ctx, realmID, identifier)
}

// Unlock removes identifier's lock (if any) and publishes
// ACCOUNT_UNLOCKED. actorID is the admin or system principal performing
// the unlock, recorded on the event.
func (s *Service) Unlock(ctx context.Context, realmID, identifier, actorID string) error {
	if err := s.repo.DeleteLock(ctx, realmID, identifier); err != nil {
		return fmt.Errorf("lockout: delete lock: %w", err)
	}
	s.publish(events.TypeAccountUnlocked, realmID, actorID, events.ActorAdmin, map[string]any{"identifier": identifier})
	return nil
}

func (s *Service) publish(eventType, realmID, actorID string, actorType events.ActorType, payload map[string]any) {
	if s.bus == nil {
		return
	}
	evt := events.New(eventType, realmID, events.SeverityWarning)
	evt.ActorID = actorID
	evt.ActorType = actorType
	evt.TargetType = "user"
	evt.Result = events.ResultSuccess
	for k, v := range payload {
		evt.Payload[k] = v
	}
	s.bus.Publish(evt)
}
