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

// Package token issues and verifies access/refresh token pairs and runs
// the refresh state machine: first-use detection, grace-period re-use,
// and family-wide revocation on replay.
package token

import (
	"context"
	"errors"
	"time"
)

// Type distinguishes access tokens from refresh tokens.
type Type string

const (
	TypeAccess  Type = "access"
	TypeRefresh Type = "refresh"
)

var (
	ErrNotFound          = errors.New("token: not found")
	ErrRevoked           = errors.New("token: revoked")
	ErrExpired           = errors.New("token: expired")
	ErrFamilyCompromised = errors.New("token: family compromised")
)

// Token is a persisted record of an issued token. Access tokens are
// recorded only when the host configures PersistAccess; refresh tokens
// are always recorded, since the refresh state machine depends on
// looking them up by id.
type Token struct {
	ID            string
	RealmID       string
	UserID        string
	TokenHash     string
	Type          Type
	Revoked       bool
	CreatedAt     time.Time
	ExpiresAt     time.Time
	TokenFamily   string
	ParentTokenID *string
	FirstUsedAt   *time.Time
	LastUsedAt    *time.Time
}

// IsExpired reports whether t's expiry has passed.
func (t *Token) IsExpired() bool { return time.Now().After(t.ExpiresAt) }

// Repository persists token records and supports the conditional update
// the refresh state machine needs to detect first-use without a race.
//
// Lookup is by id, not by secret: the opaque credential a caller presents
// is "<id>.<verifier>" (see Manager), so a lookup never needs to query by
// a salted hash it cannot recompute. TokenHash stores the salted digest
// of the verifier half, checked after the row is fetched.
type Repository interface {
	Create(ctx context.Context, t *Token) error
	Get(ctx context.Context, realmID, id string) (*Token, error)

	// MarkFirstUsed sets firstUsedAt = at WHERE id = id AND firstUsedAt IS
	// NULL, atomically. won reports whether this call's row was the one
	// that made the transition (i.e. whether the caller won the race).
	// firstUsedAt is always the authoritative value stored after the call
	// returns — when won is false it is the time recorded by whichever
	// concurrent caller won, not the stale value the caller may have read
	// before calling MarkFirstUsed. Callers that branch on first-use
	// freshness (e.g. the refresh state machine's grace-period check) must
	// use this returned value, not an earlier Get.
	MarkFirstUsed(ctx context.Context, id string, at time.Time) (firstUsedAt time.Time, won bool, err error)

	UpdateLastUsed(ctx context.Context, id string, at time.Time) error
	Revoke(ctx context.Context, id string) error
	RevokeAllForUser(ctx context.Context, realmID, userID string) error
	RevokeFamily(ctx context.Context, tokenFamily string) error
}
