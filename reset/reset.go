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

// Package reset implements the password-reset flow: rate-limited,
// enumeration-safe request handling and single-use opaque tokens.
package reset

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrRateLimitExceeded is the one domain error RequestReset returns —
	// a missing user and a dispatch failure are both swallowed behind a
	// successful response so the API never leaks whether an identifier is
	// registered. Only a storage error from the user lookup propagates.
	ErrRateLimitExceeded = errors.New("reset: rate limit exceeded")
	ErrInvalidToken      = errors.New("reset: invalid or expired token")
)

// Token is a persisted password-reset token. The opaque credential a
// caller holds is "<id>.<verifier>" (the same selector/verifier shape
// used by the token package, for the same reason: TokenHash is a salted
// digest that can only verify a candidate already in hand, not index
// one).
type Token struct {
	ID           string
	RealmID      string
	UserID       string
	TokenHash    string
	ContactValue string
	IPAddress    string
	CreatedAt    time.Time
	ExpiresAt    time.Time
	UsedAt       *time.Time
}

// IsLive reports whether t is still usable: not expired, not consumed.
func (t *Token) IsLive() bool {
	return t.UsedAt == nil && time.Now().Before(t.ExpiresAt)
}

// Repository persists reset tokens.
type Repository interface {
	Create(ctx context.Context, t *Token) error
	Get(ctx context.Context, realmID, id string) (*Token, error)

	// Consume sets usedAt = now WHERE id = id AND usedAt IS NULL,
	// atomically. ok reports whether this call's row made the transition.
	Consume(ctx context.Context, id string, at time.Time) (ok bool, err error)

	// RevokeAllForUser nulls out (marks used) every live reset token for
	// userID, used on password change so a stale reset link can't be
	// replayed after the password it would reset has already changed.
	RevokeAllForUser(ctx context.Context, realmID, userID string) error
}

// Sender dispatches the reset message (email, SMS, ...) to contactValue.
// The core ships no implementation: delivery is inherently host-specific
// infrastructure.
type Sender interface {
	Send(ctx context.Context, contactValue, rawToken string) error
}
