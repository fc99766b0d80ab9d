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

// Package session tracks server-side session records: who is logged in,
// from where, and for how long. Kodex does not use sessions to carry
// authorization state (that's the token's job); a session row exists so
// a host can list, audit, and revoke a user's active logins.
package session

import (
	"context"
	"errors"
	"time"
)

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrSessionExpired  = errors.New("session expired")
)

// Session is a realm-scoped record of an authenticated user's presence.
type Session struct {
	ID         string
	RealmID    string
	UserID     string
	IPAddress  string
	UserAgent  string
	ExpiresAt  time.Time
	CreatedAt  time.Time
	LastSeenAt time.Time
}

// IsExpired reports whether the session has passed its absolute expiry.
func (s *Session) IsExpired() bool {
	return time.Now().After(s.ExpiresAt)
}

// IsIdle reports whether the session has been idle for longer than
// idleTimeout. A zero idleTimeout disables idle expiry, matching
// lockout.Disabled's zero-means-off convention.
func (s *Session) IsIdle(idleTimeout time.Duration) bool {
	if idleTimeout <= 0 {
		return false
	}
	return time.Since(s.LastSeenAt) > idleTimeout
}

// Repository abstracts session persistence.
type Repository interface {
	Create(ctx context.Context, s *Session) error
	Get(ctx context.Context, realmID, sessionID string) (*Session, error)
	Update(ctx context.Context, s *Session) error
	Delete(ctx context.Context, realmID, sessionID string) error
	DeleteByUserID(ctx context.Context, realmID, userID string) error
	DeleteExpired(ctx context.Context) error
}
