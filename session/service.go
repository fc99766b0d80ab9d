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

package session

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/kodexcore/kodex/events"
)

// Service implements session lifecycle rules: creation, activity
// tracking, idle/absolute expiry, and destruction.
type Service struct {
	repo        Repository
	lifetime    time.Duration
	idleTimeout time.Duration
	bus         *events.Bus
}

// NewService creates a session service. bus may be nil, in which case no
// SESSION_* events are published.
func NewService(repo Repository, lifetime, idleTimeout time.Duration, bus *events.Bus) *Service {
	return &Service{repo: repo, lifetime: lifetime, idleTimeout: idleTimeout, bus: bus}
}

// Create starts a new session for userID after successful authentication.
func (s *Service) Create(ctx context.Context, realmID, userID, ipAddress, userAgent string) (*Session, error) {
	now := time.Now()
	sess := &Session{
		ID:         generateSessionID(),
		RealmID:    realmID,
		UserID:     userID,
		IPAddress:  ipAddress,
		UserAgent:  userAgent,
		ExpiresAt:  now.Add(s.lifetime),
		CreatedAt:  now,
		LastSeenAt: now,
	}

	if err := s.repo.Create(ctx, sess); err != nil {
		return nil, fmt.Errorf("session: create: %w", err)
	}

	if s.bus != nil {
		evt := events.New(events.TypeSessionCreated, realmID, events.SeverityInfo)
		evt.ActorID = userID
		evt.ActorType = events.ActorUser
		evt.TargetID = sess.ID
		evt.TargetType = "session"
		evt.Result = events.ResultSuccess
		s.bus.Publish(evt)
	}

	return sess, nil
}

// Get retrieves a session, expiring (and deleting) it if it has passed
// its absolute or idle timeout.
func (s *Service) Get(ctx context.Context, realmID, sessionID string) (*Session, error) {
	sess, err := s.repo.Get(ctx, realmID, sessionID)
	if err != nil {
		return nil, ErrSessionNotFound
	}

	if sess.IsExpired() || sess.IsIdle(s.idleTimeout) {
		_ = s.repo.Delete(ctx, realmID, sessionID)
		s.publishExpired(sess)
		return nil, ErrSessionExpired
	}

	return sess, nil
}

// Refresh bumps a session's last-seen timestamp.
func (s *Service) Refresh(ctx context.Context, realmID, sessionID string) error {
	sess, err := s.Get(ctx, realmID, sessionID)
	if err != nil {
		return err
	}

	sess.LastSeenAt = time.Now()
	if err := s.repo.Update(ctx, sess); err != nil {
		return fmt.Errorf("session: refresh: %w", err)
	}

	if s.bus != nil {
		evt := events.New(events.TypeSessionActivity, realmID, events.SeverityInfo)
		evt.ActorID = sess.UserID
		evt.ActorType = events.ActorUser
		evt.TargetID = sess.ID
		evt.TargetType = "session"
		evt.Result = events.ResultSuccess
		s.bus.Publish(evt)
	}

	return nil
}

// Destroy ends a single session, typically on logout.
func (s *Service) Destroy(ctx context.Context, realmID, sessionID string) error {
	sess, err := s.repo.Get(ctx, realmID, sessionID)
	if err != nil {
		return fmt.Errorf("session: destroy: %w", err)
	}
	if err := s.repo.Delete(ctx, realmID, sessionID); err != nil {
		return fmt.Errorf("session: destroy: %w", err)
	}

	if s.bus != nil {
		evt := events.New(events.TypeSessionRevoked, realmID, events.SeverityInfo)
		evt.ActorID = sess.UserID
		evt.ActorType = events.ActorUser
		evt.TargetID = sess.ID
		evt.TargetType = "session"
		evt.Result = events.ResultSuccess
		s.bus.Publish(evt)
	}

	return nil
}

// DestroyAllForUser ends every session belonging to userID in realmID, for
// "sign out everywhere" and forced-logout-on-password-change flows.
func (s *Service) DestroyAllForUser(ctx context.Context, realmID, userID string) error {
	if err := s.repo.DeleteByUserID(ctx, realmID, userID); err != nil {
		return fmt.Errorf("session: destroy all for user: %w", err)
	}

	if s.bus != nil {
		evt := events.New(events.TypeSessionRevoked, realmID, events.SeverityInfo)
		evt.ActorID = userID
		evt.ActorType = events.ActorUser
		evt.TargetType = "session"
		evt.Result = events.ResultSuccess
		evt.Payload["scope"] = "all"
		s.bus.Publish(evt)
	}

	return nil
}

// CleanupExpired deletes every session past its absolute expiry, across
// all realms. Intended to be called periodically by a host-owned ticker.
func (s *Service) CleanupExpired(ctx context.Context) error {
	return s.repo.DeleteExpired(ctx)
}

func (s *Service) publishExpired(sess *Session) {
	if s.bus == nil {
		return
	}
	evt := events.New(events.TypeSessionExpired, sess.RealmID, events.SeverityInfo)
	evt.ActorID = sess.UserID
	evt.ActorType = events.ActorUser
	evt.TargetID = sess.ID
	evt.TargetType = "session"
	evt.Result = events.ResultSuccess
	s.bus.Publish(evt)
}

func generateSessionID() string {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		panic(err)
	}
	return base64.RawURLEncoding.EncodeToString(b)
}
