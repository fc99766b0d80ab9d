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

package reset

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kodexcore/kodex/events"
	"github.com/kodexcore/kodex/hashing"
	"github.com/kodexcore/kodex/idgen"
	"github.com/kodexcore/kodex/user"
)

// Config tunes token lifetime and the optional cooldown between
// successive accepted requests for the same identifier.
type Config struct {
	TokenTTL time.Duration
	// Cooldown, if non-zero, rejects a request for the same identifier
	// before the configured duration has elapsed since the last accepted
	// one.
	Cooldown time.Duration
}

// DefaultConfig is a 1h token lifetime with no cooldown.
func DefaultConfig() Config {
	return Config{TokenTTL: time.Hour}
}

// Service drives the password-reset flow.
//
// The per-user-id limiter can only be applied once the user is known,
// which happens after the identifier and IP reservations succeed (the
// service doesn't know which user an identifier names until it looks
// one up). So reservation happens in two stages: identifier + ip first,
// then — once a matching user is found — the user-id limiter, rolling
// back the first two if that also fails.
type Service struct {
	userRepo  user.Repository
	tokenRepo Repository
	hasher    *hashing.TokenHasher
	sender    Sender
	bus       *events.Bus
	cfg       Config

	identifierLimiter Limiter
	ipLimiter         Limiter
	userLimiter       Limiter
	cooldownLimiter   Limiter
}

// NewService creates a Service. cooldownLimiter may be nil to disable
// the cooldown check.
func NewService(userRepo user.Repository, tokenRepo Repository, sender Sender, bus *events.Bus, cfg Config,
	identifierLimiter, ipLimiter, userLimiter, cooldownLimiter Limiter) *Service {
	return &Service{
		userRepo:          userRepo,
		tokenRepo:         tokenRepo,
		hasher:            hashing.NewTokenHasher(),
		sender:            sender,
		bus:               bus,
		cfg:               cfg,
		identifierLimiter: identifierLimiter,
		ipLimiter:         ipLimiter,
		userLimiter:       userLimiter,
		cooldownLimiter:   cooldownLimiter,
	}
}

// RequestReset runs the full reset-request flow. It returns nil unless a
// rate limit (including the cooldown) rejects the request or the user
// lookup itself fails with a storage error — a missing identifier, or a
// dispatch failure, is swallowed so the caller can never distinguish
// "no such account" from "email sent".
func (s *Service) RequestReset(ctx context.Context, realmID, identifier, ipAddress string) error {
	if s.cooldownLimiter != nil {
		cooldownRes, err := s.cooldownLimiter.Reserve(ctx, identifier)
		if err != nil {
			s.publishRateLimitExceeded(realmID, "too soon")
			return fmt.Errorf("reset: too soon: %w", ErrRateLimitExceeded)
		}
		// The cooldown reservation is committed immediately: it tracks
		// accepted requests, not in-flight ones, so it never rolls back.
		_ = s.cooldownLimiter.Commit(ctx, cooldownRes)
	}

	identifierRes, err := s.identifierLimiter.Reserve(ctx, identifier)
	if err != nil {
		s.publishRateLimitExceeded(realmID, "identifier")
		return ErrRateLimitExceeded
	}
	ipRes, err := s.ipLimiter.Reserve(ctx, ipAddress)
	if err != nil {
		_ = s.identifierLimiter.Rollback(ctx, identifierRes)
		s.publishRateLimitExceeded(realmID, "ip")
		return ErrRateLimitExceeded
	}

	u, err := s.userRepo.GetByIdentifier(ctx, realmID, identifier)
	if err != nil {
		if errors.Is(err, user.ErrUserNotFound) {
			// Enumeration-safe: commit the reservations (the attempt
			// still counts) and return success without doing anything
			// else observable.
			_ = s.identifierLimiter.Commit(ctx, identifierRes)
			_ = s.ipLimiter.Commit(ctx, ipRes)
			return nil
		}
		_ = s.identifierLimiter.Rollback(ctx, identifierRes)
		_ = s.ipLimiter.Rollback(ctx, ipRes)
		return fmt.Errorf("reset: look up user: %w", err)
	}

	userRes, err := s.userLimiter.Reserve(ctx, u.ID)
	if err != nil {
		_ = s.identifierLimiter.Rollback(ctx, identifierRes)
		_ = s.ipLimiter.Rollback(ctx, ipRes)
		s.publishRateLimitExceeded(realmID, "user")
		return ErrRateLimitExceeded
	}

	if err := s.issueAndDispatch(ctx, realmID, u, identifier, ipAddress); err != nil {
		_ = s.identifierLimiter.Rollback(ctx, identifierRes)
		_ = s.ipLimiter.Rollback(ctx, ipRes)
		_ = s.userLimiter.Rollback(ctx, userRes)
		return nil
	}

	_ = s.identifierLimiter.Commit(ctx, identifierRes)
	_ = s.ipLimiter.Commit(ctx, ipRes)
	_ = s.userLimiter.Commit(ctx, userRes)
	return nil
}

func (s *Service) issueAndDispatch(ctx context.Context, realmID string, u *user.User, identifier, ipAddress string) error {
	now := time.Now()

	verifier, err := idgen.NewOpaqueSecret(32)
	if err != nil {
		return fmt.Errorf("reset: generate token: %w", err)
	}
	digest, err := s.hasher.Hash(verifier)
	if err != nil {
		return fmt.Errorf("reset: hash token: %w", err)
	}

	id := idgen.NewID()
	tok := &Token{
		ID:           id,
		RealmID:      realmID,
		UserID:       u.ID,
		TokenHash:    digest,
		ContactValue: identifier,
		IPAddress:    ipAddress,
		CreatedAt:    now,
		ExpiresAt:    now.Add(s.cfg.TokenTTL),
	}
	// Dispatch before persisting, so a failed send leaves no token row.
	raw := id + "." + verifier
	if err := s.sender.Send(ctx, identifier, raw); err != nil {
		return fmt.Errorf("reset: dispatch: %w", err)
	}

	if err := s.tokenRepo.Create(ctx, tok); err != nil {
		return fmt.Errorf("reset: persist token: %w", err)
	}

	return nil
}

// Verify reports the token's owning user id iff the credential is
// well-formed, unexpired, and not yet consumed. It does not consume it.
func (s *Service) Verify(ctx context.Context, realmID, presented string) (userID string, err error) {
	id, verifier, ok := splitCredential(presented)
	if !ok {
		return "", ErrInvalidToken
	}
	tok, err := s.tokenRepo.Get(ctx, realmID, id)
	if err != nil {
		return "", ErrInvalidToken
	}
	if !tok.IsLive() {
		return "", ErrInvalidToken
	}
	match, err := s.hasher.Verify(verifier, tok.TokenHash)
	if err != nil || !match {
		return "", ErrInvalidToken
	}
	return tok.UserID, nil
}

// Consume atomically marks the token used, returning the owning user id
// iff this call is the one that wins the race (one consume per token).
func (s *Service) Consume(ctx context.Context, realmID, presented string) (userID string, err error) {
	id, verifier, ok := splitCredential(presented)
	if !ok {
		return "", ErrInvalidToken
	}
	tok, err := s.tokenRepo.Get(ctx, realmID, id)
	if err != nil {
		return "", ErrInvalidToken
	}
	if !tok.IsLive() {
		return "", ErrInvalidToken
	}
	match, err := s.hasher.Verify(verifier, tok.TokenHash)
	if err != nil || !match {
		return "", ErrInvalidToken
	}

	won, err := s.tokenRepo.Consume(ctx, id, time.Now())
	if err != nil {
		return "", fmt.Errorf("reset: consume: %w", err)
	}
	if !won {
		return "", ErrInvalidToken
	}
	return tok.UserID, nil
}

// RevokeAllResetTokens invalidates every live reset token for userID,
// used when a password changes through any path so a stale reset link
// can't be replayed afterward.
func (s *Service) RevokeAllResetTokens(ctx context.Context, realmID, userID string) error {
	return s.tokenRepo.RevokeAllForUser(ctx, realmID, userID)
}

func (s *Service) publishRateLimitExceeded(realmID, scope string) {
	if s.bus == nil {
		return
	}
	evt := events.New(events.TypeRateLimitExceeded, realmID, events.SeverityWarning)
	evt.ActorType = events.ActorAnonymous
	evt.TargetType = "reset"
	evt.Result = events.ResultFailure
	evt.Payload["scope"] = scope
	s.bus.Publish(evt)
}

func splitCredential(presented string) (id, verifier string, ok bool) {
	for i := 0; i < len(presented); i++ {
		if presented[i] == '.' {
			if i == 0 || i == len(presented)-1 {
				return "", "", false
			}
			return presented[:i], presented[i+1:], true
		}
	}
	return "", "", false
}
