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

package token

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/kodexcore/kodex/events"
	"github.com/kodexcore/kodex/hashing"
	"github.com/kodexcore/kodex/idgen"
)

// RotationPolicy controls what Refresh does to the refresh token itself
// once it verifies. The family-wide revocation on replay detection
// applies regardless of policy.
type RotationPolicy int

const (
	// RotationAlways issues a new refresh token (and access token) on
	// every successful Refresh call, chaining it to its parent.
	RotationAlways RotationPolicy = iota
	// RotationNone re-issues only the access token; the refresh token is
	// not replaced and no new one is returned. As under RotationAlways, a
	// re-use of the same refresh token after the grace period is treated
	// as a replay and revokes its family.
	RotationNone
)

// Config tunes a Manager's lifetimes, persistence, and rotation policy.
type Config struct {
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	PersistAccess bool
	Rotation      RotationPolicy
	// GracePeriod tolerates a client retrying a refresh call with the same
	// token shortly after the first use succeeded: a re-use inside this
	// window returns the original child pair instead of flagging replay.
	GracePeriod time.Duration
}

// DefaultConfig is a reasonable everyday default: 1h access tokens, 30
// day refresh tokens, always-rotate, a 5s grace period.
func DefaultConfig() Config {
	return Config{
		AccessTTL:   time.Hour,
		RefreshTTL:  30 * 24 * time.Hour,
		Rotation:    RotationAlways,
		GracePeriod: 5 * time.Second,
	}
}

// Manager issues and verifies token pairs and drives the refresh state
// machine described in the package doc.
type Manager struct {
	repo   Repository
	signer Signer
	hasher *hashing.TokenHasher
	bus    *events.Bus
	replay ReplayCache
	cfg    Config
}

// NewManager creates a Manager. bus may be nil in tests that don't care
// about published events. replay may be nil, in which case an in-process
// MemoryReplayCache is used.
func NewManager(repo Repository, signer Signer, bus *events.Bus, replay ReplayCache, cfg Config) *Manager {
	if replay == nil {
		replay = NewMemoryReplayCache()
	}
	return &Manager{repo: repo, signer: signer, hasher: hashing.NewTokenHasher(), bus: bus, replay: replay, cfg: cfg}
}

// Pair is the access/refresh credential pair returned at login and on
// every successful refresh.
type Pair struct {
	AccessToken  string
	RefreshToken string
}

// IssueForLogin mints a fresh token family and returns the first pair in
// it. The refresh half is an opaque "<id>.<verifier>" credential; the
// access half is a signed JWT carrying the claims contract.
func (m *Manager) IssueForLogin(ctx context.Context, realmID, userID string, roles []string) (*Pair, error) {
	family := idgen.NewID()
	pair, err := m.issueChild(ctx, realmID, userID, roles, family, nil)
	if err != nil {
		return nil, err
	}

	m.publish(events.TypeTokenIssued, realmID, userID, events.ResultSuccess, nil)
	return pair, nil
}

// issueChild creates one refresh record (optionally chained to parentID)
// plus its paired access token, in the given family.
func (m *Manager) issueChild(ctx context.Context, realmID, userID string, roles []string, family string, parentID *string) (*Pair, error) {
	now := time.Now()

	verifier, err := idgen.NewOpaqueSecret(32)
	if err != nil {
		return nil, fmt.Errorf("token: generate refresh secret: %w", err)
	}
	verifierHash, err := m.hasher.Hash(verifier)
	if err != nil {
		return nil, fmt.Errorf("token: hash refresh secret: %w", err)
	}

	refreshID := idgen.NewID()
	refresh := &Token{
		ID:            refreshID,
		RealmID:       realmID,
		UserID:        userID,
		TokenHash:     verifierHash,
		Type:          TypeRefresh,
		CreatedAt:     now,
		ExpiresAt:     now.Add(m.cfg.RefreshTTL),
		TokenFamily:   family,
		ParentTokenID: parentID,
	}
	if err := m.repo.Create(ctx, refresh); err != nil {
		return nil, fmt.Errorf("token: persist refresh token: %w", err)
	}

	accessClaims := Claims{
		Subject:     userID,
		IssuedAt:    now,
		ExpiresAt:   now.Add(m.cfg.AccessTTL),
		RealmID:     realmID,
		TokenFamily: family,
		Roles:       roles,
		TokenID:     idgen.NewID(),
		Type:        TypeAccess,
	}
	accessJWT, err := m.signer.Sign(accessClaims)
	if err != nil {
		return nil, fmt.Errorf("token: sign access token: %w", err)
	}

	if m.cfg.PersistAccess {
		accessHash, err := m.hasher.Hash(accessJWT)
		if err != nil {
			return nil, fmt.Errorf("token: hash access token: %w", err)
		}
		access := &Token{
			ID:          accessClaims.TokenID,
			RealmID:     realmID,
			UserID:      userID,
			TokenHash:   accessHash,
			Type:        TypeAccess,
			CreatedAt:   now,
			ExpiresAt:   accessClaims.ExpiresAt,
			TokenFamily: family,
		}
		if err := m.repo.Create(ctx, access); err != nil {
			return nil, fmt.Errorf("token: persist access token: %w", err)
		}
	}

	return &Pair{
		AccessToken:  accessJWT,
		RefreshToken: refreshID + "." + verifier,
	}, nil
}

// VerifyAccess decodes and checks an access token's signature, expiry,
// and claim invariants (type, realm match). It does not perform a
// storage round-trip unless the manager is configured to persist access
// tokens, in which case a revoked digest also fails verification.
func (m *Manager) VerifyAccess(ctx context.Context, realmID, accessToken string) (Claims, error) {
	claims, err := m.signer.Verify(accessToken)
	if err != nil {
		m.publish(events.TypeTokenVerifyFailed, realmID, "", events.ResultFailure, map[string]any{"reason": "signature"})
		return Claims{}, err
	}
	if claims.Type != TypeAccess {
		m.publish(events.TypeTokenVerifyFailed, realmID, claims.Subject, events.ResultFailure, map[string]any{"reason": "wrong_type"})
		return Claims{}, fmt.Errorf("%w: not an access token", ErrMalformedToken)
	}
	if claims.RealmID != realmID {
		m.publish(events.TypeTokenVerifyFailed, realmID, claims.Subject, events.ResultFailure, map[string]any{"reason": "realm_mismatch"})
		return Claims{}, fmt.Errorf("%w: realm mismatch", ErrMalformedToken)
	}
	if time.Now().After(claims.ExpiresAt) {
		m.publish(events.TypeTokenVerifyFailed, realmID, claims.Subject, events.ResultFailure, map[string]any{"reason": "expired"})
		return Claims{}, ErrExpired
	}

	if m.cfg.PersistAccess {
		rec, err := m.repo.Get(ctx, realmID, claims.TokenID)
		if err != nil {
			return Claims{}, ErrNotFound
		}
		if rec.Revoked {
			m.publish(events.TypeTokenVerifyFailed, realmID, claims.Subject, events.ResultFailure, map[string]any{"reason": "revoked"})
			return Claims{}, ErrRevoked
		}
	}

	return claims, nil
}

// Refresh runs the refresh state machine for a presented
// "<id>.<verifier>" credential: first-use detection via a conditional
// update, grace-period re-use, and family-wide revocation on replay.
func (m *Manager) Refresh(ctx context.Context, realmID, presented string) (*Pair, error) {
	id, verifier, ok := splitCredential(presented)
	if !ok {
		m.publish(events.TypeTokenRefreshFailed, realmID, "", events.ResultFailure, map[string]any{"reason": "malformed"})
		return nil, ErrMalformedToken
	}

	rec, err := m.repo.Get(ctx, realmID, id)
	if err != nil {
		m.publish(events.TypeTokenRefreshFailed, realmID, "", events.ResultFailure, map[string]any{"reason": "not_found"})
		return nil, ErrNotFound
	}
	if rec.Revoked {
		m.publish(events.TypeTokenRefreshFailed, realmID, rec.UserID, events.ResultFailure, map[string]any{"reason": "revoked"})
		return nil, ErrRevoked
	}
	if rec.IsExpired() {
		m.publish(events.TypeTokenRefreshFailed, realmID, rec.UserID, events.ResultFailure, map[string]any{"reason": "expired"})
		return nil, ErrExpired
	}
	match, err := m.hasher.Verify(verifier, rec.TokenHash)
	if err != nil || !match {
		m.publish(events.TypeTokenRefreshFailed, realmID, rec.UserID, events.ResultFailure, map[string]any{"reason": "mismatch"})
		return nil, ErrMalformedToken
	}

	now := time.Now()
	firstUsedAt, won, err := m.repo.MarkFirstUsed(ctx, rec.ID, now)
	if err != nil {
		return nil, fmt.Errorf("token: mark first use: %w", err)
	}

	if won {
		if err := m.repo.UpdateLastUsed(ctx, rec.ID, now); err != nil {
			return nil, fmt.Errorf("token: update last used: %w", err)
		}

		if m.cfg.Rotation == RotationNone {
			return m.reissueAccessOnly(ctx, realmID, rec)
		}

		parentID := rec.ID
		pair, err := m.issueChild(ctx, realmID, rec.UserID, nil, rec.TokenFamily, &parentID)
		if err != nil {
			return nil, err
		}
		if err := m.replay.Store(ctx, rec.ID, pair, m.cfg.GracePeriod); err != nil {
			return nil, fmt.Errorf("token: cache grace-period pair: %w", err)
		}
		m.publish(events.TypeTokenRefreshed, realmID, rec.UserID, events.ResultSuccess,
			map[string]any{"old_token_id": rec.ID})
		return pair, nil
	}

	// Already used once. A re-use within the grace period replays the
	// original child pair; outside it, this is a replay attack. firstUsedAt
	// here is the authoritative value MarkFirstUsed returned for the
	// winning call, not rec's pre-MarkFirstUsed snapshot — a concurrent
	// Refresh racing the legitimate first use would otherwise see a stale
	// nil/zero FirstUsedAt and wrongly fall through to family revocation.
	if now.Sub(firstUsedAt) <= m.cfg.GracePeriod {
		if pair, found, err := m.replay.Get(ctx, rec.ID); err == nil && found {
			m.publish(events.TypeTokenRefreshed, realmID, rec.UserID, events.ResultSuccess,
				map[string]any{"grace_period_reuse": true})
			return pair, nil
		}
		// Cache miss past the window boundary (e.g. a restart): fall back
		// to a fresh access token on the existing family rather than
		// flagging a replay the caller didn't cause.
		return m.reissueAccessOnly(ctx, realmID, rec)
	}

	if err := m.repo.RevokeFamily(ctx, rec.TokenFamily); err != nil {
		return nil, fmt.Errorf("token: revoke compromised family: %w", err)
	}
	m.publish(events.TypeSecurityViolation, realmID, rec.UserID, events.ResultFailure,
		map[string]any{"reason": "refresh_token_replay", "token_family": rec.TokenFamily})
	return nil, ErrFamilyCompromised
}

// reissueAccessOnly handles RotationNone: a fresh access token is minted,
// the presented refresh token is left in place and the returned Pair
// carries no refresh token (its first use has already been recorded).
func (m *Manager) reissueAccessOnly(ctx context.Context, realmID string, rec *Token) (*Pair, error) {
	now := time.Now()
	accessClaims := Claims{
		Subject:     rec.UserID,
		IssuedAt:    now,
		ExpiresAt:   now.Add(m.cfg.AccessTTL),
		RealmID:     realmID,
		TokenFamily: rec.TokenFamily,
		TokenID:     idgen.NewID(),
		Type:        TypeAccess,
	}
	accessJWT, err := m.signer.Sign(accessClaims)
	if err != nil {
		return nil, fmt.Errorf("token: sign access token: %w", err)
	}
	m.publish(events.TypeTokenRefreshed, realmID, rec.UserID, events.ResultSuccess,
		map[string]any{"rotation": "none"})
	return &Pair{AccessToken: accessJWT}, nil
}

// Revoke flags a single token record as revoked.
func (m *Manager) Revoke(ctx context.Context, realmID, userID, tokenID string) error {
	if err := m.repo.Revoke(ctx, tokenID); err != nil {
		return err
	}
	m.publish(events.TypeTokenRevoked, realmID, userID, events.ResultSuccess, map[string]any{"token_id": tokenID})
	return nil
}

// RevokeAllForUser revokes every token issued to userID in realmID.
func (m *Manager) RevokeAllForUser(ctx context.Context, realmID, userID string) error {
	if err := m.repo.RevokeAllForUser(ctx, realmID, userID); err != nil {
		return err
	}
	m.publish(events.TypeTokenRevoked, realmID, userID, events.ResultSuccess, map[string]any{"scope": "all"})
	return nil
}

// RevokeFamily revokes every token sharing tokenFamily.
func (m *Manager) RevokeFamily(ctx context.Context, realmID, userID, tokenFamily string) error {
	if err := m.repo.RevokeFamily(ctx, tokenFamily); err != nil {
		return err
	}
	m.publish(events.TypeTokenRevoked, realmID, userID, events.ResultSuccess, map[string]any{"token_family": tokenFamily})
	return nil
}

func (m *Manager) publish(eventType, realmID, userID string, result events.Result, payload map[string]any) {
	if m.bus == nil {
		return
	}
	evt := events.New(eventType, realmID, severityFor(eventType))
	evt.ActorID = userID
	if userID == "" {
		evt.ActorType = events.ActorAnonymous
	} else {
		evt.ActorType = events.ActorUser
	}
	evt.TargetID = userID
	evt.TargetType = "token"
	evt.Result = result
	for k, v := range payload {
		evt.Payload[k] = v
	}
	m.bus.Publish(evt)
}

func severityFor(eventType string) events.Severity {
	if eventType == events.TypeSecurityViolation {
		return events.SeverityCritical
	}
	return events.SeverityInfo
}

func splitCredential(presented string) (id, verifier string, ok bool) {
	idx := strings.IndexByte(presented, '.')
	if idx < 0 || idx == len(presented)-1 {
		return "", "", false
	}
	return presented[:idx], presented[idx+1:], true
}
