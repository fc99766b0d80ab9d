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

package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/kodexcore/kodex/events"
	"github.com/kodexcore/kodex/hashing"
	"github.com/kodexcore/kodex/hooks"
	"github.com/kodexcore/kodex/lockout"
	"github.com/kodexcore/kodex/token"
	"github.com/kodexcore/kodex/user"
)

// Locker is the subset of lockout.Service's methods Login depends on.
type Locker interface {
	CheckLockout(ctx context.Context, realmID, identifier string, now time.Time) (lockout.Status, error)
	RecordFailedAttempt(ctx context.Context, realmID, identifier, ipAddress, userID, reason string) error
	ClearFailedAttempts(ctx context.Context, realmID, identifier string) error
}

// TokenIssuer is the subset of token.Manager's methods Login depends on.
type TokenIssuer interface {
	IssueForLogin(ctx context.Context, realmID, userID string, roles []string) (*token.Pair, error)
}

// RoleResolver is the subset of role.Service's methods Login depends on.
// It may be left nil, in which case every session is issued with an
// empty role claim.
type RoleResolver interface {
	RolesForUser(ctx context.Context, realmID, userID string) ([]string, error)
}

// LoginInput is the value threaded through the beforeLogin hook chain,
// the one extension point that runs before the identifier is resolved
// to a user — registered hooks may normalize the identifier (e.g. lower
// a mixed-case email) or reject the attempt outright.
type LoginInput struct {
	RealmID    string
	Identifier string
	Password   string
	IPAddress  string
}

// FailureContext is the value threaded through the afterLoginFailure
// hook chain.
type FailureContext struct {
	RealmID    string
	Identifier string
	IPAddress  string
	Reason     string
}

// AuthContext is the value threaded through the afterAuthentication
// hook chain, run once a login has fully succeeded and before the token
// pair is handed back to the caller.
type AuthContext struct {
	RealmID   string
	UserID    string
	IPAddress string
	Roles     []string
}

// Service orchestrates the login and password-change flows.
type Service struct {
	users  user.Repository
	hasher *hashing.PasswordHasher
	locks  Locker
	tokens TokenIssuer
	roles  RoleResolver
	bus    *events.Bus

	beforeLogin         *hooks.Chain[LoginInput]
	afterLoginFailure   *hooks.Chain[FailureContext]
	afterAuthentication *hooks.Chain[AuthContext]
}

// NewService creates a Service. roles and bus may be nil. Any of the
// three hook chains may be nil, in which case an empty chain (a no-op)
// is substituted: FailFast for beforeLogin and afterAuthentication,
// SkipFailed for afterLoginFailure.
func NewService(
	users user.Repository,
	hasher *hashing.PasswordHasher,
	locks Locker,
	tokens TokenIssuer,
	roles RoleResolver,
	bus *events.Bus,
	beforeLogin *hooks.Chain[LoginInput],
	afterLoginFailure *hooks.Chain[FailureContext],
	afterAuthentication *hooks.Chain[AuthContext],
) *Service {
	if beforeLogin == nil {
		beforeLogin = hooks.NewChain[LoginInput](hooks.FailFast)
	}
	if afterLoginFailure == nil {
		afterLoginFailure = hooks.NewChain[FailureContext](hooks.SkipFailed)
	}
	if afterAuthentication == nil {
		afterAuthentication = hooks.NewChain[AuthContext](hooks.FailFast)
	}
	return &Service{
		users:               users,
		hasher:              hasher,
		locks:               locks,
		tokens:              tokens,
		roles:               roles,
		bus:                 bus,
		beforeLogin:         beforeLogin,
		afterLoginFailure:   afterLoginFailure,
		afterAuthentication: afterAuthentication,
	}
}

// Login runs the full authentication flow: lockout check, beforeLogin
// hooks, user lookup, a constant-time credential check against either
// the real digest or a dummy one (so total latency never reveals
// whether identifier exists), verification-state check, and — on
// success — token issuance. A locked identifier returns ErrAccountLocked
// and an unverified account with a correct password returns
// ErrUnverifiedAccount; an unknown identifier and a wrong password both
// return the generic ErrInvalidCredentials, and the real reason is only
// recorded server-side via RecordFailedAttempt and the LOGIN_FAILED event.
func (s *Service) Login(ctx context.Context, realmID, identifier, password, ipAddress string) (*Attempt, error) {
	now := time.Now()

	status, err := s.locks.CheckLockout(ctx, realmID, identifier, now)
	if err != nil {
		return nil, fmt.Errorf("auth: check lockout: %w", err)
	}
	if status.Locked {
		return nil, ErrAccountLocked
	}

	input, err := s.beforeLogin.Run(ctx, LoginInput{
		RealmID:    realmID,
		Identifier: identifier,
		Password:   password,
		IPAddress:  ipAddress,
	})
	if err != nil {
		return nil, fmt.Errorf("auth: before-login hook: %w", err)
	}

	u, lookupErr := s.users.GetByIdentifier(ctx, realmID, input.Identifier)

	digest := ""
	if lookupErr == nil {
		digest = u.PasswordHash
	} else {
		dummy, err := s.hasher.DummyDigest()
		if err != nil {
			return nil, fmt.Errorf("auth: dummy digest: %w", err)
		}
		digest = dummy
	}

	match, err := s.hasher.Verify(input.Password, digest)
	if err != nil {
		return nil, fmt.Errorf("auth: verify credential: %w", err)
	}

	if lookupErr != nil || !match {
		return nil, s.loginFailed(ctx, realmID, input.Identifier, input.IPAddress, "", "invalid_credentials")
	}

	if !u.IsVerified {
		return nil, ErrUnverifiedAccount
	}

	if err := s.locks.ClearFailedAttempts(ctx, realmID, input.Identifier); err != nil {
		return nil, fmt.Errorf("auth: clear failed attempts: %w", err)
	}
	if err := s.users.UpdateLastLogin(ctx, realmID, u.ID, now); err != nil {
		return nil, fmt.Errorf("auth: update last login: %w", err)
	}

	var roles []string
	if s.roles != nil {
		roles, err = s.roles.RolesForUser(ctx, realmID, u.ID)
		if err != nil {
			return nil, fmt.Errorf("auth: resolve roles: %w", err)
		}
	}

	if _, err := s.afterAuthentication.Run(ctx, AuthContext{
		RealmID:   realmID,
		UserID:    u.ID,
		IPAddress: input.IPAddress,
		Roles:     roles,
	}); err != nil {
		return nil, fmt.Errorf("auth: after-authentication hook: %w", err)
	}

	pair, err := s.tokens.IssueForLogin(ctx, realmID, u.ID, roles)
	if err != nil {
		return nil, fmt.Errorf("auth: issue token pair: %w", err)
	}

	s.publish(events.TypeLoginSuccess, realmID, u.ID, u.ID, events.ResultSuccess, map[string]any{"method": "password"})

	return &Attempt{UserID: u.ID, AccessToken: pair.AccessToken, RefreshToken: pair.RefreshToken}, nil
}

// loginFailed runs the afterLoginFailure hooks, records the failed
// attempt (possibly triggering a lockout), publishes LOGIN_FAILED, and
// always returns ErrInvalidCredentials.
func (s *Service) loginFailed(ctx context.Context, realmID, identifier, ipAddress, userID, reason string) error {
	if _, err := s.afterLoginFailure.Run(ctx, FailureContext{
		RealmID:    realmID,
		Identifier: identifier,
		IPAddress:  ipAddress,
		Reason:     reason,
	}); err != nil {
		slog.WarnContext(ctx, "afterLoginFailure hook chain failed", slog.String("error", err.Error()))
	}

	if err := s.locks.RecordFailedAttempt(ctx, realmID, identifier, ipAddress, userID, reason); err != nil {
		slog.ErrorContext(ctx, "failed to record failed login attempt", slog.String("error", err.Error()))
	}

	s.publish(events.TypeLoginFailed, realmID, identifier, userID, events.ResultFailure, map[string]any{"reason": reason})
	return ErrInvalidCredentials
}

// ChangePassword verifies oldPassword against the stored digest before
// replacing it. The new and old digests never appear in the published
// event or in any log line.
func (s *Service) ChangePassword(ctx context.Context, realmID, userID, oldPassword, newPassword string) error {
	u, err := s.users.GetByID(ctx, realmID, userID)
	if err != nil {
		if errors.Is(err, user.ErrUserNotFound) {
			return ErrInvalidCredentials
		}
		return fmt.Errorf("auth: get user: %w", err)
	}

	match, err := s.hasher.Verify(oldPassword, u.PasswordHash)
	if err != nil {
		return fmt.Errorf("auth: verify current password: %w", err)
	}
	if !match {
		s.publish(events.TypePasswordChangeFailed, realmID, userID, userID, events.ResultFailure,
			map[string]any{"reason": "invalid_current_password"})
		return ErrInvalidCredentials
	}

	newHash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return fmt.Errorf("auth: hash new password: %w", err)
	}
	if err := s.users.UpdatePassword(ctx, realmID, userID, newHash); err != nil {
		return fmt.Errorf("auth: update password: %w", err)
	}

	s.publish(events.TypePasswordChanged, realmID, userID, userID, events.ResultSuccess, nil)
	return nil
}

func (s *Service) publish(eventType, realmID, actorID, targetID string, result events.Result, payload map[string]any) {
	if s.bus == nil {
		return
	}
	severity := events.SeverityInfo
	if result == events.ResultFailure {
		severity = events.SeverityWarning
	}
	evt := events.New(eventType, realmID, severity)
	evt.ActorID = actorID
	if actorID == "" {
		evt.ActorType = events.ActorAnonymous
	} else {
		evt.ActorType = events.ActorUser
	}
	evt.TargetID = targetID
	evt.TargetType = "user"
	evt.Result = result
	for k, v := range payload {
		evt.Payload[k] = v
	}
	s.bus.Publish(evt)
}
