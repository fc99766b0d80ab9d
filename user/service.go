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

package user

import (
	"context"
	"fmt"
	"time"

	"github.com/kodexcore/kodex/events"
	"github.com/kodexcore/kodex/hashing"
	"github.com/kodexcore/kodex/hooks"
	"github.com/kodexcore/kodex/idgen"
	"github.com/kodexcore/kodex/validate"
)

// CreateInput carries the caller-supplied fields for a new user. At least
// one of Email/Phone must be present, and both may be (the service does
// not itself enforce realm policy beyond this "at least one contact"
// invariant).
type CreateInput struct {
	RealmID    string
	Email      string
	Phone      string
	Password   string
	Profile    *Profile
	Attributes map[string]any
}

// Service owns the user creation/deletion command path: validation, the
// beforeUserCreate/beforeUserDelete hook chain, password hashing, and the
// USER_CREATED/USER_UPDATED event publication. Field updates after
// creation go through package update, not here.
type Service struct {
	repo       Repository
	hasher     *hashing.PasswordHasher
	emailV     *validate.EmailValidator
	phoneV     *validate.PhoneValidator
	passwordV  *validate.PasswordValidator
	attributeV *validate.AttributeValidator
	createHook *hooks.Chain[CreateInput]
	deleteHook *hooks.Chain[string]
	bus        *events.Bus
}

// NewService wires a user command service from its collaborators. Either
// hook chain may be nil, in which case an empty FailFast chain (a no-op)
// is used; the validators must be non-nil, since the credential path
// calls them unconditionally.
func NewService(
	repo Repository,
	hasher *hashing.PasswordHasher,
	emailV *validate.EmailValidator,
	phoneV *validate.PhoneValidator,
	passwordV *validate.PasswordValidator,
	attributeV *validate.AttributeValidator,
	createHook *hooks.Chain[CreateInput],
	deleteHook *hooks.Chain[string],
	bus *events.Bus,
) *Service {
	if createHook == nil {
		createHook = hooks.NewChain[CreateInput](hooks.FailFast)
	}
	if deleteHook == nil {
		deleteHook = hooks.NewChain[string](hooks.FailFast)
	}
	return &Service{
		repo:       repo,
		hasher:     hasher,
		emailV:     emailV,
		phoneV:     phoneV,
		passwordV:  passwordV,
		attributeV: attributeV,
		createHook: createHook,
		deleteHook: deleteHook,
		bus:        bus,
	}
}

// CreateUser validates input, runs the beforeUserCreate hook chain,
// hashes the password, persists the user (and profile/attributes if
// given), and publishes USER_CREATED.
func (s *Service) CreateUser(ctx context.Context, input CreateInput) (*User, error) {
	if input.Email == "" && input.Phone == "" {
		return nil, ErrNoContactMethod
	}

	var normalizedEmail, normalizedPhone string
	if input.Email != "" {
		result := s.emailV.Validate(input.Email)
		if len(result.Errors) > 0 {
			return nil, fmt.Errorf("%w: %s", ErrInvalidEmail, result.Errors[0].Message)
		}
		normalizedEmail = result.Email
	}
	if input.Phone != "" {
		result := s.phoneV.Validate(input.Phone)
		if len(result.Errors) > 0 {
			return nil, fmt.Errorf("%w: %s", ErrInvalidPhone, result.Errors[0].Message)
		}
		normalizedPhone = result.Phone
	}

	pwResult := s.passwordV.Validate(input.Password)
	if len(pwResult.Errors) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrWeakPassword, pwResult.Errors[0].Message)
	}

	if len(input.Attributes) > 0 {
		if errs := s.attributeV.Validate(input.Attributes); len(errs) > 0 {
			return nil, fmt.Errorf("invalid custom attribute %q: %s", errs[0].Code, errs[0].Message)
		}
	}

	input.Email = normalizedEmail
	input.Phone = normalizedPhone

	transformed, err := s.createHook.Run(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("beforeUserCreate: %w", err)
	}
	input = transformed

	passwordHash, err := s.hasher.Hash(input.Password)
	if err != nil {
		return nil, fmt.Errorf("user: hash password: %w", err)
	}

	now := time.Now()
	u := &User{
		ID:               idgen.NewID(),
		RealmID:          input.RealmID,
		PasswordHash:     passwordHash,
		IsVerified:       false,
		Status:           StatusPending,
		CustomAttributes: input.Attributes,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if input.Email != "" {
		u.Email = &input.Email
	}
	if input.Phone != "" {
		u.Phone = &input.Phone
	}

	if err := s.repo.Create(ctx, u); err != nil {
		return nil, fmt.Errorf("user: create: %w", err)
	}

	if input.Profile != nil {
		input.Profile.UserID = u.ID
		input.Profile.UpdatedAt = now
		if err := s.repo.UpsertProfile(ctx, input.Profile); err != nil {
			return nil, fmt.Errorf("user: upsert profile: %w", err)
		}
	}

	if s.bus != nil {
		evt := events.New(events.TypeUserCreated, u.RealmID, events.SeverityInfo)
		evt.ActorType = events.ActorSystem
		evt.TargetID = u.ID
		evt.TargetType = "user"
		evt.Result = events.ResultSuccess
		s.bus.Publish(evt)
	}

	return u, nil
}

// DeleteUser runs the beforeUserDelete hook chain then deletes the user
// (soft or hard is a repository concern) and publishes USER_UPDATED with
// a deletion marker; callers that need a distinct USER_DELETED type can
// wrap this at the host layer.
func (s *Service) DeleteUser(ctx context.Context, realmID, userID string) error {
	if _, err := s.deleteHook.Run(ctx, userID); err != nil {
		return fmt.Errorf("beforeUserDelete: %w", err)
	}

	if err := s.repo.Delete(ctx, realmID, userID); err != nil {
		return fmt.Errorf("user: delete: %w", err)
	}

	if s.bus != nil {
		evt := events.New(events.TypeUserUpdated, realmID, events.SeverityInfo)
		evt.ActorType = events.ActorSystem
		evt.TargetID = userID
		evt.TargetType = "user"
		evt.Result = events.ResultSuccess
		evt.Payload["action"] = "deleted"
		s.bus.Publish(evt)
	}

	return nil
}

// GetByIdentifier resolves an email or phone to a user, for callers that
// don't otherwise need the full auth flow.
func (s *Service) GetByIdentifier(ctx context.Context, realmID, identifier string) (*User, error) {
	u, err := s.repo.GetByIdentifier(ctx, realmID, identifier)
	if err != nil {
		return nil, ErrUserNotFound
	}
	return u, nil
}
