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

package role

import (
	"context"
	"fmt"
)

// Service is the thin engine the auth login flow calls into (through
// auth.RoleResolver) to build the role claim it hands to the token
// manager: resolving a user's flat role-name list, and assigning/revoking
// one role at a time with the at-insert-time existence check §3 requires.
type Service struct {
	repo Repository
}

// NewService creates a role service over repo.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// RolesForUser resolves the role-name list the token manager embeds in
// the access token's "roles" claim.
func (s *Service) RolesForUser(ctx context.Context, realmID, userID string) ([]string, error) {
	names, err := s.repo.ListForUser(ctx, realmID, userID)
	if err != nil {
		return nil, fmt.Errorf("role: list for user: %w", err)
	}
	return names, nil
}

// AssignRole grants roleName to userID, failing with ErrRoleNotFound if
// the role does not already exist in the realm.
func (s *Service) AssignRole(ctx context.Context, realmID, userID, roleName string) error {
	if _, err := s.repo.GetByName(ctx, realmID, roleName); err != nil {
		return ErrRoleNotFound
	}
	if err := s.repo.Assign(ctx, realmID, userID, roleName); err != nil {
		return fmt.Errorf("role: assign: %w", err)
	}
	return nil
}

// RevokeRole removes roleName from userID.
func (s *Service) RevokeRole(ctx context.Context, realmID, userID, roleName string) error {
	if err := s.repo.Unassign(ctx, realmID, userID, roleName); err != nil {
		return fmt.Errorf("role: revoke: %w", err)
	}
	return nil
}

// CreateRole defines a new role within a realm.
func (s *Service) CreateRole(ctx context.Context, realmID, name, description string) (*Role, error) {
	if _, err := s.repo.GetByName(ctx, realmID, name); err == nil {
		return nil, ErrRoleAlreadyExists
	}
	r := &Role{RealmID: realmID, Name: name, Description: description}
	if err := s.repo.Create(ctx, r); err != nil {
		return nil, fmt.Errorf("role: create: %w", err)
	}
	return r, nil
}
