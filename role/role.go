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

// Package role holds Kodex's flat, realm-scoped role model: a Role is a
// name and description unique within a realm, and a UserRole links a user
// to one. There is no platform/tenant/client scope hierarchy here — realm
// is the only scoping dimension this core knows about.
package role

import (
	"context"
	"errors"
)

var (
	ErrRoleNotFound      = errors.New("role not found")
	ErrRoleAlreadyExists = errors.New("role already exists")
)

// Role is a realm-scoped named permission grouping. Kodex does not
// interpret role names; the host assigns them meaning.
type Role struct {
	RealmID     string
	Name        string
	Description string
}

// UserRole links a user to a role within a realm.
type UserRole struct {
	RealmID string
	UserID  string
	Name    string
}

// Repository abstracts role and role-assignment persistence.
type Repository interface {
	Create(ctx context.Context, r *Role) error
	GetByName(ctx context.Context, realmID, name string) (*Role, error)
	List(ctx context.Context, realmID string) ([]*Role, error)
	Delete(ctx context.Context, realmID, name string) error

	// Assign grants a role to a user; the role must already exist
	// (§3's at-insert-time invariant).
	Assign(ctx context.Context, realmID, userID, roleName string) error
	Unassign(ctx context.Context, realmID, userID, roleName string) error
	ListForUser(ctx context.Context, realmID, userID string) ([]string, error)
}
