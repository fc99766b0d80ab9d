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

package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/kodexcore/kodex/role"
)

// RoleRepository implements role.Repository over Postgres.
type RoleRepository struct {
	db *DB
}

// NewRoleRepository creates a new role repository.
func NewRoleRepository(db *DB) *RoleRepository {
	return &RoleRepository{db: db}
}

// Create defines a new role within a realm.
func (r *RoleRepository) Create(ctx context.Context, ro *role.Role) error {
	_, err := r.db.pool.Exec(ctx, `
		INSERT INTO roles (realm_id, name, description) VALUES ($1, $2, $3)
	`, ro.RealmID, ro.Name, ro.Description)
	if err != nil {
		return fmt.Errorf("failed to insert role: %w", err)
	}
	return nil
}

// GetByName retrieves a role by its realm-scoped name.
func (r *RoleRepository) GetByName(ctx context.Context, realmID, name string) (*role.Role, error) {
	var ro role.Role
	err := r.db.pool.QueryRow(ctx, `
		SELECT realm_id, name, description FROM roles WHERE realm_id = $1 AND name = $2
	`, realmID, name).Scan(&ro.RealmID, &ro.Name, &ro.Description)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, role.ErrRoleNotFound
		}
		return nil, fmt.Errorf("failed to get role: %w", err)
	}
	return &ro, nil
}

// List returns every role defined within a realm.
func (r *RoleRepository) List(ctx context.Context, realmID string) ([]*role.Role, error) {
	rows, err := r.db.pool.Query(ctx, `
		SELECT realm_id, name, description FROM roles WHERE realm_id = $1 ORDER BY name ASC
	`, realmID)
	if err != nil {
		return nil, fmt.Errorf("failed to list roles: %w", err)
	}
	defer rows.Close()

	var roles []*role.Role
	for rows.Next() {
		var ro role.Role
		if err := rows.Scan(&ro.RealmID, &ro.Name, &ro.Description); err != nil {
			return nil, fmt.Errorf("failed to scan role: %w", err)
		}
		roles = append(roles, &ro)
	}
	return roles, rows.Err()
}

// Delete removes a role definition (and, via FK cascade, every
// assignment of it).
func (r *RoleRepository) Delete(ctx context.Context, realmID, name string) error {
	result, err := r.db.pool.Exec(ctx, `DELETE FROM roles WHERE realm_id = $1 AND name = $2`, realmID, name)
	if err != nil {
		return fmt.Errorf("failed to delete role: %w", err)
	}
	if result.RowsAffected() == 0 {
		return role.ErrRoleNotFound
	}
	return nil
}

// Assign grants a role to a user.
func (r *RoleRepository) Assign(ctx context.Context, realmID, userID, roleName string) error {
	_, err := r.db.pool.Exec(ctx, `
		INSERT INTO user_roles (realm_id, user_id, role_name) VALUES ($1, $2, $3)
		ON CONFLICT DO NOTHING
	`, realmID, userID, roleName)
	if err != nil {
		return fmt.Errorf("failed to assign role: %w", err)
	}
	return nil
}

// Unassign removes a role from a user.
func (r *RoleRepository) Unassign(ctx context.Context, realmID, userID, roleName string) error {
	_, err := r.db.pool.Exec(ctx, `
		DELETE FROM user_roles WHERE realm_id = $1 AND user_id = $2 AND role_name = $3
	`, realmID, userID, roleName)
	if err != nil {
		return fmt.Errorf("failed to unassign role: %w", err)
	}
	return nil
}

// ListForUser resolves the flat role-name list assigned to a user.
func (r *RoleRepository) ListForUser(ctx context.Context, realmID, userID string) ([]string, error) {
	rows, err := r.db.pool.Query(ctx, `
		SELECT role_name FROM user_roles WHERE realm_id = $1 AND user_id = $2 ORDER BY role_name ASC
	`, realmID, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list roles for user: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan role name: %w", err)
		}
		names = append(names, name)
	}
	return names, rows.Err()
}
