// Copyright 2026 The OpenTrusty Authors
// SPDX-License-Identifier: MIT

package postgres

import (
	"context"
	"testing"

	"github.com/kodexcore/kodex/role"
)

func TestRoleRepository(t *testing.T) {
	db, cleanup := SetupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	repo := NewRoleRepository(db)

	const realmID = "realm-1"
	r := &role.Role{
		RealmID:     realmID,
		Name:        "editor",
		Description: "Can edit realm settings",
	}

	t.Run("Create and GetByName", func(t *testing.T) {
		if err := repo.Create(ctx, r); err != nil {
			t.Fatalf("failed to create role: %v", err)
		}

		got, err := repo.GetByName(ctx, realmID, r.Name)
		if err != nil {
			t.Fatalf("failed to get role: %v", err)
		}
		if got.Description != r.Description {
			t.Errorf("expected description %s, got %s", r.Description, got.Description)
		}
	})

	t.Run("List", func(t *testing.T) {
		roles, err := repo.List(ctx, realmID)
		if err != nil {
			t.Fatalf("failed to list roles: %v", err)
		}
		if len(roles) != 1 {
			t.Errorf("expected one role, got %d", len(roles))
		}
	})

	t.Run("Assign, Unassign, ListForUser", func(t *testing.T) {
		const userID = "00000000-0000-0000-0000-000000000301"

		if err := repo.Assign(ctx, realmID, userID, r.Name); err != nil {
			t.Fatalf("failed to assign role: %v", err)
		}

		names, err := repo.ListForUser(ctx, realmID, userID)
		if err != nil {
			t.Fatalf("failed to list roles for user: %v", err)
		}
		if len(names) != 1 || names[0] != r.Name {
			t.Errorf("expected [%s], got %v", r.Name, names)
		}

		if err := repo.Unassign(ctx, realmID, userID, r.Name); err != nil {
			t.Fatalf("failed to unassign role: %v", err)
		}

		names, err = repo.ListForUser(ctx, realmID, userID)
		if err != nil {
			t.Fatalf("failed to list roles for user: %v", err)
		}
		if len(names) != 0 {
			t.Errorf("expected no roles after unassign, got %v", names)
		}
	})

	t.Run("Delete", func(t *testing.T) {
		if err := repo.Delete(ctx, realmID, r.Name); err != nil {
			t.Fatalf("failed to delete role: %v", err)
		}

		_, err := repo.GetByName(ctx, realmID, r.Name)
		if err != role.ErrRoleNotFound {
			t.Errorf("expected ErrRoleNotFound, got %v", err)
		}
	})
}
