// Copyright 2026 The OpenTrusty Authors
// SPDX-License-Identifier: Apache-2.0

package postgres

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/kodexcore/kodex/user"
)

func TestUserRepository(t *testing.T) {
	db, cleanup := SetupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	repo := NewUserRepository(db)

	email := "user1@example.com"
	u := &user.User{
		ID:           "00000000-0000-0000-0000-000000000101",
		RealmID:      "realm-1",
		Email:        &email,
		PasswordHash: "argon2id-digest",
		Status:       user.StatusActive,
		CustomAttributes: map[string]any{
			"locale": "en-US",
		},
	}

	t.Run("Create and Get", func(t *testing.T) {
		if err := repo.Create(ctx, u); err != nil {
			t.Fatalf("failed to create user: %v", err)
		}

		got, err := repo.GetByID(ctx, u.RealmID, u.ID)
		if err != nil {
			t.Fatalf("failed to get user: %v", err)
		}
		if got.Email == nil || *got.Email != email {
			t.Errorf("expected email %s, got %v", email, got.Email)
		}
		if got.CustomAttributes["locale"] != "en-US" {
			t.Errorf("expected locale attribute to round-trip, got %v", got.CustomAttributes["locale"])
		}
	})

	t.Run("GetByIdentifier", func(t *testing.T) {
		got, err := repo.GetByIdentifier(ctx, u.RealmID, email)
		if err != nil {
			t.Fatalf("failed to get user by identifier: %v", err)
		}
		if got.ID != u.ID {
			t.Errorf("expected user %s, got %s", u.ID, got.ID)
		}
	})

	t.Run("Update", func(t *testing.T) {
		u.Status = user.StatusDisabled
		if err := repo.Update(ctx, u); err != nil {
			t.Fatalf("failed to update user: %v", err)
		}

		got, err := repo.GetByID(ctx, u.RealmID, u.ID)
		if err != nil {
			t.Fatalf("failed to get user: %v", err)
		}
		if got.Status != user.StatusDisabled {
			t.Errorf("expected status %s, got %s", user.StatusDisabled, got.Status)
		}
	})

	t.Run("UpdatePassword", func(t *testing.T) {
		if err := repo.UpdatePassword(ctx, u.RealmID, u.ID, "new-digest"); err != nil {
			t.Fatalf("failed to update password: %v", err)
		}

		got, err := repo.GetByID(ctx, u.RealmID, u.ID)
		if err != nil {
			t.Fatalf("failed to get user: %v", err)
		}
		if got.PasswordHash != "new-digest" {
			t.Errorf("expected updated digest, got %s", got.PasswordHash)
		}
	})

	t.Run("Profile", func(t *testing.T) {
		p := &user.Profile{
			UserID:    u.ID,
			FirstName: "User",
			LastName:  "One",
		}
		if err := repo.UpsertProfile(ctx, p); err != nil {
			t.Fatalf("failed to upsert profile: %v", err)
		}

		got, err := repo.GetProfile(ctx, u.RealmID, u.ID)
		if err != nil {
			t.Fatalf("failed to get profile: %v", err)
		}
		if got.FirstName != "User" || got.LastName != "One" {
			t.Errorf("expected profile name User One, got %s %s", got.FirstName, got.LastName)
		}
	})

	t.Run("Delete", func(t *testing.T) {
		if err := repo.Delete(ctx, u.RealmID, u.ID); err != nil {
			t.Fatalf("failed to delete user: %v", err)
		}

		_, err := repo.GetByID(ctx, u.RealmID, u.ID)
		if err != user.ErrUserNotFound {
			t.Errorf("expected ErrUserNotFound, got %v", err)
		}
	})
}

func TestUserRepositoryCreateRejectsDuplicateEmail(t *testing.T) {
	db, cleanup := SetupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	repo := NewUserRepository(db)
	email := "dup@example.com"

	first := &user.User{
		ID: "00000000-0000-0000-0000-000000000201", RealmID: "realm-1",
		Email: &email, PasswordHash: "digest", Status: user.StatusActive,
	}
	if err := repo.Create(ctx, first); err != nil {
		t.Fatalf("failed to create first user: %v", err)
	}

	second := &user.User{
		ID: "00000000-0000-0000-0000-000000000202", RealmID: "realm-1",
		Email: &email, PasswordHash: "digest", Status: user.StatusActive,
	}
	err := repo.Create(ctx, second)
	if !errors.Is(err, user.ErrEmailAlreadyExists) {
		t.Fatalf("Create() with duplicate email error = %v, want ErrEmailAlreadyExists", err)
	}
}

func TestUserRepositoryWithinTxRollsBackOnError(t *testing.T) {
	db, cleanup := SetupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	repo := NewUserRepository(db)
	email := "tx-rollback@example.com"
	u := &user.User{
		ID: "00000000-0000-0000-0000-000000000301", RealmID: "realm-1",
		Email: &email, PasswordHash: "digest", Status: user.StatusActive,
	}

	wantErr := errors.New("boom")
	err := repo.WithinTx(ctx, func(txCtx context.Context) error {
		if err := repo.Create(txCtx, u); err != nil {
			return err
		}
		return wantErr
	})
	if !errors.Is(err, wantErr) {
		t.Fatalf("WithinTx() error = %v, want %v", err, wantErr)
	}

	if _, err := repo.GetByID(ctx, u.RealmID, u.ID); !errors.Is(err, user.ErrUserNotFound) {
		t.Fatalf("GetByID() after rolled-back WithinTx = %v, want ErrUserNotFound", err)
	}
}

func TestUserRepositoryWithinTxCommitsOnSuccess(t *testing.T) {
	db, cleanup := SetupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	repo := NewUserRepository(db)

	ids := make([]string, 0, 3)
	err := repo.WithinTx(ctx, func(txCtx context.Context) error {
		for i := 0; i < 3; i++ {
			email := fmt.Sprintf("tx-commit-%d@example.com", i)
			id := fmt.Sprintf("00000000-0000-0000-0000-00000000041%d", i)
			u := &user.User{ID: id, RealmID: "realm-1", Email: &email, PasswordHash: "digest", Status: user.StatusActive}
			if err := repo.Create(txCtx, u); err != nil {
				return err
			}
			ids = append(ids, id)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("WithinTx() error = %v", err)
	}

	for _, id := range ids {
		if _, err := repo.GetByID(ctx, "realm-1", id); err != nil {
			t.Errorf("GetByID(%s) after committed WithinTx error = %v", id, err)
		}
	}
}
