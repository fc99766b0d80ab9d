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
	"sync"
	"testing"
	"time"

	"github.com/kodexcore/kodex/hashing"
	"github.com/kodexcore/kodex/lockout"
	"github.com/kodexcore/kodex/token"
	"github.com/kodexcore/kodex/user"
)

type mockUserRepo struct {
	mu    sync.Mutex
	users map[string]*user.User // keyed by identifier
	byID  map[string]*user.User
}

func newMockUserRepo() *mockUserRepo {
	return &mockUserRepo{users: make(map[string]*user.User), byID: make(map[string]*user.User)}
}

func (m *mockUserRepo) put(u *user.User) {
	m.users[*u.Email] = u
	m.byID[u.ID] = u
}

func (m *mockUserRepo) Create(ctx context.Context, u *user.User) error { return nil }
func (m *mockUserRepo) GetByID(ctx context.Context, realmID, id string) (*user.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.byID[id]
	if !ok {
		return nil, user.ErrUserNotFound
	}
	cp := *u
	return &cp, nil
}
func (m *mockUserRepo) GetByEmail(ctx context.Context, realmID, email string) (*user.User, error) {
	return m.GetByIdentifier(ctx, realmID, email)
}
func (m *mockUserRepo) GetByPhone(ctx context.Context, realmID, phone string) (*user.User, error) {
	return nil, user.ErrUserNotFound
}
func (m *mockUserRepo) GetByIdentifier(ctx context.Context, realmID, identifier string) (*user.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[identifier]
	if !ok {
		return nil, user.ErrUserNotFound
	}
	cp := *u
	return &cp, nil
}
func (m *mockUserRepo) Update(ctx context.Context, u *user.User) error { return nil }
func (m *mockUserRepo) UpdatePassword(ctx context.Context, realmID, userID, hash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.byID[userID]; ok {
		u.PasswordHash = hash
	}
	return nil
}
func (m *mockUserRepo) UpdateLastLogin(ctx context.Context, realmID, userID string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.byID[userID]; ok {
		u.LastLoginAt = &at
	}
	return nil
}
func (m *mockUserRepo) Delete(ctx context.Context, realmID, userID string) error { return nil }
func (m *mockUserRepo) GetProfile(ctx context.Context, realmID, userID string) (*user.Profile, error) {
	return nil, user.ErrProfileNotFound
}
func (m *mockUserRepo) UpsertProfile(ctx context.Context, p *user.Profile) error { return nil }
func (m *mockUserRepo) GetCustomAttributes(ctx context.Context, realmID, userID string) (map[string]any, error) {
	return nil, nil
}
func (m *mockUserRepo) SetCustomAttributes(ctx context.Context, realmID, userID string, attrs map[string]any) error {
	return nil
}

type mockLocker struct {
	mu       sync.Mutex
	locked   bool
	attempts int
	cleared  int
}

func (m *mockLocker) CheckLockout(ctx context.Context, realmID, identifier string, now time.Time) (lockout.Status, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return lockout.Status{Locked: m.locked}, nil
}
func (m *mockLocker) RecordFailedAttempt(ctx context.Context, realmID, identifier, ipAddress, userID, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.attempts++
	return nil
}
func (m *mockLocker) ClearFailedAttempts(ctx context.Context, realmID, identifier string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cleared++
	return nil
}

type mockTokenIssuer struct {
	issued int
}

func (m *mockTokenIssuer) IssueForLogin(ctx context.Context, realmID, userID string, roles []string) (*token.Pair, error) {
	m.issued++
	return &token.Pair{AccessToken: "access-" + userID, RefreshToken: "refresh-" + userID}, nil
}

func newTestService(users *mockUserRepo, locks *mockLocker, tokens *mockTokenIssuer) *Service {
	return NewService(users, hashing.NewPasswordHasher(hashing.OWASPMinParams()), locks, tokens, nil, nil, nil, nil, nil)
}

func mustHash(t *testing.T, h *hashing.PasswordHasher, password string) string {
	t.Helper()
	digest, err := h.Hash(password)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	return digest
}

func TestLoginSucceedsWithCorrectCredentials(t *testing.T) {
	h := hashing.NewPasswordHasher(hashing.OWASPMinParams())
	users := newMockUserRepo()
	email := "a@example.com"
	hash := mustHash(t, h, "correct horse battery staple")
	users.put(&user.User{ID: "u1", RealmID: "realm1", Email: &email, PasswordHash: hash, IsVerified: true})

	locks := &mockLocker{}
	tokens := &mockTokenIssuer{}
	svc := newTestService(users, locks, tokens)

	attempt, err := svc.Login(context.Background(), "realm1", email, "correct horse battery staple", "1.1.1.1")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if attempt.UserID != "u1" {
		t.Fatalf("UserID = %q, want u1", attempt.UserID)
	}
	if attempt.AccessToken == "" || attempt.RefreshToken == "" {
		t.Fatalf("expected a non-empty token pair")
	}
	if locks.cleared != 1 {
		t.Fatalf("ClearFailedAttempts should run once on success")
	}
	if tokens.issued != 1 {
		t.Fatalf("IssueForLogin should run once on success")
	}
}

func TestLoginWrongPasswordRecordsFailure(t *testing.T) {
	h := hashing.NewPasswordHasher(hashing.OWASPMinParams())
	users := newMockUserRepo()
	email := "a@example.com"
	hash := mustHash(t, h, "correct horse battery staple")
	users.put(&user.User{ID: "u1", RealmID: "realm1", Email: &email, PasswordHash: hash, IsVerified: true})

	locks := &mockLocker{}
	svc := newTestService(users, locks, &mockTokenIssuer{})

	_, err := svc.Login(context.Background(), "realm1", email, "wrong password", "1.1.1.1")
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("err = %v, want ErrInvalidCredentials", err)
	}
	if locks.attempts != 1 {
		t.Fatalf("RecordFailedAttempt should run once, got %d", locks.attempts)
	}
}

func TestLoginUnknownIdentifierReturnsGenericError(t *testing.T) {
	users := newMockUserRepo()
	locks := &mockLocker{}
	svc := newTestService(users, locks, &mockTokenIssuer{})

	_, err := svc.Login(context.Background(), "realm1", "nobody@example.com", "whatever", "1.1.1.1")
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("err = %v, want ErrInvalidCredentials", err)
	}
	if locks.attempts != 1 {
		t.Fatalf("an unknown identifier must still record a failed attempt")
	}
}

func TestLoginLockedAccountRejectsBeforeCredentialCheck(t *testing.T) {
	users := newMockUserRepo()
	locks := &mockLocker{locked: true}
	svc := newTestService(users, locks, &mockTokenIssuer{})

	_, err := svc.Login(context.Background(), "realm1", "a@example.com", "whatever", "1.1.1.1")
	if !errors.Is(err, ErrAccountLocked) {
		t.Fatalf("err = %v, want ErrAccountLocked", err)
	}
	if locks.attempts != 0 {
		t.Fatalf("a locked account should short-circuit before recording another attempt")
	}
}

func TestLoginUnverifiedAccountRejected(t *testing.T) {
	h := hashing.NewPasswordHasher(hashing.OWASPMinParams())
	users := newMockUserRepo()
	email := "a@example.com"
	hash := mustHash(t, h, "correct horse battery staple")
	users.put(&user.User{ID: "u1", RealmID: "realm1", Email: &email, PasswordHash: hash, IsVerified: false})

	locks := &mockLocker{}
	tokens := &mockTokenIssuer{}
	svc := newTestService(users, locks, tokens)

	_, err := svc.Login(context.Background(), "realm1", email, "correct horse battery staple", "1.1.1.1")
	if !errors.Is(err, ErrUnverifiedAccount) {
		t.Fatalf("err = %v, want ErrUnverifiedAccount", err)
	}
	if tokens.issued != 0 {
		t.Fatalf("no token pair should be issued for an unverified account")
	}
}

func TestChangePasswordRejectsWrongCurrentPassword(t *testing.T) {
	h := hashing.NewPasswordHasher(hashing.OWASPMinParams())
	users := newMockUserRepo()
	email := "a@example.com"
	hash := mustHash(t, h, "old password")
	users.put(&user.User{ID: "u1", RealmID: "realm1", Email: &email, PasswordHash: hash, IsVerified: true})

	svc := newTestService(users, &mockLocker{}, &mockTokenIssuer{})

	err := svc.ChangePassword(context.Background(), "realm1", "u1", "not the old password", "new password")
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("err = %v, want ErrInvalidCredentials", err)
	}
}

func TestChangePasswordUpdatesDigest(t *testing.T) {
	h := hashing.NewPasswordHasher(hashing.OWASPMinParams())
	users := newMockUserRepo()
	email := "a@example.com"
	hash := mustHash(t, h, "old password")
	users.put(&user.User{ID: "u1", RealmID: "realm1", Email: &email, PasswordHash: hash, IsVerified: true})

	svc := newTestService(users, &mockLocker{}, &mockTokenIssuer{})

	if err := svc.ChangePassword(context.Background(), "realm1", "u1", "old password", "new password"); err != nil {
		t.Fatalf("ChangePassword: %v", err)
	}

	updated, err := users.GetByID(context.Background(), "realm1", "u1")
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	match, err := h.Verify("new password", updated.PasswordHash)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if !match {
		t.Fatalf("stored digest should verify against the new password")
	}
}
