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

package update

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/kodexcore/kodex/user"
	"github.com/kodexcore/kodex/validate"
)

type mockRepo struct {
	mu       sync.Mutex
	users    map[string]*user.User
	profiles map[string]*user.Profile
}

func newMockRepo() *mockRepo {
	return &mockRepo{users: make(map[string]*user.User), profiles: make(map[string]*user.Profile)}
}

func (m *mockRepo) Create(ctx context.Context, u *user.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *u
	m.users[u.ID] = &cp
	return nil
}

func (m *mockRepo) GetByID(ctx context.Context, realmID, id string) (*user.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, user.ErrUserNotFound
	}
	cp := *u
	return &cp, nil
}

func (m *mockRepo) GetByEmail(ctx context.Context, realmID, email string) (*user.User, error) {
	return nil, user.ErrUserNotFound
}
func (m *mockRepo) GetByPhone(ctx context.Context, realmID, phone string) (*user.User, error) {
	return nil, user.ErrUserNotFound
}
func (m *mockRepo) GetByIdentifier(ctx context.Context, realmID, identifier string) (*user.User, error) {
	return nil, user.ErrUserNotFound
}

func (m *mockRepo) Update(ctx context.Context, u *user.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[u.ID]; !ok {
		return user.ErrUserNotFound
	}
	for _, existing := range m.users {
		if existing.ID != u.ID && existing.Email != nil && u.Email != nil && *existing.Email == *u.Email {
			return user.ErrEmailAlreadyExists
		}
	}
	cp := *u
	m.users[u.ID] = &cp
	return nil
}

func (m *mockRepo) UpdatePassword(ctx context.Context, realmID, userID, passwordHash string) error {
	return nil
}
func (m *mockRepo) UpdateLastLogin(ctx context.Context, realmID, userID string, at time.Time) error {
	return nil
}
func (m *mockRepo) Delete(ctx context.Context, realmID, userID string) error { return nil }

func (m *mockRepo) GetProfile(ctx context.Context, realmID, userID string) (*user.Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.profiles[userID]
	if !ok {
		return nil, user.ErrProfileNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *mockRepo) UpsertProfile(ctx context.Context, p *user.Profile) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *p
	m.profiles[p.UserID] = &cp
	return nil
}

func (m *mockRepo) GetCustomAttributes(ctx context.Context, realmID, userID string) (map[string]any, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok {
		return nil, user.ErrUserNotFound
	}
	return u.CustomAttributes, nil
}

func (m *mockRepo) SetCustomAttributes(ctx context.Context, realmID, userID string, attrs map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok {
		return user.ErrUserNotFound
	}
	u.CustomAttributes = attrs
	return nil
}

func newTestProcessor(repo user.Repository) *Processor {
	return NewProcessor(repo, validate.NewEmailValidator(nil, false), validate.NewPhoneValidator("US", false), validate.NewAttributeValidator(), nil, nil, nil, nil)
}

func TestApplyUserFieldsNoChangeIsEmptyChangeSet(t *testing.T) {
	repo := newMockRepo()
	email := "user@example.com"
	repo.users["u1"] = &user.User{ID: "u1", RealmID: "r1", Email: &email, Status: user.StatusActive}

	proc := newTestProcessor(repo)
	res, err := proc.ApplyUserFields(context.Background(), UpdateUserFields{
		RealmID: "r1", UserID: "u1", Email: SetField(email),
	})
	if err != nil {
		t.Fatalf("ApplyUserFields: %v", err)
	}
	if len(res.Changes) != 0 {
		t.Fatalf("Changes = %v, want empty", res.Changes)
	}
}

func TestApplyUserFieldsDetectsChange(t *testing.T) {
	repo := newMockRepo()
	email := "old@example.com"
	repo.users["u1"] = &user.User{ID: "u1", RealmID: "r1", Email: &email, Status: user.StatusActive}

	proc := newTestProcessor(repo)
	res, err := proc.ApplyUserFields(context.Background(), UpdateUserFields{
		RealmID: "r1", UserID: "u1", Email: SetField("new@example.com"),
	})
	if err != nil {
		t.Fatalf("ApplyUserFields: %v", err)
	}
	if len(res.Changes) != 1 {
		t.Fatalf("Changes = %v, want 1 entry", res.Changes)
	}
	if *res.User.Email != "new@example.com" {
		t.Fatalf("Email = %v, want new@example.com", res.User.Email)
	}
}

func TestApplyUserFieldsNotFound(t *testing.T) {
	proc := newTestProcessor(newMockRepo())
	_, err := proc.ApplyUserFields(context.Background(), UpdateUserFields{RealmID: "r1", UserID: "missing"})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestApplyUserFieldsConstraintViolation(t *testing.T) {
	repo := newMockRepo()
	e1, e2 := "a@example.com", "b@example.com"
	repo.users["u1"] = &user.User{ID: "u1", RealmID: "r1", Email: &e1}
	repo.users["u2"] = &user.User{ID: "u2", RealmID: "r1", Email: &e2}

	proc := newTestProcessor(repo)
	_, err := proc.ApplyUserFields(context.Background(), UpdateUserFields{RealmID: "r1", UserID: "u2", Email: SetField(e1)})

	var cv *ConstraintViolationError
	if !errors.As(err, &cv) {
		t.Fatalf("err = %v, want *ConstraintViolationError", err)
	}
}

func TestApplyAttributesReplaceAllSupersedes(t *testing.T) {
	repo := newMockRepo()
	repo.users["u1"] = &user.User{ID: "u1", RealmID: "r1", CustomAttributes: map[string]any{"plan": "free"}}

	proc := newTestProcessor(repo)
	res, err := proc.ApplyAttributes(context.Background(), UpdateAttributes{
		RealmID: "r1", UserID: "u1",
		Ops: []AttrOp{
			SetAttr("ignored", "x"),
			ReplaceAllAttrs(map[string]any{"plan": "pro"}),
			RemoveAttr("plan"),
		},
	})
	if err != nil {
		t.Fatalf("ApplyAttributes: %v", err)
	}
	if res.User.CustomAttributes["plan"] != "pro" {
		t.Fatalf("attrs = %v, want plan=pro (ReplaceAll supersedes later ops too)", res.User.CustomAttributes)
	}
	if _, ok := res.User.CustomAttributes["ignored"]; ok {
		t.Fatalf("attrs = %v, want 'ignored' dropped by ReplaceAll", res.User.CustomAttributes)
	}
}

func TestApplyAttributesSetAndRemove(t *testing.T) {
	repo := newMockRepo()
	repo.users["u1"] = &user.User{ID: "u1", RealmID: "r1", CustomAttributes: map[string]any{"plan": "free", "beta": true}}

	proc := newTestProcessor(repo)
	res, err := proc.ApplyAttributes(context.Background(), UpdateAttributes{
		RealmID: "r1", UserID: "u1",
		Ops: []AttrOp{SetAttr("plan", "pro"), RemoveAttr("beta")},
	})
	if err != nil {
		t.Fatalf("ApplyAttributes: %v", err)
	}
	if res.User.CustomAttributes["plan"] != "pro" {
		t.Fatalf("plan = %v, want pro", res.User.CustomAttributes["plan"])
	}
	if _, ok := res.User.CustomAttributes["beta"]; ok {
		t.Fatalf("beta should have been removed")
	}
}

func TestApplyBatchAppliesAllItems(t *testing.T) {
	repo := newMockRepo()
	repo.users["u1"] = &user.User{ID: "u1", RealmID: "r1", Status: user.StatusPending}
	repo.users["u2"] = &user.User{ID: "u2", RealmID: "r1", Status: user.StatusPending}

	proc := newTestProcessor(repo)
	results, err := proc.ApplyBatch(context.Background(), UpdateUserBatch{
		RealmID: "r1",
		Items: []BatchItem{
			{Fields: UpdateUserFields{RealmID: "r1", UserID: "u1", Status: SetField(user.StatusActive)}},
			{Fields: UpdateUserFields{RealmID: "r1", UserID: "u2", Status: SetField(user.StatusActive)}},
		},
	})
	if err != nil {
		t.Fatalf("ApplyBatch: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("results = %d, want 2", len(results))
	}
}
