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
	"sync"
	"testing"
)

type mockRepo struct {
	mu        sync.Mutex
	roles     map[string]*Role
	userRoles map[string][]string
}

func newMockRepo() *mockRepo {
	return &mockRepo{roles: make(map[string]*Role), userRoles: make(map[string][]string)}
}

func key(realmID, name string) string { return realmID + "/" + name }

func (m *mockRepo) Create(ctx context.Context, r *Role) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.roles[key(r.RealmID, r.Name)] = r
	return nil
}

func (m *mockRepo) GetByName(ctx context.Context, realmID, name string) (*Role, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.roles[key(realmID, name)]
	if !ok {
		return nil, ErrRoleNotFound
	}
	return r, nil
}

func (m *mockRepo) List(ctx context.Context, realmID string) ([]*Role, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Role
	for _, r := range m.roles {
		if r.RealmID == realmID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *mockRepo) Delete(ctx context.Context, realmID, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.roles, key(realmID, name))
	return nil
}

func (m *mockRepo) Assign(ctx context.Context, realmID, userID, roleName string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := key(realmID, userID)
	m.userRoles[k] = append(m.userRoles[k], roleName)
	return nil
}

func (m *mockRepo) Unassign(ctx context.Context, realmID, userID, roleName string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := key(realmID, userID)
	filtered := m.userRoles[k][:0]
	for _, n := range m.userRoles[k] {
		if n != roleName {
			filtered = append(filtered, n)
		}
	}
	m.userRoles[k] = filtered
	return nil
}

func (m *mockRepo) ListForUser(ctx context.Context, realmID, userID string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.userRoles[key(realmID, userID)], nil
}

func TestAssignRoleRequiresExistingRole(t *testing.T) {
	svc := NewService(newMockRepo())

	err := svc.AssignRole(context.Background(), "r1", "u1", "editor")
	if err != ErrRoleNotFound {
		t.Fatalf("err = %v, want ErrRoleNotFound", err)
	}
}

func TestAssignAndListRoles(t *testing.T) {
	svc := NewService(newMockRepo())

	if _, err := svc.CreateRole(context.Background(), "r1", "editor", "can edit"); err != nil {
		t.Fatalf("CreateRole: %v", err)
	}
	if err := svc.AssignRole(context.Background(), "r1", "u1", "editor"); err != nil {
		t.Fatalf("AssignRole: %v", err)
	}

	roles, err := svc.RolesForUser(context.Background(), "r1", "u1")
	if err != nil {
		t.Fatalf("RolesForUser: %v", err)
	}
	if len(roles) != 1 || roles[0] != "editor" {
		t.Fatalf("roles = %v, want [editor]", roles)
	}
}

func TestCreateRoleRejectsDuplicate(t *testing.T) {
	svc := NewService(newMockRepo())
	if _, err := svc.CreateRole(context.Background(), "r1", "editor", ""); err != nil {
		t.Fatalf("CreateRole: %v", err)
	}
	if _, err := svc.CreateRole(context.Background(), "r1", "editor", ""); err != ErrRoleAlreadyExists {
		t.Fatalf("err = %v, want ErrRoleAlreadyExists", err)
	}
}

func TestRevokeRole(t *testing.T) {
	svc := NewService(newMockRepo())
	_, _ = svc.CreateRole(context.Background(), "r1", "editor", "")
	_ = svc.AssignRole(context.Background(), "r1", "u1", "editor")

	if err := svc.RevokeRole(context.Background(), "r1", "u1", "editor"); err != nil {
		t.Fatalf("RevokeRole: %v", err)
	}

	roles, _ := svc.RolesForUser(context.Background(), "r1", "u1")
	if len(roles) != 0 {
		t.Fatalf("roles = %v, want empty after revoke", roles)
	}
}
