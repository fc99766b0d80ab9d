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

package audit

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/kodexcore/kodex/events"
)

type mockRepo struct {
	mu      sync.Mutex
	records []Record
	failing bool
}

func (m *mockRepo) Insert(ctx context.Context, r Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failing {
		return errFake
	}
	m.records = append(m.records, r)
	return nil
}

func (m *mockRepo) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var kept []Record
	var deleted int64
	for _, r := range m.records {
		if r.Timestamp.Before(cutoff) {
			deleted++
			continue
		}
		kept = append(kept, r)
	}
	m.records = kept
	return deleted, nil
}

type fakeErr struct{}

func (fakeErr) Error() string { return "fake repository failure" }

var errFake = fakeErr{}

func TestHandleSanitizesAndPersists(t *testing.T) {
	repo := &mockRepo{}
	sub := NewSubscriber(repo)

	evt := events.New(events.TypeUserCreated, "r1", events.SeverityInfo)
	evt.ActorID = "system"
	evt.ActorType = events.ActorSystem
	evt.TargetID = "u1"
	evt.TargetType = "user"
	evt.Result = events.ResultSuccess
	evt.Payload["password"] = "hunter2"
	evt.Payload["userName"] = "<script>alert('XSS')</script>"

	if err := sub.Handle(context.Background(), evt); err != nil {
		t.Fatalf("Handle: %v", err)
	}

	if len(repo.records) != 1 {
		t.Fatalf("records = %d, want 1", len(repo.records))
	}
	rec := repo.records[0]
	if rec.Metadata["password"] != "[REDACTED]" {
		t.Fatalf("password = %v, want [REDACTED]", rec.Metadata["password"])
	}
	want := "&lt;script&gt;alert(&#x27;XSS&#x27;)&lt;&#x2F;script&gt;"
	if rec.Metadata["userName"] != want {
		t.Fatalf("userName = %v, want %v", rec.Metadata["userName"], want)
	}
}

func TestHandleSwallowsRepositoryFailure(t *testing.T) {
	repo := &mockRepo{failing: true}
	sub := NewSubscriber(repo)

	evt := events.New(events.TypeLoginFailed, "r1", events.SeverityWarning)
	if err := sub.Handle(context.Background(), evt); err != nil {
		t.Fatalf("Handle returned error, want nil (swallowed): %v", err)
	}
}

func TestRetentionCleanup(t *testing.T) {
	repo := &mockRepo{}
	now := time.Now()
	repo.records = []Record{
		{ID: "old", Timestamp: now.Add(-45 * 24 * time.Hour)},
		{ID: "recent", Timestamp: now.Add(-15 * 24 * time.Hour)},
	}

	svc := NewRetentionService(repo, 30*24*time.Hour)
	deleted, err := svc.Cleanup(context.Background())
	if err != nil {
		t.Fatalf("Cleanup: %v", err)
	}
	if deleted != 1 {
		t.Fatalf("deleted = %d, want 1", deleted)
	}
	if len(repo.records) != 1 || repo.records[0].ID != "recent" {
		t.Fatalf("records = %+v, want only recent", repo.records)
	}

	deleted, err = svc.CleanupOlderThan(context.Background(), now.Add(-40*24*time.Hour))
	if err != nil {
		t.Fatalf("CleanupOlderThan: %v", err)
	}
	if deleted != 0 {
		t.Fatalf("idempotent cleanup deleted = %d, want 0", deleted)
	}
}
