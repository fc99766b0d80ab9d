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

package events

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type recordingSubscriber struct {
	name     string
	types    []string
	priority int
	fail     bool

	mu     sync.Mutex
	events []Event
	calls  int
}

func (s *recordingSubscriber) Name() string         { return s.name }
func (s *recordingSubscriber) EventTypes() []string { return s.types }
func (s *recordingSubscriber) Priority() int        { return s.priority }

func (s *recordingSubscriber) Handle(ctx context.Context, event Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	s.events = append(s.events, event)
	if s.fail {
		return errors.New("boom")
	}
	return nil
}

func (s *recordingSubscriber) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met within %v", timeout)
}

func TestBusDispatchesToMatchingAndUniversalSubscribers(t *testing.T) {
	registry := NewRegistry()
	registry.RegisterProvider(Provider{Name: "core"})

	exact := &recordingSubscriber{name: "exact", types: []string{TypeLoginSuccess}}
	universal := &recordingSubscriber{name: "universal", types: []string{TypeAll}}
	unrelated := &recordingSubscriber{name: "unrelated", types: []string{TypeTokenIssued}}

	for _, s := range []*recordingSubscriber{exact, universal, unrelated} {
		if err := registry.Subscribe("core", s); err != nil {
			t.Fatalf("Subscribe(%s): %v", s.name, err)
		}
	}

	bus := NewBus(registry)
	defer bus.Shutdown()

	bus.Publish(New(TypeLoginSuccess, "realm-1", SeverityInfo))

	waitFor(t, time.Second, func() bool { return exact.count() == 1 && universal.count() == 1 })

	if unrelated.count() != 0 {
		t.Fatalf("unrelated subscriber got %d calls, want 0", unrelated.count())
	}
}

func TestBusSubscriberFailureIsIsolated(t *testing.T) {
	registry := NewRegistry()
	registry.RegisterProvider(Provider{Name: "core"})

	failing := &recordingSubscriber{name: "failing", types: []string{TypeAll}, fail: true}
	healthy := &recordingSubscriber{name: "healthy", types: []string{TypeAll}}

	_ = registry.Subscribe("core", failing)
	_ = registry.Subscribe("core", healthy)

	bus := NewBus(registry)
	defer bus.Shutdown()

	bus.Publish(New(TypeLoginFailed, "realm-1", SeverityWarning))

	waitFor(t, time.Second, func() bool { return failing.count() == 1 && healthy.count() == 1 })
}

func TestSubscribeRejectsUnknownProvider(t *testing.T) {
	registry := NewRegistry()
	sub := &recordingSubscriber{name: "rogue", types: []string{TypeAll}}

	if err := registry.Subscribe("not-registered", sub); !errors.Is(err, ErrUnknownProvider) {
		t.Fatalf("Subscribe() err = %v, want ErrUnknownProvider", err)
	}
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	registry := NewRegistry()
	registry.RegisterProvider(Provider{Name: "core"})

	sub := &recordingSubscriber{name: "leaving", types: []string{TypeAll}}
	_ = registry.Subscribe("core", sub)
	registry.Unsubscribe(sub)

	bus := NewBus(registry)
	defer bus.Shutdown()

	bus.Publish(New(TypeLoginSuccess, "realm-1", SeverityInfo))
	time.Sleep(50 * time.Millisecond)

	if sub.count() != 0 {
		t.Fatalf("unsubscribed subscriber got %d calls, want 0", sub.count())
	}
}

func TestPublishAssignsEventIDWhenUnset(t *testing.T) {
	registry := NewRegistry()
	registry.RegisterProvider(Provider{Name: "core"})

	sub := &recordingSubscriber{name: "watcher", types: []string{TypeAll}}
	_ = registry.Subscribe("core", sub)

	bus := NewBus(registry)
	defer bus.Shutdown()

	bus.Publish(New(TypeLoginSuccess, "realm-1", SeverityInfo))

	waitFor(t, time.Second, func() bool { return sub.count() == 1 })

	sub.mu.Lock()
	defer sub.mu.Unlock()
	if sub.events[0].EventID == "" {
		t.Fatalf("expected EventID to be assigned")
	}
}
