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
	"log/slog"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/kodexcore/kodex/idgen"
)

// Subscriber receives events the bus dispatches to it. EventTypes returns
// the set of event types it wants (TypeAll subscribes to everything).
// Priority orders the fan-out within a single event's dispatch: higher
// priority subscribers are invoked first.
type Subscriber interface {
	Name() string
	EventTypes() []string
	Priority() int
	Handle(ctx context.Context, event Event) error
}

// Bus is a single unbounded queue feeding a single dispatcher goroutine,
// which fans each event out to every matching subscriber in its own
// isolated goroutine. Publish never blocks past the enqueue.
type Bus struct {
	registry *Registry

	mu     sync.Mutex
	queue  []Event
	notify chan struct{}

	shutdownOnce sync.Once
	done         chan struct{}
	stopped      chan struct{}
}

// NewBus creates a bus bound to registry and starts its dispatcher
// goroutine. Call Shutdown to stop it.
func NewBus(registry *Registry) *Bus {
	b := &Bus{
		registry: registry,
		notify:   make(chan struct{}, 1),
		done:     make(chan struct{}),
		stopped:  make(chan struct{}),
	}
	go b.dispatchLoop()
	return b
}

// Publish enqueues event for dispatch and returns immediately. EventID and
// SchemaVersion are populated if unset.
func (b *Bus) Publish(event Event) {
	if event.EventID == "" {
		event.EventID = idgen.NewID()
	}
	if event.SchemaVersion == 0 {
		event.SchemaVersion = SchemaVersion
	}

	b.mu.Lock()
	b.queue = append(b.queue, event)
	b.mu.Unlock()

	select {
	case b.notify <- struct{}{}:
	default:
	}
}

// Shutdown cancels the dispatcher and waits for it to drain its current
// event before returning. Events still queued when Shutdown is called are
// not delivered.
func (b *Bus) Shutdown() {
	b.shutdownOnce.Do(func() {
		close(b.done)
	})
	<-b.stopped
}

func (b *Bus) dispatchLoop() {
	defer close(b.stopped)
	for {
		select {
		case <-b.done:
			return
		case <-b.notify:
		}

		for {
			event, ok := b.pop()
			if !ok {
				break
			}
			b.dispatch(event)

			select {
			case <-b.done:
				return
			default:
			}
		}
	}
}

func (b *Bus) pop() (Event, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.queue) == 0 {
		return Event{}, false
	}
	event := b.queue[0]
	b.queue = b.queue[1:]
	return event, true
}

// dispatch resolves all matching subscribers (ordered by descending
// priority) and runs each in its own task via errgroup, so one panicking
// or erroring subscriber never affects another or the publisher. Errors
// are logged and swallowed — per §4.3, a failing subscriber must not
// affect the bus.
func (b *Bus) dispatch(event Event) {
	subs := b.registry.Match(event.EventType)
	if len(subs) == 0 {
		return
	}

	sort.SliceStable(subs, func(i, j int) bool {
		return subs[i].Priority() > subs[j].Priority()
	})

	ctx := context.Background()
	g, gctx := errgroup.WithContext(ctx)
	for _, sub := range subs {
		sub := sub
		g.Go(func() error {
			defer func() {
				if r := recover(); r != nil {
					slog.ErrorContext(gctx, "event subscriber panicked",
						slog.String("subscriber", sub.Name()),
						slog.String("event_type", event.EventType),
						slog.Any("panic", r))
				}
			}()
			if err := sub.Handle(gctx, event); err != nil {
				slog.ErrorContext(gctx, "event subscriber failed",
					slog.String("subscriber", sub.Name()),
					slog.String("event_type", event.EventType),
					slog.String("error", err.Error()))
			}
			return nil
		})
	}
	// errgroup's Go funcs never return a non-nil error (failures are
	// logged and swallowed above), so Wait only blocks until every
	// subscriber for this event has finished.
	_ = g.Wait()
}
