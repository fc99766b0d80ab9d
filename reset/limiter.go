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

package reset

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/kodexcore/kodex/idgen"
)

// ErrReservationNotFound is returned by Commit/Rollback for an unknown
// or already-resolved reservation id.
var ErrReservationNotFound = errors.New("reset: reservation not found")

// Limiter is a sliding-window rate limiter with two-phase reservations:
// Reserve atomically tests and increments the window's count, Commit
// makes the reservation permanent, and Rollback releases it so the slot
// can be reused. A reservation counts against the window from the
// moment it is made, whether or not it is ever committed — that's what
// makes concurrent over-reservation impossible.
type Limiter interface {
	Reserve(ctx context.Context, key string) (reservationID string, err error)
	Commit(ctx context.Context, reservationID string) error
	Rollback(ctx context.Context, reservationID string) error
}

// MemoryLimiter is an in-process sliding-window Limiter keyed by an
// arbitrary string (user id, identifier, or IP address). A multi-instance
// deployment should supply a shared backend instead (see store/redis).
type MemoryLimiter struct {
	window time.Duration
	max    int

	mu    sync.Mutex
	byKey map[string][]*reservation
	byID  map[string]*reservation
}

type reservation struct {
	id        string
	key       string
	at        time.Time
	committed bool
}

// NewMemoryLimiter creates a limiter allowing at most max reservations
// per key within any sliding window of length window.
func NewMemoryLimiter(window time.Duration, max int) *MemoryLimiter {
	return &MemoryLimiter{
		window: window,
		max:    max,
		byKey:  make(map[string][]*reservation),
		byID:   make(map[string]*reservation),
	}
}

func (l *MemoryLimiter) Reserve(ctx context.Context, key string) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := time.Now().Add(-l.window)
	live := l.byKey[key][:0]
	for _, r := range l.byKey[key] {
		if r.at.After(cutoff) {
			live = append(live, r)
		} else {
			delete(l.byID, r.id)
		}
	}
	l.byKey[key] = live

	if len(live) >= l.max {
		return "", ErrRateLimitExceeded
	}

	r := &reservation{id: idgen.NewID(), key: key, at: time.Now()}
	l.byKey[key] = append(l.byKey[key], r)
	l.byID[r.id] = r
	return r.id, nil
}

func (l *MemoryLimiter) Commit(ctx context.Context, reservationID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	r, ok := l.byID[reservationID]
	if !ok {
		return ErrReservationNotFound
	}
	r.committed = true
	return nil
}

func (l *MemoryLimiter) Rollback(ctx context.Context, reservationID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	r, ok := l.byID[reservationID]
	if !ok {
		return ErrReservationNotFound
	}
	delete(l.byID, reservationID)
	entries := l.byKey[r.key]
	for i, e := range entries {
		if e.id == reservationID {
			l.byKey[r.key] = append(entries[:i], entries[i+1:]...)
			break
		}
	}
	return nil
}
