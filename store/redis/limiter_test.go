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

package redis

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/kodexcore/kodex/reset"
)

func TestLimiterReserveUpToMax(t *testing.T) {
	client, _ := newTestClient(t)
	limiter := NewLimiter(client, time.Minute, 2)
	ctx := context.Background()

	if _, err := limiter.Reserve(ctx, "user-1"); err != nil {
		t.Fatalf("Reserve() #1 error = %v", err)
	}
	if _, err := limiter.Reserve(ctx, "user-1"); err != nil {
		t.Fatalf("Reserve() #2 error = %v", err)
	}

	_, err := limiter.Reserve(ctx, "user-1")
	if !errors.Is(err, reset.ErrRateLimitExceeded) {
		t.Fatalf("Reserve() #3 error = %v, want ErrRateLimitExceeded", err)
	}
}

func TestLimiterRollbackFreesSlot(t *testing.T) {
	client, _ := newTestClient(t)
	limiter := NewLimiter(client, time.Minute, 1)
	ctx := context.Background()

	id, err := limiter.Reserve(ctx, "user-2")
	if err != nil {
		t.Fatalf("Reserve() error = %v", err)
	}

	if err := limiter.Rollback(ctx, id); err != nil {
		t.Fatalf("Rollback() error = %v", err)
	}

	if _, err := limiter.Reserve(ctx, "user-2"); err != nil {
		t.Fatalf("Reserve() after rollback error = %v", err)
	}
}

func TestLimiterCommitValidatesReservation(t *testing.T) {
	client, _ := newTestClient(t)
	limiter := NewLimiter(client, time.Minute, 1)
	ctx := context.Background()

	id, err := limiter.Reserve(ctx, "user-3")
	if err != nil {
		t.Fatalf("Reserve() error = %v", err)
	}

	if err := limiter.Commit(ctx, id); err != nil {
		t.Fatalf("Commit() error = %v", err)
	}

	if err := limiter.Commit(ctx, "does-not-exist"); !errors.Is(err, reset.ErrReservationNotFound) {
		t.Fatalf("Commit() error = %v, want ErrReservationNotFound", err)
	}
}

// TestLimiterReserveConcurrentNeverExceedsMax fires more concurrent
// Reserve calls than the limit allows and checks that no more than max
// succeed — the count-then-add sequence runs as one Lua script, so two
// racing calls can't both pass the count check before either adds its
// member.
func TestLimiterReserveConcurrentNeverExceedsMax(t *testing.T) {
	client, _ := newTestClient(t)
	const max = 5
	limiter := NewLimiter(client, time.Minute, max)
	ctx := context.Background()

	var wg sync.WaitGroup
	var mu sync.Mutex
	admitted := 0
	const attempts = 20
	wg.Add(attempts)
	for i := 0; i < attempts; i++ {
		go func() {
			defer wg.Done()
			if _, err := limiter.Reserve(ctx, "user-race"); err == nil {
				mu.Lock()
				admitted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if admitted != max {
		t.Fatalf("admitted = %d, want exactly %d", admitted, max)
	}
}

func TestLimiterWindowExpires(t *testing.T) {
	client, mr := newTestClient(t)
	limiter := NewLimiter(client, time.Second, 1)
	ctx := context.Background()

	if _, err := limiter.Reserve(ctx, "user-4"); err != nil {
		t.Fatalf("Reserve() error = %v", err)
	}

	mr.FastForward(2 * time.Second)

	if _, err := limiter.Reserve(ctx, "user-4"); err != nil {
		t.Fatalf("Reserve() after window expiry error = %v", err)
	}
}
