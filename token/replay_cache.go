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

package token

import (
	"context"
	"sync"
	"time"
)

// ReplayCache holds the pair minted on a refresh token's first use for
// the grace-period window, so a client retrying the same request (e.g.
// after a dropped response) gets back the identical pair instead of
// tripping replay detection. The raw refresh secret only ever exists in
// memory and in the response sent to the client — the store holds its
// hash, not the secret — so grace-period re-use cannot recompute the
// original pair; it must be cached at issuance.
type ReplayCache interface {
	Store(ctx context.Context, parentTokenID string, pair *Pair, ttl time.Duration) error
	Get(ctx context.Context, parentTokenID string) (*Pair, bool, error)
}

// MemoryReplayCache is an in-process ReplayCache suitable for a single
// instance. A multi-instance deployment should supply a shared backend
// (e.g. store/redis's ReplayCache) instead.
type MemoryReplayCache struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
}

type memoryEntry struct {
	pair   *Pair
	expiry time.Time
}

// NewMemoryReplayCache creates an empty MemoryReplayCache.
func NewMemoryReplayCache() *MemoryReplayCache {
	return &MemoryReplayCache{entries: make(map[string]memoryEntry)}
}

func (c *MemoryReplayCache) Store(ctx context.Context, parentTokenID string, pair *Pair, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[parentTokenID] = memoryEntry{pair: pair, expiry: time.Now().Add(ttl)}
	return nil
}

func (c *MemoryReplayCache) Get(ctx context.Context, parentTokenID string) (*Pair, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.entries[parentTokenID]
	if !ok {
		return nil, false, nil
	}
	if time.Now().After(entry.expiry) {
		delete(c.entries, parentTokenID)
		return nil, false, nil
	}
	return entry.pair, true, nil
}
