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

// Package redis provides shared-state backends for a multi-instance
// Kodex deployment: a replay cache for refresh-token grace periods and a
// sliding-window rate limiter for password-reset requests. Both are
// in-process (token.MemoryReplayCache, reset.MemoryLimiter) alternatives
// promoted to a shared Redis backend once more than one instance needs
// to agree on the same state.
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/kodexcore/kodex/token"
)

// minTTL avoids Redis timing issues around very short expirations: Redis
// has millisecond precision, but a TTL near zero can expire between the
// SET and the following GET under load.
const minTTL = 100 * time.Millisecond

const replayKeyPrefix = "kodex:replay:"

// ReplayCache implements token.ReplayCache over Redis, so every instance
// behind a load balancer sees the same grace-period pair for a given
// parent token.
type ReplayCache struct {
	client *redis.Client
}

// NewReplayCache creates a Redis-backed ReplayCache.
func NewReplayCache(client *redis.Client) *ReplayCache {
	return &ReplayCache{client: client}
}

// Store caches pair under parentTokenID for ttl.
func (c *ReplayCache) Store(ctx context.Context, parentTokenID string, pair *token.Pair, ttl time.Duration) error {
	if ttl < minTTL {
		ttl = minTTL
	}

	encoded, err := json.Marshal(pair)
	if err != nil {
		return fmt.Errorf("failed to encode replay pair: %w", err)
	}

	if err := c.client.Set(ctx, replayKeyPrefix+parentTokenID, encoded, ttl).Err(); err != nil {
		return fmt.Errorf("failed to store replay pair: %w", err)
	}
	return nil
}

// Get returns the cached pair for parentTokenID, if it exists and has
// not expired.
func (c *ReplayCache) Get(ctx context.Context, parentTokenID string) (*token.Pair, bool, error) {
	val, err := c.client.Get(ctx, replayKeyPrefix+parentTokenID).Result()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to get replay pair: %w", err)
	}

	var pair token.Pair
	if err := json.Unmarshal([]byte(val), &pair); err != nil {
		return nil, false, fmt.Errorf("failed to decode replay pair: %w", err)
	}
	return &pair, true, nil
}
