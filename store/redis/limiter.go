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
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/kodexcore/kodex/idgen"
	"github.com/kodexcore/kodex/reset"
)

const (
	windowKeyPrefix      = "kodex:reset:window:"
	reservationKeyPrefix = "kodex:reset:reservation:"
)

// Limiter implements reset.Limiter over Redis using a sorted set per
// rate-limit key: each reservation is a member scored by its reservation
// time, so Reserve prunes everything older than the window before
// counting. A side key per reservation id (written with a plain SET next
// to the member, expiring with the window) records which rate-limit key a reservation belongs
// to, so Rollback can find and remove it without the caller passing the
// key back.
type Limiter struct {
	client *redis.Client
	window time.Duration
	max    int64
}

// NewLimiter creates a Redis-backed Limiter allowing at most max
// reservations per key within any sliding window of length window.
func NewLimiter(client *redis.Client, window time.Duration, max int) *Limiter {
	return &Limiter{client: client, window: window, max: int64(max)}
}

// reserveScript prunes expired members, checks the remaining count
// against the limit, and — only if there's room — adds the new
// reservation and records its reverse-lookup key, all as one
// round trip. Without this, two concurrent Reserve calls on the same
// key can both pass the count check before either adds its member,
// over-admitting past max.
var reserveScript = redis.NewScript(`
	local windowKey = KEYS[1]
	local reservationKey = KEYS[2]
	local cutoff = ARGV[1]
	local max = tonumber(ARGV[2])
	local id = ARGV[3]
	local now = ARGV[4]
	local windowSeconds = ARGV[5]
	local rateLimitKey = ARGV[6]

	redis.call('ZREMRANGEBYSCORE', windowKey, '0', cutoff)

	local count = redis.call('ZCARD', windowKey)
	if count >= max then
		return 0
	end

	redis.call('ZADD', windowKey, now, id)
	redis.call('EXPIRE', windowKey, windowSeconds)
	redis.call('SET', reservationKey, rateLimitKey, 'EX', windowSeconds)

	return 1
`)

// Reserve atomically tests and increments the sliding window for key.
func (l *Limiter) Reserve(ctx context.Context, key string) (string, error) {
	windowKey := windowKeyPrefix + key
	cutoff := time.Now().Add(-l.window)
	id := idgen.NewID()
	now := time.Now()

	result, err := reserveScript.Run(ctx, l.client,
		[]string{windowKey, reservationKeyPrefix + id},
		cutoff.UnixMilli(), l.max, id, now.UnixMilli(), int(l.window.Seconds()), key,
	).Int()
	if err != nil {
		return "", fmt.Errorf("failed to reserve: %w", err)
	}
	if result == 0 {
		return "", reset.ErrRateLimitExceeded
	}

	return id, nil
}

// Commit makes a reservation permanent. The window already counts the
// reservation from Reserve, so Commit is a no-op beyond validating the
// reservation still exists.
func (l *Limiter) Commit(ctx context.Context, reservationID string) error {
	exists, err := l.client.Exists(ctx, reservationKeyPrefix+reservationID).Result()
	if err != nil {
		return fmt.Errorf("failed to check reservation: %w", err)
	}
	if exists == 0 {
		return reset.ErrReservationNotFound
	}
	return nil
}

// Rollback releases a reservation so its slot can be reused within the
// window.
func (l *Limiter) Rollback(ctx context.Context, reservationID string) error {
	key, err := l.client.Get(ctx, reservationKeyPrefix+reservationID).Result()
	if err == redis.Nil {
		return reset.ErrReservationNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to look up reservation: %w", err)
	}

	if err := l.client.ZRem(ctx, windowKeyPrefix+key, reservationID).Err(); err != nil {
		return fmt.Errorf("failed to remove reservation: %w", err)
	}
	l.client.Del(ctx, reservationKeyPrefix+reservationID)
	return nil
}
