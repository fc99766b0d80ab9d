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

// Package hooks implements the lifecycle hook executor: extensions
// register ordered interceptors at a fixed set of extension points, and
// the executor threads a value through each hook in priority order. No
// runtime type introspection is involved — a hook is a plain interface
// with a Priority() getter, and the registry is an ordered list built at
// startup.
package hooks

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
)

// Point identifies one of the fixed extension points the executor serves.
type Point string

const (
	BeforeUserCreate        Point = "beforeUserCreate"
	BeforeUserUpdate        Point = "beforeUserUpdate"
	BeforeProfileUpdate     Point = "beforeProfileUpdate"
	BeforeCustomAttrsUpdate Point = "beforeCustomAttributesUpdate"
	BeforeLogin             Point = "beforeLogin"
	AfterLoginFailure       Point = "afterLoginFailure"
	AfterAuthentication     Point = "afterAuthentication"
	BeforeUserDelete        Point = "beforeUserDelete"
)

// Strategy selects how the chain behaves when a hook fails.
type Strategy int

const (
	// FailFast stops at the first failure and returns it.
	FailFast Strategy = iota
	// CollectErrors runs every hook regardless of prior failures and
	// returns a single aggregated error at the end if any failed.
	CollectErrors
	// SkipFailed logs and skips a failing hook, carrying forward the
	// value produced by the most recent successful hook.
	SkipFailed
)

// Hook transforms a value at one extension point. Implementations must be
// safe to call concurrently if the same hook is registered at points used
// by concurrent requests; the executor itself calls hooks sequentially
// within one chain invocation.
type Hook[T any] interface {
	Name() string
	// Priority orders the chain; lower runs first.
	Priority() int
	Run(ctx context.Context, value T) (T, error)
}

// Func adapts a plain function into a Hook.
type Func[T any] struct {
	HookName     string
	HookPriority int
	Fn           func(ctx context.Context, value T) (T, error)
}

func (f Func[T]) Name() string     { return f.HookName }
func (f Func[T]) Priority() int    { return f.HookPriority }
func (f Func[T]) Run(ctx context.Context, value T) (T, error) { return f.Fn(ctx, value) }

// AggregateError collects every failure from a CollectErrors chain run.
type AggregateError struct {
	Failures []HookFailure
}

// HookFailure pairs a hook's name with the error it returned.
type HookFailure struct {
	HookName string
	Err      error
}

func (e *AggregateError) Error() string {
	return fmt.Sprintf("hooks: %d hook(s) failed: %s", len(e.Failures), e.Failures[0].Err)
}

// Unwrap exposes the first failure for errors.Is/errors.As chains.
func (e *AggregateError) Unwrap() error {
	if len(e.Failures) == 0 {
		return nil
	}
	return e.Failures[0].Err
}

// Chain holds the hooks registered at one extension point, in priority
// order, and the failure strategy applied when running them.
type Chain[T any] struct {
	mu       sync.RWMutex
	hooks    []Hook[T]
	strategy Strategy
}

// NewChain creates an empty chain with the given failure strategy.
func NewChain[T any](strategy Strategy) *Chain[T] {
	return &Chain[T]{strategy: strategy}
}

// Register adds a hook and keeps the chain sorted by ascending priority.
func (c *Chain[T]) Register(h Hook[T]) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.hooks = append(c.hooks, h)
	sort.SliceStable(c.hooks, func(i, j int) bool {
		return c.hooks[i].Priority() < c.hooks[j].Priority()
	})
}

// Run threads value through every registered hook per the chain's
// configured Strategy.
func (c *Chain[T]) Run(ctx context.Context, value T) (T, error) {
	c.mu.RLock()
	hooks := make([]Hook[T], len(c.hooks))
	copy(hooks, c.hooks)
	c.mu.RUnlock()

	switch c.strategy {
	case FailFast:
		return c.runFailFast(ctx, value, hooks)
	case CollectErrors:
		return c.runCollectErrors(ctx, value, hooks)
	case SkipFailed:
		return c.runSkipFailed(ctx, value, hooks)
	default:
		return value, fmt.Errorf("hooks: unknown strategy %d", c.strategy)
	}
}

func (c *Chain[T]) runFailFast(ctx context.Context, value T, chain []Hook[T]) (T, error) {
	current := value
	for _, h := range chain {
		next, err := h.Run(ctx, current)
		if err != nil {
			var zero T
			return zero, fmt.Errorf("hooks: %s: %w", h.Name(), err)
		}
		current = next
	}
	return current, nil
}

func (c *Chain[T]) runCollectErrors(ctx context.Context, value T, chain []Hook[T]) (T, error) {
	current := value
	var failures []HookFailure
	for _, h := range chain {
		next, err := h.Run(ctx, current)
		if err != nil {
			failures = append(failures, HookFailure{HookName: h.Name(), Err: err})
			continue
		}
		current = next
	}
	if len(failures) > 0 {
		var zero T
		return zero, &AggregateError{Failures: failures}
	}
	return current, nil
}

func (c *Chain[T]) runSkipFailed(ctx context.Context, value T, chain []Hook[T]) (T, error) {
	current := value
	for _, h := range chain {
		next, err := h.Run(ctx, current)
		if err != nil {
			slog.WarnContext(ctx, "hook failed, skipping",
				slog.String("hook", h.Name()), slog.String("error", err.Error()))
			continue
		}
		current = next
	}
	return current, nil
}
