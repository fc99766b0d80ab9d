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
	"errors"
	"sync"
)

// ErrUnknownProvider is returned by Subscribe when the caller is not a
// provider registered with RegisterProvider. The registry is the sole
// source of legitimate subscribers: a subscription from an unregistered
// provider is refused outright rather than silently accepted.
var ErrUnknownProvider = errors.New("events: subscriber's provider is not registered")

// Provider identifies an extension allowed to register subscribers. The
// host registers its providers at startup; Subscribe then checks every
// subscription against this set.
type Provider struct {
	Name string
}

// Registry is the bus's routing table: which subscribers listen to which
// event types, gated by provider registration.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]Provider
	byType    map[string][]Subscriber
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		providers: make(map[string]Provider),
		byType:    make(map[string][]Subscriber),
	}
}

// RegisterProvider authorizes provider to register subscribers.
func (r *Registry) RegisterProvider(provider Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[provider.Name] = provider
}

// Subscribe adds sub's subscriber to every event type it declares
// interest in. providerName must have been registered via
// RegisterProvider, or Subscribe returns ErrUnknownProvider.
func (r *Registry) Subscribe(providerName string, sub Subscriber) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.providers[providerName]; !ok {
		return ErrUnknownProvider
	}

	for _, t := range sub.EventTypes() {
		r.byType[t] = append(r.byType[t], sub)
	}
	return nil
}

// Unsubscribe removes sub from every event type's routing list.
func (r *Registry) Unsubscribe(sub Subscriber) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for t, subs := range r.byType {
		filtered := subs[:0]
		for _, s := range subs {
			if s.Name() != sub.Name() {
				filtered = append(filtered, s)
			}
		}
		r.byType[t] = filtered
	}
}

// Match returns every subscriber registered for eventType plus every
// subscriber registered for TypeAll, deduplicated by name.
func (r *Registry) Match(eventType string) []Subscriber {
	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := make(map[string]bool)
	var matched []Subscriber

	for _, sub := range r.byType[eventType] {
		if !seen[sub.Name()] {
			seen[sub.Name()] = true
			matched = append(matched, sub)
		}
	}
	for _, sub := range r.byType[TypeAll] {
		if !seen[sub.Name()] {
			seen[sub.Name()] = true
			matched = append(matched, sub)
		}
	}

	out := make([]Subscriber, len(matched))
	copy(out, matched)
	return out
}
