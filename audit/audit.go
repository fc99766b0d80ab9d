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

// Package audit turns domain events into append-only audit records. It
// subscribes to the event bus, maps each event type to a record shape,
// sanitizes metadata, and persists through a Repository. A persistence
// failure here is always local: logged and swallowed, never surfaced to
// the publisher.
package audit

import (
	"context"
	"time"

	"github.com/kodexcore/kodex/events"
)

// Record is one append-only audit row.
type Record struct {
	ID         string
	EventType  string
	Timestamp  time.Time
	ActorID    string
	ActorType  events.ActorType
	TargetID   string
	TargetType string
	Result     events.Result
	RealmID    string
	Metadata   map[string]any
	SessionID  string
	Severity   events.Severity
}

// Repository persists and prunes audit records.
type Repository interface {
	Insert(ctx context.Context, r Record) error
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}
