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

package audit

import (
	"context"
	"log/slog"

	"github.com/kodexcore/kodex/events"
	"github.com/kodexcore/kodex/idgen"
	"github.com/kodexcore/kodex/validate"
)

// Subscriber is the events.Subscriber that maps every domain event to
// exactly one audit Record and persists it. It subscribes to TypeAll and
// records every event the same way: actor, target, result and severity
// are copied from the event as its publisher set them, with no per-type
// mapping applied here, so no event is silently dropped from the trail.
type Subscriber struct {
	repo Repository
}

// NewSubscriber creates an audit subscriber over repo.
func NewSubscriber(repo Repository) *Subscriber {
	return &Subscriber{repo: repo}
}

func (s *Subscriber) Name() string         { return "audit" }
func (s *Subscriber) Priority() int        { return 0 }
func (s *Subscriber) EventTypes() []string { return []string{events.TypeAll} }

// Handle converts event into a Record, sanitizes its metadata, and
// persists it. Persistence failures are logged and swallowed: audit
// failure must never fault the publisher.
func (s *Subscriber) Handle(ctx context.Context, event events.Event) error {
	rec := Record{
		ID:         idgen.NewID(),
		EventType:  event.EventType,
		Timestamp:  event.Timestamp,
		ActorID:    event.ActorID,
		ActorType:  event.ActorType,
		TargetID:   event.TargetID,
		TargetType: event.TargetType,
		Result:     event.Result,
		RealmID:    event.RealmID,
		Metadata:   validate.SanitizeMetadata(event.Payload),
		SessionID:  event.SessionID,
		Severity:   event.Severity,
	}

	if err := s.repo.Insert(ctx, rec); err != nil {
		slog.ErrorContext(ctx, "audit: failed to persist record",
			slog.String("event_type", event.EventType),
			slog.String("error", err.Error()))
	}
	return nil
}
