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

// Package update implements the three-state field update processor:
// every mutable field on a command carries either NoChange, a new value,
// or an explicit clear, and the processor detects actual changes, runs
// them through the relevant hook chain, and applies them atomically.
package update

// State is one of the three states a Field can carry.
type State int

const (
	// NoChange leaves the current value untouched.
	NoChange State = iota
	// Set overwrites the current value.
	Set
	// Clear sets a nullable field to null.
	Clear
)

// Field is a three-state update to a single value: leave it, set it to
// Value, or clear it (for nullable columns). The zero value is NoChange.
type Field[T any] struct {
	state State
	value T
}

// NoChangeField returns a Field that leaves the current value untouched.
func NoChangeField[T any]() Field[T] {
	return Field[T]{state: NoChange}
}

// SetField returns a Field that overwrites the current value with v.
func SetField[T any](v T) Field[T] {
	return Field[T]{state: Set, value: v}
}

// ClearField returns a Field that clears a nullable value.
func ClearField[T any]() Field[T] {
	return Field[T]{state: Clear}
}

// State reports which of the three states f carries.
func (f Field[T]) State() State { return f.state }

// Value returns f's value; only meaningful when State() == Set.
func (f Field[T]) Value() T { return f.value }

// IsNoChange reports whether f carries no update at all.
func (f Field[T]) IsNoChange() bool { return f.state == NoChange }
