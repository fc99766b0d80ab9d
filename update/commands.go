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

package update

import "github.com/kodexcore/kodex/user"

// UpdateUserFields mutates a subset of a User's directly-mutable fields.
// Zero-valued (NoChange) fields are left untouched.
type UpdateUserFields struct {
	RealmID string
	UserID  string
	Email   Field[string]
	Phone   Field[string]
	Status  Field[user.Status]
}

// UpdateProfileFields mutates a subset of a user's Profile.
type UpdateProfileFields struct {
	RealmID    string
	UserID     string
	FirstName  Field[string]
	LastName   Field[string]
	Address    Field[string]
	PictureURL Field[string]
}

// AttrOpKind distinguishes the three attribute operations.
type AttrOpKind int

const (
	AttrSet AttrOpKind = iota
	AttrRemove
	AttrReplaceAll
)

// AttrOp is one operation in an UpdateAttributes sequence.
type AttrOp struct {
	Kind  AttrOpKind
	Key   string         // used by AttrSet, AttrRemove
	Value any            // used by AttrSet
	All   map[string]any // used by AttrReplaceAll
}

// SetAttr builds a Set(key, value) operation.
func SetAttr(key string, value any) AttrOp { return AttrOp{Kind: AttrSet, Key: key, Value: value} }

// RemoveAttr builds a Remove(key) operation.
func RemoveAttr(key string) AttrOp { return AttrOp{Kind: AttrRemove, Key: key} }

// ReplaceAllAttrs builds a ReplaceAll(map) operation. A ReplaceAll
// anywhere in an operation sequence supersedes every other operation in
// that sequence.
func ReplaceAllAttrs(all map[string]any) AttrOp { return AttrOp{Kind: AttrReplaceAll, All: all} }

// UpdateAttributes applies an ordered sequence of attribute operations.
type UpdateAttributes struct {
	RealmID string
	UserID  string
	Ops     []AttrOp
}

// BatchItem pairs one user's field update with its target, for an
// UpdateUserBatch.
type BatchItem struct {
	Fields UpdateUserFields
}

// UpdateUserBatch applies every item atomically when the repository
// implements Transactor: if any sub-update violates a constraint, the
// whole batch aborts and the original state is preserved. Without a
// Transactor the items are applied one after another, and items applied
// before a failing one are not rolled back.
type UpdateUserBatch struct {
	RealmID string
	Items   []BatchItem
}

// Change records a field's old and new value for a Success result.
type Change struct {
	Old any
	New any
}

// ChangeSet maps field name to its recorded Change.
type ChangeSet map[string]Change
