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

import (
	"errors"
	"fmt"

	"github.com/kodexcore/kodex/validate"
)

// ErrNotFound is returned when the target user does not exist.
var ErrNotFound = errors.New("update: user not found")

// ValidationFailedError wraps the field errors a validator produced,
// including those surfaced by a hook that rejected the new values.
type ValidationFailedError struct {
	Errors []validate.FieldError
}

func (e *ValidationFailedError) Error() string {
	if len(e.Errors) == 0 {
		return "update: validation failed"
	}
	return fmt.Sprintf("update: validation failed: %s", e.Errors[0].Message)
}

// ConstraintViolationError is returned when storage rejects an update for
// violating a uniqueness constraint (e.g. a duplicate normalized email).
type ConstraintViolationError struct {
	Field   string
	Message string
}

func (e *ConstraintViolationError) Error() string {
	return fmt.Sprintf("update: constraint violation on %s: %s", e.Field, e.Message)
}

// UnknownError wraps an unexpected storage failure.
type UnknownError struct {
	Message string
	Err     error
}

func (e *UnknownError) Error() string {
	return fmt.Sprintf("update: %s: %v", e.Message, e.Err)
}

func (e *UnknownError) Unwrap() error { return e.Err }
