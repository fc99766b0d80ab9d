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

package validate

import (
	"fmt"
	"regexp"
)

const (
	maxAttributeKeyLength   = 128
	maxAttributeValueLength = 4096
	maxAttributeCount       = 64
)

// attributeKeyPattern restricts custom attribute keys to identifier-safe
// characters so they can be used as column-free JSONB keys and as template
// variables without further escaping.
var attributeKeyPattern = regexp.MustCompile(`^[A-Za-z0-9_.-]+$`)

// reservedAttributeKeys collide with first-class User/Profile fields and
// are rejected so a custom attribute can never shadow a core field.
var reservedAttributeKeys = map[string]bool{
	"id": true, "email": true, "password": true, "passwordHash": true,
	"createdAt": true, "updatedAt": true, "realmId": true, "status": true,
}

// AttributeValidator validates the custom-attribute map attached to a User.
type AttributeValidator struct {
	MaxKeyLength   int
	MaxValueLength int
	MaxCount       int
}

// NewAttributeValidator creates a validator with the package defaults.
func NewAttributeValidator() *AttributeValidator {
	return &AttributeValidator{
		MaxKeyLength:   maxAttributeKeyLength,
		MaxValueLength: maxAttributeValueLength,
		MaxCount:       maxAttributeCount,
	}
}

// Validate checks an entire attribute set: count bound, then per-key
// pattern/reserved/length checks and a length check on each string value.
// Non-string values (numbers, bools, nested objects) are accepted as-is;
// only their key is validated.
func (v *AttributeValidator) Validate(attributes map[string]any) []FieldError {
	var errs []FieldError

	if len(attributes) > v.MaxCount {
		errs = append(errs, FieldError{
			Code:    "attribute.count",
			Message: fmt.Sprintf("at most %d custom attributes are allowed, got %d", v.MaxCount, len(attributes)),
		})
		return errs
	}

	for key, value := range attributes {
		errs = append(errs, v.validateKey(key)...)
		if s, ok := value.(string); ok && len(s) > v.MaxValueLength {
			errs = append(errs, FieldError{
				Code:    "attribute.value.length",
				Message: fmt.Sprintf("attribute %q value exceeds %d characters", key, v.MaxValueLength),
			})
		}
	}

	return errs
}

func (v *AttributeValidator) validateKey(key string) []FieldError {
	var errs []FieldError

	if len(key) == 0 || len(key) > v.MaxKeyLength {
		errs = append(errs, FieldError{
			Code:    "attribute.key.length",
			Message: fmt.Sprintf("attribute key %q must be 1-%d characters", key, v.MaxKeyLength),
		})
	}
	if !attributeKeyPattern.MatchString(key) {
		errs = append(errs, FieldError{
			Code:    "attribute.key.format",
			Message: fmt.Sprintf("attribute key %q must match [A-Za-z0-9_.-]+", key),
		})
	}
	if reservedAttributeKeys[key] {
		errs = append(errs, FieldError{
			Code:    "attribute.key.reserved",
			Message: fmt.Sprintf("attribute key %q is reserved for a core field", key),
		})
	}

	return errs
}
