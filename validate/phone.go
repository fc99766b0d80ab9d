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
	"strings"

	"github.com/nyaruka/phonenumbers"
)

// PhoneResult carries the sanitized E.164 phone number plus any errors.
type PhoneResult struct {
	Phone  string
	Errors []FieldError
}

// PhoneValidator validates and normalizes phone numbers to E.164 using
// the same numbering-plan metadata libphonenumber ships, so regionally
// invalid numbers (wrong length for the region, unassigned area code,
// etc.) are rejected rather than merely checked against E.164's bare
// structural bounds.
type PhoneValidator struct {
	DefaultRegion string // ISO 3166-1 alpha-2, used when the input has no leading '+'
	RequireE164   bool
}

// NewPhoneValidator creates a phone validator. defaultRegion is used to
// parse numbers that arrive without a leading '+'.
func NewPhoneValidator(defaultRegion string, requireE164 bool) *PhoneValidator {
	return &PhoneValidator{
		DefaultRegion: strings.ToUpper(defaultRegion),
		RequireE164:   requireE164,
	}
}

// Validate parses raw against the default region's numbering plan and
// checks the result is both a structurally possible and an actually
// assigned/valid number for that plan.
func (v *PhoneValidator) Validate(raw string) PhoneResult {
	trimmed := strings.TrimSpace(raw)
	hasPlus := strings.HasPrefix(trimmed, "+")

	if v.RequireE164 && !hasPlus {
		return PhoneResult{Errors: []FieldError{{Code: "phone.format", Message: "phone number must be in E.164 format (leading '+')"}}}
	}

	num, err := phonenumbers.Parse(trimmed, v.DefaultRegion)
	if err != nil {
		return PhoneResult{Errors: []FieldError{{Code: "phone.format", Message: "phone number is not a valid E.164 number"}}}
	}

	if !phonenumbers.IsValidNumber(num) {
		return PhoneResult{Errors: []FieldError{{Code: "phone.invalid", Message: "phone number is not valid for its region"}}}
	}

	return PhoneResult{Phone: phonenumbers.Format(num, phonenumbers.E164)}
}
