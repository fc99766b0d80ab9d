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

// Package validate implements the input-validation core: email and phone
// normalization, password-strength scoring, and attribute sanitization.
// User creation (user.Service) and the update processor run their inputs
// through this package first, and the audit subscriber sanitizes event
// metadata with it; the auth login flow and the reset service do not
// call it.
package validate

import (
	"regexp"
	"strings"
)

// EmailResult carries the sanitized email plus any validation errors. A
// non-empty Errors slice means Email must not be used.
type EmailResult struct {
	Email  string
	Errors []FieldError
}

// FieldError is a stable, machine-matchable validation failure.
type FieldError struct {
	Code    string
	Message string
}

const (
	maxEmailLength = 320
	maxLocalLength = 64
	maxDomainLen   = 255
)

// emailStructure is deliberately conservative: one '@', no whitespace, a
// domain with at least one dot, matching the "structural regex" the spec
// requires beyond the length/local/domain checks.
var emailStructure = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// EmailValidator validates and normalizes email addresses.
type EmailValidator struct {
	// DisposableDomains blocks exact matches and subdomains, e.g. blocking
	// "mailinator.com" also blocks "foo.mailinator.com".
	DisposableDomains map[string]bool
	AllowDisposable   bool
}

// NewEmailValidator creates a validator with an optional disposable-domain
// blocklist. Pass nil (or set AllowDisposable) to skip that check.
func NewEmailValidator(disposableDomains map[string]bool, allowDisposable bool) *EmailValidator {
	return &EmailValidator{DisposableDomains: disposableDomains, AllowDisposable: allowDisposable}
}

// Validate trims, lowercases (strings.ToLower: Unicode case mapping that
// does not depend on the locale, so email local/domain parts are case
// folded the same way everywhere), and
// validates an email address, returning the sanitized form and any errors.
func (v *EmailValidator) Validate(raw string) EmailResult {
	sanitized := strings.ToLower(strings.TrimSpace(raw))
	result := EmailResult{Email: sanitized}

	if len(sanitized) == 0 || len(sanitized) > maxEmailLength {
		result.Errors = append(result.Errors, FieldError{Code: "email.length", Message: "email must be between 1 and 320 characters"})
		return result
	}

	at := strings.Count(sanitized, "@")
	if at != 1 {
		result.Errors = append(result.Errors, FieldError{Code: "email.structure", Message: "email must contain exactly one '@'"})
		return result
	}

	parts := strings.SplitN(sanitized, "@", 2)
	local, domain := parts[0], parts[1]

	if len(local) == 0 || len(local) > maxLocalLength {
		result.Errors = append(result.Errors, FieldError{Code: "email.local_part.length", Message: "local part must be 1-64 characters"})
	}
	if len(domain) == 0 || len(domain) > maxDomainLen {
		result.Errors = append(result.Errors, FieldError{Code: "email.domain.length", Message: "domain must be 1-255 characters"})
	}

	if !emailStructure.MatchString(sanitized) {
		result.Errors = append(result.Errors, FieldError{Code: "email.format", Message: "email does not match the required structure"})
	}

	if len(result.Errors) > 0 {
		return result
	}

	if !v.AllowDisposable && v.isDisposable(domain) {
		result.Errors = append(result.Errors, FieldError{Code: "email.disposable", Message: "disposable email domains are not allowed"})
	}

	return result
}

func (v *EmailValidator) isDisposable(domain string) bool {
	if len(v.DisposableDomains) == 0 {
		return false
	}
	if v.DisposableDomains[domain] {
		return true
	}
	// Subdomain match: foo.mailinator.com is blocked if mailinator.com is.
	labels := strings.Split(domain, ".")
	for i := 1; i < len(labels); i++ {
		if v.DisposableDomains[strings.Join(labels[i:], ".")] {
			return true
		}
	}
	return false
}
