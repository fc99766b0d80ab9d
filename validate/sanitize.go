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
	"regexp"
	"strings"
	"unicode"
)

// Redacted replaces the value of any metadata key the redaction rules
// consider sensitive.
const Redacted = "[REDACTED]"

var htmlEscaper = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
	`"`, "&quot;",
	"'", "&#x27;",
	"/", "&#x2F;",
)

// sensitiveSubstrings match anywhere in a key once it has been lowercased
// and stripped of '_'/'-' separators, so "api_key", "api-key", and "apiKey"
// all normalize to "apikey" and match the same entry.
var sensitiveSubstrings = []string{
	"password", "token", "secret", "credential", "authorization", "otp",
	"code", "apikey", "accesskey", "secretkey", "privatekey",
}

// benignKeyExceptions lists normalized keys that are never redacted,
// because they name non-secret identifiers rather than credentials. They
// are checked before the substring match above; "primarykey" contains
// none of the current sensitiveSubstrings, so with today's list the
// exception changes no result.
var benignKeyExceptions = map[string]bool{
	"primarykey": true,
}

var keySeparators = regexp.MustCompile(`[_\-\s]+`)

// SanitizeString HTML-entity-escapes the six characters that matter for
// stored-XSS in a typical template engine and strips ISO control characters
// other than the common whitespace ones.
func SanitizeString(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if unicode.IsControl(r) && r != '\n' && r != '\t' && r != '\r' {
			continue
		}
		b.WriteRune(r)
	}
	return htmlEscaper.Replace(b.String())
}

// IsSensitiveKey reports whether a metadata key's value should be redacted
// before storage or logging.
func IsSensitiveKey(key string) bool {
	normalized := keySeparators.ReplaceAllString(strings.ToLower(key), "")
	if benignKeyExceptions[normalized] {
		return false
	}
	for _, sub := range sensitiveSubstrings {
		if strings.Contains(normalized, sub) {
			return true
		}
	}
	return false
}

// SanitizeMetadata walks an arbitrarily nested map (as produced by decoding
// JSON event/audit payloads) and returns a copy with string values
// HTML-escaped and sensitive keys' values replaced with Redacted. Nested
// maps and slices are sanitized recursively; other value types pass
// through unchanged.
func SanitizeMetadata(metadata map[string]any) map[string]any {
	out := make(map[string]any, len(metadata))
	for k, v := range metadata {
		if IsSensitiveKey(k) {
			out[k] = Redacted
			continue
		}
		out[k] = sanitizeValue(v)
	}
	return out
}

func sanitizeValue(v any) any {
	switch val := v.(type) {
	case string:
		return SanitizeString(val)
	case map[string]any:
		return SanitizeMetadata(val)
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = sanitizeValue(item)
		}
		return out
	default:
		return v
	}
}
