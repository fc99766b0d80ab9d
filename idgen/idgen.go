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

// Package idgen generates entity identifiers and opaque secrets used
// throughout the core: user/role/token/session ids and the random
// components of bearer tokens.
package idgen

import (
	"crypto/rand"
	"encoding/base64"

	"github.com/google/uuid"
)

// NewID returns a new UUIDv7 string, time-ordered for index locality.
func NewID() string {
	id, err := uuid.NewV7()
	if err != nil {
		// uuid.NewV7 only fails if the system entropy source is broken;
		// fall back to a random v4 rather than panic a caller mid-request.
		return uuid.NewString()
	}
	return id.String()
}

// NewOpaqueSecret returns a URL-safe random token of n bytes of entropy,
// suitable for bearer secrets (refresh tokens, password-reset tokens,
// session ids) that are never stored in plaintext.
func NewOpaqueSecret(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
