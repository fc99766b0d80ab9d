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

package hashing

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
)

// TokenSaltLength is the salt size used by TokenHasher, in bytes.
const TokenSaltLength = 16

// TokenHasher computes a fast, salted digest for opaque bearer secrets
// (refresh token secrets, password-reset tokens). It is intentionally not
// memory-hard: these secrets already carry their own entropy, so the goal
// is a fast check rather than brute-force resistance of a low-entropy
// input. Because every digest carries a fresh random salt, a digest can
// verify a candidate secret but cannot be recomputed to look a row up.
type TokenHasher struct{}

// NewTokenHasher creates a token digest hasher.
func NewTokenHasher() *TokenHasher {
	return &TokenHasher{}
}

// Hash returns base64(salt) + "." + base64(sha256(salt||secret)), so the
// digest is self-contained and fits in a single column.
func (h *TokenHasher) Hash(secret string) (string, error) {
	salt := make([]byte, TokenSaltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("hashing: generate salt: %w", err)
	}

	sum := sha256.Sum256(append(append([]byte{}, salt...), secret...))

	return base64.RawURLEncoding.EncodeToString(salt) + "." + base64.RawURLEncoding.EncodeToString(sum[:]), nil
}

// Verify reports whether secret matches the stored digest, using a
// constant-time comparison of the hash portion. Malformed digests return
// false without error.
func (h *TokenHasher) Verify(secret, digest string) (bool, error) {
	salt, sum, ok := splitDigest(digest)
	if !ok {
		return false, nil
	}

	actual := sha256.Sum256(append(append([]byte{}, salt...), secret...))

	return subtle.ConstantTimeCompare(actual[:], sum) == 1, nil
}

func splitDigest(digest string) (salt, sum []byte, ok bool) {
	dot := -1
	for i := 0; i < len(digest); i++ {
		if digest[i] == '.' {
			dot = i
			break
		}
	}
	if dot < 0 {
		return nil, nil, false
	}

	salt, err := base64.RawURLEncoding.DecodeString(digest[:dot])
	if err != nil {
		return nil, nil, false
	}
	sum, err = base64.RawURLEncoding.DecodeString(digest[dot+1:])
	if err != nil {
		return nil, nil, false
	}
	return salt, sum, true
}
