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

// Package hashing provides the two hash primitives the core needs: a
// memory-hard, tunable password digest (Argon2id) and a fast salted digest
// for opaque bearer secrets (refresh tokens, reset tokens).
package hashing

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"sync"

	"golang.org/x/crypto/argon2"
)

// ErrMalformedDigest is the parse error for a digest that does not decode
// as an encoded hash. Verify does not return it: it reports a malformed
// digest as (false, nil), which never leaks whether the plaintext would
// otherwise have matched.
var ErrMalformedDigest = errors.New("hashing: malformed digest")

// PasswordParams tunes the Argon2id cost. Presets below satisfy the
// spec's floor: memory >= 19 MiB, iterations >= 2, parallelism >= 1.
type PasswordParams struct {
	MemoryKiB   uint32
	Iterations  uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

// OWASPMinParams is the OWASP cheat-sheet minimum: 19 MiB, t=2, p=1.
func OWASPMinParams() PasswordParams {
	return PasswordParams{MemoryKiB: 19 * 1024, Iterations: 2, Parallelism: 1, SaltLength: 16, KeyLength: 32}
}

// BalancedParams is a moderate everyday default: 64 MiB, t=3, p=4.
func BalancedParams() PasswordParams {
	return PasswordParams{MemoryKiB: 64 * 1024, Iterations: 3, Parallelism: 4, SaltLength: 16, KeyLength: 32}
}

// SpringLikeParams mirrors Spring Security's Argon2 defaults: 16 MiB, t=2, p=1.
// Rounded up to the spec's 19 MiB floor.
func SpringLikeParams() PasswordParams {
	return PasswordParams{MemoryKiB: 19 * 1024, Iterations: 2, Parallelism: 1, SaltLength: 16, KeyLength: 32}
}

// KeycloakLikeParams mirrors Keycloak's Argon2 defaults: 7 MiB raised to
// the 19 MiB floor, t=5, p=1.
func KeycloakLikeParams() PasswordParams {
	return PasswordParams{MemoryKiB: 19 * 1024, Iterations: 5, Parallelism: 1, SaltLength: 16, KeyLength: 32}
}

// PasswordHasher hashes and verifies passwords using Argon2id.
//
// Purpose: primary mechanism for secure password storage and verification.
// Invariants: every Hash call draws a fresh random salt, so two calls with
// the same plaintext never produce the same encoded digest.
type PasswordHasher struct {
	params PasswordParams

	dummyOnce   sync.Once
	dummyDigest string
	dummyErr    error
}

// NewPasswordHasher creates a hasher from explicit Argon2id parameters.
func NewPasswordHasher(params PasswordParams) *PasswordHasher {
	if params.SaltLength < 8 {
		params.SaltLength = 8
	}
	if params.KeyLength < 16 {
		params.KeyLength = 16
	}
	return &PasswordHasher{params: params}
}

// Hash encodes a fresh Argon2id digest of password as
// $argon2id$v=<ver>$m=<KiB>,t=<iter>,p=<par>$<salt>$<hash>, using unpadded
// base64 for the salt and hash segments.
func (h *PasswordHasher) Hash(password string) (string, error) {
	salt := make([]byte, h.params.SaltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("hashing: generate salt: %w", err)
	}

	digest := argon2.IDKey(
		[]byte(password),
		salt,
		h.params.Iterations,
		h.params.MemoryKiB,
		h.params.Parallelism,
		h.params.KeyLength,
	)

	return fmt.Sprintf(
		"$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version,
		h.params.MemoryKiB,
		h.params.Iterations,
		h.params.Parallelism,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(digest),
	), nil
}

// Verify reports whether password matches the encoded digest, re-deriving
// the hash with the parameters parsed out of the stored string and
// comparing in constant time. Malformed digests return (false, nil) — the
// caller never needs to special-case a parse failure in the credential
// path, and no panic can occur on attacker-controlled input.
func (h *PasswordHasher) Verify(password, encodedDigest string) (bool, error) {
	params, salt, expected, err := parseDigest(encodedDigest)
	if err != nil {
		return false, nil
	}

	actual := argon2.IDKey(
		[]byte(password),
		salt,
		params.Iterations,
		params.MemoryKiB,
		params.Parallelism,
		uint32(len(expected)),
	)

	return subtle.ConstantTimeCompare(actual, expected) == 1, nil
}

func parseDigest(encoded string) (PasswordParams, []byte, []byte, error) {
	// "$argon2id$v=19$m=65536,t=3,p=4$salt$hash" splits into 6 fields when
	// leading "$" produces an empty first element.
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[0] != "" || parts[1] != "argon2id" {
		return PasswordParams{}, nil, nil, ErrMalformedDigest
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil {
		return PasswordParams{}, nil, nil, ErrMalformedDigest
	}

	var params PasswordParams
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &params.MemoryKiB, &params.Iterations, &params.Parallelism); err != nil {
		return PasswordParams{}, nil, nil, ErrMalformedDigest
	}
	// argon2.IDKey panics on zero iterations or parallelism.
	if params.Iterations < 1 || params.Parallelism < 1 {
		return PasswordParams{}, nil, nil, ErrMalformedDigest
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return PasswordParams{}, nil, nil, ErrMalformedDigest
	}

	hash, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil || len(hash) == 0 {
		return PasswordParams{}, nil, nil, ErrMalformedDigest
	}

	return params, salt, hash, nil
}

// DummyDigest is a valid-looking digest used to perform a constant-time
// credential check against a non-existent user: verifying against it costs
// the same Argon2id work as a real verification, so the auth flow's total
// latency does not reveal whether the identifier exists. It is computed
// once, on the first call, and the same digest is returned afterwards.
func (h *PasswordHasher) DummyDigest() (string, error) {
	h.dummyOnce.Do(func() {
		h.dummyDigest, h.dummyErr = h.Hash("kodex-dummy-credential-check-do-not-use")
	})
	return h.dummyDigest, h.dummyErr
}
