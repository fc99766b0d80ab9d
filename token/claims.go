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

package token

import "time"

// Claims is the fixed claims contract access tokens carry. The signing
// algorithm is left to the host (see Signer); these fields are what
// Manager checks on verification regardless of algorithm.
type Claims struct {
	Subject     string
	IssuedAt    time.Time
	ExpiresAt   time.Time
	RealmID     string
	TokenFamily string
	Roles       []string
	TokenID     string
	Type        Type
}

// Signer signs and verifies access-token claims. The core ships a
// default JWT-based implementation (JWTSigner) but a host may supply its
// own (e.g. to sign with a key held in an external KMS).
type Signer interface {
	Sign(claims Claims) (string, error)
	Verify(tokenString string) (Claims, error)
}
