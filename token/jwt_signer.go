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

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrMalformedToken is returned when a presented string does not parse or
// verify as a JWT produced by JWTSigner.
var ErrMalformedToken = errors.New("token: malformed or invalid signature")

type jwtClaims struct {
	jwt.RegisteredClaims
	RealmID     string   `json:"realm"`
	TokenFamily string   `json:"tfam"`
	Roles       []string `json:"roles"`
	TokenType   Type     `json:"typ"`
}

// JWTSigner is the default Signer: HMAC-SHA256 over golang-jwt/jwt/v5,
// suitable for a single-process or shared-secret deployment. Hosts that
// need asymmetric signing or key rotation supply their own Signer.
type JWTSigner struct {
	secret []byte
}

// NewJWTSigner creates a signer using secret as the HMAC key.
func NewJWTSigner(secret []byte) *JWTSigner {
	return &JWTSigner{secret: secret}
}

// Sign encodes claims as a signed JWT string.
func (s *JWTSigner) Sign(claims Claims) (string, error) {
	jc := jwtClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   claims.Subject,
			IssuedAt:  jwt.NewNumericDate(claims.IssuedAt),
			ExpiresAt: jwt.NewNumericDate(claims.ExpiresAt),
			ID:        claims.TokenID,
		},
		RealmID:     claims.RealmID,
		TokenFamily: claims.TokenFamily,
		Roles:       claims.Roles,
		TokenType:   claims.Type,
	}

	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jc)
	signed, err := tok.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("token: sign: %w", err)
	}
	return signed, nil
}

// Verify checks the signature and decodes claims. It does not check
// expiry or claim invariants beyond what the jwt library enforces by
// default (expiry, not-before) — Manager.VerifyAccess layers the remaining
// invariant checks (realm match, type match) on top.
func (s *JWTSigner) Verify(tokenString string) (Claims, error) {
	var jc jwtClaims
	_, err := jwt.ParseWithClaims(tokenString, &jc, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("token: unexpected signing method %v", t.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil {
		return Claims{}, fmt.Errorf("%w: %v", ErrMalformedToken, err)
	}

	var issuedAt, expiresAt time.Time
	if jc.IssuedAt != nil {
		issuedAt = jc.IssuedAt.Time
	}
	if jc.ExpiresAt != nil {
		expiresAt = jc.ExpiresAt.Time
	}

	return Claims{
		Subject:     jc.Subject,
		IssuedAt:    issuedAt,
		ExpiresAt:   expiresAt,
		RealmID:     jc.RealmID,
		TokenFamily: jc.TokenFamily,
		Roles:       jc.Roles,
		TokenID:     jc.ID,
		Type:        jc.TokenType,
	}, nil
}
