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

import "testing"

func TestPasswordHasherVerifyRoundTrip(t *testing.T) {
	h := NewPasswordHasher(OWASPMinParams())

	digest, err := h.Hash("correct horse battery staple")
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}

	ok, err := h.Verify("correct horse battery staple", digest)
	if err != nil || !ok {
		t.Fatalf("Verify(correct) = %v, %v; want true, nil", ok, err)
	}

	ok, err = h.Verify("wrong password", digest)
	if err != nil || ok {
		t.Fatalf("Verify(wrong) = %v, %v; want false, nil", ok, err)
	}
}

func TestPasswordHasherFreshSaltEachCall(t *testing.T) {
	h := NewPasswordHasher(OWASPMinParams())

	a, err := h.Hash("same-password")
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	b, err := h.Hash("same-password")
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}

	if a == b {
		t.Fatalf("two hashes of the same password must differ (fresh salt), got identical digests")
	}
}

func TestPasswordHasherVerifyMalformedNeverErrors(t *testing.T) {
	h := NewPasswordHasher(OWASPMinParams())

	cases := []string{"", "not-a-digest", "$argon2id$v=19$garbage$x$y", "$bcrypt$blah"}
	for _, c := range cases {
		ok, err := h.Verify("whatever", c)
		if err != nil {
			t.Fatalf("Verify(%q) returned error %v; must never error on malformed input", c, err)
		}
		if ok {
			t.Fatalf("Verify(%q) = true; want false", c)
		}
	}
}

func TestPasswordHasherEncodingFormat(t *testing.T) {
	h := NewPasswordHasher(BalancedParams())
	digest, err := h.Hash("x")
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	want := "$argon2id$v=19$m=65536,t=3,p=4$"
	if len(digest) < len(want) || digest[:len(want)] != want {
		t.Fatalf("digest prefix = %q, want prefix %q", digest, want)
	}
}

func TestTokenHasherVerifyRoundTrip(t *testing.T) {
	h := NewTokenHasher()

	digest, err := h.Hash("opaque-refresh-secret")
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}

	ok, err := h.Verify("opaque-refresh-secret", digest)
	if err != nil || !ok {
		t.Fatalf("Verify(correct) = %v, %v; want true, nil", ok, err)
	}

	ok, err = h.Verify("different-secret", digest)
	if err != nil || ok {
		t.Fatalf("Verify(wrong) = %v, %v; want false, nil", ok, err)
	}
}

func TestTokenHasherFreshSaltEachCall(t *testing.T) {
	h := NewTokenHasher()

	a, _ := h.Hash("same-secret")
	b, _ := h.Hash("same-secret")
	if a == b {
		t.Fatalf("two hashes of the same secret must differ (fresh salt)")
	}
}
