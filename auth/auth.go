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

// Package auth orchestrates the login and password-change flows: it is
// the one place that ties together user lookup, credential verification,
// account lockout, lifecycle hooks, token issuance, and audit events. No
// other package reaches across all of those on its own.
package auth

import "errors"

// Domain errors returned by Login and ChangePassword. These are
// deliberately generic on the wire — the caller never learns from the
// error alone whether an identifier exists, only whether the attempt as
// a whole succeeded.
var (
	// ErrInvalidCredentials covers both an unknown identifier and a
	// wrong password, so a caller can't distinguish the two.
	ErrInvalidCredentials = errors.New("auth: invalid credentials")
	// ErrAccountLocked is returned when the identifier is currently
	// locked out, independent of whether the presented password was
	// correct.
	ErrAccountLocked = errors.New("auth: account is locked")
	// ErrUnverifiedAccount is returned when credentials check out but
	// the account has not completed verification.
	ErrUnverifiedAccount = errors.New("auth: account is not verified")
)

// Attempt is the result of a successful Login call: the authenticated
// user's id and the token pair issued for the session.
type Attempt struct {
	UserID       string
	AccessToken  string
	RefreshToken string
}
