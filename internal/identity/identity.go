// identity.go
//
// A compliance report review and analysis-agent gateway service
// Copyright (c) 2026 Alex Grant <info@localnerve.com> (https://www.localnerve.com), LocalNerve LLC
//
// This file is part of reportdesk.
// reportdesk is free software: you can redistribute it and/or modify it
// under the terms of the GNU Affero General Public License as published by the Free Software
// Foundation, either version 3 of the License, or (at your option) any later version.
// reportdesk is distributed in the hope that it will be useful, but WITHOUT ANY WARRANTY;
// without even the implied warranty of MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.
// See the GNU Affero General Public License for more details.
// You should have received a copy of the GNU Affero General Public License along with reportdesk.
// If not, see <https://www.gnu.org/licenses/>.
// Additional terms under GNU AGPL version 3 section 7:
// a) The reasonable legal notice of original copyright and author attribution must be preserved
//    by including the string: "Copyright (c) 2026 Alex Grant <info@localnerve.com> (https://www.localnerve.com), LocalNerve LLC"
//    in this material, copies, or source code of derived works.

package identity

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"time"
)

var (
	ErrInvalidCredentials = errors.New("Invalid login credentials")
	ErrInvalidSession     = errors.New("invalid or expired session")
	ErrUnsupported        = errors.New("operation not supported by the identity provider")
	ErrDisposed           = errors.New("application context disposed")
	ErrResetLinkInvalid   = errors.New("Invalid or expired reset link. Please request a new one.")
	ErrResetLinkMissing   = errors.New("reset link already used")
	ErrEmailRequired      = errors.New("Please enter your email address")
	ErrPasswordMismatch   = errors.New("Passwords do not match!")
	ErrPasswordTooShort   = errors.New("Password must be at least 6 characters long")
)

// MinPasswordLength is the shortest password accepted on reset
const MinPasswordLength = 6

// Identity is the authenticated account
type Identity struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

// Session is a signed-in identity and its bearer token.
// Recovery sessions only authorize a password update.
type Session struct {
	AccessToken string    `json:"access_token"`
	TokenType   string    `json:"token_type"`
	ExpiresAt   time.Time `json:"expires_at"`
	User        Identity  `json:"user"`
	Recovery    bool      `json:"recovery,omitempty"`
}

// Provider is the external identity service contract
type Provider interface {
	Name() string
	SignIn(ctx context.Context, email, password string) (*Session, error)
	GetSession(ctx context.Context, token string) (*Session, error)
	SignOut(ctx context.Context, token string) error
	RequestPasswordReset(ctx context.Context, email, redirectTo string) error
	UpdatePassword(ctx context.Context, token, password string) error
	Ping(ctx context.Context) error
}

// ParseRecoveryFragment extracts the recovery token from a reset link fragment
// ("type=recovery&access_token=..."). An empty fragment means the link was already consumed.
func ParseRecoveryFragment(fragment string) (string, error) {
	fragment = strings.TrimPrefix(fragment, "#")
	if fragment == "" {
		return "", ErrResetLinkMissing
	}

	values, err := url.ParseQuery(fragment)
	if err != nil {
		return "", ErrResetLinkInvalid
	}
	token := values.Get("access_token")
	if values.Get("type") != "recovery" || token == "" {
		return "", ErrResetLinkInvalid
	}
	return token, nil
}

// ValidateNewPassword checks a password reset form
func ValidateNewPassword(password, confirm string) error {
	if password != confirm {
		return ErrPasswordMismatch
	}
	if len(password) < MinPasswordLength {
		return ErrPasswordTooShort
	}
	return nil
}

// ResetRedirect is where reset links land
func ResetRedirect(origin string) string {
	return strings.TrimSuffix(origin, "/") + "/reset-password"
}
