// Package identity projects access token claims into a display-only Identity.
//
// NOT A TRUST BOUNDARY. The decoder never verifies the token signature, issuer, audience or
// expiry. An Identity is only good for personalising the UI (greeting, showing staff-only
// menu entries as a hint). Every access control decision must be re-validated by the server
// on the protected call itself. Being able to decode a token never means a session is
// authenticated; only a successful credential exchange does.
package identity

import (
	"encoding/json"
	"time"
)

// Identity is the unverified view of an access token's claims.
type Identity struct {
	UserID      string    `json:"user_id"`
	TokenID     string    `json:"jti,omitempty"`
	Username    string    `json:"username,omitempty"`
	Email       string    `json:"email,omitempty"`
	IsStaff     bool      `json:"is_staff,omitempty"`
	IsSuperuser bool      `json:"is_superuser,omitempty"`
	Roles       []string  `json:"roles,omitempty"`
	IssuedAt    time.Time `json:"issued_at,omitempty"`
	ExpiresAt   time.Time `json:"expires_at,omitempty"`
}

// Expired is a display hint (e.g. "your session is about to end"). It is not enforcement.
func (i *Identity) Expired(now time.Time) bool {
	if i == nil || i.ExpiresAt.IsZero() {
		return false
	}
	return now.After(i.ExpiresAt)
}

// DisplayName prefers the username and falls back to the user id.
func (i *Identity) DisplayName() string {
	if i == nil {
		return ""
	}
	if i.Username != "" {
		return i.Username
	}
	return i.UserID
}

// SameToken reports whether other was decoded from the same access token. Tokens without a
// jti claim only compare by user and issue time.
func (i *Identity) SameToken(other *Identity) bool {
	if i == nil || other == nil || i.UserID != other.UserID {
		return false
	}
	if i.TokenID != "" || other.TokenID != "" {
		return i.TokenID == other.TokenID
	}
	return i.IssuedAt.Equal(other.IssuedAt)
}

// Marshal serializes the identity for the token store "user" key.
func (i *Identity) Marshal() (string, error) {
	b, err := json.Marshal(i)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Unmarshal parses an identity previously written with Marshal.
func Unmarshal(raw string) (*Identity, error) {
	var id Identity
	if err := json.Unmarshal([]byte(raw), &id); err != nil {
		return nil, err
	}
	return &id, nil
}
