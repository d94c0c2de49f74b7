package authtest

import (
	"golang.org/x/crypto/bcrypt"
)

// User is an account known to the fake backend.
type User struct {
	ID          string
	Username    string
	Email       string
	Password    string // plain text, hashed when the server is built
	IsStaff     bool
	IsSuperuser bool
	Roles       []string
	Perms       []string
	// MfaCode, when set, makes login step up and is the only code VerifyMfa accepts.
	MfaCode string

	passwordHash string
}

// DefaultUsers are the accounts used by the diagnostic CLI in fake mode.
func DefaultUsers() []User {
	return []User{
		{
			ID:       "1",
			Username: "alice",
			Email:    "alice@example.com",
			Password: "correct",
			IsStaff:  true,
			Roles:    []string{"cashier"},
			Perms:    []string{"rates.view", "rates.change", "clients.view"},
			MfaCode:  "123456",
		},
		{
			ID:       "2",
			Username: "bob",
			Email:    "bob@example.com",
			Password: "secret",
			Roles:    []string{"viewer"},
			Perms:    []string{"rates.view"},
		},
	}
}

// HashPassword hashes a password with bcrypt. The fake uses the minimum cost.
func HashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	return string(bytes), err
}

// CheckPasswordHash compares a bcrypt hash with a plain password.
func CheckPasswordHash(password, hash string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	return err == nil
}
