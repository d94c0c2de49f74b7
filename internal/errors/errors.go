package errors

import (
	"errors"
	"fmt"
)

// Common error types for the session core
var (
	// Session errors
	ErrSessionNotRenewable = errors.New("session not renewable")
	ErrInvalidState        = errors.New("invalid session state")
	ErrMfaChallengeExpired = errors.New("mfa challenge expired")
	ErrMfaAttemptsExceeded = errors.New("mfa attempts exceeded")
	ErrSessionSuperseded   = errors.New("session replaced during refresh")

	// Token errors
	ErrInvalidToken = errors.New("invalid token")
	ErrNoToken      = errors.New("no access token")

	// Transport errors
	ErrTransport = errors.New("transport error")

	// Storage errors
	ErrNotFound = errors.New("not found")
)

// AuthError is a credential or MFA code rejection reported by the server.
// The caller re-prompts; the session state machine stays where it was.
type AuthError struct {
	Status int    // HTTP status returned by the endpoint
	Reason string // Server reported reason (detail / error / message)
}

func (e *AuthError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("authentication failed (status %d)", e.Status)
	}
	return fmt.Sprintf("authentication failed: %s", e.Reason)
}

// DecodeError is returned when an access token cannot be parsed into the expected claims envelope.
type DecodeError struct {
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode access token: %v", e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

func (e *DecodeError) Is(target error) bool {
	return target == ErrInvalidToken
}

// TransportError covers connectivity failures and non-auth server failures (5xx, unparsable bodies).
// It never means the credentials are bad, so it must never trigger a refresh or a logout.
type TransportError struct {
	Op     string // endpoint operation, e.g. "login"
	Status int    // 0 when no response was received
	Err    error
}

func (e *TransportError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s: server responded %d: %v", e.Op, e.Status, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

func (e *TransportError) Is(target error) bool {
	return target == ErrTransport
}

// Is reports whether any error in err's chain matches target
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

// IsAuth reports whether err carries a server side credential rejection.
func IsAuth(err error) bool {
	var authErr *AuthError
	return errors.As(err, &authErr)
}
