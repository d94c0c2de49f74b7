package session

import (
	apperrors "github.com/jrsteele09/go-session-client/internal/errors"
)

// Errors returned by the session core. Classify with errors.Is / errors.As.
var (
	ErrSessionNotRenewable = apperrors.ErrSessionNotRenewable
	ErrInvalidState        = apperrors.ErrInvalidState
	ErrMfaChallengeExpired = apperrors.ErrMfaChallengeExpired
	ErrMfaAttemptsExceeded = apperrors.ErrMfaAttemptsExceeded
	ErrSessionSuperseded   = apperrors.ErrSessionSuperseded
	ErrTransport           = apperrors.ErrTransport
)

type (
	AuthError      = apperrors.AuthError
	DecodeError    = apperrors.DecodeError
	TransportError = apperrors.TransportError
)

// IsAuthError reports whether err carries a credential or code rejection from the server.
func IsAuthError(err error) bool {
	return apperrors.IsAuth(err)
}
