package authapi

// Credentials is the body of the credential exchange. It is transient and is never persisted.
type Credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// RefreshRequest is the body sent to the refresh endpoint.
type RefreshRequest struct {
	Refresh string `json:"refresh"`
}

// MfaVerifyRequest exchanges a temp token and a one time code for a token pair.
type MfaVerifyRequest struct {
	TempToken string `json:"temp_token"`
	Code      string `json:"code"`
}

// TokenResponse is the union of every body the token endpoints return.
type TokenResponse struct {
	// Access is the short lived bearer token (a JWT).
	// Usage: "Authorization: Bearer <access>"
	Access *string `json:"access,omitempty"`

	// Refresh is the long lived opaque token exchanged for a new access token.
	// Rotated on each use when the server enables rotation.
	Refresh *string `json:"refresh,omitempty"`

	// MfaRequired signals a step-up: no session is granted yet.
	MfaRequired bool `json:"mfa_required,omitempty"`

	// TempToken authorizes exactly one follow-up call, the MFA code verification.
	// It is not an access token.
	TempToken *string `json:"temp_token,omitempty"`
}

// HasTokenPair reports whether the response grants a session.
func (t *TokenResponse) HasTokenPair() bool {
	return t != nil && t.Access != nil && *t.Access != "" && t.Refresh != nil && *t.Refresh != ""
}

// PermissionsResponse is the body of the permissions endpoint.
type PermissionsResponse struct {
	Perms []string `json:"perms"`
}

// ErrorResponse covers the error shapes the back office returns.
// Django REST style "detail" is the common one; "error" and "message" appear on custom views.
type ErrorResponse struct {
	Detail  string `json:"detail,omitempty"`
	Error   string `json:"error,omitempty"`
	Message string `json:"message,omitempty"`
}

// Reason returns the first populated message.
func (e ErrorResponse) Reason() string {
	switch {
	case e.Detail != "":
		return e.Detail
	case e.Error != "":
		return e.Error
	default:
		return e.Message
	}
}
