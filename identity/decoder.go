package identity

import (
	"errors"
	"fmt"
	"strings"

	jwtlib "github.com/golang-jwt/jwt/v5"

	apperrors "github.com/jrsteele09/go-session-client/internal/errors"
	"github.com/jrsteele09/go-session-client/internal/utils"
)

// DecodeError is returned when the token is not a parseable claims envelope.
type DecodeError = apperrors.DecodeError

// Decoder extracts an Identity from an access token WITHOUT verifying it.
// See the package documentation: this is not a trust boundary.
type Decoder struct {
	parser *jwtlib.Parser
}

// NewDecoder creates a decoder.
func NewDecoder() *Decoder {
	return &Decoder{parser: jwtlib.NewParser()}
}

// Decode parses the token claims. It never checks signature or expiry.
func (d *Decoder) Decode(rawToken string) (*Identity, error) {
	if strings.TrimSpace(rawToken) == "" {
		return nil, &DecodeError{Err: errors.New("empty token")}
	}

	token, _, err := d.parser.ParseUnverified(rawToken, jwtlib.MapClaims{})
	if err != nil {
		return nil, &DecodeError{Err: err}
	}

	claims, ok := token.Claims.(jwtlib.MapClaims)
	if !ok {
		return nil, &DecodeError{Err: errors.New("error extracting claims")}
	}

	// Refresh tokens are JWTs too on some back ends; never treat one as an access token.
	if tokenType, ok := claims["token_type"].(string); ok && tokenType != "access" {
		return nil, &DecodeError{Err: fmt.Errorf("unexpected token_type %q", tokenType)}
	}

	userID := subject(claims)
	if userID == "" {
		return nil, &DecodeError{Err: errors.New("token missing user_id / sub claim")}
	}

	id := &Identity{UserID: userID}
	id.TokenID, _ = claims["jti"].(string)
	id.Username, _ = claims["username"].(string)
	id.Email, _ = claims["email"].(string)
	id.IsStaff, _ = claims["is_staff"].(bool)
	id.IsSuperuser, _ = claims["is_superuser"].(bool)
	id.Roles = utils.ClaimStrings(claims["roles"])

	if iat, err := claims.GetIssuedAt(); err == nil && iat != nil {
		id.IssuedAt = iat.Time
	}
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		id.ExpiresAt = exp.Time
	}
	return id, nil
}

// subject reads user_id (simplejwt style) and falls back to the registered sub claim.
func subject(claims jwtlib.MapClaims) string {
	switch v := claims["user_id"].(type) {
	case string:
		if v != "" {
			return v
		}
	case float64:
		return fmt.Sprintf("%.0f", v)
	}
	sub, _ := claims.GetSubject()
	return sub
}
