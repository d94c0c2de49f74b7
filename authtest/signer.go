package authtest

import (
	"github.com/golang-jwt/jwt/v5"
	"github.com/pkg/errors"
)

// Signer signs and verifies the fake backend's HS256 tokens.
type Signer struct {
	secret []byte
}

// NewSigner creates a signer with the given secret.
func NewSigner(secret string) *Signer {
	return &Signer{
		secret: []byte(secret),
	}
}

func (s *Signer) Sign(claims jwt.MapClaims) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signedToken, err := token.SignedString(s.secret)
	if err != nil {
		return "", errors.Wrap(err, "failed to sign token with HMAC")
	}
	return signedToken, nil
}

// Verify checks the signature and expiry and returns the claims.
func (s *Signer) Verify(raw string, options ...jwt.ParserOption) (jwt.MapClaims, error) {
	claims := jwt.MapClaims{}
	options = append(options, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	_, err := jwt.ParseWithClaims(raw, claims, s.verificationKey, options...)
	if err != nil {
		return nil, errors.Wrap(err, "verify token")
	}
	return claims, nil
}

func (s *Signer) verificationKey(token *jwt.Token) (any, error) {
	if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
		return nil, errors.Errorf("unexpected signing method: %v", token.Header["alg"])
	}
	return s.secret, nil
}
