package auth

import (
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/goliatone/go-errors"
)

// MinSigningKeyBytes is the smallest HMAC key accepted for HS256
const MinSigningKeyBytes = 32

// SigningSecret wraps the shared HMAC key used to sign and verify tokens.
// It is built once at startup from configuration and passed to the codec.
type SigningSecret struct {
	key    []byte
	method *jwt.SigningMethodHMAC
}

// NewSigningSecret decodes a base64 encoded key
func NewSigningSecret(encoded string) (*SigningSecret, error) {
	encoded = strings.TrimSpace(encoded)
	if encoded == "" {
		return nil, errors.New("signing key is required", errors.CategoryValidation).
			WithTextCode("SIGNING_KEY_MISSING")
	}

	key, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, errors.Wrap(err, errors.CategoryValidation, "signing key must be base64 encoded").
			WithTextCode("SIGNING_KEY_INVALID")
	}

	return NewSigningSecretFromBytes(key)
}

// NewSigningSecretFromBytes uses the raw key as given
func NewSigningSecretFromBytes(key []byte) (*SigningSecret, error) {
	if len(key) < MinSigningKeyBytes {
		return nil, errors.New(
			fmt.Sprintf("signing key must be at least %d bytes", MinSigningKeyBytes),
			errors.CategoryValidation,
		).WithTextCode("SIGNING_KEY_TOO_SHORT")
	}

	k := make([]byte, len(key))
	copy(k, key)

	return &SigningSecret{key: k, method: jwt.SigningMethodHS256}, nil
}

// Algorithm returns the JWS alg header value
func (s *SigningSecret) Algorithm() string {
	return s.method.Alg()
}

// Sign serializes and signs the claims
func (s *SigningSecret) Sign(claims jwt.Claims) (string, error) {
	token := jwt.NewWithClaims(s.method, claims)
	signed, err := token.SignedString(s.key)
	if err != nil {
		return "", errors.Wrap(err, errors.CategoryInternal, "failed to sign JWT")
	}
	return signed, nil
}

// Keyfunc resolves the verification key, rejecting non HMAC algorithms
func (s *SigningSecret) Keyfunc(t *jwt.Token) (any, error) {
	if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
		return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
	}
	return s.key, nil
}
