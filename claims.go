package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenKind discriminates access from refresh tokens
type TokenKind string

const (
	TokenKindAccess  TokenKind = "access"
	TokenKindRefresh TokenKind = "refresh"
)

// IsValid checks the kind is one we issue
func (k TokenKind) IsValid() bool {
	switch k {
	case TokenKindAccess, TokenKindRefresh:
		return true
	default:
		return false
	}
}

// Claims is the immutable set of free form claims embedded in a token.
// Build a new value per issuance call.
type Claims struct {
	fullName    string
	authorities []string
}

// NewClaims copies its inputs
func NewClaims(fullName string, authorities []string) Claims {
	a := make([]string, len(authorities))
	copy(a, authorities)
	return Claims{fullName: fullName, authorities: a}
}

// ClaimsFromCredential projects the credential into token claims
func ClaimsFromCredential(c *Credential) Claims {
	return NewClaims(c.FullName(), c.Authorities())
}

// FullName returns the display name claim
func (c Claims) FullName() string {
	return c.fullName
}

// Authorities returns a copy of the authorities claim
func (c Claims) Authorities() []string {
	out := make([]string, len(c.authorities))
	copy(out, c.authorities)
	return out
}

// TokenClaims is the JWT wire shape
type TokenClaims struct {
	jwt.RegisteredClaims
	TokenType   TokenKind `json:"token_type"`
	FullName    string    `json:"fullName,omitempty"`
	Authorities []string  `json:"authorities"`
}

// VerifiedToken is the result of a successful verification
type VerifiedToken struct {
	ID        string
	Subject   string
	Kind      TokenKind
	Claims    Claims
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// IsRefresh reports whether the token is a refresh token
func (v *VerifiedToken) IsRefresh() bool {
	return v.Kind == TokenKindRefresh
}

func numericTime(d *jwt.NumericDate) time.Time {
	if d == nil {
		return time.Time{}
	}
	return d.Time
}
