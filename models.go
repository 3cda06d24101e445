package auth

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Credential is the persisted account record. It owns data only; the
// request scoped view of an authenticated caller is AuthenticatedIdentity.
type Credential struct {
	bun.BaseModel `bun:"table:users,alias:usr"`
	ID            uuid.UUID  `bun:"id,pk,type:uuid" json:"id"`
	Identifier    string     `bun:"email,notnull,unique" json:"email"`
	FirstName     string     `bun:"first_name,notnull" json:"first_name"`
	LastName      string     `bun:"last_name,notnull" json:"last_name"`
	DateOfBirth   *time.Time `bun:"date_of_birth,nullzero" json:"date_of_birth,omitempty"`
	PasswordHash  string     `bun:"password_hash,notnull" json:"-"`
	Enabled       bool       `bun:"enabled,notnull" json:"enabled"`
	Locked        bool       `bun:"account_locked,notnull" json:"account_locked"`
	Roles         []*Role    `bun:"m2m:user_roles,join:Credential=Role" json:"roles,omitempty"`
	CreatedAt     *time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
	UpdatedAt     *time.Time `bun:"updated_at,nullzero,default:current_timestamp" json:"updated_at,omitempty"`
}

// FullName is the display projection embedded in token claims
func (c *Credential) FullName() string {
	return strings.TrimSpace(c.FirstName + " " + c.LastName)
}

// Authorities returns the role names granted to the credential
func (c *Credential) Authorities() []string {
	out := make([]string, 0, len(c.Roles))
	for _, r := range c.Roles {
		if r == nil {
			continue
		}
		out = append(out, r.Name)
	}
	return out
}

// Role is a named authority
type Role struct {
	bun.BaseModel `bun:"table:roles,alias:rl"`
	ID            uuid.UUID  `bun:"id,pk,type:uuid" json:"id"`
	Name          string     `bun:"name,notnull,unique" json:"name"`
	CreatedAt     *time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
}

// CredentialRole is the users/roles join table
type CredentialRole struct {
	bun.BaseModel `bun:"table:user_roles,alias:ur"`
	CredentialID  uuid.UUID   `bun:"user_id,pk,type:uuid"`
	Credential    *Credential `bun:"rel:belongs-to,join:user_id=id"`
	RoleID        uuid.UUID   `bun:"role_id,pk,type:uuid"`
	Role          *Role       `bun:"rel:belongs-to,join:role_id=id"`
}

// ActivationCode is a one time code proving control of a registration.
// Records are never deleted; ValidatedAt marks consumption.
type ActivationCode struct {
	bun.BaseModel `bun:"table:activation_codes,alias:ac"`
	ID            uuid.UUID  `bun:"id,pk,type:uuid" json:"id"`
	Code          string     `bun:"code,notnull" json:"-"`
	UserID        uuid.UUID  `bun:"user_id,notnull,type:uuid" json:"user_id"`
	CreatedAt     time.Time  `bun:"created_at,notnull" json:"created_at"`
	ExpiresAt     time.Time  `bun:"expires_at,notnull" json:"expires_at"`
	ValidatedAt   *time.Time `bun:"validated_at,nullzero" json:"validated_at,omitempty"`
}

// Consumed reports whether the code was already used
func (a *ActivationCode) Consumed() bool {
	return a.ValidatedAt != nil
}

// ExpiredAt reports whether the code is past its expiry at now
func (a *ActivationCode) ExpiredAt(now time.Time) bool {
	return now.After(a.ExpiresAt)
}

// AuthenticatedIdentity is the caller bound to a request after its access
// token was accepted.
type AuthenticatedIdentity struct {
	CredentialID uuid.UUID `json:"id"`
	Subject      string    `json:"email"`
	FullName     string    `json:"full_name"`
	Authorities  []string  `json:"authorities"`
}

// NewAuthenticatedIdentity derives the request identity from a credential
func NewAuthenticatedIdentity(c *Credential) *AuthenticatedIdentity {
	return &AuthenticatedIdentity{
		CredentialID: c.ID,
		Subject:      c.Identifier,
		FullName:     c.FullName(),
		Authorities:  c.Authorities(),
	}
}

// GetSubject returns the normalized identifier
func (a *AuthenticatedIdentity) GetSubject() string {
	return a.Subject
}

// GetAuthorities returns a copy of the granted authorities
func (a *AuthenticatedIdentity) GetAuthorities() []string {
	out := make([]string, len(a.Authorities))
	copy(out, a.Authorities)
	return out
}

// HasAuthority checks if the identity was granted the named authority
func (a *AuthenticatedIdentity) HasAuthority(name string) bool {
	for _, auth := range a.Authorities {
		if strings.EqualFold(auth, name) {
			return true
		}
	}
	return false
}

// IdentitySummary is returned alongside issued tokens
type IdentitySummary struct {
	ID        uuid.UUID `json:"id"`
	Email     string    `json:"email"`
	FullName  string    `json:"full_name"`
	FirstName string    `json:"first_name"`
	LastName  string    `json:"last_name"`
}

func summarize(c *Credential) IdentitySummary {
	return IdentitySummary{
		ID:        c.ID,
		Email:     c.Identifier,
		FullName:  c.FullName(),
		FirstName: c.FirstName,
		LastName:  c.LastName,
	}
}

// NormalizeIdentifier lowercases and trims an identifier before storage or lookup
func NormalizeIdentifier(identifier string) string {
	return strings.ToLower(strings.TrimSpace(identifier))
}
