package auth

import (
	"github.com/goliatone/go-errors"
	"golang.org/x/crypto/bcrypt"
)

// BcryptHasher implements PasswordHasher with a salted bcrypt digest
type BcryptHasher struct {
	cost int
}

// NewBcryptHasher returns a hasher using cost, or the build default when
// cost is out of bcrypt's range.
func NewBcryptHasher(cost int) *BcryptHasher {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = passwordHashCost()
	}
	return &BcryptHasher{cost: cost}
}

// Hash will generate a password hash
func (b *BcryptHasher) Hash(raw string) (string, error) {
	if raw == "" {
		return "", ErrEmptyPassword
	}

	h, err := bcrypt.GenerateFromPassword([]byte(raw), b.cost)
	if err != nil {
		return "", errors.Wrap(err, errors.CategoryValidation, "failed to hash password")
	}
	return string(h), nil
}

// Verify checks the cleartext password matches the digest
func (b *BcryptHasher) Verify(raw, digest string) bool {
	if raw == "" || digest == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(digest), []byte(raw)) == nil
}
