package auth

import (
	"context"

	"github.com/goliatone/go-errors"
)

// CredentialVerifier checks a login attempt against the credential store
type CredentialVerifier struct {
	store    CredentialStore
	hasher   PasswordHasher
	throttle LoginThrottle
	logger   Logger
}

// NewCredentialVerifier will create a new CredentialVerifier
func NewCredentialVerifier(store CredentialStore, hasher PasswordHasher) *CredentialVerifier {
	return &CredentialVerifier{
		store:    store,
		hasher:   hasher,
		throttle: noopLoginThrottle{},
		logger:   NewDefaultLogger(),
	}
}

func (v *CredentialVerifier) WithLogger(l Logger) *CredentialVerifier {
	v.logger = normalizeLogger(l)
	return v
}

// WithLoginThrottle enables failed attempt lockout
func (v *CredentialVerifier) WithLoginThrottle(t LoginThrottle) *CredentialVerifier {
	if t == nil {
		t = noopLoginThrottle{}
	}
	v.throttle = t
	return v
}

// WithPasswordHasher swaps the hasher used to compare digests
func (v *CredentialVerifier) WithPasswordHasher(h PasswordHasher) *CredentialVerifier {
	if h != nil {
		v.hasher = h
	}
	return v
}

// Verify will find the credential, compare the password and check the
// account flags. Unknown identifiers and wrong passwords both fail with
// ErrInvalidCredentials.
func (v *CredentialVerifier) Verify(ctx context.Context, identifier, password string) (*Credential, error) {
	identifier = NormalizeIdentifier(identifier)
	if identifier == "" || password == "" {
		return nil, ErrInvalidCredentials
	}

	locked, err := v.throttle.Locked(ctx, identifier)
	if err != nil {
		v.logger.Warn("login throttle unavailable", "error", err)
	} else if locked {
		return nil, ErrTooManyLoginAttempts
	}

	credential, err := v.store.FindByIdentifier(ctx, identifier)
	if err != nil {
		if errors.IsNotFound(err) {
			v.recordFailure(ctx, identifier)
			return nil, ErrInvalidCredentials
		}
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to retrieve user during verification")
	}

	if !v.hasher.Verify(password, credential.PasswordHash) {
		v.recordFailure(ctx, identifier)
		return nil, ErrInvalidCredentials
	}

	if credential.Locked {
		return nil, ErrAccountLocked
	}

	if !credential.Enabled {
		return nil, ErrAccountDisabled
	}

	if err := v.throttle.Reset(ctx, identifier); err != nil {
		v.logger.Warn("failed to reset login attempts", "error", err)
	}

	return credential, nil
}

func (v *CredentialVerifier) recordFailure(ctx context.Context, identifier string) {
	attempts, err := v.throttle.RecordFailure(ctx, identifier)
	if err != nil {
		v.logger.Warn("failed to track login attempt", "error", err)
		return
	}
	if attempts > 0 {
		v.logger.Debug("failed login attempt", "identifier", identifier, "attempts", attempts)
	}
}
