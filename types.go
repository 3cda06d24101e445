package auth

import (
	"context"
	"database/sql"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Logger is the logging surface used across the package. Arguments after the
// message are key/value pairs.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Config holds auth options
type Config interface {
	GetSigningKey() string
	GetIssuer() string
	GetAccessTokenTTL() time.Duration
	GetRefreshTokenTTL() time.Duration
	GetActivationCodeTTL() time.Duration
	GetActivationCodeLength() int
	GetPublicRoutes() []string
	GetContextKey() string
	GetTokenLookup() string
	GetAuthScheme() string
}

// CredentialStore persists credentials keyed by their normalized identifier.
type CredentialStore interface {
	FindByIdentifier(ctx context.Context, identifier string) (*Credential, error)
	FindByIdentifierTx(ctx context.Context, tx bun.IDB, identifier string) (*Credential, error)
	FindByID(ctx context.Context, id uuid.UUID) (*Credential, error)
	FindByIDTx(ctx context.Context, tx bun.IDB, id uuid.UUID) (*Credential, error)
	CreateTx(ctx context.Context, tx bun.IDB, record *Credential) (*Credential, error)
	UpdateTx(ctx context.Context, tx bun.IDB, record *Credential) (*Credential, error)
	AddRoleTx(ctx context.Context, tx bun.IDB, credentialID, roleID uuid.UUID) error
}

// RoleStore resolves authorities by name.
type RoleStore interface {
	FindByNameTx(ctx context.Context, tx bun.IDB, name string) (*Role, error)
}

// ActivationCodeStore persists one-time activation codes.
type ActivationCodeStore interface {
	CreateTx(ctx context.Context, tx bun.IDB, record *ActivationCode) (*ActivationCode, error)
	UpdateTx(ctx context.Context, tx bun.IDB, record *ActivationCode) (*ActivationCode, error)
	FindByCodeTx(ctx context.Context, tx bun.IDB, code string) (*ActivationCode, error)
}

// RepositoryManager exposes the stores and a transaction boundary
type RepositoryManager interface {
	Validate() error
	MustValidate()
	RunInTx(ctx context.Context, opts *sql.TxOptions, f func(ctx context.Context, tx bun.Tx) error) error
	Credentials() CredentialStore
	Roles() RoleStore
	ActivationCodes() ActivationCodeStore
}

// Notifier delivers activation codes out of band
type Notifier interface {
	SendActivationMessage(ctx context.Context, identifier, displayName, code string, purpose NotificationPurpose) error
}

// PasswordHasher hashes and checks raw passwords
type PasswordHasher interface {
	Hash(raw string) (string, error)
	Verify(raw, digest string) bool
}

// LoginThrottle tracks failed logins per identifier.
type LoginThrottle interface {
	Locked(ctx context.Context, key string) (bool, error)
	RecordFailure(ctx context.Context, key string) (int, error)
	Reset(ctx context.Context, key string) error
}

type noopLoginThrottle struct{}

func (noopLoginThrottle) Locked(context.Context, string) (bool, error)       { return false, nil }
func (noopLoginThrottle) RecordFailure(context.Context, string) (int, error) { return 0, nil }
func (noopLoginThrottle) Reset(context.Context, string) error                { return nil }

type defLogger struct {
	l *slog.Logger
}

// NewDefaultLogger returns the slog backed logger used when none is configured.
func NewDefaultLogger() Logger {
	h := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo})
	return defLogger{l: slog.New(h).With("component", "auth")}
}

func (d defLogger) logger() *slog.Logger {
	if d.l == nil {
		return slog.Default().With("component", "auth")
	}
	return d.l
}

func (d defLogger) Debug(msg string, args ...any) { d.logger().Debug(msg, args...) }
func (d defLogger) Info(msg string, args ...any)  { d.logger().Info(msg, args...) }
func (d defLogger) Warn(msg string, args ...any)  { d.logger().Warn(msg, args...) }
func (d defLogger) Error(msg string, args ...any) { d.logger().Error(msg, args...) }

func normalizeLogger(l Logger) Logger {
	if l == nil {
		return NewDefaultLogger()
	}
	return l
}
