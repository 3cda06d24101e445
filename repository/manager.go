package repository

import (
	"context"
	"database/sql"
	"errors"
	"log"

	auth "github.com/goliatone/go-shop-auth"
	"github.com/uptrace/bun"
)

type mngr struct {
	db              *bun.DB
	credentials     auth.CredentialStore
	roles           auth.RoleStore
	activationCodes auth.ActivationCodeStore
}

// NewRepositoryManager returns the bun backed RepositoryManager. The
// users/roles join model is registered on db so m2m relations resolve.
func NewRepositoryManager(db *bun.DB) auth.RepositoryManager {
	db.RegisterModel((*auth.CredentialRole)(nil))

	return &mngr{
		db:              db,
		credentials:     NewCredentialRepository(db),
		roles:           NewRoleRepository(db),
		activationCodes: NewActivationCodeRepository(db),
	}
}

func (m mngr) Validate() error {
	if m.db == nil {
		return errors.New("repository manager requires a database")
	}

	if m.credentials == nil {
		return errors.New("repository credentials should be initialized")
	}

	if m.roles == nil {
		return errors.New("repository roles should be initialized")
	}

	if m.activationCodes == nil {
		return errors.New("repository activation codes should be initialized")
	}

	return nil
}

func (m mngr) MustValidate() {
	if err := m.Validate(); err != nil {
		log.Panic(err)
	}
}

func (m mngr) RunInTx(ctx context.Context, opts *sql.TxOptions, f func(ctx context.Context, tx bun.Tx) error) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return m.db.RunInTx(ctx, opts, f)
	}
}

func (m mngr) Credentials() auth.CredentialStore {
	return m.credentials
}

func (m mngr) Roles() auth.RoleStore {
	return m.roles
}

func (m mngr) ActivationCodes() auth.ActivationCodeStore {
	return m.activationCodes
}
