package repository

import (
	"context"
	"database/sql"
	"time"

	auth "github.com/goliatone/go-shop-auth"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// CredentialRepository implements auth.CredentialStore using Bun.
type CredentialRepository struct {
	db bun.IDB
}

// NewCredentialRepository creates a new repository.
func NewCredentialRepository(db bun.IDB) *CredentialRepository {
	return &CredentialRepository{db: db}
}

// FindByIdentifier implements auth.CredentialStore.
func (r *CredentialRepository) FindByIdentifier(ctx context.Context, identifier string) (*auth.Credential, error) {
	return r.FindByIdentifierTx(ctx, r.db, identifier)
}

// FindByIdentifierTx implements auth.CredentialStore.
func (r *CredentialRepository) FindByIdentifierTx(ctx context.Context, tx bun.IDB, identifier string) (*auth.Credential, error) {
	record := new(auth.Credential)
	err := tx.NewSelect().
		Model(record).
		Relation("Roles").
		Where("?TableAlias.email = ?", auth.NormalizeIdentifier(identifier)).
		Scan(ctx)
	if err != nil {
		return nil, mapError(err, "user")
	}
	return record, nil
}

// FindByID implements auth.CredentialStore.
func (r *CredentialRepository) FindByID(ctx context.Context, id uuid.UUID) (*auth.Credential, error) {
	return r.FindByIDTx(ctx, r.db, id)
}

// FindByIDTx implements auth.CredentialStore.
func (r *CredentialRepository) FindByIDTx(ctx context.Context, tx bun.IDB, id uuid.UUID) (*auth.Credential, error) {
	record := new(auth.Credential)
	err := tx.NewSelect().
		Model(record).
		Relation("Roles").
		Where("?TableAlias.id = ?", id).
		Scan(ctx)
	if err != nil {
		return nil, mapError(err, "user")
	}
	return record, nil
}

// CreateTx inserts the credential and its role grants.
func (r *CredentialRepository) CreateTx(ctx context.Context, tx bun.IDB, record *auth.Credential) (*auth.Credential, error) {
	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}
	record.Identifier = auth.NormalizeIdentifier(record.Identifier)

	now := time.Now().UTC()
	record.CreatedAt = &now
	record.UpdatedAt = &now

	if _, err := tx.NewInsert().Model(record).Exec(ctx); err != nil {
		return nil, mapError(err, "user")
	}

	if len(record.Roles) > 0 {
		grants := make([]*auth.CredentialRole, 0, len(record.Roles))
		for _, role := range record.Roles {
			if role == nil {
				continue
			}
			grants = append(grants, &auth.CredentialRole{CredentialID: record.ID, RoleID: role.ID})
		}
		if len(grants) > 0 {
			if _, err := tx.NewInsert().Model(&grants).Exec(ctx); err != nil {
				return nil, mapError(err, "user role")
			}
		}
	}

	return record, nil
}

// UpdateTx persists the mutable account columns. Role grants are not touched.
func (r *CredentialRepository) UpdateTx(ctx context.Context, tx bun.IDB, record *auth.Credential) (*auth.Credential, error) {
	now := time.Now().UTC()
	record.UpdatedAt = &now

	res, err := tx.NewUpdate().
		Model(record).
		Column("first_name", "last_name", "date_of_birth", "password_hash", "enabled", "account_locked", "updated_at").
		WherePK().
		Exec(ctx)
	if err != nil {
		return nil, mapError(err, "user")
	}

	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return nil, mapError(sql.ErrNoRows, "user")
	}

	return record, nil
}

// AddRoleTx grants roleID to the credential. Granting a role twice violates
// the user_roles primary key and fails as a conflict.
func (r *CredentialRepository) AddRoleTx(ctx context.Context, tx bun.IDB, credentialID, roleID uuid.UUID) error {
	grant := &auth.CredentialRole{CredentialID: credentialID, RoleID: roleID}
	if _, err := tx.NewInsert().Model(grant).Exec(ctx); err != nil {
		return mapError(err, "user role")
	}

	_, err := tx.NewUpdate().
		Model((*auth.Credential)(nil)).
		Set("updated_at = ?", time.Now().UTC()).
		Where("?TableAlias.id = ?", credentialID).
		Exec(ctx)
	return mapError(err, "user")
}
