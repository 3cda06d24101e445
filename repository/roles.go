package repository

import (
	"context"
	"strings"

	auth "github.com/goliatone/go-shop-auth"
	"github.com/uptrace/bun"
)

// RoleRepository implements auth.RoleStore using Bun.
type RoleRepository struct {
	db bun.IDB
}

func NewRoleRepository(db bun.IDB) *RoleRepository {
	return &RoleRepository{db: db}
}

// FindByName looks a role up outside of a transaction
func (r *RoleRepository) FindByName(ctx context.Context, name string) (*auth.Role, error) {
	return r.FindByNameTx(ctx, r.db, name)
}

// FindByNameTx implements auth.RoleStore.
func (r *RoleRepository) FindByNameTx(ctx context.Context, tx bun.IDB, name string) (*auth.Role, error) {
	record := new(auth.Role)
	err := tx.NewSelect().
		Model(record).
		Where("?TableAlias.name = ?", strings.ToUpper(strings.TrimSpace(name))).
		Scan(ctx)
	if err != nil {
		return nil, mapError(err, "role")
	}
	return record, nil
}
