package repository

import (
	"context"
	"database/sql"
	"time"

	auth "github.com/goliatone/go-shop-auth"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// ActivationCodeRepository implements auth.ActivationCodeStore using Bun.
type ActivationCodeRepository struct {
	db bun.IDB
}

func NewActivationCodeRepository(db bun.IDB) *ActivationCodeRepository {
	return &ActivationCodeRepository{db: db}
}

// CreateTx implements auth.ActivationCodeStore.
func (r *ActivationCodeRepository) CreateTx(ctx context.Context, tx bun.IDB, record *auth.ActivationCode) (*auth.ActivationCode, error) {
	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}

	if _, err := tx.NewInsert().Model(record).Exec(ctx); err != nil {
		return nil, mapError(err, "activation code")
	}
	return record, nil
}

// UpdateTx implements auth.ActivationCodeStore. Only the consumption
// timestamp ever changes and only while it is still unset, so a stale copy
// of an already consumed code matches no row and fails as not found.
func (r *ActivationCodeRepository) UpdateTx(ctx context.Context, tx bun.IDB, record *auth.ActivationCode) (*auth.ActivationCode, error) {
	res, err := tx.NewUpdate().
		Model(record).
		Column("validated_at").
		WherePK().
		Where("?TableAlias.validated_at IS NULL").
		Exec(ctx)
	if err != nil {
		return nil, mapError(err, "activation code")
	}

	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return nil, mapError(sql.ErrNoRows, "activation code")
	}
	return record, nil
}

// FindByCodeTx returns the most recent record carrying code. Codes can repeat
// once older ones were consumed or expired.
func (r *ActivationCodeRepository) FindByCodeTx(ctx context.Context, tx bun.IDB, code string) (*auth.ActivationCode, error) {
	record := new(auth.ActivationCode)
	err := tx.NewSelect().
		Model(record).
		Where("?TableAlias.code = ?", code).
		OrderExpr("?TableAlias.created_at DESC").
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, mapError(err, "activation code")
	}
	return record, nil
}
