package repository

import (
	"database/sql"
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

// mapError translates driver errors into categorized errors the services
// can branch on.
func mapError(err error, entity string) error {
	if err == nil {
		return nil
	}

	if goerrors.Is(err, sql.ErrNoRows) {
		return goerrors.Wrap(err, goerrors.CategoryNotFound, entity+" not found").
			WithCode(goerrors.CodeNotFound)
	}

	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "unique") || strings.Contains(msg, "duplicate key") {
		return goerrors.Wrap(err, goerrors.CategoryConflict, entity+" already exists").
			WithCode(goerrors.CodeConflict)
	}

	return goerrors.Wrap(err, goerrors.CategoryInternal, entity+" query failed")
}
