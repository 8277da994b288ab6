package postgres

import (
	stderrors "errors"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"

	"github.com/turtacn/authcore/pkg/errors"
)

// pgUniqueViolation is the SQLSTATE for a unique constraint violation.
const pgUniqueViolation = "23505"

func isUniqueViolation(err error) bool {
	if stderrors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	return stderrors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}

// lookupError maps a missing row to not_found and anything else to server_error.
func lookupError(err error, resource, id string) error {
	if stderrors.Is(err, gorm.ErrRecordNotFound) {
		return errors.ErrNotFound(resource, id)
	}
	return errors.ErrServerError("database lookup failed").WithCause(err)
}

func writeError(err error, what string) error {
	return errors.ErrServerError("failed to " + what).WithCause(err)
}
