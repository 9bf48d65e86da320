package database

import (
	"errors"

	"github.com/ermrest-eu/ermrestd/internal/apierr"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
)

// ClassifyWriteError maps a write/delete failure to apierr.Conflict when it
// is a constraint violation (spec.md's "constraint errors roll back and
// return 409"), using pgerrcode's named SQLSTATE constants rather than
// hand-rolled code literals. Any other error is returned unchanged, so
// session.Envelope's transient-failure classification and the generic
// error handler still see it.
func ClassifyWriteError(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	switch pgErr.Code {
	case pgerrcode.UniqueViolation,
		pgerrcode.ForeignKeyViolation,
		pgerrcode.CheckViolation,
		pgerrcode.NotNullViolation,
		pgerrcode.ExclusionViolation:
		return apierr.Wrap(apierr.Conflict, err, "constraint violation on %s", pgErr.ConstraintName)
	default:
		return err
	}
}
