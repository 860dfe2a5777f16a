package db

import (
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/clinic/clinic/internal/platform/record"
)

// Postgres SQLSTATE codes the services translate into business failures.
const (
	codeUniqueViolation     = "23505"
	codeForeignKeyViolation = "23503"
	codeExclusionViolation  = "23P01"
)

func pgCode(err error) (string, string) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code, pgErr.ConstraintName
	}
	return "", ""
}

// IsUniqueViolation reports whether err is a duplicate-key failure from
// Postgres or from the in-memory store.
func IsUniqueViolation(err error) bool {
	if errors.Is(err, record.ErrDuplicate) {
		return true
	}
	code, _ := pgCode(err)
	return code == codeUniqueViolation
}

// IsExclusionViolation reports whether err came from an exclusion constraint,
// such as overlapping appointments of one doctor.
func IsExclusionViolation(err error) bool {
	code, _ := pgCode(err)
	return code == codeExclusionViolation
}

func IsForeignKeyViolation(err error) bool {
	code, _ := pgCode(err)
	return code == codeForeignKeyViolation
}

// ConstraintName returns the violated constraint, or "" for other errors.
func ConstraintName(err error) string {
	_, name := pgCode(err)
	return name
}

// IsNoRows reports whether err is pgx's not-found sentinel.
func IsNoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}
