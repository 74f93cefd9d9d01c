package db

import (
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

const pgUniqueViolation = "23505"

// Driver messages for unique violations on dialects without typed errors
// reaching this layer (mysql 1062, sqlite 2067).
var duplicateKeyMessages = []string{
	"duplicate key value violates unique constraint",
	"Error 1062",
	"UNIQUE constraint failed",
}

// IsDuplicateKeyErr reports whether err is a unique constraint violation on
// any supported dialect. Upserts racing on the same natural key use it to
// retry as an update.
func IsDuplicateKeyErr(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgUniqueViolation
	}

	msg := err.Error()
	for _, m := range duplicateKeyMessages {
		if strings.Contains(msg, m) {
			return true
		}
	}
	return false
}
