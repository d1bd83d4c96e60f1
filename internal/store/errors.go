package store

import (
	"errors"
	"strings"
)

// ErrNotFound is returned by repository methods when the requested record
// does not exist. Callers should use errors.Is to distinguish missing
// records from other database errors.
var ErrNotFound = errors.New("record not found")

// ErrConflict is returned when an insert or update violates a unique
// constraint — for example creating a Secret with a name that already exists.
var ErrConflict = errors.New("record already exists")

// isUniqueViolation does a best-effort string match against the distinct
// unique-constraint error text the sqlite and postgres drivers each produce,
// since golang-migrate/gorm do not normalize this into a typed error.
func isUniqueViolation(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint") || strings.Contains(msg, "duplicate key value")
}
