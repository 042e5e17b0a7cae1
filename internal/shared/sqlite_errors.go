// Package shared holds small helpers needed by more than one package.
package shared

import "strings"

// IsSQLiteConflictError reports whether err is a SQLite concurrency failure.
// The driver surfaces these as SQLITE_BUSY or "database is locked" message
// text; both mean another connection holds the write lock and the statement
// may be retried.
func IsSQLiteConflictError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}
