// Package db holds small database/sql helpers shared by the store: a
// transaction wrapper and conversions between Go optionals and SQL NULLs.
package db

import (
	"database/sql"
)

// WithTx executes fn within a transaction.
// It handles Begin, Rollback on error, and Commit on success.
func WithTx(db *sql.DB, fn func(tx *sql.Tx) error) error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback() //nolint:errcheck // rollback on error is intentional

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

// NullBool converts an optional bool to a nullable integer bind value:
// nil stays NULL, otherwise 0 or 1.
func NullBool(b *bool) any {
	if b == nil {
		return nil
	}
	if *b {
		return int64(1)
	}
	return int64(0)
}

// BoolPtr converts a stored nullable integer back to an optional bool.
func BoolPtr(n sql.NullInt64) *bool {
	if !n.Valid {
		return nil
	}
	v := n.Int64 != 0
	return &v
}

// NullString converts a string to a bind value, mapping "" to NULL so
// absent metadata stays distinguishable from an empty value.
func NullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// NullStringValue returns the string value or empty string if not valid.
func NullStringValue(n sql.NullString) string {
	if !n.Valid {
		return ""
	}
	return n.String
}
