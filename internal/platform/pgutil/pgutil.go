// Package pgutil holds small helpers shared by the Postgres repositories.
package pgutil

import (
	"database/sql"
	"database/sql/driver"
	"fmt"
	"strconv"
	"time"
)

// Uint64Param renders a uint64 for a NUMERIC(20,0) column. database/sql
// rejects uint64 arguments with the high bit set, so values travel as text.
func Uint64Param(v uint64) string {
	return strconv.FormatUint(v, 10)
}

// Uint64 scans a NUMERIC(20,0) column.
type Uint64 struct {
	V uint64
}

// Scan implements sql.Scanner.
func (u *Uint64) Scan(src any) error {
	switch value := src.(type) {
	case nil:
		u.V = 0
		return nil
	case int64:
		if value < 0 {
			return fmt.Errorf("pgutil: negative value %d", value)
		}
		u.V = uint64(value)
		return nil
	case string:
		return u.parse(value)
	case []byte:
		return u.parse(string(value))
	default:
		return fmt.Errorf("pgutil: cannot scan %T into uint64", src)
	}
}

// Value implements driver.Valuer.
func (u Uint64) Value() (driver.Value, error) {
	return Uint64Param(u.V), nil
}

func (u *Uint64) parse(text string) error {
	parsed, err := strconv.ParseUint(text, 10, 64)
	if err != nil {
		return fmt.Errorf("pgutil: parse uint64: %w", err)
	}
	u.V = parsed
	return nil
}

// NullTime converts a zero time into SQL NULL.
func NullTime(t time.Time) sql.NullTime {
	if t.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

// TimeOrZero unwraps a nullable timestamp.
func TimeOrZero(t sql.NullTime) time.Time {
	if !t.Valid {
		return time.Time{}
	}
	return t.Time.UTC()
}

// TableExists reports whether a table is present in the public schema.
func TableExists(db *sql.DB, table string) bool {
	var exists bool
	err := db.QueryRow(`
SELECT EXISTS (
	SELECT 1
	FROM information_schema.tables
	WHERE table_schema = 'public' AND table_name = $1
)`, table).Scan(&exists)
	if err != nil {
		return false
	}
	return exists
}
