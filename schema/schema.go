// Package schema declares the connection port the migration engine drives:
// transactional execution, a narrow query surface for bookkeeping lookups,
// and DDL primitives. The engine only consumes these interfaces; concrete
// implementations live elsewhere (see sqlschema for the SQL-backed one).
package schema

import (
	"context"
	"time"
)

// Record is a single row returned by the query surface, keyed by column name.
type Record map[string]interface{}

// Conn is the connection port. During Transaction the callback receives a
// Conn scoped to the open transaction; calling Transaction on it again must
// fail rather than silently nest.
type Conn interface {
	// Exec runs a raw statement. Migration scripts go through here.
	Exec(ctx context.Context, stmt string, args ...interface{}) error

	// Query starts a fresh query builder.
	Query() Query

	// Schema exposes the DDL surface.
	Schema() Builder

	// Transaction runs fn inside a transaction: commit on nil return,
	// rollback on error with the original error re-raised.
	Transaction(ctx context.Context, fn func(tx Conn) error) error
}

// Query is the minimal fluent read/write surface the engine needs for its
// bookkeeping table. No joins, no grouping.
type Query interface {
	From(table string) Query
	Table(table string) Query
	Where(column, operator string, value interface{}) Query
	OrderBy(column string, descending bool) Query

	Get(ctx context.Context) ([]Record, error)
	First(ctx context.Context) (Record, error)
	Pluck(ctx context.Context, column string) ([]interface{}, error)
	Max(ctx context.Context, column string) (int64, error)

	Insert(ctx context.Context, row Record) error
	Delete(ctx context.Context) error
}

// Builder is the DDL surface. Column definitions are passed as raw dialect
// text; the engine never parses them.
type Builder interface {
	CreateTable(ctx context.Context, name, columns string) error
	DropTable(ctx context.Context, name string) error
	HasTable(ctx context.Context, name string) (bool, error)
}

// Locker is optionally implemented by connections that can take an advisory
// lock. When available, the runner holds it for the duration of every
// state-changing operation so that concurrent processes do not race on
// batch numbers.
type Locker interface {
	Lock(ctx context.Context) error
	Unlock(ctx context.Context) error
}

// Int reads an integer column from a record, tolerating the numeric types
// different drivers produce.
func Int(r Record, column string) (int64, bool) {
	switch v := r[column].(type) {
	case int64:
		return v, true
	case int:
		return int64(v), true
	case int32:
		return int64(v), true
	case uint64:
		return int64(v), true
	case uint:
		return int64(v), true
	case float64:
		return int64(v), true
	case []byte:
		return parseInt(string(v))
	case string:
		return parseInt(v)
	default:
		return 0, false
	}
}

// String reads a text column from a record.
func String(r Record, column string) (string, bool) {
	switch v := r[column].(type) {
	case string:
		return v, true
	case []byte:
		return string(v), true
	default:
		return "", false
	}
}

// Time reads a timestamp column from a record.
func Time(r Record, column string) (time.Time, bool) {
	if v, ok := r[column].(time.Time); ok {
		return v, true
	}

	if s, ok := String(r, column); ok {
		for _, layout := range []string{"2006-01-02 15:04:05", time.RFC3339} {
			if t, err := time.Parse(layout, s); err == nil {
				return t, true
			}
		}
	}

	return time.Time{}, false
}

func parseInt(s string) (int64, bool) {
	var n int64
	if s == "" {
		return 0, false
	}

	for _, r := range s {
		if r < '0' || r > '9' {
			return 0, false
		}
		n = n*10 + int64(r-'0')
	}

	return n, true
}
