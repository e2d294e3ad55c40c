// Package sqlschema implements the schema port on top of database/sql for
// MySQL and SQLite. It maps driver failures into the dberr taxonomy and, on
// MySQL, exposes an advisory lock the runner holds across operations.
package sqlschema

import (
	"context"
	"database/sql"
	"strconv"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/strata-db/strata/dberr"
	"github.com/strata-db/strata/internal/logger"
	"github.com/strata-db/strata/schema"
)

// dbtx is the execution surface shared by *sqlx.DB and *sqlx.Tx.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryxContext(ctx context.Context, query string, args ...interface{}) (*sqlx.Rows, error)
	QueryRowxContext(ctx context.Context, query string, args ...interface{}) *sqlx.Row
}

// Conn adapts a SQL database to the schema port. Inside Transaction the
// callback receives a Conn bound to the open transaction; beginning another
// transaction on it fails.
type Conn struct {
	db      *sqlx.DB // nil when this Conn is transaction-scoped
	ex      dbtx
	dialect dialect
	lg      logger.Logger
}

var (
	_ schema.Conn   = (*Conn)(nil)
	_ schema.Locker = (*Conn)(nil)
)

type OptionFunc func(*Conn)

// WithLogger routes statement logging through the given logger.
func WithLogger(lg logger.Logger) OptionFunc {
	return func(c *Conn) {
		c.lg = lg
	}
}

// NewMySQLConn wraps an open MySQL handle.
func NewMySQLConn(db *sql.DB, opts ...OptionFunc) *Conn {
	return newConn(sqlx.NewDb(db, "mysql"), newMySQLDialect(), opts)
}

// NewSqliteConn wraps an open SQLite handle.
func NewSqliteConn(db *sql.DB, opts ...OptionFunc) *Conn {
	return newConn(sqlx.NewDb(db, "sqlite3"), newSqliteDialect(), opts)
}

func newConn(db *sqlx.DB, d dialect, opts []OptionFunc) *Conn {
	c := &Conn{
		db:      db,
		ex:      db,
		dialect: d,
		lg:      &logger.NullLogger{},
	}

	for _, oFunc := range opts {
		oFunc(c)
	}

	return c
}

// Close releases the underlying pool.
func (c *Conn) Close() error {
	if c.db == nil {
		return nil
	}

	return c.db.Close()
}

func (c *Conn) Exec(ctx context.Context, stmt string, args ...interface{}) error {
	c.lg.SQL(stmt, args...)

	if _, err := c.ex.ExecContext(ctx, stmt, args...); err != nil {
		return c.dialect.mapError(err, stmt, positionalBindings(args))
	}

	return nil
}

func (c *Conn) Query() schema.Query {
	return &query{conn: c}
}

func (c *Conn) Schema() schema.Builder {
	return &builder{conn: c}
}

func (c *Conn) Transaction(ctx context.Context, fn func(tx schema.Conn) error) error {
	if c.db == nil {
		return dberr.NewNestedTransactionsUnsupported(1)
	}

	tx, err := c.db.BeginTxx(ctx, nil)
	if err != nil {
		return dberr.NewBeginFailed(err)
	}

	txConn := &Conn{ex: tx, dialect: c.dialect, lg: c.lg}

	if err := fn(txConn); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return errors.Wrap(err, rbErr.Error())
		}

		return err
	}

	if err := tx.Commit(); err != nil {
		if classified := classifyTxFailure(c.dialect, err); classified != nil {
			return classified
		}

		return dberr.NewCommitFailed(err, 1)
	}

	return nil
}

// Lock takes the dialect's advisory lock when it has one; SQLite is a
// single-writer store and locks trivially.
func (c *Conn) Lock(ctx context.Context) error {
	return c.dialect.lock(ctx, c.ex)
}

func (c *Conn) Unlock(ctx context.Context) error {
	return c.dialect.unlock(ctx, c.ex)
}

// classifyTxFailure promotes deadlock and lock-timeout commit failures to
// their transaction-level error kinds so callers can test retryability.
func classifyTxFailure(d dialect, err error) error {
	mapped := d.mapError(err, "", nil)

	var qErr *dberr.QueryError
	if !errors.As(mapped, &qErr) {
		return nil
	}

	if qErr.IsDeadlock() {
		return dberr.NewDeadlockDetected(err)
	}

	if qErr.IsLockTimeout() {
		return dberr.NewTransactionLockTimeout(err)
	}

	return nil
}

func positionalBindings(args []interface{}) map[string]interface{} {
	if len(args) == 0 {
		return nil
	}

	bindings := make(map[string]interface{}, len(args))
	for i, arg := range args {
		bindings["arg"+strconv.Itoa(i)] = arg
	}

	return bindings
}
