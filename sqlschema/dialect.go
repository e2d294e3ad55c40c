package sqlschema

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"

	"github.com/strata-db/strata/dberr"
)

const (
	MysqlDefaultLockKey     = "strata_migrations"
	MysqlDefaultLockSeconds = 3
)

// dialect hides the differences between backends: DDL spelling, table
// existence checks, advisory locking and driver error classification.
// Driver-specific failure codes are normalized to the taxonomy's canonical
// vendor codes so the predicates behave identically on every backend.
type dialect interface {
	createTableSQL(table, columns string) string
	dropTableSQL(table string) string
	hasTableQuery(table string) (string, []interface{})
	lock(ctx context.Context, ex dbtx) error
	unlock(ctx context.Context, ex dbtx) error
	mapError(err error, stmt string, bindings map[string]interface{}) error
}

type mysqlDialect struct {
	lockKey string
	lockFor int
}

func newMySQLDialect() *mysqlDialect {
	return &mysqlDialect{
		lockKey: MysqlDefaultLockKey,
		lockFor: MysqlDefaultLockSeconds,
	}
}

func (d *mysqlDialect) createTableSQL(table, columns string) string {
	return fmt.Sprintf("CREATE TABLE %s (%s) ENGINE=INNODB", table, columns)
}

func (d *mysqlDialect) dropTableSQL(table string) string {
	return fmt.Sprintf("DROP TABLE %s", table)
}

func (d *mysqlDialect) hasTableQuery(table string) (string, []interface{}) {
	return "SELECT COUNT(*) FROM information_schema.tables WHERE table_schema = DATABASE() AND table_name = ?",
		[]interface{}{table}
}

func (d *mysqlDialect) lock(ctx context.Context, ex dbtx) error {
	if _, err := ex.ExecContext(ctx, "SELECT GET_LOCK(?, ?)", d.lockKey, d.lockFor); err != nil {
		return errors.Wrapf(err, "could not obtain [%s] exclusive MySQL DB lock for [%d] seconds", d.lockKey, d.lockFor)
	}

	return nil
}

func (d *mysqlDialect) unlock(ctx context.Context, ex dbtx) error {
	if _, err := ex.ExecContext(ctx, "SELECT RELEASE_LOCK(?)", d.lockKey); err != nil {
		return errors.Wrapf(err, "could not release [%s] exclusive MySQL DB lock", d.lockKey)
	}

	return nil
}

func (d *mysqlDialect) mapError(err error, stmt string, bindings map[string]interface{}) error {
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		return dberr.NewQueryError(err, stmt, bindings, int(myErr.Number), string(myErr.SQLState[:]))
	}

	return dberr.NewQueryError(err, stmt, bindings, 0, "")
}

type sqliteDialect struct{}

func newSqliteDialect() *sqliteDialect {
	return &sqliteDialect{}
}

// createTableSQL rewrites the canonical column definitions into SQLite
// spelling: INTEGER PRIMARY KEY is already auto-incrementing and unsigned
// integer types do not exist.
func (d *sqliteDialect) createTableSQL(table, columns string) string {
	columns = strings.ReplaceAll(columns, " AUTO_INCREMENT", "")
	columns = strings.ReplaceAll(columns, "INT UNSIGNED", "INTEGER")

	return fmt.Sprintf("CREATE TABLE %s (%s)", table, columns)
}

func (d *sqliteDialect) dropTableSQL(table string) string {
	return fmt.Sprintf("DROP TABLE %s", table)
}

func (d *sqliteDialect) hasTableQuery(table string) (string, []interface{}) {
	return "SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?",
		[]interface{}{table}
}

// SQLite is single-writer; there is no advisory lock to take.
func (d *sqliteDialect) lock(context.Context, dbtx) error { return nil }

func (d *sqliteDialect) unlock(context.Context, dbtx) error { return nil }

func (d *sqliteDialect) mapError(err error, stmt string, bindings map[string]interface{}) error {
	var sErr sqlite3.Error
	if !errors.As(err, &sErr) {
		return dberr.NewQueryError(err, stmt, bindings, 0, "")
	}

	switch {
	case sErr.ExtendedCode == sqlite3.ErrConstraintUnique || sErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey:
		return dberr.NewDuplicateKeyError(err, stmt, bindings)
	case sErr.ExtendedCode == sqlite3.ErrConstraintForeignKey:
		return dberr.NewQueryError(err, stmt, bindings, dberr.CodeFKViolationOnInsert, "23000")
	case sErr.Code == sqlite3.ErrBusy || sErr.Code == sqlite3.ErrLocked:
		return dberr.NewLockTimeoutError(err, stmt)
	default:
		return dberr.NewQueryError(err, stmt, bindings, int(sErr.ExtendedCode), "")
	}
}
