// Package strata is a batch-oriented schema migration engine. A Runner holds
// a registry of named, versioned, reversible migrations and evolves a
// relational schema through them, tracking applied work in a bookkeeping
// table so that every operation is idempotent and resumable.
package strata

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/strata-db/strata/dberr"
	"github.com/strata-db/strata/internal/logger"
	"github.com/strata-db/strata/migration"
	"github.com/strata-db/strata/schema"
	"github.com/strata-db/strata/source"
)

var ErrConnNotInitialized = errors.New("schema connection has not been initialized")

// DefaultMigrationsTable is the bookkeeping table name.
const DefaultMigrationsTable = "migrations"

// MigrationsTableColumns is the bookkeeping table shape: one row per applied
// migration, joined to code by the unique migration name. Dialect-specific
// ports may rewrite keywords, never the shape.
const MigrationsTableColumns = "id INTEGER PRIMARY KEY AUTO_INCREMENT, " +
	"migration VARCHAR(255) NOT NULL UNIQUE, " +
	"batch INT UNSIGNED NOT NULL, " +
	"created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP"

// Runner orchestrates migrations against a single schema connection. It is
// not safe for concurrent use by multiple goroutines; cross-process mutual
// exclusion relies on the connection's advisory lock when it provides one.
type Runner struct {
	lg       logger.Logger
	conn     schema.Conn
	table    string
	clock    migration.ClockFunc
	selector source.Selector
	src      source.Source
	index    map[string]migration.Migration
}

// NewRunner creates a Runner over an explicitly constructed schema
// connection; there is no ambient database handle.
func NewRunner(conn schema.Conn, opts ...OptionFunc) (*Runner, error) {
	if conn == nil {
		return nil, ErrConnNotInitialized
	}

	r := &Runner{
		lg:    &logger.NullLogger{},
		conn:  conn,
		table: DefaultMigrationsTable,
		clock: time.Now,
		index: make(map[string]migration.Migration),
	}

	for _, oFunc := range opts {
		if err := oFunc(r); err != nil {
			return nil, err
		}
	}

	return r, nil
}

// Register adds a migration to the in-memory registry, keyed by name; a
// migration with the same name replaces the previous entry.
func (r *Runner) Register(m migration.Migration) {
	r.index[m.Name()] = m
}

// RegisterAll registers every migration in the collection.
func (r *Runner) RegisterAll(ms migration.Migrations) {
	for i := range ms {
		r.Register(ms[i])
	}
}

// Load pulls migrations from the configured source and registers them.
func (r *Runner) Load(ctx context.Context) error {
	if r.selector == nil {
		return dberr.NewLoadFailed("", errors.New("no migration source configured"))
	}

	ms, err := r.selector.Select(ctx)
	if err != nil {
		var mErr *dberr.MigrationError
		if errors.As(err, &mErr) {
			return err
		}

		return dberr.NewLoadFailed("", err)
	}

	r.RegisterAll(ms)

	return nil
}

// registry returns registered migrations ordered by version ascending.
func (r *Runner) registry() migration.Migrations {
	ms := make(migration.Migrations, 0, len(r.index))
	for _, m := range r.index {
		ms = append(ms, m)
	}
	ms.Sort()

	return ms
}

// appliedRecord is one bookkeeping row.
type appliedRecord struct {
	id        int64
	name      string
	batch     int64
	createdAt time.Time
}

// ensureMigrationsTable lazily creates the bookkeeping table.
func (r *Runner) ensureMigrationsTable(ctx context.Context) error {
	exists, err := r.conn.Schema().HasTable(ctx, r.table)
	if err != nil {
		return err
	}

	if exists {
		return nil
	}

	r.lg.Debugf("creating migrations table [%s]", r.table)

	return r.conn.Schema().CreateTable(ctx, r.table, MigrationsTableColumns)
}

// appliedAscending reads all bookkeeping rows in insertion order, degrading
// to an empty set when the table does not exist yet: a fresh install
// legitimately has no history.
func (r *Runner) appliedAscending(ctx context.Context) ([]appliedRecord, error) {
	return r.readApplied(ctx, false)
}

// appliedDescending reads bookkeeping rows most-recently-inserted-first:
// batch descending, then id descending. This is insertion order, not version
// order; migrations applied out of version sequence roll back in the order
// they were inserted.
func (r *Runner) appliedDescending(ctx context.Context) ([]appliedRecord, error) {
	return r.readApplied(ctx, true)
}

func (r *Runner) readApplied(ctx context.Context, descending bool) ([]appliedRecord, error) {
	exists, err := r.conn.Schema().HasTable(ctx, r.table)
	if err != nil {
		return nil, err
	}

	if !exists {
		return nil, nil
	}

	q := r.conn.Query().From(r.table)
	if descending {
		q = q.OrderBy("batch", true).OrderBy("id", true)
	} else {
		q = q.OrderBy("id", false)
	}

	records, err := q.Get(ctx)
	if err != nil {
		return nil, err
	}

	result := make([]appliedRecord, 0, len(records))
	for _, rec := range records {
		var ar appliedRecord
		ar.id, _ = schema.Int(rec, "id")
		ar.name, _ = schema.String(rec, "migration")
		ar.batch, _ = schema.Int(rec, "batch")
		ar.createdAt, _ = schema.Time(rec, "created_at")
		result = append(result, ar)
	}

	return result, nil
}

func (r *Runner) appliedSet(ctx context.Context) (map[string]appliedRecord, error) {
	records, err := r.appliedAscending(ctx)
	if err != nil {
		return nil, err
	}

	set := make(map[string]appliedRecord, len(records))
	for _, rec := range records {
		set[rec.name] = rec
	}

	return set, nil
}

// nextBatch computes max(batch)+1, or 1 when nothing has been applied.
func (r *Runner) nextBatch(ctx context.Context) (int64, error) {
	exists, err := r.conn.Schema().HasTable(ctx, r.table)
	if err != nil {
		return 0, err
	}

	if !exists {
		return 1, nil
	}

	max, err := r.conn.Query().From(r.table).Max(ctx, "batch")
	if err != nil {
		return 0, err
	}

	return max + 1, nil
}

// acquireLock takes the connection's advisory lock when it offers one. The
// returned release function is safe to defer and runs on every exit path.
func (r *Runner) acquireLock(ctx context.Context) (func(), error) {
	l, ok := r.conn.(schema.Locker)
	if !ok {
		return func() {}, nil
	}

	if err := l.Lock(ctx); err != nil {
		return nil, errors.Wrap(err, "could not obtain advisory lock")
	}

	return func() {
		if err := l.Unlock(ctx); err != nil {
			r.lg.Error(errors.Wrap(err, "could not release advisory lock"))
		}
	}, nil
}
