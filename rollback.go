package strata

import (
	"context"

	"github.com/strata-db/strata/dberr"
	"github.com/strata-db/strata/migration"
	"github.com/strata-db/strata/schema"
)

// Rollback undoes the migrations in the N most recent batches (default one),
// most recently inserted first: batch descending, then id descending. Note
// this is insertion order, not version order — migrations applied out of
// version sequence via Run roll back in the order their rows were inserted.
//
// Each rollback runs Down and the bookkeeping delete in one transaction.
// A row whose migration is no longer registered fails the operation.
func (r *Runner) Rollback(ctx context.Context, cfs ...ActionConfigurator) ([]string, error) {
	act := makeAction(cfs)

	steps := act.steps
	if steps <= 0 {
		steps = 1
	}

	release, err := r.acquireLock(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	records, err := r.appliedDescending(ctx)
	if err != nil {
		return nil, dberr.NewRollbackFailed("", err)
	}

	rolledBack := make([]string, 0, len(records))
	if len(records) == 0 {
		return rolledBack, nil
	}

	maxBatch := records[0].batch
	minBatch := maxBatch - int64(steps) + 1
	if minBatch < 1 {
		minBatch = 1
	}

	for _, rec := range records {
		if rec.batch < minBatch {
			break
		}

		m, ok := r.index[rec.name]
		if !ok {
			return rolledBack, dberr.NewMigrationNotFound(rec.name)
		}

		if act.pretend {
			r.lg.Debugf("would roll back: %s", rec.name)
			rolledBack = append(rolledBack, rec.name)
			continue
		}

		if err := r.revertOne(ctx, m); err != nil {
			return rolledBack, dberr.NewRollbackFailed(rec.name, err)
		}

		r.lg.Successf("rolled back: %s (batch %d)", rec.name, rec.batch)
		rolledBack = append(rolledBack, rec.name)
	}

	return rolledBack, nil
}

// Reset rolls back every applied migration in the same
// most-recently-inserted-first order, skipping rows whose migration is no
// longer registered instead of failing.
func (r *Runner) Reset(ctx context.Context, cfs ...ActionConfigurator) ([]string, error) {
	act := makeAction(cfs)

	release, err := r.acquireLock(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	records, err := r.appliedDescending(ctx)
	if err != nil {
		return nil, dberr.NewRollbackFailed("", err)
	}

	rolledBack := make([]string, 0, len(records))

	for _, rec := range records {
		m, ok := r.index[rec.name]
		if !ok {
			r.lg.Debugf("skipping unregistered migration: %s", rec.name)
			continue
		}

		if act.pretend {
			rolledBack = append(rolledBack, rec.name)
			continue
		}

		if err := r.revertOne(ctx, m); err != nil {
			return rolledBack, dberr.NewRollbackFailed(rec.name, err)
		}

		r.lg.Successf("rolled back: %s (batch %d)", rec.name, rec.batch)
		rolledBack = append(rolledBack, rec.name)
	}

	return rolledBack, nil
}

// Refresh resets everything, then migrates from scratch. The two phases are
// separate operations, not one atomic unit.
func (r *Runner) Refresh(ctx context.Context, cfs ...ActionConfigurator) (rolledBack, migrated []string, err error) {
	rolledBack, err = r.Reset(ctx, cfs...)
	if err != nil {
		return rolledBack, nil, err
	}

	migrated, err = r.Migrate(ctx, cfs...)

	return rolledBack, migrated, err
}

// revertOne wraps a migration's Down and its bookkeeping delete in one
// transaction, mirroring applyOne.
func (r *Runner) revertOne(ctx context.Context, m migration.Migration) error {
	return r.conn.Transaction(ctx, func(tx schema.Conn) error {
		if err := m.Down(ctx, tx); err != nil {
			return err
		}

		return tx.Query().Table(r.table).Where("migration", "=", m.Name()).Delete(ctx)
	})
}
