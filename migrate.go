package strata

import (
	"context"

	"github.com/strata-db/strata/dberr"
	"github.com/strata-db/strata/migration"
	"github.com/strata-db/strata/schema"
)

// Migrate applies every pending migration in ascending version order. All
// migrations applied by one call share a batch number. Each migration runs
// in its own transaction together with its bookkeeping insert, so a failure
// mid-list leaves earlier migrations committed; re-invoking Migrate skips
// them and resumes from the failed one.
//
// Returns the names applied (or, with WithPretend, the names that would be
// applied). An empty list is a successful "nothing to do".
func (r *Runner) Migrate(ctx context.Context, cfs ...ActionConfigurator) ([]string, error) {
	act := makeAction(cfs)

	release, err := r.acquireLock(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	if !act.pretend {
		if err := r.ensureMigrationsTable(ctx); err != nil {
			return nil, dberr.NewMigrationFailed("", err)
		}
	}

	appliedSet, err := r.appliedSet(ctx)
	if err != nil {
		return nil, dberr.NewMigrationFailed("", err)
	}

	var pending migration.Migrations
	for _, m := range r.registry() {
		if _, ok := appliedSet[m.Name()]; !ok {
			pending = append(pending, m)
		}
	}

	migrated := make([]string, 0, len(pending))
	if len(pending) == 0 {
		return migrated, nil
	}

	batch, err := r.nextBatch(ctx)
	if err != nil {
		return nil, dberr.NewMigrationFailed("", err)
	}

	for _, m := range pending {
		if act.pretend {
			r.lg.Debugf("would migrate: %s", m.Name())
			migrated = append(migrated, m.Name())
			continue
		}

		if err := r.applyOne(ctx, m, batch); err != nil {
			return migrated, dberr.NewMigrationFailed(m.Name(), err)
		}

		r.lg.Successf("migrated: %s (batch %d)", m.Name(), batch)
		migrated = append(migrated, m.Name())
	}

	return migrated, nil
}

// Run applies one specific migration under the next batch number,
// registering it if needed. Applying a migration that already has a
// bookkeeping row is an error.
func (r *Runner) Run(ctx context.Context, m migration.Migration, cfs ...ActionConfigurator) error {
	act := makeAction(cfs)

	r.Register(m)

	release, err := r.acquireLock(ctx)
	if err != nil {
		return err
	}
	defer release()

	if !act.pretend {
		if err := r.ensureMigrationsTable(ctx); err != nil {
			return dberr.NewMigrationFailed(m.Name(), err)
		}
	}

	appliedSet, err := r.appliedSet(ctx)
	if err != nil {
		return dberr.NewMigrationFailed(m.Name(), err)
	}

	if _, ok := appliedSet[m.Name()]; ok {
		return dberr.NewMigrationAlreadyRan(m.Name())
	}

	if act.pretend {
		return nil
	}

	batch, err := r.nextBatch(ctx)
	if err != nil {
		return dberr.NewMigrationFailed(m.Name(), err)
	}

	if err := r.applyOne(ctx, m, batch); err != nil {
		return dberr.NewMigrationFailed(m.Name(), err)
	}

	r.lg.Successf("migrated: %s (batch %d)", m.Name(), batch)

	return nil
}

// applyOne wraps a migration's Up and its bookkeeping insert in one
// transaction: the migration is atomically applied or not, there is no
// persisted in-progress state.
func (r *Runner) applyOne(ctx context.Context, m migration.Migration, batch int64) error {
	return r.conn.Transaction(ctx, func(tx schema.Conn) error {
		if err := m.Up(ctx, tx); err != nil {
			return err
		}

		return tx.Query().Table(r.table).Insert(ctx, schema.Record{
			"migration": m.Name(),
			"batch":     batch,
		})
	})
}
