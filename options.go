package strata

import (
	"github.com/strata-db/strata/internal/logger"
	"github.com/strata-db/strata/migration"
	"github.com/strata-db/strata/source"
)

type OptionFunc func(*Runner) error

// UseColorLogger enables colored progress output through the given printer
// (log.Logger satisfies it).
func UseColorLogger(p logger.Printer, printSQL, printDebug bool) OptionFunc {
	return func(r *Runner) error {
		r.lg = logger.NewColorLogger(p, printSQL, printDebug)
		return nil
	}
}

// UseBWLogger enables plain progress output.
func UseBWLogger(p logger.Printer, printSQL, printDebug bool) OptionFunc {
	return func(r *Runner) error {
		r.lg = logger.NewBWLogger(p, printSQL, printDebug)
		return nil
	}
}

// UseMigrationsTable overrides the bookkeeping table name.
func UseMigrationsTable(table string) OptionFunc {
	return func(r *Runner) error {
		if table != "" {
			r.table = table
		}

		return nil
	}
}

// UseClock overrides the time source used when generating migration
// versions; tests inject a fixed clock here.
func UseClock(cf migration.ClockFunc) OptionFunc {
	return func(r *Runner) error {
		r.clock = cf
		return nil
	}
}

// UseSelector supplies a migration discovery mechanism for Load.
func UseSelector(sel source.Selector) OptionFunc {
	return func(r *Runner) error {
		r.selector = sel

		if s, ok := sel.(source.Source); ok {
			r.src = s
		}

		return nil
	}
}

// UseLocalFolderSource discovers migrations from paired .migrate.sql and
// .rollback.sql files in a directory, and makes Generate scaffold into it.
func UseLocalFolderSource(folder string) OptionFunc {
	return func(r *Runner) error {
		s, err := source.NewLocalFSSource(folder, r.lg)
		if err != nil {
			return err
		}

		r.selector = s
		r.src = s

		return nil
	}
}

// UseInMemorySource registers a fixed migration list through the source
// mechanism; an explicit registration step for callers that assemble their
// migrations in code.
func UseInMemorySource(ms ...migration.Migration) OptionFunc {
	return func(r *Runner) error {
		r.selector = source.NewInMemorySource(ms...)
		return nil
	}
}
