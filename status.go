package strata

import (
	"context"
	"time"

	"github.com/strata-db/strata/migration"
)

// Status is the join of one registered migration against the bookkeeping
// table. Batch is zero and RanAt is the zero time while pending.
type Status struct {
	Name  string
	Batch int64
	Ran   bool
	RanAt time.Time
}

// Status reports every registered migration in version order. Purely a read:
// a missing bookkeeping table reads as nothing applied and is not created.
func (r *Runner) Status(ctx context.Context) ([]Status, error) {
	appliedSet, err := r.appliedSet(ctx)
	if err != nil {
		return nil, err
	}

	registry := r.registry()
	statuses := make([]Status, 0, len(registry))

	for _, m := range registry {
		s := Status{Name: m.Name()}

		if rec, ok := appliedSet[m.Name()]; ok {
			s.Ran = true
			s.Batch = rec.batch
			s.RanAt = rec.createdAt
		}

		statuses = append(statuses, s)
	}

	return statuses, nil
}

// Pending returns registered migrations with no bookkeeping row, in version
// order.
func (r *Runner) Pending(ctx context.Context) (migration.Migrations, error) {
	appliedSet, err := r.appliedSet(ctx)
	if err != nil {
		return nil, err
	}

	var pending migration.Migrations
	for _, m := range r.registry() {
		if _, ok := appliedSet[m.Name()]; !ok {
			pending = append(pending, m)
		}
	}

	return pending, nil
}

// Completed returns the names of applied migrations in application order,
// gracefully empty when the bookkeeping table does not exist yet.
func (r *Runner) Completed(ctx context.Context) ([]string, error) {
	records, err := r.appliedAscending(ctx)
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, len(records))
	for _, rec := range records {
		names = append(names, rec.name)
	}

	return names, nil
}

// HasPending reports whether any registered migration is still unapplied.
func (r *Runner) HasPending(ctx context.Context) (bool, error) {
	pending, err := r.Pending(ctx)
	if err != nil {
		return false, err
	}

	return len(pending) > 0, nil
}

// CurrentVersion is the version of the most recently applied migration
// (batch descending, id descending), or "0" when nothing is applied.
func (r *Runner) CurrentVersion(ctx context.Context) (string, error) {
	records, err := r.appliedDescending(ctx)
	if err != nil {
		return "", err
	}

	if len(records) == 0 {
		return "0", nil
	}

	name := records[0].name
	if m, ok := r.index[name]; ok {
		return m.Version(), nil
	}

	if version, ok := migration.VersionFromName(name); ok {
		return version, nil
	}

	return "0", nil
}

// LatestVersion is the version of the last registered migration, or "0"
// when the registry is empty.
func (r *Runner) LatestVersion() string {
	registry := r.registry()
	if len(registry) == 0 {
		return "0"
	}

	return registry[len(registry)-1].Version()
}
