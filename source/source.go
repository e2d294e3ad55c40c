// Package source populates the migration registry: either from an explicit
// in-memory list or by discovering paired SQL files in a directory. How the
// list is produced is an integration concern; the runner only consumes the
// Selector interface.
package source

import (
	"context"

	"github.com/strata-db/strata/migration"
)

// Selector yields the full set of known migrations.
type Selector interface {
	Select(ctx context.Context) (migration.Migrations, error)
}

// Source is a Selector that can also scaffold new migrations.
type Source interface {
	Selector

	IsValid() bool
	AlreadyExists(version, name string) bool
	Create(version, name, migrateSQL, rollbackSQL string) (string, error)
}

// InMemorySource holds a fixed migration list assembled in code.
type InMemorySource struct {
	migrations migration.Migrations
}

var _ Selector = (*InMemorySource)(nil)

func NewInMemorySource(ms ...migration.Migration) *InMemorySource {
	return &InMemorySource{migrations: migration.Migrations(ms)}
}

func (s *InMemorySource) Select(context.Context) (migration.Migrations, error) {
	return s.migrations, nil
}
