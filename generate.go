package strata

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"

	"github.com/strata-db/strata/dberr"
	"github.com/strata-db/strata/migration"
)

// Generate scaffolds a new migration into the configured source folder under
// a timestamp-prefixed name. With table and create it writes a bare
// create/drop pair; with table alone, alter-table stubs; otherwise empty
// stubs. Returns the full migration name.
func (r *Runner) Generate(name, table string, create bool) (string, error) {
	if r.src == nil {
		return "", dberr.NewGenerateFailed(name, errors.New("no migrations folder configured"))
	}

	if name == "" {
		return "", dberr.NewGenerateFailed(name, errors.New("migration name must not be empty"))
	}

	if !r.src.IsValid() {
		return "", dberr.NewGenerateFailed(name, errors.New("migrations folder is not a directory"))
	}

	version := migration.GenerateVersion(r.clock)
	normalized := normalizeName(name)

	if r.src.AlreadyExists(version, normalized) {
		return "", dberr.NewGenerateFailed(name, errors.Errorf("migration [%s_%s] already exists", version, normalized))
	}

	migrateSQL, rollbackSQL := stubScripts(table, create)

	key, err := r.src.Create(version, normalized, migrateSQL, rollbackSQL)
	if err != nil {
		return "", dberr.NewGenerateFailed(name, err)
	}

	r.lg.Successf("created migration: %s", key)

	return key, nil
}

func stubScripts(table string, create bool) (string, string) {
	if table == "" {
		return "", ""
	}

	if create {
		up := fmt.Sprintf("CREATE TABLE %s (\n    id INTEGER PRIMARY KEY AUTO_INCREMENT\n);\n", table)
		down := fmt.Sprintf("DROP TABLE %s;\n", table)
		return up, down
	}

	stub := fmt.Sprintf("-- ALTER TABLE %s\n", table)

	return stub, stub
}

func normalizeName(name string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(name)), " ", "_")
}
