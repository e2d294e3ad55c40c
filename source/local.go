package source

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/pkg/errors"

	"github.com/strata-db/strata/dberr"
	"github.com/strata-db/strata/internal/logger"
	"github.com/strata-db/strata/migration"
)

const DefaultMigrationsFolder = "./migrations"

const (
	migrateFileExtension  = ".migrate.sql"
	rollbackFileExtension = ".rollback.sql"
)

// LocalFSSource discovers migrations from a directory of paired
// <name>.migrate.sql / <name>.rollback.sql files. Files that do not follow
// the naming convention, or whose name carries no version token, are
// silently skipped rather than failing the whole load.
type LocalFSSource struct {
	folder string
	lg     logger.Logger
}

var _ Source = (*LocalFSSource)(nil)

func NewLocalFSSource(folder string, lg logger.Logger) (*LocalFSSource, error) {
	if folder == "" {
		folder = DefaultMigrationsFolder
	}

	if lg == nil {
		lg = &logger.NullLogger{}
	}

	return &LocalFSSource{folder: folder, lg: lg}, nil
}

func (s *LocalFSSource) IsValid() bool {
	info, err := os.Stat(s.folder)
	if err != nil {
		return false
	}

	return info.IsDir()
}

func (s *LocalFSSource) AlreadyExists(version, name string) bool {
	key := version + "_" + name
	info, err := os.Stat(filepath.Join(s.folder, key+migrateFileExtension))
	if err != nil {
		return false
	}

	return !info.IsDir()
}

// Create writes the migrate/rollback file pair for a new migration and
// returns its name.
func (s *LocalFSSource) Create(version, name, migrateSQL, rollbackSQL string) (string, error) {
	key := version + "_" + name

	migratePath := filepath.Join(s.folder, key+migrateFileExtension)
	if err := os.WriteFile(migratePath, []byte(migrateSQL), 0644); err != nil {
		return "", errors.Wrapf(err, "could not create file [%s]", migratePath)
	}

	rollbackPath := filepath.Join(s.folder, key+rollbackFileExtension)
	if err := os.WriteFile(rollbackPath, []byte(rollbackSQL), 0644); err != nil {
		return "", errors.Wrapf(err, "could not create file [%s]", rollbackPath)
	}

	return key, nil
}

// Select reads every migration pair in the folder concurrently and returns
// them sorted by version ascending.
func (s *LocalFSSource) Select(ctx context.Context) (migration.Migrations, error) {
	keys, err := s.collectKeys()
	if err != nil {
		return nil, dberr.NewLoadFailed(s.folder, err)
	}

	migrationsCh := make(chan migration.Migration)
	errorsCh := make(chan error)
	var wg sync.WaitGroup

	for key := range keys {
		wg.Add(1)
		go func(key string) {
			defer wg.Done()

			m, err := s.readOne(key)
			if err != nil {
				errorsCh <- errors.Wrapf(err, "with key [%s]", key)
				return
			}

			if m != nil {
				migrationsCh <- m
			}
		}(key)
	}

	go func() {
		wg.Wait()
		close(migrationsCh)
		close(errorsCh)
	}()

	var result migration.Migrations

	for migrationsCh != nil || errorsCh != nil {
		select {
		case <-ctx.Done():
			return result, ctx.Err()
		case m, ok := <-migrationsCh:
			if !ok {
				migrationsCh = nil
				continue
			}
			result = append(result, m)
		case err, ok := <-errorsCh:
			if !ok {
				errorsCh = nil
				continue
			}
			return nil, dberr.NewLoadFailed(s.folder, err)
		}
	}

	result.Sort()

	return result, nil
}

// collectKeys maps migration keys to the presence of their file pair.
func (s *LocalFSSource) collectKeys() (map[string]struct{}, error) {
	entries, err := os.ReadDir(s.folder)
	if err != nil {
		return nil, errors.Wrapf(err, "could not read migrations from folder [%s]", s.folder)
	}

	keys := make(map[string]struct{})

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		key, ok := keyFromFileName(entry.Name())
		if !ok {
			s.lg.Debugf("skipping non-migration file: %s", entry.Name())
			continue
		}

		if _, versionOK := migration.VersionFromName(key); !versionOK {
			s.lg.Debugf("skipping migration file without version token: %s", entry.Name())
			continue
		}

		keys[key] = struct{}{}
	}

	return keys, nil
}

func (s *LocalFSSource) readOne(key string) (migration.Migration, error) {
	migrateContents, err := os.ReadFile(filepath.Join(s.folder, key+migrateFileExtension))
	if err != nil {
		if os.IsNotExist(err) {
			// rollback file without a migrate counterpart: skip
			return nil, nil
		}

		return nil, err
	}

	// a missing rollback file means the migration is irreversible
	rollbackContents, err := os.ReadFile(filepath.Join(s.folder, key+rollbackFileExtension))
	if err != nil && !os.IsNotExist(err) {
		return nil, err
	}

	return migration.NewScript(
		key,
		splitStatements(string(migrateContents)),
		splitStatements(string(rollbackContents)),
	)
}

func keyFromFileName(fileName string) (string, bool) {
	switch {
	case strings.HasSuffix(fileName, migrateFileExtension):
		return strings.TrimSuffix(fileName, migrateFileExtension), true
	case strings.HasSuffix(fileName, rollbackFileExtension):
		return strings.TrimSuffix(fileName, rollbackFileExtension), true
	default:
		return "", false
	}
}

// splitStatements breaks a script on semicolons at line ends; good enough
// for DDL scripts that do not embed semicolons in literals.
func splitStatements(script string) []string {
	var statements []string

	for _, part := range strings.Split(script, ";") {
		if stmt := strings.TrimSpace(part); stmt != "" {
			statements = append(statements, stmt)
		}
	}

	return statements
}
