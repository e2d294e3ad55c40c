// Package migration defines the unit of schema change: a named, versioned,
// reversible operation executed against the schema port.
package migration

import (
	"context"
	"regexp"
	"sort"
	"strings"
	"time"
	"unicode"

	"github.com/strata-db/strata/dberr"
	"github.com/strata-db/strata/schema"
)

// Name convention is <version>_<description>, where the version token is
// either a datetime shaped like 2006_01_02_150405 or a 9-14 digit unix
// timestamp. The name is the join key between code and the bookkeeping
// table; renaming a migration after it has run desynchronizes history.
var (
	datetimeVersionRegexp  = regexp.MustCompile(`^(\d{4}_\d{2}_\d{2}_\d{6})(?:_|$)`)
	timestampVersionRegexp = regexp.MustCompile(`^(\d{9,14})(?:_|$)`)
)

// DatetimeLayout is the layout used when generating new version tokens.
const DatetimeLayout = "2006_01_02_150405"

// ClockFunc supplies the current time; injectable for tests.
type ClockFunc func() time.Time

// UpDownFunc is a single direction of a code-backed migration.
type UpDownFunc func(ctx context.Context, conn schema.Conn) error

// Migration is the contract the runner orchestrates. Up and Down must be
// inverses with respect to schema shape: the runner assumes Down fully
// undoes Up's structural effect so that re-running Up afterwards succeeds.
type Migration interface {
	Name() string
	Version() string
	Description() string
	Up(ctx context.Context, conn schema.Conn) error
	Down(ctx context.Context, conn schema.Conn) error
}

// Definition is a code-backed Migration built from explicit parts. Version
// is always extracted from the name or supplied by the caller; it is never
// derived from runtime type identity and never falls back to the clock.
type Definition struct {
	name        string
	version     string
	description string
	up          UpDownFunc
	down        UpDownFunc
}

var _ Migration = (*Definition)(nil)

// New creates a Definition whose version is extracted from the name. A name
// without a recognizable version token is rejected.
func New(name string, up, down UpDownFunc) (*Definition, error) {
	version, ok := VersionFromName(name)
	if !ok {
		return nil, dberr.NewInvalidMigration(name, "no version token in name")
	}

	return NewWithVersion(version, name, up, down)
}

// NewWithVersion creates a Definition with an explicitly supplied version.
func NewWithVersion(version, name string, up, down UpDownFunc) (*Definition, error) {
	if name == "" {
		return nil, dberr.NewInvalidMigration(name, "name must not be empty")
	}

	if version == "" {
		return nil, dberr.NewInvalidMigration(name, "version must not be empty")
	}

	return &Definition{
		name:        name,
		version:     version,
		description: Humanize(name),
		up:          up,
		down:        down,
	}, nil
}

// MustNew is New that panics on invalid input; for package-level migration
// variables where the name is a literal.
func MustNew(name string, up, down UpDownFunc) *Definition {
	d, err := New(name, up, down)
	if err != nil {
		panic(err)
	}

	return d
}

func (d *Definition) Name() string        { return d.name }
func (d *Definition) Version() string     { return d.version }
func (d *Definition) Description() string { return d.description }

func (d *Definition) Up(ctx context.Context, conn schema.Conn) error {
	if d.up == nil {
		return nil
	}

	return d.up(ctx, conn)
}

func (d *Definition) Down(ctx context.Context, conn schema.Conn) error {
	if d.down == nil {
		return nil
	}

	return d.down(ctx, conn)
}

// Script is a Migration backed by raw SQL text, one statement list per
// direction. Directory discovery produces these.
type Script struct {
	name        string
	version     string
	description string
	MigrateSQL  []string
	RollbackSQL []string
}

var _ Migration = (*Script)(nil)

// NewScript builds a SQL-backed migration; the version token is extracted
// from the name.
func NewScript(name string, migrateSQL, rollbackSQL []string) (*Script, error) {
	version, ok := VersionFromName(name)
	if !ok {
		return nil, dberr.NewInvalidMigration(name, "no version token in name")
	}

	return &Script{
		name:        name,
		version:     version,
		description: Humanize(name),
		MigrateSQL:  migrateSQL,
		RollbackSQL: rollbackSQL,
	}, nil
}

func (s *Script) Name() string        { return s.name }
func (s *Script) Version() string     { return s.version }
func (s *Script) Description() string { return s.description }

func (s *Script) Up(ctx context.Context, conn schema.Conn) error {
	return execScripts(ctx, conn, s.MigrateSQL)
}

func (s *Script) Down(ctx context.Context, conn schema.Conn) error {
	return execScripts(ctx, conn, s.RollbackSQL)
}

func execScripts(ctx context.Context, conn schema.Conn, scripts []string) error {
	for i := range scripts {
		stmt := strings.TrimSpace(scripts[i])
		if stmt == "" {
			continue
		}

		if err := conn.Exec(ctx, stmt); err != nil {
			return err
		}
	}

	return nil
}

// Migrations is a sortable collection ordered by version ascending, name as
// the tiebreak so ordering stays deterministic.
type Migrations []Migration

func (m Migrations) Len() int { return len(m) }

func (m Migrations) Less(i, j int) bool {
	if m[i].Version() == m[j].Version() {
		return m[i].Name() < m[j].Name()
	}

	return m[i].Version() < m[j].Version()
}

func (m Migrations) Swap(i, j int) { m[i], m[j] = m[j], m[i] }

// Sort orders the collection in place by ascending version.
func (m Migrations) Sort() { sort.Stable(m) }

// Names returns migration names in collection order.
func (m Migrations) Names() []string {
	result := make([]string, 0, len(m))
	for i := range m {
		result = append(result, m[i].Name())
	}

	return result
}

// VersionFromName extracts the leading version token from a migration name.
func VersionFromName(name string) (string, bool) {
	if matches := datetimeVersionRegexp.FindStringSubmatch(name); len(matches) == 2 {
		return matches[1], true
	}

	if matches := timestampVersionRegexp.FindStringSubmatch(name); len(matches) == 2 {
		return matches[1], true
	}

	return "", false
}

// GenerateVersion produces a new datetime version token from the clock.
func GenerateVersion(cf ClockFunc) string {
	return cf().Format(DatetimeLayout)
}

// Humanize turns a migration name into a readable description: the version
// prefix stripped, underscores as spaces, first letter upper-cased.
func Humanize(name string) string {
	rest := name
	if version, ok := VersionFromName(name); ok {
		rest = strings.TrimPrefix(strings.TrimPrefix(name, version), "_")
	}

	rest = strings.ReplaceAll(rest, "_", " ")

	return ucFirst(rest)
}

func ucFirst(s string) string {
	r := []rune(s)
	if len(r) == 0 {
		return ""
	}

	return string(unicode.ToUpper(r[0])) + string(r[1:])
}
