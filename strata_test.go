package strata

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/strata-db/strata/dberr"
	"github.com/strata-db/strata/migration"
	"github.com/strata-db/strata/schema"
	"github.com/strata-db/strata/schema/schematest"
)

func newTestRunner(t *testing.T, conn schema.Conn, opts ...OptionFunc) *Runner {
	t.Helper()

	r, err := NewRunner(conn, opts...)
	require.NoError(t, err)

	return r
}

func createTableMigration(name, table string) *migration.Definition {
	return migration.MustNew(
		name,
		func(ctx context.Context, conn schema.Conn) error {
			return conn.Schema().CreateTable(ctx, table, "id INTEGER PRIMARY KEY AUTO_INCREMENT")
		},
		func(ctx context.Context, conn schema.Conn) error {
			return conn.Schema().DropTable(ctx, table)
		},
	)
}

func failingMigration(name string) *migration.Definition {
	return migration.MustNew(
		name,
		func(context.Context, schema.Conn) error {
			return errors.New("up exploded")
		},
		nil,
	)
}

func writeMigrationPair(t *testing.T, folder, key, migrateSQL, rollbackSQL string) {
	t.Helper()

	require.NoError(t, os.WriteFile(filepath.Join(folder, key+".migrate.sql"), []byte(migrateSQL), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(folder, key+".rollback.sql"), []byte(rollbackSQL), 0644))
}

func batches(t *testing.T, conn *schematest.Conn) map[string]int64 {
	t.Helper()

	result := make(map[string]int64)
	for _, row := range conn.Rows(DefaultMigrationsTable) {
		name, _ := schema.String(row, "migration")
		batch, _ := schema.Int(row, "batch")
		result[name] = batch
	}

	return result
}

func Test_RunnerRequiresConnection(t *testing.T) {
	_, err := NewRunner(nil)
	assert.Equal(t, ErrConnNotInitialized, err)
}

func Test_Migrate_AppliesPendingInVersionOrder_SharedBatch(t *testing.T) {
	ctx := context.Background()
	conn := schematest.New()
	r := newTestRunner(t, conn)

	// registered out of version order on purpose
	r.Register(createTableMigration("1596897188_create_bar_table", "bar"))
	r.Register(createTableMigration("1596897167_create_foo_table", "foo"))
	r.Register(createTableMigration("1597897177_create_baz_table", "baz"))

	migrated, err := r.Migrate(ctx)
	require.NoError(t, err)

	assert.Equal(t, []string{
		"1596897167_create_foo_table",
		"1596897188_create_bar_table",
		"1597897177_create_baz_table",
	}, migrated)

	assert.Equal(t, []string{"bar", "baz", "foo", "migrations"}, conn.TableNames())

	for name, batch := range batches(t, conn) {
		assert.Equal(t, int64(1), batch, "migration %s should be in batch 1", name)
	}
}

func Test_Migrate_SecondCallIsNoop(t *testing.T) {
	ctx := context.Background()
	conn := schematest.New()
	r := newTestRunner(t, conn)

	r.Register(createTableMigration("1596897167_create_foo_table", "foo"))

	first, err := r.Migrate(ctx)
	require.NoError(t, err)
	require.Len(t, first, 1)

	rowsBefore := conn.Rows(DefaultMigrationsTable)

	second, err := r.Migrate(ctx)
	require.NoError(t, err)
	assert.Empty(t, second)
	assert.Equal(t, rowsBefore, conn.Rows(DefaultMigrationsTable))
}

func Test_Migrate_PartialFailure_ResumesUnderNewBatch(t *testing.T) {
	ctx := context.Background()
	conn := schematest.New()
	r := newTestRunner(t, conn)

	a := createTableMigration("1596897167_create_foo_table", "foo")
	c := createTableMigration("1597897177_create_baz_table", "baz")

	r.Register(a)
	r.Register(failingMigration("1596897188_create_bar_table"))
	r.Register(c)

	migrated, err := r.Migrate(ctx)
	require.Error(t, err)
	assert.Equal(t, []string{"1596897167_create_foo_table"}, migrated)

	var mErr *dberr.MigrationError
	require.True(t, errors.As(err, &mErr))
	assert.Equal(t, "1596897188_create_bar_table", mErr.Migration)

	statuses, err := r.Status(ctx)
	require.NoError(t, err)
	require.Len(t, statuses, 3)
	assert.True(t, statuses[0].Ran)
	assert.False(t, statuses[1].Ran)
	assert.False(t, statuses[2].Ran)

	// fix B and resume: B and C land in a fresh batch, A keeps its own
	r.Register(createTableMigration("1596897188_create_bar_table", "bar"))

	migrated, err = r.Migrate(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"1596897188_create_bar_table", "1597897177_create_baz_table"}, migrated)

	byName := batches(t, conn)
	assert.Equal(t, int64(1), byName["1596897167_create_foo_table"])
	assert.Equal(t, int64(2), byName["1596897188_create_bar_table"])
	assert.Equal(t, int64(2), byName["1597897177_create_baz_table"])
}

func Test_Migrate_FailedMigrationLeavesNoPartialState(t *testing.T) {
	ctx := context.Background()
	conn := schematest.New()
	r := newTestRunner(t, conn)

	m := migration.MustNew(
		"1596897167_create_foo_table",
		func(ctx context.Context, conn schema.Conn) error {
			if err := conn.Schema().CreateTable(ctx, "foo", "id INTEGER"); err != nil {
				return err
			}

			return errors.New("second half exploded")
		},
		nil,
	)
	r.Register(m)

	_, err := r.Migrate(ctx)
	require.Error(t, err)

	// the transaction rolled back both the schema change and the bookkeeping row
	assert.Equal(t, []string{"migrations"}, conn.TableNames())
	assert.Empty(t, conn.Rows(DefaultMigrationsTable))
}

func Test_Rollback_UndoesLastBatch_ReverseInsertionOrder(t *testing.T) {
	ctx := context.Background()
	conn := schematest.New()
	r := newTestRunner(t, conn)

	r.Register(createTableMigration("1596897167_create_foo_table", "foo"))
	r.Register(createTableMigration("1596897188_create_bar_table", "bar"))
	r.Register(createTableMigration("1597897177_create_baz_table", "baz"))

	_, err := r.Migrate(ctx)
	require.NoError(t, err)

	rolledBack, err := r.Rollback(ctx)
	require.NoError(t, err)

	assert.Equal(t, []string{
		"1597897177_create_baz_table",
		"1596897188_create_bar_table",
		"1596897167_create_foo_table",
	}, rolledBack)

	assert.Equal(t, []string{"migrations"}, conn.TableNames())
	assert.Empty(t, conn.Rows(DefaultMigrationsTable))
}

func Test_Rollback_OnEmptyHistory_ReturnsNothing(t *testing.T) {
	ctx := context.Background()
	r := newTestRunner(t, schematest.New())

	rolledBack, err := r.Rollback(ctx)
	require.NoError(t, err)
	assert.Empty(t, rolledBack)
}

func Test_Rollback_StepsSpanBatches(t *testing.T) {
	ctx := context.Background()
	conn := schematest.New()
	r := newTestRunner(t, conn)

	r.Register(createTableMigration("1596897167_create_foo_table", "foo"))
	_, err := r.Migrate(ctx)
	require.NoError(t, err)

	r.Register(createTableMigration("1596897188_create_bar_table", "bar"))
	_, err = r.Migrate(ctx)
	require.NoError(t, err)

	r.Register(createTableMigration("1597897177_create_baz_table", "baz"))
	_, err = r.Migrate(ctx)
	require.NoError(t, err)

	// three batches exist; undo the two most recent
	rolledBack, err := r.Rollback(ctx, WithSteps(2))
	require.NoError(t, err)
	assert.Equal(t, []string{
		"1597897177_create_baz_table",
		"1596897188_create_bar_table",
	}, rolledBack)

	byName := batches(t, conn)
	assert.Len(t, byName, 1)
	assert.Equal(t, int64(1), byName["1596897167_create_foo_table"])
}

func Test_Rollback_UnregisteredMigrationFails(t *testing.T) {
	ctx := context.Background()
	conn := schematest.New()
	r := newTestRunner(t, conn)

	r.Register(createTableMigration("1596897167_create_foo_table", "foo"))
	_, err := r.Migrate(ctx)
	require.NoError(t, err)

	fresh := newTestRunner(t, conn) // registry no longer contains the migration

	_, err = fresh.Rollback(ctx)
	require.Error(t, err)

	var mErr *dberr.MigrationError
	require.True(t, errors.As(err, &mErr))
	assert.Equal(t, "1596897167_create_foo_table", mErr.Migration)
}

func Test_Rollback_FailureHaltsAndKeepsProgress(t *testing.T) {
	ctx := context.Background()
	conn := schematest.New()
	r := newTestRunner(t, conn)

	bad, err := migration.New(
		"1596897167_create_foo_table",
		func(ctx context.Context, conn schema.Conn) error {
			return conn.Schema().CreateTable(ctx, "foo", "id INTEGER")
		},
		func(context.Context, schema.Conn) error {
			return errors.New("down exploded")
		},
	)
	require.NoError(t, err)

	r.Register(bad)
	r.Register(createTableMigration("1596897188_create_bar_table", "bar"))

	_, err = r.Migrate(ctx)
	require.NoError(t, err)

	rolledBack, err := r.Rollback(ctx)
	require.Error(t, err)

	// bar rolled back before foo's down failed and stays rolled back
	assert.Equal(t, []string{"1596897188_create_bar_table"}, rolledBack)

	byName := batches(t, conn)
	assert.Len(t, byName, 1)
	assert.Contains(t, byName, "1596897167_create_foo_table")
}

func Test_Reset_SkipsUnregisteredAndClearsEverything(t *testing.T) {
	ctx := context.Background()
	conn := schematest.New()
	r := newTestRunner(t, conn)

	r.Register(createTableMigration("1596897167_create_foo_table", "foo"))
	r.Register(createTableMigration("1596897188_create_bar_table", "bar"))

	_, err := r.Migrate(ctx)
	require.NoError(t, err)

	fresh := newTestRunner(t, conn)
	fresh.Register(createTableMigration("1596897188_create_bar_table", "bar"))

	rolledBack, err := fresh.Reset(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"1596897188_create_bar_table"}, rolledBack)

	// the unregistered row is skipped, not deleted
	byName := batches(t, conn)
	assert.Len(t, byName, 1)
	assert.Contains(t, byName, "1596897167_create_foo_table")
}

func Test_ResetThenMigrate_RoundTrip(t *testing.T) {
	ctx := context.Background()
	conn := schematest.New()
	r := newTestRunner(t, conn)

	// apply in two separate batches first
	require.NoError(t, r.Run(ctx, createTableMigration("1596897167_create_foo_table", "foo")))

	r.Register(createTableMigration("1596897188_create_bar_table", "bar"))
	_, err := r.Migrate(ctx)
	require.NoError(t, err)

	_, _, err = r.Refresh(ctx)
	require.NoError(t, err)

	completed, err := r.Completed(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{
		"1596897167_create_foo_table",
		"1596897188_create_bar_table",
	}, completed)

	for _, batch := range batches(t, conn) {
		assert.Equal(t, int64(1), batch)
	}
}

func Test_Run_SingleMigration_AndAlreadyRanGuard(t *testing.T) {
	ctx := context.Background()
	conn := schematest.New()
	r := newTestRunner(t, conn)

	m := createTableMigration("1596897167_create_foo_table", "foo")

	require.NoError(t, r.Run(ctx, m))

	err := r.Run(ctx, m)
	require.Error(t, err)

	var mErr *dberr.MigrationError
	require.True(t, errors.As(err, &mErr))
	assert.Contains(t, err.Error(), "already ran")
}

func Test_Run_OutOfVersionOrder_RollbackFollowsInsertionOrder(t *testing.T) {
	ctx := context.Background()
	conn := schematest.New()
	r := newTestRunner(t, conn)

	newer := createTableMigration("1597897177_create_baz_table", "baz")
	older := createTableMigration("1596897167_create_foo_table", "foo")

	// the newer migration is applied first
	require.NoError(t, r.Run(ctx, newer))
	require.NoError(t, r.Run(ctx, older))

	rolledBack, err := r.Reset(ctx)
	require.NoError(t, err)

	// insertion order wins over version order
	assert.Equal(t, []string{
		"1596897167_create_foo_table",
		"1597897177_create_baz_table",
	}, rolledBack)
}

func Test_Status_JoinsRegistryAgainstBookkeeping(t *testing.T) {
	ctx := context.Background()
	conn := schematest.New()
	now := time.Date(2020, 8, 1, 12, 0, 0, 0, time.UTC)
	conn.SetClock(func() time.Time { return now })

	r := newTestRunner(t, conn)
	r.Register(createTableMigration("1596897167_create_foo_table", "foo"))
	r.Register(createTableMigration("1596897188_create_bar_table", "bar"))

	// a read-only status check must not create the bookkeeping table
	statuses, err := r.Status(ctx)
	require.NoError(t, err)
	require.Len(t, statuses, 2)
	assert.False(t, statuses[0].Ran)
	assert.Empty(t, conn.TableNames())

	_, err = r.Migrate(ctx)
	require.NoError(t, err)

	r.Register(createTableMigration("1597897177_create_baz_table", "baz"))

	statuses, err = r.Status(ctx)
	require.NoError(t, err)
	require.Len(t, statuses, 3)

	assert.True(t, statuses[0].Ran)
	assert.Equal(t, int64(1), statuses[0].Batch)
	assert.Equal(t, now, statuses[0].RanAt)

	assert.False(t, statuses[2].Ran)
	assert.Zero(t, statuses[2].Batch)
	assert.True(t, statuses[2].RanAt.IsZero())

	hasPending, err := r.HasPending(ctx)
	require.NoError(t, err)
	assert.True(t, hasPending)
}

func Test_Pretend_Migrate_IsReadOnly(t *testing.T) {
	ctx := context.Background()
	conn := schematest.New()
	r := newTestRunner(t, conn)

	r.Register(createTableMigration("1596897167_create_foo_table", "foo"))
	r.Register(createTableMigration("1596897188_create_bar_table", "bar"))

	names, err := r.Migrate(ctx, WithPretend())
	require.NoError(t, err)
	assert.Equal(t, []string{
		"1596897167_create_foo_table",
		"1596897188_create_bar_table",
	}, names)

	// nothing happened, not even bookkeeping table creation
	assert.Empty(t, conn.TableNames())

	applied, err := r.Migrate(ctx)
	require.NoError(t, err)
	assert.Equal(t, names, applied)
}

func Test_Pretend_Rollback_IsReadOnly(t *testing.T) {
	ctx := context.Background()
	conn := schematest.New()
	r := newTestRunner(t, conn)

	r.Register(createTableMigration("1596897167_create_foo_table", "foo"))
	_, err := r.Migrate(ctx)
	require.NoError(t, err)

	names, err := r.Rollback(ctx, WithPretend())
	require.NoError(t, err)
	assert.Equal(t, []string{"1596897167_create_foo_table"}, names)

	assert.Len(t, conn.Rows(DefaultMigrationsTable), 1)
	assert.Contains(t, conn.TableNames(), "foo")
}

func Test_CurrentAndLatestVersion(t *testing.T) {
	ctx := context.Background()
	conn := schematest.New()
	r := newTestRunner(t, conn)

	assert.Equal(t, "0", r.LatestVersion())

	current, err := r.CurrentVersion(ctx)
	require.NoError(t, err)
	assert.Equal(t, "0", current)

	r.Register(createTableMigration("1596897167_create_foo_table", "foo"))
	r.Register(createTableMigration("1597897177_create_baz_table", "baz"))

	assert.Equal(t, "1597897177", r.LatestVersion())

	_, err = r.Migrate(ctx)
	require.NoError(t, err)

	current, err = r.CurrentVersion(ctx)
	require.NoError(t, err)
	assert.Equal(t, "1597897177", current)

	_, err = r.Rollback(ctx)
	require.NoError(t, err)

	current, err = r.CurrentVersion(ctx)
	require.NoError(t, err)
	assert.Equal(t, "0", current)
}

func Test_DuplicateName_RejectedByStorageUniqueness(t *testing.T) {
	ctx := context.Background()
	conn := schematest.New()
	r := newTestRunner(t, conn)

	m := createTableMigration("1596897167_create_foo_table", "foo")
	require.NoError(t, r.Run(ctx, m))

	// bypass the runner's already-ran guard, as a racing process would
	twin := createTableMigration("1596897167_create_foo_table", "foo2")
	err := r.applyOne(ctx, twin, 2)
	require.Error(t, err)

	var qErr *dberr.QueryError
	require.True(t, errors.As(err, &qErr))
	assert.True(t, qErr.IsDuplicateKey())
	assert.False(t, qErr.IsRetryable())
}

func Test_AdvisoryLock_AcquiredAndReleased(t *testing.T) {
	ctx := context.Background()
	conn := schematest.New()
	r := newTestRunner(t, conn)

	r.Register(createTableMigration("1596897167_create_foo_table", "foo"))
	r.Register(failingMigration("1596897188_create_bar_table"))

	_, err := r.Migrate(ctx)
	require.Error(t, err)

	// released even on the failure path
	assert.Equal(t, 1, conn.LockCount())
	assert.False(t, conn.Locked())

	_, err = r.Rollback(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, conn.LockCount())
	assert.False(t, conn.Locked())
}

func Test_AdvisoryLock_FailureAbortsOperation(t *testing.T) {
	ctx := context.Background()
	conn := schematest.New()
	conn.FailLockWith(errors.New("lock held elsewhere"))

	r := newTestRunner(t, conn)
	r.Register(createTableMigration("1596897167_create_foo_table", "foo"))

	_, err := r.Migrate(ctx)
	require.Error(t, err)
	assert.Empty(t, conn.TableNames())
}

func Test_Load_RegistersScriptMigrationsFromFolder(t *testing.T) {
	ctx := context.Background()
	conn := schematest.New()

	folder := t.TempDir()
	writeMigrationPair(t, folder, "1596897167_create_foo_table", "CREATE TABLE foo (id INTEGER);", "DROP TABLE foo;")
	writeMigrationPair(t, folder, "1596897188_create_bar_table", "CREATE TABLE bar (id INTEGER);", "DROP TABLE bar;")

	r := newTestRunner(t, conn, UseLocalFolderSource(folder))

	require.NoError(t, r.Load(ctx))

	migrated, err := r.Migrate(ctx)
	require.NoError(t, err)
	assert.Len(t, migrated, 2)
	assert.Equal(t, []string{"bar", "foo", "migrations"}, conn.TableNames())

	rolledBack, err := r.Rollback(ctx)
	require.NoError(t, err)
	assert.Len(t, rolledBack, 2)
	assert.Equal(t, []string{"migrations"}, conn.TableNames())
}

func Test_Load_WithoutSourceFails(t *testing.T) {
	r := newTestRunner(t, schematest.New())

	err := r.Load(context.Background())
	require.Error(t, err)

	var mErr *dberr.MigrationError
	assert.True(t, errors.As(err, &mErr))
}

func Test_Generate_ScaffoldsTimestampedPair(t *testing.T) {
	folder := t.TempDir()
	clock := func() time.Time { return time.Date(2020, 8, 1, 15, 43, 25, 0, time.UTC) }

	r := newTestRunner(t, schematest.New(), UseClock(clock), UseLocalFolderSource(folder))

	key, err := r.Generate("Create Foo Table", "foo", true)
	require.NoError(t, err)
	assert.Equal(t, "2020_08_01_154325_create_foo_table", key)

	// creating the same migration twice collides
	_, err = r.Generate("create foo table", "foo", true)
	require.Error(t, err)

	var mErr *dberr.MigrationError
	assert.True(t, errors.As(err, &mErr))
}

func Test_Generate_WithoutFolderFails(t *testing.T) {
	r := newTestRunner(t, schematest.New())

	_, err := r.Generate("create_foo_table", "", false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no migrations folder")
}
