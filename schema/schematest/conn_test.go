package schematest

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/strata-db/strata/dberr"
	"github.com/strata-db/strata/schema"
)

const migrationsColumns = "id INTEGER PRIMARY KEY AUTO_INCREMENT, migration VARCHAR(255) NOT NULL UNIQUE, batch INT UNSIGNED NOT NULL, created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP"

func Test_UniqueColumn_RejectsDuplicates(t *testing.T) {
	ctx := context.Background()
	conn := New()

	require.NoError(t, conn.Schema().CreateTable(ctx, "migrations", migrationsColumns))
	require.NoError(t, conn.Query().Table("migrations").Insert(ctx, schema.Record{"migration": "m1", "batch": 1}))

	err := conn.Query().Table("migrations").Insert(ctx, schema.Record{"migration": "m1", "batch": 2})
	require.Error(t, err)

	var qErr *dberr.QueryError
	require.True(t, errors.As(err, &qErr))
	assert.True(t, qErr.IsDuplicateKey())
}

func Test_AutoIncrementAndDefaultTimestamp(t *testing.T) {
	ctx := context.Background()
	conn := New()
	now := time.Date(2020, 8, 1, 0, 0, 0, 0, time.UTC)
	conn.SetClock(func() time.Time { return now })

	require.NoError(t, conn.Schema().CreateTable(ctx, "migrations", migrationsColumns))
	require.NoError(t, conn.Query().Table("migrations").Insert(ctx, schema.Record{"migration": "m1", "batch": 1}))
	require.NoError(t, conn.Query().Table("migrations").Insert(ctx, schema.Record{"migration": "m2", "batch": 1}))

	rows := conn.Rows("migrations")
	require.Len(t, rows, 2)

	id1, _ := schema.Int(rows[0], "id")
	id2, _ := schema.Int(rows[1], "id")
	assert.Equal(t, int64(1), id1)
	assert.Equal(t, int64(2), id2)

	createdAt, ok := schema.Time(rows[0], "created_at")
	require.True(t, ok)
	assert.Equal(t, now, createdAt)
}

func Test_Transaction_RollsBackOnError(t *testing.T) {
	ctx := context.Background()
	conn := New()

	require.NoError(t, conn.Schema().CreateTable(ctx, "migrations", migrationsColumns))

	err := conn.Transaction(ctx, func(tx schema.Conn) error {
		if err := tx.Query().Table("migrations").Insert(ctx, schema.Record{"migration": "m1", "batch": 1}); err != nil {
			return err
		}

		if err := tx.Schema().CreateTable(ctx, "foo", "id INTEGER"); err != nil {
			return err
		}

		return errors.New("boom")
	})

	require.Error(t, err)
	assert.Empty(t, conn.Rows("migrations"))
	assert.Equal(t, []string{"migrations"}, conn.TableNames())
}

func Test_Transaction_CommitsOnNil(t *testing.T) {
	ctx := context.Background()
	conn := New()

	require.NoError(t, conn.Schema().CreateTable(ctx, "migrations", migrationsColumns))

	err := conn.Transaction(ctx, func(tx schema.Conn) error {
		return tx.Query().Table("migrations").Insert(ctx, schema.Record{"migration": "m1", "batch": 1})
	})

	require.NoError(t, err)
	assert.Len(t, conn.Rows("migrations"), 1)
}

func Test_NestedTransaction_IsRejected(t *testing.T) {
	ctx := context.Background()
	conn := New()

	err := conn.Transaction(ctx, func(tx schema.Conn) error {
		return tx.Transaction(ctx, func(schema.Conn) error { return nil })
	})

	var txErr *dberr.TransactionError
	require.True(t, errors.As(err, &txErr))
}

func Test_Query_OrderingAndMax(t *testing.T) {
	ctx := context.Background()
	conn := New()

	require.NoError(t, conn.Schema().CreateTable(ctx, "migrations", migrationsColumns))
	for i, name := range []string{"m1", "m2", "m3"} {
		require.NoError(t, conn.Query().Table("migrations").Insert(ctx, schema.Record{"migration": name, "batch": i/2 + 1}))
	}

	records, err := conn.Query().From("migrations").OrderBy("batch", true).OrderBy("id", true).Get(ctx)
	require.NoError(t, err)
	require.Len(t, records, 3)

	name, _ := schema.String(records[0], "migration")
	assert.Equal(t, "m3", name)

	max, err := conn.Query().From("migrations").Max(ctx, "batch")
	require.NoError(t, err)
	assert.Equal(t, int64(2), max)
}

func Test_Query_MissingTable(t *testing.T) {
	ctx := context.Background()
	conn := New()

	_, err := conn.Query().From("nope").Get(ctx)
	require.Error(t, err)

	exists, err := conn.Schema().HasTable(ctx, "nope")
	require.NoError(t, err)
	assert.False(t, exists)
}

func Test_Exec_UnderstandsBareDDL(t *testing.T) {
	ctx := context.Background()
	conn := New()

	require.NoError(t, conn.Exec(ctx, "CREATE TABLE foo (id INTEGER);"))
	assert.Equal(t, []string{"foo"}, conn.TableNames())

	require.NoError(t, conn.Exec(ctx, "DROP TABLE foo;"))
	assert.Empty(t, conn.TableNames())

	assert.Len(t, conn.ExecLog(), 2)
}
