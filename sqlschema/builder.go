package sqlschema

import (
	"context"

	"github.com/strata-db/strata/dberr"
	"github.com/strata-db/strata/schema"
)

type builder struct {
	conn *Conn
}

var _ schema.Builder = (*builder)(nil)

func (b *builder) CreateTable(ctx context.Context, name, columns string) error {
	stmt := b.conn.dialect.createTableSQL(name, columns)
	b.conn.lg.SQL(stmt)

	if _, err := b.conn.ex.ExecContext(ctx, stmt); err != nil {
		return dberr.NewTableCreationFailed(b.conn.dialect.mapError(err, stmt, nil), name)
	}

	return nil
}

func (b *builder) DropTable(ctx context.Context, name string) error {
	stmt := b.conn.dialect.dropTableSQL(name)
	b.conn.lg.SQL(stmt)

	if _, err := b.conn.ex.ExecContext(ctx, stmt); err != nil {
		return dberr.NewTableDropFailed(b.conn.dialect.mapError(err, stmt, nil), name)
	}

	return nil
}

func (b *builder) HasTable(ctx context.Context, name string) (bool, error) {
	stmt, args := b.conn.dialect.hasTableQuery(name)
	b.conn.lg.SQL(stmt, args...)

	var count int
	if err := b.conn.ex.QueryRowxContext(ctx, stmt, args...).Scan(&count); err != nil {
		return false, b.conn.dialect.mapError(err, stmt, nil)
	}

	return count > 0, nil
}
