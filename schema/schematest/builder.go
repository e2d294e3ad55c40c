package schematest

import (
	"context"

	"github.com/strata-db/strata/dberr"
	"github.com/strata-db/strata/schema"
)

type builder struct {
	conn *Conn
}

var _ schema.Builder = (*builder)(nil)

func (b *builder) CreateTable(_ context.Context, name, columns string) error {
	b.conn.mu.Lock()
	defer b.conn.mu.Unlock()

	if _, ok := b.conn.tables[name]; ok {
		return dberr.NewTableAlreadyExists(name)
	}

	b.conn.createTable(name, columns)

	return nil
}

func (b *builder) DropTable(_ context.Context, name string) error {
	b.conn.mu.Lock()
	defer b.conn.mu.Unlock()

	if _, ok := b.conn.tables[name]; !ok {
		return dberr.NewTableNotFound(name)
	}

	delete(b.conn.tables, name)

	return nil
}

func (b *builder) HasTable(_ context.Context, name string) (bool, error) {
	b.conn.mu.Lock()
	defer b.conn.mu.Unlock()

	_, ok := b.conn.tables[name]

	return ok, nil
}
