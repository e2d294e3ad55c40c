package sqlschema

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/Masterminds/squirrel"

	"github.com/strata-db/strata/schema"
)

type query struct {
	conn     *Conn
	table    string
	preds    []squirrel.Sqlizer
	orderBys []string
	bindings map[string]interface{}
}

var _ schema.Query = (*query)(nil)

func (q *query) From(table string) schema.Query {
	q.table = table
	return q
}

func (q *query) Table(table string) schema.Query {
	q.table = table
	return q
}

func (q *query) Where(column, operator string, value interface{}) schema.Query {
	q.preds = append(q.preds, squirrel.Expr(fmt.Sprintf("%s %s ?", column, operator), value))

	if q.bindings == nil {
		q.bindings = make(map[string]interface{})
	}
	q.bindings[column] = value

	return q
}

func (q *query) OrderBy(column string, descending bool) schema.Query {
	direction := "ASC"
	if descending {
		direction = "DESC"
	}

	q.orderBys = append(q.orderBys, column+" "+direction)

	return q
}

func (q *query) Get(ctx context.Context) ([]schema.Record, error) {
	sb := squirrel.Select("*").From(q.table)
	for _, p := range q.preds {
		sb = sb.Where(p)
	}
	for _, o := range q.orderBys {
		sb = sb.OrderBy(o)
	}

	stmt, args, err := sb.ToSql()
	if err != nil {
		return nil, q.conn.dialect.mapError(err, stmt, q.bindings)
	}

	q.conn.lg.SQL(stmt, args...)

	rows, err := q.conn.ex.QueryxContext(ctx, stmt, args...)
	if err != nil {
		return nil, q.conn.dialect.mapError(err, stmt, q.bindings)
	}
	defer rows.Close()

	var records []schema.Record
	for rows.Next() {
		rec := make(map[string]interface{})
		if err := rows.MapScan(rec); err != nil {
			return nil, q.conn.dialect.mapError(err, stmt, q.bindings)
		}

		records = append(records, schema.Record(rec))
	}

	if err := rows.Err(); err != nil {
		return nil, q.conn.dialect.mapError(err, stmt, q.bindings)
	}

	return records, nil
}

func (q *query) First(ctx context.Context) (schema.Record, error) {
	records, err := q.Get(ctx)
	if err != nil {
		return nil, err
	}

	if len(records) == 0 {
		return nil, nil
	}

	return records[0], nil
}

func (q *query) Pluck(ctx context.Context, column string) ([]interface{}, error) {
	records, err := q.Get(ctx)
	if err != nil {
		return nil, err
	}

	values := make([]interface{}, 0, len(records))
	for _, rec := range records {
		values = append(values, rec[column])
	}

	return values, nil
}

func (q *query) Max(ctx context.Context, column string) (int64, error) {
	sb := squirrel.Select(fmt.Sprintf("MAX(%s)", column)).From(q.table)
	for _, p := range q.preds {
		sb = sb.Where(p)
	}

	stmt, args, err := sb.ToSql()
	if err != nil {
		return 0, q.conn.dialect.mapError(err, stmt, q.bindings)
	}

	q.conn.lg.SQL(stmt, args...)

	var max sql.NullInt64
	if err := q.conn.ex.QueryRowxContext(ctx, stmt, args...).Scan(&max); err != nil {
		return 0, q.conn.dialect.mapError(err, stmt, q.bindings)
	}

	return max.Int64, nil
}

func (q *query) Insert(ctx context.Context, row schema.Record) error {
	stmt, args, err := squirrel.Insert(q.table).SetMap(row).ToSql()
	if err != nil {
		return q.conn.dialect.mapError(err, stmt, row)
	}

	q.conn.lg.SQL(stmt, args...)

	if _, err := q.conn.ex.ExecContext(ctx, stmt, args...); err != nil {
		return q.conn.dialect.mapError(err, stmt, row)
	}

	return nil
}

func (q *query) Delete(ctx context.Context) error {
	db := squirrel.Delete(q.table)
	for _, p := range q.preds {
		db = db.Where(p)
	}

	stmt, args, err := db.ToSql()
	if err != nil {
		return q.conn.dialect.mapError(err, stmt, q.bindings)
	}

	q.conn.lg.SQL(stmt, args...)

	if _, err := q.conn.ex.ExecContext(ctx, stmt, args...); err != nil {
		return q.conn.dialect.mapError(err, stmt, q.bindings)
	}

	return nil
}
