package schematest

import (
	"context"
	"fmt"
	"sort"

	"github.com/strata-db/strata/dberr"
	"github.com/strata-db/strata/schema"
)

type condition struct {
	column   string
	operator string
	value    interface{}
}

type ordering struct {
	column     string
	descending bool
}

type query struct {
	conn       *Conn
	table      string
	conditions []condition
	orderings  []ordering
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
	q.conditions = append(q.conditions, condition{column: column, operator: operator, value: value})
	return q
}

func (q *query) OrderBy(column string, descending bool) schema.Query {
	q.orderings = append(q.orderings, ordering{column: column, descending: descending})
	return q
}

func (q *query) Get(context.Context) ([]schema.Record, error) {
	q.conn.mu.Lock()
	defer q.conn.mu.Unlock()

	t, ok := q.conn.tables[q.table]
	if !ok {
		return nil, dberr.NewTableNotFoundQuery(nil, "SELECT * FROM "+q.table)
	}

	var matched []schema.Record
	for _, row := range t.clone().rows {
		if q.matches(row) {
			matched = append(matched, row)
		}
	}

	q.sortRecords(matched)

	return matched, nil
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
	for _, r := range records {
		values = append(values, r[column])
	}

	return values, nil
}

func (q *query) Max(ctx context.Context, column string) (int64, error) {
	records, err := q.Get(ctx)
	if err != nil {
		return 0, err
	}

	var max int64
	for _, r := range records {
		if v, ok := schema.Int(r, column); ok && v > max {
			max = v
		}
	}

	return max, nil
}

func (q *query) Insert(_ context.Context, row schema.Record) error {
	q.conn.mu.Lock()
	defer q.conn.mu.Unlock()

	return q.conn.insert(q.table, row)
}

func (q *query) Delete(context.Context) error {
	q.conn.mu.Lock()
	defer q.conn.mu.Unlock()

	t, ok := q.conn.tables[q.table]
	if !ok {
		return dberr.NewTableNotFoundQuery(nil, "DELETE FROM "+q.table)
	}

	kept := t.rows[:0]
	for _, row := range t.rows {
		if !q.matches(row) {
			kept = append(kept, row)
		}
	}
	t.rows = kept

	return nil
}

func (q *query) matches(row schema.Record) bool {
	for _, c := range q.conditions {
		if !matchCondition(row, c) {
			return false
		}
	}

	return true
}

func matchCondition(row schema.Record, c condition) bool {
	have, haveInt := schema.Int(row, c.column)
	want, wantInt := toInt(c.value)

	if haveInt && wantInt {
		switch c.operator {
		case "=":
			return have == want
		case ">":
			return have > want
		case ">=":
			return have >= want
		case "<":
			return have < want
		case "<=":
			return have <= want
		}

		return false
	}

	haveStr, _ := schema.String(row, c.column)
	wantStr := fmt.Sprintf("%v", c.value)

	switch c.operator {
	case "=":
		return haveStr == wantStr
	case ">":
		return haveStr > wantStr
	case ">=":
		return haveStr >= wantStr
	case "<":
		return haveStr < wantStr
	case "<=":
		return haveStr <= wantStr
	}

	return false
}

func (q *query) sortRecords(records []schema.Record) {
	if len(q.orderings) == 0 {
		return
	}

	sort.SliceStable(records, func(i, j int) bool {
		for _, o := range q.orderings {
			cmp := compareValues(records[i][o.column], records[j][o.column])
			if cmp == 0 {
				continue
			}

			if o.descending {
				return cmp > 0
			}

			return cmp < 0
		}

		return false
	})
}

func compareValues(a, b interface{}) int {
	ai, aok := toInt(a)
	bi, bok := toInt(b)
	if aok && bok {
		switch {
		case ai < bi:
			return -1
		case ai > bi:
			return 1
		default:
			return 0
		}
	}

	as := fmt.Sprintf("%v", a)
	bs := fmt.Sprintf("%v", b)
	switch {
	case as < bs:
		return -1
	case as > bs:
		return 1
	default:
		return 0
	}
}

func toInt(v interface{}) (int64, bool) {
	switch n := v.(type) {
	case int64:
		return n, true
	case int:
		return int64(n), true
	case int32:
		return int64(n), true
	case uint:
		return int64(n), true
	case uint64:
		return int64(n), true
	case float64:
		return int64(n), true
	default:
		return 0, false
	}
}
