// Package schematest provides an in-memory implementation of the schema
// port for tests: tables with unique and auto-increment columns, snapshot
// based transactions and an advisory lock counter. It is not meant for
// production use.
package schematest

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/strata-db/strata/dberr"
	"github.com/strata-db/strata/schema"
)

type column struct {
	name          string
	unique        bool
	autoIncrement bool
	defaultNow    bool
}

type table struct {
	definition string
	columns    []column
	nextID     int64
	rows       []schema.Record
}

func (t *table) clone() *table {
	cp := &table{
		definition: t.definition,
		columns:    t.columns,
		nextID:     t.nextID,
		rows:       make([]schema.Record, len(t.rows)),
	}

	for i, row := range t.rows {
		r := make(schema.Record, len(row))
		for k, v := range row {
			r[k] = v
		}
		cp.rows[i] = r
	}

	return cp
}

// Conn is the in-memory connection. The zero value is not usable; create it
// with New.
type Conn struct {
	mu     sync.Mutex
	tables map[string]*table
	clock  func() time.Time

	inTx bool

	execLog    []string
	execHook   func(stmt string) error
	lockCount  int
	locked     bool
	lockErr    error
	txBeginErr error
}

var (
	_ schema.Conn   = (*Conn)(nil)
	_ schema.Locker = (*Conn)(nil)
)

func New() *Conn {
	return &Conn{
		tables: make(map[string]*table),
		clock:  time.Now,
	}
}

// SetClock replaces the time source used for default timestamp columns.
func (c *Conn) SetClock(clock func() time.Time) { c.clock = clock }

// SetExecHook installs a hook invoked before every Exec; a non-nil return
// fails the statement. Used to inject failures.
func (c *Conn) SetExecHook(hook func(stmt string) error) { c.execHook = hook }

// FailLockWith makes Lock return the given error.
func (c *Conn) FailLockWith(err error) { c.lockErr = err }

// ExecLog returns every raw statement executed so far.
func (c *Conn) ExecLog() []string { return append([]string(nil), c.execLog...) }

// LockCount reports how many times the advisory lock was acquired.
func (c *Conn) LockCount() int { return c.lockCount }

// Locked reports whether the advisory lock is currently held.
func (c *Conn) Locked() bool { return c.locked }

// TableNames lists existing tables in lexical order.
func (c *Conn) TableNames() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	names := make([]string, 0, len(c.tables))
	for name := range c.tables {
		names = append(names, name)
	}
	sort.Strings(names)

	return names
}

// Rows returns a copy of a table's rows in insertion order.
func (c *Conn) Rows(name string) []schema.Record {
	c.mu.Lock()
	defer c.mu.Unlock()

	t, ok := c.tables[name]
	if !ok {
		return nil
	}

	return t.clone().rows
}

func (c *Conn) Exec(_ context.Context, stmt string, _ ...interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.execLog = append(c.execLog, stmt)

	if c.execHook != nil {
		if err := c.execHook(stmt); err != nil {
			return dberr.NewQueryError(err, stmt, nil, 0, "HY000")
		}
	}

	// just enough DDL understanding for script-backed migrations
	upper := strings.ToUpper(stmt)
	switch {
	case strings.HasPrefix(upper, "CREATE TABLE "):
		name := tableNameFromDDL(stmt, "CREATE TABLE ")
		c.createTable(name, ddlColumns(stmt))
	case strings.HasPrefix(upper, "DROP TABLE "):
		name := tableNameFromDDL(stmt, "DROP TABLE ")
		delete(c.tables, name)
	}

	return nil
}

func (c *Conn) Query() schema.Query {
	return &query{conn: c}
}

func (c *Conn) Schema() schema.Builder {
	return &builder{conn: c}
}

func (c *Conn) Transaction(_ context.Context, fn func(tx schema.Conn) error) error {
	if c.inTx {
		return dberr.NewNestedTransactionsUnsupported(1)
	}

	if c.txBeginErr != nil {
		return dberr.NewBeginFailed(c.txBeginErr)
	}

	c.mu.Lock()
	snapshot := make(map[string]*table, len(c.tables))
	for name, t := range c.tables {
		snapshot[name] = t.clone()
	}
	c.mu.Unlock()

	c.inTx = true
	err := fn(c)
	c.inTx = false

	if err != nil {
		c.mu.Lock()
		c.tables = snapshot
		c.mu.Unlock()
		return err
	}

	return nil
}

func (c *Conn) Lock(context.Context) error {
	if c.lockErr != nil {
		return c.lockErr
	}

	c.lockCount++
	c.locked = true

	return nil
}

func (c *Conn) Unlock(context.Context) error {
	c.locked = false
	return nil
}

func (c *Conn) createTable(name, definition string) {
	if _, ok := c.tables[name]; ok {
		return
	}

	c.tables[name] = &table{
		definition: definition,
		columns:    parseColumns(definition),
		nextID:     1,
	}
}

func (c *Conn) insert(tableName string, row schema.Record) error {
	t, ok := c.tables[tableName]
	if !ok {
		return dberr.NewTableNotFoundQuery(nil, "INSERT INTO "+tableName)
	}

	stored := make(schema.Record, len(row)+2)
	for k, v := range row {
		stored[k] = v
	}

	for _, col := range t.columns {
		if col.autoIncrement {
			if _, ok := stored[col.name]; !ok {
				stored[col.name] = t.nextID
				t.nextID++
			}
		}

		if col.defaultNow {
			if _, ok := stored[col.name]; !ok {
				stored[col.name] = c.clock()
			}
		}

		if col.unique {
			for _, existing := range t.rows {
				if existing[col.name] == stored[col.name] {
					return dberr.NewDuplicateKeyError(
						nil,
						"INSERT INTO "+tableName,
						map[string]interface{}{col.name: stored[col.name]},
					)
				}
			}
		}
	}

	t.rows = append(t.rows, stored)

	return nil
}

func parseColumns(definition string) []column {
	var columns []column

	for _, part := range strings.Split(definition, ",") {
		fields := strings.Fields(strings.TrimSpace(part))
		if len(fields) == 0 {
			continue
		}

		upper := strings.ToUpper(part)
		columns = append(columns, column{
			name:          fields[0],
			unique:        strings.Contains(upper, "UNIQUE"),
			autoIncrement: strings.Contains(upper, "AUTO_INCREMENT") || strings.Contains(upper, "AUTOINCREMENT"),
			defaultNow:    strings.Contains(upper, "CURRENT_TIMESTAMP"),
		})
	}

	return columns
}

func tableNameFromDDL(stmt, prefix string) string {
	rest := strings.TrimSpace(stmt[len(prefix):])
	rest = strings.TrimPrefix(rest, "IF NOT EXISTS ")
	rest = strings.TrimPrefix(rest, "IF EXISTS ")

	end := len(rest)
	for i, r := range rest {
		if r == ' ' || r == '(' || r == ';' || r == '\n' {
			end = i
			break
		}
	}

	return strings.Trim(rest[:end], "`\"")
}

func ddlColumns(stmt string) string {
	open := strings.Index(stmt, "(")
	end := strings.LastIndex(stmt, ")")
	if open < 0 || end <= open {
		return ""
	}

	return stmt[open+1 : end]
}
