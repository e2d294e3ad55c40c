package dberr

import (
	"bytes"
	"fmt"
)

type schemaOp string

const (
	opCreateTable   schemaOp = "create table"
	opDropTable     schemaOp = "drop table"
	opTableExists   schemaOp = "table already exists"
	opTableNotFound schemaOp = "table not found"
	opAddColumn     schemaOp = "add column"
	opColumnExists  schemaOp = "column already exists"
	opColumnMissing schemaOp = "column not found"
	opCreateIndex   schemaOp = "create index"
	opCreateFK      schemaOp = "create foreign key"
)

// SchemaError wraps a failed DDL operation. Only the fields relevant to the
// failed operation are set; the rest stay empty.
type SchemaError struct {
	Table      string
	Column     string
	Constraint string

	op    schemaOp
	cause error
}

func NewTableCreationFailed(cause error, table string) *SchemaError {
	return &SchemaError{op: opCreateTable, Table: table, cause: cause}
}

func NewTableDropFailed(cause error, table string) *SchemaError {
	return &SchemaError{op: opDropTable, Table: table, cause: cause}
}

func NewTableAlreadyExists(table string) *SchemaError {
	return &SchemaError{op: opTableExists, Table: table}
}

func NewTableNotFound(table string) *SchemaError {
	return &SchemaError{op: opTableNotFound, Table: table}
}

func NewColumnAddFailed(cause error, table, column string) *SchemaError {
	return &SchemaError{op: opAddColumn, Table: table, Column: column, cause: cause}
}

func NewColumnAlreadyExists(table, column string) *SchemaError {
	return &SchemaError{op: opColumnExists, Table: table, Column: column}
}

func NewColumnNotFound(table, column string) *SchemaError {
	return &SchemaError{op: opColumnMissing, Table: table, Column: column}
}

func NewIndexCreationFailed(cause error, table, index string) *SchemaError {
	return &SchemaError{op: opCreateIndex, Table: table, Constraint: index, cause: cause}
}

func NewForeignKeyCreationFailed(cause error, table, constraint string) *SchemaError {
	return &SchemaError{op: opCreateFK, Table: table, Constraint: constraint, cause: cause}
}

func (e *SchemaError) Error() string {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "schema operation failed: %s", e.op)

	if e.Table != "" {
		fmt.Fprintf(&buf, " [%s]", e.Table)
	}

	if e.Column != "" {
		fmt.Fprintf(&buf, " column [%s]", e.Column)
	}

	if e.Constraint != "" {
		fmt.Fprintf(&buf, " constraint [%s]", e.Constraint)
	}

	if e.cause != nil {
		fmt.Fprintf(&buf, ": %s", e.cause.Error())
	}

	return buf.String()
}

func (e *SchemaError) Unwrap() error {
	return e.cause
}
