package dberr

import (
	"bytes"
	"fmt"
	"sort"
)

// QueryError wraps a failed read or write statement. The statement text and
// parameter bindings it carries are already sanitized, so the error is safe
// to log as-is.
type QueryError struct {
	SQL        string
	Bindings   map[string]interface{}
	VendorCode int
	SQLState   string

	cause error
}

// NewQueryError builds a QueryError from a raw statement and bindings,
// sanitizing both before storing them.
func NewQueryError(cause error, sql string, bindings map[string]interface{}, vendorCode int, sqlState string) *QueryError {
	return &QueryError{
		SQL:        SanitizeSQL(sql),
		Bindings:   SanitizeBindings(bindings),
		VendorCode: vendorCode,
		SQLState:   sqlState,
		cause:      cause,
	}
}

// NewSyntaxError marks a statement the server could not parse.
func NewSyntaxError(cause error, sql string) *QueryError {
	return NewQueryError(cause, sql, nil, CodeSyntaxError, SQLStateSyntaxOrAccessClass+"000")
}

// NewTableNotFoundQuery marks a statement that referenced a missing table.
func NewTableNotFoundQuery(cause error, sql string) *QueryError {
	return NewQueryError(cause, sql, nil, CodeTableNotFound, SQLStateSyntaxOrAccessClass+"S02")
}

// NewColumnNotFoundQuery marks a statement that referenced a missing column.
func NewColumnNotFoundQuery(cause error, sql string) *QueryError {
	return NewQueryError(cause, sql, nil, CodeColumnNotFound, SQLStateSyntaxOrAccessClass+"S22")
}

// NewDuplicateKeyError marks a unique-constraint violation.
func NewDuplicateKeyError(cause error, sql string, bindings map[string]interface{}) *QueryError {
	return NewQueryError(cause, sql, bindings, CodeDuplicateKey, SQLStateClassIntegrity+"000")
}

// NewDeadlockError marks a statement aborted as a deadlock victim.
func NewDeadlockError(cause error, sql string) *QueryError {
	return NewQueryError(cause, sql, nil, CodeDeadlock, SQLStateDeadlock)
}

// NewLockTimeoutError marks a statement that exceeded the lock wait timeout.
func NewLockTimeoutError(cause error, sql string) *QueryError {
	return NewQueryError(cause, sql, nil, CodeLockTimeout, "HY000")
}

func (e *QueryError) Error() string {
	var buf bytes.Buffer
	buf.WriteString("query failed")

	if e.VendorCode != 0 {
		fmt.Fprintf(&buf, " (code %d, sqlstate %s)", e.VendorCode, e.SQLState)
	}

	if e.SQL != "" {
		fmt.Fprintf(&buf, ": %s", e.SQL)
	}

	if len(e.Bindings) > 0 {
		keys := make([]string, 0, len(e.Bindings))
		for k := range e.Bindings {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		buf.WriteString(" bindings{")
		for i, k := range keys {
			if i > 0 {
				buf.WriteString(", ")
			}
			fmt.Fprintf(&buf, "%s=%v", k, e.Bindings[k])
		}
		buf.WriteString("}")
	}

	if e.cause != nil {
		fmt.Fprintf(&buf, ": %s", e.cause.Error())
	}

	return buf.String()
}

func (e *QueryError) Unwrap() error {
	return e.cause
}

// IsDuplicateKey reports a unique-constraint violation, either by vendor
// code or by SQL-state integrity class.
func (e *QueryError) IsDuplicateKey() bool {
	return e.VendorCode == CodeDuplicateKey || sqlStateClass(e.SQLState) == SQLStateClassIntegrity
}

// IsForeignKeyViolation reports a foreign-key violation on insert or delete.
func (e *QueryError) IsForeignKeyViolation() bool {
	return e.VendorCode == CodeFKViolationOnDelete || e.VendorCode == CodeFKViolationOnInsert
}

// IsDeadlock reports that the statement lost a deadlock.
func (e *QueryError) IsDeadlock() bool {
	return e.VendorCode == CodeDeadlock || e.SQLState == SQLStateDeadlock
}

// IsLockTimeout reports that the statement timed out waiting for a lock.
func (e *QueryError) IsLockTimeout() bool {
	return e.VendorCode == CodeLockTimeout
}

// IsRetryable reports whether the failure is expected to succeed on a
// plain re-attempt. Retry policy itself belongs to the caller.
func (e *QueryError) IsRetryable() bool {
	return e.IsDeadlock() || e.IsLockTimeout()
}
