package dberr

import (
	"bytes"
	"fmt"
)

// MigrationError is the orchestration-level failure produced by the runner.
// It carries the migration name when one is known and may wrap a query,
// schema or transaction error as its cause.
type MigrationError struct {
	Migration string
	Reason    string

	op    string
	cause error
}

func NewMigrationFailed(name string, cause error) *MigrationError {
	return &MigrationError{op: "migrate", Migration: name, cause: cause}
}

func NewRollbackFailed(name string, cause error) *MigrationError {
	return &MigrationError{op: "rollback", Migration: name, cause: cause}
}

func NewMigrationNotFound(name string) *MigrationError {
	return &MigrationError{op: "resolve", Migration: name, Reason: "not registered"}
}

func NewMigrationAlreadyRan(name string) *MigrationError {
	return &MigrationError{op: "migrate", Migration: name, Reason: "already ran"}
}

func NewMigrationNotRan(name string) *MigrationError {
	return &MigrationError{op: "rollback", Migration: name, Reason: "never ran"}
}

func NewInvalidMigration(name, reason string) *MigrationError {
	return &MigrationError{op: "validate", Migration: name, Reason: reason}
}

func NewLoadFailed(path string, cause error) *MigrationError {
	return &MigrationError{op: "load", Reason: fmt.Sprintf("path [%s]", path), cause: cause}
}

func NewGenerateFailed(name string, cause error) *MigrationError {
	return &MigrationError{op: "generate", Migration: name, cause: cause}
}

func (e *MigrationError) Error() string {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "migration %s failed", e.op)

	if e.Migration != "" {
		fmt.Fprintf(&buf, " [%s]", e.Migration)
	}

	if e.Reason != "" {
		fmt.Fprintf(&buf, ": %s", e.Reason)
	}

	if e.cause != nil {
		fmt.Fprintf(&buf, ": %s", e.cause.Error())
	}

	return buf.String()
}

func (e *MigrationError) Unwrap() error {
	return e.cause
}
