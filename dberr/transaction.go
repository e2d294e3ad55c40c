package dberr

import (
	"bytes"
	"fmt"
)

// TransactionError wraps a failed begin/commit/rollback or savepoint
// operation. Depth is the transaction nesting level at the time of failure;
// Savepoint is set only for savepoint operations.
type TransactionError struct {
	Depth     int
	Savepoint string

	op       string
	deadlock bool
	timeout  bool
	cause    error
}

func NewNestedTransactionsUnsupported(depth int) *TransactionError {
	return &TransactionError{op: "begin nested", Depth: depth}
}

func NewBeginFailed(cause error) *TransactionError {
	return &TransactionError{op: "begin", cause: cause}
}

func NewCommitFailed(cause error, depth int) *TransactionError {
	return &TransactionError{op: "commit", Depth: depth, cause: cause}
}

func NewRollbackFailedTx(cause error, depth int) *TransactionError {
	return &TransactionError{op: "rollback", Depth: depth, cause: cause}
}

func NewNoActiveTransaction(operation string) *TransactionError {
	return &TransactionError{op: fmt.Sprintf("%s without active transaction", operation)}
}

func NewSavepointFailed(cause error, name, operation string) *TransactionError {
	return &TransactionError{op: fmt.Sprintf("savepoint %s", operation), Savepoint: name, cause: cause}
}

func NewSavepointNotFound(name string) *TransactionError {
	return &TransactionError{op: "savepoint release", Savepoint: name}
}

func NewDeadlockDetected(cause error) *TransactionError {
	return &TransactionError{op: "execute", deadlock: true, cause: cause}
}

func NewTransactionLockTimeout(cause error) *TransactionError {
	return &TransactionError{op: "execute", timeout: true, cause: cause}
}

func (e *TransactionError) Error() string {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "transaction %s failed", e.op)

	if e.deadlock {
		buf.WriteString(": deadlock detected")
	}

	if e.timeout {
		buf.WriteString(": lock wait timeout")
	}

	if e.Savepoint != "" {
		fmt.Fprintf(&buf, " [%s]", e.Savepoint)
	}

	if e.Depth > 0 {
		fmt.Fprintf(&buf, " at depth %d", e.Depth)
	}

	if e.cause != nil {
		fmt.Fprintf(&buf, ": %s", e.cause.Error())
	}

	return buf.String()
}

func (e *TransactionError) Unwrap() error {
	return e.cause
}

func (e *TransactionError) IsDeadlock() bool {
	return e.deadlock
}

func (e *TransactionError) IsLockTimeout() bool {
	return e.timeout
}

func (e *TransactionError) IsRetryable() bool {
	return e.deadlock || e.timeout
}
