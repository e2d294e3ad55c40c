// Package dberr defines the closed set of persistence failure kinds produced
// by the schema port and the migration runner: query, schema, transaction and
// migration-orchestration errors. All types are plain data carriers that
// support errors.Is/As chains; none of them retries anything on its own.
package dberr

import (
	"strings"
	"unicode/utf8"
)

// MySQL vendor error codes relevant for classification.
const (
	CodeDuplicateKey        = 1062
	CodeFKViolationOnDelete = 1451
	CodeFKViolationOnInsert = 1452
	CodeDeadlock            = 1213
	CodeLockTimeout         = 1205
	CodeSyntaxError         = 1064
	CodeTableNotFound       = 1146
	CodeColumnNotFound      = 1054
)

// SQL-state values and classes used alongside vendor codes.
const (
	SQLStateDeadlock            = "40001"
	SQLStateClassIntegrity      = "23"
	SQLStateSyntaxOrAccessClass = "42"
)

const (
	maxSQLLength     = 500
	maxBindingLength = 100
	truncationMarker = "... [truncated]"
	redactionMarker  = "[redacted]"
)

var sensitiveKeyFragments = []string{"password", "secret", "token", "key", "auth"}

type retryable interface {
	IsRetryable() bool
}

// IsRetryable reports whether err, or anything in its unwrap chain, is a
// transient persistence failure (deadlock or lock timeout) that is expected
// to succeed if simply re-attempted.
func IsRetryable(err error) bool {
	for err != nil {
		if r, ok := err.(retryable); ok && r.IsRetryable() {
			return true
		}

		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}

	return false
}

// SanitizeSQL truncates statement text to a fixed bound so that error
// messages and logs never carry unbounded payloads.
func SanitizeSQL(sql string) string {
	sql = strings.TrimSpace(sql)
	if utf8.RuneCountInString(sql) <= maxSQLLength {
		return sql
	}

	runes := []rune(sql)
	return string(runes[:maxSQLLength]) + truncationMarker
}

// SanitizeBindings redacts values whose keys look sensitive and truncates
// long string values. The input map is not modified.
func SanitizeBindings(bindings map[string]interface{}) map[string]interface{} {
	if bindings == nil {
		return nil
	}

	sanitized := make(map[string]interface{}, len(bindings))
	for k, v := range bindings {
		if isSensitiveKey(k) {
			sanitized[k] = redactionMarker
			continue
		}

		if s, ok := v.(string); ok && utf8.RuneCountInString(s) > maxBindingLength {
			runes := []rune(s)
			sanitized[k] = string(runes[:maxBindingLength]) + truncationMarker
			continue
		}

		sanitized[k] = v
	}

	return sanitized
}

func isSensitiveKey(key string) bool {
	lower := strings.ToLower(key)
	for _, fragment := range sensitiveKeyFragments {
		if strings.Contains(lower, fragment) {
			return true
		}
	}

	return false
}

func sqlStateClass(state string) string {
	if len(state) < 2 {
		return state
	}

	return state[:2]
}
