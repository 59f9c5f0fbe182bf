package plans

import (
	"errors"
	"sort"
	"strings"
)

var (
	// ErrUnauthenticated is returned when a write has no caller.
	ErrUnauthenticated = errors.New("not authenticated")
	// ErrRateLimited is returned when the caller's posting quota is exhausted.
	ErrRateLimited = errors.New("rate limited")
	// ErrAuthorNotFound means a stored plan references a user the directory
	// does not know. The store and the directory are out of sync.
	ErrAuthorNotFound = errors.New("author for plan not found")
)

// ValidationError carries per-field messages for a rejected input.
type ValidationError struct {
	FieldErrors map[string][]string
}

func (e *ValidationError) Error() string {
	fields := make([]string, 0, len(e.FieldErrors))
	for f := range e.FieldErrors {
		fields = append(fields, f)
	}
	sort.Strings(fields)

	parts := make([]string, 0, len(fields))
	for _, f := range fields {
		parts = append(parts, f+": "+strings.Join(e.FieldErrors[f], ", "))
	}
	return "invalid input: " + strings.Join(parts, "; ")
}

func (e *ValidationError) add(field, msg string) {
	if e.FieldErrors == nil {
		e.FieldErrors = make(map[string][]string)
	}
	e.FieldErrors[field] = append(e.FieldErrors[field], msg)
}
