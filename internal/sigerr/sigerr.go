// Package sigerr defines the error taxonomy shared by the signing core.
// Every component returns typed errors from this package so the transport
// layer can map them to client or server failures without string matching.
package sigerr

import (
	"errors"
	"fmt"
)

// Category classifies a signing-core failure.
type Category string

const (
	// CategoryUnauthorized - the authorizer refused the request.
	CategoryUnauthorized Category = "unauthorized"
	// CategoryConfiguration - no matching worker, ambiguous token
	// configuration, or other caller-correctable setup problems.
	CategoryConfiguration Category = "configuration"
	// CategoryExhausted - the key pool has no free key. Retryable.
	CategoryExhausted Category = "exhausted"
	// CategoryCapacity - the token cannot cover the requested document
	// count, or the session has expired.
	CategoryCapacity Category = "capacity"
	// CategoryRemote - a backend or storage call failed or timed out.
	// Retryable: cleanup-on-every-path guarantees no key stays stuck.
	CategoryRemote Category = "remote"
	// CategoryInvariant - a correctness invariant was violated, e.g. the
	// backend returned the wrong number of signatures. Worth paging on.
	CategoryInvariant Category = "invariant"
)

// Error is a categorized signing-core error wrapping an underlying cause.
type Error struct {
	Category Category
	Err      error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %v", e.Category, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Retryable reports whether retrying the whole request may succeed.
func (e *Error) Retryable() bool {
	return e.Category == CategoryExhausted || e.Category == CategoryRemote
}

// New creates a categorized error from a message.
func New(cat Category, msg string) error {
	return &Error{Category: cat, Err: errors.New(msg)}
}

// Newf creates a categorized error from a format string.
func Newf(cat Category, format string, args ...any) error {
	return &Error{Category: cat, Err: fmt.Errorf(format, args...)}
}

// Wrap attaches a category to an existing error. Errors that already carry a
// category keep it.
func Wrap(cat Category, err error) error {
	if err == nil {
		return nil
	}
	var se *Error
	if errors.As(err, &se) {
		return err
	}
	return &Error{Category: cat, Err: err}
}

// CategoryOf extracts the category from an error chain. Uncategorized errors
// are reported as CategoryRemote, the safe default for unknown failures.
func CategoryOf(err error) Category {
	var se *Error
	if errors.As(err, &se) {
		return se.Category
	}
	return CategoryRemote
}

// IsRetryable reports whether an error chain represents a retryable failure.
func IsRetryable(err error) bool {
	var se *Error
	if errors.As(err, &se) {
		return se.Retryable()
	}
	return false
}
