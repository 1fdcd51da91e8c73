package tx

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Class is the retry classification of a failed attempt.
type Class int

const (
	// ClassNonTransient failures are surfaced immediately, no retry.
	ClassNonTransient Class = iota

	// ClassTransientConcurrency is an optimistic-lock version mismatch.
	// Retryable after reloading the conflicting entities.
	ClassTransientConcurrency

	// ClassTransientContention is a lock/timeout/deadlock reported by the
	// store. Retryable without reload.
	ClassTransientContention
)

// String implements fmt.Stringer for log output.
func (c Class) String() string {
	switch c {
	case ClassTransientConcurrency:
		return "transient_concurrency"
	case ClassTransientContention:
		return "transient_contention"
	default:
		return "non_transient"
	}
}

// Classifier maps a failed attempt's error to a retry class.
//
// The default implementation detects contention by message substrings, a
// heuristic inherited from the store's free-text error reporting. Stores
// that expose structured error codes should install their own classifier
// (see postgres.ClassifyError) instead of relying on string matching.
type Classifier func(err error) Class

// contentionMarkers are the substrings that indicate lock/timeout/deadlock
// conditions in a store error message. Matched case-insensitively.
var contentionMarkers = []string{
	"database is locked",
	"lock",
	"timeout",
	"deadlock",
}

// DefaultClassifier classifies an error using the portable rules:
// a ConflictError anywhere in the chain means an optimistic-concurrency
// conflict; otherwise the error messages are scanned for contention
// markers, innermost cause first; everything else is non-transient.
func DefaultClassifier(err error) Class {
	var conflict *ConflictError
	if errors.As(err, &conflict) {
		return ClassTransientConcurrency
	}

	var chain []error
	for e := err; e != nil; e = errors.Unwrap(e) {
		chain = append(chain, e)
	}
	for i := len(chain) - 1; i >= 0; i-- {
		if hasContentionMarker(chain[i].Error()) {
			return ClassTransientContention
		}
	}

	return ClassNonTransient
}

func hasContentionMarker(msg string) bool {
	msg = strings.ToLower(msg)
	for _, marker := range contentionMarkers {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

// Reloadable is implemented by entities that can refresh their persisted
// state after an optimistic-concurrency conflict, so the next attempt
// starts from the current version.
type Reloadable interface {
	Reload(ctx context.Context) error
}

// ReloadFunc adapts a closure to the Reloadable interface.
type ReloadFunc func(ctx context.Context) error

// Reload implements Reloadable.
func (f ReloadFunc) Reload(ctx context.Context) error { return f(ctx) }

// ConflictError reports an optimistic-concurrency version mismatch.
// Repositories return it from version-checked updates; the executor
// classifies it as retryable and reloads the stale entities before the
// next attempt.
type ConflictError struct {
	// Entity is the logical entity name (table or aggregate).
	Entity string

	// ID identifies the conflicting record.
	ID any

	// Stale holds the entities to refresh before retrying. May be empty
	// when the next attempt re-reads its inputs anyway.
	Stale []Reloadable

	// Err is an optional underlying cause.
	Err error
}

// NewConflict creates a ConflictError for the given entity and ID.
func NewConflict(entity string, id any) *ConflictError {
	return &ConflictError{Entity: entity, ID: id}
}

// WithStale registers entities to reload before the next attempt.
func (e *ConflictError) WithStale(stale ...Reloadable) *ConflictError {
	e.Stale = append(e.Stale, stale...)
	return e
}

// WithCause sets the underlying error.
func (e *ConflictError) WithCause(err error) *ConflictError {
	e.Err = err
	return e
}

// Error implements the error interface.
func (e *ConflictError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("concurrent modification of %s %v: %v", e.Entity, e.ID, e.Err)
	}
	return fmt.Sprintf("concurrent modification of %s %v", e.Entity, e.ID)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *ConflictError) Unwrap() error { return e.Err }
