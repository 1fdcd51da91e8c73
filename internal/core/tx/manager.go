// Package tx provides transaction management abstractions.
// This package defines interfaces that decouple domain logic from specific
// database implementations, plus the retrying executor that runs a unit
// of work inside a transaction and absorbs transient concurrency failures.
package tx

import (
	"context"
)

// Manager defines the contract for transaction management.
// Implementations handle BEGIN, COMMIT, ROLLBACK and retry of transient
// failures.
//
// Domain services depend on this interface, not concrete implementations.
// The actual implementation lives in infrastructure/storage/postgres.
type Manager interface {
	// RunInTransaction executes fn within a database transaction.
	// If fn returns an error, the transaction is rolled back; transient
	// concurrency failures are retried up to the configured budget.
	// op is a free-form label used for logging and error context.
	//
	// Nested calls reuse the existing transaction from context; retry
	// happens only at the outermost boundary.
	RunInTransaction(ctx context.Context, op string, fn func(ctx context.Context) error) error
}

// ReadOnlyManager extends Manager with read-only transaction support.
// Use for queries that don't modify data (better performance, no locks).
type ReadOnlyManager interface {
	Manager

	// ReadOnly executes fn in a read-only transaction.
	// Attempts to modify data will fail.
	ReadOnly(ctx context.Context, op string, fn func(ctx context.Context) error) error
}
