package tx

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDefaultClassifier_Contention(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want Class
	}{
		{"sqlite style", errors.New("database is locked"), ClassTransientContention},
		{"lock uppercase", errors.New("Lock wait exceeded"), ClassTransientContention},
		{"timeout", errors.New("statement TIMEOUT exceeded"), ClassTransientContention},
		{"deadlock", errors.New("pq: deadlock detected"), ClassTransientContention},
		{"wrapped cause", fmt.Errorf("exec movements: %w", errors.New("deadlock detected")), ClassTransientContention},
		{"doubly wrapped", fmt.Errorf("post: %w", fmt.Errorf("update balance: %w", errors.New("lock not available"))), ClassTransientContention},
		{"plain failure", errors.New("duplicate key value violates unique constraint"), ClassNonTransient},
		{"syntax error", errors.New("syntax error at or near SELECT"), ClassNonTransient},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, DefaultClassifier(tc.err))
		})
	}
}

func TestDefaultClassifier_ConflictTakesPrecedence(t *testing.T) {
	// Even when the message mentions a lock, a ConflictError in the chain
	// means optimistic concurrency, which retries with entity reload.
	err := fmt.Errorf("update: %w", NewConflict("receipt", "r1").WithCause(errors.New("optimistic lock failed")))
	assert.Equal(t, ClassTransientConcurrency, DefaultClassifier(err))

	assert.Equal(t, ClassTransientConcurrency, DefaultClassifier(NewConflict("product", 7)))
}

func TestConflictError(t *testing.T) {
	cause := errors.New("version 3 expected, found 5")
	err := NewConflict("receipt", "r1").WithCause(cause)

	assert.Contains(t, err.Error(), "receipt")
	assert.Contains(t, err.Error(), "r1")
	assert.ErrorIs(t, err, cause)

	reloaded := false
	err = err.WithStale(ReloadFunc(func(ctx context.Context) error {
		reloaded = true
		return nil
	}))
	assert.Len(t, err.Stale, 1)
	assert.NoError(t, err.Stale[0].Reload(context.Background()))
	assert.True(t, reloaded)
}

func TestClassString(t *testing.T) {
	assert.Equal(t, "non_transient", ClassNonTransient.String())
	assert.Equal(t, "transient_concurrency", ClassTransientConcurrency.String())
	assert.Equal(t, "transient_contention", ClassTransientContention.String())
}
