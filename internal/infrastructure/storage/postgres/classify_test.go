package postgres

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"

	"tillpoint/internal/core/tx"
)

func TestClassifyError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want tx.Class
	}{
		{
			name: "serialization failure",
			err:  &pgconn.PgError{Code: "40001", Message: "could not serialize access due to concurrent update"},
			want: tx.ClassTransientContention,
		},
		{
			name: "deadlock detected",
			err:  &pgconn.PgError{Code: "40P01", Message: "deadlock detected"},
			want: tx.ClassTransientContention,
		},
		{
			name: "lock not available",
			err:  &pgconn.PgError{Code: "55P03", Message: "could not obtain lock on row"},
			want: tx.ClassTransientContention,
		},
		{
			name: "statement timeout",
			err:  &pgconn.PgError{Code: "57014", Message: "canceling statement due to statement timeout"},
			want: tx.ClassTransientContention,
		},
		{
			name: "wrapped pg error",
			err:  fmt.Errorf("update balance: %w", &pgconn.PgError{Code: "40P01", Message: "deadlock detected"}),
			want: tx.ClassTransientContention,
		},
		{
			name: "unique violation is terminal",
			err:  &pgconn.PgError{Code: "23505", Message: "duplicate key value violates unique constraint"},
			want: tx.ClassNonTransient,
		},
		{
			name: "version conflict",
			err:  tx.NewConflict("receipt", "42"),
			want: tx.ClassTransientConcurrency,
		},
		{
			name: "plain error with contention marker",
			err:  errors.New("database is locked"),
			want: tx.ClassTransientContention,
		},
		{
			name: "plain error",
			err:  errors.New("column does not exist"),
			want: tx.ClassNonTransient,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ClassifyError(tt.err))
		})
	}
}
