package postgres

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"tillpoint/internal/core/tx"
	"tillpoint/pkg/logger"
)

func newTestManager(t *testing.T) (*TxManager, pgxmock.PgxPoolIface) {
	t.Helper()

	mockPool, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mockPool.Close)

	m := NewTxManager(TxManagerConfig{
		Pool:   mockPool,
		Logger: logger.FromZap(zap.NewNop()),
	})
	return m, mockPool
}

func expectBegin(mockPool pgxmock.PgxPoolIface) {
	mockPool.ExpectBeginTx(pgx.TxOptions{
		IsoLevel:   pgx.ReadCommitted,
		AccessMode: pgx.ReadWrite,
	})
	mockPool.ExpectExec("SET LOCAL statement_timeout").
		WillReturnResult(pgxmock.NewResult("SET", 0))
}

func TestRunInTransaction_CommitsOnSuccess(t *testing.T) {
	m, mockPool := newTestManager(t)

	expectBegin(mockPool)
	mockPool.ExpectExec("INSERT INTO doc_receipts").
		WithArgs("x").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mockPool.ExpectCommit()
	mockPool.ExpectRollback() // deferred release, no-op after commit

	err := m.RunInTransaction(context.Background(), "receipt.create", func(ctx context.Context) error {
		_, err := m.GetQuerier(ctx).Exec(ctx, "INSERT INTO doc_receipts (id) VALUES ($1)", "x")
		return err
	})

	require.NoError(t, err)
	assert.NoError(t, mockPool.ExpectationsWereMet())
}

func TestRunInTransaction_RetriesDeadlock(t *testing.T) {
	m, mockPool := newTestManager(t)

	// First attempt hits a deadlock and rolls back.
	expectBegin(mockPool)
	mockPool.ExpectExec("UPDATE reg_stock_balances").
		WillReturnError(&pgconn.PgError{Code: "40P01", Message: "deadlock detected"})
	mockPool.ExpectRollback()

	// Second attempt succeeds.
	expectBegin(mockPool)
	mockPool.ExpectExec("UPDATE reg_stock_balances").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mockPool.ExpectCommit()
	mockPool.ExpectRollback()

	attempts := 0
	err := m.RunInTransaction(context.Background(), "receipt.post", func(ctx context.Context) error {
		attempts++
		_, err := m.GetQuerier(ctx).Exec(ctx, "UPDATE reg_stock_balances SET quantity = 1")
		return err
	})

	require.NoError(t, err)
	assert.Equal(t, 2, attempts)
	assert.NoError(t, mockPool.ExpectationsWereMet())
}

func TestRunInTransaction_NonTransientFailsImmediately(t *testing.T) {
	m, mockPool := newTestManager(t)

	expectBegin(mockPool)
	mockPool.ExpectExec("INSERT INTO cat_products").
		WithArgs("x").
		WillReturnError(&pgconn.PgError{Code: "23505", Message: "duplicate key value violates unique constraint"})
	mockPool.ExpectRollback()

	attempts := 0
	err := m.RunInTransaction(context.Background(), "product.create", func(ctx context.Context) error {
		attempts++
		_, err := m.GetQuerier(ctx).Exec(ctx, "INSERT INTO cat_products (id) VALUES ($1)", "x")
		return err
	})

	require.Error(t, err)
	assert.Equal(t, 1, attempts)

	var txErr *tx.Error
	require.ErrorAs(t, err, &txErr)
	assert.Equal(t, 1, txErr.Attempts)
	assert.NoError(t, mockPool.ExpectationsWereMet())
}

func TestRunInTransaction_NestedReusesTransaction(t *testing.T) {
	m, mockPool := newTestManager(t)

	// One begin/commit pair for both levels.
	expectBegin(mockPool)
	mockPool.ExpectExec("INSERT INTO sys_outbox").
		WithArgs("x").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mockPool.ExpectCommit()
	mockPool.ExpectRollback()

	err := m.RunInTransaction(context.Background(), "receipt.post", func(ctx context.Context) error {
		require.NotNil(t, GetTx(ctx))
		return m.RunInTransaction(ctx, "outbox.enqueue", func(ctx context.Context) error {
			_, err := m.GetQuerier(ctx).Exec(ctx, "INSERT INTO sys_outbox (id) VALUES ($1)", "x")
			return err
		})
	})

	require.NoError(t, err)
	assert.NoError(t, mockPool.ExpectationsWereMet())
}

func TestRunInTransaction_RetriesExhausted(t *testing.T) {
	m, mockPool := newTestManager(t)

	for i := 0; i < tx.DefaultMaxRetries; i++ {
		expectBegin(mockPool)
		mockPool.ExpectExec("UPDATE reg_stock_balances").
			WillReturnError(&pgconn.PgError{Code: "40001", Message: "could not serialize access"})
		mockPool.ExpectRollback()
	}

	err := m.RunInTransaction(context.Background(), "receipt.post", func(ctx context.Context) error {
		_, err := m.GetQuerier(ctx).Exec(ctx, "UPDATE reg_stock_balances SET quantity = 1")
		return err
	})

	require.Error(t, err)
	var txErr *tx.Error
	require.ErrorAs(t, err, &txErr)
	assert.Equal(t, tx.DefaultMaxRetries, txErr.Attempts)

	var pgErr *pgconn.PgError
	assert.True(t, errors.As(err, &pgErr))
	assert.NoError(t, mockPool.ExpectationsWereMet())
}

func TestReadOnly_UsesReadOnlyAccessMode(t *testing.T) {
	m, mockPool := newTestManager(t)

	mockPool.ExpectBeginTx(pgx.TxOptions{
		IsoLevel:   pgx.ReadCommitted,
		AccessMode: pgx.ReadOnly,
	})
	mockPool.ExpectExec("SET LOCAL statement_timeout").
		WillReturnResult(pgxmock.NewResult("SET", 0))
	mockPool.ExpectCommit()
	mockPool.ExpectRollback()

	err := m.ReadOnly(context.Background(), "stock.balances", func(ctx context.Context) error {
		return nil
	})

	require.NoError(t, err)
	assert.NoError(t, mockPool.ExpectationsWereMet())
}

func TestGetQuerier_PoolOutsideTransaction(t *testing.T) {
	m, mockPool := newTestManager(t)

	mockPool.ExpectExec("SELECT 1").
		WillReturnResult(pgxmock.NewResult("SELECT", 1))

	_, err := m.GetQuerier(context.Background()).Exec(context.Background(), "SELECT 1")
	require.NoError(t, err)
	assert.NoError(t, mockPool.ExpectationsWereMet())
}
