// Package register_repo provides PostgreSQL implementations for
// register repositories.
package register_repo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"tillpoint/internal/core/apperror"
	"tillpoint/internal/core/entity"
	"tillpoint/internal/core/id"
	"tillpoint/internal/core/tx"
	"tillpoint/internal/core/types"
	"tillpoint/internal/domain/registers/stock"
	"tillpoint/internal/infrastructure/storage/postgres"
)

const (
	stockMovementsTable = "reg_stock_movements"
	stockBalancesTable  = "reg_stock_balances"
)

var movementColumns = []string{
	"line_id", "recorder_id", "recorder_type", "recorder_version",
	"period", "record_type", "product_id", "quantity", "created_at",
}

// Compile-time check.
var _ stock.Repository = (*StockRepo)(nil)

// StockRepo implements stock.Repository.
type StockRepo struct {
	txManager *postgres.TxManager
	inserter  *postgres.BatchInserter
	builder   squirrel.StatementBuilderType
}

// NewStockRepo creates a new stock register repository.
func NewStockRepo(txManager *postgres.TxManager) *StockRepo {
	return &StockRepo{
		txManager: txManager,
		inserter:  postgres.NewBatchInserter(txManager),
		builder:   squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

// CreateMovements batch inserts movements. Uses COPY inside a
// transaction, plain multi-row INSERT otherwise.
func (r *StockRepo) CreateMovements(ctx context.Context, movements []entity.StockMovement) error {
	if len(movements) == 0 {
		return nil
	}

	if postgres.GetTx(ctx) != nil {
		rows := make([][]any, 0, len(movements))
		for _, m := range movements {
			rows = append(rows, []any{
				m.LineID, m.RecorderID, m.RecorderType, m.RecorderVersion,
				m.Period, m.RecordType, m.ProductID, m.Quantity, m.CreatedAt,
			})
		}
		if _, err := r.inserter.CopyFromSlice(ctx, stockMovementsTable, movementColumns, rows); err != nil {
			return fmt.Errorf("copy movements: %w", err)
		}
		return nil
	}

	q := r.builder.Insert(stockMovementsTable).Columns(movementColumns...)
	for _, m := range movements {
		q = q.Values(
			m.LineID, m.RecorderID, m.RecorderType, m.RecorderVersion,
			m.Period, m.RecordType, m.ProductID, m.Quantity, m.CreatedAt,
		)
	}

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}

	if _, err := r.txManager.GetQuerier(ctx).Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("insert movements: %w", err)
	}

	return nil
}

// DeleteMovementsByRecorder removes movements recorded before the given
// posting iteration.
func (r *StockRepo) DeleteMovementsByRecorder(ctx context.Context, recorderID id.ID, beforeVersion int) error {
	q := r.builder.Delete(stockMovementsTable).
		Where(squirrel.Eq{"recorder_id": recorderID}).
		Where(squirrel.Lt{"recorder_version": beforeVersion})

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build delete: %w", err)
	}

	if _, err := r.txManager.GetQuerier(ctx).Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("delete movements: %w", err)
	}

	return nil
}

// GetMovementsByRecorder retrieves movements for a document.
func (r *StockRepo) GetMovementsByRecorder(ctx context.Context, recorderID id.ID) ([]entity.StockMovement, error) {
	q := r.builder.Select(movementColumns...).
		From(stockMovementsTable).
		Where(squirrel.Eq{"recorder_id": recorderID}).
		OrderBy("line_id")

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var movements []entity.StockMovement
	if err := pgxscan.Select(ctx, r.txManager.GetQuerier(ctx), &movements, sql, args...); err != nil {
		return nil, fmt.Errorf("get movements: %w", err)
	}

	return movements, nil
}

// GetBalance returns the current balance for a product.
func (r *StockRepo) GetBalance(ctx context.Context, productID id.ID) (entity.StockBalance, error) {
	q := r.builder.Select(
		"product_id", "quantity", "version", "last_movement_at", "updated_at",
	).From(stockBalancesTable).
		Where(squirrel.Eq{"product_id": productID}).
		Limit(1)

	sql, args, err := q.ToSql()
	if err != nil {
		return entity.StockBalance{}, fmt.Errorf("build query: %w", err)
	}

	var balance entity.StockBalance
	if err := pgxscan.Get(ctx, r.txManager.GetQuerier(ctx), &balance, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return entity.StockBalance{}, apperror.NewNotFound(stockBalancesTable, productID.String())
		}
		return entity.StockBalance{}, fmt.Errorf("get balance: %w", err)
	}

	return balance, nil
}

// UpdateBalance writes the new quantity guarded by the expected
// version. expectedVersion 0 inserts a fresh row; conflicts on the
// insert's unique key or on the version check both surface as
// *tx.ConflictError so the posting transaction retries against the
// then-current balance.
func (r *StockRepo) UpdateBalance(ctx context.Context, productID id.ID, quantity types.Quantity, expectedVersion int, movementAt time.Time) error {
	now := time.Now().UTC()
	querier := r.txManager.GetQuerier(ctx)

	if expectedVersion == 0 {
		_, err := querier.Exec(ctx, `
			INSERT INTO `+stockBalancesTable+` (product_id, quantity, version, last_movement_at, updated_at)
			VALUES ($1, $2, 1, $3, $4)
		`, productID, quantity, movementAt, now)
		if err != nil {
			if isUniqueViolation(err) {
				// Another transaction created the row first.
				return tx.NewConflict(stockBalancesTable, productID.String()).WithCause(err)
			}
			return fmt.Errorf("insert balance: %w", err)
		}
		return nil
	}

	var newVersion int
	err := querier.QueryRow(ctx, `
		UPDATE `+stockBalancesTable+`
		SET quantity = $1, version = version + 1, last_movement_at = $2, updated_at = $3
		WHERE product_id = $4 AND version = $5
		RETURNING version
	`, quantity, movementAt, now, productID, expectedVersion).Scan(&newVersion)
	if errors.Is(err, pgx.ErrNoRows) {
		return tx.NewConflict(stockBalancesTable, productID.String())
	}
	if err != nil {
		return fmt.Errorf("update balance: %w", err)
	}

	return nil
}

// GetBalances returns balances matching the filter.
func (r *StockRepo) GetBalances(ctx context.Context, filter stock.BalanceFilter) ([]entity.StockBalance, error) {
	q := r.builder.Select(
		"product_id", "quantity", "version", "last_movement_at", "updated_at",
	).From(stockBalancesTable)

	if len(filter.ProductIDs) > 0 {
		q = q.Where(squirrel.Eq{"product_id": filter.ProductIDs})
	}
	if filter.ExcludeZero {
		q = q.Where(squirrel.NotEq{"quantity": 0})
	}

	q = q.OrderBy("product_id")
	if filter.Limit > 0 {
		q = q.Limit(uint64(filter.Limit))
	}
	if filter.Offset > 0 {
		q = q.Offset(uint64(filter.Offset))
	}

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var balances []entity.StockBalance
	if err := pgxscan.Select(ctx, r.txManager.GetQuerier(ctx), &balances, sql, args...); err != nil {
		return nil, fmt.Errorf("get balances: %w", err)
	}

	return balances, nil
}

// GetMovementHistory returns movement history for a product, newest
// first.
func (r *StockRepo) GetMovementHistory(ctx context.Context, productID id.ID, filter stock.MovementFilter) ([]entity.StockMovement, error) {
	q := r.builder.Select(movementColumns...).
		From(stockMovementsTable).
		Where(squirrel.Eq{"product_id": productID})

	if filter.RecordType != nil {
		q = q.Where(squirrel.Eq{"record_type": *filter.RecordType})
	}
	if filter.FromDate != nil {
		q = q.Where(squirrel.GtOrEq{"period": *filter.FromDate})
	}
	if filter.ToDate != nil {
		q = q.Where(squirrel.LtOrEq{"period": *filter.ToDate})
	}

	q = q.OrderBy("period DESC", "created_at DESC")
	if filter.Limit > 0 {
		q = q.Limit(uint64(filter.Limit))
	}
	if filter.Offset > 0 {
		q = q.Offset(uint64(filter.Offset))
	}

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var movements []entity.StockMovement
	if err := pgxscan.Select(ctx, r.txManager.GetQuerier(ctx), &movements, sql, args...); err != nil {
		return nil, fmt.Errorf("movement history: %w", err)
	}

	return movements, nil
}

// RecalculateBalance rebuilds one balance row from its movements.
// Maintenance path for drift repair; normal posting keeps balances in
// step incrementally.
func (r *StockRepo) RecalculateBalance(ctx context.Context, productID id.ID) error {
	_, err := r.txManager.GetQuerier(ctx).Exec(ctx, `
		INSERT INTO `+stockBalancesTable+` (product_id, quantity, version, last_movement_at, updated_at)
		SELECT
			$1,
			COALESCE(SUM(CASE WHEN record_type = 'receipt' THEN quantity ELSE -quantity END), 0),
			1,
			COALESCE(MAX(period), NOW()),
			NOW()
		FROM `+stockMovementsTable+`
		WHERE product_id = $1
		ON CONFLICT (product_id) DO UPDATE SET
			quantity = EXCLUDED.quantity,
			version = `+stockBalancesTable+`.version + 1,
			last_movement_at = EXCLUDED.last_movement_at,
			updated_at = EXCLUDED.updated_at
	`, productID)
	if err != nil {
		return fmt.Errorf("recalculate balance: %w", err)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
