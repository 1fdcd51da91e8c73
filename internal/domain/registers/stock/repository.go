// Package stock provides the stock accumulation register.
package stock

import (
	"context"
	"time"

	"tillpoint/internal/core/entity"
	"tillpoint/internal/core/id"
	"tillpoint/internal/core/types"
)

// Repository defines operations for the stock register.
// Balance writes are version-checked: an UpdateBalance against a stale
// version returns *tx.ConflictError so the posting transaction can retry.
type Repository interface {
	// Movement operations

	// CreateMovements batch inserts movements (used during posting)
	CreateMovements(ctx context.Context, movements []entity.StockMovement) error

	// DeleteMovementsByRecorder removes all movements for a document
	// recorded before the given posting iteration
	DeleteMovementsByRecorder(ctx context.Context, recorderID id.ID, beforeVersion int) error

	// GetMovementsByRecorder retrieves all movements for a document
	GetMovementsByRecorder(ctx context.Context, recorderID id.ID) ([]entity.StockMovement, error)

	// Balance operations

	// GetBalance returns the current balance for a product.
	// Returns a not-found error when no balance row exists yet.
	GetBalance(ctx context.Context, productID id.ID) (entity.StockBalance, error)

	// UpdateBalance writes the new quantity for a product, guarded by the
	// expected version. expectedVersion 0 inserts a fresh row. A version
	// mismatch returns *tx.ConflictError.
	UpdateBalance(ctx context.Context, productID id.ID, quantity types.Quantity, expectedVersion int, movementAt time.Time) error

	// GetBalances returns balances matching the filter
	GetBalances(ctx context.Context, filter BalanceFilter) ([]entity.StockBalance, error)

	// Reporting

	// GetMovementHistory returns movement history for a product
	GetMovementHistory(ctx context.Context, productID id.ID, filter MovementFilter) ([]entity.StockMovement, error)

	// Maintenance

	// RecalculateBalance rebuilds one balance row from movements
	RecalculateBalance(ctx context.Context, productID id.ID) error
}

// BalanceFilter for filtering balance queries.
type BalanceFilter struct {
	ProductIDs  []id.ID
	ExcludeZero bool
	Limit       int
	Offset      int
}

// MovementFilter for filtering movement history.
type MovementFilter struct {
	RecordType *entity.RecordType
	FromDate   *time.Time
	ToDate     *time.Time
	Limit      int
	Offset     int
}
