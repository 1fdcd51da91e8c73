package stock

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tillpoint/internal/core/apperror"
	"tillpoint/internal/core/entity"
	"tillpoint/internal/core/id"
	"tillpoint/internal/core/types"
)

type fakeRepo struct {
	movements []entity.StockMovement
	balances  map[id.ID]entity.StockBalance
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{balances: make(map[id.ID]entity.StockBalance)}
}

func (r *fakeRepo) CreateMovements(_ context.Context, movements []entity.StockMovement) error {
	r.movements = append(r.movements, movements...)
	return nil
}

func (r *fakeRepo) DeleteMovementsByRecorder(_ context.Context, recorderID id.ID, beforeVersion int) error {
	kept := r.movements[:0]
	for _, m := range r.movements {
		if m.RecorderID == recorderID && m.RecorderVersion < beforeVersion {
			continue
		}
		kept = append(kept, m)
	}
	r.movements = kept
	return nil
}

func (r *fakeRepo) GetMovementsByRecorder(_ context.Context, recorderID id.ID) ([]entity.StockMovement, error) {
	var out []entity.StockMovement
	for _, m := range r.movements {
		if m.RecorderID == recorderID {
			out = append(out, m)
		}
	}
	return out, nil
}

func (r *fakeRepo) GetBalance(_ context.Context, productID id.ID) (entity.StockBalance, error) {
	b, ok := r.balances[productID]
	if !ok {
		return entity.StockBalance{}, apperror.NewNotFound("stock_balance", productID.String())
	}
	return b, nil
}

func (r *fakeRepo) UpdateBalance(_ context.Context, productID id.ID, quantity types.Quantity, expectedVersion int, movementAt time.Time) error {
	b := r.balances[productID]
	if b.Version != expectedVersion {
		return apperror.NewConcurrentModification("stock_balance", productID.String())
	}
	r.balances[productID] = entity.StockBalance{
		ProductID:      productID,
		Quantity:       quantity,
		Version:        expectedVersion + 1,
		LastMovementAt: movementAt,
		UpdatedAt:      time.Now().UTC(),
	}
	return nil
}

func (r *fakeRepo) GetBalances(_ context.Context, _ BalanceFilter) ([]entity.StockBalance, error) {
	out := make([]entity.StockBalance, 0, len(r.balances))
	for _, b := range r.balances {
		out = append(out, b)
	}
	return out, nil
}

func (r *fakeRepo) GetMovementHistory(_ context.Context, productID id.ID, _ MovementFilter) ([]entity.StockMovement, error) {
	var out []entity.StockMovement
	for _, m := range r.movements {
		if m.ProductID == productID {
			out = append(out, m)
		}
	}
	return out, nil
}

func (r *fakeRepo) RecalculateBalance(_ context.Context, _ id.ID) error { return nil }

func qty(s string) types.Quantity {
	return decimal.RequireFromString(s)
}

func TestApplyMovements_ReceiptCreatesBalance(t *testing.T) {
	repo := newFakeRepo()
	svc := NewService(repo)

	productID := id.New()
	recorderID := id.New()
	period := time.Now().UTC()

	err := svc.ApplyMovements(context.Background(), []entity.StockMovement{
		entity.NewStockMovement(recorderID, "Adjustment", 1, period, entity.RecordTypeReceipt, productID, qty("10")),
	})
	require.NoError(t, err)

	balance, err := svc.GetBalance(context.Background(), productID)
	require.NoError(t, err)
	assert.True(t, balance.Quantity.Equal(qty("10")), "got %s", balance.Quantity)
	assert.Equal(t, 1, balance.Version)
}

func TestApplyMovements_ExpenseBeyondBalance(t *testing.T) {
	repo := newFakeRepo()
	svc := NewService(repo)

	productID := id.New()
	period := time.Now().UTC()

	err := svc.ApplyMovements(context.Background(), []entity.StockMovement{
		entity.NewStockMovement(id.New(), "Adjustment", 1, period, entity.RecordTypeReceipt, productID, qty("3")),
	})
	require.NoError(t, err)

	err = svc.ApplyMovements(context.Background(), []entity.StockMovement{
		entity.NewStockMovement(id.New(), "Receipt", 1, period, entity.RecordTypeExpense, productID, qty("5")),
	})
	require.Error(t, err)

	appErr, ok := apperror.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, apperror.CodeInsufficientStock, appErr.Code)
	assert.Equal(t, "5", appErr.Details["requested"])
	assert.Equal(t, "3", appErr.Details["available"])
}

func TestApplyMovements_AggregatesPerProduct(t *testing.T) {
	repo := newFakeRepo()
	svc := NewService(repo)

	productID := id.New()
	recorderID := id.New()
	period := time.Now().UTC()

	// Net effect is +7, one balance write.
	err := svc.ApplyMovements(context.Background(), []entity.StockMovement{
		entity.NewStockMovement(recorderID, "Adjustment", 1, period, entity.RecordTypeReceipt, productID, qty("10")),
		entity.NewStockMovement(recorderID, "Adjustment", 1, period, entity.RecordTypeExpense, productID, qty("3")),
	})
	require.NoError(t, err)

	balance, err := svc.GetBalance(context.Background(), productID)
	require.NoError(t, err)
	assert.True(t, balance.Quantity.Equal(qty("7")), "got %s", balance.Quantity)
	assert.Equal(t, 1, balance.Version)
}

func TestApplyMovements_RejectsNonPositiveQuantity(t *testing.T) {
	svc := NewService(newFakeRepo())

	m := entity.NewStockMovement(id.New(), "Receipt", 1, time.Now().UTC(), entity.RecordTypeExpense, id.New(), qty("0"))
	err := svc.ApplyMovements(context.Background(), []entity.StockMovement{m})

	require.Error(t, err)
	appErr, ok := apperror.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, apperror.CodeValidation, appErr.Code)
}

func TestReverseMovements_RestoresBalance(t *testing.T) {
	repo := newFakeRepo()
	svc := NewService(repo)

	productID := id.New()
	recorderID := id.New()
	period := time.Now().UTC()

	require.NoError(t, svc.ApplyMovements(context.Background(), []entity.StockMovement{
		entity.NewStockMovement(id.New(), "Adjustment", 1, period, entity.RecordTypeReceipt, productID, qty("10")),
	}))
	require.NoError(t, svc.ApplyMovements(context.Background(), []entity.StockMovement{
		entity.NewStockMovement(recorderID, "Receipt", 1, period, entity.RecordTypeExpense, productID, qty("4")),
	}))

	err := svc.ReverseMovements(context.Background(), recorderID, 2)
	require.NoError(t, err)

	balance, err := svc.GetBalance(context.Background(), productID)
	require.NoError(t, err)
	assert.True(t, balance.Quantity.Equal(qty("10")), "got %s", balance.Quantity)

	left, err := repo.GetMovementsByRecorder(context.Background(), recorderID)
	require.NoError(t, err)
	assert.Empty(t, left)
}

func TestReverseMovements_KeepsCurrentIteration(t *testing.T) {
	repo := newFakeRepo()
	svc := NewService(repo)

	productID := id.New()
	recorderID := id.New()
	period := time.Now().UTC()

	require.NoError(t, svc.ApplyMovements(context.Background(), []entity.StockMovement{
		entity.NewStockMovement(id.New(), "Adjustment", 1, period, entity.RecordTypeReceipt, productID, qty("10")),
	}))
	// Two posting iterations for the same document.
	require.NoError(t, svc.ApplyMovements(context.Background(), []entity.StockMovement{
		entity.NewStockMovement(recorderID, "Receipt", 1, period, entity.RecordTypeExpense, productID, qty("2")),
	}))
	require.NoError(t, svc.ApplyMovements(context.Background(), []entity.StockMovement{
		entity.NewStockMovement(recorderID, "Receipt", 2, period, entity.RecordTypeExpense, productID, qty("3")),
	}))

	// Reverse only iteration 1.
	require.NoError(t, svc.ReverseMovements(context.Background(), recorderID, 2))

	balance, err := svc.GetBalance(context.Background(), productID)
	require.NoError(t, err)
	assert.True(t, balance.Quantity.Equal(qty("7")), "got %s", balance.Quantity)

	left, err := repo.GetMovementsByRecorder(context.Background(), recorderID)
	require.NoError(t, err)
	require.Len(t, left, 1)
	assert.Equal(t, 2, left[0].RecorderVersion)
}

func TestGetBalance_UnknownProductIsZero(t *testing.T) {
	svc := NewService(newFakeRepo())

	productID := id.New()
	balance, err := svc.GetBalance(context.Background(), productID)
	require.NoError(t, err)
	assert.Equal(t, productID, balance.ProductID)
	assert.True(t, balance.Quantity.IsZero())
}
