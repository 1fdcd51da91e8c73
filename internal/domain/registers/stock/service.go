package stock

import (
	"context"
	"fmt"
	"time"

	"tillpoint/internal/core/apperror"
	"tillpoint/internal/core/entity"
	"tillpoint/internal/core/id"
	"tillpoint/internal/core/types"
	"tillpoint/pkg/logger"
)

// Service provides business operations for the stock register.
// Transactions are managed by the caller (document posting): all write
// methods expect to run inside an open transaction.
type Service struct {
	repo Repository
}

// NewService creates a new stock register service.
func NewService(repo Repository) *Service {
	return &Service{
		repo: repo,
	}
}

// ApplyMovements records movements from a document posting and folds them
// into the materialized balances. Expense movements that would drive a
// balance negative fail with an insufficient-stock error.
func (s *Service) ApplyMovements(ctx context.Context, movements []entity.StockMovement) error {
	if len(movements) == 0 {
		return nil
	}

	for i, m := range movements {
		if !m.Quantity.IsPositive() {
			return apperror.NewValidation(fmt.Sprintf("movement %d: quantity must be positive", i))
		}
		if id.IsNil(m.RecorderID) {
			return apperror.NewValidation(fmt.Sprintf("movement %d: recorder_id is required", i))
		}
	}

	if err := s.repo.CreateMovements(ctx, movements); err != nil {
		return fmt.Errorf("create movements: %w", err)
	}

	if err := s.applyDeltas(ctx, aggregateDeltas(movements), movements[0].Period); err != nil {
		return err
	}

	logger.Info(ctx, "applied stock movements",
		"count", len(movements),
		"recorder_id", movements[0].RecorderID,
	)

	return nil
}

// ReverseMovements removes movements recorded before the given posting
// iteration and rolls their effect out of the balances. Used during
// voiding and re-posting.
func (s *Service) ReverseMovements(ctx context.Context, recorderID id.ID, beforeVersion int) error {
	movements, err := s.repo.GetMovementsByRecorder(ctx, recorderID)
	if err != nil {
		return fmt.Errorf("get movements: %w", err)
	}

	reversed := make([]entity.StockMovement, 0, len(movements))
	for _, m := range movements {
		if m.RecorderVersion < beforeVersion {
			reversed = append(reversed, m)
		}
	}
	if len(reversed) == 0 {
		return nil
	}

	if err := s.repo.DeleteMovementsByRecorder(ctx, recorderID, beforeVersion); err != nil {
		return fmt.Errorf("delete movements: %w", err)
	}

	deltas := aggregateDeltas(reversed)
	for productID := range deltas {
		deltas[productID] = deltas[productID].Neg()
	}
	if err := s.applyDeltas(ctx, deltas, time.Now().UTC()); err != nil {
		return err
	}

	logger.Info(ctx, "reversed stock movements",
		"recorder_id", recorderID,
		"before_version", beforeVersion,
		"count", len(reversed),
	)

	return nil
}

// aggregateDeltas folds movements into one signed delta per product.
func aggregateDeltas(movements []entity.StockMovement) map[id.ID]types.Quantity {
	deltas := make(map[id.ID]types.Quantity, len(movements))
	for i := range movements {
		m := &movements[i]
		deltas[m.ProductID] = deltas[m.ProductID].Add(m.SignedQuantity())
	}
	return deltas
}

func (s *Service) applyDeltas(ctx context.Context, deltas map[id.ID]types.Quantity, movementAt time.Time) error {
	for productID, delta := range deltas {
		if delta.IsZero() {
			continue
		}
		if err := s.applyDelta(ctx, productID, delta, movementAt); err != nil {
			return err
		}
	}
	return nil
}

// applyDelta folds one product delta into its balance with a version
// check. A concurrent balance update surfaces as *tx.ConflictError from
// the repository; the balance is re-read on the next attempt, so no
// reload hook is needed here.
func (s *Service) applyDelta(ctx context.Context, productID id.ID, delta types.Quantity, movementAt time.Time) error {
	balance, err := s.repo.GetBalance(ctx, productID)
	if err != nil {
		if !apperror.IsNotFound(err) {
			return fmt.Errorf("get balance for %s: %w", productID, err)
		}
		balance = entity.StockBalance{ProductID: productID}
	}

	newQuantity := balance.Quantity.Add(delta)
	if newQuantity.IsNegative() {
		return apperror.NewInsufficientStock(
			productID.String(),
			delta.Neg().String(),
			balance.Quantity.String(),
		)
	}

	if err := s.repo.UpdateBalance(ctx, productID, newQuantity, balance.Version, movementAt); err != nil {
		return fmt.Errorf("update balance for %s: %w", productID, err)
	}

	return nil
}

// GetBalance returns the current balance for a product.
// A product with no movements yet reports a zero balance.
func (s *Service) GetBalance(ctx context.Context, productID id.ID) (entity.StockBalance, error) {
	balance, err := s.repo.GetBalance(ctx, productID)
	if err != nil {
		if apperror.IsNotFound(err) {
			return entity.StockBalance{ProductID: productID}, nil
		}
		return entity.StockBalance{}, fmt.Errorf("get balance: %w", err)
	}
	return balance, nil
}

// GetBalances returns balances matching the filter.
func (s *Service) GetBalances(ctx context.Context, filter BalanceFilter) ([]entity.StockBalance, error) {
	return s.repo.GetBalances(ctx, filter)
}

// GetMovementHistory returns movement history for a product.
func (s *Service) GetMovementHistory(ctx context.Context, productID id.ID, filter MovementFilter) ([]entity.StockMovement, error) {
	return s.repo.GetMovementHistory(ctx, productID, filter)
}

// Recalculate rebuilds a product balance from its movements.
func (s *Service) Recalculate(ctx context.Context, productID id.ID) error {
	if err := s.repo.RecalculateBalance(ctx, productID); err != nil {
		return fmt.Errorf("recalculate balance: %w", err)
	}
	logger.Info(ctx, "recalculated stock balance", "product_id", productID)
	return nil
}
