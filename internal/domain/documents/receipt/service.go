package receipt

import (
	"context"
	"fmt"
	"time"

	"tillpoint/internal/core/apperror"
	"tillpoint/internal/core/entity"
	"tillpoint/internal/core/id"
	"tillpoint/internal/core/tx"
	"tillpoint/internal/domain"
	"tillpoint/pkg/logger"
	"tillpoint/pkg/numerator"
)

// Receipt numbers are fiscal: the sequence must not have gaps, so the
// strict numerator strategy is used even though it costs a query per number.
var numeratorOptions = &numerator.Options{Strategy: numerator.StrategyStrict}

// StockRegister records and reverses stock movements during posting.
type StockRegister interface {
	ApplyMovements(ctx context.Context, movements []entity.StockMovement) error
	ReverseMovements(ctx context.Context, recorderID id.ID, beforeVersion int) error
}

// EventOutbox enqueues integration events in the posting transaction,
// so an event exists exactly when the posting committed.
type EventOutbox interface {
	Enqueue(ctx context.Context, eventType string, aggregateID id.ID, payload any) error
}

// AuditTrail records entity snapshots for the audit log.
type AuditTrail interface {
	Record(ctx context.Context, action, entityType string, entityID id.ID, snapshot any) error
}

// Event types emitted to the outbox.
const (
	EventPosted = "receipt.posted"
	EventVoided = "receipt.voided"
)

// PostedEvent is the outbox payload for a posted or voided receipt.
type PostedEvent struct {
	ReceiptID  id.ID     `json:"receiptId"`
	Number     string    `json:"number"`
	TerminalID string    `json:"terminalId"`
	Total      string    `json:"total"`
	Date       time.Time `json:"date"`
}

// Service provides business logic for sale receipts.
// Post and Void run inside the retrying transaction manager: version
// conflicts on the receipt or on stock balances roll the attempt back
// and re-run it against fresh state.
type Service struct {
	repo      Repository
	txManager tx.Manager
	stock     StockRegister
	numerator *numerator.Service
	outbox    EventOutbox
	audit     AuditTrail
}

// ServiceConfig wires the receipt service dependencies.
type ServiceConfig struct {
	Repo      Repository
	TxManager tx.Manager
	Stock     StockRegister
	Numerator *numerator.Service
	Outbox    EventOutbox
	Audit     AuditTrail
}

// NewService creates a new receipt service.
func NewService(cfg ServiceConfig) *Service {
	return &Service{
		repo:      cfg.Repo,
		txManager: cfg.TxManager,
		stock:     cfg.Stock,
		numerator: cfg.Numerator,
		outbox:    cfg.Outbox,
		audit:     cfg.Audit,
	}
}

// Create stores a new draft receipt, assigning a number when missing.
func (s *Service) Create(ctx context.Context, r *Receipt) error {
	if err := r.Validate(ctx); err != nil {
		return err
	}

	if r.Number == "" {
		number, err := s.numerator.GetNextNumber(ctx, numerator.DefaultConfig("RCP"), numeratorOptions, r.Date)
		if err != nil {
			return fmt.Errorf("generate number: %w", err)
		}
		r.Number = number
	}

	err := s.txManager.RunInTransaction(ctx, "receipt.create", func(ctx context.Context) error {
		if err := s.repo.Create(ctx, r); err != nil {
			return fmt.Errorf("create receipt: %w", err)
		}
		return s.audit.Record(ctx, "create", "receipt", r.ID, r)
	})
	if err != nil {
		return err
	}

	logger.Info(ctx, "receipt created", "receipt_id", r.ID, "number", r.Number)
	return nil
}

// GetByID retrieves a receipt with its lines.
func (s *Service) GetByID(ctx context.Context, receiptID id.ID) (*Receipt, error) {
	r, err := s.repo.GetByID(ctx, receiptID)
	if err != nil {
		if apperror.IsNotFound(err) {
			return nil, apperror.NewNotFound("receipt", receiptID.String())
		}
		return nil, err
	}
	return r, nil
}

// GetByNumber retrieves a receipt by its document number.
func (s *Service) GetByNumber(ctx context.Context, number string) (*Receipt, error) {
	r, err := s.repo.GetByNumber(ctx, number)
	if err != nil {
		if apperror.IsNotFound(err) {
			return nil, apperror.NewNotFound("receipt", number)
		}
		return nil, err
	}
	return r, nil
}

// Update saves changes to a draft receipt. Posted receipts must be
// voided first.
func (s *Service) Update(ctx context.Context, r *Receipt) error {
	if err := r.Validate(ctx); err != nil {
		return err
	}

	current, err := s.GetByID(ctx, r.ID)
	if err != nil {
		return err
	}
	if err := current.CanModify(); err != nil {
		return err
	}

	err = s.txManager.RunInTransaction(ctx, "receipt.update", func(ctx context.Context) error {
		if err := s.repo.Update(ctx, r); err != nil {
			return fmt.Errorf("update receipt: %w", err)
		}
		return s.audit.Record(ctx, "update", "receipt", r.ID, r)
	})
	if err != nil {
		return err
	}

	logger.Info(ctx, "receipt updated", "receipt_id", r.ID)
	return nil
}

// Delete soft-deletes a draft receipt.
func (s *Service) Delete(ctx context.Context, receiptID id.ID) error {
	current, err := s.GetByID(ctx, receiptID)
	if err != nil {
		return err
	}
	if err := current.CanModify(); err != nil {
		return err
	}

	return s.txManager.RunInTransaction(ctx, "receipt.delete", func(ctx context.Context) error {
		if err := s.repo.SetDeletionMark(ctx, receiptID, true); err != nil {
			return fmt.Errorf("delete receipt: %w", err)
		}
		return s.audit.Record(ctx, "delete", "receipt", receiptID, nil)
	})
}

// List retrieves receipts with filtering.
func (s *Service) List(ctx context.Context, filter ListFilter) (domain.ListResult[*Receipt], error) {
	return s.repo.List(ctx, filter)
}

// Post records the receipt's movements in the stock register and marks
// it posted, atomically. The receipt is re-read inside the transaction
// on every attempt, so a retry after a version conflict or lock timeout
// always works from current state.
func (s *Service) Post(ctx context.Context, receiptID id.ID) error {
	err := s.txManager.RunInTransaction(ctx, "receipt.post", func(ctx context.Context) error {
		r, err := s.repo.GetByID(ctx, receiptID)
		if err != nil {
			if apperror.IsNotFound(err) {
				return apperror.NewNotFound("receipt", receiptID.String())
			}
			return err
		}

		if r.DeletionMark {
			return apperror.NewBusinessRule(apperror.CodeBusinessRule, "cannot post a deleted receipt").
				WithDetail("receipt_id", receiptID.String())
		}
		if r.Posted {
			return apperror.NewReceiptPosted(receiptID.String())
		}
		if len(r.Lines) == 0 {
			return apperror.NewValidation("cannot post an empty receipt").
				WithDetail("receipt_id", receiptID.String())
		}
		if err := r.Validate(ctx); err != nil {
			return err
		}

		r.MarkPosted()

		if err := s.repo.Update(ctx, r); err != nil {
			return fmt.Errorf("update receipt: %w", err)
		}

		// Drop leftovers from earlier posting iterations before writing
		// the new ones.
		if err := s.stock.ReverseMovements(ctx, r.ID, r.PostedVersion); err != nil {
			return err
		}
		if err := s.stock.ApplyMovements(ctx, r.StockMovements()); err != nil {
			return err
		}

		if err := s.outbox.Enqueue(ctx, EventPosted, r.ID, postedEvent(r)); err != nil {
			return fmt.Errorf("enqueue event: %w", err)
		}
		return s.audit.Record(ctx, "post", "receipt", r.ID, r)
	})
	if err != nil {
		return err
	}

	logger.Info(ctx, "receipt posted", "receipt_id", receiptID)
	return nil
}

// Void reverses a posted receipt: its movements are removed from the
// stock register and the sold quantities return to the balances.
func (s *Service) Void(ctx context.Context, receiptID id.ID) error {
	err := s.txManager.RunInTransaction(ctx, "receipt.void", func(ctx context.Context) error {
		r, err := s.repo.GetByID(ctx, receiptID)
		if err != nil {
			if apperror.IsNotFound(err) {
				return apperror.NewNotFound("receipt", receiptID.String())
			}
			return err
		}

		if !r.Posted {
			return apperror.NewReceiptNotPosted(receiptID.String())
		}

		if err := s.stock.ReverseMovements(ctx, r.ID, r.PostedVersion+1); err != nil {
			return err
		}

		r.MarkUnposted()
		if err := s.repo.Update(ctx, r); err != nil {
			return fmt.Errorf("update receipt: %w", err)
		}

		if err := s.outbox.Enqueue(ctx, EventVoided, r.ID, postedEvent(r)); err != nil {
			return fmt.Errorf("enqueue event: %w", err)
		}
		return s.audit.Record(ctx, "void", "receipt", r.ID, r)
	})
	if err != nil {
		return err
	}

	logger.Info(ctx, "receipt voided", "receipt_id", receiptID)
	return nil
}

func postedEvent(r *Receipt) PostedEvent {
	return PostedEvent{
		ReceiptID:  r.ID,
		Number:     r.Number,
		TerminalID: r.TerminalID,
		Total:      r.Total.String(),
		Date:       r.Date,
	}
}
