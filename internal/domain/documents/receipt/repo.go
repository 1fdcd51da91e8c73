package receipt

import (
	"context"
	"time"

	"tillpoint/internal/core/id"
	"tillpoint/internal/domain"
)

// ListFilter narrows receipt listings.
type ListFilter struct {
	domain.ListFilter

	// Posted filters by posted state when set
	Posted *bool

	// CustomerID filters by loyalty card holder
	CustomerID *id.ID

	// TerminalID filters by till
	TerminalID string

	// Date range on the business date
	FromDate *time.Time
	ToDate   *time.Time
}

// Repository defines the interface for Receipt persistence.
// Version-checked writes return *tx.ConflictError on mismatch.
type Repository interface {
	// Create stores the receipt and its lines
	Create(ctx context.Context, r *Receipt) error

	// GetByID retrieves a receipt with lines
	GetByID(ctx context.Context, receiptID id.ID) (*Receipt, error)

	// GetByNumber retrieves a receipt by document number
	GetByNumber(ctx context.Context, number string) (*Receipt, error)

	// Update stores header and replaces lines, guarded by version
	Update(ctx context.Context, r *Receipt) error

	// SetDeletionMark sets or clears the soft-delete mark
	SetDeletionMark(ctx context.Context, receiptID id.ID, marked bool) error

	// List retrieves receipts (headers only) with filtering
	List(ctx context.Context, filter ListFilter) (domain.ListResult[*Receipt], error)
}
