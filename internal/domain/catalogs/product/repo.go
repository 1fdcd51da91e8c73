package product

import (
	"context"

	"tillpoint/internal/domain"
)

// Repository defines the interface for Product persistence.
type Repository interface {
	domain.CatalogRepository[*Product]

	// GetByBarcode retrieves a product by its scanned barcode.
	GetByBarcode(ctx context.Context, barcode string) (*Product, error)
}
