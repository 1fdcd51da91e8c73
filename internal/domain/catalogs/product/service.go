package product

import (
	"context"
	"fmt"
	"time"

	"tillpoint/internal/core/apperror"
	"tillpoint/internal/core/tx"
	"tillpoint/internal/domain"
	"tillpoint/pkg/numerator"
)

// Service provides business logic for the Product catalog.
// Uses composition with domain.CatalogService for common CRUD operations.
type Service struct {
	*domain.CatalogService[*Product] // Embedded for delegation
	repo                             Repository
	numerator                        *numerator.Service
}

// NewService creates a new Product service.
func NewService(
	repo Repository,
	txManager tx.Manager,
	num *numerator.Service,
) *Service {
	base := domain.NewCatalogService(domain.CatalogServiceConfig[*Product]{
		Repo:       repo,
		TxManager:  txManager,
		EntityName: "product",
	})

	svc := &Service{
		CatalogService: base,
		repo:           repo,
		numerator:      num,
	}

	base.Hooks().OnBeforeCreate(svc.prepareForCreate)

	return svc
}

// prepareForCreate handles SKU generation and barcode uniqueness.
func (s *Service) prepareForCreate(ctx context.Context, p *Product) error {
	if p.Code == "" {
		code, err := s.numerator.GetNextNumber(ctx, numerator.DefaultConfig("PRD"), nil, time.Now())
		if err != nil {
			return fmt.Errorf("generate code: %w", err)
		}
		p.Code = code
	}

	if p.Barcode != nil && *p.Barcode != "" {
		existing, err := s.repo.GetByBarcode(ctx, *p.Barcode)
		if err == nil && existing != nil {
			return apperror.NewDuplicate("product", "barcode", *p.Barcode)
		}
		if err != nil && !apperror.IsNotFound(err) {
			return fmt.Errorf("check barcode: %w", err)
		}
	}

	return nil
}

// GetByBarcode retrieves a product by barcode (till scan path).
func (s *Service) GetByBarcode(ctx context.Context, barcode string) (*Product, error) {
	p, err := s.repo.GetByBarcode(ctx, barcode)
	if err != nil {
		if apperror.IsNotFound(err) {
			return nil, apperror.NewNotFound("product", barcode)
		}
		return nil, err
	}
	return p, nil
}
