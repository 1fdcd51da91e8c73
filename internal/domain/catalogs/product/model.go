// Package product provides the Product catalog.
// Products are the sellable items: priced goods identified by SKU and
// barcode, scanned or picked at the till.
package product

import (
	"context"

	"github.com/shopspring/decimal"

	"tillpoint/internal/core/apperror"
	"tillpoint/internal/core/entity"
	"tillpoint/internal/core/types"
)

// Unit defines how a product is measured at the till.
type Unit string

const (
	UnitPiece    Unit = "piece"
	UnitKilogram Unit = "kg"
	UnitLiter    Unit = "liter"
)

// Product represents a sellable item.
type Product struct {
	entity.Catalog

	// Barcode is the EAN/UPC scanned at the till
	Barcode *string `db:"barcode" json:"barcode,omitempty"`

	// Unit of measure
	Unit Unit `db:"unit" json:"unit"`

	// Price is the current retail price per unit
	Price types.Money `db:"price" json:"price"`

	// IsWeighted indicates the quantity comes from a scale (fractional)
	IsWeighted bool `db:"is_weighted" json:"isWeighted"`

	// IsActive indicates the product can be sold
	IsActive bool `db:"is_active" json:"isActive"`

	// Description
	Description *string `db:"description" json:"description,omitempty"`
}

// NewProduct creates a new Product with required fields.
func NewProduct(code, name string, unit Unit, price types.Money) *Product {
	return &Product{
		Catalog:  entity.NewCatalog(code, name),
		Unit:     unit,
		Price:    price,
		IsActive: true,
	}
}

// Validate implements entity.Validatable interface.
func (p *Product) Validate(ctx context.Context) error {
	if err := p.Catalog.Validate(ctx); err != nil {
		return err
	}

	if !isValidUnit(p.Unit) {
		return apperror.NewValidation("invalid unit").
			WithDetail("field", "unit").
			WithDetail("value", string(p.Unit))
	}

	if p.Price.LessThan(decimal.Zero) {
		return apperror.NewValidation("price cannot be negative").
			WithDetail("field", "price").
			WithDetail("value", p.Price.String())
	}

	return nil
}

// CanSell returns true if the product may appear on a receipt.
func (p *Product) CanSell() bool {
	return p.IsActive && !p.DeletionMark
}

func isValidUnit(u Unit) bool {
	switch u {
	case UnitPiece, UnitKilogram, UnitLiter:
		return true
	}
	return false
}
