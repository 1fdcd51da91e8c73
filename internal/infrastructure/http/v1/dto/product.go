package dto

import (
	"github.com/shopspring/decimal"

	"tillpoint/internal/domain/catalogs/product"
)

// --- Request DTOs ---

type CreateProductRequest struct {
	Code        string          `json:"code,omitempty"`
	Name        string          `json:"name" binding:"required"`
	Barcode     *string         `json:"barcode,omitempty"`
	Unit        string          `json:"unit,omitempty"`
	Price       decimal.Decimal `json:"price"`
	IsWeighted  bool            `json:"isWeighted,omitempty"`
	Description *string         `json:"description,omitempty"`
}

func (r *CreateProductRequest) ToEntity() *product.Product {
	unit := product.Unit(r.Unit)
	if r.Unit == "" {
		unit = product.UnitPiece
	}

	p := product.NewProduct(r.Code, r.Name, unit, r.Price)
	p.Barcode = r.Barcode
	p.IsWeighted = r.IsWeighted
	p.Description = r.Description
	return p
}

type UpdateProductRequest struct {
	Code        *string          `json:"code,omitempty"`
	Name        *string          `json:"name,omitempty"`
	Barcode     *string          `json:"barcode,omitempty"`
	Unit        *string          `json:"unit,omitempty"`
	Price       *decimal.Decimal `json:"price,omitempty"`
	IsWeighted  *bool            `json:"isWeighted,omitempty"`
	IsActive    *bool            `json:"isActive,omitempty"`
	Description *string          `json:"description,omitempty"`
}

func (r *UpdateProductRequest) ApplyTo(p *product.Product) {
	if r.Code != nil {
		p.Code = *r.Code
	}
	if r.Name != nil {
		p.Name = *r.Name
	}
	if r.Barcode != nil {
		p.Barcode = r.Barcode
	}
	if r.Unit != nil {
		p.Unit = product.Unit(*r.Unit)
	}
	if r.Price != nil {
		p.Price = *r.Price
	}
	if r.IsWeighted != nil {
		p.IsWeighted = *r.IsWeighted
	}
	if r.IsActive != nil {
		p.IsActive = *r.IsActive
	}
	if r.Description != nil {
		p.Description = r.Description
	}
}

// --- Response DTOs ---

type ProductResponse struct {
	ID           string          `json:"id"`
	Code         string          `json:"code"`
	Name         string          `json:"name"`
	Barcode      *string         `json:"barcode,omitempty"`
	Unit         string          `json:"unit"`
	Price        decimal.Decimal `json:"price"`
	IsWeighted   bool            `json:"isWeighted"`
	IsActive     bool            `json:"isActive"`
	Description  *string         `json:"description,omitempty"`
	DeletionMark bool            `json:"deletionMark,omitempty"`
	Version      int             `json:"version"`
}

func FromProduct(p *product.Product) *ProductResponse {
	return &ProductResponse{
		ID:           p.ID.String(),
		Code:         p.Code,
		Name:         p.Name,
		Barcode:      p.Barcode,
		Unit:         string(p.Unit),
		Price:        p.Price,
		IsWeighted:   p.IsWeighted,
		IsActive:     p.IsActive,
		Description:  p.Description,
		DeletionMark: p.DeletionMark,
		Version:      p.Version,
	}
}
