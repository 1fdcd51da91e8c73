package dto

import (
	"github.com/shopspring/decimal"

	"tillpoint/internal/domain/catalogs/customer"
)

// --- Request DTOs ---

type CreateCustomerRequest struct {
	Code            string          `json:"code,omitempty"`
	Name            string          `json:"name" binding:"required"`
	Phone           *string         `json:"phone,omitempty"`
	Email           *string         `json:"email,omitempty"`
	DiscountPercent decimal.Decimal `json:"discountPercent"`
}

func (r *CreateCustomerRequest) ToEntity() *customer.Customer {
	c := customer.NewCustomer(r.Code, r.Name)
	c.Phone = r.Phone
	c.Email = r.Email
	c.DiscountPercent = r.DiscountPercent
	return c
}

type UpdateCustomerRequest struct {
	Code            *string          `json:"code,omitempty"`
	Name            *string          `json:"name,omitempty"`
	Phone           *string          `json:"phone,omitempty"`
	Email           *string          `json:"email,omitempty"`
	DiscountPercent *decimal.Decimal `json:"discountPercent,omitempty"`
	IsActive        *bool            `json:"isActive,omitempty"`
}

func (r *UpdateCustomerRequest) ApplyTo(c *customer.Customer) {
	if r.Code != nil {
		c.Code = *r.Code
	}
	if r.Name != nil {
		c.Name = *r.Name
	}
	if r.Phone != nil {
		c.Phone = r.Phone
	}
	if r.Email != nil {
		c.Email = r.Email
	}
	if r.DiscountPercent != nil {
		c.DiscountPercent = *r.DiscountPercent
	}
	if r.IsActive != nil {
		c.IsActive = *r.IsActive
	}
}

// --- Response DTOs ---

type CustomerResponse struct {
	ID              string          `json:"id"`
	Code            string          `json:"code"`
	Name            string          `json:"name"`
	Phone           *string         `json:"phone,omitempty"`
	Email           *string         `json:"email,omitempty"`
	DiscountPercent decimal.Decimal `json:"discountPercent"`
	IsActive        bool            `json:"isActive"`
	DeletionMark    bool            `json:"deletionMark,omitempty"`
	Version         int             `json:"version"`
}

func FromCustomer(c *customer.Customer) *CustomerResponse {
	return &CustomerResponse{
		ID:              c.ID.String(),
		Code:            c.Code,
		Name:            c.Name,
		Phone:           c.Phone,
		Email:           c.Email,
		DiscountPercent: c.DiscountPercent,
		IsActive:        c.IsActive,
		DeletionMark:    c.DeletionMark,
		Version:         c.Version,
	}
}
