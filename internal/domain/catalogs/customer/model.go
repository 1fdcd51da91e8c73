// Package customer provides the Customer catalog.
// Customers are loyalty-card holders; the card number is the catalog code.
package customer

import (
	"context"
	"regexp"

	"github.com/shopspring/decimal"

	"tillpoint/internal/core/apperror"
	"tillpoint/internal/core/entity"
)

// Customer represents a loyalty-card holder.
type Customer struct {
	entity.Catalog

	// Phone in free form
	Phone *string `db:"phone" json:"phone,omitempty"`

	// Email for receipts by mail
	Email *string `db:"email" json:"email,omitempty"`

	// DiscountPercent is the loyalty discount applied to receipt lines (0..100)
	DiscountPercent decimal.Decimal `db:"discount_percent" json:"discountPercent"`

	// IsActive indicates the card is valid
	IsActive bool `db:"is_active" json:"isActive"`
}

// NewCustomer creates a new Customer with required fields.
func NewCustomer(code, name string) *Customer {
	return &Customer{
		Catalog:  entity.NewCatalog(code, name),
		IsActive: true,
	}
}

// Validate implements entity.Validatable interface.
func (c *Customer) Validate(ctx context.Context) error {
	if err := c.Catalog.Validate(ctx); err != nil {
		return err
	}

	if c.DiscountPercent.IsNegative() || c.DiscountPercent.GreaterThan(decimal.NewFromInt(100)) {
		return apperror.NewValidation("discount must be between 0 and 100").
			WithDetail("field", "discountPercent").
			WithDetail("value", c.DiscountPercent.String())
	}

	if c.Email != nil && *c.Email != "" && !isValidEmail(*c.Email) {
		return apperror.NewValidation("invalid email").
			WithDetail("field", "email")
	}

	return nil
}

func isValidEmail(email string) bool {
	return regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`).MatchString(email)
}
