// Package receipt provides the sale receipt document.
// A receipt records what a till sold; posting it writes expense
// movements to the stock register.
package receipt

import (
	"context"

	"github.com/shopspring/decimal"

	"tillpoint/internal/core/apperror"
	"tillpoint/internal/core/entity"
	"tillpoint/internal/core/id"
	"tillpoint/internal/core/types"
)

// RecorderType identifies receipt movements in the stock register.
const RecorderType = "Receipt"

// PaymentMethod is how the customer paid.
type PaymentMethod string

const (
	PaymentCash PaymentMethod = "cash"
	PaymentCard PaymentMethod = "card"
)

// Receipt represents a sale receipt document.
type Receipt struct {
	entity.Document

	// CustomerID references the loyalty card holder, if one was scanned
	CustomerID *id.ID `db:"customer_id" json:"customerId,omitempty"`

	// TerminalID identifies the till that produced the receipt
	TerminalID string `db:"terminal_id" json:"terminalId"`

	// PaymentMethod: cash or card
	PaymentMethod PaymentMethod `db:"payment_method" json:"paymentMethod"`

	// Totals (calculated from lines)
	TotalQuantity types.Quantity `db:"total_quantity" json:"totalQuantity"`
	Subtotal      types.Money    `db:"subtotal" json:"subtotal"`
	DiscountTotal types.Money    `db:"discount_total" json:"discountTotal"`
	Total         types.Money    `db:"total" json:"total"`

	// Table part: sold goods
	Lines []ReceiptLine `db:"-" json:"lines"`
}

// ReceiptLine represents one sold item.
type ReceiptLine struct {
	LineID id.ID `db:"line_id" json:"lineId"`
	LineNo int   `db:"line_no" json:"lineNo"`

	ProductID id.ID `db:"product_id" json:"productId"`

	// ProductName is denormalized for printing even after catalog edits
	ProductName string `db:"product_name" json:"productName"`

	Quantity        types.Quantity  `db:"quantity" json:"quantity"`
	UnitPrice       types.Money     `db:"unit_price" json:"unitPrice"`
	DiscountPercent decimal.Decimal `db:"discount_percent" json:"discountPercent"`

	// Amount is the line total after discount, rounded to cents
	Amount types.Money `db:"amount" json:"amount"`
}

// NewReceipt creates a new receipt document for a till.
func NewReceipt(terminalID string, payment PaymentMethod) *Receipt {
	return &Receipt{
		Document:      entity.NewDocument(),
		TerminalID:    terminalID,
		PaymentMethod: payment,
		Lines:         make([]ReceiptLine, 0),
	}
}

// AddLine adds a sold item and recalculates totals.
func (r *Receipt) AddLine(productID id.ID, productName string, quantity types.Quantity, unitPrice types.Money, discountPercent decimal.Decimal) {
	gross := quantity.Mul(unitPrice)
	discount := gross.Mul(discountPercent).Div(decimal.NewFromInt(100))

	line := ReceiptLine{
		LineID:          id.New(),
		LineNo:          len(r.Lines) + 1,
		ProductID:       productID,
		ProductName:     productName,
		Quantity:        quantity,
		UnitPrice:       unitPrice,
		DiscountPercent: discountPercent,
		Amount:          types.RoundMoney(gross.Sub(discount)),
	}

	r.Lines = append(r.Lines, line)
	r.recalculateTotals()
}

func (r *Receipt) recalculateTotals() {
	r.TotalQuantity = decimal.Zero
	r.Subtotal = decimal.Zero
	r.Total = decimal.Zero

	for _, line := range r.Lines {
		r.TotalQuantity = r.TotalQuantity.Add(line.Quantity)
		r.Subtotal = r.Subtotal.Add(types.RoundMoney(line.Quantity.Mul(line.UnitPrice)))
		r.Total = r.Total.Add(line.Amount)
	}
	r.DiscountTotal = r.Subtotal.Sub(r.Total)
}

// Validate implements entity.Validatable.
func (r *Receipt) Validate(ctx context.Context) error {
	if err := r.Document.Validate(ctx); err != nil {
		return err
	}

	if r.TerminalID == "" {
		return apperror.NewValidation("terminal is required").
			WithDetail("field", "terminalId")
	}

	switch r.PaymentMethod {
	case PaymentCash, PaymentCard:
	default:
		return apperror.NewValidation("unknown payment method").
			WithDetail("field", "paymentMethod").
			WithDetail("value", string(r.PaymentMethod))
	}

	for i, line := range r.Lines {
		if id.IsNil(line.ProductID) {
			return apperror.NewValidation("line product is required").
				WithDetail("line", i+1)
		}
		if !line.Quantity.IsPositive() {
			return apperror.NewValidation("line quantity must be positive").
				WithDetail("line", i+1)
		}
		if line.UnitPrice.IsNegative() {
			return apperror.NewValidation("line price cannot be negative").
				WithDetail("line", i+1)
		}
	}

	return nil
}

// StockMovements builds the expense movements this receipt posts.
// Quantities for the same product are recorded per line; the register
// aggregates them into the balance.
func (r *Receipt) StockMovements() []entity.StockMovement {
	movements := make([]entity.StockMovement, 0, len(r.Lines))
	for _, line := range r.Lines {
		movements = append(movements, entity.NewStockMovement(
			r.ID,
			RecorderType,
			r.PostedVersion,
			r.Date,
			entity.RecordTypeExpense,
			line.ProductID,
			line.Quantity,
		))
	}
	return movements
}
