package dto

import (
	"time"

	"github.com/shopspring/decimal"

	"tillpoint/internal/core/id"
	"tillpoint/internal/domain/documents/receipt"
)

// --- Request DTOs ---

type CreateReceiptRequest struct {
	Number          string               `json:"number,omitempty"`
	Date            *time.Time           `json:"date,omitempty"`
	CustomerID      string               `json:"customerId,omitempty"`
	TerminalID      string               `json:"terminalId" binding:"required"`
	PaymentMethod   string               `json:"paymentMethod" binding:"required"`
	Comment         string               `json:"comment,omitempty"`
	Lines           []ReceiptLineRequest `json:"lines" binding:"required,min=1,dive"`
	PostImmediately bool                 `json:"postImmediately,omitempty"`
}

type ReceiptLineRequest struct {
	ProductID       string          `json:"productId" binding:"required"`
	ProductName     string          `json:"productName" binding:"required"`
	Quantity        decimal.Decimal `json:"quantity" binding:"required"`
	UnitPrice       decimal.Decimal `json:"unitPrice"`
	DiscountPercent decimal.Decimal `json:"discountPercent"`
}

func (r *CreateReceiptRequest) ToEntity() *receipt.Receipt {
	doc := receipt.NewReceipt(r.TerminalID, receipt.PaymentMethod(r.PaymentMethod))
	doc.Number = r.Number
	doc.Comment = r.Comment

	if r.Date != nil {
		doc.Date = *r.Date
	}
	if r.CustomerID != "" {
		if customerID, err := id.Parse(r.CustomerID); err == nil {
			doc.CustomerID = &customerID
		}
	}

	applyLines(doc, r.Lines)
	return doc
}

type UpdateReceiptRequest struct {
	Date          *time.Time           `json:"date,omitempty"`
	CustomerID    *string              `json:"customerId,omitempty"`
	PaymentMethod *string              `json:"paymentMethod,omitempty"`
	Comment       *string              `json:"comment,omitempty"`
	Lines         []ReceiptLineRequest `json:"lines,omitempty"`
}

func (r *UpdateReceiptRequest) ApplyTo(doc *receipt.Receipt) {
	if r.Date != nil {
		doc.Date = *r.Date
	}
	if r.CustomerID != nil {
		if *r.CustomerID == "" {
			doc.CustomerID = nil
		} else if customerID, err := id.Parse(*r.CustomerID); err == nil {
			doc.CustomerID = &customerID
		}
	}
	if r.PaymentMethod != nil {
		doc.PaymentMethod = receipt.PaymentMethod(*r.PaymentMethod)
	}
	if r.Comment != nil {
		doc.Comment = *r.Comment
	}
	if r.Lines != nil {
		doc.Lines = doc.Lines[:0]
		doc.TotalQuantity = decimal.Zero
		doc.Subtotal = decimal.Zero
		doc.DiscountTotal = decimal.Zero
		doc.Total = decimal.Zero
		applyLines(doc, r.Lines)
	}
}

func applyLines(doc *receipt.Receipt, lines []ReceiptLineRequest) {
	for _, line := range lines {
		productID, _ := id.Parse(line.ProductID)
		doc.AddLine(productID, line.ProductName, line.Quantity, line.UnitPrice, line.DiscountPercent)
	}
}

// --- Response DTOs ---

type ReceiptResponse struct {
	ID            string                `json:"id"`
	Number        string                `json:"number"`
	Date          time.Time             `json:"date"`
	Posted        bool                  `json:"posted"`
	PostedVersion int                   `json:"postedVersion,omitempty"`
	CustomerID    *string               `json:"customerId,omitempty"`
	TerminalID    string                `json:"terminalId"`
	PaymentMethod string                `json:"paymentMethod"`
	TotalQuantity decimal.Decimal       `json:"totalQuantity"`
	Subtotal      decimal.Decimal       `json:"subtotal"`
	DiscountTotal decimal.Decimal       `json:"discountTotal"`
	Total         decimal.Decimal       `json:"total"`
	Comment       string                `json:"comment,omitempty"`
	Lines         []ReceiptLineResponse `json:"lines,omitempty"`
	DeletionMark  bool                  `json:"deletionMark,omitempty"`
	Version       int                   `json:"version"`
	CreatedAt     time.Time             `json:"createdAt"`
	UpdatedAt     time.Time             `json:"updatedAt"`
}

type ReceiptLineResponse struct {
	LineID          string          `json:"lineId"`
	LineNo          int             `json:"lineNo"`
	ProductID       string          `json:"productId"`
	ProductName     string          `json:"productName"`
	Quantity        decimal.Decimal `json:"quantity"`
	UnitPrice       decimal.Decimal `json:"unitPrice"`
	DiscountPercent decimal.Decimal `json:"discountPercent"`
	Amount          decimal.Decimal `json:"amount"`
}

func FromReceipt(doc *receipt.Receipt) *ReceiptResponse {
	resp := &ReceiptResponse{
		ID:            doc.ID.String(),
		Number:        doc.Number,
		Date:          doc.Date,
		Posted:        doc.Posted,
		PostedVersion: doc.PostedVersion,
		TerminalID:    doc.TerminalID,
		PaymentMethod: string(doc.PaymentMethod),
		TotalQuantity: doc.TotalQuantity,
		Subtotal:      doc.Subtotal,
		DiscountTotal: doc.DiscountTotal,
		Total:         doc.Total,
		Comment:       doc.Comment,
		DeletionMark:  doc.DeletionMark,
		Version:       doc.Version,
		CreatedAt:     doc.CreatedAt,
		UpdatedAt:     doc.UpdatedAt,
	}

	if doc.CustomerID != nil {
		customerID := doc.CustomerID.String()
		resp.CustomerID = &customerID
	}

	resp.Lines = make([]ReceiptLineResponse, len(doc.Lines))
	for i, line := range doc.Lines {
		resp.Lines[i] = ReceiptLineResponse{
			LineID:          line.LineID.String(),
			LineNo:          line.LineNo,
			ProductID:       line.ProductID.String(),
			ProductName:     line.ProductName,
			Quantity:        line.Quantity,
			UnitPrice:       line.UnitPrice,
			DiscountPercent: line.DiscountPercent,
			Amount:          line.Amount,
		}
	}

	return resp
}
