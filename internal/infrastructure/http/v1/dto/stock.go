package dto

import (
	"time"

	"github.com/shopspring/decimal"

	"tillpoint/internal/core/entity"
)

// --- Response DTOs ---

type StockBalanceResponse struct {
	ProductID      string          `json:"productId"`
	Quantity       decimal.Decimal `json:"quantity"`
	LastMovementAt time.Time       `json:"lastMovementAt"`
	UpdatedAt      time.Time       `json:"updatedAt"`
}

func FromStockBalance(b entity.StockBalance) StockBalanceResponse {
	return StockBalanceResponse{
		ProductID:      b.ProductID.String(),
		Quantity:       b.Quantity,
		LastMovementAt: b.LastMovementAt,
		UpdatedAt:      b.UpdatedAt,
	}
}

type StockBalanceListResponse struct {
	Items []StockBalanceResponse `json:"items"`
}

type StockMovementResponse struct {
	LineID       string          `json:"lineId"`
	RecorderID   string          `json:"recorderId"`
	RecorderType string          `json:"recorderType"`
	Period       time.Time       `json:"period"`
	RecordType   string          `json:"recordType"`
	ProductID    string          `json:"productId"`
	Quantity     decimal.Decimal `json:"quantity"`
	CreatedAt    time.Time       `json:"createdAt"`
}

func FromStockMovement(m entity.StockMovement) StockMovementResponse {
	return StockMovementResponse{
		LineID:       m.LineID.String(),
		RecorderID:   m.RecorderID.String(),
		RecorderType: m.RecorderType,
		Period:       m.Period,
		RecordType:   string(m.RecordType),
		ProductID:    m.ProductID.String(),
		Quantity:     m.Quantity,
		CreatedAt:    m.CreatedAt,
	}
}

type StockMovementListResponse struct {
	Items []StockMovementResponse `json:"items"`
}
