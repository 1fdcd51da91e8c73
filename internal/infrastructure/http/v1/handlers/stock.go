package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"tillpoint/internal/core/apperror"
	"tillpoint/internal/core/entity"
	"tillpoint/internal/core/id"
	"tillpoint/internal/core/tx"
	"tillpoint/internal/domain/registers/stock"
	"tillpoint/internal/infrastructure/http/v1/dto"
)

// StockHandler handles HTTP requests for the stock register.
// Read endpoints run under the read-only transaction manager so a
// balance listing sees one consistent snapshot.
type StockHandler struct {
	*BaseHandler
	service  *stock.Service
	readOnly tx.ReadOnlyManager
}

// NewStockHandler creates a new stock register handler.
func NewStockHandler(base *BaseHandler, service *stock.Service, readOnly tx.ReadOnlyManager) *StockHandler {
	return &StockHandler{
		BaseHandler: base,
		service:     service,
		readOnly:    readOnly,
	}
}

// GetBalances handles GET /registers/stock/balances
func (h *StockHandler) GetBalances(c *gin.Context) {
	filter := stock.BalanceFilter{
		ExcludeZero: c.Query("excludeZero") != "false",
		Limit:       h.ParseIntQuery(c, "limit", 100),
		Offset:      h.ParseIntQuery(c, "offset", 0),
	}

	for _, raw := range c.QueryArray("productId") {
		parsed, err := id.Parse(raw)
		if err != nil {
			h.Error(c, apperror.NewValidation("invalid productId format").WithDetail("value", raw))
			return
		}
		filter.ProductIDs = append(filter.ProductIDs, parsed)
	}

	var balances []entity.StockBalance
	err := h.readOnly.ReadOnly(c.Request.Context(), "stock.balances", func(ctx context.Context) error {
		var err error
		balances, err = h.service.GetBalances(ctx, filter)
		return err
	})
	if err != nil {
		h.Error(c, err)
		return
	}

	items := make([]dto.StockBalanceResponse, len(balances))
	for i, b := range balances {
		items[i] = dto.FromStockBalance(b)
	}

	c.JSON(http.StatusOK, dto.StockBalanceListResponse{Items: items})
}

// GetBalance handles GET /registers/stock/balances/:productId
func (h *StockHandler) GetBalance(c *gin.Context) {
	ctx := c.Request.Context()

	productID, err := id.Parse(c.Param("productId"))
	if err != nil {
		h.Error(c, apperror.NewValidation("invalid productId format"))
		return
	}

	balance, err := h.service.GetBalance(ctx, productID)
	if err != nil {
		h.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.FromStockBalance(balance))
}

// GetMovements handles GET /registers/stock/movements
func (h *StockHandler) GetMovements(c *gin.Context) {
	ctx := c.Request.Context()

	productIDStr := c.Query("productId")
	if productIDStr == "" {
		h.Error(c, apperror.NewValidation("productId is required"))
		return
	}

	productID, err := id.Parse(productIDStr)
	if err != nil {
		h.Error(c, apperror.NewValidation("invalid productId format"))
		return
	}

	filter := stock.MovementFilter{
		Limit:  h.ParseIntQuery(c, "limit", 100),
		Offset: h.ParseIntQuery(c, "offset", 0),
	}

	if recordType := c.Query("recordType"); recordType != "" {
		rt := entity.RecordType(recordType)
		filter.RecordType = &rt
	}
	if dateFrom := c.Query("dateFrom"); dateFrom != "" {
		if parsed, err := time.Parse(time.RFC3339, dateFrom); err == nil {
			filter.FromDate = &parsed
		}
	}
	if dateTo := c.Query("dateTo"); dateTo != "" {
		if parsed, err := time.Parse(time.RFC3339, dateTo); err == nil {
			filter.ToDate = &parsed
		}
	}

	movements, err := h.service.GetMovementHistory(ctx, productID, filter)
	if err != nil {
		h.Error(c, err)
		return
	}

	items := make([]dto.StockMovementResponse, len(movements))
	for i, m := range movements {
		items[i] = dto.FromStockMovement(m)
	}

	c.JSON(http.StatusOK, dto.StockMovementListResponse{Items: items})
}

// Recalculate handles POST /registers/stock/recalculate/:productId
// Maintenance endpoint: rebuilds one balance from its movements.
func (h *StockHandler) Recalculate(c *gin.Context) {
	ctx := c.Request.Context()

	productID, err := id.Parse(c.Param("productId"))
	if err != nil {
		h.Error(c, apperror.NewValidation("invalid productId format"))
		return
	}

	if err := h.service.Recalculate(ctx, productID); err != nil {
		h.Error(c, err)
		return
	}

	h.Success(c, "balance recalculated")
}
