package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"tillpoint/internal/core/apperror"
	"tillpoint/internal/core/id"
	"tillpoint/internal/domain"
	"tillpoint/internal/domain/documents/receipt"
	"tillpoint/internal/infrastructure/http/v1/dto"
)

// ReceiptHandler handles HTTP requests for sale receipts.
type ReceiptHandler struct {
	*BaseHandler
	service *receipt.Service
}

// NewReceiptHandler creates a new receipt handler.
func NewReceiptHandler(base *BaseHandler, service *receipt.Service) *ReceiptHandler {
	return &ReceiptHandler{
		BaseHandler: base,
		service:     service,
	}
}

// Create handles POST /documents/receipts
func (h *ReceiptHandler) Create(c *gin.Context) {
	ctx := c.Request.Context()

	var req dto.CreateReceiptRequest
	if !h.BindJSON(c, &req) {
		return
	}

	doc := req.ToEntity()

	if err := h.service.Create(ctx, doc); err != nil {
		h.Error(c, err)
		return
	}

	// The till usually finalizes the sale in one call: create and post.
	if req.PostImmediately {
		if err := h.service.Post(ctx, doc.ID); err != nil {
			h.Error(c, err)
			return
		}
		posted, err := h.service.GetByID(ctx, doc.ID)
		if err != nil {
			h.Error(c, err)
			return
		}
		doc = posted
	}

	c.JSON(http.StatusCreated, dto.FromReceipt(doc))
}

// Get handles GET /documents/receipts/:id
func (h *ReceiptHandler) Get(c *gin.Context) {
	ctx := c.Request.Context()

	receiptID, err := id.Parse(c.Param("id"))
	if err != nil {
		h.Error(c, apperror.NewValidation("invalid id format"))
		return
	}

	doc, err := h.service.GetByID(ctx, receiptID)
	if err != nil {
		h.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.FromReceipt(doc))
}

// GetByNumber handles GET /documents/receipts/number/:number
func (h *ReceiptHandler) GetByNumber(c *gin.Context) {
	ctx := c.Request.Context()

	doc, err := h.service.GetByNumber(ctx, c.Param("number"))
	if err != nil {
		h.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.FromReceipt(doc))
}

// Update handles PUT /documents/receipts/:id
func (h *ReceiptHandler) Update(c *gin.Context) {
	ctx := c.Request.Context()

	receiptID, err := id.Parse(c.Param("id"))
	if err != nil {
		h.Error(c, apperror.NewValidation("invalid id format"))
		return
	}

	var req dto.UpdateReceiptRequest
	if !h.BindJSON(c, &req) {
		return
	}

	doc, err := h.service.GetByID(ctx, receiptID)
	if err != nil {
		h.Error(c, err)
		return
	}

	req.ApplyTo(doc)

	if err := h.service.Update(ctx, doc); err != nil {
		h.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.FromReceipt(doc))
}

// Delete handles DELETE /documents/receipts/:id
func (h *ReceiptHandler) Delete(c *gin.Context) {
	ctx := c.Request.Context()

	receiptID, err := id.Parse(c.Param("id"))
	if err != nil {
		h.Error(c, apperror.NewValidation("invalid id format"))
		return
	}

	if err := h.service.Delete(ctx, receiptID); err != nil {
		h.Error(c, err)
		return
	}

	h.NoContent(c)
}

// List handles GET /documents/receipts
func (h *ReceiptHandler) List(c *gin.Context) {
	ctx := c.Request.Context()

	filter := receipt.ListFilter{
		ListFilter: domain.DefaultListFilter(),
	}
	filter.Search = c.Query("search")
	filter.Limit = h.ParseIntQuery(c, "limit", 50)
	filter.Offset = h.ParseIntQuery(c, "offset", 0)
	filter.IncludeDeleted = c.Query("includeDeleted") == "true"
	filter.TerminalID = c.Query("terminalId")

	if posted := c.Query("posted"); posted != "" {
		val := posted == "true"
		filter.Posted = &val
	}
	if customerID := c.Query("customerId"); customerID != "" {
		if parsed, err := id.Parse(customerID); err == nil {
			filter.CustomerID = &parsed
		}
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

	result, err := h.service.List(ctx, filter)
	if err != nil {
		h.Error(c, err)
		return
	}

	items := make([]any, len(result.Items))
	for i, item := range result.Items {
		items[i] = dto.FromReceipt(item)
	}

	c.JSON(http.StatusOK, dto.ListResponse{
		Items:      items,
		TotalCount: result.TotalCount,
		Limit:      result.Limit,
		Offset:     result.Offset,
	})
}

// Post handles POST /documents/receipts/:id/post
func (h *ReceiptHandler) Post(c *gin.Context) {
	ctx := c.Request.Context()

	receiptID, err := id.Parse(c.Param("id"))
	if err != nil {
		h.Error(c, apperror.NewValidation("invalid id format"))
		return
	}

	if err := h.service.Post(ctx, receiptID); err != nil {
		h.Error(c, err)
		return
	}

	doc, err := h.service.GetByID(ctx, receiptID)
	if err != nil {
		h.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.FromReceipt(doc))
}

// Void handles POST /documents/receipts/:id/void
func (h *ReceiptHandler) Void(c *gin.Context) {
	ctx := c.Request.Context()

	receiptID, err := id.Parse(c.Param("id"))
	if err != nil {
		h.Error(c, apperror.NewValidation("invalid id format"))
		return
	}

	if err := h.service.Void(ctx, receiptID); err != nil {
		h.Error(c, err)
		return
	}

	doc, err := h.service.GetByID(ctx, receiptID)
	if err != nil {
		h.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.FromReceipt(doc))
}

// RegisterRoutes registers receipt document routes.
func (h *ReceiptHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("", h.List)
	rg.GET("/:id", h.Get)
	rg.GET("/number/:number", h.GetByNumber)
	rg.POST("", h.Create)
	rg.PUT("/:id", h.Update)
	rg.DELETE("/:id", h.Delete)
	rg.POST("/:id/post", h.Post)
	rg.POST("/:id/void", h.Void)
}
