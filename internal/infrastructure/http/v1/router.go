// Package v1 provides HTTP API version 1.
package v1

import (
	"github.com/gin-gonic/gin"

	"tillpoint/internal/domain/catalogs/customer"
	"tillpoint/internal/domain/catalogs/product"
	"tillpoint/internal/domain/documents/receipt"
	"tillpoint/internal/domain/registers/stock"
	"tillpoint/internal/infrastructure/http/v1/handlers"
	"tillpoint/internal/infrastructure/http/v1/middleware"
	"tillpoint/internal/infrastructure/storage/postgres"
	"tillpoint/internal/infrastructure/storage/postgres/catalog_repo"
	"tillpoint/internal/infrastructure/storage/postgres/document_repo"
	"tillpoint/internal/infrastructure/storage/postgres/register_repo"
	"tillpoint/pkg/logger"
	"tillpoint/pkg/numerator"
)

// RouterConfig holds router dependencies.
type RouterConfig struct {
	// Pool is the database connection pool (for health checks)
	Pool *postgres.Pool

	// TxManager runs all mutating operations
	TxManager *postgres.TxManager

	// Logger for request logging
	Logger *logger.Logger

	// Numerator for document number generation
	Numerator *numerator.Service

	// Outbox enqueues integration events during posting
	Outbox *postgres.OutboxStore

	// Audit records entity snapshots
	Audit *postgres.AuditService
}

// NewRouter creates and configures the Gin router.
func NewRouter(cfg RouterConfig) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()

	// Global middleware (order matters!)
	router.Use(middleware.Recovery())
	router.Use(middleware.Trace())
	router.Use(middleware.Logger(cfg.Logger))
	router.Use(middleware.ErrorHandler())

	// Health endpoints
	healthHandler := handlers.NewHealthHandler(cfg.Pool, cfg.TxManager)
	health := router.Group("/health")
	{
		health.GET("/live", healthHandler.Live)
		health.GET("/ready", healthHandler.Ready)
		health.GET("/info", healthHandler.Info)
	}

	// API v1
	v1 := router.Group("/api/v1")
	v1.Use(middleware.Operator())
	{
		registerCatalogRoutes(v1, cfg)
		registerDocumentRoutes(v1, cfg)
		registerRegisterRoutes(v1, cfg)
	}

	return router
}

// registerCatalogRoutes registers catalog endpoints.
func registerCatalogRoutes(rg *gin.RouterGroup, cfg RouterConfig) {
	catalogs := rg.Group("/catalog")
	baseHandler := handlers.NewBaseHandler()

	// --- PRODUCTS ---
	{
		repo := catalog_repo.NewProductRepo(cfg.TxManager)
		service := product.NewService(repo, cfg.TxManager, cfg.Numerator)
		handler := handlers.NewProductHandler(baseHandler, service)

		group := catalogs.Group("/products")
		handlers.RegisterCatalogRoutes(group, handler.CatalogHandler)
		group.GET("/barcode/:barcode", handler.GetByBarcode)
	}

	// --- CUSTOMERS ---
	{
		repo := catalog_repo.NewCustomerRepo(cfg.TxManager)
		service := customer.NewService(repo, cfg.TxManager, cfg.Numerator)
		handler := handlers.NewCustomerHandler(baseHandler, service)
		handlers.RegisterCatalogRoutes(catalogs.Group("/customers"), handler)
	}
}

// registerDocumentRoutes registers document endpoints.
func registerDocumentRoutes(rg *gin.RouterGroup, cfg RouterConfig) {
	docsGroup := rg.Group("/documents")
	baseHandler := handlers.NewBaseHandler()

	stockRepo := register_repo.NewStockRepo(cfg.TxManager)
	stockService := stock.NewService(stockRepo)

	// --- RECEIPTS ---
	{
		repo := document_repo.NewReceiptRepo(cfg.TxManager)
		service := receipt.NewService(receipt.ServiceConfig{
			Repo:      repo,
			TxManager: cfg.TxManager,
			Stock:     stockService,
			Numerator: cfg.Numerator,
			Outbox:    cfg.Outbox,
			Audit:     cfg.Audit,
		})

		handler := handlers.NewReceiptHandler(baseHandler, service)
		handler.RegisterRoutes(docsGroup.Group("/receipts"))
	}
}

// registerRegisterRoutes registers accumulation register endpoints.
func registerRegisterRoutes(rg *gin.RouterGroup, cfg RouterConfig) {
	registers := rg.Group("/registers")
	baseHandler := handlers.NewBaseHandler()

	stockRepo := register_repo.NewStockRepo(cfg.TxManager)
	stockService := stock.NewService(stockRepo)
	stockHandler := handlers.NewStockHandler(baseHandler, stockService, cfg.TxManager)

	stockGroup := registers.Group("/stock")
	{
		stockGroup.GET("/balances", stockHandler.GetBalances)
		stockGroup.GET("/balances/:productId", stockHandler.GetBalance)
		stockGroup.GET("/movements", stockHandler.GetMovements)
		stockGroup.POST("/recalculate/:productId", stockHandler.Recalculate)
	}
}
