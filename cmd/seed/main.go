// Package main provides a CLI tool for seeding the database with demo data.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/shopspring/decimal"

	"tillpoint/internal/core/entity"
	"tillpoint/internal/core/id"
	"tillpoint/internal/domain/catalogs/customer"
	"tillpoint/internal/domain/catalogs/product"
	"tillpoint/internal/domain/registers/stock"
	"tillpoint/internal/infrastructure/storage/postgres"
	"tillpoint/internal/infrastructure/storage/postgres/catalog_repo"
	"tillpoint/internal/infrastructure/storage/postgres/register_repo"
	"tillpoint/pkg/logger"
	"tillpoint/pkg/numerator"
)

func main() {
	log, err := logger.New(logger.Config{
		Level:       "info",
		Development: true,
	})
	if err != nil {
		fmt.Printf("failed to create logger: %v\n", err)
		os.Exit(1)
	}

	ctx := context.Background()

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		log.Fatal("DATABASE_URL environment variable is required")
	}

	pool, err := postgres.NewPool(ctx, postgres.DefaultPoolConfig(dbURL))
	if err != nil {
		log.Fatalw("failed to connect to database", "error", err)
	}
	defer pool.Close()

	log.Info("connected to database")

	txManager := postgres.NewTxManagerFromPool(pool)
	num := numerator.New(postgres.NewSequenceQuerier(txManager))

	productService := product.NewService(catalog_repo.NewProductRepo(txManager), txManager, num)
	customerService := customer.NewService(catalog_repo.NewCustomerRepo(txManager), txManager, num)
	stockService := stock.NewService(register_repo.NewStockRepo(txManager))

	products, err := seedProducts(ctx, productService, log)
	if err != nil {
		log.Fatalw("failed to seed products", "error", err)
	}

	if err := seedCustomers(ctx, customerService, log); err != nil {
		log.Fatalw("failed to seed customers", "error", err)
	}

	if err := seedOpeningStock(ctx, txManager, stockService, products, log); err != nil {
		log.Fatalw("failed to seed opening stock", "error", err)
	}

	log.Info("seeding complete")
}

func seedProducts(ctx context.Context, svc *product.Service, log *logger.Logger) ([]*product.Product, error) {
	barcode := func(s string) *string { return &s }

	items := []*product.Product{
		product.NewProduct("", "Mineral water 0.5l", product.UnitPiece, decimal.RequireFromString("1.29")),
		product.NewProduct("", "Espresso beans 1kg", product.UnitPiece, decimal.RequireFromString("14.90")),
		product.NewProduct("", "Bananas", product.UnitKilogram, decimal.RequireFromString("2.49")),
		product.NewProduct("", "Olive oil 0.75l", product.UnitPiece, decimal.RequireFromString("8.99")),
		product.NewProduct("", "Fresh milk", product.UnitLiter, decimal.RequireFromString("1.09")),
	}
	items[0].Barcode = barcode("4006381333931")
	items[1].Barcode = barcode("4006381333948")
	items[2].IsWeighted = true

	for _, p := range items {
		if err := svc.Create(ctx, p); err != nil {
			return nil, fmt.Errorf("create product %q: %w", p.Name, err)
		}
		log.Infow("product created", "code", p.Code, "name", p.Name)
	}

	return items, nil
}

func seedCustomers(ctx context.Context, svc *customer.Service, log *logger.Logger) error {
	phone := "+49 170 5550101"

	regular := customer.NewCustomer("", "Anna Schmidt")
	regular.Phone = &phone
	regular.DiscountPercent = decimal.NewFromInt(5)

	staff := customer.NewCustomer("", "Store staff card")
	staff.DiscountPercent = decimal.NewFromInt(15)

	for _, c := range []*customer.Customer{regular, staff} {
		if err := svc.Create(ctx, c); err != nil {
			return fmt.Errorf("create customer %q: %w", c.Name, err)
		}
		log.Infow("customer created", "code", c.Code, "name", c.Name)
	}

	return nil
}

// seedOpeningStock records an opening-balance posting so the demo
// products can be sold right away.
func seedOpeningStock(
	ctx context.Context,
	txManager *postgres.TxManager,
	svc *stock.Service,
	products []*product.Product,
	log *logger.Logger,
) error {
	recorderID := id.New()
	period := time.Now().UTC()

	movements := make([]entity.StockMovement, 0, len(products))
	for _, p := range products {
		movements = append(movements, entity.NewStockMovement(
			recorderID,
			"OpeningBalance",
			1,
			period,
			entity.RecordTypeReceipt,
			p.ID,
			decimal.NewFromInt(100),
		))
	}

	err := txManager.RunInTransaction(ctx, "seed.opening-stock", func(ctx context.Context) error {
		return svc.ApplyMovements(ctx, movements)
	})
	if err != nil {
		return err
	}

	log.Infow("opening stock recorded", "products", len(products), "quantity_each", 100)
	return nil
}
