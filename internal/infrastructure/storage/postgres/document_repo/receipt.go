// Package document_repo provides PostgreSQL implementations for
// document repositories.
package document_repo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/jackc/pgx/v5"

	"tillpoint/internal/core/apperror"
	appctx "tillpoint/internal/core/context"
	"tillpoint/internal/core/id"
	"tillpoint/internal/core/tx"
	"tillpoint/internal/domain"
	"tillpoint/internal/domain/documents/receipt"
	"tillpoint/internal/infrastructure/storage/postgres"
)

const (
	receiptsTable     = "doc_receipts"
	receiptLinesTable = "doc_receipt_lines"
)

// Compile-time check.
var _ receipt.Repository = (*ReceiptRepo)(nil)

// ReceiptRepo implements receipt.Repository.
type ReceiptRepo struct {
	txManager  *postgres.TxManager
	selectCols []string
}

// NewReceiptRepo creates a new receipt repository.
func NewReceiptRepo(txManager *postgres.TxManager) *ReceiptRepo {
	return &ReceiptRepo{
		txManager:  txManager,
		selectCols: postgres.ExtractDBColumns[receipt.Receipt](),
	}
}

func (r *ReceiptRepo) builder() squirrel.StatementBuilderType {
	return squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)
}

func (r *ReceiptRepo) baseSelect() squirrel.SelectBuilder {
	return r.builder().
		Select(r.selectCols...).
		From(receiptsTable)
}

// Create stores the receipt header and its lines.
func (r *ReceiptRepo) Create(ctx context.Context, doc *receipt.Receipt) error {
	doc.CreatedBy = appctx.GetOperatorID(ctx)
	doc.UpdatedBy = doc.CreatedBy

	data := postgres.StructToMap(doc)
	filtered := make(map[string]any, len(r.selectCols))
	for _, col := range r.selectCols {
		if val, ok := data[col]; ok {
			filtered[col] = val
		}
	}

	q := r.builder().
		Insert(receiptsTable).
		SetMap(filtered)

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}

	querier := r.txManager.GetQuerier(ctx)
	if _, err := querier.Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("insert receipt: %w", err)
	}

	return r.saveLines(ctx, doc.ID, doc.Lines)
}

// GetByID retrieves a receipt with its lines.
func (r *ReceiptRepo) GetByID(ctx context.Context, receiptID id.ID) (*receipt.Receipt, error) {
	q := r.baseSelect().
		Where(squirrel.Eq{"id": receiptID}).
		Limit(1)

	return r.getOne(ctx, q, receiptID.String())
}

// GetByNumber retrieves a receipt by its document number.
func (r *ReceiptRepo) GetByNumber(ctx context.Context, number string) (*receipt.Receipt, error) {
	q := r.baseSelect().
		Where(squirrel.Eq{"number": number}).
		Limit(1)

	return r.getOne(ctx, q, number)
}

func (r *ReceiptRepo) getOne(ctx context.Context, q squirrel.SelectBuilder, key string) (*receipt.Receipt, error) {
	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	doc := &receipt.Receipt{}
	querier := r.txManager.GetQuerier(ctx)
	if err := pgxscan.Get(ctx, querier, doc, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, apperror.NewNotFound(receiptsTable, key)
		}
		return nil, fmt.Errorf("get receipt: %w", err)
	}

	lines, err := r.getLines(ctx, doc.ID)
	if err != nil {
		return nil, err
	}
	doc.Lines = lines

	return doc, nil
}

// Update stores the header and replaces the lines, guarded by the
// document version. A mismatch returns *tx.ConflictError with a reload
// hook for the version.
func (r *ReceiptRepo) Update(ctx context.Context, doc *receipt.Receipt) error {
	doc.UpdatedAt = time.Now().UTC()
	doc.UpdatedBy = appctx.GetOperatorID(ctx)

	data := postgres.StructToMap(doc)
	version, _ := data["version"].(int)

	filtered := make(map[string]any, len(r.selectCols))
	for _, col := range r.selectCols {
		if col == "id" || col == "version" {
			continue
		}
		if val, ok := data[col]; ok {
			filtered[col] = val
		}
	}

	q := r.builder().
		Update(receiptsTable).
		SetMap(filtered).
		Set("version", squirrel.Expr("version + 1")).
		Where(squirrel.Eq{"id": doc.ID}).
		Where(squirrel.Eq{"version": version}).
		Suffix("RETURNING version")

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build update: %w", err)
	}

	querier := r.txManager.GetQuerier(ctx)
	var newVersion int
	err = querier.QueryRow(ctx, sql, args...).Scan(&newVersion)
	if errors.Is(err, pgx.ErrNoRows) {
		return tx.NewConflict(receiptsTable, doc.ID.String()).
			WithStale(tx.ReloadFunc(func(ctx context.Context) error {
				var current int
				err := r.txManager.GetQuerier(ctx).QueryRow(ctx,
					"SELECT version FROM "+receiptsTable+" WHERE id = $1", doc.ID,
				).Scan(&current)
				if err != nil {
					return fmt.Errorf("reload version: %w", err)
				}
				doc.SetVersion(current)
				return nil
			}))
	}
	if err != nil {
		return fmt.Errorf("update receipt: %w", err)
	}
	doc.SetVersion(newVersion)

	return r.saveLines(ctx, doc.ID, doc.Lines)
}

// SetDeletionMark sets or clears the soft-delete mark.
func (r *ReceiptRepo) SetDeletionMark(ctx context.Context, receiptID id.ID, marked bool) error {
	q := r.builder().
		Update(receiptsTable).
		Set("deletion_mark", marked).
		Set("version", squirrel.Expr("version + 1")).
		Set("updated_at", time.Now().UTC()).
		Where(squirrel.Eq{"id": receiptID})

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build set deletion mark: %w", err)
	}

	result, err := r.txManager.GetQuerier(ctx).Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("execute set deletion mark: %w", err)
	}
	if result.RowsAffected() == 0 {
		return apperror.NewNotFound(receiptsTable, receiptID.String())
	}

	return nil
}

// List retrieves receipt headers with filtering. Lines are loaded on
// GetByID, not in listings.
func (r *ReceiptRepo) List(ctx context.Context, filter receipt.ListFilter) (domain.ListResult[*receipt.Receipt], error) {
	result := domain.ListResult[*receipt.Receipt]{
		Limit:  filter.Limit,
		Offset: filter.Offset,
	}

	q := r.baseSelect()

	if !filter.IncludeDeleted {
		q = q.Where(squirrel.Eq{"deletion_mark": false})
	}
	if filter.Posted != nil {
		q = q.Where(squirrel.Eq{"posted": *filter.Posted})
	}
	if filter.CustomerID != nil {
		q = q.Where(squirrel.Eq{"customer_id": *filter.CustomerID})
	}
	if filter.TerminalID != "" {
		q = q.Where(squirrel.Eq{"terminal_id": filter.TerminalID})
	}
	if filter.FromDate != nil {
		q = q.Where(squirrel.GtOrEq{"date": *filter.FromDate})
	}
	if filter.ToDate != nil {
		q = q.Where(squirrel.LtOrEq{"date": *filter.ToDate})
	}
	if filter.Search != "" {
		q = q.Where(squirrel.ILike{"number": "%" + filter.Search + "%"})
	}

	countQ := r.builder().Select("COUNT(*)").FromSelect(q, "sub")
	countSQL, countArgs, err := countQ.ToSql()
	if err != nil {
		return result, fmt.Errorf("build count: %w", err)
	}

	querier := r.txManager.GetQuerier(ctx)
	if err := querier.QueryRow(ctx, countSQL, countArgs...).Scan(&result.TotalCount); err != nil {
		return result, fmt.Errorf("count: %w", err)
	}

	q = q.OrderBy("date DESC", "number DESC")
	if filter.Limit > 0 {
		q = q.Limit(uint64(filter.Limit))
	}
	if filter.Offset > 0 {
		q = q.Offset(uint64(filter.Offset))
	}

	sql, args, err := q.ToSql()
	if err != nil {
		return result, fmt.Errorf("build query: %w", err)
	}

	if err := pgxscan.Select(ctx, querier, &result.Items, sql, args...); err != nil {
		return result, fmt.Errorf("list receipts: %w", err)
	}

	return result, nil
}

func (r *ReceiptRepo) getLines(ctx context.Context, receiptID id.ID) ([]receipt.ReceiptLine, error) {
	q := r.builder().
		Select(
			"line_id", "line_no", "product_id", "product_name",
			"quantity", "unit_price", "discount_percent", "amount",
		).
		From(receiptLinesTable).
		Where(squirrel.Eq{"document_id": receiptID}).
		OrderBy("line_no")

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var lines []receipt.ReceiptLine
	querier := r.txManager.GetQuerier(ctx)
	if err := pgxscan.Select(ctx, querier, &lines, sql, args...); err != nil {
		return nil, fmt.Errorf("get lines: %w", err)
	}

	return lines, nil
}

// saveLines replaces the table part wholesale. Receipts rarely exceed a
// few dozen lines, so delete+insert beats diffing.
func (r *ReceiptRepo) saveLines(ctx context.Context, receiptID id.ID, lines []receipt.ReceiptLine) error {
	querier := r.txManager.GetQuerier(ctx)

	if _, err := querier.Exec(ctx, "DELETE FROM "+receiptLinesTable+" WHERE document_id = $1", receiptID); err != nil {
		return fmt.Errorf("delete existing lines: %w", err)
	}
	if len(lines) == 0 {
		return nil
	}

	q := r.builder().
		Insert(receiptLinesTable).
		Columns(
			"line_id", "document_id", "line_no", "product_id", "product_name",
			"quantity", "unit_price", "discount_percent", "amount",
		)

	for _, line := range lines {
		q = q.Values(
			line.LineID, receiptID, line.LineNo, line.ProductID, line.ProductName,
			line.Quantity, line.UnitPrice, line.DiscountPercent, line.Amount,
		)
	}

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build insert lines: %w", err)
	}

	if _, err := querier.Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("insert lines: %w", err)
	}

	return nil
}
