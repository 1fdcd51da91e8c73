package receipt

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tillpoint/internal/core/apperror"
	"tillpoint/internal/core/entity"
	"tillpoint/internal/core/id"
	"tillpoint/internal/core/types"
	"tillpoint/internal/domain"
	"tillpoint/internal/domain/registers/stock"
	"tillpoint/pkg/numerator"
)

// passthroughManager runs the unit of work directly. Retry behavior is
// covered by the executor tests; here we verify the posting logic.
type passthroughManager struct{}

func (passthroughManager) RunInTransaction(ctx context.Context, _ string, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

type fakeReceiptRepo struct {
	receipts map[id.ID]*Receipt
}

func newFakeReceiptRepo() *fakeReceiptRepo {
	return &fakeReceiptRepo{receipts: make(map[id.ID]*Receipt)}
}

func (r *fakeReceiptRepo) Create(_ context.Context, rec *Receipt) error {
	stored := *rec
	stored.Lines = append([]ReceiptLine(nil), rec.Lines...)
	r.receipts[rec.ID] = &stored
	return nil
}

func (r *fakeReceiptRepo) GetByID(_ context.Context, receiptID id.ID) (*Receipt, error) {
	stored, ok := r.receipts[receiptID]
	if !ok {
		return nil, apperror.NewNotFound("receipt", receiptID.String())
	}
	out := *stored
	out.Lines = append([]ReceiptLine(nil), stored.Lines...)
	return &out, nil
}

func (r *fakeReceiptRepo) GetByNumber(_ context.Context, number string) (*Receipt, error) {
	for _, stored := range r.receipts {
		if stored.Number == number {
			out := *stored
			return &out, nil
		}
	}
	return nil, apperror.NewNotFound("receipt", number)
}

func (r *fakeReceiptRepo) Update(_ context.Context, rec *Receipt) error {
	stored := *rec
	stored.Lines = append([]ReceiptLine(nil), rec.Lines...)
	r.receipts[rec.ID] = &stored
	return nil
}

func (r *fakeReceiptRepo) SetDeletionMark(_ context.Context, receiptID id.ID, marked bool) error {
	stored, ok := r.receipts[receiptID]
	if !ok {
		return apperror.NewNotFound("receipt", receiptID.String())
	}
	stored.DeletionMark = marked
	return nil
}

func (r *fakeReceiptRepo) List(_ context.Context, _ ListFilter) (domain.ListResult[*Receipt], error) {
	return domain.ListResult[*Receipt]{}, nil
}

type outboxEntry struct {
	eventType   string
	aggregateID id.ID
}

type fakeOutbox struct{ entries []outboxEntry }

func (o *fakeOutbox) Enqueue(_ context.Context, eventType string, aggregateID id.ID, _ any) error {
	o.entries = append(o.entries, outboxEntry{eventType, aggregateID})
	return nil
}

type fakeAudit struct{ actions []string }

func (a *fakeAudit) Record(_ context.Context, action, _ string, _ id.ID, _ any) error {
	a.actions = append(a.actions, action)
	return nil
}

// seqRow feeds the strict numerator an incrementing sequence.
type seqRow struct{ val int64 }

func (r seqRow) Scan(dest ...any) error {
	*(dest[0].(*int64)) = r.val
	return nil
}

type seqQuerier struct{ current int64 }

func (q *seqQuerier) QueryRow(_ context.Context, _ string, _ ...any) pgx.Row {
	q.current++
	return seqRow{val: q.current}
}

type fixture struct {
	svc       *Service
	repo      *fakeReceiptRepo
	stockRepo *stock.Service
	balances  *stockBalances
	outbox    *fakeOutbox
	audit     *fakeAudit
}

// stockBalances is a minimal in-memory stock.Repository.
type stockBalances struct {
	movements []entity.StockMovement
	balances  map[id.ID]entity.StockBalance
}

func (r *stockBalances) CreateMovements(_ context.Context, movements []entity.StockMovement) error {
	r.movements = append(r.movements, movements...)
	return nil
}

func (r *stockBalances) DeleteMovementsByRecorder(_ context.Context, recorderID id.ID, beforeVersion int) error {
	kept := r.movements[:0]
	for _, m := range r.movements {
		if m.RecorderID == recorderID && m.RecorderVersion < beforeVersion {
			continue
		}
		kept = append(kept, m)
	}
	r.movements = kept
	return nil
}

func (r *stockBalances) GetMovementsByRecorder(_ context.Context, recorderID id.ID) ([]entity.StockMovement, error) {
	var out []entity.StockMovement
	for _, m := range r.movements {
		if m.RecorderID == recorderID {
			out = append(out, m)
		}
	}
	return out, nil
}

func (r *stockBalances) GetBalance(_ context.Context, productID id.ID) (entity.StockBalance, error) {
	b, ok := r.balances[productID]
	if !ok {
		return entity.StockBalance{}, apperror.NewNotFound("stock_balance", productID.String())
	}
	return b, nil
}

func (r *stockBalances) UpdateBalance(_ context.Context, productID id.ID, quantity types.Quantity, expectedVersion int, movementAt time.Time) error {
	b := r.balances[productID]
	if b.Version != expectedVersion {
		return apperror.NewConcurrentModification("stock_balance", productID.String())
	}
	r.balances[productID] = entity.StockBalance{
		ProductID: productID,
		Quantity:  quantity,
		Version:   expectedVersion + 1,
	}
	return nil
}

func (r *stockBalances) GetBalances(_ context.Context, _ stock.BalanceFilter) ([]entity.StockBalance, error) {
	return nil, nil
}

func (r *stockBalances) GetMovementHistory(_ context.Context, _ id.ID, _ stock.MovementFilter) ([]entity.StockMovement, error) {
	return nil, nil
}

func (r *stockBalances) RecalculateBalance(_ context.Context, _ id.ID) error { return nil }

func newFixture(t *testing.T) *fixture {
	t.Helper()

	balances := &stockBalances{balances: make(map[id.ID]entity.StockBalance)}
	repo := newFakeReceiptRepo()
	out := &fakeOutbox{}
	aud := &fakeAudit{}

	svc := NewService(ServiceConfig{
		Repo:      repo,
		TxManager: passthroughManager{},
		Stock:     stock.NewService(balances),
		Numerator: numerator.New(&seqQuerier{}),
		Outbox:    out,
		Audit:     aud,
	})

	return &fixture{
		svc:       svc,
		repo:      repo,
		stockRepo: stock.NewService(balances),
		balances:  balances,
		outbox:    out,
		audit:     aud,
	}
}

func (f *fixture) addStock(t *testing.T, productID id.ID, quantity string) {
	t.Helper()
	err := f.stockRepo.ApplyMovements(context.Background(), []entity.StockMovement{
		entity.NewStockMovement(id.New(), "Adjustment", 1, time.Now().UTC(),
			entity.RecordTypeReceipt, productID, decimal.RequireFromString(quantity)),
	})
	require.NoError(t, err)
}

func newDraft(t *testing.T, f *fixture, productID id.ID, quantity string) *Receipt {
	t.Helper()
	r := NewReceipt("TILL-01", PaymentCard)
	r.AddLine(productID, "Mineral water 0.5l", decimal.RequireFromString(quantity),
		decimal.RequireFromString("1.99"), decimal.Zero)
	require.NoError(t, f.svc.Create(context.Background(), r))
	return r
}

func TestCreate_AssignsNumber(t *testing.T) {
	f := newFixture(t)

	r := newDraft(t, f, id.New(), "2")

	assert.True(t, strings.HasPrefix(r.Number, "RCP-"), "got %q", r.Number)
	assert.Equal(t, []string{"create"}, f.audit.actions)
}

func TestPost_WritesMovementsAndDecrementsBalance(t *testing.T) {
	f := newFixture(t)
	productID := id.New()
	f.addStock(t, productID, "10")

	r := newDraft(t, f, productID, "3")
	require.NoError(t, f.svc.Post(context.Background(), r.ID))

	posted, err := f.svc.GetByID(context.Background(), r.ID)
	require.NoError(t, err)
	assert.True(t, posted.Posted)
	assert.Equal(t, 1, posted.PostedVersion)

	balance, err := f.stockRepo.GetBalance(context.Background(), productID)
	require.NoError(t, err)
	assert.True(t, balance.Quantity.Equal(decimal.RequireFromString("7")), "got %s", balance.Quantity)

	require.Len(t, f.outbox.entries, 1)
	assert.Equal(t, EventPosted, f.outbox.entries[0].eventType)
	assert.Equal(t, r.ID, f.outbox.entries[0].aggregateID)
	assert.Equal(t, []string{"create", "post"}, f.audit.actions)
}

func TestPost_InsufficientStock(t *testing.T) {
	f := newFixture(t)
	productID := id.New()
	f.addStock(t, productID, "2")

	r := newDraft(t, f, productID, "5")
	err := f.svc.Post(context.Background(), r.ID)

	require.Error(t, err)
	appErr, ok := apperror.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, apperror.CodeInsufficientStock, appErr.Code)
	assert.Empty(t, f.outbox.entries)
}

func TestPost_AlreadyPosted(t *testing.T) {
	f := newFixture(t)
	productID := id.New()
	f.addStock(t, productID, "10")

	r := newDraft(t, f, productID, "1")
	require.NoError(t, f.svc.Post(context.Background(), r.ID))

	err := f.svc.Post(context.Background(), r.ID)
	require.Error(t, err)
	appErr, ok := apperror.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, apperror.CodeReceiptPosted, appErr.Code)
}

func TestPost_EmptyReceipt(t *testing.T) {
	f := newFixture(t)

	r := NewReceipt("TILL-01", PaymentCash)
	require.NoError(t, f.svc.Create(context.Background(), r))

	err := f.svc.Post(context.Background(), r.ID)
	require.Error(t, err)
	appErr, ok := apperror.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, apperror.CodeValidation, appErr.Code)
}

func TestVoid_RestoresBalance(t *testing.T) {
	f := newFixture(t)
	productID := id.New()
	f.addStock(t, productID, "10")

	r := newDraft(t, f, productID, "4")
	require.NoError(t, f.svc.Post(context.Background(), r.ID))
	require.NoError(t, f.svc.Void(context.Background(), r.ID))

	voided, err := f.svc.GetByID(context.Background(), r.ID)
	require.NoError(t, err)
	assert.False(t, voided.Posted)
	assert.Equal(t, 1, voided.PostedVersion)

	balance, err := f.stockRepo.GetBalance(context.Background(), productID)
	require.NoError(t, err)
	assert.True(t, balance.Quantity.Equal(decimal.RequireFromString("10")), "got %s", balance.Quantity)

	require.Len(t, f.outbox.entries, 2)
	assert.Equal(t, EventVoided, f.outbox.entries[1].eventType)
}

func TestVoid_NotPosted(t *testing.T) {
	f := newFixture(t)

	r := newDraft(t, f, id.New(), "1")
	err := f.svc.Void(context.Background(), r.ID)

	require.Error(t, err)
	appErr, ok := apperror.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, apperror.CodeReceiptNotPosted, appErr.Code)
}

func TestRepost_ReplacesMovements(t *testing.T) {
	f := newFixture(t)
	productID := id.New()
	f.addStock(t, productID, "10")

	r := newDraft(t, f, productID, "4")
	require.NoError(t, f.svc.Post(context.Background(), r.ID))
	require.NoError(t, f.svc.Void(context.Background(), r.ID))

	// Edit the draft and post again: only the new movements remain.
	edited, err := f.svc.GetByID(context.Background(), r.ID)
	require.NoError(t, err)
	edited.Lines = nil
	edited.AddLine(productID, "Mineral water 0.5l", decimal.RequireFromString("2"),
		decimal.RequireFromString("1.99"), decimal.Zero)
	require.NoError(t, f.svc.Update(context.Background(), edited))
	require.NoError(t, f.svc.Post(context.Background(), edited.ID))

	balance, err := f.stockRepo.GetBalance(context.Background(), productID)
	require.NoError(t, err)
	assert.True(t, balance.Quantity.Equal(decimal.RequireFromString("8")), "got %s", balance.Quantity)

	movements, err := f.balances.GetMovementsByRecorder(context.Background(), r.ID)
	require.NoError(t, err)
	require.Len(t, movements, 1)
	assert.Equal(t, 2, movements[0].RecorderVersion)
}

func TestUpdate_PostedReceiptRejected(t *testing.T) {
	f := newFixture(t)
	productID := id.New()
	f.addStock(t, productID, "10")

	r := newDraft(t, f, productID, "1")
	require.NoError(t, f.svc.Post(context.Background(), r.ID))

	r.Comment = "late edit"
	err := f.svc.Update(context.Background(), r)
	require.Error(t, err)
	appErr, ok := apperror.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, apperror.CodeReceiptPosted, appErr.Code)
}

func TestTotals_DiscountApplied(t *testing.T) {
	r := NewReceipt("TILL-02", PaymentCash)
	r.AddLine(id.New(), "Coffee beans 1kg", decimal.RequireFromString("2"),
		decimal.RequireFromString("12.50"), decimal.RequireFromString("10"))

	assert.True(t, r.Subtotal.Equal(decimal.RequireFromString("25.00")), "subtotal %s", r.Subtotal)
	assert.True(t, r.Total.Equal(decimal.RequireFromString("22.50")), "total %s", r.Total)
	assert.True(t, r.DiscountTotal.Equal(decimal.RequireFromString("2.50")), "discount %s", r.DiscountTotal)
}
