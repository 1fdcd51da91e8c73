package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"
)

// SequenceQuerier adapts the transaction manager to the numerator's
// querier interface. Number allocation goes through GetQuerier, so a
// strict sequence fetched inside a posting transaction commits or rolls
// back together with the document.
type SequenceQuerier struct {
	txManager *TxManager
}

// NewSequenceQuerier creates a querier for document numbering.
func NewSequenceQuerier(txManager *TxManager) *SequenceQuerier {
	return &SequenceQuerier{txManager: txManager}
}

// QueryRow executes the query on the context's transaction or the pool.
func (q *SequenceQuerier) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	return q.txManager.GetQuerier(ctx).QueryRow(ctx, sql, args...)
}
