package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"tillpoint/internal/core/tx"
	"tillpoint/pkg/logger"
)

var tracer = otel.Tracer("tillpoint/tx")

// Compile-time checks that TxManager implements the manager interfaces.
var (
	_ tx.Manager         = (*TxManager)(nil)
	_ tx.ReadOnlyManager = (*TxManager)(nil)
)

// PgxPool is the subset of pgxpool.Pool used by the manager and the
// repositories. Satisfied by *pgxpool.Pool and by pgxmock in tests.
type PgxPool interface {
	BeginTx(ctx context.Context, txOptions pgx.TxOptions) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
}

// TxOptions configures transaction behavior.
type TxOptions struct {
	// IsolationLevel: pgx.Serializable, pgx.RepeatableRead, pgx.ReadCommitted
	IsolationLevel pgx.TxIsoLevel

	// AccessMode: pgx.ReadWrite, pgx.ReadOnly
	AccessMode pgx.TxAccessMode

	// StatementTimeout protects against long-running queries (default 30s)
	StatementTimeout time.Duration
}

// DefaultTxOptions returns production-safe defaults.
func DefaultTxOptions() TxOptions {
	return TxOptions{
		IsolationLevel:   pgx.ReadCommitted,
		AccessMode:       pgx.ReadWrite,
		StatementTimeout: 30 * time.Second,
	}
}

// ReadOnlyTxOptions returns defaults for read-only transactions.
func ReadOnlyTxOptions() TxOptions {
	opts := DefaultTxOptions()
	opts.AccessMode = pgx.ReadOnly
	return opts
}

// TxManager manages database transactions:
// - transient failures (serialization, deadlock, lock timeout, version
//   conflicts) are retried with linear backoff
// - nested calls reuse the transaction already carried by the context
// - statement timeout protection
// - distributed tracing integration
type TxManager struct {
	pool  PgxPool
	write *tx.Executor
	read  *tx.Executor
}

// TxManagerConfig configures a TxManager.
type TxManagerConfig struct {
	// Pool is the connection source. Required.
	Pool PgxPool

	// MaxRetries is the attempt budget per operation. Defaults to
	// tx.DefaultMaxRetries.
	MaxRetries int

	// Logger receives transaction lifecycle events. Defaults to the
	// context-carried logger.
	Logger *logger.Logger

	// Options for read-write transactions. Defaults to DefaultTxOptions.
	Options *TxOptions
}

// NewTxManager creates a transaction manager over the pool.
func NewTxManager(cfg TxManagerConfig) *TxManager {
	if cfg.Pool == nil {
		panic("postgres: TxManagerConfig.Pool is required")
	}

	writeOpts := DefaultTxOptions()
	if cfg.Options != nil {
		writeOpts = *cfg.Options
	}
	readOpts := writeOpts
	readOpts.AccessMode = pgx.ReadOnly

	m := &TxManager{pool: cfg.Pool}
	m.write = tx.NewExecutor(tx.ExecutorConfig{
		DB:         poolDB{pool: cfg.Pool, opts: writeOpts},
		Classifier: ClassifyError,
		MaxRetries: cfg.MaxRetries,
		Logger:     cfg.Logger,
	})
	m.read = tx.NewExecutor(tx.ExecutorConfig{
		DB:         poolDB{pool: cfg.Pool, opts: readOpts},
		Classifier: ClassifyError,
		MaxRetries: cfg.MaxRetries,
		Logger:     cfg.Logger,
	})
	return m
}

// NewTxManagerFromPool creates a manager with default options.
func NewTxManagerFromPool(pool *Pool) *TxManager {
	return NewTxManager(TxManagerConfig{Pool: pool.Pool})
}

// txKey is the context key for the active transaction.
type txKey struct{}

// Tx wraps pgx.Tx as the open transaction handle.
type Tx struct {
	pgx.Tx
}

// poolDB adapts the pool to the executor's store boundary.
type poolDB struct {
	pool PgxPool
	opts TxOptions
}

// Begin opens a transaction with the configured isolation and applies
// the statement timeout before any statement runs.
func (d poolDB) Begin(ctx context.Context) (tx.Tx, error) {
	pgxTx, err := d.pool.BeginTx(ctx, pgx.TxOptions{
		IsoLevel:   d.opts.IsolationLevel,
		AccessMode: d.opts.AccessMode,
	})
	if err != nil {
		return nil, err
	}

	if d.opts.StatementTimeout > 0 {
		_, err = pgxTx.Exec(ctx, fmt.Sprintf("SET LOCAL statement_timeout = '%dms'", d.opts.StatementTimeout.Milliseconds()))
		if err != nil {
			_ = pgxTx.Rollback(ctx)
			return nil, fmt.Errorf("set statement_timeout: %w", err)
		}
	}

	return &Tx{Tx: pgxTx}, nil
}

// RunInTransaction executes fn within a transaction, retrying transient
// failures. If a transaction already exists in ctx it is reused; retry
// is owned by the outermost call, so a nested failure rolls the whole
// transaction back and re-runs it from the top.
func (m *TxManager) RunInTransaction(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	if existing := GetTx(ctx); existing != nil {
		return fn(ctx)
	}

	ctx, span := tracer.Start(ctx, "transaction",
		trace.WithAttributes(attribute.String("tx.op", op)))
	defer span.End()

	return m.write.Run(ctx, op, func(ctx context.Context, handle tx.Tx) error {
		return fn(context.WithValue(ctx, txKey{}, handle.(*Tx)))
	})
}

// ReadOnly executes fn in a read-only transaction with the same retry
// behavior (read-only queries still hit lock timeouts).
func (m *TxManager) ReadOnly(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	if existing := GetTx(ctx); existing != nil {
		return fn(ctx)
	}

	ctx, span := tracer.Start(ctx, "transaction.readonly",
		trace.WithAttributes(attribute.String("tx.op", op)))
	defer span.End()

	return m.read.Run(ctx, op, func(ctx context.Context, handle tx.Tx) error {
		return fn(context.WithValue(ctx, txKey{}, handle.(*Tx)))
	})
}

// GetTx returns the current transaction from context, or nil if none.
func GetTx(ctx context.Context) *Tx {
	if t, ok := ctx.Value(txKey{}).(*Tx); ok {
		return t
	}
	return nil
}

// Querier is the query surface shared by pool and transaction.
// Repositories work against it so they run both inside and outside
// transactions.
type Querier interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// GetQuerier returns the context transaction when present, the pool
// otherwise.
func (m *TxManager) GetQuerier(ctx context.Context) Querier {
	if t := GetTx(ctx); t != nil {
		return t.Tx
	}
	return m.pool
}

// Ping verifies database connectivity.
func (m *TxManager) Ping(ctx context.Context) error {
	return m.pool.Ping(ctx)
}
