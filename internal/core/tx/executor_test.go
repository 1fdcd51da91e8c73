package tx

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"tillpoint/pkg/logger"
)

// --- Fakes ---

type fakeTx struct {
	mu        sync.Mutex
	commits   int
	rollbacks int // rollback calls before commit (real aborts)
	releases  int // every Rollback call releases the handle
	commitErr error
}

func (t *fakeTx) Commit(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.commitErr != nil {
		return t.commitErr
	}
	t.commits++
	return nil
}

func (t *fakeTx) Rollback(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.releases++
	if t.commits == 0 {
		t.rollbacks++
	}
	return nil
}

type fakeDB struct {
	txs       []*fakeTx
	beginErrs []error // consumed one per Begin; nil entry means success
	nextTx    func() *fakeTx
}

func (d *fakeDB) Begin(ctx context.Context) (Tx, error) {
	if len(d.beginErrs) > 0 {
		err := d.beginErrs[0]
		d.beginErrs = d.beginErrs[1:]
		if err != nil {
			return nil, err
		}
	}
	t := &fakeTx{}
	if d.nextTx != nil {
		t = d.nextTx()
	}
	d.txs = append(d.txs, t)
	return t, nil
}

// newTestExecutor builds an executor over db with a capturing logger and
// a recording, non-blocking sleep.
func newTestExecutor(t *testing.T, db *fakeDB, maxRetries int) (*Executor, *observer.ObservedLogs, *[]time.Duration) {
	t.Helper()
	core, logs := observer.New(zapcore.InfoLevel)
	var delays []time.Duration
	e := NewExecutor(ExecutorConfig{
		DB:         db,
		MaxRetries: maxRetries,
		Logger:     logger.FromZap(zap.New(core)),
	})
	e.sleep = func(ctx context.Context, d time.Duration) error {
		delays = append(delays, d)
		return nil
	}
	return e, logs, &delays
}

func countLevel(logs *observer.ObservedLogs, level zapcore.Level) int {
	n := 0
	for _, entry := range logs.All() {
		if entry.Level == level {
			n++
		}
	}
	return n
}

// --- Tests ---

func TestRunValue_SuccessFirstAttempt(t *testing.T) {
	db := &fakeDB{}
	e, logs, delays := newTestExecutor(t, db, 3)

	got, err := RunValue(context.Background(), e, "receipt.post", func(ctx context.Context, tx Tx) (int, error) {
		return 42, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 42, got)

	require.Len(t, db.txs, 1)
	assert.Equal(t, 1, db.txs[0].commits)
	assert.Equal(t, 0, db.txs[0].rollbacks, "no rollback on the success path")
	assert.Equal(t, 1, db.txs[0].releases, "handle released exactly once")
	assert.Empty(t, *delays)

	assert.Equal(t, 2, countLevel(logs, zapcore.InfoLevel)) // attempt start + committed
	assert.Equal(t, 0, countLevel(logs, zapcore.WarnLevel))
	assert.Equal(t, 0, countLevel(logs, zapcore.ErrorLevel))
}

func TestRunValue_LockTimeoutThenSuccess(t *testing.T) {
	db := &fakeDB{}
	e, logs, delays := newTestExecutor(t, db, 3)

	calls := 0
	got, err := RunValue(context.Background(), e, "receipt.post", func(ctx context.Context, tx Tx) (string, error) {
		calls++
		if calls <= 2 {
			return "", errors.New("canceling statement due to lock timeout")
		}
		return "ok", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", got)
	assert.Equal(t, 3, calls)

	// One handle per attempt, each released exactly once.
	require.Len(t, db.txs, 3)
	for i, tx := range db.txs {
		assert.Equal(t, 1, tx.releases, "tx %d releases", i)
	}
	assert.Equal(t, 1, db.txs[0].rollbacks)
	assert.Equal(t, 1, db.txs[1].rollbacks)
	assert.Equal(t, 1, db.txs[2].commits)

	// Contention backoff: 200ms * attempt.
	assert.Equal(t, []time.Duration{200 * time.Millisecond, 400 * time.Millisecond}, *delays)

	assert.Equal(t, 4, countLevel(logs, zapcore.InfoLevel)) // 3 attempt starts + success
	assert.Equal(t, 2, countLevel(logs, zapcore.WarnLevel))
	assert.Equal(t, 0, countLevel(logs, zapcore.ErrorLevel))
	assert.Equal(t, 0, countLevel(logs, zapcore.DPanicLevel))
}

func TestRunValue_NonTransientStopsImmediately(t *testing.T) {
	db := &fakeDB{}
	e, logs, delays := newTestExecutor(t, db, 3)

	cause := errors.New("column does not exist")
	_, err := RunValue(context.Background(), e, "receipt.post", func(ctx context.Context, tx Tx) (int, error) {
		return 0, cause
	})

	var txErr *Error
	require.ErrorAs(t, err, &txErr)
	assert.Equal(t, "receipt.post", txErr.Op)
	assert.Equal(t, 1, txErr.Attempts)
	assert.ErrorIs(t, err, cause)

	require.Len(t, db.txs, 1)
	assert.Equal(t, 0, db.txs[0].commits)
	assert.Equal(t, 1, db.txs[0].rollbacks)
	assert.Empty(t, *delays)

	assert.Equal(t, 1, countLevel(logs, zapcore.ErrorLevel))
	assert.Equal(t, 0, countLevel(logs, zapcore.WarnLevel))
}

func TestRunValue_ConflictReloadsStaleEntities(t *testing.T) {
	db := &fakeDB{}
	e, _, delays := newTestExecutor(t, db, 3)

	reloads := 0
	stale := ReloadFunc(func(ctx context.Context) error {
		reloads++
		return nil
	})

	calls := 0
	err := e.Run(context.Background(), "receipt.post", func(ctx context.Context, tx Tx) error {
		calls++
		if calls <= 2 {
			return NewConflict("stock_balance", "p1").WithStale(stale)
		}
		return nil
	})
	require.NoError(t, err)

	assert.Equal(t, 3, calls)
	assert.Equal(t, 2, reloads, "stale entities reloaded before each retry")
	// Concurrency backoff: 100ms * attempt.
	assert.Equal(t, []time.Duration{100 * time.Millisecond, 200 * time.Millisecond}, *delays)
}

func TestRunValue_RetriesExhausted(t *testing.T) {
	db := &fakeDB{}
	e, logs, _ := newTestExecutor(t, db, 3)

	conflict := NewConflict("stock_balance", "p1")
	_, err := RunValue(context.Background(), e, "receipt.post", func(ctx context.Context, tx Tx) (int, error) {
		return 0, conflict
	})

	var txErr *Error
	require.ErrorAs(t, err, &txErr)
	assert.Equal(t, 3, txErr.Attempts)

	var wrapped *ConflictError
	assert.ErrorAs(t, err, &wrapped, "terminal error wraps the last transient cause")

	require.Len(t, db.txs, 3)
	for _, tx := range db.txs {
		assert.Equal(t, 0, tx.commits)
		assert.Equal(t, 1, tx.rollbacks)
	}

	assert.Equal(t, 3, countLevel(logs, zapcore.WarnLevel))
	assert.Equal(t, 1, countLevel(logs, zapcore.DPanicLevel))
	assert.Equal(t, 0, countLevel(logs, zapcore.ErrorLevel))
}

func TestRunValue_SingleAttemptBudget(t *testing.T) {
	db := &fakeDB{}
	e, logs, delays := newTestExecutor(t, db, 1)

	reloads := 0
	_, err := RunValue(context.Background(), e, "receipt.post", func(ctx context.Context, tx Tx) (int, error) {
		return 0, NewConflict("receipt", "r1").WithStale(ReloadFunc(func(ctx context.Context) error {
			reloads++
			return nil
		}))
	})

	var txErr *Error
	require.ErrorAs(t, err, &txErr)
	assert.Equal(t, 1, txErr.Attempts)
	require.Len(t, db.txs, 1)

	// No budget left: no reload, no backoff, straight to exhaustion.
	assert.Equal(t, 0, reloads)
	assert.Empty(t, *delays)
	assert.Equal(t, 1, countLevel(logs, zapcore.DPanicLevel))
}

func TestRunValue_BeginFailureIsClassified(t *testing.T) {
	db := &fakeDB{
		beginErrs: []error{errors.New("pq: deadlock detected"), nil},
	}
	e, logs, delays := newTestExecutor(t, db, 3)

	got, err := RunValue(context.Background(), e, "receipt.post", func(ctx context.Context, tx Tx) (int, error) {
		return 7, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 7, got)

	// First begin failed before any handle existed; only one tx was ever
	// opened and it committed.
	require.Len(t, db.txs, 1)
	assert.Equal(t, 1, db.txs[0].commits)
	assert.Equal(t, []time.Duration{200 * time.Millisecond}, *delays)
	assert.Equal(t, 1, countLevel(logs, zapcore.WarnLevel))
}

func TestRunValue_CommitFailureNonTransient(t *testing.T) {
	db := &fakeDB{
		nextTx: func() *fakeTx { return &fakeTx{commitErr: errors.New("disk full")} },
	}
	e, _, _ := newTestExecutor(t, db, 3)

	_, err := RunValue(context.Background(), e, "receipt.post", func(ctx context.Context, tx Tx) (int, error) {
		return 0, nil
	})

	var txErr *Error
	require.ErrorAs(t, err, &txErr)
	assert.Equal(t, 1, txErr.Attempts)
	assert.Contains(t, err.Error(), "commit transaction")

	require.Len(t, db.txs, 1)
	assert.Equal(t, 1, db.txs[0].releases, "handle released even when commit fails")
}

func TestRunValue_CommitLockFailureRetried(t *testing.T) {
	attempt := 0
	db := &fakeDB{
		nextTx: func() *fakeTx {
			attempt++
			if attempt == 1 {
				return &fakeTx{commitErr: errors.New("could not serialize access: deadlock")}
			}
			return &fakeTx{}
		},
	}
	e, _, delays := newTestExecutor(t, db, 3)

	err := e.Run(context.Background(), "receipt.post", func(ctx context.Context, tx Tx) error {
		return nil
	})
	require.NoError(t, err)
	require.Len(t, db.txs, 2)
	assert.Equal(t, 1, db.txs[1].commits)
	assert.Equal(t, []time.Duration{200 * time.Millisecond}, *delays)
}

func TestRunValue_CancelledContextCutsBackoffShort(t *testing.T) {
	db := &fakeDB{}
	core, _ := observer.New(zapcore.InfoLevel)
	e := NewExecutor(ExecutorConfig{
		DB:     db,
		Logger: logger.FromZap(zap.New(core)),
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := RunValue(ctx, e, "receipt.post", func(ctx context.Context, tx Tx) (int, error) {
		return 0, errors.New("lock wait")
	})

	var txErr *Error
	require.ErrorAs(t, err, &txErr)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, txErr.Attempts)
}

func TestNewExecutor_Defaults(t *testing.T) {
	e := NewExecutor(ExecutorConfig{DB: &fakeDB{}})
	assert.Equal(t, DefaultMaxRetries, e.maxRetries)
	assert.NotNil(t, e.classify)

	e = NewExecutor(ExecutorConfig{DB: &fakeDB{}, MaxRetries: -5})
	assert.Equal(t, DefaultMaxRetries, e.maxRetries)

	assert.Panics(t, func() { NewExecutor(ExecutorConfig{}) })
}

func TestRun_Void(t *testing.T) {
	db := &fakeDB{}
	e, _, _ := newTestExecutor(t, db, 3)

	ran := false
	err := e.Run(context.Background(), "product.create", func(ctx context.Context, tx Tx) error {
		ran = true
		return nil
	})
	require.NoError(t, err)
	assert.True(t, ran)
	require.Len(t, db.txs, 1)
	assert.Equal(t, 1, db.txs[0].commits)

	cause := fmt.Errorf("wrapped: %w", errors.New("bad input"))
	err = e.Run(context.Background(), "product.create", func(ctx context.Context, tx Tx) error {
		return cause
	})
	var txErr *Error
	require.ErrorAs(t, err, &txErr)
	assert.ErrorIs(t, err, cause)
}
