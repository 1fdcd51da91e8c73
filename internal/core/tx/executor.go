package tx

import (
	"context"
	"errors"
	"fmt"
	"time"

	"tillpoint/pkg/logger"
)

// DefaultMaxRetries is the retry budget used when none is configured.
const DefaultMaxRetries = 3

// Backoff bases: concurrency conflicts resolve once the competing writer
// finishes, so they get the shorter delay; lock/timeout conditions tend
// to persist for the duration of an in-flight transaction, so they wait
// longer. Both scale linearly with the attempt number.
const (
	concurrencyBackoff = 100 * time.Millisecond
	contentionBackoff  = 200 * time.Millisecond
)

// DB is the transactional store boundary the executor runs against.
type DB interface {
	// Begin opens a new transaction handle. Isolation level is chosen by
	// the implementation (read-committed for the postgres adapter).
	Begin(ctx context.Context) (Tx, error)
}

// Tx is an open transaction handle. Rollback after a successful Commit
// must be a harmless no-op; the executor relies on that to release the
// handle unconditionally on every exit path.
type Tx interface {
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// Error is the terminal failure of a transactional operation: either a
// non-transient error or an exhausted retry budget. It carries the
// operation name, the number of attempts made, and the last cause.
type Error struct {
	Op       string
	Attempts int
	Err      error
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("transaction %q failed after %d attempt(s): %v", e.Op, e.Attempts, e.Err)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error { return e.Err }

// Executor runs operations inside database transactions, retrying
// transient concurrency failures with linear backoff. It is safe for
// concurrent use; each invocation is sequential and holds at most one
// open transaction at a time.
type Executor struct {
	db         DB
	classify   Classifier
	maxRetries int
	log        *logger.Logger

	// sleep waits between attempts. Overridable in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// ExecutorConfig configures an Executor.
type ExecutorConfig struct {
	// DB is the transactional store. Required.
	DB DB

	// Classifier maps errors to retry classes. Defaults to DefaultClassifier.
	Classifier Classifier

	// MaxRetries is the attempt budget per invocation. Values below 1
	// fall back to DefaultMaxRetries. MaxRetries = 1 means a single
	// attempt with no retry.
	MaxRetries int

	// Logger receives the executor's log events. Defaults to the
	// context-carried logger.
	Logger *logger.Logger
}

// NewExecutor creates an Executor from configuration.
func NewExecutor(cfg ExecutorConfig) *Executor {
	if cfg.DB == nil {
		panic("tx: ExecutorConfig.DB is required")
	}
	classify := cfg.Classifier
	if classify == nil {
		classify = DefaultClassifier
	}
	maxRetries := cfg.MaxRetries
	if maxRetries < 1 {
		maxRetries = DefaultMaxRetries
	}
	return &Executor{
		db:         cfg.DB,
		classify:   classify,
		maxRetries: maxRetries,
		log:        cfg.Logger,
		sleep:      wait,
	}
}

// Run executes fn inside a transaction with retry, discarding any result.
func (e *Executor) Run(ctx context.Context, op string, fn func(ctx context.Context, tx Tx) error) error {
	_, err := RunValue(ctx, e, op, func(ctx context.Context, tx Tx) (struct{}, error) {
		return struct{}{}, fn(ctx, tx)
	})
	return err
}

// RunValue executes fn inside a transaction and returns its result.
//
// fn may be invoked more than once across attempts; it must be safe to
// re-run. On success the transaction is committed exactly once. On a
// transient failure (optimistic-concurrency conflict or store
// lock/timeout/deadlock) the transaction is rolled back and the attempt
// repeated after a backoff, up to the retry budget. Any other failure,
// or an exhausted budget, rolls back and returns a terminal *Error.
func RunValue[T any](ctx context.Context, e *Executor, op string, fn func(ctx context.Context, tx Tx) (T, error)) (T, error) {
	var zero T
	log := e.logger(ctx).With("op", op)

	var lastErr error
	for attempt := 1; attempt <= e.maxRetries; attempt++ {
		log.Infow("transaction attempt", "attempt", attempt, "max_retries", e.maxRetries)

		result, err := runAttempt(ctx, e, fn)
		if err == nil {
			log.Infow("transaction committed", "attempt", attempt)
			return result, nil
		}
		lastErr = err

		switch e.classify(err) {
		case ClassTransientConcurrency:
			log.Warnw("concurrency conflict", "attempt", attempt, "max_retries", e.maxRetries, "error", err)
			if attempt < e.maxRetries {
				e.reloadStale(ctx, log, err)
				if werr := e.sleep(ctx, time.Duration(attempt)*concurrencyBackoff); werr != nil {
					return zero, &Error{Op: op, Attempts: attempt, Err: werr}
				}
			}

		case ClassTransientContention:
			log.Warnw("lock contention", "attempt", attempt, "max_retries", e.maxRetries, "error", err)
			if attempt < e.maxRetries {
				if werr := e.sleep(ctx, time.Duration(attempt)*contentionBackoff); werr != nil {
					return zero, &Error{Op: op, Attempts: attempt, Err: werr}
				}
			}

		default:
			log.Errorw("transaction failed", "attempt", attempt, "error", err)
			return zero, &Error{Op: op, Attempts: attempt, Err: err}
		}
	}

	log.Criticalw("transaction retries exhausted", "attempts", e.maxRetries, "error", lastErr)
	return zero, &Error{Op: op, Attempts: e.maxRetries, Err: lastErr}
}

// runAttempt performs one begin/run/commit cycle. The handle is released
// on every path: the deferred rollback is a no-op after a successful
// commit and runs on a non-cancellable context so release completes even
// when the caller's context is already done.
func runAttempt[T any](ctx context.Context, e *Executor, fn func(ctx context.Context, tx Tx) (T, error)) (T, error) {
	var zero T

	tx, err := e.db.Begin(ctx)
	if err != nil {
		// No handle exists yet, nothing to roll back.
		return zero, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback(context.WithoutCancel(ctx))
	}()

	result, err := fn(ctx, tx)
	if err != nil {
		return zero, err
	}

	if err := tx.Commit(ctx); err != nil {
		return zero, fmt.Errorf("commit transaction: %w", err)
	}

	return result, nil
}

// reloadStale refreshes the entities carried by a ConflictError so the
// next attempt starts from their current persisted state.
func (e *Executor) reloadStale(ctx context.Context, log *logger.Logger, err error) {
	var conflict *ConflictError
	if !errors.As(err, &conflict) {
		return
	}
	for _, stale := range conflict.Stale {
		if rerr := stale.Reload(ctx); rerr != nil {
			log.Warnw("stale entity reload failed", "entity", conflict.Entity, "error", rerr)
		}
	}
}

func (e *Executor) logger(ctx context.Context) *logger.Logger {
	if e.log != nil {
		return e.log.WithContext(ctx)
	}
	return logger.FromContext(ctx)
}

// wait is a context-aware delay: a cancelled context cuts the backoff
// short and surfaces ctx.Err() as the terminal cause.
func wait(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
