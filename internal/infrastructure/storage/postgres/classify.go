package postgres

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"

	"tillpoint/internal/core/tx"
)

// SQLSTATE codes that indicate transient contention.
const (
	codeSerializationFailure = "40001"
	codeDeadlockDetected     = "40P01"
	codeLockNotAvailable     = "55P03"
	codeQueryCanceled        = "57014" // statement_timeout
)

// ClassifyError maps PostgreSQL errors to retry classes. Structured
// SQLSTATE codes are preferred; anything without one falls back to the
// portable classifier (version-conflict detection and message-substring
// contention markers).
func ClassifyError(err error) tx.Class {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case codeSerializationFailure, codeDeadlockDetected, codeLockNotAvailable, codeQueryCanceled:
			return tx.ClassTransientContention
		}
	}

	return tx.DefaultClassifier(err)
}
