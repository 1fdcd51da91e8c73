package middleware

import (
	"errors"

	"github.com/gin-gonic/gin"

	"tillpoint/internal/core/apperror"
	"tillpoint/internal/core/tx"
	"tillpoint/pkg/logger"
)

// ErrorHandler middleware transforms errors into consistent JSON responses.
// Hides internal errors from clients while logging full details.
func ErrorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 {
			return
		}

		err := c.Errors.Last().Err

		// If response already written by handler, do not override it.
		if c.Writer.Written() {
			return
		}

		// Try to extract AppError. Works through *tx.Error wrapping: a
		// business error that aborted a transaction keeps its status.
		if appErr, ok := apperror.AsAppError(err); ok {
			if appErr.Err != nil {
				logger.Error(c.Request.Context(), "request error",
					"code", appErr.Code,
					"cause", appErr.Err,
				)
			}

			c.JSON(appErr.HTTPStatus, gin.H{
				"code":    appErr.Code,
				"message": appErr.Message,
				"details": appErr.Details,
			})
			return
		}

		// A version conflict that survived the retry budget: the record
		// kept changing under the client, so report 409 and let them
		// refresh and resubmit.
		var conflict *tx.ConflictError
		if errors.As(err, &conflict) {
			appErr := apperror.NewConcurrentModification(conflict.Entity, conflict.ID)
			logger.Warn(c.Request.Context(), "retries exhausted on version conflict",
				"entity", conflict.Entity,
				"id", conflict.ID,
			)
			c.JSON(appErr.HTTPStatus, gin.H{
				"code":    appErr.Code,
				"message": appErr.Message,
				"details": appErr.Details,
			})
			return
		}

		// A transaction that failed for any other reason (exhausted lock
		// timeouts, infrastructure faults) is a database error to the client.
		var txErr *tx.Error
		if errors.As(err, &txErr) {
			logger.Error(c.Request.Context(), "transaction failed",
				"op", txErr.Op,
				"attempts", txErr.Attempts,
				"cause", txErr.Err,
			)
			c.JSON(500, gin.H{
				"code":    apperror.CodeDatabase,
				"message": "Operation could not be completed, please retry",
				"details": map[string]any{
					"request_id": c.GetString("request_id"),
				},
			})
			return
		}

		// Unknown error - log and return generic message
		logger.Error(c.Request.Context(), "unhandled error",
			"error", err,
		)

		c.JSON(500, gin.H{
			"code":    apperror.CodeInternal,
			"message": "Internal server error",
			"details": map[string]any{
				"request_id": c.GetString("request_id"),
			},
		})
	}
}
