package middleware

import (
	"github.com/gin-gonic/gin"

	appctx "tillpoint/internal/core/context"
)

const (
	HeaderOperatorID   = "X-Operator-ID"
	HeaderOperatorName = "X-Operator-Name"
	HeaderTerminalID   = "X-Terminal-ID"
)

// Operator middleware extracts the cashier identity set by the terminal.
// Authentication itself is handled by the identity service in front of
// this API; here the headers are trusted and only carried into context
// for audit attribution.
func Operator() gin.HandlerFunc {
	return func(c *gin.Context) {
		operatorID := c.GetHeader(HeaderOperatorID)
		terminalID := c.GetHeader(HeaderTerminalID)

		if operatorID == "" && terminalID == "" {
			c.Next()
			return
		}

		op := &appctx.OperatorContext{
			OperatorID: operatorID,
			Name:       c.GetHeader(HeaderOperatorName),
			TerminalID: terminalID,
		}

		ctx := appctx.WithOperator(c.Request.Context(), op)
		c.Request = c.Request.WithContext(ctx)

		c.Next()
	}
}
