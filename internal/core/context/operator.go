package context

import (
	"context"
)

// OperatorContext identifies the cashier working the current request.
// Populated by the terminal header middleware; authentication itself is
// handled by the external identity service.
type OperatorContext struct {
	OperatorID string
	Name       string
	TerminalID string
}

type operatorContextKey struct{}

// WithOperator adds OperatorContext to context.
func WithOperator(ctx context.Context, op *OperatorContext) context.Context {
	return context.WithValue(ctx, operatorContextKey{}, op)
}

// GetOperator returns OperatorContext from context.
func GetOperator(ctx context.Context) *OperatorContext {
	if v, ok := ctx.Value(operatorContextKey{}).(*OperatorContext); ok {
		return v
	}
	return nil
}

// GetOperatorID returns operator ID from context or empty string.
func GetOperatorID(ctx context.Context) string {
	if o := GetOperator(ctx); o != nil {
		return o.OperatorID
	}
	return ""
}

// GetTerminalID returns terminal ID from context or empty string.
func GetTerminalID(ctx context.Context) string {
	if o := GetOperator(ctx); o != nil {
		return o.TerminalID
	}
	return ""
}
