package auth

import (
	"context"
)

type contextKey string

const OperatorKey contextKey = "operator"

// Operator is the authenticated caller of the admin API.
type Operator struct {
	Name string
}

func WithOperator(ctx context.Context, op *Operator) context.Context {
	return context.WithValue(ctx, OperatorKey, op)
}

func GetOperatorFromContext(ctx context.Context) (*Operator, bool) {
	op, ok := ctx.Value(OperatorKey).(*Operator)
	return op, ok
}
