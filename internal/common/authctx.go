package common

import (
	"context"

	"github.com/google/uuid"
)

type ctxKey string

const operatorKey ctxKey = "auth/operator"

// Operator identifies the acting cashier and their branch scope. The core
// never authenticates; this is supplied by the identity collaborator.
type Operator struct {
	CashierID uuid.UUID
	BranchID  uuid.UUID
	Name      string
}

// WithOperator stores the acting operator on the provided context.
func WithOperator(ctx context.Context, op Operator) context.Context {
	return context.WithValue(ctx, operatorKey, op)
}

// OperatorFrom extracts the acting operator from the context if present.
func OperatorFrom(ctx context.Context) (Operator, bool) {
	v := ctx.Value(operatorKey)
	if v == nil {
		return Operator{}, false
	}
	op, ok := v.(Operator)
	return op, ok
}
