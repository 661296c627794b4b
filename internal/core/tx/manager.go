// Package tx defines the unit-of-work boundary domain services write through.
package tx

import (
	"context"
)

// Manager runs a stock write atomically.
//
// Everything fn does through ctx (product check, row lock, ledger append,
// outbox enqueue) commits together or not at all. A call made with a ctx
// that already carries a transaction joins it. An implementation that
// enforces a statement timeout reports it as TIMEOUT_ERROR.
type Manager interface {
	RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}
