package store

import "context"

// Transactor runs fn inside one serializable transaction. Stores called with
// the ctx handed to fn take part in it. Nested calls join the outer transaction.
type Transactor interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}
