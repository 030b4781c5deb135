package uow

import (
	"context"
	"errors"
)

// ErrConflict signals that an aggregate was modified concurrently and the
// caller must reload and retry. It is distinct from every business error.
var ErrConflict = errors.New("uow: concurrent modification, retry required")

// Runner executes a function as a single unit of work. Every mutation made
// through repositories inside fn commits or rolls back together.
type Runner interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}
