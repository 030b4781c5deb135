package memory

import (
	"context"
	"sync"
)

type contextKey string

const contextKeyHeld contextKey = "uow.memory.held"

// Runner serializes units of work behind a single mutex. In-memory
// repositories cannot roll back partial writes, so composed operations are
// expected to stage all checks before mutating; the mutex guarantees no
// interleaving between the check and the write. Nested RunInTx calls join
// the outer unit of work instead of deadlocking.
type Runner struct {
	mu sync.Mutex
}

// NewRunner constructs a runner.
func NewRunner() *Runner {
	return &Runner{}
}

// RunInTx executes fn while holding the writer lock.
func (r *Runner) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if fn == nil {
		return nil
	}
	if held, _ := ctx.Value(contextKeyHeld).(*Runner); held == r {
		// Already inside a unit of work; join it.
		return fn(ctx)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return fn(context.WithValue(ctx, contextKeyHeld, r))
}
