package oracle

import "context"

// Repository persists the validator aggregate. Save must reject stale
// versions with uow.ErrConflict.
type Repository interface {
	Get(ctx context.Context) (*Validator, error)
	Save(ctx context.Context, validator *Validator) error
}
