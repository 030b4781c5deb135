package meter

import "context"

// Repository persists meters. Save must reject stale versions with
// uow.ErrConflict.
type Repository interface {
	Find(ctx context.Context, id string) (*Meter, error)
	Save(ctx context.Context, meter *Meter) error
	List(ctx context.Context) ([]*Meter, error)
}
