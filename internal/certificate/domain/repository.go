package certificate

import "context"

// Repository persists certificates. Save must reject stale versions with
// uow.ErrConflict and duplicate inserts with ErrCertificateExists.
type Repository interface {
	Find(ctx context.Context, id string) (*Certificate, error)
	Save(ctx context.Context, cert *Certificate) error
	List(ctx context.Context) ([]*Certificate, error)
}
