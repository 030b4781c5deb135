package token

import "context"

// SupplyRepository persists the supply aggregate. Save must reject stale
// versions with uow.ErrConflict.
type SupplyRepository interface {
	Get(ctx context.Context) (*Supply, error)
	Save(ctx context.Context, supply *Supply) error
}

// HoldingRepository persists per-holder balances.
type HoldingRepository interface {
	Find(ctx context.Context, holder string) (*Holding, error)
	Save(ctx context.Context, holding *Holding) error
}
