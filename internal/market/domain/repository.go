package market

import "context"

// OrderRepository persists orders. Save must reject stale versions with
// uow.ErrConflict and duplicate inserts with ErrOrderExists.
type OrderRepository interface {
	Find(ctx context.Context, id string) (*Order, error)
	Save(ctx context.Context, order *Order) error
	List(ctx context.Context) ([]*Order, error)
}

// TradeRepository appends immutable trade records.
type TradeRepository interface {
	Append(ctx context.Context, trade TradeRecord) error
	List(ctx context.Context) ([]TradeRecord, error)
}

// EscrowRepository persists escrow accounts keyed by owner.
type EscrowRepository interface {
	Find(ctx context.Context, owner string) (*EscrowAccount, error)
	Save(ctx context.Context, account *EscrowAccount) error
}

// StatsRepository persists the single market stats row.
type StatsRepository interface {
	Get(ctx context.Context) (*MarketStats, error)
	Save(ctx context.Context, stats *MarketStats) error
}
