package memory

import (
	"context"
	"sort"
	"sync"

	market "energytrade/internal/market/domain"
	"energytrade/internal/uow"
)

// OrderRepository is an in-memory order store.
type OrderRepository struct {
	mu     sync.RWMutex
	orders map[string]*market.Order
}

// NewOrderRepository constructs an empty repository.
func NewOrderRepository() *OrderRepository {
	return &OrderRepository{orders: make(map[string]*market.Order)}
}

// Find loads an order by id.
func (r *OrderRepository) Find(ctx context.Context, id string) (*market.Order, error) {
	_ = ctx
	r.mu.RLock()
	defer r.mu.RUnlock()
	order, ok := r.orders[id]
	if !ok {
		return nil, market.ErrOrderNotFound
	}
	return order.Clone(), nil
}

// Save persists an order, rejecting stale versions.
func (r *OrderRepository) Save(ctx context.Context, order *market.Order) error {
	_ = ctx
	if order == nil {
		return market.ErrNilAggregate
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	existing := r.orders[order.ID()]
	if order.IsNew() {
		if existing != nil {
			return market.ErrOrderExists
		}
	} else {
		if existing == nil {
			return market.ErrOrderNotFound
		}
		if existing.Version() != order.Version() {
			return uow.ErrConflict
		}
	}
	stored := order.Clone()
	stored.MarkPersisted()
	r.orders[order.ID()] = stored
	order.MarkPersisted()
	return nil
}

// List returns all orders sorted by creation time, then id.
func (r *OrderRepository) List(ctx context.Context) ([]*market.Order, error) {
	_ = ctx
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*market.Order, 0, len(r.orders))
	for _, order := range r.orders {
		out = append(out, order.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt().Equal(out[j].CreatedAt()) {
			return out[i].CreatedAt().Before(out[j].CreatedAt())
		}
		return out[i].ID() < out[j].ID()
	})
	return out, nil
}

// TradeRepository is an in-memory append-only trade log.
type TradeRepository struct {
	mu     sync.RWMutex
	trades []market.TradeRecord
}

// NewTradeRepository constructs an empty repository.
func NewTradeRepository() *TradeRepository {
	return &TradeRepository{}
}

// Append stores an immutable trade record.
func (r *TradeRepository) Append(ctx context.Context, trade market.TradeRecord) error {
	_ = ctx
	r.mu.Lock()
	defer r.mu.Unlock()
	r.trades = append(r.trades, trade)
	return nil
}

// List returns all trades in execution order.
func (r *TradeRepository) List(ctx context.Context) ([]market.TradeRecord, error) {
	_ = ctx
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]market.TradeRecord(nil), r.trades...), nil
}

// EscrowRepository is an in-memory escrow account store.
type EscrowRepository struct {
	mu       sync.RWMutex
	accounts map[string]*market.EscrowAccount
}

// NewEscrowRepository constructs an empty repository.
func NewEscrowRepository() *EscrowRepository {
	return &EscrowRepository{accounts: make(map[string]*market.EscrowAccount)}
}

// Find loads an account by owner.
func (r *EscrowRepository) Find(ctx context.Context, owner string) (*market.EscrowAccount, error) {
	_ = ctx
	r.mu.RLock()
	defer r.mu.RUnlock()
	account, ok := r.accounts[owner]
	if !ok {
		return nil, market.ErrEscrowNotFound
	}
	return account.Clone(), nil
}

// Save persists an account, rejecting stale versions.
func (r *EscrowRepository) Save(ctx context.Context, account *market.EscrowAccount) error {
	_ = ctx
	if account == nil {
		return market.ErrNilAggregate
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	existing := r.accounts[account.Owner()]
	if !account.IsNew() {
		if existing == nil {
			return market.ErrEscrowNotFound
		}
		if existing.Version() != account.Version() {
			return uow.ErrConflict
		}
	} else if existing != nil {
		return uow.ErrConflict
	}
	stored := account.Clone()
	stored.MarkPersisted()
	r.accounts[account.Owner()] = stored
	account.MarkPersisted()
	return nil
}

// StatsRepository holds the single in-memory stats row.
type StatsRepository struct {
	mu    sync.RWMutex
	stats *market.MarketStats
}

// NewStatsRepository constructs a repository seeded with zeroed stats.
func NewStatsRepository() *StatsRepository {
	stats := market.NewMarketStats()
	stats.MarkPersisted()
	return &StatsRepository{stats: stats}
}

// Get loads the stats row.
func (r *StatsRepository) Get(ctx context.Context) (*market.MarketStats, error) {
	_ = ctx
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.stats.Clone(), nil
}

// Save persists the stats row, rejecting stale versions.
func (r *StatsRepository) Save(ctx context.Context, stats *market.MarketStats) error {
	_ = ctx
	if stats == nil {
		return market.ErrNilAggregate
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stats.Version() != stats.Version() {
		return uow.ErrConflict
	}
	stored := stats.Clone()
	stored.MarkPersisted()
	r.stats = stored
	stats.MarkPersisted()
	return nil
}
