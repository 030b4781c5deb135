package memory

import (
	"context"
	"sync"

	token "energytrade/internal/token/domain"
	"energytrade/internal/uow"
)

// SupplyRepository is an in-memory supply store.
type SupplyRepository struct {
	mu     sync.RWMutex
	supply *token.Supply
}

// NewSupplyRepository constructs a repository seeded with the supply.
func NewSupplyRepository(supply *token.Supply) *SupplyRepository {
	repo := &SupplyRepository{}
	if supply != nil {
		stored := supply.Clone()
		stored.MarkPersisted()
		repo.supply = stored
		supply.MarkPersisted()
	}
	return repo
}

// Get loads the supply aggregate.
func (r *SupplyRepository) Get(ctx context.Context) (*token.Supply, error) {
	_ = ctx
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.supply == nil {
		return nil, token.ErrNilAggregate
	}
	return r.supply.Clone(), nil
}

// Save persists the supply, rejecting stale versions.
func (r *SupplyRepository) Save(ctx context.Context, supply *token.Supply) error {
	_ = ctx
	if supply == nil {
		return token.ErrNilAggregate
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.supply != nil && r.supply.Version() != supply.Version() {
		return uow.ErrConflict
	}
	stored := supply.Clone()
	stored.MarkPersisted()
	r.supply = stored
	supply.MarkPersisted()
	return nil
}

// HoldingRepository is an in-memory balance store.
type HoldingRepository struct {
	mu   sync.RWMutex
	data map[string]*token.Holding
}

// NewHoldingRepository constructs a repository.
func NewHoldingRepository() *HoldingRepository {
	return &HoldingRepository{data: make(map[string]*token.Holding)}
}

// Find loads a holding by holder, nil when absent.
func (r *HoldingRepository) Find(ctx context.Context, holder string) (*token.Holding, error) {
	_ = ctx
	if holder == "" {
		return nil, token.ErrEmptyHolder
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	holding := r.data[holder]
	if holding == nil {
		return nil, nil
	}
	return holding.Clone(), nil
}

// Save persists a holding, rejecting stale versions.
func (r *HoldingRepository) Save(ctx context.Context, holding *token.Holding) error {
	_ = ctx
	if holding == nil {
		return token.ErrNilAggregate
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	existing := r.data[holding.Holder()]
	if existing != nil && existing.Version() != holding.Version() {
		return uow.ErrConflict
	}
	if existing == nil && !holding.IsNew() {
		return uow.ErrConflict
	}
	stored := holding.Clone()
	stored.MarkPersisted()
	r.data[holding.Holder()] = stored
	holding.MarkPersisted()
	return nil
}
