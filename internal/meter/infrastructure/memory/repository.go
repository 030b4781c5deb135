package memory

import (
	"context"
	"sort"
	"sync"

	meter "energytrade/internal/meter/domain"
	"energytrade/internal/uow"
)

// MeterRepository is an in-memory meter store.
type MeterRepository struct {
	mu   sync.RWMutex
	data map[string]*meter.Meter
}

// NewMeterRepository constructs a repository.
func NewMeterRepository() *MeterRepository {
	return &MeterRepository{data: make(map[string]*meter.Meter)}
}

// Find loads a meter by id, nil when absent.
func (r *MeterRepository) Find(ctx context.Context, id string) (*meter.Meter, error) {
	_ = ctx
	if id == "" {
		return nil, meter.ErrEmptyMeterID
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	m := r.data[id]
	if m == nil {
		return nil, nil
	}
	return m.Clone(), nil
}

// Save persists a meter, rejecting stale versions.
func (r *MeterRepository) Save(ctx context.Context, m *meter.Meter) error {
	_ = ctx
	if m == nil {
		return meter.ErrNilAggregate
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	existing := r.data[m.ID()]
	if existing != nil && existing.Version() != m.Version() {
		return uow.ErrConflict
	}
	if existing == nil && !m.IsNew() {
		return uow.ErrConflict
	}
	stored := m.Clone()
	stored.MarkPersisted()
	r.data[m.ID()] = stored
	m.MarkPersisted()
	return nil
}

// List returns all meters ordered by id.
func (r *MeterRepository) List(ctx context.Context) ([]*meter.Meter, error) {
	_ = ctx
	r.mu.RLock()
	defer r.mu.RUnlock()
	result := make([]*meter.Meter, 0, len(r.data))
	for _, m := range r.data {
		result = append(result, m.Clone())
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID() < result[j].ID() })
	return result, nil
}
