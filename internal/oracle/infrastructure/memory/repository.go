package memory

import (
	"context"
	"sync"

	oracle "energytrade/internal/oracle/domain"
	"energytrade/internal/uow"
)

// ValidatorRepository is an in-memory validator store.
type ValidatorRepository struct {
	mu        sync.RWMutex
	validator *oracle.Validator
}

// NewValidatorRepository constructs a repository seeded with the validator.
func NewValidatorRepository(validator *oracle.Validator) *ValidatorRepository {
	repo := &ValidatorRepository{}
	if validator != nil {
		stored := validator.Clone()
		stored.MarkPersisted()
		repo.validator = stored
		validator.MarkPersisted()
	}
	return repo
}

// Get loads the validator.
func (r *ValidatorRepository) Get(ctx context.Context) (*oracle.Validator, error) {
	_ = ctx
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.validator == nil {
		return nil, oracle.ErrNilAggregate
	}
	return r.validator.Clone(), nil
}

// Save persists the validator, rejecting stale versions.
func (r *ValidatorRepository) Save(ctx context.Context, validator *oracle.Validator) error {
	_ = ctx
	if validator == nil {
		return oracle.ErrNilAggregate
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.validator != nil && r.validator.Version() != validator.Version() {
		return uow.ErrConflict
	}
	stored := validator.Clone()
	stored.MarkPersisted()
	r.validator = stored
	validator.MarkPersisted()
	return nil
}
