package token

import "math"

// Holding is a per-holder credit balance.
type Holding struct {
	holder  string
	balance uint64

	version int
	isNew   bool
}

// NewHolding creates an empty holding for a holder.
func NewHolding(holder string) (*Holding, error) {
	if holder == "" {
		return nil, ErrEmptyHolder
	}
	return &Holding{holder: holder, isNew: true}, nil
}

// RestoreHolding rebuilds a persisted holding.
func RestoreHolding(holder string, balance uint64, version int) *Holding {
	return &Holding{holder: holder, balance: balance, version: version}
}

// Credit adds credits to the balance.
func (h *Holding) Credit(amount uint64) error {
	if amount == 0 {
		return ErrZeroAmount
	}
	if h.balance > math.MaxUint64-amount {
		return ErrSupplyOverflow
	}
	h.balance += amount
	return nil
}

// Debit removes credits from the balance.
func (h *Holding) Debit(amount uint64) error {
	if amount == 0 {
		return ErrZeroAmount
	}
	if amount > h.balance {
		return ErrInsufficientBalance
	}
	h.balance -= amount
	return nil
}

// Holder returns the holder id.
func (h *Holding) Holder() string { return h.holder }

// Balance returns the current balance.
func (h *Holding) Balance() uint64 { return h.balance }

// Version returns the optimistic concurrency version.
func (h *Holding) Version() int { return h.version }

// IsNew reports whether the holding was freshly created.
func (h *Holding) IsNew() bool { return h.isNew }

// MarkPersisted marks the holding as persisted and bumps the version.
func (h *Holding) MarkPersisted() {
	if h != nil {
		h.isNew = false
		h.version++
	}
}

// Clone returns a detached copy.
func (h *Holding) Clone() *Holding {
	if h == nil {
		return nil
	}
	copy := *h
	return &copy
}
