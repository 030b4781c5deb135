package market

import "math"

// EscrowAccount holds a trader's pre-funded energy and currency balances.
// Order creation reserves holds against the free balance; settlement and
// cancellation consume or release them. The engine never funds accounts
// itself beyond the explicit Deposit operation.
type EscrowAccount struct {
	owner           string
	energyBalance   uint64
	currencyBalance uint64
	heldEnergy      uint64
	heldCurrency    uint64
	frozen          bool

	version int
	isNew   bool
}

// NewEscrowAccount creates an empty account.
func NewEscrowAccount(owner string) (*EscrowAccount, error) {
	if owner == "" {
		return nil, ErrEmptyOwner
	}
	return &EscrowAccount{owner: owner, isNew: true}, nil
}

// RestoreEscrowAccount rebuilds a persisted account.
func RestoreEscrowAccount(owner string, energyBalance, currencyBalance, heldEnergy, heldCurrency uint64, frozen bool, version int) *EscrowAccount {
	return &EscrowAccount{
		owner:           owner,
		energyBalance:   energyBalance,
		currencyBalance: currencyBalance,
		heldEnergy:      heldEnergy,
		heldCurrency:    heldCurrency,
		frozen:          frozen,
		version:         version,
	}
}

// Deposit adds pre-funded balances.
func (a *EscrowAccount) Deposit(energy, currency uint64) error {
	if a.frozen {
		return ErrAccountFrozen
	}
	if a.energyBalance > math.MaxUint64-energy || a.currencyBalance > math.MaxUint64-currency {
		return ErrBalanceOverflow
	}
	a.energyBalance += energy
	a.currencyBalance += currency
	return nil
}

// HoldEnergy reserves energy against the free balance.
func (a *EscrowAccount) HoldEnergy(amount uint64) error {
	if a.frozen {
		return ErrAccountFrozen
	}
	if amount > a.FreeEnergy() {
		return ErrInsufficientEscrow
	}
	a.heldEnergy += amount
	return nil
}

// HoldCurrency reserves currency against the free balance.
func (a *EscrowAccount) HoldCurrency(amount uint64) error {
	if a.frozen {
		return ErrAccountFrozen
	}
	if amount > a.FreeCurrency() {
		return ErrInsufficientEscrow
	}
	a.heldCurrency += amount
	return nil
}

// ReleaseEnergy returns a held energy reservation to the free balance.
func (a *EscrowAccount) ReleaseEnergy(amount uint64) error {
	if amount > a.heldEnergy {
		return ErrHoldUnderflow
	}
	a.heldEnergy -= amount
	return nil
}

// ReleaseCurrency returns a held currency reservation to the free balance.
func (a *EscrowAccount) ReleaseCurrency(amount uint64) error {
	if amount > a.heldCurrency {
		return ErrHoldUnderflow
	}
	a.heldCurrency -= amount
	return nil
}

// DebitHeldEnergy consumes a held energy reservation.
func (a *EscrowAccount) DebitHeldEnergy(amount uint64) error {
	if a.frozen {
		return ErrAccountFrozen
	}
	if amount > a.heldEnergy || amount > a.energyBalance {
		return ErrInsufficientEscrow
	}
	a.heldEnergy -= amount
	a.energyBalance -= amount
	return nil
}

// DebitHeldCurrency consumes a held currency reservation.
func (a *EscrowAccount) DebitHeldCurrency(amount uint64) error {
	if a.frozen {
		return ErrAccountFrozen
	}
	if amount > a.heldCurrency || amount > a.currencyBalance {
		return ErrInsufficientEscrow
	}
	a.heldCurrency -= amount
	a.currencyBalance -= amount
	return nil
}

// CreditEnergy adds delivered energy.
func (a *EscrowAccount) CreditEnergy(amount uint64) error {
	if a.frozen {
		return ErrAccountFrozen
	}
	if a.energyBalance > math.MaxUint64-amount {
		return ErrBalanceOverflow
	}
	a.energyBalance += amount
	return nil
}

// CreditCurrency adds settlement proceeds.
func (a *EscrowAccount) CreditCurrency(amount uint64) error {
	if a.frozen {
		return ErrAccountFrozen
	}
	if a.currencyBalance > math.MaxUint64-amount {
		return ErrBalanceOverflow
	}
	a.currencyBalance += amount
	return nil
}

// SetFrozen toggles the freeze flag.
func (a *EscrowAccount) SetFrozen(frozen bool) { a.frozen = frozen }

// FreeEnergy returns the unreserved energy balance.
func (a *EscrowAccount) FreeEnergy() uint64 { return a.energyBalance - a.heldEnergy }

// FreeCurrency returns the unreserved currency balance.
func (a *EscrowAccount) FreeCurrency() uint64 { return a.currencyBalance - a.heldCurrency }

func (a *EscrowAccount) Owner() string           { return a.owner }
func (a *EscrowAccount) EnergyBalance() uint64   { return a.energyBalance }
func (a *EscrowAccount) CurrencyBalance() uint64 { return a.currencyBalance }
func (a *EscrowAccount) HeldEnergy() uint64      { return a.heldEnergy }
func (a *EscrowAccount) HeldCurrency() uint64    { return a.heldCurrency }
func (a *EscrowAccount) Frozen() bool            { return a.frozen }

// Version returns the optimistic concurrency version.
func (a *EscrowAccount) Version() int { return a.version }

// IsNew reports whether the account was freshly created.
func (a *EscrowAccount) IsNew() bool { return a.isNew }

// MarkPersisted marks the account as persisted and bumps the version.
func (a *EscrowAccount) MarkPersisted() {
	if a != nil {
		a.isNew = false
		a.version++
	}
}

// Clone returns a detached copy.
func (a *EscrowAccount) Clone() *EscrowAccount {
	if a == nil {
		return nil
	}
	copy := *a
	return &copy
}
