package token

import "math"

// Supply is the single credit supply aggregate. Exactly one exists per
// deployment; every supply change flows through it.
type Supply struct {
	authority           string
	settlementAuthority string
	totalSupply         uint64
	burned              uint64
	mintEnabled         bool

	version int
	isNew   bool
}

// NewSupply creates the supply aggregate with minting enabled.
func NewSupply(authority, settlementAuthority string) (*Supply, error) {
	if authority == "" || settlementAuthority == "" {
		return nil, ErrEmptyHolder
	}
	return &Supply{
		authority:           authority,
		settlementAuthority: settlementAuthority,
		mintEnabled:         true,
		isNew:               true,
	}, nil
}

// RestoreSupply rebuilds a persisted supply aggregate.
func RestoreSupply(authority, settlementAuthority string, totalSupply, burned uint64, mintEnabled bool, version int) *Supply {
	return &Supply{
		authority:           authority,
		settlementAuthority: settlementAuthority,
		totalSupply:         totalSupply,
		burned:              burned,
		mintEnabled:         mintEnabled,
		version:             version,
	}
}

// CanMint reports whether the caller may mint.
func (s *Supply) CanMint(caller string) bool {
	return caller == s.settlementAuthority || caller == s.authority
}

// IsAuthority reports whether the caller is the token authority.
func (s *Supply) IsAuthority(caller string) bool {
	return caller == s.authority
}

// Mint increases total supply.
func (s *Supply) Mint(amount uint64) error {
	if amount == 0 {
		return ErrZeroAmount
	}
	if !s.mintEnabled {
		return ErrMintingDisabled
	}
	if s.totalSupply > math.MaxUint64-amount {
		return ErrSupplyOverflow
	}
	s.totalSupply += amount
	return nil
}

// Burn increases the burned counter. The caller checks the holder balance.
func (s *Supply) Burn(amount uint64) error {
	if amount == 0 {
		return ErrZeroAmount
	}
	if s.burned > math.MaxUint64-amount || s.burned+amount > s.totalSupply {
		return ErrInsufficientBalance
	}
	s.burned += amount
	return nil
}

// SetMintEnabled toggles minting.
func (s *Supply) SetMintEnabled(enabled bool) {
	s.mintEnabled = enabled
}

// Authority returns the token authority.
func (s *Supply) Authority() string { return s.authority }

// SettlementAuthority returns the settlement authority.
func (s *Supply) SettlementAuthority() string { return s.settlementAuthority }

// TotalSupply returns the lifetime minted supply.
func (s *Supply) TotalSupply() uint64 { return s.totalSupply }

// Burned returns the lifetime burned amount.
func (s *Supply) Burned() uint64 { return s.burned }

// Circulating returns total supply minus burned.
func (s *Supply) Circulating() uint64 { return s.totalSupply - s.burned }

// MintEnabled reports whether minting is enabled.
func (s *Supply) MintEnabled() bool { return s.mintEnabled }

// Version returns the optimistic concurrency version.
func (s *Supply) Version() int { return s.version }

// IsNew reports whether the aggregate was freshly created.
func (s *Supply) IsNew() bool { return s.isNew }

// MarkPersisted marks the aggregate as persisted and bumps the version.
func (s *Supply) MarkPersisted() {
	if s != nil {
		s.isNew = false
		s.version++
	}
}

// Clone returns a detached copy.
func (s *Supply) Clone() *Supply {
	if s == nil {
		return nil
	}
	copy := *s
	return &copy
}
