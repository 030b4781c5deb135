package token

import (
	"context"
	"errors"

	tokenapp "energytrade/internal/token/application"
)

// Minter adapts the token service to the meter ledger's settlement mint
// call, invoking it as the configured settlement authority.
type Minter struct {
	service             *tokenapp.TokenService
	settlementAuthority string
}

// NewMinter constructs the adapter.
func NewMinter(service *tokenapp.TokenService, settlementAuthority string) (*Minter, error) {
	if service == nil {
		return nil, errors.New("token minter: nil token service")
	}
	if settlementAuthority == "" {
		return nil, errors.New("token minter: empty settlement authority")
	}
	return &Minter{service: service, settlementAuthority: settlementAuthority}, nil
}

// MintForSettlement mints credits for settled generation.
func (m *Minter) MintForSettlement(ctx context.Context, recipient string, amount uint64) error {
	return m.service.Mint(ctx, m.settlementAuthority, recipient, amount)
}
