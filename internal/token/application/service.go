package application

import (
	"context"
	"errors"
	"time"

	token "energytrade/internal/token/domain"
	"energytrade/internal/uow"
)

// CreditsMinted is emitted when new credits enter circulation.
type CreditsMinted struct {
	Account    string    `json:"account"`
	Amount     uint64    `json:"amount"`
	Caller     string    `json:"caller"`
	OccurredAt time.Time `json:"occurred_at"`
}

// CreditsBurned is emitted when credits leave circulation.
type CreditsBurned struct {
	Account    string    `json:"account"`
	Amount     uint64    `json:"amount"`
	Caller     string    `json:"caller"`
	OccurredAt time.Time `json:"occurred_at"`
}

// CreditsTransferred is emitted on a balance transfer between holders.
type CreditsTransferred struct {
	Account    string    `json:"account"`
	To         string    `json:"to"`
	Amount     uint64    `json:"amount"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Publisher emits token events.
type Publisher interface {
	Publish(ctx context.Context, event any) error
}

// Clock returns the current time.
type Clock interface {
	Now() time.Time
}

// SystemClock uses time.Now.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

// TokenService is the single choke point for supply changes. Mint is only
// reachable from the settlement path or the token authority.
type TokenService struct {
	supplies  token.SupplyRepository
	holdings  token.HoldingRepository
	runner    uow.Runner
	publisher Publisher
	clock     Clock
}

// NewTokenService constructs the service.
func NewTokenService(
	supplies token.SupplyRepository,
	holdings token.HoldingRepository,
	runner uow.Runner,
	publisher Publisher,
	clock Clock,
) (*TokenService, error) {
	if supplies == nil {
		return nil, errors.New("token service: nil supply repository")
	}
	if holdings == nil {
		return nil, errors.New("token service: nil holding repository")
	}
	if runner == nil {
		return nil, errors.New("token service: nil uow runner")
	}
	if clock == nil {
		clock = SystemClock{}
	}
	return &TokenService{
		supplies:  supplies,
		holdings:  holdings,
		runner:    runner,
		publisher: publisher,
		clock:     clock,
	}, nil
}

// Mint creates amount credits for the recipient. Caller must be the
// settlement authority or the token authority.
func (s *TokenService) Mint(ctx context.Context, caller, recipient string, amount uint64) error {
	if recipient == "" {
		return token.ErrEmptyHolder
	}
	if amount == 0 {
		return token.ErrZeroAmount
	}

	err := s.runner.RunInTx(ctx, func(ctx context.Context) error {
		supply, err := s.supplies.Get(ctx)
		if err != nil {
			return err
		}
		if !supply.CanMint(caller) {
			return token.ErrUnauthorizedMinter
		}
		if err := supply.Mint(amount); err != nil {
			return err
		}
		holding, err := s.loadOrCreateHolding(ctx, recipient)
		if err != nil {
			return err
		}
		if err := holding.Credit(amount); err != nil {
			return err
		}
		if err := s.supplies.Save(ctx, supply); err != nil {
			return err
		}
		return s.holdings.Save(ctx, holding)
	})
	if err != nil {
		return err
	}

	return s.publish(ctx, CreditsMinted{
		Account:    recipient,
		Amount:     amount,
		Caller:     caller,
		OccurredAt: s.clock.Now().UTC(),
	})
}

// Burn removes amount credits from the holder. Caller must be the holder
// or the token authority.
func (s *TokenService) Burn(ctx context.Context, caller, holder string, amount uint64) error {
	if holder == "" {
		return token.ErrEmptyHolder
	}
	if amount == 0 {
		return token.ErrZeroAmount
	}

	err := s.runner.RunInTx(ctx, func(ctx context.Context) error {
		supply, err := s.supplies.Get(ctx)
		if err != nil {
			return err
		}
		if caller != holder && !supply.IsAuthority(caller) {
			return token.ErrUnauthorizedHolder
		}
		holding, err := s.holdings.Find(ctx, holder)
		if err != nil {
			return err
		}
		if holding == nil || holding.Balance() < amount {
			return token.ErrInsufficientBalance
		}
		if err := holding.Debit(amount); err != nil {
			return err
		}
		if err := supply.Burn(amount); err != nil {
			return err
		}
		if err := s.supplies.Save(ctx, supply); err != nil {
			return err
		}
		return s.holdings.Save(ctx, holding)
	})
	if err != nil {
		return err
	}

	return s.publish(ctx, CreditsBurned{
		Account:    holder,
		Amount:     amount,
		Caller:     caller,
		OccurredAt: s.clock.Now().UTC(),
	})
}

// Transfer moves credits between holders. Caller must own the source
// balance or be the token authority.
func (s *TokenService) Transfer(ctx context.Context, caller, from, to string, amount uint64) error {
	if from == "" || to == "" {
		return token.ErrEmptyHolder
	}
	if amount == 0 {
		return token.ErrZeroAmount
	}

	err := s.runner.RunInTx(ctx, func(ctx context.Context) error {
		if caller != from {
			supply, err := s.supplies.Get(ctx)
			if err != nil {
				return err
			}
			if !supply.IsAuthority(caller) {
				return token.ErrUnauthorizedHolder
			}
		}
		source, err := s.holdings.Find(ctx, from)
		if err != nil {
			return err
		}
		if source == nil || source.Balance() < amount {
			return token.ErrInsufficientBalance
		}
		if from == to {
			return nil
		}
		if err := source.Debit(amount); err != nil {
			return err
		}
		dest, err := s.loadOrCreateHolding(ctx, to)
		if err != nil {
			return err
		}
		if err := dest.Credit(amount); err != nil {
			return err
		}
		if err := s.holdings.Save(ctx, source); err != nil {
			return err
		}
		return s.holdings.Save(ctx, dest)
	})
	if err != nil {
		return err
	}

	return s.publish(ctx, CreditsTransferred{
		Account:    from,
		To:         to,
		Amount:     amount,
		OccurredAt: s.clock.Now().UTC(),
	})
}

// SetMintEnabled toggles minting. Token authority only.
func (s *TokenService) SetMintEnabled(ctx context.Context, caller string, enabled bool) error {
	return s.runner.RunInTx(ctx, func(ctx context.Context) error {
		supply, err := s.supplies.Get(ctx)
		if err != nil {
			return err
		}
		if !supply.IsAuthority(caller) {
			return token.ErrUnauthorizedAuthority
		}
		supply.SetMintEnabled(enabled)
		return s.supplies.Save(ctx, supply)
	})
}

// Supply returns a snapshot of the supply aggregate.
func (s *TokenService) Supply(ctx context.Context) (*token.Supply, error) {
	return s.supplies.Get(ctx)
}

// Balance returns a holder's current balance.
func (s *TokenService) Balance(ctx context.Context, holder string) (uint64, error) {
	if holder == "" {
		return 0, token.ErrEmptyHolder
	}
	holding, err := s.holdings.Find(ctx, holder)
	if err != nil {
		return 0, err
	}
	if holding == nil {
		return 0, nil
	}
	return holding.Balance(), nil
}

func (s *TokenService) loadOrCreateHolding(ctx context.Context, holder string) (*token.Holding, error) {
	holding, err := s.holdings.Find(ctx, holder)
	if err != nil {
		return nil, err
	}
	if holding != nil {
		return holding, nil
	}
	return token.NewHolding(holder)
}

func (s *TokenService) publish(ctx context.Context, event any) error {
	if s.publisher == nil {
		return nil
	}
	return s.publisher.Publish(ctx, event)
}
