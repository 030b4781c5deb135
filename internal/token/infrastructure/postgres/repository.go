package postgres

import (
	"context"
	"database/sql"
	"errors"

	token "energytrade/internal/token/domain"
	"energytrade/internal/uow"
	uowpg "energytrade/internal/uow/postgres"
)

// SupplyRepository is the Postgres supply store. The supply is a single row.
type SupplyRepository struct {
	db *sql.DB
}

// NewSupplyRepository constructs a repository.
func NewSupplyRepository(db *sql.DB) (*SupplyRepository, error) {
	if db == nil {
		return nil, errors.New("supply repository: nil db")
	}
	return &SupplyRepository{db: db}, nil
}

// Get loads the supply aggregate.
func (r *SupplyRepository) Get(ctx context.Context) (*token.Supply, error) {
	q := uowpg.QuerierFor(ctx, r.db)
	row := q.QueryRowContext(ctx, `
SELECT authority, settlement_authority, total_supply, burned, mint_enabled, version
FROM credit_supply
WHERE id = 1`)

	var authority, settlementAuthority string
	var totalSupply, burned uint64
	var mintEnabled bool
	var version int
	if err := row.Scan(&authority, &settlementAuthority, &totalSupply, &burned, &mintEnabled, &version); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, token.ErrNilAggregate
		}
		return nil, err
	}
	return token.RestoreSupply(authority, settlementAuthority, totalSupply, burned, mintEnabled, version), nil
}

// Save persists the supply with a version check.
func (r *SupplyRepository) Save(ctx context.Context, supply *token.Supply) error {
	if supply == nil {
		return token.ErrNilAggregate
	}
	q := uowpg.QuerierFor(ctx, r.db)
	if supply.IsNew() {
		_, err := q.ExecContext(ctx, `
INSERT INTO credit_supply (id, authority, settlement_authority, total_supply, burned, mint_enabled, version)
VALUES (1, $1, $2, $3, $4, $5, 1)`,
			supply.Authority(), supply.SettlementAuthority(), supply.TotalSupply(), supply.Burned(), supply.MintEnabled())
		if err != nil {
			return err
		}
		supply.MarkPersisted()
		return nil
	}

	result, err := q.ExecContext(ctx, `
UPDATE credit_supply
SET total_supply = $1, burned = $2, mint_enabled = $3, version = version + 1
WHERE id = 1 AND version = $4`,
		supply.TotalSupply(), supply.Burned(), supply.MintEnabled(), supply.Version())
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return uow.ErrConflict
	}
	supply.MarkPersisted()
	return nil
}

// HoldingRepository is the Postgres balance store.
type HoldingRepository struct {
	db *sql.DB
}

// NewHoldingRepository constructs a repository.
func NewHoldingRepository(db *sql.DB) (*HoldingRepository, error) {
	if db == nil {
		return nil, errors.New("holding repository: nil db")
	}
	return &HoldingRepository{db: db}, nil
}

// Find loads a holding by holder, nil when absent.
func (r *HoldingRepository) Find(ctx context.Context, holder string) (*token.Holding, error) {
	if holder == "" {
		return nil, token.ErrEmptyHolder
	}
	q := uowpg.QuerierFor(ctx, r.db)
	row := q.QueryRowContext(ctx, `
SELECT balance, version
FROM credit_holdings
WHERE holder = $1`, holder)

	var balance uint64
	var version int
	if err := row.Scan(&balance, &version); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return token.RestoreHolding(holder, balance, version), nil
}

// Save persists a holding with a version check.
func (r *HoldingRepository) Save(ctx context.Context, holding *token.Holding) error {
	if holding == nil {
		return token.ErrNilAggregate
	}
	q := uowpg.QuerierFor(ctx, r.db)
	if holding.IsNew() {
		result, err := q.ExecContext(ctx, `
INSERT INTO credit_holdings (holder, balance, version)
VALUES ($1, $2, 1)
ON CONFLICT (holder) DO NOTHING`,
			holding.Holder(), holding.Balance())
		if err != nil {
			return err
		}
		affected, err := result.RowsAffected()
		if err != nil {
			return err
		}
		if affected == 0 {
			return uow.ErrConflict
		}
		holding.MarkPersisted()
		return nil
	}

	result, err := q.ExecContext(ctx, `
UPDATE credit_holdings
SET balance = $1, version = version + 1
WHERE holder = $2 AND version = $3`,
		holding.Balance(), holding.Holder(), holding.Version())
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return uow.ErrConflict
	}
	holding.MarkPersisted()
	return nil
}
