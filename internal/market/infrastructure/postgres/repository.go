package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	market "energytrade/internal/market/domain"
	"energytrade/internal/uow"
	uowpg "energytrade/internal/uow/postgres"
)

const orderColumns = `id, side, owner, amount, filled_amount, price_per_unit,
	certificate_id, status, created_at, expires_at, version`

// OrderRepository is the Postgres order store.
type OrderRepository struct {
	db *sql.DB
}

// NewOrderRepository constructs a repository.
func NewOrderRepository(db *sql.DB) (*OrderRepository, error) {
	if db == nil {
		return nil, errors.New("order repository: nil db")
	}
	return &OrderRepository{db: db}, nil
}

// Find loads an order by id.
func (r *OrderRepository) Find(ctx context.Context, id string) (*market.Order, error) {
	q := uowpg.QuerierFor(ctx, r.db)
	row := q.QueryRowContext(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id)
	order, err := scanOrder(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, market.ErrOrderNotFound
		}
		return nil, err
	}
	return order, nil
}

// Save persists an order with a version check.
func (r *OrderRepository) Save(ctx context.Context, order *market.Order) error {
	if order == nil {
		return market.ErrNilAggregate
	}
	q := uowpg.QuerierFor(ctx, r.db)
	if order.IsNew() {
		result, err := q.ExecContext(ctx, `
INSERT INTO orders (`+orderColumns+`)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,1)
ON CONFLICT (id) DO NOTHING`,
			order.ID(), string(order.Side()), order.Owner(),
			order.Amount(), order.FilledAmount(), order.PricePerUnit(),
			order.CertificateID(), string(order.Status()),
			order.CreatedAt(), order.ExpiresAt())
		if err != nil {
			return err
		}
		affected, err := result.RowsAffected()
		if err != nil {
			return err
		}
		if affected == 0 {
			return market.ErrOrderExists
		}
		order.MarkPersisted()
		return nil
	}

	result, err := q.ExecContext(ctx, `
UPDATE orders
SET filled_amount = $1, status = $2, version = version + 1
WHERE id = $3 AND version = $4`,
		order.FilledAmount(), string(order.Status()), order.ID(), order.Version())
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
	order.MarkPersisted()
	return nil
}

// List returns all orders sorted by creation time.
func (r *OrderRepository) List(ctx context.Context) ([]*market.Order, error) {
	q := uowpg.QuerierFor(ctx, r.db)
	rows, err := q.QueryContext(ctx, `SELECT `+orderColumns+` FROM orders ORDER BY created_at, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*market.Order
	for rows.Next() {
		order, err := scanOrder(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, order)
	}
	return out, rows.Err()
}

func scanOrder(scan func(...any) error) (*market.Order, error) {
	var id, side, owner, certificateID, status string
	var amount, filledAmount, pricePerUnit uint64
	var createdAt, expiresAt time.Time
	var version int
	if err := scan(&id, &side, &owner, &amount, &filledAmount, &pricePerUnit,
		&certificateID, &status, &createdAt, &expiresAt, &version); err != nil {
		return nil, err
	}
	return market.RestoreOrder(
		id, market.Side(side), owner,
		amount, filledAmount, pricePerUnit,
		certificateID, market.OrderStatus(status),
		createdAt, expiresAt, version,
	), nil
}

// TradeRepository is the Postgres append-only trade log.
type TradeRepository struct {
	db *sql.DB
}

// NewTradeRepository constructs a repository.
func NewTradeRepository(db *sql.DB) (*TradeRepository, error) {
	if db == nil {
		return nil, errors.New("trade repository: nil db")
	}
	return &TradeRepository{db: db}, nil
}

// Append stores an immutable trade record.
func (r *TradeRepository) Append(ctx context.Context, trade market.TradeRecord) error {
	q := uowpg.QuerierFor(ctx, r.db)
	_, err := q.ExecContext(ctx, `
INSERT INTO trade_records (
	id, buy_order_id, sell_order_id, buyer, seller,
	amount, price, total_value, fee, wheeling_charge, executed_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`,
		trade.ID, trade.BuyOrderID, trade.SellOrderID, trade.Buyer, trade.Seller,
		trade.Amount, trade.Price, trade.TotalValue, trade.Fee, trade.WheelingCharge,
		trade.ExecutedAt)
	return err
}

// List returns all trades in execution order.
func (r *TradeRepository) List(ctx context.Context) ([]market.TradeRecord, error) {
	q := uowpg.QuerierFor(ctx, r.db)
	rows, err := q.QueryContext(ctx, `
SELECT id, buy_order_id, sell_order_id, buyer, seller,
	amount, price, total_value, fee, wheeling_charge, executed_at
FROM trade_records ORDER BY executed_at, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []market.TradeRecord
	for rows.Next() {
		var trade market.TradeRecord
		if err := rows.Scan(&trade.ID, &trade.BuyOrderID, &trade.SellOrderID,
			&trade.Buyer, &trade.Seller, &trade.Amount, &trade.Price,
			&trade.TotalValue, &trade.Fee, &trade.WheelingCharge, &trade.ExecutedAt); err != nil {
			return nil, err
		}
		out = append(out, trade)
	}
	return out, rows.Err()
}

// EscrowRepository is the Postgres escrow account store.
type EscrowRepository struct {
	db *sql.DB
}

// NewEscrowRepository constructs a repository.
func NewEscrowRepository(db *sql.DB) (*EscrowRepository, error) {
	if db == nil {
		return nil, errors.New("escrow repository: nil db")
	}
	return &EscrowRepository{db: db}, nil
}

// Find loads an account by owner.
func (r *EscrowRepository) Find(ctx context.Context, owner string) (*market.EscrowAccount, error) {
	q := uowpg.QuerierFor(ctx, r.db)
	row := q.QueryRowContext(ctx, `
SELECT owner, energy_balance, currency_balance, held_energy, held_currency, frozen, version
FROM escrow_accounts WHERE owner = $1`, owner)

	var energyBalance, currencyBalance, heldEnergy, heldCurrency uint64
	var frozen bool
	var version int
	var storedOwner string
	if err := row.Scan(&storedOwner, &energyBalance, &currencyBalance,
		&heldEnergy, &heldCurrency, &frozen, &version); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, market.ErrEscrowNotFound
		}
		return nil, err
	}
	return market.RestoreEscrowAccount(storedOwner, energyBalance, currencyBalance,
		heldEnergy, heldCurrency, frozen, version), nil
}

// Save persists an account with a version check.
func (r *EscrowRepository) Save(ctx context.Context, account *market.EscrowAccount) error {
	if account == nil {
		return market.ErrNilAggregate
	}
	q := uowpg.QuerierFor(ctx, r.db)
	if account.IsNew() {
		result, err := q.ExecContext(ctx, `
INSERT INTO escrow_accounts (owner, energy_balance, currency_balance, held_energy, held_currency, frozen, version)
VALUES ($1,$2,$3,$4,$5,$6,1)
ON CONFLICT (owner) DO NOTHING`,
			account.Owner(), account.EnergyBalance(), account.CurrencyBalance(),
			account.HeldEnergy(), account.HeldCurrency(), account.Frozen())
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
		account.MarkPersisted()
		return nil
	}

	result, err := q.ExecContext(ctx, `
UPDATE escrow_accounts
SET energy_balance = $1, currency_balance = $2, held_energy = $3, held_currency = $4, frozen = $5,
	version = version + 1
WHERE owner = $6 AND version = $7`,
		account.EnergyBalance(), account.CurrencyBalance(),
		account.HeldEnergy(), account.HeldCurrency(), account.Frozen(),
		account.Owner(), account.Version())
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
	account.MarkPersisted()
	return nil
}

// StatsRepository is the Postgres market stats store. A single row backs
// the tally.
type StatsRepository struct {
	db *sql.DB
}

// NewStatsRepository constructs a repository.
func NewStatsRepository(db *sql.DB) (*StatsRepository, error) {
	if db == nil {
		return nil, errors.New("stats repository: nil db")
	}
	return &StatsRepository{db: db}, nil
}

// Get loads the stats row, returning zeroed stats when none exists yet.
func (r *StatsRepository) Get(ctx context.Context) (*market.MarketStats, error) {
	q := uowpg.QuerierFor(ctx, r.db)
	row := q.QueryRowContext(ctx, `
SELECT total_orders, total_trades, total_volume_wh, total_fees, last_clearing_price, version
FROM market_stats WHERE id = 1`)

	var totalOrders, totalTrades, totalVolumeWh, totalFees, lastClearingPrice uint64
	var version int
	if err := row.Scan(&totalOrders, &totalTrades, &totalVolumeWh, &totalFees,
		&lastClearingPrice, &version); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return market.NewMarketStats(), nil
		}
		return nil, err
	}
	return market.RestoreMarketStats(totalOrders, totalTrades, totalVolumeWh,
		totalFees, lastClearingPrice, version), nil
}

// Save persists the stats row with a version check.
func (r *StatsRepository) Save(ctx context.Context, stats *market.MarketStats) error {
	if stats == nil {
		return market.ErrNilAggregate
	}
	q := uowpg.QuerierFor(ctx, r.db)
	if stats.IsNew() {
		result, err := q.ExecContext(ctx, `
INSERT INTO market_stats (id, total_orders, total_trades, total_volume_wh, total_fees, last_clearing_price, version)
VALUES (1,$1,$2,$3,$4,$5,1)
ON CONFLICT (id) DO NOTHING`,
			stats.TotalOrders(), stats.TotalTrades(), stats.TotalVolumeWh(),
			stats.TotalFees(), stats.LastClearingPrice())
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
		stats.MarkPersisted()
		return nil
	}

	result, err := q.ExecContext(ctx, `
UPDATE market_stats
SET total_orders = $1, total_trades = $2, total_volume_wh = $3, total_fees = $4, last_clearing_price = $5,
	version = version + 1
WHERE id = 1 AND version = $6`,
		stats.TotalOrders(), stats.TotalTrades(), stats.TotalVolumeWh(),
		stats.TotalFees(), stats.LastClearingPrice(), stats.Version())
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
	stats.MarkPersisted()
	return nil
}
