package application

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/google/uuid"

	market "energytrade/internal/market/domain"
	"energytrade/internal/uow"
)

// MaxBatchSize caps one batch settlement submission.
const MaxBatchSize = 10

// OrderCreated is emitted when an order enters the book.
type OrderCreated struct {
	OrderID      string    `json:"order_id"`
	Side         string    `json:"side"`
	Owner        string    `json:"owner"`
	Amount       uint64    `json:"amount"`
	PricePerUnit uint64    `json:"price_per_unit"`
	OccurredAt   time.Time `json:"occurred_at"`
}

// OrdersMatched is emitted for a record-only match.
type OrdersMatched struct {
	TradeID     string    `json:"trade_id"`
	BuyOrderID  string    `json:"buy_order_id"`
	SellOrderID string    `json:"sell_order_id"`
	Buyer       string    `json:"buyer"`
	Seller      string    `json:"seller"`
	AmountWh    uint64    `json:"amount_wh"`
	Price       uint64    `json:"price"`
	Fee         uint64    `json:"fee"`
	OccurredAt  time.Time `json:"occurred_at"`
}

// TradeSettled is emitted when a settlement moves escrow balances.
type TradeSettled struct {
	TradeID        string    `json:"trade_id"`
	BuyOrderID     string    `json:"buy_order_id"`
	SellOrderID    string    `json:"sell_order_id"`
	Buyer          string    `json:"buyer"`
	Seller         string    `json:"seller"`
	AmountWh       uint64    `json:"amount_wh"`
	Price          uint64    `json:"price"`
	Fee            uint64    `json:"fee"`
	WheelingCharge uint64    `json:"wheeling_charge"`
	OccurredAt     time.Time `json:"occurred_at"`
}

// OrderCancelled is emitted when an owner withdraws an order.
type OrderCancelled struct {
	OrderID    string    `json:"order_id"`
	Owner      string    `json:"owner"`
	OccurredAt time.Time `json:"occurred_at"`
}

// OrderExpired is emitted on a lazy expiry transition.
type OrderExpired struct {
	OrderID    string    `json:"order_id"`
	Owner      string    `json:"owner"`
	OccurredAt time.Time `json:"occurred_at"`
}

// CreateOrderCommand carries one new order.
type CreateOrderCommand struct {
	Owner         string
	Side          string
	Amount        uint64
	PricePerUnit  uint64
	ExpiresAt     time.Time
	CertificateID string
}

// SettlementCommand carries one atomic settlement request. A zero Price
// settles at the sell order's limit price.
type SettlementCommand struct {
	BuyOrderID     string
	SellOrderID    string
	Amount         uint64
	Price          uint64
	WheelingCharge uint64
}

// BatchItemResult reports the outcome of one batch settlement pair.
type BatchItemResult struct {
	BuyOrderID  string
	SellOrderID string
	TradeID     string
	Amount      uint64
	Err         error
}

// CertificateInfo is the registry's view of a certificate as the order
// book needs it.
type CertificateInfo struct {
	Owner        string
	EnergyAmount uint64
	Tradable     bool
	Expired      bool
}

// CertificateReader resolves certificates referenced by sell orders.
type CertificateReader interface {
	Info(ctx context.Context, id string) (CertificateInfo, error)
}

// Publisher emits market events.
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

// MarketConfig tunes order bounds, fees, and collector accounts.
type MarketConfig struct {
	MinOrderAmount    uint64
	MaxOrderAmount    uint64
	FeeBps            uint64
	OrderLifetime     time.Duration
	FeeCollector      string
	WheelingCollector string
}

// DefaultMarketConfig returns the stock market parameters.
func DefaultMarketConfig() MarketConfig {
	return MarketConfig{
		MinOrderAmount:    1,
		MaxOrderAmount:    1_000_000,
		FeeBps:            25,
		OrderLifetime:     market.DefaultOrderLifetime,
		FeeCollector:      "fee-collector",
		WheelingCollector: "wheeling-collector",
	}
}

// MarketService runs the order book, matcher, and escrow settlement.
type MarketService struct {
	orders       market.OrderRepository
	trades       market.TradeRepository
	escrow       market.EscrowRepository
	stats        market.StatsRepository
	certificates CertificateReader
	runner       uow.Runner
	publisher    Publisher
	clock        Clock
	config       MarketConfig
}

// NewMarketService constructs the service. certificates may be nil when
// no registry is deployed; sell orders then cannot reference one.
func NewMarketService(
	orders market.OrderRepository,
	trades market.TradeRepository,
	escrow market.EscrowRepository,
	stats market.StatsRepository,
	certificates CertificateReader,
	runner uow.Runner,
	publisher Publisher,
	clock Clock,
	config MarketConfig,
) (*MarketService, error) {
	if orders == nil || trades == nil || escrow == nil || stats == nil {
		return nil, errors.New("market service: nil repository")
	}
	if runner == nil {
		return nil, errors.New("market service: nil uow runner")
	}
	if config.FeeCollector == "" || config.WheelingCollector == "" {
		return nil, errors.New("market service: empty collector account")
	}
	if clock == nil {
		clock = SystemClock{}
	}
	return &MarketService{
		orders:       orders,
		trades:       trades,
		escrow:       escrow,
		stats:        stats,
		certificates: certificates,
		runner:       runner,
		publisher:    publisher,
		clock:        clock,
		config:       config,
	}, nil
}

// CreateOrder places an order, reserving its escrow hold.
func (s *MarketService) CreateOrder(ctx context.Context, cmd CreateOrderCommand) (*market.Order, error) {
	side, err := market.ParseSide(cmd.Side)
	if err != nil {
		return nil, err
	}
	if cmd.Amount == 0 {
		return nil, market.ErrZeroAmount
	}
	if cmd.PricePerUnit == 0 {
		return nil, market.ErrZeroPrice
	}
	if cmd.Amount < s.config.MinOrderAmount {
		return nil, market.ErrOrderTooSmall
	}
	if cmd.Amount > s.config.MaxOrderAmount {
		return nil, market.ErrOrderTooLarge
	}
	if cmd.Amount > math.MaxUint64/cmd.PricePerUnit {
		return nil, market.ErrBalanceOverflow
	}

	now := s.clock.Now()
	expiresAt := cmd.ExpiresAt
	if expiresAt.IsZero() {
		expiresAt = now.Add(s.config.OrderLifetime)
	}

	if side == market.SideSell && cmd.CertificateID != "" {
		if s.certificates == nil {
			return nil, market.ErrCertificateNotTradable
		}
		info, err := s.certificates.Info(ctx, cmd.CertificateID)
		if err != nil {
			return nil, err
		}
		if info.Expired {
			return nil, market.ErrCertificateExpired
		}
		if !info.Tradable {
			return nil, market.ErrCertificateNotTradable
		}
		if info.Owner != cmd.Owner {
			return nil, market.ErrCertificateNotOwned
		}
		if cmd.Amount > info.EnergyAmount {
			return nil, market.ErrExceedsCertificate
		}
	}

	order, err := market.NewOrder(uuid.NewString(), side, cmd.Owner, cmd.Amount, cmd.PricePerUnit, cmd.CertificateID, now, expiresAt)
	if err != nil {
		return nil, err
	}

	err = s.runner.RunInTx(ctx, func(ctx context.Context) error {
		account, err := s.escrow.Find(ctx, cmd.Owner)
		if err != nil {
			return err
		}
		if side == market.SideBuy {
			err = account.HoldCurrency(cmd.Amount * cmd.PricePerUnit)
		} else {
			err = account.HoldEnergy(cmd.Amount)
		}
		if err != nil {
			return err
		}
		statsRow, err := s.stats.Get(ctx)
		if err != nil {
			return err
		}
		statsRow.RecordOrder()

		if err := s.escrow.Save(ctx, account); err != nil {
			return err
		}
		if err := s.orders.Save(ctx, order); err != nil {
			return err
		}
		return s.stats.Save(ctx, statsRow)
	})
	if err != nil {
		return nil, err
	}

	if err := s.publish(ctx, OrderCreated{
		OrderID:      order.ID(),
		Side:         string(side),
		Owner:        cmd.Owner,
		Amount:       cmd.Amount,
		PricePerUnit: cmd.PricePerUnit,
		OccurredAt:   now.UTC(),
	}); err != nil {
		return nil, err
	}
	return order, nil
}

// MatchOrders records a match between a buy and a sell order without
// moving escrow balances: the fill is booked, the corresponding holds
// are released, and an immutable trade record is written. The clearing
// price is the sell (resting) order's price.
func (s *MarketService) MatchOrders(ctx context.Context, buyID, sellID string, amount uint64) (market.TradeRecord, error) {
	now := s.clock.Now()
	var trade market.TradeRecord
	var expired []OrderExpired

	err := s.runner.RunInTx(ctx, func(ctx context.Context) error {
		buy, sell, exp, err := s.loadPair(ctx, buyID, sellID, now)
		expired = exp
		if err != nil {
			// Commit lazy expiry transitions; the error surfaces after.
			if errors.Is(err, market.ErrOrderExpired) {
				return nil
			}
			return err
		}
		exec, price, fee, err := s.matchTerms(buy, sell, amount, 0)
		if err != nil {
			return err
		}

		buyer, err := s.escrow.Find(ctx, buy.Owner())
		if err != nil {
			return err
		}
		seller, err := sameOrLoad(ctx, s.escrow, buyer, sell.Owner())
		if err != nil {
			return err
		}
		// The economic transfer happens off-engine for record-only
		// matches; the filled portion's reservations are returned.
		if err := buyer.ReleaseCurrency(exec * buy.PricePerUnit()); err != nil {
			return err
		}
		if err := seller.ReleaseEnergy(exec); err != nil {
			return err
		}
		if err := buy.Fill(exec); err != nil {
			return err
		}
		if err := sell.Fill(exec); err != nil {
			return err
		}

		statsRow, err := s.stats.Get(ctx)
		if err != nil {
			return err
		}
		statsRow.RecordTrade(exec, price, fee)
		trade = market.NewTradeRecord(uuid.NewString(), buy, sell, exec, price, fee, 0, now)

		if err := saveAccounts(ctx, s.escrow, buyer, seller); err != nil {
			return err
		}
		if err := s.orders.Save(ctx, buy); err != nil {
			return err
		}
		if err := s.orders.Save(ctx, sell); err != nil {
			return err
		}
		if err := s.trades.Append(ctx, trade); err != nil {
			return err
		}
		return s.stats.Save(ctx, statsRow)
	})
	perr := s.publishExpired(ctx, expired)
	if err != nil {
		return market.TradeRecord{}, err
	}
	if len(expired) > 0 {
		return market.TradeRecord{}, errors.Join(market.ErrOrderExpired, perr)
	}

	if err := s.publish(ctx, OrdersMatched{
		TradeID:     trade.ID,
		BuyOrderID:  trade.BuyOrderID,
		SellOrderID: trade.SellOrderID,
		Buyer:       trade.Buyer,
		Seller:      trade.Seller,
		AmountWh:    trade.Amount,
		Price:       trade.Price,
		Fee:         trade.Fee,
		OccurredAt:  now.UTC(),
	}); err != nil {
		return market.TradeRecord{}, err
	}
	return trade, nil
}

// ExecuteAtomicSettlement fills a buy/sell pair and moves the economic
// legs between escrow accounts in one unit of work. Any failing leg
// aborts the whole settlement.
func (s *MarketService) ExecuteAtomicSettlement(ctx context.Context, cmd SettlementCommand) (market.TradeRecord, error) {
	now := s.clock.Now()
	var trade market.TradeRecord
	var expired []OrderExpired

	err := s.runner.RunInTx(ctx, func(ctx context.Context) error {
		buy, sell, exp, err := s.loadPair(ctx, cmd.BuyOrderID, cmd.SellOrderID, now)
		expired = exp
		if err != nil {
			if errors.Is(err, market.ErrOrderExpired) {
				return nil
			}
			return err
		}
		exec, price, fee, err := s.matchTerms(buy, sell, cmd.Amount, cmd.Price)
		if err != nil {
			return err
		}
		total := exec * price
		// Checked per leg so an oversized wheeling charge cannot wrap
		// the sum past the trade total.
		if cmd.WheelingCharge > total || fee > total-cmd.WheelingCharge {
			return market.ErrInsufficientEscrow
		}

		accounts := newAccountSet(s.escrow)
		buyer, err := accounts.get(ctx, buy.Owner())
		if err != nil {
			return err
		}
		seller, err := accounts.get(ctx, sell.Owner())
		if err != nil {
			return err
		}
		feeCollector, err := accounts.get(ctx, s.config.FeeCollector)
		if err != nil {
			return err
		}
		wheelingCollector, err := accounts.get(ctx, s.config.WheelingCollector)
		if err != nil {
			return err
		}

		// Energy leg.
		if err := seller.DebitHeldEnergy(exec); err != nil {
			return err
		}
		if err := buyer.CreditEnergy(exec); err != nil {
			return err
		}
		// Currency leg. The buy order reserved at its limit price; the
		// spread between limit and clearing price is released.
		if err := buyer.DebitHeldCurrency(total); err != nil {
			return err
		}
		if err := buyer.ReleaseCurrency(exec * (buy.PricePerUnit() - price)); err != nil {
			return err
		}
		if err := seller.CreditCurrency(total - fee - cmd.WheelingCharge); err != nil {
			return err
		}
		if err := feeCollector.CreditCurrency(fee); err != nil {
			return err
		}
		if err := wheelingCollector.CreditCurrency(cmd.WheelingCharge); err != nil {
			return err
		}

		if err := buy.Fill(exec); err != nil {
			return err
		}
		if err := sell.Fill(exec); err != nil {
			return err
		}

		statsRow, err := s.stats.Get(ctx)
		if err != nil {
			return err
		}
		statsRow.RecordTrade(exec, price, fee)
		trade = market.NewTradeRecord(uuid.NewString(), buy, sell, exec, price, fee, cmd.WheelingCharge, now)

		if err := accounts.saveAll(ctx); err != nil {
			return err
		}
		if err := s.orders.Save(ctx, buy); err != nil {
			return err
		}
		if err := s.orders.Save(ctx, sell); err != nil {
			return err
		}
		if err := s.trades.Append(ctx, trade); err != nil {
			return err
		}
		return s.stats.Save(ctx, statsRow)
	})
	perr := s.publishExpired(ctx, expired)
	if err != nil {
		return market.TradeRecord{}, err
	}
	if len(expired) > 0 {
		return market.TradeRecord{}, errors.Join(market.ErrOrderExpired, perr)
	}

	if err := s.publish(ctx, TradeSettled{
		TradeID:        trade.ID,
		BuyOrderID:     trade.BuyOrderID,
		SellOrderID:    trade.SellOrderID,
		Buyer:          trade.Buyer,
		Seller:         trade.Seller,
		AmountWh:       trade.Amount,
		Price:          trade.Price,
		Fee:            trade.Fee,
		WheelingCharge: trade.WheelingCharge,
		OccurredAt:     now.UTC(),
	}); err != nil {
		return market.TradeRecord{}, err
	}
	return trade, nil
}

// ExecuteBatch settles up to MaxBatchSize independent pairs. Each pair
// is its own unit of work; a failing pair is reported in its result and
// does not abort the others.
func (s *MarketService) ExecuteBatch(ctx context.Context, items []SettlementCommand) ([]BatchItemResult, error) {
	if len(items) == 0 {
		return nil, market.ErrEmptyBatch
	}
	if len(items) > MaxBatchSize {
		return nil, market.ErrBatchTooLarge
	}
	results := make([]BatchItemResult, 0, len(items))
	for _, item := range items {
		trade, err := s.ExecuteAtomicSettlement(ctx, item)
		result := BatchItemResult{
			BuyOrderID:  item.BuyOrderID,
			SellOrderID: item.SellOrderID,
			Err:         err,
		}
		if err == nil {
			result.TradeID = trade.ID
			result.Amount = trade.Amount
		}
		results = append(results, result)
	}
	return results, nil
}

// CancelOrder withdraws an Active order and releases its remaining hold.
func (s *MarketService) CancelOrder(ctx context.Context, orderID, caller string) error {
	now := s.clock.Now()
	var owner string
	var expired []OrderExpired

	err := s.runner.RunInTx(ctx, func(ctx context.Context) error {
		order, err := s.orders.Find(ctx, orderID)
		if err != nil {
			return err
		}
		if order.ExpireIfDue(now) {
			if err := s.expireHolds(ctx, order); err != nil {
				return err
			}
			if err := s.orders.Save(ctx, order); err != nil {
				return err
			}
			expired = append(expired, OrderExpired{OrderID: order.ID(), Owner: order.Owner(), OccurredAt: now.UTC()})
			return nil
		}

		remaining := order.Remaining()
		remainingValue := order.RemainingValue()
		if err := order.Cancel(caller); err != nil {
			return err
		}
		account, err := s.escrow.Find(ctx, order.Owner())
		if err != nil {
			return err
		}
		if order.Side() == market.SideBuy {
			err = account.ReleaseCurrency(remainingValue)
		} else {
			err = account.ReleaseEnergy(remaining)
		}
		if err != nil {
			return err
		}
		owner = order.Owner()
		if err := s.escrow.Save(ctx, account); err != nil {
			return err
		}
		return s.orders.Save(ctx, order)
	})
	perr := s.publishExpired(ctx, expired)
	if err != nil {
		return err
	}
	if len(expired) > 0 {
		return errors.Join(market.ErrOrderExpired, perr)
	}
	return s.publish(ctx, OrderCancelled{OrderID: orderID, Owner: owner, OccurredAt: now.UTC()})
}

// GetOrder returns an order, applying lazy expiry first.
func (s *MarketService) GetOrder(ctx context.Context, orderID string) (*market.Order, error) {
	now := s.clock.Now()
	var order *market.Order
	var expired []OrderExpired

	err := s.runner.RunInTx(ctx, func(ctx context.Context) error {
		loaded, err := s.orders.Find(ctx, orderID)
		if err != nil {
			return err
		}
		if loaded.ExpireIfDue(now) {
			if err := s.expireHolds(ctx, loaded); err != nil {
				return err
			}
			if err := s.orders.Save(ctx, loaded); err != nil {
				return err
			}
			expired = append(expired, OrderExpired{OrderID: loaded.ID(), Owner: loaded.Owner(), OccurredAt: now.UTC()})
		}
		order = loaded
		return nil
	})
	perr := s.publishExpired(ctx, expired)
	if err != nil {
		return nil, err
	}
	if perr != nil {
		return nil, perr
	}
	return order, nil
}

// ListOrders returns all orders without applying lazy expiry.
func (s *MarketService) ListOrders(ctx context.Context) ([]*market.Order, error) {
	return s.orders.List(ctx)
}

// ListTrades returns all trade records.
func (s *MarketService) ListTrades(ctx context.Context) ([]market.TradeRecord, error) {
	return s.trades.List(ctx)
}

// Stats returns the market tally.
func (s *MarketService) Stats(ctx context.Context) (*market.MarketStats, error) {
	return s.stats.Get(ctx)
}

// Deposit pre-funds an escrow account, creating it on first use.
func (s *MarketService) Deposit(ctx context.Context, owner string, energy, currency uint64) error {
	return s.runner.RunInTx(ctx, func(ctx context.Context) error {
		account, err := s.escrow.Find(ctx, owner)
		if errors.Is(err, market.ErrEscrowNotFound) {
			account, err = market.NewEscrowAccount(owner)
		}
		if err != nil {
			return err
		}
		if err := account.Deposit(energy, currency); err != nil {
			return err
		}
		return s.escrow.Save(ctx, account)
	})
}

// SetFrozen toggles an escrow account freeze.
func (s *MarketService) SetFrozen(ctx context.Context, owner string, frozen bool) error {
	return s.runner.RunInTx(ctx, func(ctx context.Context) error {
		account, err := s.escrow.Find(ctx, owner)
		if err != nil {
			return err
		}
		account.SetFrozen(frozen)
		return s.escrow.Save(ctx, account)
	})
}

// GetEscrow returns an escrow account snapshot.
func (s *MarketService) GetEscrow(ctx context.Context, owner string) (*market.EscrowAccount, error) {
	return s.escrow.Find(ctx, owner)
}

// loadPair loads and lazily expires a buy/sell pair. Expiry transitions
// are persisted even though the operation then fails.
func (s *MarketService) loadPair(ctx context.Context, buyID, sellID string, now time.Time) (*market.Order, *market.Order, []OrderExpired, error) {
	buy, err := s.orders.Find(ctx, buyID)
	if err != nil {
		return nil, nil, nil, err
	}
	sell, err := s.orders.Find(ctx, sellID)
	if err != nil {
		return nil, nil, nil, err
	}
	var expired []OrderExpired
	for _, order := range []*market.Order{buy, sell} {
		if order.ExpireIfDue(now) {
			if err := s.expireHolds(ctx, order); err != nil {
				return nil, nil, nil, err
			}
			if err := s.orders.Save(ctx, order); err != nil {
				return nil, nil, nil, err
			}
			expired = append(expired, OrderExpired{OrderID: order.ID(), Owner: order.Owner(), OccurredAt: now.UTC()})
		}
	}
	if len(expired) > 0 {
		return nil, nil, expired, market.ErrOrderExpired
	}
	if buy.Side() != market.SideBuy || sell.Side() != market.SideSell {
		return nil, nil, nil, market.ErrSideMismatch
	}
	return buy, sell, nil, nil
}

// matchTerms validates a pair and computes the executed amount, clearing
// price, and fee. A zero requestedPrice clears at the sell order's price.
func (s *MarketService) matchTerms(buy, sell *market.Order, amount, requestedPrice uint64) (exec, price, fee uint64, err error) {
	if buy.Owner() == sell.Owner() {
		return 0, 0, 0, market.ErrSelfTrade
	}
	if buy.Status() != market.OrderActive || sell.Status() != market.OrderActive {
		return 0, 0, 0, market.ErrOrderNotActive
	}
	if sell.PricePerUnit() > buy.PricePerUnit() {
		return 0, 0, 0, market.ErrPriceMismatch
	}
	if amount == 0 {
		return 0, 0, 0, market.ErrZeroAmount
	}
	price = requestedPrice
	if price == 0 {
		price = sell.PricePerUnit()
	}
	if price < sell.PricePerUnit() || price > buy.PricePerUnit() {
		return 0, 0, 0, market.ErrPriceMismatch
	}
	exec = amount
	if buy.Remaining() < exec {
		exec = buy.Remaining()
	}
	if sell.Remaining() < exec {
		exec = sell.Remaining()
	}
	fee = exec * price * s.config.FeeBps / 10000
	return exec, price, fee, nil
}

// expireHolds releases the remaining reservation of an expiring order.
func (s *MarketService) expireHolds(ctx context.Context, order *market.Order) error {
	account, err := s.escrow.Find(ctx, order.Owner())
	if err != nil {
		return err
	}
	if order.Side() == market.SideBuy {
		err = account.ReleaseCurrency(order.RemainingValue())
	} else {
		err = account.ReleaseEnergy(order.Remaining())
	}
	if err != nil {
		return err
	}
	return s.escrow.Save(ctx, account)
}

func (s *MarketService) publishExpired(ctx context.Context, events []OrderExpired) error {
	var errs error
	for _, event := range events {
		if err := s.publish(ctx, event); err != nil {
			errs = errors.Join(errs, err)
		}
	}
	return errs
}

func (s *MarketService) publish(ctx context.Context, event any) error {
	if s.publisher == nil {
		return nil
	}
	return s.publisher.Publish(ctx, event)
}

// accountSet loads each escrow account at most once per settlement so a
// collector that doubles as a counterparty shares one instance.
type accountSet struct {
	repo     market.EscrowRepository
	accounts map[string]*market.EscrowAccount
	order    []string
}

func newAccountSet(repo market.EscrowRepository) *accountSet {
	return &accountSet{repo: repo, accounts: make(map[string]*market.EscrowAccount)}
}

func (s *accountSet) get(ctx context.Context, owner string) (*market.EscrowAccount, error) {
	if account, ok := s.accounts[owner]; ok {
		return account, nil
	}
	account, err := s.repo.Find(ctx, owner)
	if errors.Is(err, market.ErrEscrowNotFound) {
		account, err = market.NewEscrowAccount(owner)
	}
	if err != nil {
		return nil, err
	}
	s.accounts[owner] = account
	s.order = append(s.order, owner)
	return account, nil
}

func (s *accountSet) saveAll(ctx context.Context) error {
	for _, owner := range s.order {
		if err := s.repo.Save(ctx, s.accounts[owner]); err != nil {
			return err
		}
	}
	return nil
}

func sameOrLoad(ctx context.Context, repo market.EscrowRepository, loaded *market.EscrowAccount, owner string) (*market.EscrowAccount, error) {
	if loaded.Owner() == owner {
		return loaded, nil
	}
	return repo.Find(ctx, owner)
}

func saveAccounts(ctx context.Context, repo market.EscrowRepository, first, second *market.EscrowAccount) error {
	if err := repo.Save(ctx, first); err != nil {
		return err
	}
	if second != first {
		return repo.Save(ctx, second)
	}
	return nil
}
