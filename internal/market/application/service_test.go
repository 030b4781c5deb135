package application

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	market "energytrade/internal/market/domain"
	marketmem "energytrade/internal/market/infrastructure/memory"
	uowmem "energytrade/internal/uow/memory"
)

type fixedClock struct{ now time.Time }

func (c *fixedClock) Now() time.Time { return c.now }

type stubCertificates struct {
	infos map[string]CertificateInfo
}

func (s *stubCertificates) Info(ctx context.Context, id string) (CertificateInfo, error) {
	_ = ctx
	info, ok := s.infos[id]
	if !ok {
		return CertificateInfo{}, market.ErrCertificateNotTradable
	}
	return info, nil
}

type marketFixture struct {
	market *MarketService
	escrow *marketmem.EscrowRepository
	certs  *stubCertificates
	clock  *fixedClock
}

func newMarketFixture(t *testing.T) *marketFixture {
	t.Helper()
	runner := uowmem.NewRunner()
	escrow := marketmem.NewEscrowRepository()
	certs := &stubCertificates{infos: make(map[string]CertificateInfo)}
	clock := &fixedClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}

	svc, err := NewMarketService(
		marketmem.NewOrderRepository(),
		marketmem.NewTradeRepository(),
		escrow,
		marketmem.NewStatsRepository(),
		certs,
		runner,
		nil,
		clock,
		DefaultMarketConfig(),
	)
	if err != nil {
		t.Fatalf("new market service: %v", err)
	}
	return &marketFixture{market: svc, escrow: escrow, certs: certs, clock: clock}
}

func (f *marketFixture) fund(t *testing.T, owner string, energy, currency uint64) {
	t.Helper()
	if err := f.market.Deposit(context.Background(), owner, energy, currency); err != nil {
		t.Fatalf("deposit %s: %v", owner, err)
	}
}

func (f *marketFixture) place(t *testing.T, owner, side string, amount, price uint64) *market.Order {
	t.Helper()
	order, err := f.market.CreateOrder(context.Background(), CreateOrderCommand{
		Owner:        owner,
		Side:         side,
		Amount:       amount,
		PricePerUnit: price,
	})
	if err != nil {
		t.Fatalf("create %s order for %s: %v", side, owner, err)
	}
	return order
}

func (f *marketFixture) account(t *testing.T, owner string) *market.EscrowAccount {
	t.Helper()
	account, err := f.escrow.Find(context.Background(), owner)
	if err != nil {
		t.Fatalf("find escrow %s: %v", owner, err)
	}
	return account
}

func TestCreateOrder_ReservesEscrowHold(t *testing.T) {
	f := newMarketFixture(t)
	f.fund(t, "buyer-1", 0, 10_000)
	f.fund(t, "seller-1", 500, 0)

	f.place(t, "buyer-1", "buy", 100, 60)
	f.place(t, "seller-1", "sell", 100, 50)

	buyer := f.account(t, "buyer-1")
	if buyer.HeldCurrency() != 6000 {
		t.Fatalf("expected held currency 6000, got %d", buyer.HeldCurrency())
	}
	seller := f.account(t, "seller-1")
	if seller.HeldEnergy() != 100 {
		t.Fatalf("expected held energy 100, got %d", seller.HeldEnergy())
	}
}

func TestCreateOrder_ValidatesInput(t *testing.T) {
	f := newMarketFixture(t)
	f.fund(t, "trader-1", 1000, 1000)
	ctx := context.Background()

	cases := []struct {
		name string
		cmd  CreateOrderCommand
		want error
	}{
		{"zero amount", CreateOrderCommand{Owner: "trader-1", Side: "buy", Amount: 0, PricePerUnit: 10}, market.ErrZeroAmount},
		{"zero price", CreateOrderCommand{Owner: "trader-1", Side: "buy", Amount: 10, PricePerUnit: 0}, market.ErrZeroPrice},
		{"too large", CreateOrderCommand{Owner: "trader-1", Side: "buy", Amount: 2_000_000, PricePerUnit: 1}, market.ErrOrderTooLarge},
		{"bad side", CreateOrderCommand{Owner: "trader-1", Side: "short", Amount: 10, PricePerUnit: 1}, market.ErrInvalidSide},
	}
	for _, tc := range cases {
		if _, err := f.market.CreateOrder(ctx, tc.cmd); !errors.Is(err, tc.want) {
			t.Fatalf("%s: expected %v, got %v", tc.name, tc.want, err)
		}
	}
}

func TestCreateOrder_InsufficientEscrow(t *testing.T) {
	f := newMarketFixture(t)
	f.fund(t, "buyer-1", 0, 100)

	_, err := f.market.CreateOrder(context.Background(), CreateOrderCommand{
		Owner: "buyer-1", Side: "buy", Amount: 100, PricePerUnit: 60,
	})
	if !errors.Is(err, market.ErrInsufficientEscrow) {
		t.Fatalf("expected ErrInsufficientEscrow, got %v", err)
	}
}

func TestCreateOrder_CertificateChecks(t *testing.T) {
	f := newMarketFixture(t)
	f.fund(t, "seller-1", 1000, 0)
	ctx := context.Background()
	f.certs.infos["cert-ok"] = CertificateInfo{Owner: "seller-1", EnergyAmount: 100, Tradable: true}
	f.certs.infos["cert-raw"] = CertificateInfo{Owner: "seller-1", EnergyAmount: 100, Tradable: false}
	f.certs.infos["cert-dead"] = CertificateInfo{Owner: "seller-1", EnergyAmount: 100, Expired: true}
	f.certs.infos["cert-other"] = CertificateInfo{Owner: "seller-2", EnergyAmount: 100, Tradable: true}

	if _, err := f.market.CreateOrder(ctx, CreateOrderCommand{
		Owner: "seller-1", Side: "sell", Amount: 100, PricePerUnit: 50, CertificateID: "cert-ok",
	}); err != nil {
		t.Fatalf("certified sell: %v", err)
	}
	cases := []struct {
		certID string
		amount uint64
		want   error
	}{
		{"cert-raw", 100, market.ErrCertificateNotTradable},
		{"cert-dead", 100, market.ErrCertificateExpired},
		{"cert-other", 100, market.ErrCertificateNotOwned},
		{"cert-ok", 200, market.ErrExceedsCertificate},
	}
	for _, tc := range cases {
		_, err := f.market.CreateOrder(ctx, CreateOrderCommand{
			Owner: "seller-1", Side: "sell", Amount: tc.amount, PricePerUnit: 50, CertificateID: tc.certID,
		})
		if !errors.Is(err, tc.want) {
			t.Fatalf("cert %s: expected %v, got %v", tc.certID, tc.want, err)
		}
	}
}

func TestMatchOrders_FillsBothAtSellPrice(t *testing.T) {
	f := newMarketFixture(t)
	f.fund(t, "buyer-1", 0, 10_000)
	f.fund(t, "seller-1", 500, 0)
	ctx := context.Background()

	buy := f.place(t, "buyer-1", "buy", 100, 60)
	sell := f.place(t, "seller-1", "sell", 100, 50)

	trade, err := f.market.MatchOrders(ctx, buy.ID(), sell.ID(), 100)
	if err != nil {
		t.Fatalf("match: %v", err)
	}
	if trade.Price != 50 {
		t.Fatalf("expected clearing price 50, got %d", trade.Price)
	}
	if trade.Price < 50 || trade.Price > 60 {
		t.Fatalf("price %d outside [50,60]", trade.Price)
	}
	if trade.Amount != 100 {
		t.Fatalf("expected amount 100, got %d", trade.Amount)
	}

	buyAfter, _ := f.market.GetOrder(ctx, buy.ID())
	sellAfter, _ := f.market.GetOrder(ctx, sell.ID())
	if buyAfter.Status() != market.OrderFilled || sellAfter.Status() != market.OrderFilled {
		t.Fatalf("expected both filled, got %s / %s", buyAfter.Status(), sellAfter.Status())
	}

	// Record-only matches return the reservations to the free balance.
	buyer := f.account(t, "buyer-1")
	if buyer.HeldCurrency() != 0 {
		t.Fatalf("expected buyer hold released, got %d", buyer.HeldCurrency())
	}

	stats, _ := f.market.Stats(ctx)
	if stats.TotalTrades() != 1 || stats.LastClearingPrice() != 50 {
		t.Fatalf("unexpected stats: trades=%d last=%d", stats.TotalTrades(), stats.LastClearingPrice())
	}
}

func TestMatchOrders_RejectsSelfTrade(t *testing.T) {
	f := newMarketFixture(t)
	f.fund(t, "trader-1", 500, 10_000)
	ctx := context.Background()

	buy := f.place(t, "trader-1", "buy", 100, 60)
	sell := f.place(t, "trader-1", "sell", 100, 50)

	_, err := f.market.MatchOrders(ctx, buy.ID(), sell.ID(), 100)
	if !errors.Is(err, market.ErrSelfTrade) {
		t.Fatalf("expected ErrSelfTrade, got %v", err)
	}
	buyAfter, _ := f.market.GetOrder(ctx, buy.ID())
	if buyAfter.FilledAmount() != 0 || buyAfter.Status() != market.OrderActive {
		t.Fatalf("state mutated: filled=%d status=%s", buyAfter.FilledAmount(), buyAfter.Status())
	}
}

func TestMatchOrders_RejectsPriceMismatch(t *testing.T) {
	f := newMarketFixture(t)
	f.fund(t, "buyer-1", 0, 10_000)
	f.fund(t, "seller-1", 500, 0)

	buy := f.place(t, "buyer-1", "buy", 100, 40)
	sell := f.place(t, "seller-1", "sell", 100, 50)

	_, err := f.market.MatchOrders(context.Background(), buy.ID(), sell.ID(), 100)
	if !errors.Is(err, market.ErrPriceMismatch) {
		t.Fatalf("expected ErrPriceMismatch, got %v", err)
	}
}

func TestMatchOrders_PartialFillCapsAtRemaining(t *testing.T) {
	f := newMarketFixture(t)
	f.fund(t, "buyer-1", 0, 10_000)
	f.fund(t, "seller-1", 500, 0)
	ctx := context.Background()

	buy := f.place(t, "buyer-1", "buy", 100, 60)
	sell := f.place(t, "seller-1", "sell", 40, 50)

	trade, err := f.market.MatchOrders(ctx, buy.ID(), sell.ID(), 100)
	if err != nil {
		t.Fatalf("match: %v", err)
	}
	if trade.Amount != 40 {
		t.Fatalf("expected capped amount 40, got %d", trade.Amount)
	}
	buyAfter, _ := f.market.GetOrder(ctx, buy.ID())
	if buyAfter.Status() != market.OrderActive || buyAfter.FilledAmount() != 40 {
		t.Fatalf("expected partially filled buy, got %s filled=%d", buyAfter.Status(), buyAfter.FilledAmount())
	}
	sellAfter, _ := f.market.GetOrder(ctx, sell.ID())
	if sellAfter.Status() != market.OrderFilled {
		t.Fatalf("expected filled sell, got %s", sellAfter.Status())
	}
}

func TestAtomicSettlement_MovesBothLegs(t *testing.T) {
	f := newMarketFixture(t)
	f.fund(t, "buyer-1", 0, 10_000)
	f.fund(t, "seller-1", 500, 0)
	ctx := context.Background()

	buy := f.place(t, "buyer-1", "buy", 100, 60)
	sell := f.place(t, "seller-1", "sell", 100, 50)

	trade, err := f.market.ExecuteAtomicSettlement(ctx, SettlementCommand{
		BuyOrderID:     buy.ID(),
		SellOrderID:    sell.ID(),
		Amount:         100,
		WheelingCharge: 100,
	})
	if err != nil {
		t.Fatalf("settle: %v", err)
	}
	// 100 * 50 = 5000 total, fee 25 bps = 12, wheeling 100.
	if trade.TotalValue != 5000 || trade.Fee != 12 {
		t.Fatalf("unexpected trade economics: value=%d fee=%d", trade.TotalValue, trade.Fee)
	}

	buyer := f.account(t, "buyer-1")
	if buyer.EnergyBalance() != 100 {
		t.Fatalf("expected buyer energy 100, got %d", buyer.EnergyBalance())
	}
	if buyer.CurrencyBalance() != 5000 {
		t.Fatalf("expected buyer currency 5000, got %d", buyer.CurrencyBalance())
	}
	if buyer.HeldCurrency() != 0 {
		t.Fatalf("expected buyer holds cleared, got %d", buyer.HeldCurrency())
	}
	seller := f.account(t, "seller-1")
	if seller.EnergyBalance() != 400 {
		t.Fatalf("expected seller energy 400, got %d", seller.EnergyBalance())
	}
	if seller.CurrencyBalance() != 5000-12-100 {
		t.Fatalf("expected seller proceeds %d, got %d", 5000-12-100, seller.CurrencyBalance())
	}
	feeAccount := f.account(t, DefaultMarketConfig().FeeCollector)
	if feeAccount.CurrencyBalance() != 12 {
		t.Fatalf("expected fee collector 12, got %d", feeAccount.CurrencyBalance())
	}
	wheeling := f.account(t, DefaultMarketConfig().WheelingCollector)
	if wheeling.CurrencyBalance() != 100 {
		t.Fatalf("expected wheeling collector 100, got %d", wheeling.CurrencyBalance())
	}
}

func TestAtomicSettlement_FrozenAccountRollsBack(t *testing.T) {
	f := newMarketFixture(t)
	f.fund(t, "buyer-1", 0, 10_000)
	f.fund(t, "seller-1", 500, 0)
	ctx := context.Background()

	buy := f.place(t, "buyer-1", "buy", 100, 60)
	sell := f.place(t, "seller-1", "sell", 100, 50)

	if err := f.market.SetFrozen(ctx, "seller-1", true); err != nil {
		t.Fatalf("freeze: %v", err)
	}
	_, err := f.market.ExecuteAtomicSettlement(ctx, SettlementCommand{
		BuyOrderID: buy.ID(), SellOrderID: sell.ID(), Amount: 100,
	})
	if !errors.Is(err, market.ErrAccountFrozen) {
		t.Fatalf("expected ErrAccountFrozen, got %v", err)
	}

	buyer := f.account(t, "buyer-1")
	if buyer.EnergyBalance() != 0 || buyer.CurrencyBalance() != 10_000 || buyer.HeldCurrency() != 6000 {
		t.Fatalf("buyer state mutated: energy=%d currency=%d held=%d",
			buyer.EnergyBalance(), buyer.CurrencyBalance(), buyer.HeldCurrency())
	}
	buyAfter, _ := f.market.GetOrder(ctx, buy.ID())
	if buyAfter.FilledAmount() != 0 {
		t.Fatalf("buy order mutated: filled=%d", buyAfter.FilledAmount())
	}
}

func TestBatch_PerPairIndependence(t *testing.T) {
	f := newMarketFixture(t)
	f.fund(t, "buyer-1", 0, 100_000)
	f.fund(t, "seller-1", 500, 0)
	f.fund(t, "seller-2", 500, 0)
	ctx := context.Background()

	buy1 := f.place(t, "buyer-1", "buy", 100, 60)
	sell1 := f.place(t, "seller-1", "sell", 100, 50)
	buy2 := f.place(t, "buyer-1", "buy", 100, 60)
	sell2 := f.place(t, "seller-2", "sell", 100, 50)

	if err := f.market.SetFrozen(ctx, "seller-2", true); err != nil {
		t.Fatalf("freeze: %v", err)
	}

	results, err := f.market.ExecuteBatch(ctx, []SettlementCommand{
		{BuyOrderID: buy1.ID(), SellOrderID: sell1.ID(), Amount: 100},
		{BuyOrderID: buy2.ID(), SellOrderID: sell2.ID(), Amount: 100},
	})
	if err != nil {
		t.Fatalf("batch: %v", err)
	}
	if results[0].Err != nil {
		t.Fatalf("first pair failed: %v", results[0].Err)
	}
	if !errors.Is(results[1].Err, market.ErrAccountFrozen) {
		t.Fatalf("expected frozen failure on second pair, got %v", results[1].Err)
	}

	sell1After, _ := f.market.GetOrder(ctx, sell1.ID())
	if sell1After.Status() != market.OrderFilled {
		t.Fatalf("first pair should have settled, got %s", sell1After.Status())
	}
	sell2After, _ := f.market.GetOrder(ctx, sell2.ID())
	if sell2After.FilledAmount() != 0 {
		t.Fatalf("second pair should be untouched, filled=%d", sell2After.FilledAmount())
	}
}

func TestBatch_Bounds(t *testing.T) {
	f := newMarketFixture(t)
	ctx := context.Background()

	if _, err := f.market.ExecuteBatch(ctx, nil); !errors.Is(err, market.ErrEmptyBatch) {
		t.Fatalf("expected ErrEmptyBatch, got %v", err)
	}
	items := make([]SettlementCommand, MaxBatchSize+1)
	if _, err := f.market.ExecuteBatch(ctx, items); !errors.Is(err, market.ErrBatchTooLarge) {
		t.Fatalf("expected ErrBatchTooLarge, got %v", err)
	}
}

func TestCancelOrder_ReleasesRemainingHold(t *testing.T) {
	f := newMarketFixture(t)
	f.fund(t, "buyer-1", 0, 10_000)
	ctx := context.Background()

	buy := f.place(t, "buyer-1", "buy", 100, 60)

	if err := f.market.CancelOrder(ctx, buy.ID(), "someone-else"); !errors.Is(err, market.ErrUnauthorizedOwner) {
		t.Fatalf("expected ErrUnauthorizedOwner, got %v", err)
	}
	if err := f.market.CancelOrder(ctx, buy.ID(), "buyer-1"); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	buyer := f.account(t, "buyer-1")
	if buyer.HeldCurrency() != 0 {
		t.Fatalf("expected hold released, got %d", buyer.HeldCurrency())
	}
	buyAfter, _ := f.market.GetOrder(ctx, buy.ID())
	if buyAfter.Status() != market.OrderCancelled {
		t.Fatalf("expected cancelled, got %s", buyAfter.Status())
	}
	if err := f.market.CancelOrder(ctx, buy.ID(), "buyer-1"); !errors.Is(err, market.ErrOrderNotActive) {
		t.Fatalf("expected ErrOrderNotActive, got %v", err)
	}
}

func TestExpiry_EvaluatedLazily(t *testing.T) {
	f := newMarketFixture(t)
	f.fund(t, "buyer-1", 0, 10_000)
	f.fund(t, "seller-1", 500, 0)
	ctx := context.Background()

	buy := f.place(t, "buyer-1", "buy", 100, 60)
	sell := f.place(t, "seller-1", "sell", 100, 50)

	f.clock.now = f.clock.now.Add(25 * time.Hour)

	// The stored order still reads Active until touched.
	stored, err := f.market.ListOrders(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	for _, order := range stored {
		if order.Status() != market.OrderActive {
			t.Fatalf("expected stored status active before access, got %s", order.Status())
		}
	}

	_, err = f.market.MatchOrders(ctx, buy.ID(), sell.ID(), 100)
	if !errors.Is(err, market.ErrOrderExpired) {
		t.Fatalf("expected ErrOrderExpired, got %v", err)
	}

	buyAfter, _ := f.market.GetOrder(ctx, buy.ID())
	if buyAfter.Status() != market.OrderExpired {
		t.Fatalf("expected expired, got %s", buyAfter.Status())
	}
	buyer := f.account(t, "buyer-1")
	if buyer.HeldCurrency() != 0 {
		t.Fatalf("expected expired hold released, got %d", buyer.HeldCurrency())
	}
}

func TestSettlement_PriceBounds(t *testing.T) {
	f := newMarketFixture(t)
	f.fund(t, "buyer-1", 0, 10_000)
	f.fund(t, "seller-1", 500, 0)
	ctx := context.Background()

	buy := f.place(t, "buyer-1", "buy", 100, 60)
	sell := f.place(t, "seller-1", "sell", 100, 50)

	_, err := f.market.ExecuteAtomicSettlement(ctx, SettlementCommand{
		BuyOrderID: buy.ID(), SellOrderID: sell.ID(), Amount: 50, Price: 70,
	})
	if !errors.Is(err, market.ErrPriceMismatch) {
		t.Fatalf("expected ErrPriceMismatch above buy limit, got %v", err)
	}

	trade, err := f.market.ExecuteAtomicSettlement(ctx, SettlementCommand{
		BuyOrderID: buy.ID(), SellOrderID: sell.ID(), Amount: 50, Price: 55,
	})
	if err != nil {
		t.Fatalf("settle at 55: %v", err)
	}
	if trade.Price != 55 {
		t.Fatalf("expected price 55, got %d", trade.Price)
	}
}

func TestAtomicSettlement_RejectsOversizedWheelingCharge(t *testing.T) {
	f := newMarketFixture(t)
	f.fund(t, "buyer-1", 0, 10_000)
	f.fund(t, "seller-1", 500, 0)
	ctx := context.Background()

	buy := f.place(t, "buyer-1", "buy", 100, 60)
	sell := f.place(t, "seller-1", "sell", 100, 50)

	// A max-value charge must not wrap the charge+fee sum past the
	// trade total.
	_, err := f.market.ExecuteAtomicSettlement(ctx, SettlementCommand{
		BuyOrderID:     buy.ID(),
		SellOrderID:    sell.ID(),
		Amount:         100,
		WheelingCharge: math.MaxUint64,
	})
	if !errors.Is(err, market.ErrInsufficientEscrow) {
		t.Fatalf("expected ErrInsufficientEscrow, got %v", err)
	}

	buyer := f.account(t, "buyer-1")
	if buyer.CurrencyBalance() != 10_000 || buyer.HeldCurrency() != 6000 {
		t.Fatalf("expected buyer untouched, got balance=%d held=%d", buyer.CurrencyBalance(), buyer.HeldCurrency())
	}
	seller := f.account(t, "seller-1")
	if seller.EnergyBalance() != 500 || seller.CurrencyBalance() != 0 {
		t.Fatalf("expected seller untouched, got energy=%d currency=%d", seller.EnergyBalance(), seller.CurrencyBalance())
	}
	if _, err := f.escrow.Find(ctx, DefaultMarketConfig().WheelingCollector); !errors.Is(err, market.ErrEscrowNotFound) {
		t.Fatalf("expected no wheeling collector account, got %v", err)
	}
	buyAfter, err := f.market.GetOrder(ctx, buy.ID())
	if err != nil {
		t.Fatalf("get buy: %v", err)
	}
	if buyAfter.FilledAmount() != 0 {
		t.Fatalf("expected buy order unfilled, got %d", buyAfter.FilledAmount())
	}
}

func TestExpiry_PublishFailureSurfaced(t *testing.T) {
	f := newMarketFixture(t)
	f.fund(t, "buyer-1", 0, 10_000)
	f.fund(t, "seller-1", 500, 0)
	ctx := context.Background()

	buy := f.place(t, "buyer-1", "buy", 100, 60)
	sell := f.place(t, "seller-1", "sell", 100, 50)

	pubErr := errors.New("bus unavailable")
	f.market.publisher = &failingPublisher{err: pubErr}
	f.clock.now = f.clock.now.Add(25 * time.Hour)

	_, err := f.market.MatchOrders(ctx, buy.ID(), sell.ID(), 100)
	if !errors.Is(err, market.ErrOrderExpired) {
		t.Fatalf("expected ErrOrderExpired, got %v", err)
	}
	if !errors.Is(err, pubErr) {
		t.Fatalf("expected publish failure surfaced, got %v", err)
	}
}

type failingPublisher struct{ err error }

func (p *failingPublisher) Publish(ctx context.Context, event any) error {
	_ = ctx
	_ = event
	return p.err
}
