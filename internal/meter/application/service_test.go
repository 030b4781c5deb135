package application

import (
	"context"
	"errors"
	"testing"

	tokenadapter "energytrade/internal/meter/adapters/token"
	meter "energytrade/internal/meter/domain"
	metermem "energytrade/internal/meter/infrastructure/memory"
	tokenapp "energytrade/internal/token/application"
	token "energytrade/internal/token/domain"
	tokenmem "energytrade/internal/token/infrastructure/memory"
	uowmem "energytrade/internal/uow/memory"
)

const (
	testAdmin      = "admin-1"
	testAuthority  = "authority-1"
	testSettlement = "settlement-svc"
)

type meterFixture struct {
	meters   *MeterService
	tokens   *tokenapp.TokenService
	repo     *metermem.MeterRepository
	supplies *tokenmem.SupplyRepository
}

func newMeterFixture(t *testing.T) *meterFixture {
	t.Helper()
	runner := uowmem.NewRunner()

	supply, err := token.NewSupply(testAuthority, testSettlement)
	if err != nil {
		t.Fatalf("new supply: %v", err)
	}
	supplies := tokenmem.NewSupplyRepository(supply)
	tokens, err := tokenapp.NewTokenService(supplies, tokenmem.NewHoldingRepository(), runner, nil, nil)
	if err != nil {
		t.Fatalf("new token service: %v", err)
	}
	minter, err := tokenadapter.NewMinter(tokens, testSettlement)
	if err != nil {
		t.Fatalf("new minter: %v", err)
	}

	repo := metermem.NewMeterRepository()
	meters, err := NewMeterService(repo, minter, runner, nil, nil, testAdmin)
	if err != nil {
		t.Fatalf("new meter service: %v", err)
	}
	return &meterFixture{meters: meters, tokens: tokens, repo: repo, supplies: supplies}
}

func (f *meterFixture) register(t *testing.T, id, owner string) {
	t.Helper()
	if _, err := f.meters.Register(context.Background(), id, owner, "solar"); err != nil {
		t.Fatalf("register %s: %v", id, err)
	}
}

func TestAccumulate_Idempotent(t *testing.T) {
	f := newMeterFixture(t)
	ctx := context.Background()
	f.register(t, "meter-1", "owner-a")

	if err := f.meters.Accumulate(ctx, "meter-1", 1000, 200); err != nil {
		t.Fatalf("accumulate: %v", err)
	}
	// Retransmission of the same cumulative totals is a no-op.
	if err := f.meters.Accumulate(ctx, "meter-1", 1000, 200); err != nil {
		t.Fatalf("duplicate accumulate: %v", err)
	}
	m, _ := f.meters.Get(ctx, "meter-1")
	if m.TotalGeneration() != 1000 || m.TotalConsumption() != 200 {
		t.Fatalf("unexpected totals: gen=%d cons=%d", m.TotalGeneration(), m.TotalConsumption())
	}
}

func TestAccumulate_RejectsRegression(t *testing.T) {
	f := newMeterFixture(t)
	ctx := context.Background()
	f.register(t, "meter-1", "owner-a")

	if err := f.meters.Accumulate(ctx, "meter-1", 1000, 200); err != nil {
		t.Fatalf("accumulate: %v", err)
	}
	err := f.meters.Accumulate(ctx, "meter-1", 900, 200)
	if !errors.Is(err, meter.ErrReadingRegression) {
		t.Fatalf("expected ErrReadingRegression, got %v", err)
	}
	m, _ := f.meters.Get(ctx, "meter-1")
	if m.TotalGeneration() != 1000 {
		t.Fatalf("expected generation unchanged, got %d", m.TotalGeneration())
	}
}

func TestSettle_MintsSurplusOnce(t *testing.T) {
	f := newMeterFixture(t)
	ctx := context.Background()
	f.register(t, "meter-1", "owner-a")

	if err := f.meters.Accumulate(ctx, "meter-1", 1000, 0); err != nil {
		t.Fatalf("accumulate: %v", err)
	}

	minted, err := f.meters.Settle(ctx, "meter-1", "owner-a")
	if err != nil {
		t.Fatalf("settle: %v", err)
	}
	if minted != 1000 {
		t.Fatalf("expected 1000 minted, got %d", minted)
	}
	m, _ := f.meters.Get(ctx, "meter-1")
	if m.SettledGeneration() != 1000 {
		t.Fatalf("expected settled 1000, got %d", m.SettledGeneration())
	}
	balance, _ := f.tokens.Balance(ctx, "owner-a")
	if balance != 1000 {
		t.Fatalf("expected owner balance 1000, got %d", balance)
	}

	_, err = f.meters.Settle(ctx, "meter-1", "owner-a")
	if !errors.Is(err, meter.ErrNoUnsettledBalance) {
		t.Fatalf("expected ErrNoUnsettledBalance, got %v", err)
	}
}

func TestSettle_DeductsConsumption(t *testing.T) {
	f := newMeterFixture(t)
	ctx := context.Background()
	f.register(t, "meter-1", "owner-a")

	if err := f.meters.Accumulate(ctx, "meter-1", 1000, 400); err != nil {
		t.Fatalf("accumulate: %v", err)
	}
	minted, err := f.meters.Settle(ctx, "meter-1", "owner-a")
	if err != nil {
		t.Fatalf("settle: %v", err)
	}
	if minted != 600 {
		t.Fatalf("expected 600 minted, got %d", minted)
	}
}

func TestSettle_OwnerOnly(t *testing.T) {
	f := newMeterFixture(t)
	ctx := context.Background()
	f.register(t, "meter-1", "owner-a")
	if err := f.meters.Accumulate(ctx, "meter-1", 500, 0); err != nil {
		t.Fatalf("accumulate: %v", err)
	}

	_, err := f.meters.Settle(ctx, "meter-1", "owner-b")
	if !errors.Is(err, meter.ErrUnauthorizedOwner) {
		t.Fatalf("expected ErrUnauthorizedOwner, got %v", err)
	}
}

func TestSettle_RollsBackWhenMintFails(t *testing.T) {
	f := newMeterFixture(t)
	ctx := context.Background()
	f.register(t, "meter-1", "owner-a")
	if err := f.meters.Accumulate(ctx, "meter-1", 500, 0); err != nil {
		t.Fatalf("accumulate: %v", err)
	}
	if err := f.tokens.SetMintEnabled(ctx, testAuthority, false); err != nil {
		t.Fatalf("disable minting: %v", err)
	}

	_, err := f.meters.Settle(ctx, "meter-1", "owner-a")
	if !errors.Is(err, token.ErrMintingDisabled) {
		t.Fatalf("expected ErrMintingDisabled, got %v", err)
	}

	m, _ := f.meters.Get(ctx, "meter-1")
	if m.SettledGeneration() != 0 {
		t.Fatalf("settled generation must not persist, got %d", m.SettledGeneration())
	}
	supply, _ := f.supplies.Get(ctx)
	if supply.TotalSupply() != 0 {
		t.Fatalf("supply must be unchanged, got %d", supply.TotalSupply())
	}
}

func TestSupplyBacking_AcrossMeters(t *testing.T) {
	f := newMeterFixture(t)
	ctx := context.Background()
	f.register(t, "meter-1", "owner-a")
	f.register(t, "meter-2", "owner-b")

	if err := f.meters.Accumulate(ctx, "meter-1", 700, 100); err != nil {
		t.Fatalf("accumulate: %v", err)
	}
	if err := f.meters.Accumulate(ctx, "meter-2", 900, 300); err != nil {
		t.Fatalf("accumulate: %v", err)
	}
	if _, err := f.meters.Settle(ctx, "meter-1", "owner-a"); err != nil {
		t.Fatalf("settle meter-1: %v", err)
	}
	if _, err := f.meters.Settle(ctx, "meter-2", "owner-b"); err != nil {
		t.Fatalf("settle meter-2: %v", err)
	}

	meters, _ := f.meters.List(ctx)
	var settledSum uint64
	for _, m := range meters {
		settledSum += m.SettledGeneration()
	}
	supply, _ := f.supplies.Get(ctx)
	if supply.TotalSupply() != settledSum {
		t.Fatalf("supply %d must equal settled sum %d", supply.TotalSupply(), settledSum)
	}
}

func TestCertify_JointBoundWithSettlement(t *testing.T) {
	f := newMeterFixture(t)
	ctx := context.Background()
	f.register(t, "meter-1", "owner-a")

	if err := f.meters.Accumulate(ctx, "meter-1", 1000, 0); err != nil {
		t.Fatalf("accumulate: %v", err)
	}
	if _, err := f.meters.CertifyGeneration(ctx, "meter-1", 600); err != nil {
		t.Fatalf("certify 600: %v", err)
	}

	_, err := f.meters.CertifyGeneration(ctx, "meter-1", 500)
	if !errors.Is(err, meter.ErrInsufficientUnclaimedGeneration) {
		t.Fatalf("expected ErrInsufficientUnclaimedGeneration, got %v", err)
	}

	if _, err := f.meters.CertifyGeneration(ctx, "meter-1", 400); err != nil {
		t.Fatalf("certify 400: %v", err)
	}
	m, _ := f.meters.Get(ctx, "meter-1")
	if m.CertifiedGeneration() != 1000 {
		t.Fatalf("expected certified 1000, got %d", m.CertifiedGeneration())
	}

	// Fully certified generation leaves nothing to settle.
	_, err = f.meters.Settle(ctx, "meter-1", "owner-a")
	if !errors.Is(err, meter.ErrNoUnsettledBalance) {
		t.Fatalf("expected ErrNoUnsettledBalance, got %v", err)
	}
	if m.SettledGeneration()+m.CertifiedGeneration() > m.TotalGeneration() {
		t.Fatalf("joint bound violated: settled=%d certified=%d total=%d",
			m.SettledGeneration(), m.CertifiedGeneration(), m.TotalGeneration())
	}
}

func TestSetStatus_InactiveIsTerminal(t *testing.T) {
	f := newMeterFixture(t)
	ctx := context.Background()
	f.register(t, "meter-1", "owner-a")

	if err := f.meters.SetStatus(ctx, "meter-1", "owner-a", "inactive"); err != nil {
		t.Fatalf("set inactive: %v", err)
	}
	err := f.meters.SetStatus(ctx, "meter-1", testAdmin, "active")
	if !errors.Is(err, meter.ErrAlreadyInactive) {
		t.Fatalf("expected ErrAlreadyInactive, got %v", err)
	}
}
