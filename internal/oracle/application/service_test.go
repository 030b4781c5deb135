package application

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	tokenadapter "energytrade/internal/meter/adapters/token"
	meterapp "energytrade/internal/meter/application"
	metermem "energytrade/internal/meter/infrastructure/memory"
	meteradapter "energytrade/internal/oracle/adapters/meter"
	oracle "energytrade/internal/oracle/domain"
	oraclemem "energytrade/internal/oracle/infrastructure/memory"
	tokenapp "energytrade/internal/token/application"
	token "energytrade/internal/token/domain"
	tokenmem "energytrade/internal/token/infrastructure/memory"
	uowmem "energytrade/internal/uow/memory"
)

const (
	testAdmin      = "admin-1"
	testGateway    = "gateway-1"
	testAuthority  = "authority-1"
	testSettlement = "settlement-svc"
)

type fixedClock struct{ now time.Time }

func (c *fixedClock) Now() time.Time { return c.now }

type oracleFixture struct {
	oracle *OracleService
	meters *meterapp.MeterService
	clock  *fixedClock
	base   time.Time
}

func newOracleFixture(t *testing.T) *oracleFixture {
	t.Helper()
	runner := uowmem.NewRunner()

	supply, err := token.NewSupply(testAuthority, testSettlement)
	if err != nil {
		t.Fatalf("new supply: %v", err)
	}
	tokens, err := tokenapp.NewTokenService(tokenmem.NewSupplyRepository(supply), tokenmem.NewHoldingRepository(), runner, nil, nil)
	if err != nil {
		t.Fatalf("new token service: %v", err)
	}
	minter, err := tokenadapter.NewMinter(tokens, testSettlement)
	if err != nil {
		t.Fatalf("new minter: %v", err)
	}
	meters, err := meterapp.NewMeterService(metermem.NewMeterRepository(), minter, runner, nil, nil, testAdmin)
	if err != nil {
		t.Fatalf("new meter service: %v", err)
	}
	accumulator, err := meteradapter.NewAccumulator(meters)
	if err != nil {
		t.Fatalf("new accumulator: %v", err)
	}

	validator, err := oracle.NewValidator(testAdmin, testGateway)
	if err != nil {
		t.Fatalf("new validator: %v", err)
	}
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	clock := &fixedClock{now: base}
	svc, err := NewOracleService(oraclemem.NewValidatorRepository(validator), accumulator, runner, nil, clock)
	if err != nil {
		t.Fatalf("new oracle service: %v", err)
	}

	f := &oracleFixture{oracle: svc, meters: meters, clock: clock, base: base}
	if _, err := meters.Register(context.Background(), "meter-1", "owner-a", "solar"); err != nil {
		t.Fatalf("register meter: %v", err)
	}
	return f
}

// submit sends a reading timestamped at base+offset, with the clock at the
// same moment.
func (f *oracleFixture) submit(produced, consumed uint64, offset time.Duration, submitter string) error {
	f.clock.now = f.base.Add(offset)
	return f.oracle.SubmitReading(context.Background(), SubmitReadingCommand{
		MeterID:   "meter-1",
		Produced:  produced,
		Consumed:  consumed,
		Timestamp: f.base.Add(offset),
		Submitter: submitter,
	})
}

func (f *oracleFixture) state(t *testing.T) *oracle.Validator {
	t.Helper()
	state, err := f.oracle.State(context.Background())
	if err != nil {
		t.Fatalf("state: %v", err)
	}
	return state
}

func TestSubmitReading_ForwardsToLedger(t *testing.T) {
	f := newOracleFixture(t)

	if err := f.submit(1000, 200, 0, testGateway); err != nil {
		t.Fatalf("submit: %v", err)
	}
	m, err := f.meters.Get(context.Background(), "meter-1")
	if err != nil {
		t.Fatalf("get meter: %v", err)
	}
	if m.TotalGeneration() != 1000 || m.TotalConsumption() != 200 {
		t.Fatalf("unexpected totals: gen=%d cons=%d", m.TotalGeneration(), m.TotalConsumption())
	}
	state := f.state(t)
	if state.ValidReadings() != 1 || state.RejectedReadings() != 0 {
		t.Fatalf("unexpected counters: valid=%d rejected=%d", state.ValidReadings(), state.RejectedReadings())
	}
	if state.QualityScore() != 100 {
		t.Fatalf("expected quality 100, got %f", state.QualityScore())
	}
}

func TestSubmitReading_AnomalousLeavesLedgerUntouched(t *testing.T) {
	f := newOracleFixture(t)

	err := f.submit(1000, 10, 0, testGateway)
	if !errors.Is(err, oracle.ErrAnomalousReading) {
		t.Fatalf("expected ErrAnomalousReading, got %v", err)
	}
	state := f.state(t)
	if state.RejectedReadings() != 1 {
		t.Fatalf("expected 1 rejected, got %d", state.RejectedReadings())
	}
	m, _ := f.meters.Get(context.Background(), "meter-1")
	if m.TotalGeneration() != 0 || m.TotalConsumption() != 0 {
		t.Fatalf("ledger must be untouched: gen=%d cons=%d", m.TotalGeneration(), m.TotalConsumption())
	}
}

func TestSubmitReading_ZeroConsumptionSkipsAnomalyCheck(t *testing.T) {
	f := newOracleFixture(t)

	// Pure generation is legitimate for a solar meter on an idle circuit.
	if err := f.submit(1000, 0, 0, testGateway); err != nil {
		t.Fatalf("submit: %v", err)
	}
}

func TestSubmitReading_UnauthorizedGatewayTouchesNothing(t *testing.T) {
	f := newOracleFixture(t)

	err := f.submit(1000, 200, 0, "intruder")
	if !errors.Is(err, oracle.ErrUnauthorizedGateway) {
		t.Fatalf("expected ErrUnauthorizedGateway, got %v", err)
	}
	state := f.state(t)
	if state.TotalReadings() != 0 {
		t.Fatalf("counters must be untouched, got total=%d", state.TotalReadings())
	}
}

func TestSubmitReading_BackupGatewayAccepted(t *testing.T) {
	f := newOracleFixture(t)
	ctx := context.Background()

	if err := f.oracle.AddBackupGateway(ctx, testAdmin, "backup-1"); err != nil {
		t.Fatalf("add backup: %v", err)
	}
	if err := f.submit(500, 100, 0, "backup-1"); err != nil {
		t.Fatalf("submit via backup: %v", err)
	}
}

func TestSubmitReading_InactiveValidator(t *testing.T) {
	f := newOracleFixture(t)
	ctx := context.Background()

	if err := f.oracle.SetActive(ctx, testAdmin, false); err != nil {
		t.Fatalf("deactivate: %v", err)
	}
	err := f.submit(500, 100, 0, testGateway)
	if !errors.Is(err, oracle.ErrValidatorInactive) {
		t.Fatalf("expected ErrValidatorInactive, got %v", err)
	}
}

func TestSubmitReading_RateLimited(t *testing.T) {
	f := newOracleFixture(t)

	if err := f.submit(500, 100, 0, testGateway); err != nil {
		t.Fatalf("first submit: %v", err)
	}
	err := f.submit(600, 120, 30*time.Second, testGateway)
	if !errors.Is(err, oracle.ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}
}

func TestSubmitReading_OutdatedTimestamp(t *testing.T) {
	f := newOracleFixture(t)

	if err := f.submit(500, 100, 2*time.Minute, testGateway); err != nil {
		t.Fatalf("first submit: %v", err)
	}
	err := f.submit(600, 120, time.Minute, testGateway)
	if !errors.Is(err, oracle.ErrOutdatedReading) {
		t.Fatalf("expected ErrOutdatedReading, got %v", err)
	}
}

func TestSubmitReading_FutureTimestamp(t *testing.T) {
	f := newOracleFixture(t)

	f.clock.now = f.base
	err := f.oracle.SubmitReading(context.Background(), SubmitReadingCommand{
		MeterID:   "meter-1",
		Produced:  500,
		Consumed:  100,
		Timestamp: f.base.Add(5 * time.Minute),
		Submitter: testGateway,
	})
	if !errors.Is(err, oracle.ErrFutureReading) {
		t.Fatalf("expected ErrFutureReading, got %v", err)
	}
}

func TestSubmitReading_OutOfRange(t *testing.T) {
	f := newOracleFixture(t)

	err := f.submit(2_000_000, 100, 0, testGateway)
	if !errors.Is(err, oracle.ErrOutOfRange) {
		t.Fatalf("expected ErrOutOfRange, got %v", err)
	}
}

func TestQualityScore_TracksRejections(t *testing.T) {
	f := newOracleFixture(t)

	if err := f.submit(1000, 200, 0, testGateway); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if err := f.submit(2000, 400, 2*time.Minute, testGateway); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if err := f.submit(3000, 500, 4*time.Minute, testGateway); err != nil {
		t.Fatalf("submit: %v", err)
	}
	// Regressing cumulative totals never reaches the gate's counters; use an
	// anomalous ratio instead.
	if err := f.submit(30000, 600, 6*time.Minute, testGateway); !errors.Is(err, oracle.ErrAnomalousReading) {
		t.Fatalf("expected ErrAnomalousReading, got %v", err)
	}

	state := f.state(t)
	if state.QualityScore() != 75 {
		t.Fatalf("expected quality 75, got %f", state.QualityScore())
	}
}

func TestAvgInterval_WeightedAverage(t *testing.T) {
	f := newOracleFixture(t)

	if err := f.submit(100, 10, 0, testGateway); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if err := f.submit(200, 20, 100*time.Second, testGateway); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if err := f.submit(300, 30, 300*time.Second, testGateway); err != nil {
		t.Fatalf("submit: %v", err)
	}
	// First interval seeds 100s; second blends 0.8*100 + 0.2*200 = 120s.
	state := f.state(t)
	if state.AvgIntervalSeconds() != 120 {
		t.Fatalf("expected avg interval 120, got %f", state.AvgIntervalSeconds())
	}
}

func TestBackupGateways_Capped(t *testing.T) {
	f := newOracleFixture(t)
	ctx := context.Background()

	for i := 0; i < oracle.MaxBackupGateways; i++ {
		if err := f.oracle.AddBackupGateway(ctx, testAdmin, fmt.Sprintf("backup-%d", i)); err != nil {
			t.Fatalf("add backup %d: %v", i, err)
		}
	}
	err := f.oracle.AddBackupGateway(ctx, testAdmin, "backup-overflow")
	if !errors.Is(err, oracle.ErrMaxBackupGateways) {
		t.Fatalf("expected ErrMaxBackupGateways, got %v", err)
	}
}

func TestBackupGateways_DuplicateRejected(t *testing.T) {
	f := newOracleFixture(t)
	ctx := context.Background()

	if err := f.oracle.AddBackupGateway(ctx, testAdmin, "backup-1"); err != nil {
		t.Fatalf("add backup: %v", err)
	}
	if err := f.oracle.AddBackupGateway(ctx, testAdmin, "backup-1"); !errors.Is(err, oracle.ErrGatewayExists) {
		t.Fatalf("expected ErrGatewayExists, got %v", err)
	}
	if err := f.oracle.AddBackupGateway(ctx, testAdmin, testGateway); !errors.Is(err, oracle.ErrGatewayExists) {
		t.Fatalf("expected ErrGatewayExists for primary, got %v", err)
	}
}

func TestAdminUpdates_RequireAdmin(t *testing.T) {
	f := newOracleFixture(t)
	ctx := context.Background()

	if err := f.oracle.SetGateway(ctx, "not-admin", "gateway-2"); !errors.Is(err, oracle.ErrUnauthorizedAdmin) {
		t.Fatalf("expected ErrUnauthorizedAdmin, got %v", err)
	}
	if err := f.oracle.SetActive(ctx, "not-admin", false); !errors.Is(err, oracle.ErrUnauthorizedAdmin) {
		t.Fatalf("expected ErrUnauthorizedAdmin, got %v", err)
	}
	err := f.oracle.UpdateValidationConfig(ctx, "not-admin", 0, 100, true, time.Minute)
	if !errors.Is(err, oracle.ErrUnauthorizedAdmin) {
		t.Fatalf("expected ErrUnauthorizedAdmin, got %v", err)
	}
}

func TestUpdateConfig_RejectsInvertedBounds(t *testing.T) {
	f := newOracleFixture(t)

	err := f.oracle.UpdateValidationConfig(context.Background(), testAdmin, 100, 100, true, time.Minute)
	if !errors.Is(err, oracle.ErrInvalidBounds) {
		t.Fatalf("expected ErrInvalidBounds, got %v", err)
	}
}

func TestSubmitReading_RejectedPublishFailureSurfaced(t *testing.T) {
	f := newOracleFixture(t)
	pubErr := errors.New("bus unavailable")
	f.oracle.publisher = &failingPublisher{err: pubErr}

	err := f.submit(1000, 10, time.Minute, testGateway)
	if !errors.Is(err, oracle.ErrAnomalousReading) {
		t.Fatalf("expected ErrAnomalousReading, got %v", err)
	}
	if !errors.Is(err, pubErr) {
		t.Fatalf("expected publish failure surfaced, got %v", err)
	}

	state, err := f.oracle.State(context.Background())
	if err != nil {
		t.Fatalf("state: %v", err)
	}
	if state.RejectedReadings() != 1 {
		t.Fatalf("expected rejected counter committed, got %d", state.RejectedReadings())
	}
}

type failingPublisher struct{ err error }

func (p *failingPublisher) Publish(ctx context.Context, event any) error {
	_ = ctx
	_ = event
	return p.err
}
