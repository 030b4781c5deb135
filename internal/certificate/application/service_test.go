package application

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	certadapter "energytrade/internal/certificate/adapters/meter"
	certificate "energytrade/internal/certificate/domain"
	certmem "energytrade/internal/certificate/infrastructure/memory"
	tokenadapter "energytrade/internal/meter/adapters/token"
	meterapp "energytrade/internal/meter/application"
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
	testIssuer     = "cert-authority"
)

type fixedClock struct{ now time.Time }

func (c *fixedClock) Now() time.Time { return c.now }

type registryFixture struct {
	registry *RegistryService
	meters   *meterapp.MeterService
	clock    *fixedClock
}

func newRegistryFixture(t *testing.T) *registryFixture {
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
	certifier, err := certadapter.NewCertifier(meters)
	if err != nil {
		t.Fatalf("new certifier: %v", err)
	}

	clock := &fixedClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	registry, err := NewRegistryService(certmem.NewCertificateRepository(), certifier, runner, nil, clock, DefaultRegistryConfig(testIssuer))
	if err != nil {
		t.Fatalf("new registry service: %v", err)
	}

	f := &registryFixture{registry: registry, meters: meters, clock: clock}
	ctx := context.Background()
	if _, err := meters.Register(ctx, "meter-1", "owner-a", "solar"); err != nil {
		t.Fatalf("register meter: %v", err)
	}
	if err := meters.Accumulate(ctx, "meter-1", 1000, 0); err != nil {
		t.Fatalf("accumulate: %v", err)
	}
	return f
}

func (f *registryFixture) issue(id string, amount uint64) (*certificate.Certificate, error) {
	return f.registry.Issue(context.Background(), testIssuer, IssueCommand{
		MeterID:       "meter-1",
		CertificateID: id,
		EnergyAmount:  amount,
		Source:        "solar",
	})
}

func TestIssue_ReservesUnclaimedGeneration(t *testing.T) {
	f := newRegistryFixture(t)
	ctx := context.Background()

	cert, err := f.issue("cert-1", 600)
	if err != nil {
		t.Fatalf("issue 600: %v", err)
	}
	if cert.Owner() != "owner-a" {
		t.Fatalf("expected owner-a, got %s", cert.Owner())
	}
	if cert.Status() != certificate.StatusValid {
		t.Fatalf("expected valid, got %s", cert.Status())
	}

	_, err = f.issue("cert-2", 500)
	if !errors.Is(err, meter.ErrInsufficientUnclaimedGeneration) {
		t.Fatalf("expected ErrInsufficientUnclaimedGeneration, got %v", err)
	}

	if _, err := f.issue("cert-3", 400); err != nil {
		t.Fatalf("issue 400: %v", err)
	}
	m, _ := f.meters.Get(ctx, "meter-1")
	if m.CertifiedGeneration() != 1000 {
		t.Fatalf("expected certified 1000, got %d", m.CertifiedGeneration())
	}
}

func TestIssue_AuthorityOnly(t *testing.T) {
	f := newRegistryFixture(t)

	_, err := f.registry.Issue(context.Background(), "owner-a", IssueCommand{
		MeterID:       "meter-1",
		CertificateID: "cert-1",
		EnergyAmount:  100,
		Source:        "solar",
	})
	if !errors.Is(err, certificate.ErrUnauthorizedIssuer) {
		t.Fatalf("expected ErrUnauthorizedIssuer, got %v", err)
	}
}

func TestIssue_DuplicateIDLeavesMeterUntouched(t *testing.T) {
	f := newRegistryFixture(t)
	ctx := context.Background()

	if _, err := f.issue("cert-1", 300); err != nil {
		t.Fatalf("issue: %v", err)
	}
	_, err := f.issue("cert-1", 200)
	if !errors.Is(err, certificate.ErrCertificateExists) {
		t.Fatalf("expected ErrCertificateExists, got %v", err)
	}
	m, _ := f.meters.Get(ctx, "meter-1")
	if m.CertifiedGeneration() != 300 {
		t.Fatalf("expected certified 300, got %d", m.CertifiedGeneration())
	}
}

func TestIssue_ValidatesInput(t *testing.T) {
	f := newRegistryFixture(t)

	if _, err := f.issue(strings.Repeat("x", 65), 100); !errors.Is(err, certificate.ErrCertificateIDTooLong) {
		t.Fatalf("expected ErrCertificateIDTooLong, got %v", err)
	}
	if _, err := f.issue("cert-1", 0); !errors.Is(err, certificate.ErrBelowMinimumEnergy) {
		t.Fatalf("expected ErrBelowMinimumEnergy, got %v", err)
	}
	if _, err := f.issue("cert-1", 2_000_000); !errors.Is(err, certificate.ErrExceedsMaximumEnergy) {
		t.Fatalf("expected ErrExceedsMaximumEnergy, got %v", err)
	}
	_, err := f.registry.Issue(context.Background(), testIssuer, IssueCommand{
		MeterID:       "meter-1",
		CertificateID: "cert-1",
		EnergyAmount:  100,
		Source:        strings.Repeat("s", 65),
	})
	if !errors.Is(err, certificate.ErrSourceNameTooLong) {
		t.Fatalf("expected ErrSourceNameTooLong, got %v", err)
	}
}

func TestValidateForTrading_Once(t *testing.T) {
	f := newRegistryFixture(t)
	ctx := context.Background()

	if _, err := f.issue("cert-1", 100); err != nil {
		t.Fatalf("issue: %v", err)
	}
	if err := f.registry.ValidateForTrading(ctx, "cert-1"); err != nil {
		t.Fatalf("validate: %v", err)
	}
	err := f.registry.ValidateForTrading(ctx, "cert-1")
	if !errors.Is(err, certificate.ErrAlreadyValidated) {
		t.Fatalf("expected ErrAlreadyValidated, got %v", err)
	}
}

func TestRevoke_Terminal(t *testing.T) {
	f := newRegistryFixture(t)
	ctx := context.Background()

	if _, err := f.issue("cert-1", 100); err != nil {
		t.Fatalf("issue: %v", err)
	}
	if err := f.registry.Revoke(ctx, testIssuer, "cert-1", "measurement dispute"); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	if err := f.registry.Revoke(ctx, testIssuer, "cert-1", "again"); !errors.Is(err, certificate.ErrAlreadyRevoked) {
		t.Fatalf("expected ErrAlreadyRevoked, got %v", err)
	}
	if err := f.registry.ValidateForTrading(ctx, "cert-1"); !errors.Is(err, certificate.ErrNotValid) {
		t.Fatalf("expected ErrNotValid, got %v", err)
	}
}

func TestRevoke_RequiresReason(t *testing.T) {
	f := newRegistryFixture(t)
	ctx := context.Background()

	if _, err := f.issue("cert-1", 100); err != nil {
		t.Fatalf("issue: %v", err)
	}
	if err := f.registry.Revoke(ctx, testIssuer, "cert-1", ""); !errors.Is(err, certificate.ErrReasonRequired) {
		t.Fatalf("expected ErrReasonRequired, got %v", err)
	}
	long := strings.Repeat("r", 129)
	if err := f.registry.Revoke(ctx, testIssuer, "cert-1", long); !errors.Is(err, certificate.ErrReasonTooLong) {
		t.Fatalf("expected ErrReasonTooLong, got %v", err)
	}
}

func TestTransfer_RequiresValidation(t *testing.T) {
	f := newRegistryFixture(t)
	ctx := context.Background()

	if _, err := f.issue("cert-1", 100); err != nil {
		t.Fatalf("issue: %v", err)
	}
	err := f.registry.Transfer(ctx, "cert-1", "owner-a", "owner-b")
	if !errors.Is(err, certificate.ErrNotValidatedForTrading) {
		t.Fatalf("expected ErrNotValidatedForTrading, got %v", err)
	}
}

func TestTransfer_MovesOwnership(t *testing.T) {
	f := newRegistryFixture(t)
	ctx := context.Background()

	if _, err := f.issue("cert-1", 100); err != nil {
		t.Fatalf("issue: %v", err)
	}
	if err := f.registry.ValidateForTrading(ctx, "cert-1"); err != nil {
		t.Fatalf("validate: %v", err)
	}

	if err := f.registry.Transfer(ctx, "cert-1", "owner-b", "owner-c"); !errors.Is(err, certificate.ErrUnauthorizedHolder) {
		t.Fatalf("expected ErrUnauthorizedHolder, got %v", err)
	}
	if err := f.registry.Transfer(ctx, "cert-1", "owner-a", "owner-a"); !errors.Is(err, certificate.ErrCannotTransferToSelf) {
		t.Fatalf("expected ErrCannotTransferToSelf, got %v", err)
	}

	if err := f.registry.Transfer(ctx, "cert-1", "owner-a", "owner-b"); err != nil {
		t.Fatalf("transfer: %v", err)
	}
	cert, err := f.registry.Get(ctx, "cert-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if cert.Owner() != "owner-b" || cert.TransferCount() != 1 {
		t.Fatalf("unexpected owner=%s transfers=%d", cert.Owner(), cert.TransferCount())
	}
}

func TestExpiry_EvaluatedLazily(t *testing.T) {
	f := newRegistryFixture(t)
	ctx := context.Background()

	if _, err := f.issue("cert-1", 100); err != nil {
		t.Fatalf("issue: %v", err)
	}
	f.clock.now = f.clock.now.Add(366 * 24 * time.Hour)

	cert, err := f.registry.Get(ctx, "cert-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if cert.Status() != certificate.StatusExpired {
		t.Fatalf("expected expired, got %s", cert.Status())
	}
	if err := f.registry.ValidateForTrading(ctx, "cert-1"); !errors.Is(err, certificate.ErrExpired) {
		t.Fatalf("expected ErrExpired, got %v", err)
	}
}
