package application

import (
	"context"
	"errors"
	"time"

	meter "energytrade/internal/meter/domain"
	"energytrade/internal/uow"
)

// SettlementCompleted is emitted when a settle call mints credits.
type SettlementCompleted struct {
	MeterID    string    `json:"meter_id"`
	Owner      string    `json:"owner"`
	AmountWh   uint64    `json:"amount_wh"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Minter mints credits for settled generation. Implemented by the token
// context; always invoked inside the settle unit of work.
type Minter interface {
	MintForSettlement(ctx context.Context, recipient string, amount uint64) error
}

// Publisher emits meter events.
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

// MeterService handles meter ledger use cases.
type MeterService struct {
	repo      meter.Repository
	minter    Minter
	runner    uow.Runner
	publisher Publisher
	clock     Clock
	admin     string
}

// NewMeterService constructs the service. admin may act in place of meter
// owners on lifecycle operations.
func NewMeterService(
	repo meter.Repository,
	minter Minter,
	runner uow.Runner,
	publisher Publisher,
	clock Clock,
	admin string,
) (*MeterService, error) {
	if repo == nil {
		return nil, errors.New("meter service: nil repository")
	}
	if minter == nil {
		return nil, errors.New("meter service: nil minter")
	}
	if runner == nil {
		return nil, errors.New("meter service: nil uow runner")
	}
	if clock == nil {
		clock = SystemClock{}
	}
	return &MeterService{
		repo:      repo,
		minter:    minter,
		runner:    runner,
		publisher: publisher,
		clock:     clock,
		admin:     admin,
	}, nil
}

// Register creates an active meter with zero counters.
func (s *MeterService) Register(ctx context.Context, id, owner, source string) (*meter.Meter, error) {
	src, err := meter.ParseSource(source)
	if err != nil {
		return nil, err
	}
	var created *meter.Meter
	err = s.runner.RunInTx(ctx, func(ctx context.Context) error {
		existing, err := s.repo.Find(ctx, id)
		if err != nil {
			return err
		}
		if existing != nil {
			return meter.ErrMeterExists
		}
		created, err = meter.NewMeter(id, owner, src, s.clock.Now())
		if err != nil {
			return err
		}
		return s.repo.Save(ctx, created)
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// SetStatus transitions a meter. Owner or admin only; Inactive is terminal.
func (s *MeterService) SetStatus(ctx context.Context, id, caller, status string) error {
	parsed, err := meter.ParseStatus(status)
	if err != nil {
		return err
	}
	return s.runner.RunInTx(ctx, func(ctx context.Context) error {
		m, err := s.load(ctx, id)
		if err != nil {
			return err
		}
		if !m.IsOwner(caller) && caller != s.admin {
			return meter.ErrUnauthorizedOwner
		}
		if err := m.SetStatus(parsed); err != nil {
			return err
		}
		return s.repo.Save(ctx, m)
	})
}

// Accumulate applies new cumulative lifetime totals to a meter.
func (s *MeterService) Accumulate(ctx context.Context, id string, newTotalGeneration, newTotalConsumption uint64) error {
	return s.runner.RunInTx(ctx, func(ctx context.Context) error {
		m, err := s.load(ctx, id)
		if err != nil {
			return err
		}
		if err := m.Accumulate(newTotalGeneration, newTotalConsumption, s.clock.Now()); err != nil {
			return err
		}
		return s.repo.Save(ctx, m)
	})
}

// Settle converts the meter's unsettled net generation surplus into
// credits. The counter increment and the mint commit or fail together.
func (s *MeterService) Settle(ctx context.Context, id, caller string) (uint64, error) {
	var minted uint64
	var owner string
	err := s.runner.RunInTx(ctx, func(ctx context.Context) error {
		m, err := s.load(ctx, id)
		if err != nil {
			return err
		}
		if !m.IsOwner(caller) {
			return meter.ErrUnauthorizedOwner
		}
		amount, err := m.Settle()
		if err != nil {
			return err
		}
		// Mint first; the in-memory unit of work cannot undo a completed save.
		if err := s.minter.MintForSettlement(ctx, m.Owner(), amount); err != nil {
			return err
		}
		if err := s.repo.Save(ctx, m); err != nil {
			return err
		}
		minted = amount
		owner = m.Owner()
		return nil
	})
	if err != nil {
		return 0, err
	}

	if s.publisher != nil {
		if err := s.publisher.Publish(ctx, SettlementCompleted{
			MeterID:    id,
			Owner:      owner,
			AmountWh:   minted,
			OccurredAt: s.clock.Now().UTC(),
		}); err != nil {
			return minted, err
		}
	}
	return minted, nil
}

// CertifyGeneration claims amount from the meter's unclaimed pool. Used by
// the certificate registry inside its own unit of work; the joint
// settled+certified bound is enforced here.
func (s *MeterService) CertifyGeneration(ctx context.Context, id string, amount uint64) (string, error) {
	var owner string
	err := s.runner.RunInTx(ctx, func(ctx context.Context) error {
		m, err := s.load(ctx, id)
		if err != nil {
			return err
		}
		if err := m.Certify(amount); err != nil {
			return err
		}
		owner = m.Owner()
		return s.repo.Save(ctx, m)
	})
	if err != nil {
		return "", err
	}
	return owner, nil
}

// Get returns a meter snapshot.
func (s *MeterService) Get(ctx context.Context, id string) (*meter.Meter, error) {
	return s.load(ctx, id)
}

// List returns all meters.
func (s *MeterService) List(ctx context.Context) ([]*meter.Meter, error) {
	return s.repo.List(ctx)
}

func (s *MeterService) load(ctx context.Context, id string) (*meter.Meter, error) {
	if id == "" {
		return nil, meter.ErrEmptyMeterID
	}
	m, err := s.repo.Find(ctx, id)
	if err != nil {
		return nil, err
	}
	if m == nil {
		return nil, meter.ErrMeterNotFound
	}
	return m, nil
}
