package application

import (
	"context"
	"errors"
	"time"

	oracle "energytrade/internal/oracle/domain"
	"energytrade/internal/uow"
)

// ReadingAccepted is emitted for every reading that passes validation.
type ReadingAccepted struct {
	MeterID      string    `json:"meter_id"`
	Produced     uint64    `json:"produced"`
	Consumed     uint64    `json:"consumed"`
	Submitter    string    `json:"submitter"`
	QualityScore float64   `json:"quality_score"`
	OccurredAt   time.Time `json:"occurred_at"`
}

// ReadingRejected is emitted for every reading the gate turns away.
type ReadingRejected struct {
	MeterID    string    `json:"meter_id"`
	Reason     string    `json:"reason"`
	Submitter  string    `json:"submitter"`
	OccurredAt time.Time `json:"occurred_at"`
}

// SubmitReadingCommand carries one raw meter reading. Produced and
// Consumed are cumulative lifetime totals.
type SubmitReadingCommand struct {
	MeterID   string
	Produced  uint64
	Consumed  uint64
	Timestamp time.Time
	Submitter string
}

// Accumulator forwards accepted readings to the meter ledger.
type Accumulator interface {
	Accumulate(ctx context.Context, meterID string, totalGeneration, totalConsumption uint64) error
}

// Publisher emits oracle events.
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

// OracleService validates meter readings before they reach the ledger.
type OracleService struct {
	repo        oracle.Repository
	accumulator Accumulator
	runner      uow.Runner
	publisher   Publisher
	clock       Clock
}

// NewOracleService constructs the service.
func NewOracleService(
	repo oracle.Repository,
	accumulator Accumulator,
	runner uow.Runner,
	publisher Publisher,
	clock Clock,
) (*OracleService, error) {
	if repo == nil {
		return nil, errors.New("oracle service: nil repository")
	}
	if accumulator == nil {
		return nil, errors.New("oracle service: nil accumulator")
	}
	if runner == nil {
		return nil, errors.New("oracle service: nil uow runner")
	}
	if clock == nil {
		clock = SystemClock{}
	}
	return &OracleService{
		repo:        repo,
		accumulator: accumulator,
		runner:      runner,
		publisher:   publisher,
		clock:       clock,
	}, nil
}

// SubmitReading validates one reading and forwards it to the ledger. A
// validation failure increments the rejected counter and leaves everything
// else untouched; authorization failures touch no state at all.
func (s *OracleService) SubmitReading(ctx context.Context, cmd SubmitReadingCommand) error {
	now := s.clock.Now()
	var quality float64
	var rejection error

	err := s.runner.RunInTx(ctx, func(ctx context.Context) error {
		validator, err := s.repo.Get(ctx)
		if err != nil {
			return err
		}
		if !validator.Active() {
			return oracle.ErrValidatorInactive
		}
		if !validator.AuthorizedSubmitter(cmd.Submitter) {
			return oracle.ErrUnauthorizedGateway
		}

		if verr := validator.Validate(cmd.Produced, cmd.Consumed, cmd.Timestamp, now); verr != nil {
			// Commit the rejected counter; the validation error itself is
			// surfaced after the unit of work completes.
			validator.RecordRejected()
			rejection = verr
			return s.repo.Save(ctx, validator)
		}

		if err := s.accumulator.Accumulate(ctx, cmd.MeterID, cmd.Produced, cmd.Consumed); err != nil {
			return err
		}
		validator.RecordValid(cmd.Timestamp)
		quality = validator.QualityScore()
		return s.repo.Save(ctx, validator)
	})
	if err != nil {
		return err
	}

	if rejection != nil {
		perr := s.publish(ctx, ReadingRejected{
			MeterID:    cmd.MeterID,
			Reason:     rejection.Error(),
			Submitter:  cmd.Submitter,
			OccurredAt: now.UTC(),
		})
		return errors.Join(rejection, perr)
	}

	return s.publish(ctx, ReadingAccepted{
		MeterID:      cmd.MeterID,
		Produced:     cmd.Produced,
		Consumed:     cmd.Consumed,
		Submitter:    cmd.Submitter,
		QualityScore: quality,
		OccurredAt:   now.UTC(),
	})
}

// IsValidationError reports whether err is one of the reading validation
// failures that count against the quality score.
func IsValidationError(err error) bool {
	return errors.Is(err, oracle.ErrOutdatedReading) ||
		errors.Is(err, oracle.ErrFutureReading) ||
		errors.Is(err, oracle.ErrRateLimited) ||
		errors.Is(err, oracle.ErrOutOfRange) ||
		errors.Is(err, oracle.ErrAnomalousReading)
}

// SetGateway replaces the primary gateway. Admin only.
func (s *OracleService) SetGateway(ctx context.Context, caller, gateway string) error {
	return s.adminUpdate(ctx, caller, func(v *oracle.Validator) error {
		return v.SetGateway(gateway)
	})
}

// AddBackupGateway authorizes a backup submitter. Admin only.
func (s *OracleService) AddBackupGateway(ctx context.Context, caller, gateway string) error {
	return s.adminUpdate(ctx, caller, func(v *oracle.Validator) error {
		return v.AddBackupGateway(gateway)
	})
}

// RemoveBackupGateway revokes a backup submitter. Admin only.
func (s *OracleService) RemoveBackupGateway(ctx context.Context, caller, gateway string) error {
	return s.adminUpdate(ctx, caller, func(v *oracle.Validator) error {
		return v.RemoveBackupGateway(gateway)
	})
}

// SetActive toggles the validator. Admin only.
func (s *OracleService) SetActive(ctx context.Context, caller string, active bool) error {
	return s.adminUpdate(ctx, caller, func(v *oracle.Validator) error {
		v.SetActive(active)
		return nil
	})
}

// UpdateValidationConfig replaces the validation bounds. Admin only.
func (s *OracleService) UpdateValidationConfig(ctx context.Context, caller string, minEnergy, maxEnergy uint64, anomalyDetection bool, minInterval time.Duration) error {
	return s.adminUpdate(ctx, caller, func(v *oracle.Validator) error {
		return v.UpdateConfig(minEnergy, maxEnergy, anomalyDetection, minInterval)
	})
}

// State returns a validator snapshot.
func (s *OracleService) State(ctx context.Context) (*oracle.Validator, error) {
	return s.repo.Get(ctx)
}

func (s *OracleService) adminUpdate(ctx context.Context, caller string, apply func(*oracle.Validator) error) error {
	return s.runner.RunInTx(ctx, func(ctx context.Context) error {
		validator, err := s.repo.Get(ctx)
		if err != nil {
			return err
		}
		if !validator.IsAdmin(caller) {
			return oracle.ErrUnauthorizedAdmin
		}
		if err := apply(validator); err != nil {
			return err
		}
		return s.repo.Save(ctx, validator)
	})
}

func (s *OracleService) publish(ctx context.Context, event any) error {
	if s.publisher == nil {
		return nil
	}
	return s.publisher.Publish(ctx, event)
}
