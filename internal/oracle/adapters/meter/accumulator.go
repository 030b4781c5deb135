package meter

import (
	"context"
	"errors"

	meterapp "energytrade/internal/meter/application"
)

// Accumulator adapts the meter ledger to the validator's forwarding call.
type Accumulator struct {
	service *meterapp.MeterService
}

// NewAccumulator constructs the adapter.
func NewAccumulator(service *meterapp.MeterService) (*Accumulator, error) {
	if service == nil {
		return nil, errors.New("meter accumulator: nil meter service")
	}
	return &Accumulator{service: service}, nil
}

// Accumulate applies a validated cumulative reading to the ledger.
func (a *Accumulator) Accumulate(ctx context.Context, meterID string, totalGeneration, totalConsumption uint64) error {
	return a.service.Accumulate(ctx, meterID, totalGeneration, totalConsumption)
}
