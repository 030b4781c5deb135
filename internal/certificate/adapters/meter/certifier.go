package meter

import (
	"context"
	"errors"

	meterapp "energytrade/internal/meter/application"
)

// Certifier adapts the meter ledger to the registry's reservation call.
type Certifier struct {
	service *meterapp.MeterService
}

// NewCertifier constructs the adapter.
func NewCertifier(service *meterapp.MeterService) (*Certifier, error) {
	if service == nil {
		return nil, errors.New("meter certifier: nil meter service")
	}
	return &Certifier{service: service}, nil
}

// CertifyGeneration reserves unclaimed generation and returns the owner.
func (c *Certifier) CertifyGeneration(ctx context.Context, meterID string, amount uint64) (string, error) {
	return c.service.CertifyGeneration(ctx, meterID, amount)
}
