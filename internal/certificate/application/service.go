package application

import (
	"context"
	"errors"
	"time"

	certificate "energytrade/internal/certificate/domain"
	"energytrade/internal/uow"
)

// CertificateIssued is emitted when a certificate is created.
type CertificateIssued struct {
	CertificateID string    `json:"certificate_id"`
	MeterID       string    `json:"meter_id"`
	Owner         string    `json:"owner"`
	EnergyAmount  uint64    `json:"energy_amount"`
	Source        string    `json:"source"`
	OccurredAt    time.Time `json:"occurred_at"`
}

// CertificateValidated is emitted when a certificate becomes tradable.
type CertificateValidated struct {
	CertificateID string    `json:"certificate_id"`
	Owner         string    `json:"owner"`
	OccurredAt    time.Time `json:"occurred_at"`
}

// CertificateRevoked is emitted when a certificate is terminally revoked.
type CertificateRevoked struct {
	CertificateID string    `json:"certificate_id"`
	Reason        string    `json:"reason"`
	OccurredAt    time.Time `json:"occurred_at"`
}

// CertificateTransferred is emitted when ownership changes.
type CertificateTransferred struct {
	CertificateID string    `json:"certificate_id"`
	From          string    `json:"from"`
	To            string    `json:"to"`
	OccurredAt    time.Time `json:"occurred_at"`
}

// IssueCommand carries one certificate issuance request.
type IssueCommand struct {
	MeterID       string
	CertificateID string
	EnergyAmount  uint64
	Source        string
}

// MeterCertifier reserves unclaimed generation on the meter ledger. It
// returns the meter owner, who becomes the certificate's first holder.
type MeterCertifier interface {
	CertifyGeneration(ctx context.Context, meterID string, amount uint64) (string, error)
}

// Publisher emits certificate events.
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

// RegistryConfig tunes issuance bounds and transfer policy.
type RegistryConfig struct {
	Authority        string
	MinEnergy        uint64
	MaxEnergy        uint64
	Validity         time.Duration
	TransfersEnabled bool
}

// DefaultRegistryConfig returns the stock bounds for an authority.
func DefaultRegistryConfig(authority string) RegistryConfig {
	return RegistryConfig{
		Authority:        authority,
		MinEnergy:        1,
		MaxEnergy:        1_000_000,
		Validity:         365 * 24 * time.Hour,
		TransfersEnabled: true,
	}
}

// RegistryService issues and manages renewable-attribution certificates.
type RegistryService struct {
	repo      certificate.Repository
	certifier MeterCertifier
	runner    uow.Runner
	publisher Publisher
	clock     Clock
	config    RegistryConfig
}

// NewRegistryService constructs the service.
func NewRegistryService(
	repo certificate.Repository,
	certifier MeterCertifier,
	runner uow.Runner,
	publisher Publisher,
	clock Clock,
	config RegistryConfig,
) (*RegistryService, error) {
	if repo == nil {
		return nil, errors.New("certificate registry: nil repository")
	}
	if certifier == nil {
		return nil, errors.New("certificate registry: nil meter certifier")
	}
	if runner == nil {
		return nil, errors.New("certificate registry: nil uow runner")
	}
	if config.Authority == "" {
		return nil, errors.New("certificate registry: empty authority")
	}
	if clock == nil {
		clock = SystemClock{}
	}
	return &RegistryService{
		repo:      repo,
		certifier: certifier,
		runner:    runner,
		publisher: publisher,
		clock:     clock,
		config:    config,
	}, nil
}

// Issue creates a certificate against a meter's unclaimed generation,
// reserving the claimed amount in the same unit of work.
func (s *RegistryService) Issue(ctx context.Context, caller string, cmd IssueCommand) (*certificate.Certificate, error) {
	if caller != s.config.Authority {
		return nil, certificate.ErrUnauthorizedIssuer
	}
	if cmd.CertificateID == "" {
		return nil, certificate.ErrEmptyCertificateID
	}
	if len(cmd.CertificateID) > certificate.MaxIDLen {
		return nil, certificate.ErrCertificateIDTooLong
	}
	if len(cmd.Source) > certificate.MaxSourceLen {
		return nil, certificate.ErrSourceNameTooLong
	}
	if cmd.EnergyAmount < s.config.MinEnergy {
		return nil, certificate.ErrBelowMinimumEnergy
	}
	if cmd.EnergyAmount > s.config.MaxEnergy {
		return nil, certificate.ErrExceedsMaximumEnergy
	}

	now := s.clock.Now()
	var cert *certificate.Certificate
	err := s.runner.RunInTx(ctx, func(ctx context.Context) error {
		_, err := s.repo.Find(ctx, cmd.CertificateID)
		if err == nil {
			return certificate.ErrCertificateExists
		}
		if !errors.Is(err, certificate.ErrCertificateNotFound) {
			return err
		}

		owner, err := s.certifier.CertifyGeneration(ctx, cmd.MeterID, cmd.EnergyAmount)
		if err != nil {
			return err
		}
		cert, err = certificate.NewCertificate(cmd.CertificateID, cmd.MeterID, owner, cmd.EnergyAmount, cmd.Source, now, s.config.Validity)
		if err != nil {
			return err
		}
		return s.repo.Save(ctx, cert)
	})
	if err != nil {
		return nil, err
	}

	if err := s.publish(ctx, CertificateIssued{
		CertificateID: cert.ID(),
		MeterID:       cert.MeterID(),
		Owner:         cert.Owner(),
		EnergyAmount:  cert.EnergyAmount(),
		Source:        cert.Source(),
		OccurredAt:    now.UTC(),
	}); err != nil {
		return nil, err
	}
	return cert, nil
}

// ValidateForTrading marks a certificate tradable on the order book.
func (s *RegistryService) ValidateForTrading(ctx context.Context, id string) error {
	now := s.clock.Now()
	var owner string
	err := s.runner.RunInTx(ctx, func(ctx context.Context) error {
		cert, err := s.repo.Find(ctx, id)
		if err != nil {
			return err
		}
		if err := cert.ValidateForTrading(now); err != nil {
			return err
		}
		owner = cert.Owner()
		return s.repo.Save(ctx, cert)
	})
	if err != nil {
		return err
	}
	return s.publish(ctx, CertificateValidated{
		CertificateID: id,
		Owner:         owner,
		OccurredAt:    now.UTC(),
	})
}

// Revoke terminally invalidates a certificate. Authority only.
func (s *RegistryService) Revoke(ctx context.Context, caller, id, reason string) error {
	if caller != s.config.Authority {
		return certificate.ErrUnauthorizedIssuer
	}
	now := s.clock.Now()
	err := s.runner.RunInTx(ctx, func(ctx context.Context) error {
		cert, err := s.repo.Find(ctx, id)
		if err != nil {
			return err
		}
		if err := cert.Revoke(reason, now); err != nil {
			return err
		}
		return s.repo.Save(ctx, cert)
	})
	if err != nil {
		return err
	}
	return s.publish(ctx, CertificateRevoked{
		CertificateID: id,
		Reason:        reason,
		OccurredAt:    now.UTC(),
	})
}

// Transfer moves certificate ownership to newOwner.
func (s *RegistryService) Transfer(ctx context.Context, id, caller, newOwner string) error {
	if !s.config.TransfersEnabled {
		return certificate.ErrTransfersNotAllowed
	}
	now := s.clock.Now()
	var from string
	err := s.runner.RunInTx(ctx, func(ctx context.Context) error {
		cert, err := s.repo.Find(ctx, id)
		if err != nil {
			return err
		}
		from = cert.Owner()
		if err := cert.TransferTo(caller, newOwner, now); err != nil {
			return err
		}
		return s.repo.Save(ctx, cert)
	})
	if err != nil {
		return err
	}
	return s.publish(ctx, CertificateTransferred{
		CertificateID: id,
		From:          from,
		To:            newOwner,
		OccurredAt:    now.UTC(),
	})
}

// Get returns a certificate snapshot with lazy expiry applied.
func (s *RegistryService) Get(ctx context.Context, id string) (*certificate.Certificate, error) {
	now := s.clock.Now()
	var cert *certificate.Certificate
	err := s.runner.RunInTx(ctx, func(ctx context.Context) error {
		loaded, err := s.repo.Find(ctx, id)
		if err != nil {
			return err
		}
		if loaded.ExpireIfDue(now) {
			if err := s.repo.Save(ctx, loaded); err != nil {
				return err
			}
		}
		cert = loaded
		return nil
	})
	if err != nil {
		return nil, err
	}
	return cert, nil
}

// List returns all certificates.
func (s *RegistryService) List(ctx context.Context) ([]*certificate.Certificate, error) {
	return s.repo.List(ctx)
}

func (s *RegistryService) publish(ctx context.Context, event any) error {
	if s.publisher == nil {
		return nil
	}
	return s.publisher.Publish(ctx, event)
}
