package certificate

import (
	"context"
	"errors"

	certapp "energytrade/internal/certificate/application"
	certificate "energytrade/internal/certificate/domain"
	marketapp "energytrade/internal/market/application"
	market "energytrade/internal/market/domain"
)

// Reader adapts the certificate registry to the order book's lookup.
type Reader struct {
	service *certapp.RegistryService
}

// NewReader constructs the adapter.
func NewReader(service *certapp.RegistryService) (*Reader, error) {
	if service == nil {
		return nil, errors.New("certificate reader: nil registry service")
	}
	return &Reader{service: service}, nil
}

// Info resolves a certificate for order validation. Lazy expiry is
// applied by the registry before the snapshot is taken.
func (r *Reader) Info(ctx context.Context, id string) (marketapp.CertificateInfo, error) {
	cert, err := r.service.Get(ctx, id)
	if err != nil {
		if errors.Is(err, certificate.ErrCertificateNotFound) {
			return marketapp.CertificateInfo{}, market.ErrCertificateNotTradable
		}
		return marketapp.CertificateInfo{}, err
	}
	return marketapp.CertificateInfo{
		Owner:        cert.Owner(),
		EnergyAmount: cert.EnergyAmount(),
		Tradable:     cert.Status() == certificate.StatusValid && cert.ValidatedForTrading(),
		Expired:      cert.Status() == certificate.StatusExpired,
	}, nil
}
