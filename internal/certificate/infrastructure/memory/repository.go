package memory

import (
	"context"
	"sort"
	"sync"

	certificate "energytrade/internal/certificate/domain"
	"energytrade/internal/uow"
)

// CertificateRepository is an in-memory certificate store.
type CertificateRepository struct {
	mu    sync.RWMutex
	certs map[string]*certificate.Certificate
}

// NewCertificateRepository constructs an empty repository.
func NewCertificateRepository() *CertificateRepository {
	return &CertificateRepository{certs: make(map[string]*certificate.Certificate)}
}

// Find loads a certificate by id.
func (r *CertificateRepository) Find(ctx context.Context, id string) (*certificate.Certificate, error) {
	_ = ctx
	r.mu.RLock()
	defer r.mu.RUnlock()
	cert, ok := r.certs[id]
	if !ok {
		return nil, certificate.ErrCertificateNotFound
	}
	return cert.Clone(), nil
}

// Save persists a certificate, rejecting stale versions.
func (r *CertificateRepository) Save(ctx context.Context, cert *certificate.Certificate) error {
	_ = ctx
	if cert == nil {
		return certificate.ErrNilAggregate
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	existing := r.certs[cert.ID()]
	if cert.IsNew() {
		if existing != nil {
			return certificate.ErrCertificateExists
		}
	} else {
		if existing == nil {
			return certificate.ErrCertificateNotFound
		}
		if existing.Version() != cert.Version() {
			return uow.ErrConflict
		}
	}
	stored := cert.Clone()
	stored.MarkPersisted()
	r.certs[cert.ID()] = stored
	cert.MarkPersisted()
	return nil
}

// List returns all certificates sorted by id.
func (r *CertificateRepository) List(ctx context.Context) ([]*certificate.Certificate, error) {
	_ = ctx
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*certificate.Certificate, 0, len(r.certs))
	for _, cert := range r.certs {
		out = append(out, cert.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
	return out, nil
}
