package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	certificate "energytrade/internal/certificate/domain"
	"energytrade/internal/uow"
	uowpg "energytrade/internal/uow/postgres"
)

const certificateColumns = `id, meter_id, owner, energy_amount, source, status, validated_for_trading,
	issued_at, expires_at, revocation_reason, revoked_at, transfer_count, last_transferred_at, version`

// CertificateRepository is the Postgres certificate store.
type CertificateRepository struct {
	db *sql.DB
}

// NewCertificateRepository constructs a repository.
func NewCertificateRepository(db *sql.DB) (*CertificateRepository, error) {
	if db == nil {
		return nil, errors.New("certificate repository: nil db")
	}
	return &CertificateRepository{db: db}, nil
}

// Find loads a certificate by id.
func (r *CertificateRepository) Find(ctx context.Context, id string) (*certificate.Certificate, error) {
	q := uowpg.QuerierFor(ctx, r.db)
	row := q.QueryRowContext(ctx,
		`SELECT `+certificateColumns+` FROM certificates WHERE id = $1`, id)
	cert, err := scanCertificate(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, certificate.ErrCertificateNotFound
		}
		return nil, err
	}
	return cert, nil
}

// Save persists a certificate with a version check.
func (r *CertificateRepository) Save(ctx context.Context, cert *certificate.Certificate) error {
	if cert == nil {
		return certificate.ErrNilAggregate
	}
	q := uowpg.QuerierFor(ctx, r.db)
	if cert.IsNew() {
		result, err := q.ExecContext(ctx, `
INSERT INTO certificates (`+certificateColumns+`)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,1)
ON CONFLICT (id) DO NOTHING`,
			cert.ID(), cert.MeterID(), cert.Owner(), cert.EnergyAmount(), cert.Source(),
			string(cert.Status()), cert.ValidatedForTrading(),
			cert.IssuedAt(), cert.ExpiresAt(),
			cert.RevocationReason(), nullableTime(cert.RevokedAt()),
			cert.TransferCount(), nullableTime(cert.LastTransferredAt()))
		if err != nil {
			return err
		}
		affected, err := result.RowsAffected()
		if err != nil {
			return err
		}
		if affected == 0 {
			return certificate.ErrCertificateExists
		}
		cert.MarkPersisted()
		return nil
	}

	result, err := q.ExecContext(ctx, `
UPDATE certificates
SET owner = $1, status = $2, validated_for_trading = $3,
	revocation_reason = $4, revoked_at = $5,
	transfer_count = $6, last_transferred_at = $7,
	version = version + 1
WHERE id = $8 AND version = $9`,
		cert.Owner(), string(cert.Status()), cert.ValidatedForTrading(),
		cert.RevocationReason(), nullableTime(cert.RevokedAt()),
		cert.TransferCount(), nullableTime(cert.LastTransferredAt()),
		cert.ID(), cert.Version())
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return uow.ErrConflict
	}
	cert.MarkPersisted()
	return nil
}

// List returns all certificates sorted by id.
func (r *CertificateRepository) List(ctx context.Context) ([]*certificate.Certificate, error) {
	q := uowpg.QuerierFor(ctx, r.db)
	rows, err := q.QueryContext(ctx,
		`SELECT `+certificateColumns+` FROM certificates ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*certificate.Certificate
	for rows.Next() {
		cert, err := scanCertificate(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, cert)
	}
	return out, rows.Err()
}

func scanCertificate(scan func(...any) error) (*certificate.Certificate, error) {
	var id, meterID, owner, source, status, revocationReason string
	var energyAmount, transferCount uint64
	var validated bool
	var issuedAt, expiresAt time.Time
	var revokedAt, lastTransferredAt sql.NullTime
	var version int
	if err := scan(&id, &meterID, &owner, &energyAmount, &source, &status, &validated,
		&issuedAt, &expiresAt, &revocationReason, &revokedAt, &transferCount,
		&lastTransferredAt, &version); err != nil {
		return nil, err
	}
	var revoked, transferred time.Time
	if revokedAt.Valid {
		revoked = revokedAt.Time
	}
	if lastTransferredAt.Valid {
		transferred = lastTransferredAt.Time
	}
	return certificate.RestoreCertificate(
		id, meterID, owner, energyAmount, source,
		certificate.Status(status), validated,
		issuedAt, expiresAt,
		revocationReason, revoked,
		transferCount, transferred,
		version,
	), nil
}

func nullableTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}
