package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	meter "energytrade/internal/meter/domain"
	"energytrade/internal/uow"
	uowpg "energytrade/internal/uow/postgres"
)

// MeterRepository is the Postgres meter store.
type MeterRepository struct {
	db *sql.DB
}

// NewMeterRepository constructs a repository.
func NewMeterRepository(db *sql.DB) (*MeterRepository, error) {
	if db == nil {
		return nil, errors.New("meter repository: nil db")
	}
	return &MeterRepository{db: db}, nil
}

const meterColumns = `
id, owner, source, status, registered_at, last_reading_at,
total_generation, total_consumption, settled_generation, certified_generation, version`

// Find loads a meter by id, nil when absent.
func (r *MeterRepository) Find(ctx context.Context, id string) (*meter.Meter, error) {
	if id == "" {
		return nil, meter.ErrEmptyMeterID
	}
	q := uowpg.QuerierFor(ctx, r.db)
	row := q.QueryRowContext(ctx, `
SELECT`+meterColumns+`
FROM meters
WHERE id = $1`, id)
	m, err := scanMeter(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return m, nil
}

// Save persists a meter with a version check.
func (r *MeterRepository) Save(ctx context.Context, m *meter.Meter) error {
	if m == nil {
		return meter.ErrNilAggregate
	}
	q := uowpg.QuerierFor(ctx, r.db)
	if m.IsNew() {
		result, err := q.ExecContext(ctx, `
INSERT INTO meters (
	id, owner, source, status, registered_at, last_reading_at,
	total_generation, total_consumption, settled_generation, certified_generation, version
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,1)
ON CONFLICT (id) DO NOTHING`,
			m.ID(), m.Owner(), string(m.SourceType()), string(m.Status()),
			m.RegisteredAt(), nullableTime(m.LastReadingAt()),
			m.TotalGeneration(), m.TotalConsumption(), m.SettledGeneration(), m.CertifiedGeneration())
		if err != nil {
			return err
		}
		affected, err := result.RowsAffected()
		if err != nil {
			return err
		}
		if affected == 0 {
			return meter.ErrMeterExists
		}
		m.MarkPersisted()
		return nil
	}

	result, err := q.ExecContext(ctx, `
UPDATE meters
SET status = $1, last_reading_at = $2,
	total_generation = $3, total_consumption = $4,
	settled_generation = $5, certified_generation = $6,
	version = version + 1
WHERE id = $7 AND version = $8`,
		string(m.Status()), nullableTime(m.LastReadingAt()),
		m.TotalGeneration(), m.TotalConsumption(),
		m.SettledGeneration(), m.CertifiedGeneration(),
		m.ID(), m.Version())
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
	m.MarkPersisted()
	return nil
}

// List returns all meters ordered by id.
func (r *MeterRepository) List(ctx context.Context) ([]*meter.Meter, error) {
	q := uowpg.QuerierFor(ctx, r.db)
	rows, err := q.QueryContext(ctx, `
SELECT`+meterColumns+`
FROM meters
ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []*meter.Meter
	for rows.Next() {
		m, err := scanMeter(rows.Scan)
		if err != nil {
			return nil, err
		}
		result = append(result, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func scanMeter(scan func(...any) error) (*meter.Meter, error) {
	var id, owner, source, status string
	var registeredAt time.Time
	var lastReadingAt sql.NullTime
	var totalGen, totalCons, settled, certified uint64
	var version int
	if err := scan(&id, &owner, &source, &status, &registeredAt, &lastReadingAt,
		&totalGen, &totalCons, &settled, &certified, &version); err != nil {
		return nil, err
	}
	var lastAt time.Time
	if lastReadingAt.Valid {
		lastAt = lastReadingAt.Time
	}
	return meter.RestoreMeter(
		id, owner,
		meter.Source(source), meter.Status(status),
		registeredAt, lastAt,
		totalGen, totalCons, settled, certified,
		version,
	), nil
}

func nullableTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}
