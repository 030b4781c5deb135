package postgres

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	oracle "energytrade/internal/oracle/domain"
	"energytrade/internal/uow"
	uowpg "energytrade/internal/uow/postgres"
)

// ValidatorRepository is the Postgres validator store. The validator is a
// single row; backup gateways are stored comma separated.
type ValidatorRepository struct {
	db *sql.DB
}

// NewValidatorRepository constructs a repository.
func NewValidatorRepository(db *sql.DB) (*ValidatorRepository, error) {
	if db == nil {
		return nil, errors.New("validator repository: nil db")
	}
	return &ValidatorRepository{db: db}, nil
}

// Get loads the validator.
func (r *ValidatorRepository) Get(ctx context.Context) (*oracle.Validator, error) {
	q := uowpg.QuerierFor(ctx, r.db)
	row := q.QueryRowContext(ctx, `
SELECT admin, gateway, backup_gateways, active,
	min_energy, max_energy, anomaly_detection, min_interval_seconds,
	last_reading_at, avg_interval_seconds,
	total_readings, valid_readings, rejected_readings, version
FROM validator_state
WHERE id = 1`)

	var admin, gateway, backups string
	var active, anomalyDetection bool
	var minEnergy, maxEnergy uint64
	var minIntervalSecs int64
	var lastReadingAt sql.NullTime
	var avgIntervalSecs float64
	var totalReadings, validReadings, rejectedReadings uint64
	var version int
	if err := row.Scan(&admin, &gateway, &backups, &active,
		&minEnergy, &maxEnergy, &anomalyDetection, &minIntervalSecs,
		&lastReadingAt, &avgIntervalSecs,
		&totalReadings, &validReadings, &rejectedReadings, &version); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, oracle.ErrNilAggregate
		}
		return nil, err
	}

	var backupList []string
	if backups != "" {
		backupList = strings.Split(backups, ",")
	}
	var lastAt time.Time
	if lastReadingAt.Valid {
		lastAt = lastReadingAt.Time
	}
	return oracle.RestoreValidator(
		admin, gateway, backupList, active,
		minEnergy, maxEnergy, anomalyDetection,
		time.Duration(minIntervalSecs)*time.Second,
		lastAt, avgIntervalSecs,
		totalReadings, validReadings, rejectedReadings,
		version,
	), nil
}

// Save persists the validator with a version check.
func (r *ValidatorRepository) Save(ctx context.Context, validator *oracle.Validator) error {
	if validator == nil {
		return oracle.ErrNilAggregate
	}
	q := uowpg.QuerierFor(ctx, r.db)
	backups := strings.Join(validator.BackupGateways(), ",")
	if validator.IsNew() {
		_, err := q.ExecContext(ctx, `
INSERT INTO validator_state (
	id, admin, gateway, backup_gateways, active,
	min_energy, max_energy, anomaly_detection, min_interval_seconds,
	last_reading_at, avg_interval_seconds,
	total_readings, valid_readings, rejected_readings, version
) VALUES (1,$1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,1)`,
			validator.Admin(), validator.Gateway(), backups, validator.Active(),
			validator.MinEnergy(), validator.MaxEnergy(), validator.AnomalyDetection(),
			int64(validator.MinInterval()/time.Second),
			nullableTime(validator.LastReadingAt()), validator.AvgIntervalSeconds(),
			validator.TotalReadings(), validator.ValidReadings(), validator.RejectedReadings())
		if err != nil {
			return err
		}
		validator.MarkPersisted()
		return nil
	}

	result, err := q.ExecContext(ctx, `
UPDATE validator_state
SET gateway = $1, backup_gateways = $2, active = $3,
	min_energy = $4, max_energy = $5, anomaly_detection = $6, min_interval_seconds = $7,
	last_reading_at = $8, avg_interval_seconds = $9,
	total_readings = $10, valid_readings = $11, rejected_readings = $12,
	version = version + 1
WHERE id = 1 AND version = $13`,
		validator.Gateway(), backups, validator.Active(),
		validator.MinEnergy(), validator.MaxEnergy(), validator.AnomalyDetection(),
		int64(validator.MinInterval()/time.Second),
		nullableTime(validator.LastReadingAt()), validator.AvgIntervalSeconds(),
		validator.TotalReadings(), validator.ValidReadings(), validator.RejectedReadings(),
		validator.Version())
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
	validator.MarkPersisted()
	return nil
}

func nullableTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}
