package oracle

import "time"

const (
	// MaxBackupGateways caps the admin-managed redundancy set.
	MaxBackupGateways = 10

	// DefaultMinEnergy and DefaultMaxEnergy bound accepted reading values.
	DefaultMinEnergy uint64 = 0
	DefaultMaxEnergy uint64 = 1_000_000

	// DefaultMinInterval is the minimum spacing between readings.
	DefaultMinInterval = 60 * time.Second

	// MaxFutureDrift tolerates clock skew on submitted timestamps.
	MaxFutureDrift = 60 * time.Second

	// anomalyRatio rejects readings whose produced/consumed ratio exceeds it.
	anomalyRatio uint64 = 10
)

// Validator is the reading validation gate. A single validator guards the
// ledger; every reading passes through it before any meter mutation.
type Validator struct {
	admin          string
	gateway        string
	backupGateways []string
	active         bool

	minEnergy        uint64
	maxEnergy        uint64
	anomalyDetection bool
	minInterval      time.Duration

	lastReadingAt   time.Time
	avgIntervalSecs float64

	totalReadings    uint64
	validReadings    uint64
	rejectedReadings uint64

	version int
	isNew   bool
}

// NewValidator creates an active validator with default bounds.
func NewValidator(admin, gateway string) (*Validator, error) {
	if gateway == "" {
		return nil, ErrEmptyGateway
	}
	return &Validator{
		admin:            admin,
		gateway:          gateway,
		active:           true,
		minEnergy:        DefaultMinEnergy,
		maxEnergy:        DefaultMaxEnergy,
		anomalyDetection: true,
		minInterval:      DefaultMinInterval,
		isNew:            true,
	}, nil
}

// RestoreValidator rebuilds a persisted validator.
func RestoreValidator(
	admin, gateway string,
	backupGateways []string,
	active bool,
	minEnergy, maxEnergy uint64,
	anomalyDetection bool,
	minInterval time.Duration,
	lastReadingAt time.Time,
	avgIntervalSecs float64,
	totalReadings, validReadings, rejectedReadings uint64,
	version int,
) *Validator {
	return &Validator{
		admin:            admin,
		gateway:          gateway,
		backupGateways:   append([]string(nil), backupGateways...),
		active:           active,
		minEnergy:        minEnergy,
		maxEnergy:        maxEnergy,
		anomalyDetection: anomalyDetection,
		minInterval:      minInterval,
		lastReadingAt:    lastReadingAt,
		avgIntervalSecs:  avgIntervalSecs,
		totalReadings:    totalReadings,
		validReadings:    validReadings,
		rejectedReadings: rejectedReadings,
		version:          version,
	}
}

// AuthorizedSubmitter reports whether submitter is the gateway or a backup.
func (v *Validator) AuthorizedSubmitter(submitter string) bool {
	if submitter == "" {
		return false
	}
	if submitter == v.gateway {
		return true
	}
	for _, backup := range v.backupGateways {
		if submitter == backup {
			return true
		}
	}
	return false
}

// Validate checks a reading against the configured gate. It returns the
// first failing rule and does not mutate state.
func (v *Validator) Validate(produced, consumed uint64, timestamp, now time.Time) error {
	if !v.lastReadingAt.IsZero() {
		if !timestamp.After(v.lastReadingAt) {
			return ErrOutdatedReading
		}
		if timestamp.Sub(v.lastReadingAt) < v.minInterval {
			return ErrRateLimited
		}
	}
	if timestamp.After(now.Add(MaxFutureDrift)) {
		return ErrFutureReading
	}
	if produced < v.minEnergy || produced > v.maxEnergy ||
		consumed < v.minEnergy || consumed > v.maxEnergy {
		return ErrOutOfRange
	}
	if v.anomalyDetection && consumed > 0 && produced/consumed > anomalyRatio {
		return ErrAnomalousReading
	}
	return nil
}

// RecordValid updates counters and the weighted average interval for an
// accepted reading.
func (v *Validator) RecordValid(timestamp time.Time) {
	if !v.lastReadingAt.IsZero() {
		interval := timestamp.Sub(v.lastReadingAt).Seconds()
		if v.avgIntervalSecs == 0 {
			v.avgIntervalSecs = interval
		} else {
			v.avgIntervalSecs = v.avgIntervalSecs*0.8 + interval*0.2
		}
	}
	v.lastReadingAt = timestamp.UTC()
	v.totalReadings++
	v.validReadings++
}

// RecordRejected updates counters for a rejected reading.
func (v *Validator) RecordRejected() {
	v.totalReadings++
	v.rejectedReadings++
}

// QualityScore returns valid/(valid+rejected)*100, or 100 with no history.
func (v *Validator) QualityScore() float64 {
	judged := v.validReadings + v.rejectedReadings
	if judged == 0 {
		return 100
	}
	return float64(v.validReadings) / float64(judged) * 100
}

// AddBackupGateway authorizes a backup submitter.
func (v *Validator) AddBackupGateway(gateway string) error {
	if gateway == "" {
		return ErrEmptyGateway
	}
	if gateway == v.gateway {
		return ErrGatewayExists
	}
	for _, backup := range v.backupGateways {
		if backup == gateway {
			return ErrGatewayExists
		}
	}
	if len(v.backupGateways) >= MaxBackupGateways {
		return ErrMaxBackupGateways
	}
	v.backupGateways = append(v.backupGateways, gateway)
	return nil
}

// RemoveBackupGateway revokes a backup submitter.
func (v *Validator) RemoveBackupGateway(gateway string) error {
	for i, backup := range v.backupGateways {
		if backup == gateway {
			v.backupGateways = append(v.backupGateways[:i], v.backupGateways[i+1:]...)
			return nil
		}
	}
	return ErrGatewayNotFound
}

// SetGateway replaces the primary gateway.
func (v *Validator) SetGateway(gateway string) error {
	if gateway == "" {
		return ErrEmptyGateway
	}
	v.gateway = gateway
	return nil
}

// SetActive toggles the validator.
func (v *Validator) SetActive(active bool) {
	v.active = active
}

// UpdateConfig replaces the validation bounds.
func (v *Validator) UpdateConfig(minEnergy, maxEnergy uint64, anomalyDetection bool, minInterval time.Duration) error {
	if maxEnergy <= minEnergy || minInterval < 0 {
		return ErrInvalidBounds
	}
	v.minEnergy = minEnergy
	v.maxEnergy = maxEnergy
	v.anomalyDetection = anomalyDetection
	v.minInterval = minInterval
	return nil
}

// IsAdmin reports whether caller administers the validator.
func (v *Validator) IsAdmin(caller string) bool { return caller != "" && caller == v.admin }

// Active reports whether the validator accepts readings.
func (v *Validator) Active() bool { return v.active }

// Admin returns the validator admin.
func (v *Validator) Admin() string { return v.admin }

// Gateway returns the primary gateway identity.
func (v *Validator) Gateway() string { return v.gateway }

// BackupGateways returns a copy of the backup set.
func (v *Validator) BackupGateways() []string {
	return append([]string(nil), v.backupGateways...)
}

// MinEnergy returns the lower bound.
func (v *Validator) MinEnergy() uint64 { return v.minEnergy }

// MaxEnergy returns the upper bound.
func (v *Validator) MaxEnergy() uint64 { return v.maxEnergy }

// AnomalyDetection reports whether the ratio check is enabled.
func (v *Validator) AnomalyDetection() bool { return v.anomalyDetection }

// MinInterval returns the minimum reading spacing.
func (v *Validator) MinInterval() time.Duration { return v.minInterval }

// LastReadingAt returns the last accepted reading timestamp.
func (v *Validator) LastReadingAt() time.Time { return v.lastReadingAt }

// AvgIntervalSeconds returns the weighted average reading interval.
func (v *Validator) AvgIntervalSeconds() float64 { return v.avgIntervalSecs }

// TotalReadings returns the total submission count.
func (v *Validator) TotalReadings() uint64 { return v.totalReadings }

// ValidReadings returns the accepted count.
func (v *Validator) ValidReadings() uint64 { return v.validReadings }

// RejectedReadings returns the rejected count.
func (v *Validator) RejectedReadings() uint64 { return v.rejectedReadings }

// Version returns the optimistic concurrency version.
func (v *Validator) Version() int { return v.version }

// IsNew reports whether the validator was freshly created.
func (v *Validator) IsNew() bool { return v.isNew }

// MarkPersisted marks the validator as persisted and bumps the version.
func (v *Validator) MarkPersisted() {
	if v != nil {
		v.isNew = false
		v.version++
	}
}

// Clone returns a detached copy.
func (v *Validator) Clone() *Validator {
	if v == nil {
		return nil
	}
	copy := *v
	copy.backupGateways = append([]string(nil), v.backupGateways...)
	return &copy
}
