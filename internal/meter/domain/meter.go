package meter

import "time"

// Source identifies the physical generation source behind a meter.
type Source string

const (
	SourceSolar   Source = "solar"
	SourceWind    Source = "wind"
	SourceBattery Source = "battery"
	SourceGrid    Source = "grid"
)

// ParseSource validates a source string.
func ParseSource(value string) (Source, error) {
	switch Source(value) {
	case SourceSolar, SourceWind, SourceBattery, SourceGrid:
		return Source(value), nil
	default:
		return "", ErrInvalidSource
	}
}

// Status is the meter lifecycle status.
type Status string

const (
	StatusPending   Status = "pending"
	StatusActive    Status = "active"
	StatusInactive  Status = "inactive"
	StatusSuspended Status = "suspended"
)

// ParseStatus validates a status string.
func ParseStatus(value string) (Status, error) {
	switch Status(value) {
	case StatusPending, StatusActive, StatusInactive, StatusSuspended:
		return Status(value), nil
	default:
		return "", ErrInvalidStatus
	}
}

// Meter is the per-meter generation/consumption ledger. Counters are
// cumulative lifetime totals and only ever grow. Each generated Wh is
// unclaimed, settled (minted), or certified, never two of those at once:
// settledGeneration + certifiedGeneration <= totalGeneration.
type Meter struct {
	id            string
	owner         string
	source        Source
	status        Status
	registeredAt  time.Time
	lastReadingAt time.Time

	totalGeneration     uint64
	totalConsumption    uint64
	settledGeneration   uint64
	certifiedGeneration uint64

	version int
	isNew   bool
}

// NewMeter registers a new active meter with zero counters.
func NewMeter(id, owner string, source Source, registeredAt time.Time) (*Meter, error) {
	if id == "" {
		return nil, ErrEmptyMeterID
	}
	if owner == "" {
		return nil, ErrEmptyOwner
	}
	if _, err := ParseSource(string(source)); err != nil {
		return nil, err
	}
	return &Meter{
		id:           id,
		owner:        owner,
		source:       source,
		status:       StatusActive,
		registeredAt: registeredAt.UTC(),
		isNew:        true,
	}, nil
}

// RestoreMeter rebuilds a persisted meter.
func RestoreMeter(
	id, owner string,
	source Source,
	status Status,
	registeredAt, lastReadingAt time.Time,
	totalGeneration, totalConsumption, settledGeneration, certifiedGeneration uint64,
	version int,
) *Meter {
	return &Meter{
		id:                  id,
		owner:               owner,
		source:              source,
		status:              status,
		registeredAt:        registeredAt,
		lastReadingAt:       lastReadingAt,
		totalGeneration:     totalGeneration,
		totalConsumption:    totalConsumption,
		settledGeneration:   settledGeneration,
		certifiedGeneration: certifiedGeneration,
		version:             version,
	}
}

// Accumulate applies new cumulative lifetime totals. Equal totals are a
// no-op so duplicate retransmissions are harmless; a decrease is rejected.
func (m *Meter) Accumulate(newTotalGeneration, newTotalConsumption uint64, at time.Time) error {
	if m.status != StatusActive {
		return ErrMeterNotActive
	}
	if newTotalGeneration < m.totalGeneration || newTotalConsumption < m.totalConsumption {
		return ErrReadingRegression
	}
	if newTotalGeneration == m.totalGeneration && newTotalConsumption == m.totalConsumption {
		return nil
	}
	m.totalGeneration = newTotalGeneration
	m.totalConsumption = newTotalConsumption
	if !at.IsZero() {
		m.lastReadingAt = at.UTC()
	}
	return nil
}

// Mintable computes the settleable surplus: net generation above
// consumption not yet settled, further capped by the unclaimed pool so the
// joint settled+certified bound cannot be violated.
func (m *Meter) Mintable() uint64 {
	spent := m.totalConsumption + m.settledGeneration
	if spent < m.totalConsumption {
		// uint64 overflow; nothing left either way.
		return 0
	}
	if m.totalGeneration <= spent {
		return 0
	}
	surplus := m.totalGeneration - spent
	unclaimed := m.Unclaimed()
	if surplus > unclaimed {
		return unclaimed
	}
	return surplus
}

// Unclaimed returns generation not yet settled or certified.
func (m *Meter) Unclaimed() uint64 {
	claimed := m.settledGeneration + m.certifiedGeneration
	if claimed >= m.totalGeneration {
		return 0
	}
	return m.totalGeneration - claimed
}

// Settle converts the mintable surplus into settled generation and returns
// the settled amount.
func (m *Meter) Settle() (uint64, error) {
	if m.status != StatusActive {
		return 0, ErrMeterNotActive
	}
	mintable := m.Mintable()
	if mintable == 0 {
		return 0, ErrNoUnsettledBalance
	}
	m.settledGeneration += mintable
	return mintable, nil
}

// Certify claims amount from the unclaimed generation pool for a
// certificate.
func (m *Meter) Certify(amount uint64) error {
	if amount == 0 {
		return ErrZeroAmount
	}
	if m.status != StatusActive {
		return ErrMeterNotActive
	}
	if amount > m.Unclaimed() {
		return ErrInsufficientUnclaimedGeneration
	}
	m.certifiedGeneration += amount
	return nil
}

// SetStatus transitions the meter. Inactive is terminal.
func (m *Meter) SetStatus(status Status) error {
	if _, err := ParseStatus(string(status)); err != nil {
		return err
	}
	if m.status == StatusInactive {
		return ErrAlreadyInactive
	}
	m.status = status
	return nil
}

// IsOwner reports whether caller owns the meter.
func (m *Meter) IsOwner(caller string) bool { return caller == m.owner }

// ID returns the meter id.
func (m *Meter) ID() string { return m.id }

// Owner returns the owner account.
func (m *Meter) Owner() string { return m.owner }

// SourceType returns the generation source.
func (m *Meter) SourceType() Source { return m.source }

// Status returns the lifecycle status.
func (m *Meter) Status() Status { return m.status }

// RegisteredAt returns the registration time.
func (m *Meter) RegisteredAt() time.Time { return m.registeredAt }

// LastReadingAt returns the time of the last accepted reading.
func (m *Meter) LastReadingAt() time.Time { return m.lastReadingAt }

// TotalGeneration returns cumulative lifetime generation.
func (m *Meter) TotalGeneration() uint64 { return m.totalGeneration }

// TotalConsumption returns cumulative lifetime consumption.
func (m *Meter) TotalConsumption() uint64 { return m.totalConsumption }

// SettledGeneration returns generation already converted to credits.
func (m *Meter) SettledGeneration() uint64 { return m.settledGeneration }

// CertifiedGeneration returns generation already claimed by certificates.
func (m *Meter) CertifiedGeneration() uint64 { return m.certifiedGeneration }

// Version returns the optimistic concurrency version.
func (m *Meter) Version() int { return m.version }

// IsNew reports whether the meter was freshly created.
func (m *Meter) IsNew() bool { return m.isNew }

// MarkPersisted marks the meter as persisted and bumps the version.
func (m *Meter) MarkPersisted() {
	if m != nil {
		m.isNew = false
		m.version++
	}
}

// Clone returns a detached copy.
func (m *Meter) Clone() *Meter {
	if m == nil {
		return nil
	}
	copy := *m
	return &copy
}
