package certificate

import "time"

const (
	// MaxIDLen bounds certificate identifiers.
	MaxIDLen = 64

	// MaxSourceLen bounds the source type name.
	MaxSourceLen = 64

	// MaxReasonLen bounds the revocation reason.
	MaxReasonLen = 128
)

// Status is the certificate lifecycle state.
type Status string

const (
	StatusPending Status = "pending"
	StatusValid   Status = "valid"
	StatusExpired Status = "expired"
	StatusRevoked Status = "revoked"
)

// Certificate is a renewable-attribution claim against a meter's
// generation. Issuance permanently reserves the claimed amount in the
// meter's certified counter; the certificate itself only changes hands
// or dies afterwards.
type Certificate struct {
	id           string
	meterID      string
	owner        string
	energyAmount uint64
	source       string

	status              Status
	validatedForTrading bool

	issuedAt  time.Time
	expiresAt time.Time

	revocationReason string
	revokedAt        time.Time

	transferCount     uint64
	lastTransferredAt time.Time

	version int
	isNew   bool
}

// NewCertificate creates a Valid certificate expiring after validity.
func NewCertificate(id, meterID, owner string, energyAmount uint64, source string, issuedAt time.Time, validity time.Duration) (*Certificate, error) {
	if id == "" {
		return nil, ErrEmptyCertificateID
	}
	if len(id) > MaxIDLen {
		return nil, ErrCertificateIDTooLong
	}
	if owner == "" {
		return nil, ErrEmptyOwner
	}
	if energyAmount == 0 {
		return nil, ErrZeroEnergy
	}
	if source == "" {
		return nil, ErrEmptySource
	}
	if len(source) > MaxSourceLen {
		return nil, ErrSourceNameTooLong
	}
	return &Certificate{
		id:           id,
		meterID:      meterID,
		owner:        owner,
		energyAmount: energyAmount,
		source:       source,
		status:       StatusValid,
		issuedAt:     issuedAt.UTC(),
		expiresAt:    issuedAt.Add(validity).UTC(),
		isNew:        true,
	}, nil
}

// RestoreCertificate rebuilds a persisted certificate.
func RestoreCertificate(
	id, meterID, owner string,
	energyAmount uint64,
	source string,
	status Status,
	validatedForTrading bool,
	issuedAt, expiresAt time.Time,
	revocationReason string,
	revokedAt time.Time,
	transferCount uint64,
	lastTransferredAt time.Time,
	version int,
) *Certificate {
	return &Certificate{
		id:                  id,
		meterID:             meterID,
		owner:               owner,
		energyAmount:        energyAmount,
		source:              source,
		status:              status,
		validatedForTrading: validatedForTrading,
		issuedAt:            issuedAt,
		expiresAt:           expiresAt,
		revocationReason:    revocationReason,
		revokedAt:           revokedAt,
		transferCount:       transferCount,
		lastTransferredAt:   lastTransferredAt,
		version:             version,
	}
}

// ExpireIfDue lazily transitions a Pending or Valid certificate past its
// expiry to Expired. It reports whether the transition happened.
func (c *Certificate) ExpireIfDue(now time.Time) bool {
	if c.status != StatusPending && c.status != StatusValid {
		return false
	}
	if now.Before(c.expiresAt) {
		return false
	}
	c.status = StatusExpired
	return true
}

// ValidateForTrading marks the certificate tradable on the order book.
func (c *Certificate) ValidateForTrading(now time.Time) error {
	c.ExpireIfDue(now)
	switch c.status {
	case StatusExpired:
		return ErrExpired
	case StatusValid:
	default:
		return ErrNotValid
	}
	if c.validatedForTrading {
		return ErrAlreadyValidated
	}
	c.validatedForTrading = true
	return nil
}

// Revoke terminally invalidates a Pending or Valid certificate.
func (c *Certificate) Revoke(reason string, now time.Time) error {
	if reason == "" {
		return ErrReasonRequired
	}
	if len(reason) > MaxReasonLen {
		return ErrReasonTooLong
	}
	switch c.status {
	case StatusRevoked:
		return ErrAlreadyRevoked
	case StatusExpired:
		return ErrExpired
	}
	c.status = StatusRevoked
	c.validatedForTrading = false
	c.revocationReason = reason
	c.revokedAt = now.UTC()
	return nil
}

// TransferTo moves ownership to newOwner. The caller must be the current
// owner and the certificate must be validated for trading.
func (c *Certificate) TransferTo(caller, newOwner string, now time.Time) error {
	if newOwner == "" {
		return ErrEmptyRecipient
	}
	if caller != c.owner {
		return ErrUnauthorizedHolder
	}
	if newOwner == c.owner {
		return ErrCannotTransferToSelf
	}
	c.ExpireIfDue(now)
	if c.status == StatusExpired {
		return ErrExpired
	}
	if c.status != StatusValid {
		return ErrNotValid
	}
	if !c.validatedForTrading {
		return ErrNotValidatedForTrading
	}
	c.owner = newOwner
	c.transferCount++
	c.lastTransferredAt = now.UTC()
	return nil
}

// Tradable reports whether the certificate may back a sell order.
func (c *Certificate) Tradable(now time.Time) bool {
	return c.status == StatusValid && c.validatedForTrading && now.Before(c.expiresAt)
}

func (c *Certificate) ID() string                { return c.id }
func (c *Certificate) MeterID() string           { return c.meterID }
func (c *Certificate) Owner() string             { return c.owner }
func (c *Certificate) EnergyAmount() uint64      { return c.energyAmount }
func (c *Certificate) Source() string            { return c.source }
func (c *Certificate) Status() Status            { return c.status }
func (c *Certificate) ValidatedForTrading() bool { return c.validatedForTrading }
func (c *Certificate) IssuedAt() time.Time       { return c.issuedAt }
func (c *Certificate) ExpiresAt() time.Time      { return c.expiresAt }
func (c *Certificate) RevocationReason() string  { return c.revocationReason }
func (c *Certificate) RevokedAt() time.Time      { return c.revokedAt }
func (c *Certificate) TransferCount() uint64     { return c.transferCount }
func (c *Certificate) LastTransferredAt() time.Time {
	return c.lastTransferredAt
}

// Version returns the optimistic concurrency version.
func (c *Certificate) Version() int { return c.version }

// IsNew reports whether the certificate was freshly issued.
func (c *Certificate) IsNew() bool { return c.isNew }

// MarkPersisted marks the certificate as persisted and bumps the version.
func (c *Certificate) MarkPersisted() {
	if c != nil {
		c.isNew = false
		c.version++
	}
}

// Clone returns a detached copy.
func (c *Certificate) Clone() *Certificate {
	if c == nil {
		return nil
	}
	copy := *c
	return &copy
}
