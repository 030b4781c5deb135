package market

import "time"

// DefaultOrderLifetime applies when an order carries no explicit expiry.
const DefaultOrderLifetime = 24 * time.Hour

// Side distinguishes buy and sell orders.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// ParseSide validates a side string.
func ParseSide(s string) (Side, error) {
	switch Side(s) {
	case SideBuy, SideSell:
		return Side(s), nil
	default:
		return "", ErrInvalidSide
	}
}

// OrderStatus is the order lifecycle state. Filled, Cancelled and Expired
// are terminal.
type OrderStatus string

const (
	OrderActive    OrderStatus = "active"
	OrderFilled    OrderStatus = "filled"
	OrderCancelled OrderStatus = "cancelled"
	OrderExpired   OrderStatus = "expired"
)

// Order is one side of a prospective trade. Expiry is evaluated lazily:
// an order past expires_at stays Active in storage until next touched.
type Order struct {
	id            string
	side          Side
	owner         string
	amount        uint64
	filledAmount  uint64
	pricePerUnit  uint64
	certificateID string
	status        OrderStatus
	createdAt     time.Time
	expiresAt     time.Time

	version int
	isNew   bool
}

// NewOrder creates an Active order.
func NewOrder(id string, side Side, owner string, amount, pricePerUnit uint64, certificateID string, createdAt, expiresAt time.Time) (*Order, error) {
	if owner == "" {
		return nil, ErrEmptyOwner
	}
	if side != SideBuy && side != SideSell {
		return nil, ErrInvalidSide
	}
	if amount == 0 {
		return nil, ErrZeroAmount
	}
	if pricePerUnit == 0 {
		return nil, ErrZeroPrice
	}
	if expiresAt.IsZero() {
		expiresAt = createdAt.Add(DefaultOrderLifetime)
	}
	return &Order{
		id:            id,
		side:          side,
		owner:         owner,
		amount:        amount,
		pricePerUnit:  pricePerUnit,
		certificateID: certificateID,
		status:        OrderActive,
		createdAt:     createdAt.UTC(),
		expiresAt:     expiresAt.UTC(),
		isNew:         true,
	}, nil
}

// RestoreOrder rebuilds a persisted order.
func RestoreOrder(
	id string, side Side, owner string,
	amount, filledAmount, pricePerUnit uint64,
	certificateID string,
	status OrderStatus,
	createdAt, expiresAt time.Time,
	version int,
) *Order {
	return &Order{
		id:            id,
		side:          side,
		owner:         owner,
		amount:        amount,
		filledAmount:  filledAmount,
		pricePerUnit:  pricePerUnit,
		certificateID: certificateID,
		status:        status,
		createdAt:     createdAt,
		expiresAt:     expiresAt,
		version:       version,
	}
}

// ExpireIfDue transitions an Active order past its expiry to Expired and
// reports whether the transition happened.
func (o *Order) ExpireIfDue(now time.Time) bool {
	if o.status != OrderActive {
		return false
	}
	if now.Before(o.expiresAt) {
		return false
	}
	o.status = OrderExpired
	return true
}

// Fill increases the filled amount, transitioning to Filled when the
// order is exhausted.
func (o *Order) Fill(amount uint64) error {
	if o.status != OrderActive {
		return ErrOrderNotActive
	}
	if amount == 0 {
		return ErrZeroAmount
	}
	if amount > o.Remaining() {
		return ErrOverfill
	}
	o.filledAmount += amount
	if o.filledAmount == o.amount {
		o.status = OrderFilled
	}
	return nil
}

// Cancel terminally cancels an Active order. Owner only.
func (o *Order) Cancel(caller string) error {
	if caller != o.owner {
		return ErrUnauthorizedOwner
	}
	if o.status != OrderActive {
		return ErrOrderNotActive
	}
	o.status = OrderCancelled
	return nil
}

// Remaining returns the unfilled amount.
func (o *Order) Remaining() uint64 { return o.amount - o.filledAmount }

// RemainingValue returns the unfilled amount priced at the order's limit.
func (o *Order) RemainingValue() uint64 { return o.Remaining() * o.pricePerUnit }

func (o *Order) ID() string            { return o.id }
func (o *Order) Side() Side            { return o.side }
func (o *Order) Owner() string         { return o.owner }
func (o *Order) Amount() uint64        { return o.amount }
func (o *Order) FilledAmount() uint64  { return o.filledAmount }
func (o *Order) PricePerUnit() uint64  { return o.pricePerUnit }
func (o *Order) CertificateID() string { return o.certificateID }
func (o *Order) Status() OrderStatus   { return o.status }
func (o *Order) CreatedAt() time.Time  { return o.createdAt }
func (o *Order) ExpiresAt() time.Time  { return o.expiresAt }

// Version returns the optimistic concurrency version.
func (o *Order) Version() int { return o.version }

// IsNew reports whether the order was freshly created.
func (o *Order) IsNew() bool { return o.isNew }

// MarkPersisted marks the order as persisted and bumps the version.
func (o *Order) MarkPersisted() {
	if o != nil {
		o.isNew = false
		o.version++
	}
}

// Clone returns a detached copy.
func (o *Order) Clone() *Order {
	if o == nil {
		return nil
	}
	copy := *o
	return &copy
}
