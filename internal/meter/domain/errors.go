package meter

import "errors"

var (
	ErrNilAggregate                    = errors.New("meter: nil aggregate")
	ErrEmptyMeterID                    = errors.New("meter: empty meter id")
	ErrEmptyOwner                      = errors.New("meter: empty owner")
	ErrInvalidSource                   = errors.New("meter: invalid source type")
	ErrMeterExists                     = errors.New("meter: meter already registered")
	ErrMeterNotFound                   = errors.New("meter: meter not found")
	ErrMeterNotActive                  = errors.New("meter: meter is not active")
	ErrAlreadyInactive                 = errors.New("meter: meter is inactive")
	ErrInvalidStatus                   = errors.New("meter: invalid status")
	ErrReadingRegression               = errors.New("meter: cumulative totals may not decrease")
	ErrNoUnsettledBalance              = errors.New("meter: no unsettled generation surplus")
	ErrUnauthorizedOwner               = errors.New("meter: caller is not the meter owner")
	ErrInsufficientUnclaimedGeneration = errors.New("meter: insufficient unclaimed generation")
	ErrZeroAmount                      = errors.New("meter: amount must be positive")
)
