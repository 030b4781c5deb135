package token

import "errors"

var (
	ErrNilAggregate          = errors.New("token: nil aggregate")
	ErrEmptyHolder           = errors.New("token: empty holder")
	ErrZeroAmount            = errors.New("token: amount must be positive")
	ErrUnauthorizedMinter    = errors.New("token: caller is not the settlement authority")
	ErrUnauthorizedAuthority = errors.New("token: caller is not the token authority")
	ErrUnauthorizedHolder    = errors.New("token: caller does not own the balance")
	ErrMintingDisabled       = errors.New("token: minting is disabled")
	ErrSupplyOverflow        = errors.New("token: total supply overflow")
	ErrInsufficientBalance   = errors.New("token: insufficient balance")
)
