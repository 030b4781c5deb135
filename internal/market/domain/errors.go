package market

import "errors"

var (
	ErrNilAggregate      = errors.New("market: nil aggregate")
	ErrOrderNotFound     = errors.New("market: order not found")
	ErrOrderExists       = errors.New("market: order id already exists")
	ErrEmptyOwner        = errors.New("market: empty owner")
	ErrInvalidSide       = errors.New("market: invalid order side")
	ErrZeroAmount        = errors.New("market: zero amount")
	ErrZeroPrice         = errors.New("market: zero price")
	ErrOrderTooSmall     = errors.New("market: amount below configured minimum")
	ErrOrderTooLarge     = errors.New("market: amount above configured maximum")
	ErrOrderNotActive    = errors.New("market: order not active")
	ErrOrderExpired      = errors.New("market: order expired")
	ErrOverfill          = errors.New("market: fill exceeds remaining amount")
	ErrSelfTrade         = errors.New("market: buyer and seller are the same account")
	ErrPriceMismatch     = errors.New("market: sell price exceeds buy price")
	ErrSideMismatch      = errors.New("market: orders are not a buy/sell pair")
	ErrUnauthorizedOwner = errors.New("market: caller does not own order")

	ErrCertificateNotTradable = errors.New("market: certificate not validated for trading")
	ErrCertificateExpired     = errors.New("market: certificate expired")
	ErrExceedsCertificate     = errors.New("market: amount exceeds certificate energy")
	ErrCertificateNotOwned    = errors.New("market: certificate not owned by seller")

	ErrEscrowNotFound     = errors.New("market: escrow account not found")
	ErrAccountFrozen      = errors.New("market: escrow account frozen")
	ErrInsufficientEscrow = errors.New("market: insufficient escrow balance")
	ErrHoldUnderflow      = errors.New("market: hold release exceeds held amount")
	ErrBalanceOverflow    = errors.New("market: balance overflow")

	ErrEmptyBatch    = errors.New("market: empty batch")
	ErrBatchTooLarge = errors.New("market: batch exceeds 10 settlements")
)
