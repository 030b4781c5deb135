package oracle

import "errors"

var (
	ErrNilAggregate        = errors.New("oracle: nil aggregate")
	ErrValidatorInactive   = errors.New("oracle: validator is inactive")
	ErrUnauthorizedGateway = errors.New("oracle: submitter is not an authorized gateway")
	ErrUnauthorizedAdmin   = errors.New("oracle: caller is not the validator admin")
	ErrOutdatedReading     = errors.New("oracle: reading is older than the last accepted reading")
	ErrFutureReading       = errors.New("oracle: reading timestamp is too far in the future")
	ErrRateLimited         = errors.New("oracle: reading arrived before the minimum interval elapsed")
	ErrOutOfRange          = errors.New("oracle: reading value outside the configured range")
	ErrAnomalousReading    = errors.New("oracle: production to consumption ratio is anomalous")
	ErrEmptyGateway        = errors.New("oracle: empty gateway identity")
	ErrGatewayExists       = errors.New("oracle: gateway already authorized")
	ErrGatewayNotFound     = errors.New("oracle: gateway not found")
	ErrMaxBackupGateways   = errors.New("oracle: backup gateway limit reached")
	ErrInvalidBounds       = errors.New("oracle: invalid validation bounds")
)
