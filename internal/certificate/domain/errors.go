package certificate

import "errors"

var (
	ErrNilAggregate           = errors.New("certificate: nil aggregate")
	ErrCertificateNotFound    = errors.New("certificate: not found")
	ErrCertificateExists      = errors.New("certificate: id already exists")
	ErrEmptyCertificateID     = errors.New("certificate: empty id")
	ErrCertificateIDTooLong   = errors.New("certificate: id exceeds 64 characters")
	ErrEmptySource            = errors.New("certificate: empty source")
	ErrSourceNameTooLong      = errors.New("certificate: source exceeds 64 characters")
	ErrEmptyOwner             = errors.New("certificate: empty owner")
	ErrZeroEnergy             = errors.New("certificate: zero energy amount")
	ErrBelowMinimumEnergy     = errors.New("certificate: energy below configured minimum")
	ErrExceedsMaximumEnergy   = errors.New("certificate: energy above configured maximum")
	ErrAlreadyValidated       = errors.New("certificate: already validated for trading")
	ErrExpired                = errors.New("certificate: expired")
	ErrNotValid               = errors.New("certificate: not in valid status")
	ErrAlreadyRevoked         = errors.New("certificate: already revoked")
	ErrReasonRequired         = errors.New("certificate: revocation reason required")
	ErrReasonTooLong          = errors.New("certificate: revocation reason exceeds 128 characters")
	ErrTransfersNotAllowed    = errors.New("certificate: transfers disabled")
	ErrNotValidatedForTrading = errors.New("certificate: not validated for trading")
	ErrCannotTransferToSelf   = errors.New("certificate: cannot transfer to self")
	ErrUnauthorizedIssuer     = errors.New("certificate: caller is not the issuing authority")
	ErrUnauthorizedHolder     = errors.New("certificate: caller does not own certificate")
	ErrEmptyRecipient         = errors.New("certificate: empty transfer recipient")
)
