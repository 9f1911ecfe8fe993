package domain

import "errors"

var (
	ErrNotFound        = errors.New("not found")
	ErrLockHeld        = errors.New("lock already held")
	ErrInvalidOptions  = errors.New("invalid options")
	ErrNothingToArb    = errors.New("nothing to arbitrage")
	ErrNotDeposit      = errors.New("transaction is not a node deposit")
	ErrBadStatus       = errors.New("unexpected response status")
	ErrUnauthorized    = errors.New("unauthorized")
	ErrRateLimited     = errors.New("rate limited")
	ErrDaemonRejected  = errors.New("daemon rejected request")
	ErrSenderMismatch  = errors.New("recovered sender does not match expected account")
	ErrPayloadMismatch = errors.New("signed payload differs from requested transaction")
	ErrNonceTooHigh    = errors.New("account nonce too high for bundle")
	ErrExhausted       = errors.New("no candidate block included the bundle")
)
