package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Stores, transports, and the bus
// return these (optionally wrapped) so services can translate them into
// domain errors.
//
//   - ErrNotFound: record does not exist in store
//   - ErrConflict: concurrent writer won, or a uniqueness rule was violated
//   - ErrInvalidState: record is in the wrong status for the requested transition
//   - ErrUnavailable: downstream temporarily unavailable (transport down, breaker open)
//   - ErrClosed: component has been shut down
//   - ErrNoTransaction: a transactional write was attempted without a transaction
var (
	ErrNotFound      = errors.New("not found")
	ErrConflict      = errors.New("conflict")
	ErrInvalidState  = errors.New("invalid state")
	ErrUnavailable   = errors.New("unavailable")
	ErrClosed        = errors.New("closed")
	ErrNoTransaction = errors.New("no transaction in context")
)
