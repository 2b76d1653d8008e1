package interfaces

import "errors"

var (
	// ErrNotFound is returned when a named failure record does not exist.
	// Engines are expected to treat it as "no prior failures" rather than as a fault.
	ErrNotFound = errors.New("not found")

	// ErrInternal is returned when a capability backend hits an I/O or system-call fault.
	ErrInternal = errors.New("internal error")

	// ErrChannelFault is returned (after the fault handler ran) when the TA goroutine
	// can no longer be reached. The engine state is indeterminate from then on.
	ErrChannelFault = errors.New("TA channel fault")

	// ErrRequestTooLarge is returned when a request exceeds the channel's maximum message size.
	ErrRequestTooLarge = errors.New("request exceeds maximum message size")

	// ErrInvalidLocationURI is returned when a failure store location URI is malformed or unsupported.
	ErrInvalidLocationURI = errors.New("invalid storage location URI")
)
