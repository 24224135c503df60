package gateway

import "errors"

var (
	// ErrThrottled marks a "too many requests" answer from the broker.
	// Guard retries these after a cooldown; nothing else does.
	ErrThrottled = errors.New("too many requests")
	// ErrNotFound marks an unknown or delisted instrument.
	ErrNotFound = errors.New("instrument not found")
	// ErrTerminal marks a failure that will not succeed on retry
	// (order rejected, session invalid). Placement batches abort on it.
	ErrTerminal = errors.New("terminal gateway error")
)
