package lanes

import "errors"

var (
	// ErrPoolClosed is returned when submitting to a pool whose lanes have
	// been shut down.
	ErrPoolClosed = errors.New("lane pool is closed")

	// ErrRejected is returned by Strategy.Submit while the strategy is
	// shutting down. It is a transient backpressure signal: the caller should
	// back off and retry.
	ErrRejected = errors.New("strategy is shutting down")
)
