package scanner

import "errors"

// Sentinel errors for scanner failure modes.
// Callers should use errors.Is() to check for these.
var (
	// ErrInvalidConcurrency is returned before any work starts when the
	// concurrency bound is outside 1..MaxScanConcurrency.
	ErrInvalidConcurrency = errors.New("scanner: invalid concurrency bound")

	// ErrJobTimeout is the cancellation cause of a job whose own deadline
	// expired.
	ErrJobTimeout = errors.New("scanner: job timed out")

	// ErrScannerUnavailable marks a lookup for a capability that is not
	// registered or reports itself unavailable.
	ErrScannerUnavailable = errors.New("scanner: capability unavailable")

	// ErrAlreadyRunning is returned when an asynchronous batch is started
	// while another is in flight.
	ErrAlreadyRunning = errors.New("scanner already running")
)
