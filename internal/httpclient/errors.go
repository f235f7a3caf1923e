package httpclient

import (
	"errors"
	"fmt"
)

// ErrCircuitOpen is returned without touching the network while the breaker
// is open.
var ErrCircuitOpen = errors.New("httpclient: circuit breaker open")

// StatusError reports an unexpected HTTP status.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("unexpected status %d", e.Code)
	}
	return fmt.Sprintf("unexpected status %d: %s", e.Code, e.Body)
}
