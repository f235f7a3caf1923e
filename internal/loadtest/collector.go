package loadtest

import (
	"sync"
)

// Sample is the outcome of one request. StatusCode is 0 for a transport
// level error, whose message is in Err.
type Sample struct {
	ElapsedMs  float64 `json:"elapsed_ms"`
	StatusCode int     `json:"status_code"`
	Err        string  `json:"error,omitempty"`
}

// Collector accumulates samples from many workers. Record is safe for
// concurrent use; Snapshot is meant to be called after workers have joined.
type Collector struct {
	mu          sync.Mutex
	samples     []Sample
	statusCodes map[int]int
	errors      []string
}

// NewCollector creates an empty collector.
func NewCollector() *Collector {
	return &Collector{
		statusCodes: make(map[int]int),
	}
}

// Record appends one outcome.
func (c *Collector) Record(s Sample) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.samples = append(c.samples, s)
	c.statusCodes[s.StatusCode]++
	if s.Err != "" {
		c.errors = append(c.errors, s.Err)
	}
}

// Len returns the number of recorded samples.
func (c *Collector) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.samples)
}

// Snapshot returns copies of the collected samples, the status code tally
// and the error messages.
func (c *Collector) Snapshot() ([]Sample, map[int]int, []string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	samples := make([]Sample, len(c.samples))
	copy(samples, c.samples)
	codes := make(map[int]int, len(c.statusCodes))
	for k, v := range c.statusCodes {
		codes[k] = v
	}
	errs := make([]string, len(c.errors))
	copy(errs, c.errors)
	return samples, codes, errs
}
