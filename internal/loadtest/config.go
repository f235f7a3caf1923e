package loadtest

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalidConfig is returned when a load test configuration is out of range.
var ErrInvalidConfig = errors.New("loadtest: invalid config")

// Accepted ranges.
const (
	MinRPS           = 1
	MaxRPS           = 1000
	MinDuration      = 1 * time.Second
	MaxDuration      = 3600 * time.Second
	MinConcurrency   = 1
	MaxConcurrency   = 10000
	DefaultUserAgent = "web-scanner-loadtest/1.0"
)

// Config is the snapshot a load test runs with.
type Config struct {
	// RequestsPerSecond is the target rate once ramp-up completes.
	RequestsPerSecond int `json:"requests_per_second"`

	// Duration is how long the full rate is held after ramp-up.
	Duration time.Duration `json:"duration"`

	// RampUp is the window over which the rate grows linearly from 0.
	RampUp time.Duration `json:"ramp_up"`

	// MaxConcurrentRequests bounds in-flight requests.
	MaxConcurrentRequests int `json:"max_concurrent_requests"`

	// RequestTimeout bounds a single request.
	RequestTimeout time.Duration `json:"request_timeout"`
}

// DefaultConfig returns a light default run.
func DefaultConfig() Config {
	return Config{
		RequestsPerSecond:     10,
		Duration:              30 * time.Second,
		RampUp:                5 * time.Second,
		MaxConcurrentRequests: 50,
		RequestTimeout:        10 * time.Second,
	}
}

// Validate checks every bound.
func (c Config) Validate() error {
	switch {
	case c.RequestsPerSecond < MinRPS || c.RequestsPerSecond > MaxRPS:
		return fmt.Errorf("%w: requests per second %d not in [%d, %d]", ErrInvalidConfig, c.RequestsPerSecond, MinRPS, MaxRPS)
	case c.Duration < MinDuration || c.Duration > MaxDuration:
		return fmt.Errorf("%w: duration %s not in [%s, %s]", ErrInvalidConfig, c.Duration, MinDuration, MaxDuration)
	case c.RampUp < 0 || c.RampUp >= c.Duration:
		return fmt.Errorf("%w: ramp-up %s must be >= 0 and < duration %s", ErrInvalidConfig, c.RampUp, c.Duration)
	case c.MaxConcurrentRequests < MinConcurrency || c.MaxConcurrentRequests > MaxConcurrency:
		return fmt.Errorf("%w: max concurrent requests %d not in [%d, %d]", ErrInvalidConfig, c.MaxConcurrentRequests, MinConcurrency, MaxConcurrency)
	case c.RequestTimeout <= 0:
		return fmt.Errorf("%w: request timeout must be positive", ErrInvalidConfig)
	}
	return nil
}

// TotalDuration is ramp-up plus the full-rate window.
func (c Config) TotalDuration() time.Duration {
	return c.RampUp + c.Duration
}
