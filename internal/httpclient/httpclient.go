// Package httpclient provides the outbound HTTP client shared by the
// capabilities. Every request passes through a fixed-interval admission
// gate, a retry loop with exponential backoff and a circuit breaker.
package httpclient

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// DefaultUserAgent is sent when a request carries no User-Agent.
const DefaultUserAgent = "web-scanner/1.0"

// Config holds the client and resiliency settings.
type Config struct {
	// Timeout bounds a single attempt (default: 30s).
	Timeout time.Duration

	// MinRequestInterval is the floor on spacing between admitted requests.
	// Zero disables the gate.
	MinRequestInterval time.Duration

	// EnableRetries turns the retry loop on.
	EnableRetries bool

	// MaxRetries is the number of retries after the first attempt.
	MaxRetries int

	// RetryBaseDelay is added to the 2^attempt second backoff.
	RetryBaseDelay time.Duration

	// BreakerFailureThreshold is the number of consecutive failed calls
	// that opens the breaker. Zero disables the breaker.
	BreakerFailureThreshold uint32

	// BreakerCooldown is how long the breaker stays open.
	BreakerCooldown time.Duration

	// InsecureSkipVerify skips TLS verification for targets with broken
	// certificates.
	InsecureSkipVerify bool

	// UserAgent overrides DefaultUserAgent.
	UserAgent string

	// MaxIdleConnsPerHost sizes the keep-alive pool (default: 25). The load
	// generator sets it to its worker bound so samples reuse connections.
	MaxIdleConnsPerHost int
}

// DefaultConfig returns the settings used when nothing is configured.
func DefaultConfig() Config {
	return Config{
		Timeout:                 30 * time.Second,
		MinRequestInterval:      100 * time.Millisecond,
		EnableRetries:           true,
		MaxRetries:              3,
		RetryBaseDelay:          time.Second,
		BreakerFailureThreshold: 5,
		BreakerCooldown:         60 * time.Second,
		UserAgent:               DefaultUserAgent,
	}
}

// Client is safe for concurrent use.
type Client struct {
	cfg     Config
	http    *http.Client
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker
	sleeper sleeper
	logger  *zap.SugaredLogger
}

// New builds a client. name labels the breaker in logs.
func New(name string, cfg Config, logger *zap.SugaredLogger) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}

	c := &Client{
		cfg:     cfg,
		http:    NewHTTPClient(cfg),
		sleeper: realSleeper{},
		logger:  logger,
	}
	if cfg.MinRequestInterval > 0 {
		c.limiter = rate.NewLimiter(rate.Every(cfg.MinRequestInterval), 1)
	}
	if cfg.BreakerFailureThreshold > 0 {
		threshold := cfg.BreakerFailureThreshold
		c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:    name,
			Timeout: cfg.BreakerCooldown,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= threshold
			},
			IsSuccessful: func(err error) bool {
				return err == nil || errors.Is(err, context.Canceled)
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				logger.Warnw("Circuit breaker state changed",
					"breaker", name,
					"from", from.String(),
					"to", to.String(),
				)
			},
		})
	}
	return c
}

// NewHTTPClient returns a plain pooled client with no resiliency layer.
// The load generator uses it directly so retries never skew its samples.
func NewHTTPClient(cfg Config) *http.Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	idlePerHost := 25
	if cfg.MaxIdleConnsPerHost > 0 {
		idlePerHost = cfg.MaxIdleConnsPerHost
	}
	dialer := &net.Dialer{
		Timeout:   10 * time.Second,
		KeepAlive: 30 * time.Second,
	}
	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		MaxIdleConns:          max(100, idlePerHost),
		MaxIdleConnsPerHost:   idlePerHost,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: time.Second,
		ForceAttemptHTTP2:     true,
		TLSClientConfig: &tls.Config{
			InsecureSkipVerify: cfg.InsecureSkipVerify, //nolint:gosec // opt-in for targets with broken certificates
			MinVersion:         tls.VersionTLS12,
		},
	}
	return &http.Client{
		Timeout:   timeout,
		Transport: transport,
	}
}

// HTTP exposes the underlying client.
func (c *Client) HTTP() *http.Client {
	return c.http
}

// Do sends req through the gate, the retry loop and the breaker. A response
// with a 5xx status is returned to the caller after retries are exhausted;
// it still counts as a failure for the breaker.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", c.cfg.UserAgent)
	}
	if c.breaker == nil {
		return c.doWithRetry(req)
	}

	var resp *http.Response
	_, err := c.breaker.Execute(func() (any, error) {
		r, err := c.doWithRetry(req)
		if err != nil {
			return nil, err
		}
		resp = r
		if r.StatusCode >= http.StatusInternalServerError {
			return nil, &StatusError{Code: r.StatusCode}
		}
		return nil, nil
	})

	var statusErr *StatusError
	switch {
	case err == nil, errors.As(err, &statusErr):
		return resp, nil
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		return nil, fmt.Errorf("%w: %s", ErrCircuitOpen, req.URL.Host)
	}
	return nil, err
}

// Get issues a GET request.
func (c *Client) Get(ctx context.Context, url string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	return c.Do(req)
}

// GetJSON issues a GET request and decodes a 2xx JSON body into v. Any
// other status is returned as a *StatusError.
func (c *Client) GetJSON(ctx context.Context, url string, v any) error {
	resp, err := c.Get(ctx, url)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &StatusError{Code: resp.StatusCode, Body: string(body)}
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// admit blocks until the fixed-interval gate lets one request through.
func (c *Client) admit(ctx context.Context) error {
	if c.limiter == nil {
		return nil
	}
	return c.limiter.Wait(ctx)
}
