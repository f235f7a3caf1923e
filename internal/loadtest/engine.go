package loadtest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/aiforce-discovery-agent/collectors/web-scanner/internal/httpclient"
)

// Doer sends an HTTP request.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// RequestObserver is told about every finished request.
type RequestObserver interface {
	ObserveRequest(statusCode int, elapsed time.Duration)
}

// Run is one finished load test.
type Run struct {
	Config      Config        `json:"config"`
	TargetURL   string        `json:"target_url"`
	StartedAt   time.Time     `json:"started_at"`
	Elapsed     time.Duration `json:"elapsed"`
	Samples     []Sample      `json:"-"`
	StatusCodes map[int]int   `json:"status_codes"`
	Errors      []string      `json:"errors,omitempty"`
	Summary     Summary       `json:"summary"`
}

// Engine issues requests at a controlled, optionally ramping rate.
type Engine struct {
	cfg      Config
	client   Doer
	observer RequestObserver
	logger   *zap.SugaredLogger
}

// NewEngine validates cfg and returns an engine. observer may be nil.
func NewEngine(cfg Config, client Doer, observer RequestObserver, logger *zap.SugaredLogger) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Engine{
		cfg:      cfg,
		client:   client,
		observer: observer,
		logger:   logger,
	}, nil
}

// Run drives the per-second loop until ramp-up plus duration has elapsed or
// ctx is cancelled, then waits for in-flight requests and summarizes. On
// cancellation the partial run is returned together with ctx.Err().
func (e *Engine) Run(ctx context.Context, targetURL string) (*Run, error) {
	sem := semaphore.NewWeighted(int64(e.cfg.MaxConcurrentRequests))
	collector := NewCollector()
	total := e.cfg.TotalDuration()

	e.logger.Infow("Starting load test",
		"url", targetURL,
		"rps", e.cfg.RequestsPerSecond,
		"duration", e.cfg.Duration.String(),
		"ramp_up", e.cfg.RampUp.String(),
		"max_concurrent", e.cfg.MaxConcurrentRequests,
	)

	start := time.Now()
	var wg sync.WaitGroup

ticks:
	for {
		elapsed := time.Since(start)
		if elapsed >= total || ctx.Err() != nil {
			break
		}
		tickStart := time.Now()
		rate := RateAt(elapsed, e.cfg.RequestsPerSecond, e.cfg.RampUp)
		spacing := Spacing(rate)

		for i := 0; i < rate; i++ {
			if err := sem.Acquire(ctx, 1); err != nil {
				break ticks
			}
			wg.Add(1)
			go func() {
				defer wg.Done()
				defer sem.Release(1)
				e.issue(ctx, targetURL, collector)
			}()

			if i < rate-1 {
				if err := httpclient.Sleep(ctx, spacing); err != nil {
					break ticks
				}
			}
		}

		if rest := time.Second - time.Since(tickStart); rest > 0 {
			if err := httpclient.Sleep(ctx, rest); err != nil {
				break ticks
			}
		}
	}

	wg.Wait()
	elapsed := time.Since(start)

	samples, codes, errs := collector.Snapshot()
	run := &Run{
		Config:      e.cfg,
		TargetURL:   targetURL,
		StartedAt:   start.UTC(),
		Elapsed:     elapsed,
		Samples:     samples,
		StatusCodes: codes,
		Errors:      errs,
		Summary:     Summarize(samples, elapsed),
	}

	e.logger.Infow("Load test finished",
		"url", targetURL,
		"requests", run.Summary.TotalRequests,
		"error_rate", run.Summary.ErrorRate,
		"avg_latency_ms", run.Summary.AverageLatency,
		"p99_latency_ms", run.Summary.P99Latency,
		"actual_rps", run.Summary.ActualRPS,
	)

	return run, ctx.Err()
}

// issue sends one request and records its outcome.
func (e *Engine) issue(ctx context.Context, targetURL string, c *Collector) {
	reqCtx, cancel := context.WithTimeout(ctx, e.cfg.RequestTimeout)
	defer cancel()

	start := time.Now()
	sample := Sample{}

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, targetURL, nil)
	if err != nil {
		sample.Err = err.Error()
	} else {
		req.Header.Set("User-Agent", DefaultUserAgent)
		resp, err := e.client.Do(req)
		if err != nil {
			sample.Err = labelError(ctx, err)
		} else {
			_, _ = io.Copy(io.Discard, resp.Body)
			_ = resp.Body.Close()
			sample.StatusCode = resp.StatusCode
		}
	}

	elapsed := time.Since(start)
	sample.ElapsedMs = float64(elapsed.Microseconds()) / 1000
	c.Record(sample)

	if e.observer != nil {
		e.observer.ObserveRequest(sample.StatusCode, elapsed)
	}
}

// labelError prefixes request timeouts so they can be counted separately
// from other transport errors.
func labelError(parent context.Context, err error) string {
	var netErr net.Error
	timedOut := errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout())
	if timedOut && parent.Err() == nil {
		return fmt.Sprintf("Request timeout: %v", err)
	}
	return err.Error()
}
