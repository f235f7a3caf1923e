package httpclient

import (
	"context"
	"fmt"
	"io"
	"math"
	"net/http"
	"time"
)

// sleeper waits between attempts; tests swap in a recording fake.
type sleeper interface {
	sleep(ctx context.Context, d time.Duration) error
}

type realSleeper struct{}

func (realSleeper) sleep(ctx context.Context, d time.Duration) error {
	return Sleep(ctx, d)
}

// Sleep waits for d or until ctx is done, returning ctx.Err() in the latter
// case. A non-positive d only checks ctx.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RetryDelay is the wait before retry number attempt (0-indexed):
// base plus 2^attempt seconds.
func RetryDelay(base time.Duration, attempt int) time.Duration {
	return base + time.Duration(math.Pow(2, float64(attempt)))*time.Second
}

// retryableStatus reports whether a response status is worth another try.
func retryableStatus(code int) bool {
	return code == http.StatusTooManyRequests || code >= http.StatusInternalServerError
}

func (c *Client) doWithRetry(req *http.Request) (*http.Response, error) {
	ctx := req.Context()
	maxRetries := 0
	if c.cfg.EnableRetries && c.cfg.MaxRetries > 0 {
		maxRetries = c.cfg.MaxRetries
	}

	for attempt := 0; ; attempt++ {
		if err := c.admit(ctx); err != nil {
			return nil, err
		}

		attemptReq, err := rewind(req)
		if err != nil {
			return nil, err
		}
		resp, err := c.http.Do(attemptReq)

		// Caller cancellation is never retried.
		if ctx.Err() != nil {
			if resp != nil {
				resp.Body.Close()
			}
			return nil, ctx.Err()
		}

		transient := err != nil || retryableStatus(resp.StatusCode)
		if !transient || attempt >= maxRetries {
			if err != nil {
				return nil, fmt.Errorf("request %s: %w", req.URL.Redacted(), err)
			}
			return resp, nil
		}

		if resp != nil {
			_, _ = io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
		}
		delay := RetryDelay(c.cfg.RetryBaseDelay, attempt)
		c.logger.Debugw("Retrying request",
			"url", req.URL.Redacted(),
			"attempt", attempt+1,
			"max_retries", maxRetries,
			"delay", delay.String(),
			"error", describe(resp, err),
		)
		if err := c.sleeper.sleep(ctx, delay); err != nil {
			return nil, err
		}
	}
}

// rewind prepares req for another attempt, restoring its body if needed.
func rewind(req *http.Request) (*http.Request, error) {
	if req.Body == nil || req.Body == http.NoBody {
		return req, nil
	}
	if req.GetBody == nil {
		return req, nil
	}
	body, err := req.GetBody()
	if err != nil {
		return nil, fmt.Errorf("rewind body: %w", err)
	}
	clone := req.Clone(req.Context())
	clone.Body = body
	return clone, nil
}

func describe(resp *http.Response, err error) string {
	if err != nil {
		return err.Error()
	}
	return resp.Status
}
