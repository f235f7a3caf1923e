package scanner

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// outcome is what a guarded unit of work produced.
type outcome struct {
	result *ScanResult
	err    error
}

// runGuarded runs work under a deadline that is the earlier of parent's
// cancellation and now+timeout. It always returns a finished result:
//
//   - parent cancelled            -> StatusCancelled
//   - own deadline expired        -> StatusTimeout
//   - work returned an error      -> StatusFailed
//   - work panicked               -> StatusFailed
//   - otherwise                   -> the work's result, Completed unless it
//     already carries a terminal status
//
// Work that ignores its context is abandoned, not waited on.
func runGuarded(parent context.Context, timeout time.Duration, fallback *ScanResult, work func(ctx context.Context) (*ScanResult, error)) *ScanResult {
	if err := parent.Err(); err != nil {
		fallback.Finish(StatusCancelled, cancelMessage(parent))
		return fallback
	}

	ctx, cancel := context.WithTimeoutCause(parent, timeout, ErrJobTimeout)
	defer cancel()

	done := make(chan outcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- outcome{err: fmt.Errorf("scanner panicked: %v", r)}
			}
		}()
		res, err := work(ctx)
		done <- outcome{result: res, err: err}
	}()

	select {
	case out := <-done:
		// Work may notice the deadline and return ctx.Err() itself; classify
		// those the same way as an abandoned job.
		if out.err != nil && ctx.Err() != nil {
			return finishExpired(parent, ctx, timeout, fallback)
		}
		return finishOutcome(out, fallback)
	case <-ctx.Done():
		return finishExpired(parent, ctx, timeout, fallback)
	}
}

func finishExpired(parent, ctx context.Context, timeout time.Duration, fallback *ScanResult) *ScanResult {
	if parent.Err() == nil && errors.Is(context.Cause(ctx), ErrJobTimeout) {
		fallback.Finish(StatusTimeout, fmt.Sprintf("scan timed out after %s", timeout))
		return fallback
	}
	fallback.Finish(StatusCancelled, cancelMessage(parent))
	return fallback
}

func finishOutcome(out outcome, fallback *ScanResult) *ScanResult {
	if out.err != nil {
		fallback.Finish(StatusFailed, out.err.Error())
		return fallback
	}
	res := out.result
	if res == nil {
		fallback.Finish(StatusFailed, "scanner returned no result")
		return fallback
	}
	if res.Domain == "" {
		res.Domain = fallback.Domain
	}
	if res.URL == "" {
		res.URL = fallback.URL
	}
	if res.Scanner == "" {
		res.Scanner = fallback.Scanner
	}
	if res.Type == "" {
		res.Type = fallback.Type
	}
	if res.StartTime.IsZero() {
		res.StartTime = fallback.StartTime
	}
	if res.Findings == nil {
		res.Findings = []Finding{}
	}
	status := res.Status
	if !status.IsTerminal() {
		status = StatusCompleted
	}
	res.Finish(status, res.Error)
	return res
}

func cancelMessage(ctx context.Context) string {
	if cause := context.Cause(ctx); cause != nil && !errors.Is(cause, context.Canceled) {
		return fmt.Sprintf("scan cancelled: %v", cause)
	}
	return "scan cancelled"
}
