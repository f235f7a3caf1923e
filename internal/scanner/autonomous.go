package scanner

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Reporter receives progress and completion callbacks for an asynchronous
// batch.
type Reporter interface {
	ReportProgress(phase string, progress int, message string) error
	ReportComplete(status string, errorMsg string) error
	IncrementDiscoveryCount()
}

// Start begins an asynchronous batch. It validates the request, then returns
// immediately; progress is reported per finished domain. reporter may be nil.
func (s *Scanner) Start(req BatchRequest, reporter Reporter) error {
	if _, err := NewLimiter(req.Options.MaxConcurrent, MinScanConcurrency, MaxScanConcurrency); err != nil {
		return err
	}
	if req.ID == "" {
		req.ID = uuid.New().String()
	}

	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return ErrAlreadyRunning
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.running = true
	s.cancel = cancel
	s.done = make(chan struct{})
	s.completed = 0
	s.status = BatchStatus{
		BatchID:   req.ID,
		TotalJobs: len(req.Targets) * len(req.Scanners),
		StartedAt: time.Now().UTC(),
	}
	done := s.done
	s.mu.Unlock()

	s.logger.Infow("Starting autonomous scan batch",
		"batch_id", req.ID,
		"domains", len(req.Targets),
		"scanners", req.Scanners,
	)

	if reporter != nil {
		if err := reporter.ReportProgress("initializing", 0, "Starting scan batch"); err != nil {
			s.logger.Warnw("Failed to report initial progress", "error", err)
		}
	}

	go s.runAutonomous(ctx, req, reporter, done)
	return nil
}

func (s *Scanner) runAutonomous(ctx context.Context, req BatchRequest, reporter Reporter, done chan struct{}) {
	defer close(done)

	total := len(req.Targets) * len(req.Scanners)

	onDomain := func(domain string, results []*ScanResult) {
		s.publishAll(req.ID, results)

		s.mu.Lock()
		s.completed += len(results)
		completed := s.completed
		s.mu.Unlock()

		if reporter == nil {
			return
		}
		for _, r := range results {
			if r.Status == StatusCompleted {
				reporter.IncrementDiscoveryCount()
			}
		}
		progress := 0
		if total > 0 {
			progress = completed * 100 / total
		}
		if progress > 99 {
			progress = 99 // reserved for completion
		}
		msg := fmt.Sprintf("Scanned %s (%d/%d jobs done)", domain, completed, total)
		if err := reporter.ReportProgress("scanning", progress, msg); err != nil {
			s.logger.Warnw("Failed to report progress", "batch_id", req.ID, "error", err)
		}
	}

	results, err := s.orchestrator.execute(ctx, req.Targets, req.Scanners, req.Options, onDomain)

	status, errMsg := "completed", ""
	switch {
	case err != nil:
		status, errMsg = "failed", err.Error()
	case errors.Is(ctx.Err(), context.Canceled):
		status, errMsg = "cancelled", "Scan was cancelled"
	}

	s.finishAutonomous(results, reporter, status, errMsg)
}

func (s *Scanner) finishAutonomous(results []*ScanResult, reporter Reporter, status, errMsg string) {
	s.mu.Lock()
	s.running = false
	s.status.Results = results
	s.status.Elapsed = time.Since(s.status.StartedAt)
	batchID := s.status.BatchID
	s.cancel()
	s.mu.Unlock()

	if reporter != nil {
		if err := reporter.ReportComplete(status, errMsg); err != nil {
			s.logger.Errorw("Failed to report completion", "error", err)
		}
	}

	s.logger.Infow("Autonomous scan batch finished",
		"batch_id", batchID,
		"status", status,
		"results", len(results),
	)
}
