// Package scanner implements scan orchestration: bounded-concurrency dispatch
// of (domain, capability) jobs with per-job timeouts and failure isolation.
package scanner

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ResultPublisher receives every finished result of a batch.
type ResultPublisher interface {
	PublishScanResult(batchID string, result *ScanResult) error
}

// BatchRequest describes one batch of scans.
type BatchRequest struct {
	ID       string
	Targets  []Target
	Scanners []CapabilityType
	Options  Options
}

// BatchStatus is a point-in-time view of the current or last batch.
type BatchStatus struct {
	Running       bool          `json:"running"`
	BatchID       string        `json:"batch_id,omitempty"`
	TotalJobs     int           `json:"total_jobs"`
	CompletedJobs int           `json:"completed_jobs"`
	StartedAt     time.Time     `json:"started_at,omitempty"`
	Elapsed       time.Duration `json:"elapsed"`
	Results       []*ScanResult `json:"results,omitempty"`
}

// Scanner runs batches on top of an Orchestrator. Synchronous batches may
// run concurrently; only one asynchronous batch runs at a time.
type Scanner struct {
	orchestrator *Orchestrator
	publisher    ResultPublisher
	logger       *zap.SugaredLogger

	mu        sync.RWMutex
	running   bool
	cancel    context.CancelFunc
	done      chan struct{}
	status    BatchStatus
	completed int
}

// New creates a new Scanner. publisher may be nil.
func New(orch *Orchestrator, pub ResultPublisher, logger *zap.SugaredLogger) *Scanner {
	return &Scanner{
		orchestrator: orch,
		publisher:    pub,
		logger:       logger,
	}
}

// Orchestrator returns the underlying orchestrator.
func (s *Scanner) Orchestrator() *Orchestrator {
	return s.orchestrator
}

// Run executes a batch synchronously and publishes every result.
func (s *Scanner) Run(ctx context.Context, req BatchRequest) ([]*ScanResult, error) {
	if req.ID == "" {
		req.ID = uuid.New().String()
	}
	results, err := s.orchestrator.ExecuteScans(ctx, req.Targets, req.Scanners, req.Options)
	if err != nil {
		return nil, err
	}
	s.publishAll(req.ID, results)
	return results, nil
}

// IsRunning returns whether an asynchronous batch is in flight.
func (s *Scanner) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// Status returns the state of the current or most recent asynchronous batch.
func (s *Scanner) Status() BatchStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st := s.status
	st.Running = s.running
	st.CompletedJobs = s.completed
	if !st.StartedAt.IsZero() && s.running {
		st.Elapsed = time.Since(st.StartedAt)
	}
	return st
}

// Stop cancels the running asynchronous batch and waits for it to wind
// down. Jobs still in flight finish as Cancelled.
func (s *Scanner) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.logger.Info("Stopping scanner")
	cancel, done := s.cancel, s.done
	s.mu.Unlock()

	cancel()
	<-done
	s.logger.Info("Scanner stopped")
}

func (s *Scanner) publishAll(batchID string, results []*ScanResult) {
	if s.publisher == nil {
		return
	}
	for _, r := range results {
		if err := s.publisher.PublishScanResult(batchID, r); err != nil {
			s.logger.Errorw("Failed to publish result",
				"batch_id", batchID,
				"domain", r.Domain,
				"scanner", r.Scanner,
				"error", err,
			)
		}
	}
}
