// Package callback reports progress and completion of asynchronous scan
// batches to the caller-supplied webhook URLs.
package callback

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/aiforce-discovery-agent/collectors/web-scanner/internal/scanner"
)

// CollectorName identifies this service in callback payloads.
const CollectorName = "web-scanner"

// Config addresses one batch's callbacks. An empty URL disables that
// callback.
type Config struct {
	ScanID      string
	ProgressURL string
	CompleteURL string
	APIKey      string
	Timeout     time.Duration
}

// Reporter sends progress and completion callbacks for one batch.
type Reporter struct {
	cfg    Config
	client *http.Client
	logger *zap.SugaredLogger

	sequence   atomic.Int64 // monotonic, lets the receiver drop stale updates
	discovered atomic.Int64
}

var _ scanner.Reporter = (*Reporter)(nil)

// Progress is the body of a progress callback.
type Progress struct {
	ScanID         string `json:"scan_id"`
	Collector      string `json:"collector"`
	Sequence       int64  `json:"sequence"`
	Phase          string `json:"phase,omitempty"`
	Progress       int    `json:"progress"`
	DiscoveryCount int64  `json:"discovery_count"`
	Message        string `json:"message,omitempty"`
	Timestamp      string `json:"timestamp"`
}

// Completion is the body of the completion callback.
type Completion struct {
	ScanID         string `json:"scan_id"`
	Collector      string `json:"collector"`
	Status         string `json:"status"` // completed, failed, cancelled
	DiscoveryCount int64  `json:"discovery_count"`
	ErrorMessage   string `json:"error_message,omitempty"`
	Timestamp      string `json:"timestamp"`
}

// NewReporter creates a reporter for one batch.
func NewReporter(cfg Config, logger *zap.SugaredLogger) *Reporter {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &Reporter{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		logger: logger.With("scan_id", cfg.ScanID),
	}
}

// ReportProgress sends a progress update.
func (r *Reporter) ReportProgress(phase string, progress int, message string) error {
	return r.post(r.cfg.ProgressURL, Progress{
		ScanID:         r.cfg.ScanID,
		Collector:      CollectorName,
		Sequence:       r.sequence.Add(1),
		Phase:          phase,
		Progress:       progress,
		DiscoveryCount: r.discovered.Load(),
		Message:        message,
		Timestamp:      now(),
	})
}

// ReportComplete sends the completion callback.
func (r *Reporter) ReportComplete(status, errorMsg string) error {
	return r.post(r.cfg.CompleteURL, Completion{
		ScanID:         r.cfg.ScanID,
		Collector:      CollectorName,
		Status:         status,
		DiscoveryCount: r.discovered.Load(),
		ErrorMessage:   errorMsg,
		Timestamp:      now(),
	})
}

// IncrementDiscoveryCount counts one completed scan job.
func (r *Reporter) IncrementDiscoveryCount() {
	r.discovered.Add(1)
}

// DiscoveryCount returns the number of completed scan jobs so far.
func (r *Reporter) DiscoveryCount() int64 {
	return r.discovered.Load()
}

func now() string {
	return time.Now().UTC().Format(time.RFC3339)
}

func (r *Reporter) post(url string, payload any) error {
	if url == "" {
		return nil
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), r.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if r.cfg.APIKey != "" {
		req.Header.Set("X-Internal-API-Key", r.cfg.APIKey)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		r.logger.Warnw("Callback failed", "url", url, "error", err)
		return fmt.Errorf("callback request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 400 {
		r.logger.Warnw("Callback returned error", "url", url, "status", resp.StatusCode)
		return fmt.Errorf("callback returned status %d", resp.StatusCode)
	}

	r.logger.Debugw("Callback sent", "url", url, "status", resp.StatusCode)
	return nil
}
