package api

import (
	"time"

	"github.com/aiforce-discovery-agent/collectors/web-scanner/internal/scanner"
)

// ScanRequest is the body of a synchronous scan. Unset options fall back to
// the configured defaults.
type ScanRequest struct {
	Domains        []string `json:"domains" binding:"required,min=1,dive,required"`
	Scanners       []string `json:"scanners"`
	MaxConcurrent  *int     `json:"max_concurrent"`
	TimeoutSeconds *int     `json:"timeout_seconds" binding:"omitempty,min=1"`
	Parallel       *bool    `json:"parallel"`
}

// StartScanRequest is the body of an asynchronous scan.
type StartScanRequest struct {
	ScanRequest
	ScanID      string `json:"scan_id" binding:"omitempty,uuid"`
	ProgressURL string `json:"progress_url" binding:"omitempty,url"`
	CompleteURL string `json:"complete_url" binding:"omitempty,url"`
}

// StopScanRequest is the optional body of a stop request.
type StopScanRequest struct {
	ScanID string `json:"scan_id" binding:"omitempty,uuid"`
}

// ScanResponse is returned by a synchronous scan.
type ScanResponse struct {
	BatchID string                `json:"batch_id"`
	Results []*scanner.ScanResult `json:"results"`
	Summary Summary               `json:"summary"`
}

// StatusResponse describes the current or last asynchronous batch.
type StatusResponse struct {
	Status        string                `json:"status"`
	Running       bool                  `json:"running"`
	BatchID       string                `json:"batch_id,omitempty"`
	TotalJobs     int                   `json:"total_jobs"`
	CompletedJobs int                   `json:"completed_jobs"`
	StartedAt     *time.Time            `json:"started_at,omitempty"`
	ElapsedMs     int64                 `json:"elapsed_ms"`
	Summary       *Summary              `json:"summary,omitempty"`
	Results       []*scanner.ScanResult `json:"results,omitempty"`
}
