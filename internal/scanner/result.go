package scanner

import (
	"time"
)

// Status is the lifecycle state of a single scan job.
type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusCancelled  Status = "cancelled"
	StatusTimeout    Status = "timeout"
)

// IsTerminal reports whether no further transition is possible.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled, StatusTimeout:
		return true
	}
	return false
}

// Severity represents the severity level of a finding.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Score returns a numeric score for sorting and comparison.
// Critical=5, High=4, Medium=3, Low=2, Info=1, Unknown=0.
func (s Severity) Score() int {
	switch s {
	case SeverityCritical:
		return 5
	case SeverityHigh:
		return 4
	case SeverityMedium:
		return 3
	case SeverityLow:
		return 2
	case SeverityInfo:
		return 1
	default:
		return 0
	}
}

// Finding is a single reported issue.
type Finding struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Severity    Severity `json:"severity"`
	Category    string   `json:"category"`
	Description string   `json:"description"`
	Remedy      string   `json:"remedy,omitempty"`
	Evidence    string   `json:"evidence,omitempty"`
}

// ScanResult is the outcome of one (domain, scanner) job. It is written only
// by the goroutine executing the job and is read-only once returned.
type ScanResult struct {
	Domain    string         `json:"domain"`
	URL       string         `json:"url"`
	Scanner   string         `json:"scanner"`
	Type      CapabilityType `json:"type"`
	Status    Status         `json:"status"`
	StartTime time.Time      `json:"start_time"`
	EndTime   time.Time      `json:"end_time,omitempty"`
	Error     string         `json:"error,omitempty"`
	Findings  []Finding      `json:"findings"`
	Data      map[string]any `json:"data,omitempty"`
}

// NewResult creates an in-progress result for the given target.
func NewResult(target Target, name string, typ CapabilityType) *ScanResult {
	return &ScanResult{
		Domain:    target.Domain,
		URL:       target.URL,
		Scanner:   name,
		Type:      typ,
		Status:    StatusInProgress,
		StartTime: time.Now().UTC(),
		Findings:  []Finding{},
		Data:      map[string]any{},
	}
}

// AddFinding appends a finding to the result.
func (r *ScanResult) AddFinding(f Finding) {
	r.Findings = append(r.Findings, f)
}

// Finish moves the result into a terminal status and stamps the end time.
// A result that is already terminal is left untouched.
func (r *ScanResult) Finish(status Status, errMsg string) {
	if r.Status.IsTerminal() && !r.EndTime.IsZero() {
		return
	}
	r.Status = status
	r.Error = errMsg
	r.EndTime = time.Now().UTC()
}

// Duration is zero until the result is finished.
func (r *ScanResult) Duration() time.Duration {
	if r.EndTime.IsZero() {
		return 0
	}
	return r.EndTime.Sub(r.StartTime)
}

// CountBySeverity tallies findings per severity.
func (r *ScanResult) CountBySeverity() map[Severity]int {
	counts := make(map[Severity]int)
	for _, f := range r.Findings {
		counts[f.Severity]++
	}
	return counts
}
