package api

import (
	"time"

	"github.com/aiforce-discovery-agent/collectors/web-scanner/internal/scanner"
)

// Summary folds a batch's results into counts.
type Summary struct {
	TotalJobs         int                      `json:"total_jobs"`
	SuccessfulJobs    int                      `json:"successful_jobs"`
	FailedJobs        int                      `json:"failed_jobs"`
	TimedOutJobs      int                      `json:"timed_out_jobs"`
	CancelledJobs     int                      `json:"cancelled_jobs"`
	TotalDomains      int                      `json:"total_domains"`
	SuccessfulDomains int                      `json:"successful_domains"`
	FailedDomains     int                      `json:"failed_domains"`
	TotalFindings     int                      `json:"total_findings"`
	FindingsBySev     map[scanner.Severity]int `json:"findings_by_severity"`
	ElapsedMs         int64                    `json:"elapsed_ms"`
}

// Summarize folds results. A domain counts as successful only when every one
// of its jobs completed.
func Summarize(results []*scanner.ScanResult, elapsed time.Duration) Summary {
	s := Summary{
		TotalJobs:     len(results),
		FindingsBySev: make(map[scanner.Severity]int),
		ElapsedMs:     elapsed.Milliseconds(),
	}

	domainOK := make(map[string]bool)
	for _, r := range results {
		switch r.Status {
		case scanner.StatusCompleted:
			s.SuccessfulJobs++
		case scanner.StatusTimeout:
			s.TimedOutJobs++
		case scanner.StatusCancelled:
			s.CancelledJobs++
		default:
			s.FailedJobs++
		}

		ok, seen := domainOK[r.Domain]
		domainOK[r.Domain] = (ok || !seen) && r.Status == scanner.StatusCompleted

		for sev, n := range r.CountBySeverity() {
			s.FindingsBySev[sev] += n
			s.TotalFindings += n
		}
	}

	s.TotalDomains = len(domainOK)
	for _, ok := range domainOK {
		if ok {
			s.SuccessfulDomains++
		} else {
			s.FailedDomains++
		}
	}
	return s
}
