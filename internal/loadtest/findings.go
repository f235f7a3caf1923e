package loadtest

import (
	"fmt"

	"github.com/aiforce-discovery-agent/collectors/web-scanner/internal/scanner"
)

// Finding IDs.
const (
	FindingErrorRate        = "LOADTEST-ERROR-RATE"
	FindingLatency          = "LOADTEST-LATENCY"
	FindingLatencyVariance  = "LOADTEST-LATENCY-VARIANCE"
	FindingTimeouts         = "LOADTEST-TIMEOUTS"
	FindingServerErrors     = "LOADTEST-SERVER-ERRORS"
	categoryPerformance     = "Performance"
	categoryAvailability    = "Availability"
	timeoutThresholdPercent = 5.0
	serverErrThreshold      = 5.0
)

// DeriveFindings evaluates the threshold rules against a summary. Each rule
// is independent; tiers within a rule are exclusive.
func DeriveFindings(s Summary) []scanner.Finding {
	var findings []scanner.Finding
	if s.TotalRequests == 0 {
		return findings
	}

	if sev, ok := errorRateSeverity(s.ErrorRate); ok {
		findings = append(findings, scanner.Finding{
			ID:          FindingErrorRate,
			Name:        "High Error Rate Under Load",
			Severity:    sev,
			Category:    categoryAvailability,
			Description: "A significant share of requests failed while the target was under load.",
			Remedy:      "Review server capacity, connection limits and error logs for the failing requests.",
			Evidence:    fmt.Sprintf("Error rate: %.2f%% (%d of %d requests failed)", s.ErrorRate, s.ErrorCount, s.TotalRequests),
		})
	}

	if sev, ok := latencySeverity(s.AverageLatency); ok {
		findings = append(findings, scanner.Finding{
			ID:          FindingLatency,
			Name:        "Slow Response Times Under Load",
			Severity:    sev,
			Category:    categoryPerformance,
			Description: "Average response time under load exceeds acceptable limits.",
			Remedy:      "Profile slow endpoints, add caching and scale the backend horizontally.",
			Evidence:    fmt.Sprintf("Average latency: %.2fms (P95: %.2fms, P99: %.2fms)", s.AverageLatency, s.P95Latency, s.P99Latency),
		})
	}

	if s.AverageLatency > 0 && s.P99Latency > 5*s.AverageLatency {
		findings = append(findings, scanner.Finding{
			ID:          FindingLatencyVariance,
			Name:        "Inconsistent Performance",
			Severity:    scanner.SeverityMedium,
			Category:    categoryPerformance,
			Description: "Tail latency is far above the average, indicating intermittent slowdowns.",
			Remedy:      "Investigate garbage collection pauses, lock contention and slow dependencies.",
			Evidence:    fmt.Sprintf("P99 latency %.2fms is %.1fx the average latency %.2fms", s.P99Latency, s.P99Latency/s.AverageLatency, s.AverageLatency),
		})
	}

	if pct := percentOf(s.TimeoutErrors, s.TotalRequests); pct > timeoutThresholdPercent {
		findings = append(findings, scanner.Finding{
			ID:          FindingTimeouts,
			Name:        "Request Timeouts Under Load",
			Severity:    scanner.SeverityHigh,
			Category:    categoryAvailability,
			Description: "Many requests did not complete within the request timeout.",
			Remedy:      "Check upstream timeouts, worker pool sizes and slow queries.",
			Evidence:    fmt.Sprintf("Timeouts: %d of %d requests (%.2f%%)", s.TimeoutErrors, s.TotalRequests, pct),
		})
	}

	if s.ServerErrors > 0 {
		pct := percentOf(s.ServerErrors, s.TotalRequests)
		sev := scanner.SeverityMedium
		if pct > serverErrThreshold {
			sev = scanner.SeverityHigh
		}
		findings = append(findings, scanner.Finding{
			ID:          FindingServerErrors,
			Name:        "Server Errors Under Load",
			Severity:    sev,
			Category:    categoryAvailability,
			Description: "The server returned 5xx responses while under load.",
			Remedy:      "Inspect server logs for unhandled exceptions and resource exhaustion.",
			Evidence:    fmt.Sprintf("5xx responses: %d of %d requests (%.2f%%)", s.ServerErrors, s.TotalRequests, pct),
		})
	}

	return findings
}

func errorRateSeverity(rate float64) (scanner.Severity, bool) {
	switch {
	case rate > 50:
		return scanner.SeverityCritical, true
	case rate > 25:
		return scanner.SeverityHigh, true
	case rate > 10:
		return scanner.SeverityMedium, true
	}
	return "", false
}

func latencySeverity(avgMs float64) (scanner.Severity, bool) {
	switch {
	case avgMs > 5000:
		return scanner.SeverityHigh, true
	case avgMs > 3000:
		return scanner.SeverityMedium, true
	case avgMs > 2000:
		return scanner.SeverityLow, true
	}
	return "", false
}

func percentOf(n, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(n) / float64(total) * 100
}
