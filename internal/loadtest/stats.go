package loadtest

import (
	"math"
	"sort"
	"strings"
	"time"
)

// Summary is the reduced view of a run. Latencies are in milliseconds.
type Summary struct {
	TotalRequests  int         `json:"total_requests"`
	SuccessCount   int         `json:"success_count"`
	ErrorCount     int         `json:"error_count"`
	ErrorRate      float64     `json:"error_rate"`
	TimeoutErrors  int         `json:"timeout_errors"`
	ServerErrors   int         `json:"server_errors"`
	StatusCodes    map[int]int `json:"status_codes"`
	AverageLatency float64     `json:"average_latency_ms"`
	MinLatency     float64     `json:"min_latency_ms"`
	MaxLatency     float64     `json:"max_latency_ms"`
	MedianLatency  float64     `json:"median_latency_ms"`
	P95Latency     float64     `json:"p95_latency_ms"`
	P99Latency     float64     `json:"p99_latency_ms"`
	ActualRPS      float64     `json:"actual_rps"`
	ElapsedSeconds float64     `json:"elapsed_seconds"`
}

// Percentile returns the p-th percentile (0-100) of an ascending slice,
// interpolating linearly between the two nearest ranks. p is clamped to
// [0, 100].
func Percentile(sorted []float64, p float64) float64 {
	n := len(sorted)
	if n == 0 {
		return 0
	}
	if math.IsNaN(p) {
		p = 0
	}
	p = math.Max(0, math.Min(100, p))
	idx := (p / 100) * float64(n-1)
	lo := math.Floor(idx)
	hi := math.Ceil(idx)
	if lo == hi {
		return sorted[int(idx)]
	}
	frac := idx - lo
	return sorted[int(lo)] + (sorted[int(hi)]-sorted[int(lo)])*frac
}

// IsSuccess reports whether a status code counts as a successful request.
func IsSuccess(code int) bool {
	return code >= 200 && code < 400
}

// isTimeoutError reports whether an error message is labelled as a timeout.
func isTimeoutError(msg string) bool {
	return strings.Contains(strings.ToLower(msg), "timeout")
}

// Summarize reduces samples into a Summary. It does not modify samples, so
// repeated calls on the same input give identical output.
func Summarize(samples []Sample, elapsed time.Duration) Summary {
	s := Summary{
		TotalRequests:  len(samples),
		StatusCodes:    make(map[int]int),
		ElapsedSeconds: elapsed.Seconds(),
	}
	if len(samples) == 0 {
		return s
	}

	latencies := make([]float64, 0, len(samples))
	var sum float64
	for _, smp := range samples {
		latencies = append(latencies, smp.ElapsedMs)
		sum += smp.ElapsedMs
		s.StatusCodes[smp.StatusCode]++
		if IsSuccess(smp.StatusCode) {
			s.SuccessCount++
		}
		if smp.StatusCode >= 500 && smp.StatusCode < 600 {
			s.ServerErrors++
		}
		if smp.Err != "" && isTimeoutError(smp.Err) {
			s.TimeoutErrors++
		}
	}
	sort.Float64s(latencies)

	s.ErrorCount = s.TotalRequests - s.SuccessCount
	s.ErrorRate = float64(s.ErrorCount) / float64(s.TotalRequests) * 100
	s.AverageLatency = sum / float64(len(latencies))
	s.MinLatency = latencies[0]
	s.MaxLatency = latencies[len(latencies)-1]
	s.MedianLatency = Percentile(latencies, 50)
	s.P95Latency = Percentile(latencies, 95)
	s.P99Latency = Percentile(latencies, 99)
	if secs := elapsed.Seconds(); secs > 0 {
		s.ActualRPS = float64(s.TotalRequests) / secs
	}
	return s
}
