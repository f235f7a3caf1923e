package loadtest

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aiforce-discovery-agent/collectors/web-scanner/internal/scanner"
)

func TestPercentile(t *testing.T) {
	t.Parallel()

	sorted := []float64{10, 20, 30, 40}
	tests := []struct {
		p    float64
		want float64
	}{
		{0, 10},
		{50, 25},
		{100, 40},
		{25, 17.5},
		{99, 39.7},
	}
	for _, tt := range tests {
		assert.InDelta(t, tt.want, Percentile(sorted, tt.p), 1e-9, "p%.0f", tt.p)
	}

	assert.Equal(t, 0.0, Percentile(nil, 50))
	assert.Equal(t, 7.0, Percentile([]float64{7}, 99))

	assert.Equal(t, 40.0, Percentile(sorted, 101))
	assert.Equal(t, 10.0, Percentile(sorted, -5))
}

func TestPercentile_Monotonic(t *testing.T) {
	t.Parallel()

	sorted := []float64{1, 3, 3, 8, 13, 21, 34, 55, 89, 144}
	prev := Percentile(sorted, 0)
	for p := 1.0; p <= 100; p++ {
		cur := Percentile(sorted, p)
		assert.GreaterOrEqual(t, cur, prev, "p%.0f", p)
		prev = cur
	}
}

func TestRateAt_Ramp(t *testing.T) {
	t.Parallel()

	rampUp := 10 * time.Second
	assert.Equal(t, 0, RateAt(0, 10, rampUp))
	assert.Equal(t, 5, RateAt(5*time.Second, 10, rampUp))
	assert.Equal(t, 10, RateAt(10*time.Second, 10, rampUp))
	assert.Equal(t, 10, RateAt(42*time.Second, 10, rampUp))
	assert.Equal(t, 3, RateAt(3500*time.Millisecond, 10, rampUp), "truncates to an integer")

	prev := 0
	for ms := 0; ms <= 12000; ms += 250 {
		r := RateAt(time.Duration(ms)*time.Millisecond, 10, rampUp)
		assert.GreaterOrEqual(t, r, prev)
		prev = r
	}

	assert.Equal(t, 7, RateAt(0, 7, 0), "no ramp means full rate at once")
}

func TestSpacing(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 100*time.Millisecond, Spacing(10))
	assert.Equal(t, time.Second, Spacing(1))
	assert.Equal(t, time.Duration(0), Spacing(0))
}

func samplesWith(total, failures int, latency float64) []Sample {
	out := make([]Sample, 0, total)
	for i := 0; i < total; i++ {
		s := Sample{ElapsedMs: latency, StatusCode: 200}
		if i < failures {
			s.StatusCode = 0
			s.Err = "connection refused"
		}
		out = append(out, s)
	}
	return out
}

func TestSummarize_Counts(t *testing.T) {
	t.Parallel()

	samples := []Sample{
		{ElapsedMs: 10, StatusCode: 200},
		{ElapsedMs: 20, StatusCode: 301},
		{ElapsedMs: 30, StatusCode: 404},
		{ElapsedMs: 40, StatusCode: 503},
		{ElapsedMs: 50, StatusCode: 0, Err: "Request timeout: context deadline exceeded"},
	}
	s := Summarize(samples, 2*time.Second)

	assert.Equal(t, 5, s.TotalRequests)
	assert.Equal(t, 2, s.SuccessCount)
	assert.Equal(t, 3, s.ErrorCount)
	assert.Equal(t, s.TotalRequests, s.SuccessCount+s.ErrorCount)
	assert.InDelta(t, 60.0, s.ErrorRate, 1e-9)
	assert.Equal(t, 1, s.ServerErrors)
	assert.Equal(t, 1, s.TimeoutErrors)
	assert.InDelta(t, 30.0, s.AverageLatency, 1e-9)
	assert.Equal(t, 10.0, s.MinLatency)
	assert.Equal(t, 50.0, s.MaxLatency)
	assert.Equal(t, 30.0, s.MedianLatency)
	assert.InDelta(t, 2.5, s.ActualRPS, 1e-9)
	assert.Equal(t, 1, s.StatusCodes[503])
}

func TestSummarize_EmptyAndZeroElapsed(t *testing.T) {
	t.Parallel()

	s := Summarize(nil, 0)
	assert.Equal(t, 0, s.TotalRequests)
	assert.Equal(t, 0.0, s.ErrorRate)
	assert.Equal(t, 0.0, s.ActualRPS)

	s = Summarize(samplesWith(3, 0, 5), 0)
	assert.Equal(t, 0.0, s.ActualRPS)
}

func TestSummarize_Idempotent(t *testing.T) {
	t.Parallel()

	samples := []Sample{
		{ElapsedMs: 40, StatusCode: 200},
		{ElapsedMs: 10, StatusCode: 500},
		{ElapsedMs: 30, StatusCode: 200},
		{ElapsedMs: 20, StatusCode: 0, Err: "boom"},
	}
	orig := append([]Sample(nil), samples...)

	first := Summarize(samples, time.Second)
	second := Summarize(samples, time.Second)

	assert.Equal(t, first, second)
	assert.Equal(t, orig, samples, "input must not be reordered")
	assert.Equal(t, 25.0, first.MedianLatency)
}

func findingsByID(fs []scanner.Finding) map[string]scanner.Finding {
	m := make(map[string]scanner.Finding, len(fs))
	for _, f := range fs {
		m[f.ID] = f
	}
	return m
}

func TestDeriveFindings_ErrorRateTiers(t *testing.T) {
	t.Parallel()

	tests := []struct {
		failures int
		want     scanner.Severity
	}{
		{35, scanner.SeverityCritical}, // 58.3%
		{30, scanner.SeverityHigh},     // 50% exactly is not > 50
		{16, scanner.SeverityHigh},     // 26.7%
		{15, scanner.SeverityMedium},   // 25%
		{7, scanner.SeverityMedium},    // 11.7%
		{6, ""},                        // 10%
	}
	for _, tt := range tests {
		fs := DeriveFindings(Summarize(samplesWith(60, tt.failures, 100), time.Minute))

		var rateFindings []scanner.Finding
		for _, f := range fs {
			if f.ID == FindingErrorRate {
				rateFindings = append(rateFindings, f)
			}
		}
		if tt.want == "" {
			assert.Empty(t, rateFindings, "failures=%d", tt.failures)
			continue
		}
		require.Len(t, rateFindings, 1, "failures=%d", tt.failures)
		assert.Equal(t, tt.want, rateFindings[0].Severity, "failures=%d", tt.failures)
	}
}

func TestDeriveFindings_CriticalEvidence(t *testing.T) {
	t.Parallel()

	fs := findingsByID(DeriveFindings(Summarize(samplesWith(60, 35, 100), time.Minute)))
	f, ok := fs[FindingErrorRate]
	require.True(t, ok)
	assert.Equal(t, scanner.SeverityCritical, f.Severity)
	assert.Equal(t, "Error rate: 58.33% (35 of 60 requests failed)", f.Evidence)
}

func TestDeriveFindings_LatencyTiers(t *testing.T) {
	t.Parallel()

	tests := []struct {
		latency float64
		want    scanner.Severity
	}{
		{5001, scanner.SeverityHigh},
		{5000, scanner.SeverityMedium},
		{3001, scanner.SeverityMedium},
		{2500, scanner.SeverityLow},
		{2000, ""},
	}
	for _, tt := range tests {
		fs := findingsByID(DeriveFindings(Summarize(samplesWith(10, 0, tt.latency), 10*time.Second)))
		f, ok := fs[FindingLatency]
		if tt.want == "" {
			assert.False(t, ok, "latency=%.0f", tt.latency)
			continue
		}
		require.True(t, ok, "latency=%.0f", tt.latency)
		assert.Equal(t, tt.want, f.Severity)
	}
}

func TestDeriveFindings_LatencyVariance(t *testing.T) {
	t.Parallel()

	samples := samplesWith(100, 0, 10)
	samples[98].ElapsedMs = 5000
	samples[99].ElapsedMs = 5000

	fs := findingsByID(DeriveFindings(Summarize(samples, 10*time.Second)))
	f, ok := fs[FindingLatencyVariance]
	require.True(t, ok)
	assert.Equal(t, scanner.SeverityMedium, f.Severity)

	fs = findingsByID(DeriveFindings(Summarize(samplesWith(100, 0, 10), 10*time.Second)))
	assert.NotContains(t, fs, FindingLatencyVariance)
}

func TestDeriveFindings_TimeoutsAndServerErrors(t *testing.T) {
	t.Parallel()

	samples := samplesWith(100, 0, 50)
	for i := 0; i < 6; i++ {
		samples[i] = Sample{ElapsedMs: 50, Err: "Request timeout: context deadline exceeded"}
	}
	for i := 10; i < 13; i++ {
		samples[i].StatusCode = 502
	}
	fs := findingsByID(DeriveFindings(Summarize(samples, 10*time.Second)))
	require.Contains(t, fs, FindingTimeouts)
	assert.Equal(t, scanner.SeverityHigh, fs[FindingTimeouts].Severity)
	require.Contains(t, fs, FindingServerErrors)
	assert.Equal(t, scanner.SeverityMedium, fs[FindingServerErrors].Severity, "3 percent 5xx is present but under threshold")

	for i := 10; i < 20; i++ {
		samples[i].StatusCode = 500
	}
	fs = findingsByID(DeriveFindings(Summarize(samples, 10*time.Second)))
	assert.Equal(t, scanner.SeverityHigh, fs[FindingServerErrors].Severity)

	clean := findingsByID(DeriveFindings(Summarize(samplesWith(100, 0, 50), 10*time.Second)))
	assert.Empty(t, clean)
}

func TestConfigValidate(t *testing.T) {
	t.Parallel()

	assert.NoError(t, DefaultConfig().Validate())

	bad := []func(*Config){
		func(c *Config) { c.RequestsPerSecond = 0 },
		func(c *Config) { c.RequestsPerSecond = 1001 },
		func(c *Config) { c.Duration = 0 },
		func(c *Config) { c.Duration = 3601 * time.Second },
		func(c *Config) { c.RampUp = c.Duration },
		func(c *Config) { c.RampUp = -time.Second },
		func(c *Config) { c.MaxConcurrentRequests = 10001 },
		func(c *Config) { c.RequestTimeout = 0 },
	}
	for i, mutate := range bad {
		cfg := DefaultConfig()
		mutate(&cfg)
		assert.ErrorIs(t, cfg.Validate(), ErrInvalidConfig, "case %d", i)
	}
}
