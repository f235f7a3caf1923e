package sslgrade

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/aiforce-discovery-agent/collectors/web-scanner/internal/httpclient"
	"github.com/aiforce-discovery-agent/collectors/web-scanner/internal/scanner"
)

// fakeLabs reports IN_PROGRESS for the first `pending` polls, then final.
func fakeLabs(t *testing.T, pending int32, final Host) (*httptest.Server, *atomic.Int32, *atomic.Int32) {
	t.Helper()
	var polls, starts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/analyze", r.URL.Path)
		assert.Equal(t, "example.com", r.URL.Query().Get("host"))
		if r.URL.Query().Get("startNew") == "on" {
			starts.Add(1)
		}
		n := polls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		if n <= pending {
			_ = json.NewEncoder(w).Encode(Host{Host: "example.com", Status: StatusInProgress})
			return
		}
		_ = json.NewEncoder(w).Encode(final)
	}))
	return srv, &polls, &starts
}

func newScanner(baseURL string, maxWait time.Duration) *Scanner {
	client := httpclient.New("ssllabs", httpclient.Config{Timeout: 5 * time.Second}, zap.NewNop().Sugar())
	return New(Config{BaseURL: baseURL, PollInterval: 10 * time.Millisecond, MaxWait: maxWait}, client, zap.NewNop().Sugar())
}

func TestScan_PollsUntilReady(t *testing.T) {
	t.Parallel()

	srv, polls, starts := fakeLabs(t, 2, Host{
		Host:   "example.com",
		Status: StatusReady,
		Endpoints: []Endpoint{
			{IPAddress: "192.0.2.1", Grade: "A+", StatusMessage: "Ready"},
			{IPAddress: "192.0.2.2", Grade: "C", StatusMessage: "Ready", HasWarnings: true},
		},
	})
	defer srv.Close()

	s := newScanner(srv.URL, time.Minute)
	res, err := s.Scan(context.Background(), scanner.Target{Domain: "example.com", URL: "https://example.com"})
	require.NoError(t, err)

	assert.Equal(t, int32(3), polls.Load())
	assert.Equal(t, int32(1), starts.Load(), "only the first call starts a new assessment")

	require.Len(t, res.Findings, 2)
	assert.Equal(t, scanner.SeverityInfo, res.Findings[0].Severity)
	assert.Equal(t, scanner.SeverityMedium, res.Findings[1].Severity)
	assert.Equal(t, map[string]string{"192.0.2.1": "A+", "192.0.2.2": "C"}, res.Data["grades"])
}

func TestScan_ErrorStatus(t *testing.T) {
	t.Parallel()

	srv, _, _ := fakeLabs(t, 0, Host{Status: StatusError, StatusMessage: "Unable to resolve domain name"})
	defer srv.Close()

	_, err := newScanner(srv.URL, time.Minute).Scan(context.Background(), scanner.Target{Domain: "example.com"})
	require.ErrorIs(t, err, ErrAssessment)
	assert.Contains(t, err.Error(), "Unable to resolve domain name")
}

func TestScan_GivesUpAfterMaxWait(t *testing.T) {
	t.Parallel()

	srv, _, _ := fakeLabs(t, 1<<30, Host{})
	defer srv.Close()

	_, err := newScanner(srv.URL, 50*time.Millisecond).Scan(context.Background(), scanner.Target{Domain: "example.com"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "still IN_PROGRESS")
}

func TestScan_HonoursCancellation(t *testing.T) {
	t.Parallel()

	srv, _, _ := fakeLabs(t, 1<<30, Host{})
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	_, err := newScanner(srv.URL, time.Hour).Scan(ctx, scanner.Target{Domain: "example.com"})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestGradeSeverity(t *testing.T) {
	t.Parallel()

	cases := map[string]scanner.Severity{
		"A+": scanner.SeverityInfo,
		"A-": scanner.SeverityInfo,
		"B":  scanner.SeverityLow,
		"C":  scanner.SeverityMedium,
		"D":  scanner.SeverityHigh,
		"E":  scanner.SeverityHigh,
		"F":  scanner.SeverityCritical,
		"T":  scanner.SeverityCritical,
		"M":  scanner.SeverityCritical,
	}
	for grade, want := range cases {
		assert.Equal(t, want, GradeSeverity(grade), grade)
	}
}
