package scanner

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLimiter_NeverExceedsBound(t *testing.T) {
	t.Parallel()

	l, err := NewLimiter(3, MinScanConcurrency, MaxScanConcurrency)
	require.NoError(t, err)

	var cur, peak atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := l.Acquire(context.Background()); err != nil {
				t.Error(err)
				return
			}
			defer l.Release()

			n := cur.Add(1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			time.Sleep(5 * time.Millisecond)
			cur.Add(-1)
		}()
	}
	wg.Wait()

	assert.LessOrEqual(t, peak.Load(), int32(3))
}

func TestLimiter_AcquireHonoursCancellation(t *testing.T) {
	t.Parallel()

	l, err := NewLimiter(1, 1, 10)
	require.NoError(t, err)
	require.NoError(t, l.Acquire(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, l.Acquire(ctx), context.DeadlineExceeded)

	l.Release()
	assert.NoError(t, l.Acquire(context.Background()))
}

func TestNewLimiter_RejectsOutOfRange(t *testing.T) {
	t.Parallel()

	for _, bound := range []int{0, 51} {
		_, err := NewLimiter(bound, MinScanConcurrency, MaxScanConcurrency)
		assert.ErrorIs(t, err, ErrInvalidConcurrency)
	}
	l, err := NewLimiter(10000, 1, 10000)
	require.NoError(t, err)
	assert.Equal(t, 10000, l.Bound())
}

func TestNewTarget(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in     string
		domain string
		url    string
	}{
		{"example.com", "example.com", "https://example.com"},
		{" example.com ", "example.com", "https://example.com"},
		{"http://example.com/", "example.com", "http://example.com"},
		{"https://example.com/app", "example.com", "https://example.com/app"},
	}
	for _, tt := range tests {
		got := NewTarget(tt.in)
		assert.Equal(t, tt.domain, got.Domain, tt.in)
		assert.Equal(t, tt.url, got.URL, tt.in)
	}
}

func TestScanResult_FinishIsTerminalOnce(t *testing.T) {
	t.Parallel()

	r := NewResult(NewTarget("a.com"), "headers", TypeHeaders)
	assert.Equal(t, StatusInProgress, r.Status)
	assert.Zero(t, r.Duration())

	r.Finish(StatusTimeout, "scan timed out after 1s")
	end := r.EndTime
	require.False(t, end.IsZero())

	r.Finish(StatusCompleted, "")
	assert.Equal(t, StatusTimeout, r.Status)
	assert.Equal(t, end, r.EndTime)
	assert.GreaterOrEqual(t, r.Duration(), time.Duration(0))
}

func TestParseCapabilityType(t *testing.T) {
	t.Parallel()

	typ, err := ParseCapabilityType("SSLLabs")
	require.NoError(t, err)
	assert.Equal(t, TypeCertificateGrading, typ)

	_, err = ParseCapabilityType("nmap")
	assert.Error(t, err)
}
