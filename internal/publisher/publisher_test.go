package publisher

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/aiforce-discovery-agent/collectors/web-scanner/internal/scanner"
)

type published struct {
	exchange string
	key      string
	msg      amqp.Publishing
}

type fakeChannel struct {
	mu   sync.Mutex
	msgs []published
	err  error
}

func (c *fakeChannel) PublishWithContext(_ context.Context, exchange, key string, _, _ bool, msg amqp.Publishing) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	c.msgs = append(c.msgs, published{exchange: exchange, key: key, msg: msg})
	return nil
}

func (c *fakeChannel) Close() error { return nil }

func TestPublishScanResult(t *testing.T) {
	t.Parallel()

	ch := &fakeChannel{}
	p := &Publisher{channel: ch, exchange: "discovery.events", logger: zap.NewNop().Sugar()}

	res := scanner.NewResult(scanner.Target{Domain: "example.com", URL: "https://example.com"}, "Security Headers", scanner.TypeHeaders)
	res.AddFinding(scanner.Finding{ID: "HEADERS-MISSING-CSP", Severity: scanner.SeverityMedium})
	res.Finish(scanner.StatusCompleted, "")

	require.NoError(t, p.PublishScanResult("batch-1", res))
	require.Len(t, ch.msgs, 1)

	got := ch.msgs[0]
	assert.Equal(t, "discovery.events", got.exchange)
	assert.Equal(t, RoutingScanResult, got.key)
	assert.Equal(t, "application/cloudevents+json", got.msg.ContentType)

	var event struct {
		SpecVersion string `json:"specversion"`
		Type        string `json:"type"`
		Source      string `json:"source"`
		ID          string `json:"id"`
		Subject     string `json:"subject"`
		Data        struct {
			BatchID       string         `json:"batch_id"`
			FindingCounts map[string]int `json:"finding_counts"`
			Result        struct {
				Domain string `json:"domain"`
				Status string `json:"status"`
			} `json:"result"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(got.msg.Body, &event))
	assert.Equal(t, "1.0", event.SpecVersion)
	assert.Equal(t, EventScanResult, event.Type)
	assert.Equal(t, "/collectors/web-scanner", event.Source)
	assert.Equal(t, got.msg.MessageId, event.ID)
	assert.Equal(t, "example.com", event.Subject)
	assert.Equal(t, "batch-1", event.Data.BatchID)
	assert.Equal(t, 1, event.Data.FindingCounts["medium"])
	assert.Equal(t, "completed", event.Data.Result.Status)
}

func TestPublishScanResult_ChannelError(t *testing.T) {
	t.Parallel()

	ch := &fakeChannel{err: errors.New("channel closed")}
	p := &Publisher{channel: ch, exchange: "discovery.events", logger: zap.NewNop().Sugar()}

	res := scanner.NewResult(scanner.Target{Domain: "example.com"}, "Load Test", scanner.TypeLoadTest)
	err := p.PublishScanResult("batch-1", res)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "channel closed")
}
