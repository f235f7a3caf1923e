// Package publisher handles publishing scan result events to RabbitMQ.
package publisher

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/aiforce-discovery-agent/collectors/web-scanner/internal/scanner"
)

// Event types and routing keys.
const (
	EventScanResult   = "discovery.web.scan_result"
	RoutingScanResult = "discovered.web.scan_result"
	eventSource       = "/collectors/web-scanner"
)

// channel is the part of *amqp.Channel the publisher uses.
type channel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// Publisher sends CloudEvents to RabbitMQ. It is safe for concurrent use;
// AMQP channels are not, so publishes are serialized.
type Publisher struct {
	mu       sync.Mutex
	conn     *amqp.Connection
	channel  channel
	exchange string
	logger   *zap.SugaredLogger
}

var _ scanner.ResultPublisher = (*Publisher)(nil)

// CloudEvent represents the CloudEvents 1.0 specification structure.
type CloudEvent struct {
	SpecVersion     string `json:"specversion"`
	Type            string `json:"type"`
	Source          string `json:"source"`
	ID              string `json:"id"`
	Time            string `json:"time"`
	Subject         string `json:"subject,omitempty"`
	DataContentType string `json:"datacontenttype"`
	Data            any    `json:"data"`
}

// ScanResultData is the payload of a scan result event.
type ScanResultData struct {
	BatchID       string                   `json:"batch_id"`
	Result        *scanner.ScanResult      `json:"result"`
	FindingCounts map[scanner.Severity]int `json:"finding_counts"`
	DurationMs    int64                    `json:"duration_ms"`
}

// New creates a new Publisher connected to RabbitMQ.
func New(url, exchange string, logger *zap.SugaredLogger) (*Publisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	if exchange == "" {
		exchange = "discovery.events"
	}
	return &Publisher{
		conn:     conn,
		channel:  ch,
		exchange: exchange,
		logger:   logger,
	}, nil
}

// Close closes the RabbitMQ connection.
func (p *Publisher) Close() error {
	if p.channel != nil {
		_ = p.channel.Close()
	}
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}

// PublishScanResult publishes one finalized scan result.
func (p *Publisher) PublishScanResult(batchID string, result *scanner.ScanResult) error {
	data := ScanResultData{
		BatchID:       batchID,
		Result:        result,
		FindingCounts: result.CountBySeverity(),
		DurationMs:    result.Duration().Milliseconds(),
	}
	event := createEvent(EventScanResult, result.Domain, data)
	return p.publish(event, RoutingScanResult)
}

func createEvent(eventType, subject string, data any) CloudEvent {
	return CloudEvent{
		SpecVersion:     "1.0",
		Type:            eventType,
		Source:          eventSource,
		ID:              uuid.New().String(),
		Time:            time.Now().UTC().Format(time.RFC3339),
		Subject:         subject,
		DataContentType: "application/json",
		Data:            data,
	}
}

func (p *Publisher) publish(event CloudEvent, routingKey string) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	p.mu.Lock()
	err = p.channel.PublishWithContext(
		ctx,
		p.exchange,
		routingKey,
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType: "application/cloudevents+json",
			Body:        body,
			MessageId:   event.ID,
			Timestamp:   time.Now(),
		},
	)
	p.mu.Unlock()

	if err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}

	p.logger.Debugw("Event published",
		"type", event.Type,
		"id", event.ID,
		"subject", event.Subject,
		"routing_key", routingKey,
	)

	return nil
}
