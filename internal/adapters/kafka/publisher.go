package kafkaadapter

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/samirrijal/shoptrip/internal/core/domain"
	"github.com/samirrijal/shoptrip/internal/core/ports"
)

// CatalogKey keys catalog announcements so they land on one partition.
const CatalogKey = "catalog"

// MessageWriter is the subset of *kafka.Writer the publisher needs.
// It allows for mocking in unit tests.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Publisher implements ports.EventPublisher on a Kafka topic. Trip events
// are keyed by session id so one session's history stays ordered.
type Publisher struct {
	w MessageWriter
}

var _ ports.EventPublisher = (*Publisher)(nil)

// NewPublisher creates a publisher writing to topic on brokers.
func NewPublisher(brokers []string, topic string) *Publisher {
	return NewPublisherWithWriter(&kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		BatchTimeout:           50 * time.Millisecond,
		RequiredAcks:           kafka.RequireOne,
		AllowAutoTopicCreation: true,
	})
}

// NewPublisherWithWriter wraps an existing writer.
func NewPublisherWithWriter(w MessageWriter) *Publisher {
	return &Publisher{w: w}
}

// PublishTripEvent writes ev keyed by its session.
func (p *Publisher) PublishTripEvent(ctx context.Context, ev *domain.TripEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return p.write(ctx, kafka.Message{
		Key:     []byte(ev.SessionID),
		Value:   data,
		Headers: []kafka.Header{{Key: "type", Value: []byte(ev.Type)}},
	})
}

// CatalogUpdate is the value of a catalog announcement.
type CatalogUpdate struct {
	Count     int   `json:"count"`
	Timestamp int64 `json:"timestamp"`
}

// PublishCatalogUpdated announces a changed location catalog.
func (p *Publisher) PublishCatalogUpdated(ctx context.Context, count int) error {
	data, err := json.Marshal(CatalogUpdate{Count: count, Timestamp: time.Now().UnixMilli()})
	if err != nil {
		return err
	}
	return p.write(ctx, kafka.Message{
		Key:     []byte(CatalogKey),
		Value:   data,
		Headers: []kafka.Header{{Key: "type", Value: []byte(domain.EventCatalogUpdated)}},
	})
}

func (p *Publisher) write(ctx context.Context, msg kafka.Message) error {
	if err := p.w.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("kafka write: %w", err)
	}
	return nil
}

// Close flushes pending messages and closes the writer.
func (p *Publisher) Close() error {
	return p.w.Close()
}
