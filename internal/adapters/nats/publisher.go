package natsadapter

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/samirrijal/shoptrip/internal/core/domain"
)

// Subjects.
const (
	TripSubjectPrefix     = "trip.events."
	SubjectCatalogUpdated = "catalog.locations.updated"
)

// TripSubject is the subject carrying one session's trip events.
func TripSubject(sessionID string) string {
	return TripSubjectPrefix + sessionID
}

// CatalogUpdate is the payload of SubjectCatalogUpdated.
type CatalogUpdate struct {
	Count     int   `json:"count"`
	Timestamp int64 `json:"timestamp"`
}

// Streams backing the subjects.
var streams = []nats.StreamConfig{
	{
		Name:      "TRIP_EVENTS",
		Subjects:  []string{TripSubjectPrefix + ">"},
		Retention: nats.LimitsPolicy,
		MaxAge:    1 * time.Hour,
		Storage:   nats.MemoryStorage,
	},
	{
		Name:      "CATALOG_EVENTS",
		Subjects:  []string{"catalog.>"},
		Retention: nats.InterestPolicy,
		MaxAge:    24 * time.Hour,
		Storage:   nats.FileStorage,
	},
}

// Publisher implements ports.EventPublisher using NATS JetStream.
type Publisher struct {
	conn *nats.Conn
	js   nats.JetStreamContext
}

// NewPublisher connects to NATS and enables JetStream.
func NewPublisher(url string) (*Publisher, error) {
	conn, err := RawConn(url)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}

	js, err := conn.JetStream()
	if err != nil {
		return nil, fmt.Errorf("jetstream: %w", err)
	}

	for _, cfg := range streams {
		if _, err := js.AddStream(&cfg); err != nil {
			// Stream may already exist; try update
			if _, err := js.UpdateStream(&cfg); err != nil {
				return nil, fmt.Errorf("ensure stream %s: %w", cfg.Name, err)
			}
		}
	}

	return &Publisher{conn: conn, js: js}, nil
}

// PublishTripEvent publishes on the session's subject.
func (p *Publisher) PublishTripEvent(ctx context.Context, ev *domain.TripEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	_, err = p.js.Publish(TripSubject(ev.SessionID), data, nats.Context(ctx))
	return err
}

// PublishCatalogUpdated announces a changed location catalog.
func (p *Publisher) PublishCatalogUpdated(ctx context.Context, count int) error {
	data, err := json.Marshal(CatalogUpdate{Count: count, Timestamp: time.Now().UnixMilli()})
	if err != nil {
		return err
	}
	_, err = p.js.Publish(SubjectCatalogUpdated, data, nats.Context(ctx))
	return err
}

// Close drains and closes the connection.
func (p *Publisher) Close() {
	_ = p.conn.Drain()
}

// RawConn creates a plain NATS connection for subscribing (e.g. WebSocket relay).
func RawConn(url string) (*nats.Conn, error) {
	return nats.Connect(url,
		nats.Name("shoptrip"),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
}
