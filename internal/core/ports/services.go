package ports

import (
	"context"
	"errors"
	"fmt"

	"github.com/samirrijal/shoptrip/internal/core/domain"
)

// ErrNotFound is returned by a KeyValueStore for a missing key.
var ErrNotFound = errors.New("key not found")

// KeyValueStore is a byte-oriented key/value store. It backs both the durable
// trip record and the catalog cache. ttlSeconds <= 0 stores without expiry.
type KeyValueStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttlSeconds int) error
	Delete(ctx context.Context, key string) error
}

// DistanceCalculator computes the distance in meters between two points.
type DistanceCalculator interface {
	DistanceMeters(a, b domain.GeoPoint) (float64, error)
}

// DistanceFunc adapts a plain function to DistanceCalculator.
type DistanceFunc func(a, b domain.GeoPoint) (float64, error)

func (f DistanceFunc) DistanceMeters(a, b domain.GeoPoint) (float64, error) { return f(a, b) }

// RoutingService issues a single request to the external routing provider.
// Non-2xx HTTP answers are reported as *UpstreamError; a decoded response is
// returned as-is, whatever its status.
type RoutingService interface {
	Route(ctx context.Context, req domain.RouteRequest) (*domain.RouteResult, error)
}

// UpstreamError is an HTTP-level failure from the routing provider.
type UpstreamError struct {
	StatusCode int
	Body       string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("routing upstream status %d: %s", e.StatusCode, e.Body)
}

// EventPublisher publishes trip and catalog events to a message broker.
type EventPublisher interface {
	PublishTripEvent(ctx context.Context, event *domain.TripEvent) error
	PublishCatalogUpdated(ctx context.Context, count int) error
}

// EventSubscriber subscribes to catalog events.
type EventSubscriber interface {
	SubscribeCatalogUpdates(ctx context.Context, handler func(ctx context.Context) error) error
}
