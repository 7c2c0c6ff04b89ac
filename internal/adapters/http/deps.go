package http

import (
	"context"

	"github.com/nats-io/nats.go"

	"github.com/samirrijal/shoptrip/internal/core/usecases"
)

// Pinger is a dependency that can report its connectivity.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Dependencies holds all services needed by HTTP handlers.
type Dependencies struct {
	Locations  *usecases.LocationService
	Sessions   *usecases.SessionService
	Directions *usecases.RouteCoordinator
	NATS       *nats.Conn
	DB         Pinger
	Store      Pinger
	// DocsPath is the OpenAPI document served at /docs/openapi.yaml.
	DocsPath string
}
