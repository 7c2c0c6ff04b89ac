package usecases

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/samirrijal/shoptrip/internal/core/domain"
	"github.com/samirrijal/shoptrip/internal/core/ports"
)

// Routing defaults.
const (
	DefaultRouteTimeout = 30 * time.Second
	DefaultMaxWaypoints = 25
)

// Request shapes tracked independently for supersession.
const (
	ShapeDirections = "directions"
	ShapeTrip       = "trip"
)

// Route outcomes reported to the observer.
const (
	OutcomeOK         = "ok"
	OutcomeService    = "service_error"
	OutcomeNetwork    = "network_error"
	OutcomeValidation = "validation_error"
	OutcomeSuperseded = "superseded"
	OutcomeCanceled   = "canceled"
)

// RouteObserver receives routing telemetry.
type RouteObserver interface {
	ObserveRoute(shape, outcome string, elapsed time.Duration)
	RouteShared(shape string)
}

type nopObserver struct{}

func (nopObserver) ObserveRoute(string, string, time.Duration) {}
func (nopObserver) RouteShared(string)                         {}

// routeFlight is the part of a coordinator shared between scopes: the
// transport and the in-flight request table.
type routeFlight struct {
	routing      ports.RoutingService
	group        singleflight.Group
	timeout      time.Duration
	maxWaypoints int
	mode         domain.RouteMode
	observer     RouteObserver
	log          *slog.Logger
}

// RouteCoordinator issues routing requests, collapsing identical in-flight
// requests, discarding superseded results and classifying every outcome into
// a *domain.TripError.
type RouteCoordinator struct {
	flight *routeFlight

	mu     sync.Mutex
	latest map[string]string // shape -> key of the newest request
}

// RouteOption configures a RouteCoordinator.
type RouteOption func(*routeFlight)

// WithRouteTimeout overrides the 30s ceiling.
func WithRouteTimeout(d time.Duration) RouteOption {
	return func(f *routeFlight) {
		if d > 0 {
			f.timeout = d
		}
	}
}

// WithMaxWaypoints overrides the routing provider's waypoint ceiling.
func WithMaxWaypoints(n int) RouteOption {
	return func(f *routeFlight) {
		if n > 0 {
			f.maxWaypoints = n
		}
	}
}

// WithTravelMode sets the travel mode sent with every request.
func WithTravelMode(m domain.RouteMode) RouteOption {
	return func(f *routeFlight) { f.mode = m }
}

// WithRouteObserver sets the telemetry sink.
func WithRouteObserver(o RouteObserver) RouteOption {
	return func(f *routeFlight) {
		if o != nil {
			f.observer = o
		}
	}
}

// WithRouteLogger sets the logger.
func WithRouteLogger(l *slog.Logger) RouteOption {
	return func(f *routeFlight) { f.log = l }
}

// NewRouteCoordinator creates a coordinator over routing.
func NewRouteCoordinator(routing ports.RoutingService, opts ...RouteOption) *RouteCoordinator {
	f := &routeFlight{
		routing:      routing,
		timeout:      DefaultRouteTimeout,
		maxWaypoints: DefaultMaxWaypoints,
		mode:         domain.ModeDriving,
		observer:     nopObserver{},
		log:          slog.Default(),
	}
	for _, o := range opts {
		o(f)
	}
	return &RouteCoordinator{flight: f, latest: map[string]string{}}
}

// Scope returns a coordinator sharing this one's transport and in-flight
// table but tracking supersession on its own. Each trip session gets one.
func (c *RouteCoordinator) Scope() *RouteCoordinator {
	return &RouteCoordinator{flight: c.flight, latest: map[string]string{}}
}

// MaxWaypoints is the configured waypoint ceiling.
func (c *RouteCoordinator) MaxWaypoints() int { return c.flight.maxWaypoints }

// GetDirections requests a single origin to destination route.
func (c *RouteCoordinator) GetDirections(ctx context.Context, origin, destination domain.GeoPoint) (*domain.RouteResult, error) {
	req := domain.RouteRequest{Origin: origin, Destination: destination, Mode: c.flight.mode}
	return c.execute(ctx, ShapeDirections, req)
}

// GetTripRoute requests a multi-stop route through waypoints.
func (c *RouteCoordinator) GetTripRoute(ctx context.Context, origin, destination domain.GeoPoint, waypoints []domain.GeoPoint, optimize bool) (*domain.RouteResult, error) {
	if len(waypoints)+1 > c.flight.maxWaypoints {
		c.flight.observer.ObserveRoute(ShapeTrip, OutcomeValidation, 0)
		return nil, tooManyWaypoints(c.flight.maxWaypoints)
	}
	req := domain.RouteRequest{
		Origin:            origin,
		Destination:       destination,
		Waypoints:         append([]domain.GeoPoint(nil), waypoints...),
		OptimizeWaypoints: optimize && len(waypoints) > 1,
		Mode:              c.flight.mode,
	}
	return c.execute(ctx, ShapeTrip, req)
}

func (c *RouteCoordinator) execute(ctx context.Context, shape string, req domain.RouteRequest) (*domain.RouteResult, error) {
	for _, p := range append([]domain.GeoPoint{req.Origin, req.Destination}, req.Waypoints...) {
		if !p.Valid() {
			c.flight.observer.ObserveRoute(shape, OutcomeValidation, 0)
			return nil, domain.NewValidationError(domain.CodeMissingCoordinates, "Route points must have valid coordinates")
		}
	}

	key := RequestKey(shape, req)
	c.mu.Lock()
	c.latest[shape] = key
	c.mu.Unlock()

	start := time.Now()
	f := c.flight
	ch := f.group.DoChan(key, func() (any, error) {
		callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), f.timeout)
		defer cancel()
		return f.routing.Route(callCtx, req)
	})

	var (
		result *domain.RouteResult
		err    error
	)
	select {
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			err = domain.NewNetworkError(domain.CodeTimeout, ctx.Err())
			break
		}
		f.observer.ObserveRoute(shape, OutcomeCanceled, time.Since(start))
		return nil, ctx.Err()
	case res := <-ch:
		if res.Shared {
			f.observer.RouteShared(shape)
		}
		result, _ = res.Val.(*domain.RouteResult)
		err = res.Err
	}

	if !c.isLatest(shape, key) {
		f.observer.ObserveRoute(shape, OutcomeSuperseded, time.Since(start))
		return nil, domain.ErrRouteSuperseded
	}

	result, err = Classify(result, err)
	elapsed := time.Since(start)
	if err != nil {
		te, _ := domain.AsTripError(err)
		outcome := OutcomeNetwork
		if te != nil && te.Kind == domain.KindService {
			outcome = OutcomeService
		}
		f.observer.ObserveRoute(shape, outcome, elapsed)
		f.log.WarnContext(ctx, "route request failed", "shape", shape, "error", err, "elapsed", elapsed)
		return nil, err
	}
	f.observer.ObserveRoute(shape, OutcomeOK, elapsed)
	return result, nil
}

func (c *RouteCoordinator) isLatest(shape, key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.latest[shape] == key
}

// RequestKey derives the deduplication key for a request.
func RequestKey(shape string, req domain.RouteRequest) string {
	data, _ := json.Marshal(req)
	return shape + ":" + string(data)
}

// Classify maps a raw routing outcome onto the error taxonomy. A nil error
// return guarantees an OK result with at least one route.
func Classify(result *domain.RouteResult, err error) (*domain.RouteResult, error) {
	if err != nil {
		if te, ok := domain.AsTripError(err); ok {
			return nil, te
		}
		var up *ports.UpstreamError
		if errors.As(err, &up) {
			return nil, classifyHTTPStatus(up)
		}
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, domain.NewNetworkError(domain.CodeTimeout, err)
		}
		return nil, domain.NewNetworkError(domain.CodeTransport, err)
	}
	if result == nil {
		return nil, domain.NewServiceError(domain.StatusUnknownError, "empty routing response")
	}
	if result.Status != domain.StatusOK {
		return nil, domain.NewServiceError(result.Status, result.ErrorMessage)
	}
	if len(result.Routes) == 0 {
		return nil, domain.NewServiceError(domain.StatusZeroResults, "")
	}
	return result, nil
}

func classifyHTTPStatus(up *ports.UpstreamError) *domain.TripError {
	switch {
	case up.StatusCode == http.StatusBadRequest:
		return domain.NewServiceError(domain.StatusInvalidRequest, up.Body)
	case up.StatusCode == http.StatusUnauthorized || up.StatusCode == http.StatusForbidden:
		return domain.NewServiceError(domain.StatusRequestDenied, up.Body)
	case up.StatusCode == http.StatusTooManyRequests:
		return domain.NewServiceError(domain.StatusOverQueryLimit, up.Body)
	case up.StatusCode >= 500:
		return domain.NewServiceError(domain.StatusUnknownError, up.Body)
	default:
		return domain.NewNetworkError(domain.CodeTransport, up)
	}
}

func tooManyWaypoints(max int) *domain.TripError {
	return domain.NewValidationError(domain.CodeTooManyWaypoints,
		fmt.Sprintf("This trip has more stops than the routing service allows (%d waypoints)", max))
}
