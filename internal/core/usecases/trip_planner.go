package usecases

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/samirrijal/shoptrip/internal/core/domain"
	"github.com/samirrijal/shoptrip/internal/core/ports"
	"github.com/samirrijal/shoptrip/internal/core/tripcodec"
)

// DefaultMaxStops is the trip capacity.
const DefaultMaxStops = 10

// TripRouter computes multi-stop routes. *RouteCoordinator implements it.
type TripRouter interface {
	GetTripRoute(ctx context.Context, origin, destination domain.GeoPoint, waypoints []domain.GeoPoint, optimize bool) (*domain.RouteResult, error)
}

// LocationResolver maps location ids back to pool entries. Unknown ids are
// skipped; the result keeps request order.
type LocationResolver interface {
	Resolve(ctx context.Context, ids []string) ([]domain.Location, error)
}

// TripObserver receives planner telemetry.
type TripObserver interface {
	ObserveMutation(op string)
	ObserveRejection(kind domain.ErrorKind)
}

type nopTripObserver struct{}

func (nopTripObserver) ObserveMutation(string)            {}
func (nopTripObserver) ObserveRejection(domain.ErrorKind) {}

// PlannerConfig holds the planner limits.
type PlannerConfig struct {
	MaxStops     int
	MaxWaypoints int
	// ShareBaseURL is used by GetShareURL when the session has no page URL.
	ShareBaseURL string
}

// HydrationSource says where a hydrated trip came from.
type HydrationSource string

const (
	HydratedNone    HydrationSource = "none"
	HydratedURL     HydrationSource = "url"
	HydratedStorage HydrationSource = "storage"
	HydratedAlready HydrationSource = "already_hydrated"
)

// HydrationResult summarises Hydrate.
type HydrationResult struct {
	Source    HydrationSource `json:"source"`
	Requested int             `json:"requested"`
	Restored  int             `json:"restored"`
}

// TripPlanner owns one session's ordered stop list. Every operation runs to
// completion under the planner's lock; only CalculateTripRoute releases it
// while the routing request is in flight.
type TripPlanner struct {
	sessionID string
	cfg       PlannerConfig
	store     *tripcodec.Store
	router    TripRouter
	pool      LocationResolver
	events    ports.EventPublisher
	observer  TripObserver
	log       *slog.Logger
	now       func() time.Time
	newID     func() string

	mu        sync.Mutex
	stops     []domain.TripStop
	optimized bool
	route     *domain.RouteResult
	fetching  bool
	lastErr   *domain.TripError
	revision  uint64 // bumped by every stop-set mutation
	attempt   uint64 // bumped by every route calculation
	hydrated  bool
	tripMode  bool
	pageURL   *url.URL
	pending   []*domain.TripEvent // delivered by unlock
}

// PlannerOption configures a TripPlanner.
type PlannerOption func(*TripPlanner)

// WithEvents publishes trip events for the session.
func WithEvents(p ports.EventPublisher) PlannerOption {
	return func(t *TripPlanner) { t.events = p }
}

// WithTripObserver sets the telemetry sink.
func WithTripObserver(o TripObserver) PlannerOption {
	return func(t *TripPlanner) {
		if o != nil {
			t.observer = o
		}
	}
}

// WithPlannerLogger sets the logger.
func WithPlannerLogger(l *slog.Logger) PlannerOption {
	return func(t *TripPlanner) { t.log = l }
}

// WithPlannerClock overrides the time source used for stop ids and events.
func WithPlannerClock(now func() time.Time) PlannerOption {
	return func(t *TripPlanner) { t.now = now }
}

// WithStopIDs overrides stop id generation.
func WithStopIDs(fn func() string) PlannerOption {
	return func(t *TripPlanner) { t.newID = fn }
}

// NewTripPlanner creates an empty planner for a session.
func NewTripPlanner(sessionID string, store *tripcodec.Store, router TripRouter, pool LocationResolver, cfg PlannerConfig, opts ...PlannerOption) *TripPlanner {
	if cfg.MaxStops <= 0 {
		cfg.MaxStops = DefaultMaxStops
	}
	if cfg.MaxWaypoints <= 0 {
		cfg.MaxWaypoints = DefaultMaxWaypoints
	}
	p := &TripPlanner{
		sessionID: sessionID,
		cfg:       cfg,
		store:     store,
		router:    router,
		pool:      pool,
		observer:  nopTripObserver{},
		log:       slog.Default(),
		now:       time.Now,
	}
	for _, o := range opts {
		o(p)
	}
	if p.newID == nil {
		p.newID = func() string {
			return fmt.Sprintf("stop_%d_%s", p.now().UnixMilli(), strings.ReplaceAll(uuid.NewString(), "-", "")[:9])
		}
	}
	p.log = p.log.With("component", "trip_planner", "session", sessionID)
	return p
}

// SessionID returns the owning session.
func (p *TripPlanner) SessionID() string { return p.sessionID }

// Hydrate restores the trip once per planner: from the trip parameters of
// pageURL when present, else from durable storage. A failed or cancelled pool
// lookup commits nothing and leaves the planner hydratable.
func (p *TripPlanner) Hydrate(ctx context.Context, pageURL *url.URL) (HydrationResult, error) {
	p.mu.Lock()
	defer p.unlock(ctx)

	if p.hydrated {
		return HydrationResult{Source: HydratedAlready, Restored: len(p.stops)}, nil
	}
	if pageURL != nil {
		u := *pageURL
		p.pageURL = &u
	}

	res := HydrationResult{Source: HydratedNone}
	var slugs []string
	var optimized bool
	if p.pageURL != nil {
		if s, opt, ok := tripcodec.DecodeTrip(p.pageURL.RawQuery); ok {
			slugs, optimized, res.Source = s, opt, HydratedURL
		}
	}
	if res.Source == HydratedNone && p.store != nil {
		if rec, ok := p.store.Load(ctx); ok {
			slugs, optimized, res.Source = rec.StopSlugs, rec.IsOptimizedRoute, HydratedStorage
		}
	}
	res.Requested = len(slugs)

	if len(slugs) == 0 {
		p.hydrated = true
		return res, nil
	}

	if p.pool == nil {
		return HydrationResult{Source: HydratedNone}, errors.New("no location pool configured")
	}
	locs, err := p.pool.Resolve(ctx, slugs)
	if err != nil {
		p.log.WarnContext(ctx, "trip hydration aborted", "source", res.Source, "error", err)
		return HydrationResult{Source: HydratedNone}, err
	}

	seen := make(map[string]struct{}, len(locs))
	stops := make([]domain.TripStop, 0, len(locs))
	for _, l := range locs {
		if _, dup := seen[l.ID]; dup {
			continue
		}
		if len(stops) == p.cfg.MaxStops {
			break
		}
		seen[l.ID] = struct{}{}
		stops = append(stops, domain.TripStop{ID: p.newID(), Location: l})
	}

	p.hydrated = true
	p.stops = stops
	p.optimized = optimized && len(stops) > 0
	p.tripMode = len(stops) > 0
	res.Restored = len(stops)
	p.changed(ctx, "hydrate")

	p.log.InfoContext(ctx, "trip hydrated", "source", res.Source, "requested", res.Requested, "restored", res.Restored)
	return res, nil
}

// AddStop appends loc to the trip. Duplicates and a full trip are rejected
// with a notice and leave the state untouched.
func (p *TripPlanner) AddStop(ctx context.Context, loc domain.Location) error {
	p.mu.Lock()
	defer p.unlock(ctx)

	if p.indexOfLocation(loc.ID) >= 0 {
		return p.reject(ctx, domain.NewDuplicateError(loc.DisplayName()))
	}
	if len(p.stops) >= p.cfg.MaxStops {
		return p.reject(ctx, domain.NewCapacityError(p.cfg.MaxStops))
	}

	p.stops = append(p.stops, domain.TripStop{ID: p.newID(), Location: loc})
	p.tripMode = true
	p.changed(ctx, "add")
	return nil
}

// RemoveStop deletes the stop with the given TripStop id. It reports whether
// a stop was removed.
func (p *TripPlanner) RemoveStop(ctx context.Context, stopID string) bool {
	p.mu.Lock()
	defer p.unlock(ctx)

	for i, s := range p.stops {
		if s.ID == stopID {
			p.stops = append(p.stops[:i:i], p.stops[i+1:]...)
			p.changed(ctx, "remove")
			return true
		}
	}
	return false
}

// ReorderStops moves the stop at from to position to. Out-of-range indices
// and from == to leave the trip untouched and report false.
func (p *TripPlanner) ReorderStops(ctx context.Context, from, to int) bool {
	p.mu.Lock()
	defer p.unlock(ctx)

	n := len(p.stops)
	if from < 0 || from >= n || to < 0 || to >= n || from == to {
		return false
	}
	moved := p.stops[from]
	rest := append(p.stops[:from:from], p.stops[from+1:]...)
	out := make([]domain.TripStop, 0, n)
	out = append(out, rest[:to]...)
	out = append(out, moved)
	out = append(out, rest[to:]...)
	p.stops = out
	p.changed(ctx, "reorder")
	return true
}

// ToggleRouteOptimization flips the optimization flag and returns its new
// value.
func (p *TripPlanner) ToggleRouteOptimization(ctx context.Context) bool {
	p.mu.Lock()
	defer p.unlock(ctx)

	p.optimized = !p.optimized
	p.changed(ctx, "toggle_optimization")
	return p.optimized
}

// CalculateTripRoute routes from origin through every stop, ending at the
// last one. Validation failures never reach the network. A result that
// arrives after the trip changed, or after a newer calculation started, is
// discarded with domain.ErrRouteSuperseded. Cancelling ctx restores the
// state from before the call.
func (p *TripPlanner) CalculateTripRoute(ctx context.Context, origin domain.GeoPoint) (*domain.RouteResult, error) {
	p.mu.Lock()
	if verr := p.validateForRouting(origin); verr != nil {
		// Any flight still out belongs to an older attempt and must not land.
		p.attempt++
		p.fetching = false
		p.route = nil
		p.lastErr = verr
		p.observer.ObserveRejection(verr.Kind)
		p.mu.Unlock()
		return nil, verr
	}

	last := len(p.stops) - 1
	destination, _ := p.stops[last].Location.Point()
	waypoints := make([]domain.GeoPoint, 0, last)
	for _, s := range p.stops[:last] {
		pt, _ := s.Location.Point()
		waypoints = append(waypoints, pt)
	}
	optimize := p.optimized
	prevRoute, prevErr := p.route, p.lastErr

	p.attempt++
	attempt, revision := p.attempt, p.revision
	p.fetching = true
	p.route = nil
	p.lastErr = nil
	p.mu.Unlock()

	result, err := p.router.GetTripRoute(ctx, origin, destination, waypoints, optimize)

	p.mu.Lock()
	defer p.unlock(ctx)

	if p.revision != revision || p.attempt != attempt {
		p.log.DebugContext(ctx, "discarding stale route result")
		return nil, domain.ErrRouteSuperseded
	}
	p.fetching = false

	if errors.Is(err, context.Canceled) || errors.Is(err, domain.ErrRouteSuperseded) {
		p.route, p.lastErr = prevRoute, prevErr
		return nil, err
	}
	if err != nil {
		te, ok := domain.AsTripError(err)
		if !ok {
			te = domain.NewNetworkError(domain.CodeTransport, err)
		}
		p.lastErr = te
		p.publish(ctx, domain.EventRouteFailed, te.Message)
		return nil, te
	}

	p.route = result
	p.lastErr = nil
	p.publish(ctx, domain.EventRouteCalculated, "")
	return result, nil
}

func (p *TripPlanner) validateForRouting(origin domain.GeoPoint) *domain.TripError {
	if len(p.stops) == 0 {
		return domain.NewValidationError(domain.CodeEmptyTrip, "Add at least one stop to calculate a route")
	}
	if !origin.Valid() {
		return domain.NewValidationError(domain.CodeInvalidOrigin, "A valid starting location is required")
	}
	var missing []string
	for _, s := range p.stops {
		if _, ok := s.Location.Point(); !ok {
			missing = append(missing, s.Location.DisplayName())
		}
	}
	if len(missing) > 0 {
		return domain.MissingCoordinatesError(missing)
	}
	// (n-1) waypoints plus the destination.
	if len(p.stops) > p.cfg.MaxWaypoints {
		return tooManyWaypoints(p.cfg.MaxWaypoints)
	}
	return nil
}

// ClearTrip empties the trip, deletes the durable record and strips the
// trip parameters from the page URL.
func (p *TripPlanner) ClearTrip(ctx context.Context) {
	p.mu.Lock()
	defer p.unlock(ctx)

	p.stops = nil
	p.optimized = false
	p.route = nil
	p.lastErr = nil
	p.fetching = false
	p.tripMode = false
	p.revision++
	if p.store != nil {
		p.store.Remove(ctx)
	}
	if p.pageURL != nil {
		tripcodec.StripTripParams(p.pageURL)
	}
	p.observer.ObserveMutation("clear")
	p.publish(ctx, domain.EventTripCleared, "")
}

// IsShopInTrip reports whether the location id is a stop.
func (p *TripPlanner) IsShopInTrip(locationID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.indexOfLocation(locationID) >= 0
}

// GetShareURL returns a link that restores the current trip. A page URL
// without a host only carries trip parameters, so the configured base is used
// instead. Without either only the query string is returned.
func (p *TripPlanner) GetShareURL() string {
	p.mu.Lock()
	defer p.mu.Unlock()

	slugs := p.slugs()
	base := p.cfg.ShareBaseURL
	if p.pageURL != nil && p.pageURL.Host != "" {
		base = p.pageURL.String()
	}
	if base == "" {
		return tripcodec.EncodeTrip(slugs, p.optimized)
	}
	out, err := tripcodec.ShareURL(base, slugs, p.optimized)
	if err != nil {
		return tripcodec.EncodeTrip(slugs, p.optimized)
	}
	return out
}

// PageURL returns the session's page URL with the trip mirrored into it, or
// nil when the session was created without one.
func (p *TripPlanner) PageURL() *url.URL {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.pageURL == nil {
		return nil
	}
	u := *p.pageURL
	return &u
}

// TripModeEnabled reports whether a stop has ever been added since the
// last clear.
func (p *TripPlanner) TripModeEnabled() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.tripMode
}

// StorageSize is the estimated size of the durable record in bytes.
func (p *TripPlanner) StorageSize(ctx context.Context) int {
	if p.store == nil {
		return 0
	}
	return p.store.Size(ctx)
}

// State returns a snapshot of the trip.
func (p *TripPlanner) State() domain.TripState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.snapshot()
}

func (p *TripPlanner) snapshot() domain.TripState {
	return domain.TripState{
		Stops:           append([]domain.TripStop(nil), p.stops...),
		IsOptimized:     p.optimized,
		RouteResult:     p.route,
		IsFetchingRoute: p.fetching,
		Error:           p.lastErr,
	}
}

// changed re-derives order and applies the side effects every stop-set
// mutation shares. Callers hold p.mu.
func (p *TripPlanner) changed(ctx context.Context, op string) {
	for i := range p.stops {
		p.stops[i].Order = i
	}
	p.route = nil
	p.lastErr = nil
	p.fetching = false
	p.revision++

	if p.store != nil {
		locs := make([]domain.Location, len(p.stops))
		for i, s := range p.stops {
			locs[i] = s.Location
		}
		p.store.SaveLocations(ctx, locs, p.optimized)
	}
	if p.pageURL != nil {
		tripcodec.StripTripParams(p.pageURL)
		if q := strings.TrimPrefix(tripcodec.EncodeTrip(p.slugs(), p.optimized), "?"); q != "" {
			if p.pageURL.RawQuery != "" {
				q = p.pageURL.RawQuery + "&" + q
			}
			p.pageURL.RawQuery = q
		}
	}

	p.observer.ObserveMutation(op)
	p.publish(ctx, domain.EventTripUpdated, "")
}

func (p *TripPlanner) reject(ctx context.Context, err *domain.TripError) error {
	p.observer.ObserveRejection(err.Kind)
	p.publish(ctx, domain.EventTripNotice, err.Message)
	return err
}

// publish queues an event describing the current state. Callers hold p.mu
// and release it with unlock.
func (p *TripPlanner) publish(ctx context.Context, eventType, notice string) {
	if p.events == nil {
		return
	}
	p.pending = append(p.pending, &domain.TripEvent{
		Type:      eventType,
		SessionID: p.sessionID,
		Status:    p.snapshot().Status(),
		StopSlugs: p.slugs(),
		Optimized: p.optimized,
		Notice:    notice,
		Timestamp: p.now().UnixMilli(),
	})
}

// unlock releases p.mu, then delivers queued events so a slow broker never
// holds up the session.
func (p *TripPlanner) unlock(ctx context.Context) {
	pending := p.pending
	p.pending = nil
	p.mu.Unlock()

	for _, ev := range pending {
		if err := p.events.PublishTripEvent(ctx, ev); err != nil {
			p.log.WarnContext(ctx, "publish trip event", "type", ev.Type, "error", err)
		}
	}
}

func (p *TripPlanner) indexOfLocation(id string) int {
	for i, s := range p.stops {
		if s.Location.ID == id {
			return i
		}
	}
	return -1
}

func (p *TripPlanner) slugs() []string {
	out := make([]string, len(p.stops))
	for i, s := range p.stops {
		out[i] = s.Location.ID
	}
	return out
}
