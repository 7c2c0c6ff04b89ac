package usecases

import (
	"context"
	"errors"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/samirrijal/shoptrip/internal/core/domain"
	"github.com/samirrijal/shoptrip/internal/core/ports"
	"github.com/samirrijal/shoptrip/internal/core/tripcodec"
)

// ErrInvalidSession is returned for a malformed session id.
var ErrInvalidSession = errors.New("invalid session id")

// SessionConfig configures the per-session planners.
type SessionConfig struct {
	Planner          PlannerConfig
	StorageKeyPrefix string
	StorageTTL       int
	IdleTimeout      time.Duration
	KnownCategories  []string
}

type session struct {
	planner  *TripPlanner
	lastSeen time.Time
}

// SessionService keeps one TripPlanner per client session. A session's
// durable record lives under its own key, so a session evicted from memory is
// restored from storage on its next use.
type SessionService struct {
	kv          ports.KeyValueStore
	router      *RouteCoordinator
	pool        LocationResolver
	events      ports.EventPublisher
	cfg         SessionConfig
	observer    TripObserver
	storageHook func(op string, err *domain.TripError)
	log         *slog.Logger
	plannerLog  *slog.Logger
	now         func() time.Time

	mu       sync.Mutex
	sessions map[string]*session
}

// SessionOption configures a SessionService.
type SessionOption func(*SessionService)

// WithSessionEvents publishes trip events for every session.
func WithSessionEvents(p ports.EventPublisher) SessionOption {
	return func(s *SessionService) { s.events = p }
}

// WithSessionObserver sets the planner telemetry sink.
func WithSessionObserver(o TripObserver) SessionOption {
	return func(s *SessionService) { s.observer = o }
}

// WithStorageErrorHook receives swallowed storage errors.
func WithStorageErrorHook(fn func(op string, err *domain.TripError)) SessionOption {
	return func(s *SessionService) { s.storageHook = fn }
}

// WithSessionLogger sets the logger for the service and its planners.
func WithSessionLogger(l *slog.Logger) SessionOption {
	return func(s *SessionService) {
		s.log = l.With("component", "session_service")
		s.plannerLog = l
	}
}

// WithSessionClock overrides the time source used for idle eviction.
func WithSessionClock(now func() time.Time) SessionOption {
	return func(s *SessionService) { s.now = now }
}

// NewSessionService creates a SessionService.
func NewSessionService(kv ports.KeyValueStore, router *RouteCoordinator, pool LocationResolver, cfg SessionConfig, opts ...SessionOption) *SessionService {
	if cfg.StorageKeyPrefix == "" {
		cfg.StorageKeyPrefix = tripcodec.DefaultStorageKey
	}
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = 30 * time.Minute
	}
	s := &SessionService{
		kv:       kv,
		router:   router,
		pool:     pool,
		cfg:      cfg,
		log:      slog.Default().With("component", "session_service"),
		now:      time.Now,
		sessions: map[string]*session{},
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// StorageKey returns the durable key of a session.
func (s *SessionService) StorageKey(id string) string {
	return s.cfg.StorageKeyPrefix + ":" + id
}

// Create starts a new session and hydrates it from pageURL.
func (s *SessionService) Create(ctx context.Context, pageURL *url.URL) (*TripPlanner, HydrationResult, error) {
	return s.open(ctx, uuid.NewString(), pageURL)
}

// Resume returns the live planner for id, restoring it from durable storage
// when it is not in memory.
func (s *SessionService) Resume(ctx context.Context, id string) (*TripPlanner, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrInvalidSession
	}
	s.mu.Lock()
	if sess, ok := s.sessions[id]; ok {
		sess.lastSeen = s.now()
		s.mu.Unlock()
		return sess.planner, nil
	}
	s.mu.Unlock()

	p, _, err := s.open(ctx, id, nil)
	return p, err
}

func (s *SessionService) open(ctx context.Context, id string, pageURL *url.URL) (*TripPlanner, HydrationResult, error) {
	p := s.newPlanner(id)
	res, err := p.Hydrate(ctx, pageURL)
	if err != nil {
		return nil, res, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.sessions[id]; ok {
		existing.lastSeen = s.now()
		return existing.planner, HydrationResult{Source: HydratedAlready, Restored: len(existing.planner.State().Stops)}, nil
	}
	s.sessions[id] = &session{planner: p, lastSeen: s.now()}
	s.log.InfoContext(ctx, "trip session opened", "session", id, "source", res.Source, "restored", res.Restored)
	return p, res, nil
}

func (s *SessionService) newPlanner(id string) *TripPlanner {
	storeOpts := []tripcodec.Option{
		tripcodec.WithTTL(s.cfg.StorageTTL),
		tripcodec.WithSchema(tripcodec.NewSchema(s.cfg.KnownCategories)),
		tripcodec.WithLogger(s.log),
	}
	if s.storageHook != nil {
		storeOpts = append(storeOpts, tripcodec.WithErrorHook(s.storageHook))
	}
	store := tripcodec.NewStore(s.kv, s.StorageKey(id), storeOpts...)

	cfg := s.cfg.Planner
	if cfg.MaxWaypoints <= 0 {
		cfg.MaxWaypoints = s.router.MaxWaypoints()
	}
	opts := []PlannerOption{WithTripObserver(s.observer)}
	if s.events != nil {
		opts = append(opts, WithEvents(s.events))
	}
	if s.plannerLog != nil {
		opts = append(opts, WithPlannerLogger(s.plannerLog))
	}
	return NewTripPlanner(id, store, s.router.Scope(), s.pool, cfg, opts...)
}

// Close clears the session's trip and forgets it.
func (s *SessionService) Close(ctx context.Context, id string) error {
	p, err := s.Resume(ctx, id)
	if err != nil {
		return err
	}
	p.ClearTrip(ctx)
	s.mu.Lock()
	delete(s.sessions, id)
	s.mu.Unlock()
	return nil
}

// Count returns the number of sessions held in memory.
func (s *SessionService) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// EvictIdle drops in-memory sessions unused for the idle timeout. Their
// durable records are kept.
func (s *SessionService) EvictIdle() int {
	cutoff := s.now().Add(-s.cfg.IdleTimeout)
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for id, sess := range s.sessions {
		if sess.lastSeen.Before(cutoff) {
			delete(s.sessions, id)
			n++
		}
	}
	return n
}

// Run evicts idle sessions until ctx is done.
func (s *SessionService) Run(ctx context.Context, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := s.EvictIdle(); n > 0 {
				s.log.Info("evicted idle trip sessions", "count", n)
			}
		}
	}
}
