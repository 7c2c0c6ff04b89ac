package usecases

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strconv"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/samirrijal/shoptrip/internal/core/domain"
	"github.com/samirrijal/shoptrip/internal/core/ports"
)

const poolCacheKey = "catalog:locations:v1"

// ErrLocationNotFound is returned for an id missing from the pool.
var ErrLocationNotFound = errors.New("location not found")

// LocationService owns the in-memory location pool. The pool is loaded
// lazily from the source, optionally through a shared cache, and replaced
// wholesale on Invalidate. Concurrent cold loads share one fetch.
type LocationService struct {
	source     ports.LocationSource
	cache      ports.KeyValueStore
	cacheTTL   int
	dist       ports.DistanceCalculator
	categories []string
	log        *slog.Logger
	group      singleflight.Group

	mu       sync.RWMutex
	pool     []domain.Location
	byID     map[string]int
	loaded   bool
	loading  bool
	gen      uint64
	flights  uint64
	inflight *poolLoad
}

// poolLoad is one shared fetch. It runs detached from any single caller
// and is cancelled once every waiter has gone away.
type poolLoad struct {
	id      uint64
	gen     uint64
	ctx     context.Context
	cancel  context.CancelFunc
	waiters []context.Context
}

func (l *poolLoad) abandoned() bool {
	for _, w := range l.waiters {
		if w.Err() == nil {
			return false
		}
	}
	return true
}

var (
	errPoolInvalidated = errors.New("location pool invalidated during load")
	errLoadAbandoned   = errors.New("location load abandoned")
)

// NewLocationService creates a LocationService. cache may be nil.
// categories is the configured category list; when empty the categories
// present in the pool are used.
func NewLocationService(source ports.LocationSource, cache ports.KeyValueStore, cacheTTL int, dist ports.DistanceCalculator, categories []string) *LocationService {
	return &LocationService{
		source:     source,
		cache:      cache,
		cacheTTL:   cacheTTL,
		dist:       dist,
		categories: categories,
		log:        slog.Default().With("component", "location_service"),
	}
}

// Load returns the pool, fetching it on first use. A cancelled or failed
// fetch commits nothing, so a later call retries. A fetch overtaken by
// Invalidate, or abandoned by the callers it started with, is discarded and
// the load starts over.
func (s *LocationService) Load(ctx context.Context) ([]domain.Location, error) {
	for {
		locs, err := s.load(ctx)
		retry := errors.Is(err, errPoolInvalidated) || errors.Is(err, errLoadAbandoned)
		if retry && ctx.Err() == nil {
			continue
		}
		return locs, err
	}
}

func (s *LocationService) load(ctx context.Context) ([]domain.Location, error) {
	s.mu.Lock()
	if s.loaded {
		pool := s.pool
		s.mu.Unlock()
		return pool, nil
	}
	l := s.inflight
	if l == nil || l.gen != s.gen {
		fctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
		s.flights++
		l = &poolLoad{id: s.flights, gen: s.gen, ctx: fctx, cancel: cancel}
		s.inflight = l
	}
	l.waiters = append(l.waiters, ctx)
	s.loading = true
	s.mu.Unlock()

	ch := s.group.DoChan(strconv.FormatUint(l.id, 10), func() (any, error) {
		return s.fetch(l)
	})
	select {
	case <-ctx.Done():
		s.leave(l)
		s.log.InfoContext(ctx, "location load aborted", "error", ctx.Err())
		return nil, ctx.Err()
	case res := <-ch:
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.([]domain.Location), nil
	}
}

// leave cancels l once none of its waiters is left.
func (s *LocationService) leave(l *poolLoad) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !l.abandoned() {
		return
	}
	l.cancel()
	if s.inflight == l {
		s.inflight = nil
		s.loading = false
	}
}

func (s *LocationService) fetch(l *poolLoad) ([]domain.Location, error) {
	ctx := l.ctx
	defer func() {
		s.mu.Lock()
		if s.inflight == l {
			s.inflight = nil
			s.loading = false
		}
		s.mu.Unlock()
		l.cancel()
	}()

	locs, cached := s.fromCache(ctx)
	if !cached {
		var err error
		locs, err = s.source.LoadLocations(ctx)
		if err != nil && ctx.Err() == nil {
			return nil, err
		}
	}

	if err := s.commit(l, locs); err != nil {
		return nil, err
	}
	if s.cache != nil && !cached {
		if data, err := json.Marshal(locs); err == nil {
			_ = s.cache.Set(ctx, poolCacheKey, data, s.cacheTTL)
		}
	}
	s.log.InfoContext(ctx, "location pool loaded", "count", len(locs), "cached", cached)
	return locs, nil
}

func (s *LocationService) fromCache(ctx context.Context) ([]domain.Location, bool) {
	if s.cache == nil {
		return nil, false
	}
	data, err := s.cache.Get(ctx, poolCacheKey)
	if err != nil {
		return nil, false
	}
	var locs []domain.Location
	if err := json.Unmarshal(data, &locs); err != nil {
		_ = s.cache.Delete(ctx, poolCacheKey)
		return nil, false
	}
	return locs, true
}

// commit installs locs unless l was abandoned or invalidated meanwhile.
func (s *LocationService) commit(l *poolLoad, locs []domain.Location) error {
	idx := make(map[string]int, len(locs))
	for i, loc := range locs {
		if _, dup := idx[loc.ID]; !dup {
			idx[loc.ID] = i
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if l.abandoned() || l.ctx.Err() != nil {
		return errLoadAbandoned
	}
	if s.gen != l.gen {
		return errPoolInvalidated
	}
	s.pool = locs
	s.byID = idx
	s.loaded = true
	return nil
}

// Loading reports whether a pool fetch is in progress.
func (s *LocationService) Loading() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loading
}

// Invalidate drops the pool and the cached copy; the next call reloads.
// A fetch already in flight will not commit.
func (s *LocationService) Invalidate(ctx context.Context) {
	s.mu.Lock()
	s.pool, s.byID, s.loaded = nil, nil, false
	s.gen++
	s.mu.Unlock()
	if s.cache != nil {
		_ = s.cache.Delete(ctx, poolCacheKey)
	}
}

// Refresh invalidates and reloads the pool.
func (s *LocationService) Refresh(ctx context.Context) error {
	s.Invalidate(ctx)
	_, err := s.Load(ctx)
	return err
}

// Resolve implements LocationResolver.
func (s *LocationService) Resolve(ctx context.Context, ids []string) ([]domain.Location, error) {
	if _, err := s.Load(ctx); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Location, 0, len(ids))
	for _, id := range ids {
		if i, ok := s.byID[id]; ok {
			out = append(out, s.pool[i])
		}
	}
	return out, nil
}

// GetByID returns a single location.
func (s *LocationService) GetByID(ctx context.Context, id string) (*domain.Location, error) {
	locs, err := s.Resolve(ctx, []string{id})
	if err != nil {
		return nil, err
	}
	if len(locs) == 0 {
		return nil, ErrLocationNotFound
	}
	return &locs[0], nil
}

// Search filters and distance-sorts the pool.
func (s *LocationService) Search(ctx context.Context, criteria domain.FilterCriteria, center *domain.SearchCenter) ([]domain.RankedLocation, error) {
	pool, err := s.Load(ctx)
	if err != nil {
		return nil, err
	}
	return FilterAndSort(pool, criteria, center, s.dist, s.knownCategories(pool)), nil
}

// KnownCategories returns the configured categories, or those in the pool.
func (s *LocationService) KnownCategories(ctx context.Context) ([]string, error) {
	pool, err := s.Load(ctx)
	if err != nil {
		return nil, err
	}
	return s.knownCategories(pool), nil
}

func (s *LocationService) knownCategories(pool []domain.Location) []string {
	if len(s.categories) > 0 {
		return s.categories
	}
	return CategoriesOf(pool)
}
