package usecases_test

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/samirrijal/shoptrip/internal/adapters/memstore"
	"github.com/samirrijal/shoptrip/internal/core/domain"
	"github.com/samirrijal/shoptrip/internal/core/usecases"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func newSessionService(kv *memstore.Store, clock *fakeClock, pool ...domain.Location) *usecases.SessionService {
	cfg := usecases.SessionConfig{StorageKeyPrefix: "trips", IdleTimeout: time.Minute}
	opts := []usecases.SessionOption{}
	if clock != nil {
		opts = append(opts, usecases.WithSessionClock(clock.Now))
	}
	return usecases.NewSessionService(kv, usecases.NewRouteCoordinator(&mockRouting{}), newMockPool(pool...), cfg, opts...)
}

func TestSessionService_CreateHydratesFromURL(t *testing.T) {
	ctx := context.Background()
	kv := memstore.New(0)
	svc := newSessionService(kv, nil, shop("a", 1, 1), shop("b", 1, 1))

	page, _ := url.Parse("https://shops.example/?trip=a,b")
	p, res, err := svc.Create(ctx, page)
	if err != nil {
		t.Fatal(err)
	}
	if res.Source != usecases.HydratedURL || res.Restored != 2 {
		t.Fatalf("unexpected hydration %+v", res)
	}
	if _, err := uuid.Parse(p.SessionID()); err != nil {
		t.Fatalf("expected uuid session id, got %q", p.SessionID())
	}
	if _, err := kv.Get(ctx, svc.StorageKey(p.SessionID())); err != nil {
		t.Fatal("expected session record written under its own key")
	}
}

func TestSessionService_ResumeReturnsLivePlanner(t *testing.T) {
	ctx := context.Background()
	svc := newSessionService(memstore.New(0), nil)
	p, _, _ := svc.Create(ctx, nil)

	got, err := svc.Resume(ctx, p.SessionID())
	if err != nil || got != p {
		t.Fatalf("expected same planner, got %v", err)
	}
	if _, err := svc.Resume(ctx, "not-a-uuid"); !errors.Is(err, usecases.ErrInvalidSession) {
		t.Fatalf("expected invalid session, got %v", err)
	}
}

func TestSessionService_EvictedSessionRestoresFromStorage(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{t: time.Unix(1700000000, 0)}
	svc := newSessionService(memstore.New(0), clock, shop("a", 1, 1), shop("b", 1, 1))

	p, _, _ := svc.Create(ctx, nil)
	_ = p.AddStop(ctx, shop("b", 1, 1))
	_ = p.AddStop(ctx, shop("a", 1, 1))
	p.ToggleRouteOptimization(ctx)
	id := p.SessionID()

	clock.Advance(2 * time.Minute)
	if n := svc.EvictIdle(); n != 1 {
		t.Fatalf("expected 1 eviction, got %d", n)
	}
	if svc.Count() != 0 {
		t.Fatalf("expected no live sessions, got %d", svc.Count())
	}

	restored, err := svc.Resume(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if restored == p {
		t.Fatal("expected a fresh planner")
	}
	st := restored.State()
	if !equalIDs(st.Slugs(), []string{"b", "a"}) || !st.IsOptimized {
		t.Fatalf("unexpected restored state %v optimized=%v", st.Slugs(), st.IsOptimized)
	}
}

func TestSessionService_SessionsAreIsolated(t *testing.T) {
	ctx := context.Background()
	svc := newSessionService(memstore.New(0), nil)
	p1, _, _ := svc.Create(ctx, nil)
	p2, _, _ := svc.Create(ctx, nil)

	_ = p1.AddStop(ctx, shop("a", 1, 1))
	if p2.IsShopInTrip("a") {
		t.Fatal("stop leaked across sessions")
	}
	if svc.Count() != 2 {
		t.Fatalf("expected 2 sessions, got %d", svc.Count())
	}
}

func TestSessionService_CloseClearsRecord(t *testing.T) {
	ctx := context.Background()
	kv := memstore.New(0)
	svc := newSessionService(kv, nil)
	p, _, _ := svc.Create(ctx, nil)
	_ = p.AddStop(ctx, shop("a", 1, 1))

	if err := svc.Close(ctx, p.SessionID()); err != nil {
		t.Fatal(err)
	}
	if _, err := kv.Get(ctx, svc.StorageKey(p.SessionID())); err == nil {
		t.Fatal("expected record deleted")
	}
	if svc.Count() != 0 {
		t.Fatalf("expected session forgotten, got %d", svc.Count())
	}
}

func TestSessionService_LoggerReachesPlanners(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	cfg := usecases.SessionConfig{StorageKeyPrefix: "trips"}
	svc := usecases.NewSessionService(memstore.New(0), usecases.NewRouteCoordinator(&mockRouting{}), newMockPool(shop("a", 1, 1)), cfg,
		usecases.WithSessionLogger(logger))

	page, _ := url.Parse("https://shops.example/?trip=a")
	p, _, err := svc.Create(context.Background(), page)
	if err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	if !strings.Contains(out, `"msg":"trip hydrated"`) || !strings.Contains(out, `"session":"`+p.SessionID()+`"`) {
		t.Fatalf("expected planner records on the session logger, got %s", out)
	}
}
