package http_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	nethttp "net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/gofiber/fiber/v2"

	handler "github.com/samirrijal/shoptrip/internal/adapters/http"
	"github.com/samirrijal/shoptrip/internal/adapters/memstore"
	"github.com/samirrijal/shoptrip/internal/core/domain"
	"github.com/samirrijal/shoptrip/internal/core/ports"
	"github.com/samirrijal/shoptrip/internal/core/usecases"
	"github.com/samirrijal/shoptrip/internal/pkg/geospatial"
)

// ---- Mocks ----

type mockSource struct {
	loadFn func(ctx context.Context) ([]domain.Location, error)
}

func (m *mockSource) LoadLocations(ctx context.Context) ([]domain.Location, error) {
	if m.loadFn != nil {
		return m.loadFn(ctx)
	}
	return nil, nil
}

type mockRouting struct {
	mu     sync.Mutex
	last   domain.RouteRequest
	calls  int
	result *domain.RouteResult
	err    error
}

func (m *mockRouting) Route(ctx context.Context, req domain.RouteRequest) (*domain.RouteResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.last = req
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	if m.result != nil {
		return m.result, nil
	}
	return okRoute(), nil
}

type pingerFunc func(ctx context.Context) error

func (f pingerFunc) Ping(ctx context.Context) error { return f(ctx) }

// ---- Test helpers ----

func ptr(f float64) *float64 { return &f }

func place(id, category string, lat, lng float64) domain.Location {
	return domain.Location{ID: id, Name: strings.ToUpper(id), Lat: ptr(lat), Lng: ptr(lng), Category: category}
}

var catalog = []domain.Location{
	place("blue-bottle", "cafe", 37.776, -122.423),
	place("green-apple", "books", 37.783, -122.464),
	place("ritual", "cafe", 37.756, -122.421),
	{ID: "pop-up", Name: "Pop Up", Category: "market"},
}

func okRoute() *domain.RouteResult {
	return &domain.RouteResult{
		Status: domain.StatusOK,
		Routes: []domain.Route{{Legs: []domain.RouteLeg{
			{Distance: domain.TextValue{Text: "1 km", Value: 1000}, Duration: domain.TextValue{Text: "2 mins", Value: 120}},
			{Distance: domain.TextValue{Text: "2 km", Value: 2000}, Duration: domain.TextValue{Text: "4 mins", Value: 240}},
		}}},
	}
}

func setupApp(deps *handler.Dependencies) *fiber.App {
	app := fiber.New(fiber.Config{DisableStartupMessage: true})
	handler.SetupRoutes(app, deps)
	return app
}

func makeDeps(routing ports.RoutingService, opts ...func(*handler.Dependencies)) *handler.Dependencies {
	if routing == nil {
		routing = &mockRouting{}
	}
	locs := usecases.NewLocationService(&mockSource{
		loadFn: func(ctx context.Context) ([]domain.Location, error) { return catalog, nil },
	}, nil, 0, geospatial.Calculator{}, nil)
	coord := usecases.NewRouteCoordinator(routing)
	d := &handler.Dependencies{
		Locations:  locs,
		Directions: coord,
		Sessions: usecases.NewSessionService(memstore.New(0), coord, locs, usecases.SessionConfig{
			Planner:          usecases.PlannerConfig{MaxStops: 10, ShareBaseURL: "https://shops.example/map"},
			StorageKeyPrefix: "trip_planner_stops",
		}),
	}
	for _, o := range opts {
		o(d)
	}
	return d
}

func readBody(t *testing.T, body io.Reader) []byte {
	t.Helper()
	b, err := io.ReadAll(body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return b
}

func jsonRequest(method, target, body string) *nethttp.Request {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

type tripBody struct {
	Session     string            `json:"session"`
	Status      string            `json:"status"`
	Stops       []domain.TripStop `json:"stops"`
	IsOptimized bool              `json:"is_optimized"`
	TripMode    bool              `json:"trip_mode"`
	ShareURL    string            `json:"share_url"`
	Distance    float64           `json:"total_distance_meters"`
	Duration    float64           `json:"total_duration_seconds"`
	Error       *domain.TripError `json:"error"`
	Hydration   *struct {
		Source   string `json:"source"`
		Restored int    `json:"restored"`
	} `json:"hydration"`
}

func do(t *testing.T, app *fiber.App, method, target, body string) (int, []byte) {
	t.Helper()
	resp, err := app.Test(jsonRequest(method, target, body), -1)
	if err != nil {
		t.Fatal(err)
	}
	return resp.StatusCode, readBody(t, resp.Body)
}

func createTrip(t *testing.T, app *fiber.App, target string) tripBody {
	t.Helper()
	status, body := do(t, app, "POST", target, "")
	if status != 201 {
		t.Fatalf("expected 201, got %d: %s", status, body)
	}
	var trip tripBody
	if err := json.Unmarshal(body, &trip); err != nil {
		t.Fatal(err)
	}
	return trip
}

func decodeTrip(t *testing.T, body []byte) tripBody {
	t.Helper()
	var trip tripBody
	if err := json.Unmarshal(body, &trip); err != nil {
		t.Fatalf("decode trip: %v: %s", err, body)
	}
	return trip
}

// ---- Location handler tests ----

func TestListLocations_Success(t *testing.T) {
	app := setupApp(makeDeps(nil))

	req := httptest.NewRequest("GET", "/v1/locations", nil)
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var result struct {
		Data       []domain.RankedLocation `json:"data"`
		Pagination struct {
			Total int `json:"total"`
		} `json:"pagination"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		t.Fatal(err)
	}
	if result.Pagination.Total != 4 {
		t.Errorf("expected total 4, got %d", result.Pagination.Total)
	}
}

func TestListLocations_NearestFirstWithinRadius(t *testing.T) {
	app := setupApp(makeDeps(nil))

	req := httptest.NewRequest("GET", "/v1/locations?lat=37.7749&lng=-122.4194&radius=2&categories=cafe", nil)
	resp, _ := app.Test(req, -1)
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var result struct {
		Data []domain.RankedLocation `json:"data"`
	}
	json.NewDecoder(resp.Body).Decode(&result)
	if len(result.Data) != 2 {
		t.Fatalf("expected 2 cafes, got %d", len(result.Data))
	}
	if result.Data[0].ID != "blue-bottle" {
		t.Errorf("expected blue-bottle first, got %s", result.Data[0].ID)
	}
	if result.Data[0].DistanceMeters == nil || *result.Data[0].DistanceMeters > *result.Data[1].DistanceMeters {
		t.Error("expected ascending distances")
	}
}

func TestListLocations_Pagination(t *testing.T) {
	app := setupApp(makeDeps(nil))

	req := httptest.NewRequest("GET", "/v1/locations?offset=1&limit=2", nil)
	resp, _ := app.Test(req, -1)

	var result struct {
		Data       []domain.RankedLocation `json:"data"`
		Pagination struct {
			Offset int `json:"offset"`
			Limit  int `json:"limit"`
			Total  int `json:"total"`
		} `json:"pagination"`
	}
	json.NewDecoder(resp.Body).Decode(&result)
	if len(result.Data) != 2 {
		t.Errorf("expected 2 locations in page, got %d", len(result.Data))
	}
	if result.Pagination.Offset != 1 {
		t.Errorf("expected offset 1, got %d", result.Pagination.Offset)
	}
	if link := resp.Header.Get("Link"); !strings.Contains(link, `rel="next"`) {
		t.Errorf("expected next link, got %q", link)
	}
}

func TestListLocations_RadiusWithoutCenter(t *testing.T) {
	app := setupApp(makeDeps(nil))

	req := httptest.NewRequest("GET", "/v1/locations?radius=5", nil)
	resp, _ := app.Test(req, -1)
	if resp.StatusCode != 400 {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}

func TestListLocations_InvalidCenter(t *testing.T) {
	app := setupApp(makeDeps(nil))

	req := httptest.NewRequest("GET", "/v1/locations?lat=91&lng=0", nil)
	resp, _ := app.Test(req, -1)
	if resp.StatusCode != 400 {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}

func TestListLocations_SourceError(t *testing.T) {
	deps := makeDeps(nil, func(d *handler.Dependencies) {
		d.Locations = usecases.NewLocationService(&mockSource{
			loadFn: func(ctx context.Context) ([]domain.Location, error) { return nil, errors.New("db down") },
		}, nil, 0, geospatial.Calculator{}, nil)
	})
	app := setupApp(deps)

	req := httptest.NewRequest("GET", "/v1/locations", nil)
	resp, _ := app.Test(req, -1)
	if resp.StatusCode != 500 {
		t.Fatalf("expected 500, got %d", resp.StatusCode)
	}
}

func TestGetLocation_NotFound(t *testing.T) {
	app := setupApp(makeDeps(nil))

	req := httptest.NewRequest("GET", "/v1/locations/nope", nil)
	resp, _ := app.Test(req, -1)
	if resp.StatusCode != 404 {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
	var apiErr handler.APIError
	json.NewDecoder(resp.Body).Decode(&apiErr)
	if apiErr.Code != "not_found" {
		t.Errorf("expected not_found code, got %q", apiErr.Code)
	}
}

func TestGetLocation_CacheHeaders(t *testing.T) {
	app := setupApp(makeDeps(nil))

	req := httptest.NewRequest("GET", "/v1/locations/ritual", nil)
	resp, _ := app.Test(req, -1)
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if cc := resp.Header.Get("Cache-Control"); cc != "public, max-age=600" {
		t.Errorf("unexpected Cache-Control %q", cc)
	}
	etag := resp.Header.Get("ETag")
	if etag == "" {
		t.Fatal("expected ETag")
	}

	req = httptest.NewRequest("GET", "/v1/locations/ritual", nil)
	req.Header.Set("If-None-Match", etag)
	resp, _ = app.Test(req, -1)
	if resp.StatusCode != 304 {
		t.Fatalf("expected 304, got %d", resp.StatusCode)
	}
}

func TestListCategories(t *testing.T) {
	app := setupApp(makeDeps(nil))

	status, body := do(t, app, "GET", "/v1/categories", "")
	if status != 200 {
		t.Fatalf("expected 200, got %d", status)
	}
	var result struct {
		Categories []string `json:"categories"`
	}
	json.Unmarshal(body, &result)
	if strings.Join(result.Categories, ",") != "cafe,books,market" {
		t.Errorf("unexpected categories %v", result.Categories)
	}
}

// ---- Directions ----

func TestDirections_Success(t *testing.T) {
	routing := &mockRouting{}
	app := setupApp(makeDeps(routing))

	status, _ := do(t, app, "GET", "/v1/directions?from=37.77,-122.41&to=37.78,-122.42", "")
	if status != 200 {
		t.Fatalf("expected 200, got %d", status)
	}
	if routing.last.Origin.Lat != 37.77 || routing.last.Destination.Lng != -122.42 {
		t.Errorf("unexpected request %+v", routing.last)
	}
}

func TestDirections_BadPoint(t *testing.T) {
	app := setupApp(makeDeps(nil))

	status, _ := do(t, app, "GET", "/v1/directions?from=37.77&to=37.78,-122.42", "")
	if status != 400 {
		t.Fatalf("expected 400, got %d", status)
	}
}

func TestDirections_ServiceErrors(t *testing.T) {
	tests := []struct {
		name   string
		result *domain.RouteResult
		err    error
		status int
		code   string
	}{
		{"zero results", &domain.RouteResult{Status: domain.StatusZeroResults}, nil, 502, domain.StatusZeroResults},
		{"quota", &domain.RouteResult{Status: domain.StatusOverQueryLimit}, nil, 429, domain.StatusOverQueryLimit},
		{"timeout", nil, context.DeadlineExceeded, 504, domain.CodeTimeout},
		{"transport", nil, errors.New("connection refused"), 502, domain.CodeTransport},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app := setupApp(makeDeps(&mockRouting{result: tt.result, err: tt.err}))

			status, body := do(t, app, "GET", "/v1/directions?from=1,1&to=2,2", "")
			if status != tt.status {
				t.Fatalf("expected %d, got %d: %s", tt.status, status, body)
			}
			var apiErr handler.TripAPIError
			json.Unmarshal(body, &apiErr)
			if apiErr.Code != tt.code {
				t.Errorf("expected code %s, got %s", tt.code, apiErr.Code)
			}
		})
	}
}

// ---- Trip sessions ----

func TestCreateTrip_Empty(t *testing.T) {
	app := setupApp(makeDeps(nil))

	trip := createTrip(t, app, "/v1/trips")
	if trip.Session == "" {
		t.Fatal("expected session id")
	}
	if trip.Status != string(domain.TripIdle) {
		t.Errorf("expected idle, got %s", trip.Status)
	}
	if trip.ShareURL != "https://shops.example/map" {
		t.Errorf("unexpected share url %q", trip.ShareURL)
	}
}

func TestCreateTrip_FromSharedLink(t *testing.T) {
	app := setupApp(makeDeps(nil))

	trip := createTrip(t, app, "/v1/trips?trip=ritual,blue-bottle,unknown&opt=1")
	if len(trip.Stops) != 2 {
		t.Fatalf("expected 2 stops, got %d", len(trip.Stops))
	}
	if trip.Stops[0].Location.ID != "ritual" || trip.Stops[1].Order != 1 {
		t.Errorf("unexpected stops %+v", trip.Stops)
	}
	if !trip.IsOptimized || !trip.TripMode {
		t.Error("expected optimized trip in trip mode")
	}
	if trip.Hydration == nil || trip.Hydration.Source != "url" {
		t.Errorf("unexpected hydration %+v", trip.Hydration)
	}
}

func TestCreateTrip_PageURLBody(t *testing.T) {
	app := setupApp(makeDeps(nil))

	status, body := do(t, app, "POST", "/v1/trips", `{"page_url":"https://shops.example/map?city=sf&trip=green-apple"}`)
	if status != 201 {
		t.Fatalf("expected 201, got %d", status)
	}
	trip := decodeTrip(t, body)
	if len(trip.Stops) != 1 {
		t.Fatalf("expected 1 stop, got %d", len(trip.Stops))
	}
	if !strings.HasPrefix(trip.ShareURL, "https://shops.example/map?") || !strings.Contains(trip.ShareURL, "city=sf") {
		t.Errorf("share url should keep the page, got %q", trip.ShareURL)
	}
}

func TestGetTrip_InvalidSession(t *testing.T) {
	app := setupApp(makeDeps(nil))

	status, _ := do(t, app, "GET", "/v1/trips/not-a-uuid", "")
	if status != 400 {
		t.Fatalf("expected 400, got %d", status)
	}
}

func TestTrip_AddStopLifecycle(t *testing.T) {
	app := setupApp(makeDeps(nil))
	trip := createTrip(t, app, "/v1/trips")
	base := "/v1/trips/" + trip.Session

	status, body := do(t, app, "POST", base+"/stops", `{"location_id":"ritual"}`)
	if status != 201 {
		t.Fatalf("expected 201, got %d: %s", status, body)
	}
	if got := decodeTrip(t, body); got.Status != string(domain.TripBuilding) || len(got.Stops) != 1 {
		t.Fatalf("unexpected trip %+v", got)
	}

	status, body = do(t, app, "POST", base+"/stops", `{"location_id":"ritual"}`)
	if status != 409 {
		t.Fatalf("expected 409 for duplicate, got %d", status)
	}
	var apiErr handler.TripAPIError
	json.Unmarshal(body, &apiErr)
	if apiErr.Kind != domain.KindDuplicate || !apiErr.Recoverable {
		t.Errorf("unexpected error %+v", apiErr)
	}

	status, _ = do(t, app, "POST", base+"/stops", `{"location_id":"missing"}`)
	if status != 404 {
		t.Fatalf("expected 404 for unknown location, got %d", status)
	}

	status, _ = do(t, app, "POST", base+"/stops", `{}`)
	if status != 400 {
		t.Fatalf("expected 400 for missing location_id, got %d", status)
	}
}

func TestTrip_Capacity(t *testing.T) {
	many := make([]domain.Location, 11)
	for i := range many {
		many[i] = place(fmt.Sprintf("shop-%02d", i), "cafe", 37.7, -122.4)
	}
	deps := makeDeps(nil)
	deps.Locations = usecases.NewLocationService(&mockSource{
		loadFn: func(ctx context.Context) ([]domain.Location, error) { return many, nil },
	}, nil, 0, geospatial.Calculator{}, nil)
	deps.Sessions = usecases.NewSessionService(memstore.New(0), deps.Directions, deps.Locations, usecases.SessionConfig{
		Planner:          usecases.PlannerConfig{MaxStops: 10},
		StorageKeyPrefix: "trips",
	})
	app := setupApp(deps)
	base := "/v1/trips/" + createTrip(t, app, "/v1/trips").Session

	for i := 0; i < 10; i++ {
		if status, _ := do(t, app, "POST", base+"/stops", fmt.Sprintf(`{"location_id":"shop-%02d"}`, i)); status != 201 {
			t.Fatalf("add %d: expected 201, got %d", i, status)
		}
	}
	status, body := do(t, app, "POST", base+"/stops", `{"location_id":"shop-10"}`)
	if status != 409 {
		t.Fatalf("expected 409, got %d", status)
	}
	var apiErr handler.TripAPIError
	json.Unmarshal(body, &apiErr)
	if apiErr.Kind != domain.KindCapacity {
		t.Errorf("expected capacity error, got %s", apiErr.Kind)
	}
}

func TestTrip_ReorderRemoveToggle(t *testing.T) {
	app := setupApp(makeDeps(nil))
	base := "/v1/trips/" + createTrip(t, app, "/v1/trips?trip=blue-bottle,green-apple,ritual").Session

	status, body := do(t, app, "POST", base+"/reorder", `{"from":0,"to":2}`)
	if status != 200 {
		t.Fatalf("expected 200, got %d", status)
	}
	var reordered struct {
		Changed bool     `json:"changed"`
		Trip    tripBody `json:"trip"`
	}
	json.Unmarshal(body, &reordered)
	if !reordered.Changed {
		t.Fatal("expected reorder to change the trip")
	}
	ids := []string{}
	for _, s := range reordered.Trip.Stops {
		ids = append(ids, s.Location.ID)
	}
	if strings.Join(ids, ",") != "green-apple,ritual,blue-bottle" {
		t.Errorf("unexpected order %v", ids)
	}

	status, body = do(t, app, "POST", base+"/reorder", `{"from":0,"to":9}`)
	json.Unmarshal(body, &reordered)
	if status != 200 || reordered.Changed {
		t.Errorf("out of range reorder should be a no-op, got %d changed=%v", status, reordered.Changed)
	}

	status, _ = do(t, app, "POST", base+"/reorder", `{"from":0}`)
	if status != 400 {
		t.Errorf("expected 400 without to, got %d", status)
	}

	stopID := reordered.Trip.Stops[1].ID
	status, body = do(t, app, "DELETE", base+"/stops/"+stopID, "")
	if status != 200 {
		t.Fatalf("expected 200, got %d", status)
	}
	if trip := decodeTrip(t, body); len(trip.Stops) != 2 || trip.Stops[1].Order != 1 {
		t.Errorf("unexpected stops after remove %+v", trip.Stops)
	}
	status, _ = do(t, app, "DELETE", base+"/stops/"+stopID, "")
	if status != 404 {
		t.Errorf("expected 404 removing twice, got %d", status)
	}

	status, body = do(t, app, "POST", base+"/optimize", "")
	if status != 200 || !decodeTrip(t, body).IsOptimized {
		t.Errorf("expected optimized trip, got %d", status)
	}
}

func TestTrip_CalculateRoute(t *testing.T) {
	routing := &mockRouting{}
	app := setupApp(makeDeps(routing))
	base := "/v1/trips/" + createTrip(t, app, "/v1/trips?trip=blue-bottle,green-apple,ritual&opt=1").Session

	status, body := do(t, app, "POST", base+"/route", `{"origin":{"lat":37.7749,"lng":-122.4194}}`)
	if status != 200 {
		t.Fatalf("expected 200, got %d: %s", status, body)
	}
	trip := decodeTrip(t, body)
	if trip.Status != string(domain.TripRouted) {
		t.Errorf("expected routed, got %s", trip.Status)
	}
	if trip.Distance != 3000 || trip.Duration != 360 {
		t.Errorf("unexpected totals %v / %v", trip.Distance, trip.Duration)
	}
	if len(routing.last.Waypoints) != 2 || !routing.last.OptimizeWaypoints {
		t.Errorf("unexpected request %+v", routing.last)
	}
	if routing.last.Destination.Lat != 37.756 {
		t.Errorf("destination should be the last stop, got %+v", routing.last.Destination)
	}

	// Any mutation drops the route.
	do(t, app, "POST", base+"/optimize", "")
	_, body = do(t, app, "GET", base, "")
	if trip := decodeTrip(t, body); trip.Status != string(domain.TripBuilding) {
		t.Errorf("expected building after mutation, got %s", trip.Status)
	}
}

func TestTrip_CalculateRouteMissingCoordinates(t *testing.T) {
	routing := &mockRouting{}
	app := setupApp(makeDeps(routing))
	base := "/v1/trips/" + createTrip(t, app, "/v1/trips?trip=ritual,pop-up").Session

	status, body := do(t, app, "POST", base+"/route", `{"origin":{"lat":37.77,"lng":-122.41}}`)
	if status != 422 {
		t.Fatalf("expected 422, got %d", status)
	}
	var apiErr handler.TripAPIError
	json.Unmarshal(body, &apiErr)
	if apiErr.Code != domain.CodeMissingCoordinates || len(apiErr.Stops) != 1 || apiErr.Stops[0] != "Pop Up" {
		t.Errorf("unexpected error %+v", apiErr)
	}
	if routing.calls != 0 {
		t.Errorf("expected no routing call, got %d", routing.calls)
	}

	_, body = do(t, app, "GET", base, "")
	if trip := decodeTrip(t, body); trip.Error == nil || trip.Status != string(domain.TripRouteError) {
		t.Errorf("expected stored validation error, got %+v", trip)
	}
}

func TestTrip_CalculateRouteRequiresOrigin(t *testing.T) {
	app := setupApp(makeDeps(nil))
	base := "/v1/trips/" + createTrip(t, app, "/v1/trips?trip=ritual").Session

	if status, _ := do(t, app, "POST", base+"/route", `{}`); status != 400 {
		t.Fatalf("expected 400, got %d", status)
	}
	status, _ := do(t, app, "POST", base+"/route", `{"origin":{"lat":120,"lng":0}}`)
	if status != 422 {
		t.Fatalf("expected 422 for invalid origin, got %d", status)
	}
}

func TestTrip_ShareStorageAndClear(t *testing.T) {
	app := setupApp(makeDeps(nil))
	base := "/v1/trips/" + createTrip(t, app, "/v1/trips?trip=ritual,green-apple").Session

	status, body := do(t, app, "GET", base+"/share", "")
	if status != 200 {
		t.Fatalf("expected 200, got %d", status)
	}
	var share struct {
		URL string `json:"url"`
	}
	json.Unmarshal(body, &share)
	if share.URL != "https://shops.example/map?trip=ritual,green-apple" {
		t.Errorf("unexpected share url %q", share.URL)
	}

	_, body = do(t, app, "GET", base+"/storage", "")
	var size struct {
		Key   string `json:"key"`
		Bytes int    `json:"bytes"`
	}
	json.Unmarshal(body, &size)
	if !strings.HasPrefix(size.Key, "trip_planner_stops:") || size.Bytes == 0 {
		t.Errorf("unexpected storage size %+v", size)
	}

	status, _ = do(t, app, "DELETE", base, "")
	if status != 204 {
		t.Fatalf("expected 204, got %d", status)
	}
	_, body = do(t, app, "GET", base, "")
	if trip := decodeTrip(t, body); len(trip.Stops) != 0 {
		t.Errorf("expected empty trip after clear, got %d stops", len(trip.Stops))
	}
}

func TestTrip_NoStoreCacheControl(t *testing.T) {
	app := setupApp(makeDeps(nil))
	base := "/v1/trips/" + createTrip(t, app, "/v1/trips").Session

	resp, _ := app.Test(httptest.NewRequest("GET", base, nil), -1)
	if cc := resp.Header.Get("Cache-Control"); cc != "no-store" {
		t.Errorf("expected no-store, got %q", cc)
	}
	if resp.Header.Get("ETag") != "" {
		t.Error("trip responses must not carry an ETag")
	}
}

// ---- GraphQL ----

func TestGraphQL_TripMutations(t *testing.T) {
	app := setupApp(makeDeps(nil))
	session := createTrip(t, app, "/v1/trips").Session

	query := fmt.Sprintf(`{"query":"mutation { addStop(session: \"%s\", location_id: \"ritual\") { status stops { order location { id lat } } } }"}`, session)
	status, body := do(t, app, "POST", "/graphql", query)
	if status != 200 {
		t.Fatalf("expected 200, got %d", status)
	}
	var result struct {
		Data struct {
			AddStop struct {
				Status string `json:"status"`
				Stops  []struct {
					Order    int `json:"order"`
					Location struct {
						ID  string  `json:"id"`
						Lat float64 `json:"lat"`
					} `json:"location"`
				} `json:"stops"`
			} `json:"addStop"`
		} `json:"data"`
		Errors []interface{} `json:"errors"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		t.Fatal(err)
	}
	if len(result.Errors) > 0 {
		t.Fatalf("unexpected errors %v", result.Errors)
	}
	stops := result.Data.AddStop.Stops
	if len(stops) != 1 || stops[0].Location.ID != "ritual" || stops[0].Location.Lat != 37.756 {
		t.Errorf("unexpected stops %+v", stops)
	}
}

func TestGraphQL_Locations(t *testing.T) {
	app := setupApp(makeDeps(nil))

	status, body := do(t, app, "POST", "/graphql", `{"query":"{ locations(categories: [\"books\"]) { id name } categories }"}`)
	if status != 200 {
		t.Fatalf("expected 200, got %d", status)
	}
	var result struct {
		Data struct {
			Locations []struct {
				ID string `json:"id"`
			} `json:"locations"`
			Categories []string `json:"categories"`
		} `json:"data"`
	}
	json.Unmarshal(body, &result)
	if len(result.Data.Locations) != 1 || result.Data.Locations[0].ID != "green-apple" {
		t.Errorf("unexpected locations %+v", result.Data.Locations)
	}
	if len(result.Data.Categories) != 3 {
		t.Errorf("expected 3 categories, got %v", result.Data.Categories)
	}
}

// ---- Health ----

func TestHealth(t *testing.T) {
	app := setupApp(makeDeps(nil))

	status, body := do(t, app, "GET", "/v1/health", "")
	if status != 200 {
		t.Fatalf("expected 200, got %d", status)
	}
	if !strings.Contains(string(body), `"sessions":0`) {
		t.Errorf("expected session count, got %s", body)
	}
}

func TestReady(t *testing.T) {
	ok := pingerFunc(func(ctx context.Context) error { return nil })
	down := pingerFunc(func(ctx context.Context) error { return errors.New("down") })

	tests := []struct {
		name   string
		db     handler.Pinger
		store  handler.Pinger
		status int
	}{
		{"all up", ok, ok, 200},
		{"store down is tolerated", ok, down, 200},
		{"database down", down, ok, 503},
		{"database missing", nil, ok, 503},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app := setupApp(makeDeps(nil, func(d *handler.Dependencies) {
				d.DB = tt.db
				d.Store = tt.store
			}))
			status, body := do(t, app, "GET", "/v1/ready", "")
			if status != tt.status {
				t.Fatalf("expected %d, got %d: %s", tt.status, status, body)
			}
		})
	}
}

func TestTripErrorStatus(t *testing.T) {
	tests := []struct {
		err  *domain.TripError
		want int
	}{
		{domain.NewValidationError(domain.CodeEmptyTrip, "empty"), 422},
		{domain.NewCapacityError(10), 409},
		{domain.NewDuplicateError("x"), 409},
		{domain.NewNetworkError(domain.CodeTimeout, nil), 504},
		{domain.NewNetworkError(domain.CodeTransport, nil), 502},
		{domain.NewServiceError(domain.StatusOverQueryLimit, ""), 429},
		{domain.NewServiceError(domain.StatusNotFound, ""), 502},
		{domain.NewStorageError(domain.CodeStorageWrite, nil), 500},
	}
	for _, tt := range tests {
		if got := handler.TripErrorStatus(tt.err); got != tt.want {
			t.Errorf("%s/%s: expected %d, got %d", tt.err.Kind, tt.err.Code, tt.want, got)
		}
	}
}
