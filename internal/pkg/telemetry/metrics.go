package telemetry

// TracerName identifies spans emitted by this service.
const TracerName = "github.com/samirrijal/shoptrip"

// Span names.
const (
	SpanRoutingRequest = "routing.directions"
	SpanCatalogLoad    = "catalog.load"
	SpanCatalogImport  = "catalog.import"
)

// Span attribute keys.
const (
	AttrRouteMode      = "route.mode"
	AttrRouteWaypoints = "route.waypoints"
	AttrRouteOptimize  = "route.optimize"
	AttrRouteStatus    = "route.status"
	AttrHTTPStatus     = "http.status_code"
	AttrCatalogCount   = "catalog.count"
)
