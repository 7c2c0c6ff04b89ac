package domain

// RouteMode is the travel mode requested from the routing service.
type RouteMode string

const (
	ModeDriving   RouteMode = "DRIVING"
	ModeWalking   RouteMode = "WALKING"
	ModeBicycling RouteMode = "BICYCLING"
)

// RouteRequest is the payload sent to the routing service.
type RouteRequest struct {
	Origin            GeoPoint   `json:"origin"`
	Destination       GeoPoint   `json:"destination"`
	Waypoints         []GeoPoint `json:"waypoints,omitempty"`
	OptimizeWaypoints bool       `json:"optimizeWaypoints,omitempty"`
	Mode              RouteMode  `json:"travelMode,omitempty"`
}

// TextValue is a measured quantity with its display text.
type TextValue struct {
	Text  string  `json:"text"`
	Value float64 `json:"value"`
}

// RouteStep is a single instruction within a leg.
type RouteStep struct {
	Instructions string    `json:"html_instructions"`
	Distance     TextValue `json:"distance"`
	Duration     TextValue `json:"duration"`
}

// RouteLeg connects two consecutive points of the route.
type RouteLeg struct {
	Distance     TextValue   `json:"distance"`
	Duration     TextValue   `json:"duration"`
	StartAddress string      `json:"start_address,omitempty"`
	EndAddress   string      `json:"end_address,omitempty"`
	Steps        []RouteStep `json:"steps"`
}

// Polyline is an encoded overview geometry.
type Polyline struct {
	Points string `json:"points"`
}

// Route is one alternative returned by the routing service.
type Route struct {
	Summary          string     `json:"summary,omitempty"`
	Legs             []RouteLeg `json:"legs"`
	WaypointOrder    []int      `json:"waypoint_order,omitempty"`
	OverviewPolyline Polyline   `json:"overview_polyline"`
}

// RouteResult is the routing service response, passed through unmodified.
type RouteResult struct {
	Status       string  `json:"status"`
	ErrorMessage string  `json:"error_message,omitempty"`
	Routes       []Route `json:"routes"`
}

// TotalDistanceMeters sums the legs of the first route.
func (r *RouteResult) TotalDistanceMeters() float64 {
	if r == nil || len(r.Routes) == 0 {
		return 0
	}
	var total float64
	for _, l := range r.Routes[0].Legs {
		total += l.Distance.Value
	}
	return total
}

// TotalDurationSeconds sums the legs of the first route.
func (r *RouteResult) TotalDurationSeconds() float64 {
	if r == nil || len(r.Routes) == 0 {
		return 0
	}
	var total float64
	for _, l := range r.Routes[0].Legs {
		total += l.Duration.Value
	}
	return total
}
