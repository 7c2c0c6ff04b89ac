package domain

// TripStatus is the planner's state-machine position.
type TripStatus string

const (
	TripIdle       TripStatus = "idle"
	TripBuilding   TripStatus = "building"
	TripRouting    TripStatus = "routing"
	TripRouted     TripStatus = "routed"
	TripRouteError TripStatus = "route_error"
)

// CurrentRecordVersion is the schema version stamped on every persisted trip.
const CurrentRecordVersion = 1

// TripStop is one location in the trip. Order always equals its index.
type TripStop struct {
	ID       string   `json:"id"`
	Location Location `json:"location"`
	Order    int      `json:"order"`
}

// TripState is a snapshot of the planner.
type TripState struct {
	Stops           []TripStop   `json:"stops"`
	IsOptimized     bool         `json:"is_optimized"`
	RouteResult     *RouteResult `json:"route_result,omitempty"`
	IsFetchingRoute bool         `json:"is_fetching_route"`
	Error           *TripError   `json:"error,omitempty"`
}

// Status derives the state-machine position from the snapshot.
func (s TripState) Status() TripStatus {
	switch {
	case len(s.Stops) == 0:
		return TripIdle
	case s.IsFetchingRoute:
		return TripRouting
	case s.RouteResult != nil:
		return TripRouted
	case s.Error != nil:
		return TripRouteError
	default:
		return TripBuilding
	}
}

// Slugs returns the location ids of the stops in order.
func (s TripState) Slugs() []string {
	out := make([]string, len(s.Stops))
	for i, st := range s.Stops {
		out[i] = st.Location.ID
	}
	return out
}

// PersistedTripRecord is the only durable representation of a trip.
type PersistedTripRecord struct {
	Version          int      `json:"version"`
	Timestamp        int64    `json:"timestamp"`
	StopSlugs        []string `json:"stopSlugs"`
	IsOptimizedRoute bool     `json:"isOptimizedRoute"`
}

// TripEvent is published whenever a session's trip changes.
type TripEvent struct {
	Type      string     `json:"type"`
	SessionID string     `json:"session_id"`
	Status    TripStatus `json:"status"`
	StopSlugs []string   `json:"stop_slugs"`
	Optimized bool       `json:"optimized"`
	Notice    string     `json:"notice,omitempty"`
	Timestamp int64      `json:"timestamp"`
}

// Trip event types.
const (
	EventTripUpdated     = "trip.updated"
	EventTripCleared     = "trip.cleared"
	EventTripNotice      = "trip.notice"
	EventRouteCalculated = "route.calculated"
	EventRouteFailed     = "route.failed"

	EventCatalogUpdated = "catalog.updated"
)
