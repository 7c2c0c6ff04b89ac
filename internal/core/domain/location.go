package domain

// Location is a point of interest from the location pool. Lat and Lng are nil
// when the catalog has no coordinates for it.
type Location struct {
	ID         string          `json:"id"`
	Name       string          `json:"name"`
	Lat        *float64        `json:"lat"`
	Lng        *float64        `json:"lng"`
	Category   string          `json:"category"`
	Categories []string        `json:"categories,omitempty"`
	Attributes map[string]bool `json:"attributes,omitempty"`
	Address    string          `json:"address,omitempty"`
	Phone      string          `json:"phone,omitempty"`
	Website    string          `json:"website,omitempty"`
}

// Point returns the location's coordinate and whether it is usable.
func (l Location) Point() (GeoPoint, bool) {
	if l.Lat == nil || l.Lng == nil {
		return GeoPoint{}, false
	}
	p := GeoPoint{Lat: *l.Lat, Lng: *l.Lng}
	return p, p.Valid()
}

// CategorySet returns the categories the location belongs to.
func (l Location) CategorySet() []string {
	if len(l.Categories) > 0 {
		return l.Categories
	}
	if l.Category == "" {
		return nil
	}
	return []string{l.Category}
}

// DisplayName falls back to the id when the catalog entry has no name.
func (l Location) DisplayName() string {
	if l.Name != "" {
		return l.Name
	}
	return l.ID
}

// FilterCriteria holds the user's filter selections.
type FilterCriteria struct {
	AttributeFilters map[string]bool `json:"attribute_filters,omitempty"`
	Categories       []string        `json:"categories,omitempty"`
	RadiusMiles      float64         `json:"radius_miles"`
}

// RankedLocation is a Location annotated with its distance from the search center.
type RankedLocation struct {
	Location
	DistanceMeters *float64 `json:"distance_meters,omitempty"`
	DistanceLabel  string   `json:"distance_label,omitempty"`
}
