package domain

import "math"

// GeoPoint represents a geographic coordinate (WGS 84).
type GeoPoint struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Valid reports whether both components are finite and inside the WGS 84 ranges.
func (p GeoPoint) Valid() bool {
	return ValidLatLng(p.Lat, p.Lng)
}

// ValidLatLng reports whether lat/lng are finite and in [-90,90] / [-180,180].
func ValidLatLng(lat, lng float64) bool {
	if math.IsNaN(lat) || math.IsNaN(lng) || math.IsInf(lat, 0) || math.IsInf(lng, 0) {
		return false
	}
	return lat >= -90 && lat <= 90 && lng >= -180 && lng <= 180
}

// SearchCenter is the reference point supplied by the place search box.
type SearchCenter struct {
	Name             string  `json:"name,omitempty"`
	FormattedAddress string  `json:"formatted_address,omitempty"`
	Lat              float64 `json:"lat"`
	Lng              float64 `json:"lng"`
}

// Point returns the center as a GeoPoint.
func (c SearchCenter) Point() GeoPoint {
	return GeoPoint{Lat: c.Lat, Lng: c.Lng}
}
