package geospatial

import (
	"fmt"
	"math"

	"github.com/samirrijal/shoptrip/internal/core/domain"
)

const (
	earthRadiusKm = 6371.0

	// MetersPerMile is the international mile.
	MetersPerMile = 1609.344
)

// Haversine calculates the great-circle distance in meters between two points.
func Haversine(lat1, lon1, lat2, lon2 float64) float64 {
	dLat := toRad(lat2 - lat1)
	dLon := toRad(lon2 - lon1)

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRad(lat1))*math.Cos(toRad(lat2))*
			math.Sin(dLon/2)*math.Sin(dLon/2)

	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return earthRadiusKm * c * 1000
}

// Calculator implements ports.DistanceCalculator with the haversine formula.
type Calculator struct{}

// DistanceMeters returns an error when either point is outside WGS 84 ranges.
func (Calculator) DistanceMeters(a, b domain.GeoPoint) (float64, error) {
	if !a.Valid() {
		return 0, fmt.Errorf("invalid point %.6f,%.6f", a.Lat, a.Lng)
	}
	if !b.Valid() {
		return 0, fmt.Errorf("invalid point %.6f,%.6f", b.Lat, b.Lng)
	}
	return Haversine(a.Lat, a.Lng, b.Lat, b.Lng), nil
}

// MilesToMeters converts a radius in miles.
func MilesToMeters(miles float64) float64 {
	return miles * MetersPerMile
}

// FormatMiles renders a distance as "5.3 mi".
func FormatMiles(meters float64) string {
	return fmt.Sprintf("%.1f mi", meters/MetersPerMile)
}

func toRad(deg float64) float64 {
	return deg * math.Pi / 180
}
