package usecases

import (
	"math"
	"sort"

	"github.com/samirrijal/shoptrip/internal/core/domain"
	"github.com/samirrijal/shoptrip/internal/core/ports"
	"github.com/samirrijal/shoptrip/internal/pkg/geospatial"
)

// FilterAndSort applies the category, attribute and radius filters to
// locations and orders the survivors by distance from center.
//
// knownCategories is the full category list; selecting all of them (or none)
// disables the category filter. dist may be nil, in which case no radius
// filtering or distance annotation happens. The input slice is never modified.
func FilterAndSort(
	locations []domain.Location,
	criteria domain.FilterCriteria,
	center *domain.SearchCenter,
	dist ports.DistanceCalculator,
	knownCategories []string,
) []domain.RankedLocation {
	var origin *domain.GeoPoint
	if center != nil && dist != nil {
		if p := center.Point(); p.Valid() {
			origin = &p
		}
	}

	categories := categoryFilter(criteria.Categories, knownCategories)
	required := requiredAttributes(criteria.AttributeFilters)
	applyRadius := origin != nil && criteria.RadiusMiles > 0
	maxMeters := geospatial.MilesToMeters(criteria.RadiusMiles)

	out := make([]domain.RankedLocation, 0, len(locations))
	for _, loc := range locations {
		if categories != nil && !matchesCategory(loc, categories) {
			continue
		}
		if !hasAttributes(loc, required) {
			continue
		}

		ranked := domain.RankedLocation{Location: loc}
		if origin != nil {
			p, ok := loc.Point()
			if !ok {
				if applyRadius {
					continue
				}
				out = append(out, ranked)
				continue
			}
			d, err := dist.DistanceMeters(*origin, p)
			if err != nil || math.IsNaN(d) {
				continue
			}
			if applyRadius && d > maxMeters {
				continue
			}
			ranked.DistanceMeters = &d
			ranked.DistanceLabel = geospatial.FormatMiles(d)
		}
		out = append(out, ranked)
	}

	if origin != nil {
		sort.SliceStable(out, func(i, j int) bool {
			return distanceOrInf(out[i]) < distanceOrInf(out[j])
		})
	}
	return out
}

// categoryFilter returns the selected set when it narrows the known
// categories, nil otherwise.
func categoryFilter(selected, known []string) map[string]struct{} {
	if len(selected) == 0 {
		return nil
	}
	set := make(map[string]struct{}, len(selected))
	for _, c := range selected {
		set[c] = struct{}{}
	}
	if len(known) > 0 {
		all := true
		for _, k := range known {
			if _, ok := set[k]; !ok {
				all = false
				break
			}
		}
		if all {
			return nil
		}
	}
	return set
}

func matchesCategory(loc domain.Location, set map[string]struct{}) bool {
	for _, c := range loc.CategorySet() {
		if _, ok := set[c]; ok {
			return true
		}
	}
	return false
}

func requiredAttributes(filters map[string]bool) []string {
	var keys []string
	for k, on := range filters {
		if on {
			keys = append(keys, k)
		}
	}
	return keys
}

func hasAttributes(loc domain.Location, required []string) bool {
	for _, k := range required {
		if !loc.Attributes[k] {
			return false
		}
	}
	return true
}

func distanceOrInf(r domain.RankedLocation) float64 {
	if r.DistanceMeters == nil {
		return math.Inf(1)
	}
	return *r.DistanceMeters
}

// CategoriesOf returns the distinct categories present in locations, in
// first-seen order.
func CategoriesOf(locations []domain.Location) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, l := range locations {
		for _, c := range l.CategorySet() {
			if _, ok := seen[c]; ok {
				continue
			}
			seen[c] = struct{}{}
			out = append(out, c)
		}
	}
	return out
}
