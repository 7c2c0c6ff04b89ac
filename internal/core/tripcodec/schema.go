package tripcodec

import (
	"fmt"
	"math"
	"strings"

	"github.com/samirrijal/shoptrip/internal/core/domain"
)

// ValidationResult is the outcome of a schema check.
type ValidationResult struct {
	Valid    bool     `json:"valid"`
	Problems []string `json:"problems,omitempty"`
}

func (r *ValidationResult) fail(format string, args ...any) {
	r.Valid = false
	r.Problems = append(r.Problems, fmt.Sprintf(format, args...))
}

// Schema checks stored trip shapes. An empty category set accepts any
// category.
type Schema struct {
	categories map[string]struct{}
}

// NewSchema returns a Schema accepting the given categories.
func NewSchema(knownCategories []string) *Schema {
	s := &Schema{}
	if len(knownCategories) > 0 {
		s.categories = make(map[string]struct{}, len(knownCategories))
		for _, c := range knownCategories {
			s.categories[c] = struct{}{}
		}
	}
	return s
}

func (s *Schema) knownCategory(c string) bool {
	if s == nil || s.categories == nil {
		return true
	}
	_, ok := s.categories[c]
	return ok
}

// ValidateRecord checks a decoded JSON object against the versioned record
// shape.
func (s *Schema) ValidateRecord(obj map[string]any) ValidationResult {
	res := ValidationResult{Valid: true}

	switch v := obj["version"].(type) {
	case float64:
		if v < 0 || v != math.Trunc(v) {
			res.fail("version must be a non-negative integer")
		}
	case nil:
		res.fail("version is required")
	default:
		res.fail("version must be a number")
	}

	if _, ok := obj["timestamp"].(float64); !ok {
		res.fail("timestamp must be a number")
	}

	if _, ok := obj["isOptimizedRoute"].(bool); !ok {
		res.fail("isOptimizedRoute must be a boolean")
	}

	slugs, ok := obj["stopSlugs"].([]any)
	if !ok {
		res.fail("stopSlugs must be an array")
		return res
	}
	for i, raw := range slugs {
		str, ok := raw.(string)
		if !ok || strings.TrimSpace(str) == "" {
			res.fail("stopSlugs[%d] must be a non-empty string", i)
		}
	}
	return res
}

// ValidateLegacyEntry checks one element of a pre-versioning bare array. An
// entry is either a location id or a location object; the returned slug is the
// id it contributes.
func (s *Schema) ValidateLegacyEntry(entry any) (string, ValidationResult) {
	res := ValidationResult{Valid: true}

	switch v := entry.(type) {
	case string:
		if strings.TrimSpace(v) == "" {
			res.fail("id must not be empty")
			return "", res
		}
		return strings.TrimSpace(v), res
	case map[string]any:
		id := stringField(v, "id")
		if id == "" {
			id = stringField(v, "slug")
		}
		if id == "" {
			res.fail("location object has no id")
		}
		if name, present := v["name"]; present && name != nil {
			if _, ok := name.(string); !ok {
				res.fail("name must be a string")
			}
		}
		s.checkCoordinate(&res, v, "lat", 90)
		s.checkCoordinate(&res, v, "lng", 180)
		if cat, present := v["category"]; present && cat != nil {
			str, ok := cat.(string)
			switch {
			case !ok:
				res.fail("category must be a string")
			case !s.knownCategory(str):
				res.fail("unknown category %q", str)
			}
		}
		if !res.Valid {
			return "", res
		}
		return id, res
	default:
		res.fail("entry must be a string or an object, got %T", entry)
		return "", res
	}
}

// ValidateLocation applies the legacy object rules to a loaded Location.
func (s *Schema) ValidateLocation(l domain.Location) ValidationResult {
	res := ValidationResult{Valid: true}
	if strings.TrimSpace(l.ID) == "" {
		res.fail("location has no id")
	}
	if l.Lat != nil && !inRange(*l.Lat, 90) {
		res.fail("lat out of range")
	}
	if l.Lng != nil && !inRange(*l.Lng, 180) {
		res.fail("lng out of range")
	}
	for _, c := range l.CategorySet() {
		if !s.knownCategory(c) {
			res.fail("unknown category %q", c)
		}
	}
	return res
}

func (s *Schema) checkCoordinate(res *ValidationResult, obj map[string]any, field string, limit float64) {
	raw, present := obj[field]
	if !present || raw == nil {
		return
	}
	f, ok := raw.(float64)
	if !ok {
		res.fail("%s must be a number", field)
		return
	}
	if !inRange(f, limit) {
		res.fail("%s %v out of range", field, f)
	}
}

func inRange(f, limit float64) bool {
	return !math.IsNaN(f) && f >= -limit && f <= limit
}

func stringField(obj map[string]any, key string) string {
	s, _ := obj[key].(string)
	return strings.TrimSpace(s)
}
