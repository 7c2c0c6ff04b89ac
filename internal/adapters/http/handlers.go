package http

import (
	"errors"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/samirrijal/shoptrip/internal/core/domain"
)

const maxRadiusMiles = 100

// ListLocationsHandler filters and distance-sorts the location pool.
//
// Query: lat, lng and near (search center), radius (miles), categories and
// attributes (comma separated), offset, limit.
func ListLocationsHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		center, err := searchCenter(c)
		if err != nil {
			return errBadRequest(c, err.Error())
		}

		radius := c.QueryFloat("radius", 0)
		if radius < 0 || radius > maxRadiusMiles {
			return errBadRequest(c, "radius must be between 0 and 100 miles")
		}
		if radius > 0 && center == nil {
			return errBadRequest(c, "radius requires lat and lng")
		}

		criteria := domain.FilterCriteria{
			Categories:  splitList(c.Query("categories")),
			RadiusMiles: radius,
		}
		if attrs := splitList(c.Query("attributes")); len(attrs) > 0 {
			criteria.AttributeFilters = make(map[string]bool, len(attrs))
			for _, a := range attrs {
				criteria.AttributeFilters[a] = true
			}
		}

		ranked, err := deps.Locations.Search(c.UserContext(), criteria, center)
		if err != nil {
			return writeError(c, err)
		}

		offset, limit := pageParams(c)
		pg := Pagination{Offset: offset, Limit: limit, Total: len(ranked)}
		SetLinkHeaders(c, pg)
		return c.JSON(PaginatedResponse{Data: paginate(ranked, offset, limit), Pagination: pg})
	}
}

// GetLocationHandler returns a single location by id.
func GetLocationHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		loc, err := deps.Locations.GetByID(c.UserContext(), c.Params("id"))
		if err != nil {
			return writeError(c, err)
		}
		return c.JSON(loc)
	}
}

// ListCategoriesHandler returns the known categories.
func ListCategoriesHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		cats, err := deps.Locations.KnownCategories(c.UserContext())
		if err != nil {
			return writeError(c, err)
		}
		if cats == nil {
			cats = []string{}
		}
		return c.JSON(fiber.Map{"categories": cats})
	}
}

// DirectionsHandler routes between two points: from=lat,lng&to=lat,lng.
func DirectionsHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		from, err := parsePoint(c.Query("from"))
		if err != nil {
			return errBadRequest(c, "from: "+err.Error())
		}
		to, err := parsePoint(c.Query("to"))
		if err != nil {
			return errBadRequest(c, "to: "+err.Error())
		}

		// A scope per request: concurrent callers must not supersede each
		// other, so supersession only applies within this request. Identical
		// in-flight lookups are still deduplicated by the shared coordinator.
		res, err := deps.Directions.Scope().GetDirections(c.UserContext(), from, to)
		if err != nil {
			return writeError(c, err)
		}
		return c.JSON(res)
	}
}

func searchCenter(c *fiber.Ctx) (*domain.SearchCenter, error) {
	latStr, lngStr := c.Query("lat"), c.Query("lng")
	if latStr == "" && lngStr == "" {
		return nil, nil
	}
	if latStr == "" || lngStr == "" {
		return nil, errors.New("lat and lng must be given together")
	}
	lat, err1 := strconv.ParseFloat(latStr, 64)
	lng, err2 := strconv.ParseFloat(lngStr, 64)
	if err1 != nil || err2 != nil || !domain.ValidLatLng(lat, lng) {
		return nil, errors.New("lat and lng must be valid coordinates")
	}
	return &domain.SearchCenter{Name: c.Query("near"), Lat: lat, Lng: lng}, nil
}

func parsePoint(s string) (domain.GeoPoint, error) {
	latStr, lngStr, ok := strings.Cut(s, ",")
	if !ok {
		return domain.GeoPoint{}, errors.New("expected lat,lng")
	}
	lat, err1 := strconv.ParseFloat(strings.TrimSpace(latStr), 64)
	lng, err2 := strconv.ParseFloat(strings.TrimSpace(lngStr), 64)
	if err1 != nil || err2 != nil || !domain.ValidLatLng(lat, lng) {
		return domain.GeoPoint{}, errors.New("invalid coordinates")
	}
	return domain.GeoPoint{Lat: lat, Lng: lng}, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
