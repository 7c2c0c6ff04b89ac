package http

import (
	"net/url"

	"github.com/gofiber/fiber/v2"

	"github.com/samirrijal/shoptrip/internal/core/domain"
	"github.com/samirrijal/shoptrip/internal/core/tripcodec"
	"github.com/samirrijal/shoptrip/internal/core/usecases"
)

// TripView is the API representation of a session's trip.
type TripView struct {
	Session              string                    `json:"session"`
	Status               domain.TripStatus         `json:"status"`
	Stops                []domain.TripStop         `json:"stops"`
	IsOptimized          bool                      `json:"is_optimized"`
	TripMode             bool                      `json:"trip_mode"`
	Route                *domain.RouteResult       `json:"route,omitempty"`
	TotalDistanceMeters  float64                   `json:"total_distance_meters,omitempty"`
	TotalDurationSeconds float64                   `json:"total_duration_seconds,omitempty"`
	Error                *domain.TripError         `json:"error,omitempty"`
	ShareURL             string                    `json:"share_url"`
	Hydration            *usecases.HydrationResult `json:"hydration,omitempty"`
}

func tripView(p *usecases.TripPlanner) TripView {
	st := p.State()
	stops := st.Stops
	if stops == nil {
		stops = []domain.TripStop{}
	}
	return TripView{
		Session:              p.SessionID(),
		Status:               st.Status(),
		Stops:                stops,
		IsOptimized:          st.IsOptimized,
		TripMode:             p.TripModeEnabled(),
		Route:                st.RouteResult,
		TotalDistanceMeters:  st.RouteResult.TotalDistanceMeters(),
		TotalDurationSeconds: st.RouteResult.TotalDurationSeconds(),
		Error:                st.Error,
		ShareURL:             p.GetShareURL(),
	}
}

type createTripRequest struct {
	// PageURL is the page the trip was opened from; trip parameters in its
	// query restore a shared trip.
	PageURL string `json:"page_url"`
}

// CreateTripHandler starts a session. A shared trip is restored from the
// page_url body field or from this request's own trip/opt query parameters.
func CreateTripHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req createTripRequest
		if len(c.Body()) > 0 {
			if err := c.BodyParser(&req); err != nil {
				return errBadRequest(c, "invalid request body")
			}
		}

		var page *url.URL
		switch {
		case req.PageURL != "":
			u, err := url.Parse(req.PageURL)
			if err != nil {
				return errBadRequest(c, "page_url is not a valid URL")
			}
			page = u
		case c.Query(tripcodec.ParamTrip) != "":
			page = &url.URL{RawQuery: string(c.Request().URI().QueryString())}
		}

		p, res, err := deps.Sessions.Create(c.UserContext(), page)
		if err != nil {
			return writeError(c, err)
		}
		view := tripView(p)
		view.Hydration = &res
		return c.Status(fiber.StatusCreated).JSON(view)
	}
}

// withPlanner resolves the :session parameter before calling fn.
func withPlanner(deps *Dependencies, fn func(c *fiber.Ctx, p *usecases.TripPlanner) error) fiber.Handler {
	return func(c *fiber.Ctx) error {
		p, err := deps.Sessions.Resume(c.UserContext(), c.Params("session"))
		if err != nil {
			return writeError(c, err)
		}
		return fn(c, p)
	}
}

// GetTripHandler returns the trip.
func GetTripHandler(deps *Dependencies) fiber.Handler {
	return withPlanner(deps, func(c *fiber.Ctx, p *usecases.TripPlanner) error {
		return c.JSON(tripView(p))
	})
}

type addStopRequest struct {
	LocationID string `json:"location_id"`
}

// AddStopHandler appends a pool location to the trip.
func AddStopHandler(deps *Dependencies) fiber.Handler {
	return withPlanner(deps, func(c *fiber.Ctx, p *usecases.TripPlanner) error {
		var req addStopRequest
		if err := c.BodyParser(&req); err != nil || req.LocationID == "" {
			return errBadRequest(c, "location_id is required")
		}
		loc, err := deps.Locations.GetByID(c.UserContext(), req.LocationID)
		if err != nil {
			return writeError(c, err)
		}
		if err := p.AddStop(c.UserContext(), *loc); err != nil {
			return writeError(c, err)
		}
		return c.Status(fiber.StatusCreated).JSON(tripView(p))
	})
}

// RemoveStopHandler deletes a stop by its TripStop id.
func RemoveStopHandler(deps *Dependencies) fiber.Handler {
	return withPlanner(deps, func(c *fiber.Ctx, p *usecases.TripPlanner) error {
		if !p.RemoveStop(c.UserContext(), c.Params("stopId")) {
			return errNotFound(c, "stop not found in trip")
		}
		return c.JSON(tripView(p))
	})
}

type reorderRequest struct {
	From *int `json:"from"`
	To   *int `json:"to"`
}

// ReorderStopsHandler moves a stop. Out-of-range indices leave the trip
// unchanged and are reported through the changed field.
func ReorderStopsHandler(deps *Dependencies) fiber.Handler {
	return withPlanner(deps, func(c *fiber.Ctx, p *usecases.TripPlanner) error {
		var req reorderRequest
		if err := c.BodyParser(&req); err != nil || req.From == nil || req.To == nil {
			return errBadRequest(c, "from and to are required")
		}
		changed := p.ReorderStops(c.UserContext(), *req.From, *req.To)
		return c.JSON(fiber.Map{"changed": changed, "trip": tripView(p)})
	})
}

// ToggleOptimizationHandler flips waypoint optimization.
func ToggleOptimizationHandler(deps *Dependencies) fiber.Handler {
	return withPlanner(deps, func(c *fiber.Ctx, p *usecases.TripPlanner) error {
		p.ToggleRouteOptimization(c.UserContext())
		return c.JSON(tripView(p))
	})
}

type routeRequest struct {
	Origin *domain.GeoPoint `json:"origin"`
}

// CalculateRouteHandler routes the trip from the given origin.
func CalculateRouteHandler(deps *Dependencies) fiber.Handler {
	return withPlanner(deps, func(c *fiber.Ctx, p *usecases.TripPlanner) error {
		var req routeRequest
		if err := c.BodyParser(&req); err != nil || req.Origin == nil {
			return errBadRequest(c, "origin is required")
		}
		if _, err := p.CalculateTripRoute(c.UserContext(), *req.Origin); err != nil {
			return writeError(c, err)
		}
		return c.JSON(tripView(p))
	})
}

// ClearTripHandler empties the trip and ends the session.
func ClearTripHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if err := deps.Sessions.Close(c.UserContext(), c.Params("session")); err != nil {
			return writeError(c, err)
		}
		return c.SendStatus(fiber.StatusNoContent)
	}
}

// ShareTripHandler returns the shareable trip link.
func ShareTripHandler(deps *Dependencies) fiber.Handler {
	return withPlanner(deps, func(c *fiber.Ctx, p *usecases.TripPlanner) error {
		return c.JSON(fiber.Map{"url": p.GetShareURL()})
	})
}

// StorageSizeHandler reports the size of the session's durable record.
func StorageSizeHandler(deps *Dependencies) fiber.Handler {
	return withPlanner(deps, func(c *fiber.Ctx, p *usecases.TripPlanner) error {
		return c.JSON(fiber.Map{
			"key":   deps.Sessions.StorageKey(p.SessionID()),
			"bytes": p.StorageSize(c.UserContext()),
		})
	})
}
