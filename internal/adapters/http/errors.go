package http

import (
	"context"
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/samirrijal/shoptrip/internal/core/domain"
	"github.com/samirrijal/shoptrip/internal/core/usecases"
)

// APIError is a structured error response.
type APIError struct {
	Status    int    `json:"status"`
	Code      string `json:"code"`    // Error code: bad_request, not_found, internal_error, etc.
	Message   string `json:"message"` // Human-readable message
	RequestID string `json:"request_id,omitempty"`
}

// TripAPIError is the response for a domain.TripError.
type TripAPIError struct {
	APIError
	Kind        domain.ErrorKind `json:"kind"`
	Recoverable bool             `json:"recoverable"`
	Stops       []string         `json:"stops,omitempty"`
}

// newError builds a JSON error response with a request ID.
func newError(c *fiber.Ctx, status int, code string, message string) error {
	reqID, _ := c.Locals("requestid").(string)
	return c.Status(status).JSON(APIError{
		Status:    status,
		Code:      code,
		Message:   message,
		RequestID: reqID,
	})
}

// errBadRequest returns a 400 error.
func errBadRequest(c *fiber.Ctx, msg string) error {
	return newError(c, 400, "bad_request", msg)
}

// errNotFound returns a 404 error.
func errNotFound(c *fiber.Ctx, msg string) error {
	return newError(c, 404, "not_found", msg)
}

// errInternal returns a 500 error.
func errInternal(c *fiber.Ctx, msg string) error {
	return newError(c, 500, "internal_error", msg)
}

// errUnavailable returns a 503 error.
func errUnavailable(c *fiber.Ctx, msg string) error {
	return newError(c, 503, "unavailable", msg)
}

// TripErrorStatus maps a trip error to its HTTP status.
func TripErrorStatus(te *domain.TripError) int {
	switch te.Kind {
	case domain.KindValidation:
		return fiber.StatusUnprocessableEntity
	case domain.KindCapacity, domain.KindDuplicate:
		return fiber.StatusConflict
	case domain.KindNetwork:
		if te.Code == domain.CodeTimeout {
			return fiber.StatusGatewayTimeout
		}
		return fiber.StatusBadGateway
	case domain.KindService:
		if te.Code == domain.StatusOverQueryLimit {
			return fiber.StatusTooManyRequests
		}
		return fiber.StatusBadGateway
	default:
		return fiber.StatusInternalServerError
	}
}

func errTrip(c *fiber.Ctx, te *domain.TripError) error {
	status := TripErrorStatus(te)
	reqID, _ := c.Locals("requestid").(string)
	return c.Status(status).JSON(TripAPIError{
		APIError: APIError{
			Status:    status,
			Code:      te.Code,
			Message:   te.Message,
			RequestID: reqID,
		},
		Kind:        te.Kind,
		Recoverable: te.Recoverable,
		Stops:       te.Stops,
	})
}

// writeError maps core errors to responses.
func writeError(c *fiber.Ctx, err error) error {
	if te, ok := domain.AsTripError(err); ok {
		return errTrip(c, te)
	}
	switch {
	case errors.Is(err, usecases.ErrInvalidSession):
		return errBadRequest(c, "invalid trip session id")
	case errors.Is(err, usecases.ErrLocationNotFound):
		return errNotFound(c, "location not found")
	case errors.Is(err, domain.ErrRouteSuperseded):
		return newError(c, fiber.StatusConflict, "superseded", "a newer route request replaced this one")
	case errors.Is(err, context.DeadlineExceeded):
		return newError(c, fiber.StatusGatewayTimeout, "timeout", "request timed out")
	case errors.Is(err, context.Canceled):
		return errUnavailable(c, "request canceled")
	}
	LoggerFromCtx(c.UserContext()).Error("request failed", "path", c.Path(), "error", err)
	return errInternal(c, "internal error")
}
