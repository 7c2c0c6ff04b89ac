package domain

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorKind groups trip errors by how they propagate.
type ErrorKind string

const (
	KindValidation ErrorKind = "validation"
	KindCapacity   ErrorKind = "capacity"
	KindDuplicate  ErrorKind = "duplicate"
	KindNetwork    ErrorKind = "network"
	KindService    ErrorKind = "service"
	KindStorage    ErrorKind = "storage"
)

// Routing service status codes.
const (
	StatusOK                   = "OK"
	StatusZeroResults          = "ZERO_RESULTS"
	StatusNotFound             = "NOT_FOUND"
	StatusMaxWaypointsExceeded = "MAX_WAYPOINTS_EXCEEDED"
	StatusMaxRouteLength       = "MAX_ROUTE_LENGTH_EXCEEDED"
	StatusInvalidRequest       = "INVALID_REQUEST"
	StatusRequestDenied        = "REQUEST_DENIED"
	StatusOverQueryLimit       = "OVER_QUERY_LIMIT"
	StatusUnknownError         = "UNKNOWN_ERROR"

	// Platform load failures reported by the routing provider.
	StatusRefererNotAllowed = "RefererNotAllowedMapError"
	StatusInvalidKey        = "InvalidKeyMapError"
	StatusAPINotActivated   = "ApiNotActivatedMapError"
	StatusAPITargetBlocked  = "ApiTargetBlockedMapError"
	StatusMissingKey        = "MissingKeyMapError"
)

// Codes for errors raised inside the trip core.
const (
	CodeTimeout            = "TIMEOUT"
	CodeTransport          = "TRANSPORT"
	CodeEmptyTrip          = "EMPTY_TRIP"
	CodeMissingCoordinates = "MISSING_COORDINATES"
	CodeInvalidOrigin      = "INVALID_ORIGIN"
	CodeTooManyWaypoints   = "TOO_MANY_WAYPOINTS"
	CodeAlreadyInTrip      = "ALREADY_IN_TRIP"
	CodeMaximumReached     = "MAXIMUM_REACHED"
	CodeStorageCorrupt     = "CORRUPT"
	CodeStorageInvalid     = "SCHEMA_INVALID"
	CodeStorageWrite       = "WRITE_FAILED"
	CodeStorageRead        = "READ_FAILED"
	CodeStorageUnsupported = "UNSUPPORTED_VERSION"
)

// ErrRouteSuperseded is returned for a routing result whose request was
// replaced by a newer one before it resolved.
var ErrRouteSuperseded = errors.New("route request superseded")

// TripError is the structured, user-presentable error of the trip core.
type TripError struct {
	Kind        ErrorKind `json:"kind"`
	Code        string    `json:"code"`
	Message     string    `json:"message"`
	Recoverable bool      `json:"recoverable"`
	Stops       []string  `json:"stops,omitempty"`
	Err         error     `json:"-"`
}

func (e *TripError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s/%s: %s: %v", e.Kind, e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s/%s: %s", e.Kind, e.Code, e.Message)
}

func (e *TripError) Unwrap() error { return e.Err }

// AsTripError extracts a *TripError from err.
func AsTripError(err error) (*TripError, bool) {
	var te *TripError
	if errors.As(err, &te) {
		return te, true
	}
	return nil, false
}

// IsKind reports whether err is a TripError of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	te, ok := AsTripError(err)
	return ok && te.Kind == kind
}

// NewValidationError builds a ValidationError, optionally naming offending stops.
func NewValidationError(code, msg string, stops ...string) *TripError {
	return &TripError{Kind: KindValidation, Code: code, Message: msg, Recoverable: true, Stops: stops}
}

// MissingCoordinatesError names every stop lacking valid coordinates.
func MissingCoordinatesError(names []string) *TripError {
	msg := fmt.Sprintf("These stops have no valid location: %s", strings.Join(names, ", "))
	return NewValidationError(CodeMissingCoordinates, msg, names...)
}

// NewCapacityError is returned when the trip is full.
func NewCapacityError(max int) *TripError {
	return &TripError{
		Kind:        KindCapacity,
		Code:        CodeMaximumReached,
		Message:     fmt.Sprintf("Maximum of %d stops reached", max),
		Recoverable: true,
	}
}

// NewDuplicateError is returned when the location is already a stop.
func NewDuplicateError(name string) *TripError {
	return &TripError{
		Kind:        KindDuplicate,
		Code:        CodeAlreadyInTrip,
		Message:     fmt.Sprintf("%s is already in your trip", name),
		Recoverable: true,
		Stops:       []string{name},
	}
}

// NewNetworkError wraps a transport failure.
func NewNetworkError(code string, err error) *TripError {
	msg := "Could not reach the routing service. Check your connection and try again."
	if code == CodeTimeout {
		msg = "The routing service took too long to respond. Please try again."
	}
	return &TripError{Kind: KindNetwork, Code: code, Message: msg, Recoverable: true, Err: err}
}

// NewStorageError wraps a durable storage failure.
func NewStorageError(code string, err error) *TripError {
	return &TripError{
		Kind:        KindStorage,
		Code:        code,
		Message:     "Saved trip could not be used",
		Recoverable: true,
		Err:         err,
	}
}

type serviceStatus struct {
	message     string
	recoverable bool
}

var serviceStatuses = map[string]serviceStatus{
	StatusZeroResults:          {"No route could be found between these locations.", true},
	StatusNotFound:             {"One or more locations could not be found by the routing service.", true},
	StatusMaxWaypointsExceeded: {"Too many stops for a single route. Remove some stops and try again.", true},
	StatusMaxRouteLength:       {"This route is too long to calculate. Try fewer or closer stops.", true},
	StatusInvalidRequest:       {"The route request was invalid.", false},
	StatusRequestDenied:        {"The routing service denied the request.", false},
	StatusOverQueryLimit:       {"Too many route requests. Please wait a moment and try again.", true},
	StatusUnknownError:         {"The routing service had a problem. Please try again.", true},
	StatusRefererNotAllowed:    {"Maps are not enabled for this site.", false},
	StatusInvalidKey:           {"The maps API key is invalid.", false},
	StatusAPINotActivated:      {"The routing API is not activated for this key.", false},
	StatusAPITargetBlocked:     {"The maps API key is not authorized for routing.", false},
	StatusMissingKey:           {"The maps API key is missing.", false},
}

// NewServiceError classifies a non-OK routing service status. Unrecognised
// statuses are treated as UNKNOWN_ERROR.
func NewServiceError(status, detail string) *TripError {
	s, ok := serviceStatuses[status]
	if !ok {
		s = serviceStatuses[StatusUnknownError]
	}
	te := &TripError{Kind: KindService, Code: status, Message: s.message, Recoverable: s.recoverable}
	if detail != "" {
		te.Err = errors.New(detail)
	}
	return te
}
