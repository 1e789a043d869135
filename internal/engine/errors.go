package engine

import (
	"fmt"
	"math"
)

// ErrorKind classifies a lookup failure. Kinds are part of the public API
// and appear verbatim in HTTP responses and metrics labels.
type ErrorKind string

const (
	ErrKindCoordinateOutOfRange ErrorKind = "coordinate_out_of_range"
	ErrKindCoordinateNotFinite  ErrorKind = "coordinate_not_finite"
	ErrKindCancelled            ErrorKind = "cancelled"
	ErrKindShuttingDown         ErrorKind = "shutting_down"
	ErrKindInternal             ErrorKind = "internal"
)

// Error is the only error type that crosses the engine boundary.
type Error struct {
	Kind   ErrorKind
	Detail string
}

func (e *Error) Error() string {
	if e.Detail == "" {
		return string(e.Kind)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Detail)
}

// Coordinate bounds covering the US states and territories, inclusive.
const (
	MinLat = 18.0
	MaxLat = 72.0
	MinLng = -180.0
	MaxLng = -65.0
)

// validateCoordinate checks finiteness before range so that NaN inputs are
// reported as not finite rather than out of range.
func validateCoordinate(lat, lng float64) *Error {
	if !isFinite(lat) || !isFinite(lng) {
		return &Error{Kind: ErrKindCoordinateNotFinite, Detail: fmt.Sprintf("lat=%v lng=%v", lat, lng)}
	}
	if lat < MinLat || lat > MaxLat || lng < MinLng || lng > MaxLng {
		return &Error{
			Kind:   ErrKindCoordinateOutOfRange,
			Detail: fmt.Sprintf("lat must be in [%g, %g] and lng in [%g, %g], got (%g, %g)", MinLat, MaxLat, MinLng, MaxLng, lat, lng),
		}
	}
	return nil
}

func isFinite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
