// Package geo takes the one-shot device position used to locate an alert.
package geo

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"sos-service/internal/models"
)

// ErrUnavailable marks a missing or unusable position. It never fails a workflow.
var ErrUnavailable = errors.New("geolocation unavailable")

// UnavailableWarning is the message surfaced to the reporter when no position was captured.
const UnavailableWarning = "Location Access Required: please enable location services for better assistance."

// Position error codes reported by the client, as the browser geolocation API names them.
const (
	CodePermissionDenied    = "PERMISSION_DENIED"
	CodePositionUnavailable = "POSITION_UNAVAILABLE"
	CodeTimeout             = "TIMEOUT"
	CodeUnsupported         = "UNSUPPORTED"
)

// Locator yields the current position once.
type Locator interface {
	Locate(ctx context.Context) (models.Coordinates, error)
}

// ReportedPosition is the result a client observed for its single position request.
type ReportedPosition struct {
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
	ErrorCode string   `json:"error_code,omitempty"`
}

func (r ReportedPosition) Locate(context.Context) (models.Coordinates, error) {
	if r.ErrorCode != "" {
		return models.Coordinates{}, fmt.Errorf("%w: %s", ErrUnavailable, strings.ToUpper(r.ErrorCode))
	}
	if r.Latitude == nil || r.Longitude == nil {
		return models.Coordinates{}, fmt.Errorf("%w: %s", ErrUnavailable, CodeUnsupported)
	}
	return models.Coordinates{Latitude: *r.Latitude, Longitude: *r.Longitude}, nil
}

// Snapshot is the outcome of a capture: coordinates, or a warning for the reporter.
type Snapshot struct {
	Coordinates *models.Coordinates `json:"coordinates"`
	Warning     string              `json:"warning,omitempty"`
	Err         error               `json:"-"`
}

// Capture asks the locator exactly once. Failures and out-of-range positions become a warning.
func Capture(ctx context.Context, l Locator) Snapshot {
	if l == nil {
		return Snapshot{Warning: UnavailableWarning, Err: fmt.Errorf("%w: %s", ErrUnavailable, CodeUnsupported)}
	}
	c, err := l.Locate(ctx)
	if err != nil {
		if !errors.Is(err, ErrUnavailable) {
			err = fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		return Snapshot{Warning: UnavailableWarning, Err: err}
	}
	if !c.Valid() {
		return Snapshot{
			Warning: UnavailableWarning,
			Err:     fmt.Errorf("%w: coordinates out of range (%f, %f)", ErrUnavailable, c.Latitude, c.Longitude),
		}
	}
	return Snapshot{Coordinates: &c}
}
