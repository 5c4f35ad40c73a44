package models

import (
	"time"

	"github.com/google/uuid"
)

// Coordinates is a single latitude/longitude snapshot.
type Coordinates struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Valid reports whether the pair lies within WGS84 ranges.
func (c Coordinates) Valid() bool {
	return c.Latitude >= -90 && c.Latitude <= 90 && c.Longitude >= -180 && c.Longitude <= 180
}

// Alert is one SOS emergency request. Only the resolution fields change after insert.
type Alert struct {
	ID          uuid.UUID  `json:"id"`
	UserID      string     `json:"user_id"`
	LocationLat *float64   `json:"location_lat"`
	LocationLng *float64   `json:"location_lng"`
	CreatedAt   time.Time  `json:"created_at"`
	Resolved    bool       `json:"resolved"`
	ResolvedAt  *time.Time `json:"resolved_at"`

	// Reporter is filled by reads that join profiles.
	Reporter *Reporter `json:"profiles,omitempty"`
}

// Reporter is the joined slice of a profile shown next to an alert.
type Reporter struct {
	FullName    *string `json:"full_name"`
	PhoneNumber *string `json:"phone_number"`
}

// Coordinates returns the alert location, or nil when it was not captured.
func (a Alert) Coordinates() *Coordinates {
	if a.LocationLat == nil || a.LocationLng == nil {
		return nil
	}
	return &Coordinates{Latitude: *a.LocationLat, Longitude: *a.LocationLng}
}

// NewAlert is the insert shape: created_at and resolved are defaulted by the table.
type NewAlert struct {
	UserID      string
	LocationLat *float64
	LocationLng *float64
}

// NewAlertAt builds the insert shape for a reporter and optional location.
func NewAlertAt(userID string, c *Coordinates) NewAlert {
	na := NewAlert{UserID: userID}
	if c != nil {
		lat, lng := c.Latitude, c.Longitude
		na.LocationLat = &lat
		na.LocationLng = &lng
	}
	return na
}
