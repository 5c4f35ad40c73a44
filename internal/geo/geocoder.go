package geo

import (
	"context"
	"errors"
	"fmt"

	"googlemaps.github.io/maps"

	"sos-service/internal/models"
)

var errNoAddress = errors.New("no address for coordinates")

// Geocoder turns coordinates into a human readable address.
type Geocoder interface {
	ReverseGeocode(ctx context.Context, c models.Coordinates) (string, error)
}

// GoogleGeocoder uses the Google Maps Geocoding API.
type GoogleGeocoder struct {
	client *maps.Client
}

func NewGoogleGeocoder(apiKey string) (*GoogleGeocoder, error) {
	client, err := maps.NewClient(maps.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create maps client: %w", err)
	}
	return &GoogleGeocoder{client: client}, nil
}

func (g *GoogleGeocoder) ReverseGeocode(ctx context.Context, c models.Coordinates) (string, error) {
	results, err := g.client.ReverseGeocode(ctx, &maps.GeocodingRequest{
		LatLng: &maps.LatLng{Lat: c.Latitude, Lng: c.Longitude},
	})
	if err != nil {
		return "", fmt.Errorf("reverse geocode failed: %w", err)
	}
	if len(results) == 0 || results[0].FormattedAddress == "" {
		return "", errNoAddress
	}
	return results[0].FormattedAddress, nil
}
