package geocode

import (
	"context"
	"fmt"

	"github.com/kelvins/geocoder"
)

// GoogleClient resolves coordinates via the Google Geocoding API. The
// underlying library keys itself through a package-level variable, so only
// one GoogleClient should exist per process.
type GoogleClient struct{}

func NewGoogleClient(apiKey string) *GoogleClient {
	geocoder.ApiKey = apiKey
	return &GoogleClient{}
}

func (c *GoogleClient) ReverseGeocode(_ context.Context, lat, lon float64) (string, error) {
	location := geocoder.Location{
		Latitude:  lat,
		Longitude: lon,
	}

	addresses, err := geocoder.GeocodingReverse(location)
	if err != nil {
		return "", fmt.Errorf("google reverse geocode: %w", err)
	}
	if len(addresses) == 0 {
		return "", nil
	}

	addr := addresses[0]
	if addr.City != "" && addr.Country != "" {
		return fmt.Sprintf("%s, %s", addr.City, addr.Country), nil
	}
	return addr.FormatAddress(), nil
}
