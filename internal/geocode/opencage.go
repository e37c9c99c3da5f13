package geocode

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
)

// OpenCageClient resolves coordinates to formatted place names via the
// OpenCage geocoding API.
type OpenCageClient struct {
	apiKey     string
	httpClient *http.Client
	baseURL    string
}

func NewOpenCageClient(client *http.Client, apiKey string) *OpenCageClient {
	return &OpenCageClient{
		apiKey:     apiKey,
		httpClient: client,
		baseURL:    "https://api.opencagedata.com/geocode/v1/json",
	}
}

// ReverseGeocode converts coordinates to a formatted place name. An empty
// result set yields an empty string with no error; callers decide the
// fallback.
func (c *OpenCageClient) ReverseGeocode(ctx context.Context, lat, lon float64) (string, error) {
	if c.apiKey == "" {
		return "", fmt.Errorf("opencage api key is not configured")
	}

	params := url.Values{}
	params.Set("q", fmt.Sprintf("%f,%f", lat, lon))
	params.Set("key", c.apiKey)
	params.Set("limit", "1")
	params.Set("no_annotations", "1")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("reverse geocode request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("opencage API error: status %d: %s", resp.StatusCode, body)
	}

	var payload struct {
		Results []struct {
			Formatted string `json:"formatted"`
		} `json:"results"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}

	if len(payload.Results) == 0 {
		return "", nil
	}
	return payload.Results[0].Formatted, nil
}
