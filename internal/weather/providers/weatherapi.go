package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/dopplertower/weather-agent/internal/weather"
)

// WeatherAPIAlertProvider fetches official severe-weather alerts from
// WeatherAPI.com.
type WeatherAPIAlertProvider struct {
	name    string
	apiKey  string
	baseURL string
	client  *resilientClient
}

func NewWeatherAPIAlertProvider(client *http.Client, apiKey string) *WeatherAPIAlertProvider {
	return &WeatherAPIAlertProvider{
		name:    "weatherapi",
		apiKey:  apiKey,
		baseURL: "https://api.weatherapi.com/v1/alerts.json",
		client:  newResilientClient(client, "weatherapi"),
	}
}

func (p *WeatherAPIAlertProvider) Name() string {
	return p.name
}

func (p *WeatherAPIAlertProvider) Alerts(ctx context.Context, lat, lon float64) ([]weather.Alert, error) {
	if p.apiKey == "" {
		return nil, fmt.Errorf("weatherapi api key is not configured")
	}

	buildRequest := func() (*http.Request, error) {
		values := url.Values{}
		values.Set("key", p.apiKey)
		values.Set("q", fmt.Sprintf("%f,%f", lat, lon))

		u := fmt.Sprintf("%s?%s", p.baseURL, values.Encode())
		req, err := http.NewRequest(http.MethodGet, u, nil)
		if err != nil {
			return nil, err
		}
		return req, nil
	}

	resp, err := p.client.Get(ctx, buildRequest)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var payload struct {
		Alerts struct {
			Alert []struct {
				Event    string `json:"event"`
				Headline string `json:"headline"`
				Desc     string `json:"desc"`
			} `json:"alert"`
		} `json:"alerts"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, err
	}

	alerts := make([]weather.Alert, 0, len(payload.Alerts.Alert))
	for _, a := range payload.Alerts.Alert {
		event := a.Event
		if event == "" {
			event = a.Headline
		}
		if event == "" {
			event = "Weather Alert"
		}
		alerts = append(alerts, weather.Alert{
			Event:       event,
			Description: a.Desc,
		})
	}
	return alerts, nil
}
