package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/dopplertower/weather-agent/internal/weather"
)

// OpenWeatherProvider fetches current conditions and the 3-hourly forecast
// from OpenWeatherMap.
type OpenWeatherProvider struct {
	name        string
	apiKey      string
	currentURL  string
	forecastURL string
	client      *resilientClient
}

func NewOpenWeatherProvider(client *http.Client, apiKey string) *OpenWeatherProvider {
	return &OpenWeatherProvider{
		name:        "openweathermap",
		apiKey:      apiKey,
		currentURL:  "https://api.openweathermap.org/data/2.5/weather",
		forecastURL: "https://api.openweathermap.org/data/2.5/forecast",
		client:      newResilientClient(client, "openweather"),
	}
}

func (p *OpenWeatherProvider) Name() string {
	return p.name
}

// openWeatherEntry is the shared shape of a current-weather response and one
// forecast list item.
type openWeatherEntry struct {
	Dt   int64 `json:"dt"`
	Main struct {
		Temp     float64 `json:"temp"`
		Humidity float64 `json:"humidity"`
	} `json:"main"`
	Wind struct {
		Speed float64 `json:"speed"`
	} `json:"wind"`
	Rain struct {
		OneH   float64 `json:"1h"`
		ThreeH float64 `json:"3h"`
	} `json:"rain"`
	Weather []struct {
		Main string `json:"main"`
	} `json:"weather"`
}

func (e openWeatherEntry) toSnapshot() weather.Snapshot {
	ts := time.Unix(e.Dt, 0).UTC()
	if e.Dt == 0 {
		ts = time.Now().UTC()
	}

	precip := e.Rain.OneH
	if precip == 0 {
		precip = e.Rain.ThreeH
	}

	return weather.Snapshot{
		Timestamp:   ts,
		Temperature: e.Main.Temp,
		Humidity:    e.Main.Humidity,
		WindSpeed:   e.Wind.Speed,
		PrecipMM:    precip,
		Condition:   mapOpenWeatherCondition(e.Weather),
	}
}

func (p *OpenWeatherProvider) Current(ctx context.Context, lat, lon float64) (weather.Snapshot, error) {
	if p.apiKey == "" {
		return weather.Snapshot{}, fmt.Errorf("openweather api key is not configured")
	}

	resp, err := p.client.Get(ctx, p.buildRequest(p.currentURL, lat, lon))
	if err != nil {
		return weather.Snapshot{}, err
	}
	defer resp.Body.Close()

	var payload openWeatherEntry
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return weather.Snapshot{}, err
	}

	return payload.toSnapshot(), nil
}

func (p *OpenWeatherProvider) Forecast(ctx context.Context, lat, lon float64) (weather.Forecast, error) {
	if p.apiKey == "" {
		return nil, fmt.Errorf("openweather api key is not configured")
	}

	resp, err := p.client.Get(ctx, p.buildRequest(p.forecastURL, lat, lon))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var payload struct {
		List []openWeatherEntry `json:"list"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, err
	}

	forecast := make(weather.Forecast, 0, len(payload.List))
	for _, item := range payload.List {
		forecast = append(forecast, item.toSnapshot())
	}
	return forecast, nil
}

func (p *OpenWeatherProvider) buildRequest(baseURL string, lat, lon float64) func() (*http.Request, error) {
	return func() (*http.Request, error) {
		values := url.Values{}
		values.Set("appid", p.apiKey)
		values.Set("units", "metric")
		values.Set("lat", fmt.Sprintf("%f", lat))
		values.Set("lon", fmt.Sprintf("%f", lon))

		u := fmt.Sprintf("%s?%s", baseURL, values.Encode())
		req, err := http.NewRequest(http.MethodGet, u, nil)
		if err != nil {
			return nil, err
		}
		return req, nil
	}
}

func mapOpenWeatherCondition(items []struct {
	Main string `json:"main"`
}) weather.Condition {
	if len(items) == 0 {
		return weather.ConditionUnknown
	}
	switch items[0].Main {
	case "Clear":
		return weather.ConditionClear
	case "Clouds":
		return weather.ConditionCloudy
	case "Rain", "Drizzle":
		return weather.ConditionRain
	case "Snow":
		return weather.ConditionSnow
	case "Thunderstorm":
		return weather.ConditionStorm
	case "Mist", "Fog", "Haze":
		return weather.ConditionMist
	default:
		return weather.ConditionUnknown
	}
}
