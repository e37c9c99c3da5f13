package weather

import (
	"context"
)

// CurrentProvider fetches the observed weather for a coordinate pair.
type CurrentProvider interface {
	Current(ctx context.Context, lat, lon float64) (Snapshot, error)
}

// ForecastProvider fetches the short-term forecast for a coordinate pair.
type ForecastProvider interface {
	Forecast(ctx context.Context, lat, lon float64) (Forecast, error)
}

// AlertProvider fetches official severe-weather alerts for a coordinate pair.
type AlertProvider interface {
	Alerts(ctx context.Context, lat, lon float64) ([]Alert, error)
}

// Client is the full set of weather collaborators the monitoring core
// consumes. Implementations are injected; the core never talks HTTP itself.
type Client interface {
	CurrentProvider
	ForecastProvider
	AlertProvider
}
