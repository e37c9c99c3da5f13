package weather

import (
	"context"

	"github.com/rs/zerolog"
)

// Service composes individual providers into the Client contract. Current
// conditions and forecasts come from one upstream, official alerts usually
// from another; the monitoring core only ever sees the combined view.
type Service struct {
	current  CurrentProvider
	forecast ForecastProvider
	alerts   AlertProvider
	logger   zerolog.Logger
}

// NewService creates a Service. The alerts provider may be nil, in which case
// Alerts always reports an empty list.
func NewService(current CurrentProvider, forecast ForecastProvider, alerts AlertProvider, logger zerolog.Logger) *Service {
	return &Service{
		current:  current,
		forecast: forecast,
		alerts:   alerts,
		logger:   logger,
	}
}

func (s *Service) Current(ctx context.Context, lat, lon float64) (Snapshot, error) {
	return s.current.Current(ctx, lat, lon)
}

func (s *Service) Forecast(ctx context.Context, lat, lon float64) (Forecast, error) {
	return s.forecast.Forecast(ctx, lat, lon)
}

func (s *Service) Alerts(ctx context.Context, lat, lon float64) ([]Alert, error) {
	if s.alerts == nil {
		return nil, nil
	}
	alerts, err := s.alerts.Alerts(ctx, lat, lon)
	if err != nil {
		// Alerts are an enrichment on top of threshold detection; a failing
		// alerts upstream must not block the rest of the poll.
		s.logger.Warn().Err(err).Float64("lat", lat).Float64("lon", lon).Msg("alerts fetch failed")
		return nil, err
	}
	return alerts, nil
}
