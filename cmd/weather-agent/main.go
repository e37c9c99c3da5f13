package main

import (
	"context"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/dopplertower/weather-agent/internal/agent"
	httpapi "github.com/dopplertower/weather-agent/internal/api/http"
	"github.com/dopplertower/weather-agent/internal/config"
	"github.com/dopplertower/weather-agent/internal/geocode"
	"github.com/dopplertower/weather-agent/internal/notify"
	"github.com/dopplertower/weather-agent/internal/observability"
	"github.com/dopplertower/weather-agent/internal/scheduler"
	"github.com/dopplertower/weather-agent/internal/store"
	"github.com/dopplertower/weather-agent/internal/weather"
	"github.com/dopplertower/weather-agent/internal/weather/providers"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		// Logger is not configured yet, so fall back to stderr directly.
		fallback := zerolog.New(os.Stderr)
		fallback.Fatal().Err(err).Msg("failed to load config")
	}

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	var out io.Writer = os.Stdout
	if cfg.LogPretty {
		out = zerolog.ConsoleWriter{Out: os.Stdout}
	}
	log := zerolog.New(out).Level(level).With().Timestamp().Logger()

	clock := clockwork.NewRealClock()
	metrics := observability.NewMetrics()

	db, err := store.Open(cfg.DBPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.DBPath).Msg("failed to open database")
	}
	defer db.Close()

	// Shared HTTP client for outbound provider calls.
	httpClient := &http.Client{
		Timeout: cfg.HTTPTimeout,
	}

	// Weather providers with resilience (backoff + circuit breaker).
	openWeather := providers.NewOpenWeatherProvider(httpClient, cfg.OpenWeatherAPIKey)
	var alertProvider weather.AlertProvider
	if cfg.WeatherAPIKey != "" {
		alertProvider = providers.NewWeatherAPIAlertProvider(httpClient, cfg.WeatherAPIKey)
	}
	service := weather.NewService(openWeather, openWeather, alertProvider, log)

	// Reverse geocoding: Google when its key is set, OpenCage otherwise.
	// Either way lookups go through an LRU cache since coordinates repeat
	// every polling cycle.
	var geocoder agent.Geocoder
	if cfg.GoogleAPIKey != "" {
		geocoder = geocode.NewGoogleClient(cfg.GoogleAPIKey)
	} else {
		geocoder = geocode.NewOpenCageClient(httpClient, cfg.OpenCageAPIKey)
	}
	geocoder = geocode.NewCachedGeocoder(geocoder, cfg.GeocodeCacheSize)

	registry := agent.NewRegistry(db, service, geocoder, clock, log, cfg.AlertCooldown)

	// Restore sessions that were active before the last shutdown.
	reloadCtx, cancelReload := context.WithTimeout(context.Background(), 30*time.Second)
	if err := registry.Reload(reloadCtx); err != nil {
		log.Error().Err(err).Msg("failed to reload persisted sessions")
	}
	cancelReload()
	log.Info().Int("sessions", registry.ActiveCount()).Msg("session registry ready")

	dispatcher := agent.NewDispatcher(
		db,
		notify.NewEmailNotifier(cfg.SMTP, log),
		notify.NewWebhookPushSender(httpClient, cfg.PushWebhookURL, log),
		notify.NewFileAlertLog(cfg.AlertLogDir),
		clock,
		log,
		metrics,
	)

	monitor := scheduler.NewMonitor(scheduler.Config{
		Interval:     cfg.CheckInterval,
		ErrorBackoff: cfg.ErrorBackoff,
		Concurrency:  cfg.MonitorConcurrency,
		Thresholds:   cfg.Thresholds,
		FetchTimeout: cfg.HTTPTimeout,
	}, registry, service, dispatcher, clock, log, metrics)

	if err := monitor.Start(); err != nil {
		log.Fatal().Err(err).Msg("failed to start monitoring")
	}
	defer monitor.Stop()

	// Prometheus endpoint on its own listener, away from the API port.
	if cfg.MetricsAddr != "" {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.Handler())
			if err := http.ListenAndServe(cfg.MetricsAddr, mux); err != nil {
				log.Error().Err(err).Msg("metrics server stopped")
			}
		}()
	}

	app := fiber.New(fiber.Config{
		AppName:               "weather-agent",
		DisableStartupMessage: true,
		ReadTimeout:           10 * time.Second,
		WriteTimeout:          10 * time.Second,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
			}
			return c.Status(code).JSON(fiber.Map{
				"error":   true,
				"message": err.Error(),
			})
		},
	})

	app.Use(logger.New())
	app.Use(recover.New())

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "ok",
			"service": "weather-agent",
		})
	})

	httpapi.RegisterRoutes(app, httpapi.Deps{
		Registry:        registry,
		History:         db,
		Monitor:         monitor,
		DefaultDuration: cfg.DefaultDuration,
	})

	go func() {
		if err := app.Listen(":" + cfg.Port); err != nil {
			log.Error().Err(err).Msg("fiber server stopped")
		}
	}()
	log.Info().Str("port", cfg.Port).Msg("weather agent listening")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-ctx.Done()
	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("error during shutdown")
	}
}
