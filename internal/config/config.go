package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"github.com/dopplertower/weather-agent/internal/agent"
	"github.com/dopplertower/weather-agent/internal/notify"
)

type AppConfig struct {
	Port string

	// MetricsAddr is the listen address for the Prometheus endpoint.
	// Empty disables the metrics listener.
	MetricsAddr string

	LogLevel string

	// LogPretty switches from JSON to human-readable console output.
	LogPretty bool

	// DBPath is the sqlite file holding sessions and alert history.
	DBPath string

	OpenWeatherAPIKey string
	WeatherAPIKey     string

	// Reverse geocoding. Google is used when its key is set, OpenCage
	// otherwise; with neither key sessions fall back to coordinate labels.
	OpenCageAPIKey   string
	GoogleAPIKey     string
	GeocodeCacheSize int

	// CheckInterval controls how often active sessions are polled.
	CheckInterval time.Duration

	// ErrorBackoff is the extra sleep after a failed polling cycle.
	ErrorBackoff time.Duration

	// MonitorConcurrency bounds the per-session worker pool.
	MonitorConcurrency int

	// DefaultDuration applies when a registration names no duration.
	DefaultDuration time.Duration

	// AlertCooldown is the minimum gap between alerts to one user.
	AlertCooldown time.Duration

	Thresholds agent.Thresholds

	HTTPTimeout time.Duration

	// AlertLogDir holds the per-user alert log files.
	AlertLogDir string

	SMTP notify.SMTPConfig

	PushWebhookURL string
}

// Load reads configuration from environment with sensible defaults.
func Load() (*AppConfig, error) {
	if err := godotenv.Load(); err != nil {
		log.Printf("INFO: No .env file found or error loading it: %v", err)
	}
	cfg := &AppConfig{}

	cfg.Port = getenvDefault("PORT", "8080")
	cfg.MetricsAddr = getenvDefault("METRICS_ADDR", ":9091")
	cfg.LogLevel = getenvDefault("LOG_LEVEL", "info")
	cfg.LogPretty = getenvDefault("LOG_PRETTY", "false") == "true"
	cfg.DBPath = getenvDefault("DB_PATH", "weather_agent.db")

	cfg.OpenWeatherAPIKey = os.Getenv("OPENWEATHER_API_KEY")
	cfg.WeatherAPIKey = os.Getenv("WEATHERAPI_API_KEY")
	cfg.OpenCageAPIKey = os.Getenv("OPENCAGE_API_KEY")
	cfg.GoogleAPIKey = os.Getenv("GOOGLE_GEOCODING_API_KEY")
	cfg.GeocodeCacheSize = getenvInt("GEOCODE_CACHE_SIZE", 256)

	var err error
	if cfg.CheckInterval, err = getenvDuration("CHECK_INTERVAL", "300s"); err != nil {
		return nil, err
	}
	if cfg.ErrorBackoff, err = getenvDuration("ERROR_BACKOFF", "60s"); err != nil {
		return nil, err
	}
	cfg.MonitorConcurrency = getenvInt("MONITOR_CONCURRENCY", 1)
	if cfg.DefaultDuration, err = getenvDuration("DEFAULT_SESSION_DURATION", "6h"); err != nil {
		return nil, err
	}
	if cfg.AlertCooldown, err = getenvDuration("ALERT_COOLDOWN", "30m"); err != nil {
		return nil, err
	}
	if cfg.HTTPTimeout, err = getenvDuration("HTTP_TIMEOUT", "30s"); err != nil {
		return nil, err
	}

	cfg.Thresholds = agent.DefaultThresholds()
	cfg.Thresholds.TempChangeC = getenvFloat("THRESHOLD_TEMP_CHANGE", cfg.Thresholds.TempChangeC)
	cfg.Thresholds.PrecipitationMMH = getenvFloat("THRESHOLD_PRECIPITATION", cfg.Thresholds.PrecipitationMMH)
	cfg.Thresholds.WindSpeedMPS = getenvFloat("THRESHOLD_WIND_SPEED", cfg.Thresholds.WindSpeedMPS)

	cfg.AlertLogDir = getenvDefault("ALERT_LOG_DIR", "alerts")

	cfg.SMTP = notify.SMTPConfig{
		Host:     os.Getenv("SMTP_HOST"),
		Port:     getenvInt("SMTP_PORT", 587),
		Username: os.Getenv("SMTP_USERNAME"),
		Password: os.Getenv("SMTP_PASSWORD"),
		From:     os.Getenv("SMTP_FROM"),
	}

	cfg.PushWebhookURL = os.Getenv("PUSH_WEBHOOK_URL")

	return cfg, nil
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		n, err := strconv.Atoi(v)
		if err == nil {
			return n
		}
	}
	return def
}

func getenvFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err == nil {
			return f
		}
	}
	return def
}

func getenvDuration(key, def string) (time.Duration, error) {
	d, err := time.ParseDuration(getenvDefault(key, def))
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}
