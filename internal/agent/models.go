package agent

import (
	"errors"
	"fmt"
	"time"

	"github.com/dopplertower/weather-agent/internal/weather"
)

var (
	// ErrInvalidCoordinates is returned when a registration carries
	// out-of-range latitude or longitude.
	ErrInvalidCoordinates = errors.New("invalid coordinates")

	// ErrBaselineFetch is returned when the baseline weather snapshot cannot
	// be captured at registration time.
	ErrBaselineFetch = errors.New("baseline weather fetch failed")

	// ErrNotMonitored is returned when no active session exists for a user.
	ErrNotMonitored = errors.New("user is not monitored")
)

// Severity is the ordinal rank of a warning: low < medium < high.
type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// Rank maps a severity to its ordinal value. Unknown severities rank as
// medium so a malformed value never silently drops below a user threshold.
func (s Severity) Rank() int {
	switch s {
	case SeverityLow:
		return 1
	case SeverityHigh:
		return 3
	default:
		return 2
	}
}

// Warning types emitted by the change detector.
const (
	WarningTemperatureChange = "temperature_change"
	WarningUpcomingTemp      = "upcoming_temp_change"
	WarningRainStarting      = "rain_starting"
	WarningHighWind          = "high_wind"
	WarningSevereWeather     = "severe_weather"
	WarningSevereAlert       = "severe_alert"
)

// Warning sources.
const (
	SourceThreshold     = "threshold"
	SourceOfficialAlert = "official_alert"
)

// Warning is a transient candidate alert produced by the detector before
// severity and cooldown filtering. It is never persisted directly.
type Warning struct {
	Type     string    `json:"type"`
	Message  string    `json:"message"`
	Severity Severity  `json:"severity"`
	Source   string    `json:"source"`
	OccursAt time.Time `json:"occurs_at,omitempty"` // set only for forecast-derived warnings
}

// NotificationPrefs selects delivery channels and the minimum severity a
// warning must have to be dispatched.
type NotificationPrefs struct {
	Email             bool     `json:"email"`
	Push              bool     `json:"push"`
	LogFile           bool     `json:"log_file"`
	SeverityThreshold Severity `json:"severity_threshold"`
}

// DefaultPrefs mirrors the registration defaults: push and file logging on,
// email only when an address is on file, medium severity floor.
func DefaultPrefs(email string) NotificationPrefs {
	return NotificationPrefs{
		Email:             email != "",
		Push:              true,
		LogFile:           true,
		SeverityThreshold: SeverityMedium,
	}
}

// Session is the canonical record of one user's active monitoring request.
// There is at most one session per user id.
type Session struct {
	UserID        string
	Email         string
	Lat           float64
	Lon           float64
	LocationName  string
	StartTime     time.Time
	EndTime       time.Time
	Baseline      weather.Snapshot
	LastCheck     time.Time
	LastAlertTime time.Time // zero value means no alert dispatched yet
	AlertCooldown time.Duration
	Prefs         NotificationPrefs
	AlertCount    int
}

// Expired reports whether the session's monitoring window has passed.
func (s Session) Expired(now time.Time) bool {
	return now.After(s.EndTime)
}

// Thresholds are the configured numeric boundaries for change detection.
type Thresholds struct {
	TempChangeC      float64
	PrecipitationMMH float64
	WindSpeedMPS     float64
}

// DefaultThresholds returns the stock detection thresholds.
func DefaultThresholds() Thresholds {
	return Thresholds{
		TempChangeC:      5,
		PrecipitationMMH: 0.5,
		WindSpeedMPS:     10,
	}
}

// HistoryRecord is one dispatched warning as persisted in alert history.
// Records capture intent to alert, not confirmed delivery.
type HistoryRecord struct {
	ID       int64     `json:"id"`
	UserID   string    `json:"user_id"`
	Type     string    `json:"type"`
	Message  string    `json:"message"`
	Severity Severity  `json:"severity"`
	SentAt   time.Time `json:"sent_at"`
}

// ValidateCoordinates checks latitude and longitude ranges.
func ValidateCoordinates(lat, lon float64) error {
	if lat < -90 || lat > 90 || lon < -180 || lon > 180 {
		return fmt.Errorf("%w: lat=%v lon=%v", ErrInvalidCoordinates, lat, lon)
	}
	return nil
}

// CoordinateLabel is the fallback location name when reverse geocoding fails.
func CoordinateLabel(lat, lon float64) string {
	return fmt.Sprintf("%.2f, %.2f", lat, lon)
}
