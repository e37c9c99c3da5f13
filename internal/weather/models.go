package weather

import (
	"time"
)

// Condition represents a normalized high-level weather condition.
type Condition string

const (
	ConditionUnknown Condition = "unknown"
	ConditionClear   Condition = "clear"
	ConditionCloudy  Condition = "cloudy"
	ConditionRain    Condition = "rain"
	ConditionSnow    Condition = "snow"
	ConditionStorm   Condition = "storm"
	ConditionMist    Condition = "mist"
)

// Label returns the human-readable name used in alert messages.
func (c Condition) Label() string {
	switch c {
	case ConditionStorm:
		return "Thunderstorm"
	case ConditionSnow:
		return "Snow"
	case ConditionRain:
		return "Rain"
	case ConditionClear:
		return "Clear skies"
	case ConditionCloudy:
		return "Clouds"
	case ConditionMist:
		return "Mist"
	default:
		return "Unknown conditions"
	}
}

// Snapshot is the normalized weather view at a point in time. It serves both
// as the observed current weather and as a single forecast entry, in which
// case Timestamp points into the future.
type Snapshot struct {
	Timestamp   time.Time `json:"timestamp"` // always UTC
	Temperature float64   `json:"temperatureC"`
	Humidity    float64   `json:"humidityPercent"`
	WindSpeed   float64   `json:"windSpeedMs"`
	PrecipMM    float64   `json:"precipMmPerHour"`
	Condition   Condition `json:"condition"`
}

// Forecast is a short-term forecast as a slice of snapshots ordered by
// Timestamp ascending.
type Forecast []Snapshot

// Alert is an official severe-weather alert issued by a weather authority,
// passed through verbatim.
type Alert struct {
	Event       string `json:"event"`
	Description string `json:"description"`
}
