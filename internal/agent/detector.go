package agent

import (
	"fmt"
	"math"
	"time"
	"unicode/utf8"

	"github.com/dopplertower/weather-agent/internal/weather"
)

// forecastLookahead bounds how many future forecast entries are inspected per
// poll. With 3-hourly entries this covers roughly the next nine hours.
const forecastLookahead = 3

// alertMessageLimit bounds the length of an official alert description
// embedded in a warning message.
const alertMessageLimit = 100

// Detect computes candidate warnings from a session's baseline, the freshly
// fetched current and forecast weather, and any official alerts. It is a pure
// function over already-fetched data: no I/O, no side effects.
//
// Output ordering is deterministic: the baseline temperature delta first,
// forecast-derived warnings in forecast-chronological order, official alerts
// verbatim at the end.
func Detect(sess Session, current weather.Snapshot, forecast weather.Forecast, alerts []weather.Alert, th Thresholds, now time.Time) []Warning {
	var warnings []Warning

	if w, ok := baselineDelta(sess.Baseline, current, th); ok {
		warnings = append(warnings, w)
	}

	warnings = append(warnings, upcomingChanges(current, forecast, th, now)...)

	for _, a := range alerts {
		warnings = append(warnings, Warning{
			Type:     WarningSevereAlert,
			Message:  fmt.Sprintf("%s: %s", a.Event, truncate(a.Description, alertMessageLimit)),
			Severity: SeverityHigh,
			Source:   SourceOfficialAlert,
		})
	}

	return warnings
}

func baselineDelta(baseline, current weather.Snapshot, th Thresholds) (Warning, bool) {
	diff := math.Abs(current.Temperature - baseline.Temperature)
	if diff < th.TempChangeC {
		return Warning{}, false
	}
	return Warning{
		Type: WarningTemperatureChange,
		Message: fmt.Sprintf("Temperature changed by %.1f°C since monitoring started (%.1f°C -> %.1f°C)",
			diff, baseline.Temperature, current.Temperature),
		Severity: SeverityMedium,
		Source:   SourceThreshold,
	}, true
}

// upcomingChanges scans the next few strictly-future forecast entries for
// temperature jumps relative to current conditions, rain starting, high wind,
// and transitions into severe conditions.
func upcomingChanges(current weather.Snapshot, forecast weather.Forecast, th Thresholds, now time.Time) []Warning {
	var warnings []Warning

	examined := 0
	for _, entry := range forecast {
		if !entry.Timestamp.After(now) {
			continue
		}
		if examined >= forecastLookahead {
			break
		}
		examined++

		label := entry.Timestamp.Format("15:04")

		delta := entry.Temperature - current.Temperature
		if math.Abs(delta) >= th.TempChangeC {
			direction := "rise"
			if delta < 0 {
				direction = "drop"
			}
			warnings = append(warnings, Warning{
				Type: WarningUpcomingTemp,
				Message: fmt.Sprintf("Temperature will %s by %.1f°C by %s (%.1f°C -> %.1f°C)",
					direction, math.Abs(delta), label, current.Temperature, entry.Temperature),
				Severity: SeverityMedium,
				Source:   SourceThreshold,
				OccursAt: entry.Timestamp,
			})
		}

		if entry.PrecipMM > th.PrecipitationMMH && current.Condition != weather.ConditionRain {
			warnings = append(warnings, Warning{
				Type:     WarningRainStarting,
				Message:  fmt.Sprintf("Rain expected around %s (%.1fmm/h predicted)", label, entry.PrecipMM),
				Severity: SeverityMedium,
				Source:   SourceThreshold,
				OccursAt: entry.Timestamp,
			})
		}

		if entry.WindSpeed > th.WindSpeedMPS {
			warnings = append(warnings, Warning{
				Type: WarningHighWind,
				Message: fmt.Sprintf("Strong winds expected around %s (%.1f m/s, about %.1f km/h)",
					label, entry.WindSpeed, entry.WindSpeed*3.6),
				Severity: SeverityMedium,
				Source:   SourceThreshold,
				OccursAt: entry.Timestamp,
			})
		}

		if entry.Condition != current.Condition &&
			(entry.Condition == weather.ConditionStorm || entry.Condition == weather.ConditionSnow) {
			warnings = append(warnings, Warning{
				Type:     WarningSevereWeather,
				Message:  fmt.Sprintf("%s expected around %s", entry.Condition.Label(), label),
				Severity: SeverityHigh,
				Source:   SourceThreshold,
				OccursAt: entry.Timestamp,
			})
		}
	}

	return warnings
}

func truncate(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	runes := []rune(s)
	return string(runes[:limit]) + "..."
}
