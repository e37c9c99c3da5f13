package agent

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func gateSession(threshold Severity, lastAlert time.Time) Session {
	return Session{
		UserID:        "u1",
		AlertCooldown: 30 * time.Minute,
		LastAlertTime: lastAlert,
		Prefs: NotificationPrefs{
			SeverityThreshold: threshold,
		},
	}
}

func TestFilterWarningsEmptyInput(t *testing.T) {
	sess := gateSession(SeverityMedium, time.Time{})
	assert.Nil(t, FilterWarnings(sess, nil, detectNow))
}

func TestFilterWarningsFirstAlertPassesCooldown(t *testing.T) {
	sess := gateSession(SeverityMedium, time.Time{})
	in := []Warning{{Type: WarningHighWind, Severity: SeverityMedium}}

	out := FilterWarnings(sess, in, detectNow)
	require.Len(t, out, 1)
}

func TestFilterWarningsWithinCooldownSuppressed(t *testing.T) {
	sess := gateSession(SeverityMedium, detectNow.Add(-10*time.Minute))
	in := []Warning{
		{Type: WarningHighWind, Severity: SeverityMedium},
		{Type: WarningSevereAlert, Severity: SeverityHigh},
	}

	// The cooldown is uniform: even a high-severity warning is held back.
	assert.Nil(t, FilterWarnings(sess, in, detectNow))
}

func TestFilterWarningsAfterCooldownAllowed(t *testing.T) {
	sess := gateSession(SeverityMedium, detectNow.Add(-35*time.Minute))
	in := []Warning{{Type: WarningHighWind, Severity: SeverityMedium}}

	out := FilterWarnings(sess, in, detectNow)
	require.Len(t, out, 1)
}

func TestFilterWarningsCooldownBoundaryInclusive(t *testing.T) {
	sess := gateSession(SeverityMedium, detectNow.Add(-30*time.Minute))
	in := []Warning{{Type: WarningHighWind, Severity: SeverityMedium}}

	out := FilterWarnings(sess, in, detectNow)
	require.Len(t, out, 1)
}

func TestFilterWarningsSeverityFloor(t *testing.T) {
	sess := gateSession(SeverityHigh, time.Time{})
	in := []Warning{
		{Type: WarningTemperatureChange, Severity: SeverityMedium},
		{Type: WarningSevereAlert, Severity: SeverityHigh},
		{Type: WarningRainStarting, Severity: SeverityLow},
	}

	out := FilterWarnings(sess, in, detectNow)
	require.Len(t, out, 1)
	assert.Equal(t, WarningSevereAlert, out[0].Type)
}

func TestFilterWarningsAllBelowFloor(t *testing.T) {
	sess := gateSession(SeverityHigh, time.Time{})
	in := []Warning{{Type: WarningTemperatureChange, Severity: SeverityMedium}}

	assert.Nil(t, FilterWarnings(sess, in, detectNow))
}

func TestFilterWarningsUnknownSeverityRanksMedium(t *testing.T) {
	sess := gateSession(SeverityMedium, time.Time{})
	in := []Warning{{Type: WarningTemperatureChange, Severity: Severity("bogus")}}

	out := FilterWarnings(sess, in, detectNow)
	require.Len(t, out, 1)
}

func TestFilterWarningsPreservesOrder(t *testing.T) {
	sess := gateSession(SeverityLow, time.Time{})
	in := []Warning{
		{Type: WarningTemperatureChange, Severity: SeverityMedium},
		{Type: WarningHighWind, Severity: SeverityMedium},
		{Type: WarningSevereAlert, Severity: SeverityHigh},
	}

	out := FilterWarnings(sess, in, detectNow)
	require.Len(t, out, 3)
	for i := range in {
		assert.Equal(t, in[i].Type, out[i].Type)
	}
}
