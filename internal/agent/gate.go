package agent

import (
	"time"
)

// FilterWarnings applies the per-user severity floor and the session-wide
// alert cooldown to a candidate warning list. Input ordering is preserved.
//
// The cooldown is a single timestamp covering all warning types uniformly:
// once any alert is dispatched, every further warning for that session is
// suppressed until the cooldown elapses. An empty result means nothing is
// dispatched this cycle and the session's last alert time must stay as is.
func FilterWarnings(sess Session, candidates []Warning, now time.Time) []Warning {
	if len(candidates) == 0 {
		return nil
	}

	if !cooldownElapsed(sess, now) {
		return nil
	}

	minRank := sess.Prefs.SeverityThreshold.Rank()
	filtered := make([]Warning, 0, len(candidates))
	for _, w := range candidates {
		if w.Severity.Rank() >= minRank {
			filtered = append(filtered, w)
		}
	}

	if len(filtered) == 0 {
		return nil
	}
	return filtered
}

func cooldownElapsed(sess Session, now time.Time) bool {
	if sess.LastAlertTime.IsZero() {
		return true
	}
	return now.Sub(sess.LastAlertTime) >= sess.AlertCooldown
}
