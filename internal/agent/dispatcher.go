package agent

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"github.com/dopplertower/weather-agent/internal/observability"
)

// HistoryStore is the append-only durable record of dispatched warnings. The
// dispatcher is its only writer.
type HistoryStore interface {
	Append(ctx context.Context, rec HistoryRecord) error
	Recent(ctx context.Context, userID string, limit int) ([]HistoryRecord, error)
}

// EmailSender delivers an alert email. Implementations are best-effort; the
// dispatcher never retries.
type EmailSender interface {
	SendEmail(ctx context.Context, to, subject, body, location string) error
}

// PushSender delivers a push notification to a user's devices.
type PushSender interface {
	SendPush(ctx context.Context, userID, title, body string) error
}

// AlertLog appends dispatched warnings to a per-user log file.
type AlertLog interface {
	Append(userID, location string, at time.Time, warnings []Warning) error
}

// DispatchReport summarizes one dispatch: which channels were attempted and
// whether they succeeded, plus how many history records were written.
type DispatchReport struct {
	LogFile  bool
	Email    bool
	Push     bool
	Recorded int
}

// Dispatcher fans a filtered warning set out to the session's enabled
// channels and records history. Channels are independent: one channel
// failing never blocks another, and history is written regardless of
// delivery outcomes.
type Dispatcher struct {
	history  HistoryStore
	email    EmailSender
	push     PushSender
	alertLog AlertLog
	clock    clockwork.Clock
	logger   zerolog.Logger
	metrics  *observability.Metrics
}

func NewDispatcher(history HistoryStore, email EmailSender, push PushSender, alertLog AlertLog, clock clockwork.Clock, logger zerolog.Logger, metrics *observability.Metrics) *Dispatcher {
	return &Dispatcher{
		history:  history,
		email:    email,
		push:     push,
		alertLog: alertLog,
		clock:    clock,
		logger:   logger,
		metrics:  metrics,
	}
}

// Dispatch sends warnings through every enabled channel and appends exactly
// one history record per warning. History captures intent to alert, not
// confirmed delivery; there is no retry queue and no acknowledgment.
func (d *Dispatcher) Dispatch(ctx context.Context, sess Session, warnings []Warning) DispatchReport {
	if len(warnings) == 0 {
		return DispatchReport{}
	}

	title := fmt.Sprintf("Weather Alert for %s", sess.LocationName)
	body := joinMessages(warnings)
	now := d.clock.Now()

	var report DispatchReport

	if sess.Prefs.LogFile && d.alertLog != nil {
		if err := d.alertLog.Append(sess.UserID, sess.LocationName, now, warnings); err != nil {
			d.logger.Error().Err(err).Str("user_id", sess.UserID).Msg("alert log append failed")
			d.metrics.DispatchErrors.WithLabelValues("log_file").Inc()
		} else {
			report.LogFile = true
			d.metrics.AlertsDispatched.WithLabelValues("log_file").Inc()
		}
	}

	if sess.Prefs.Email && sess.Email != "" && d.email != nil {
		if err := d.email.SendEmail(ctx, sess.Email, title, body, sess.LocationName); err != nil {
			d.logger.Error().Err(err).Str("user_id", sess.UserID).Str("to", sess.Email).Msg("email alert failed")
			d.metrics.DispatchErrors.WithLabelValues("email").Inc()
		} else {
			report.Email = true
			d.metrics.AlertsDispatched.WithLabelValues("email").Inc()
		}
	}

	if sess.Prefs.Push && d.push != nil {
		if err := d.push.SendPush(ctx, sess.UserID, title, body); err != nil {
			d.logger.Error().Err(err).Str("user_id", sess.UserID).Msg("push alert failed")
			d.metrics.DispatchErrors.WithLabelValues("push").Inc()
		} else {
			report.Push = true
			d.metrics.AlertsDispatched.WithLabelValues("push").Inc()
		}
	}

	for _, w := range warnings {
		rec := HistoryRecord{
			UserID:   sess.UserID,
			Type:     w.Type,
			Message:  w.Message,
			Severity: w.Severity,
			SentAt:   now,
		}
		if err := d.history.Append(ctx, rec); err != nil {
			// History persistence failures during polling are logged and
			// skipped rather than aborting the cycle.
			d.logger.Error().Err(err).Str("user_id", sess.UserID).Str("type", w.Type).Msg("alert history append failed")
			continue
		}
		report.Recorded++
		d.metrics.WarningsDispatched.WithLabelValues(w.Type).Inc()
	}

	d.logger.Info().
		Str("user_id", sess.UserID).
		Str("location", sess.LocationName).
		Int("warnings", len(warnings)).
		Bool("log_file", report.LogFile).
		Bool("email", report.Email).
		Bool("push", report.Push).
		Msg("alerts dispatched")

	return report
}

func joinMessages(warnings []Warning) string {
	msgs := make([]string, 0, len(warnings))
	for _, w := range warnings {
		msgs = append(msgs, w.Message)
	}
	return strings.Join(msgs, "\n")
}
