package scheduler

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-co-op/gocron"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"github.com/dopplertower/weather-agent/internal/agent"
	"github.com/dopplertower/weather-agent/internal/observability"
	"github.com/dopplertower/weather-agent/internal/weather"
)

// Config tunes the polling loop.
type Config struct {
	// Interval between polling cycles.
	Interval time.Duration
	// ErrorBackoff is the extra sleep applied after a loop-level failure.
	ErrorBackoff time.Duration
	// Concurrency bounds the per-session worker pool. 1 means strictly
	// sequential processing.
	Concurrency int
	// Thresholds for the change detector.
	Thresholds agent.Thresholds
	// FetchTimeout bounds the upstream calls for a single session.
	FetchTimeout time.Duration
}

func (c *Config) applyDefaults() {
	if c.Interval <= 0 {
		c.Interval = 300 * time.Second
	}
	if c.ErrorBackoff <= 0 {
		c.ErrorBackoff = 60 * time.Second
	}
	if c.Concurrency <= 0 {
		c.Concurrency = 1
	}
	if c.FetchTimeout <= 0 {
		c.FetchTimeout = 30 * time.Second
	}
}

// Monitor is the polling scheduler: on a fixed interval it walks the active
// session set, fetches weather for each session, pipes the results through
// detection and filtering, and dispatches whatever survives.
//
// The session lifecycle it drives is Registered -> Active -> Expired ->
// Removed; an explicit stop request removes a session directly without
// passing through Expired.
type Monitor struct {
	cfg        Config
	registry   *agent.Registry
	client     weather.Client
	dispatcher *agent.Dispatcher
	clock      clockwork.Clock
	logger     zerolog.Logger
	metrics    *observability.Metrics

	cron    *gocron.Scheduler
	running atomic.Bool
}

func NewMonitor(cfg Config, registry *agent.Registry, client weather.Client, dispatcher *agent.Dispatcher, clock clockwork.Clock, logger zerolog.Logger, metrics *observability.Metrics) *Monitor {
	cfg.applyDefaults()
	return &Monitor{
		cfg:        cfg,
		registry:   registry,
		client:     client,
		dispatcher: dispatcher,
		clock:      clock,
		logger:     logger,
		metrics:    metrics,
	}
}

// Start schedules the periodic polling job. It is a no-op when already
// running.
func (m *Monitor) Start() error {
	if !m.running.CompareAndSwap(false, true) {
		return nil
	}

	m.cron = gocron.NewScheduler(time.UTC)
	// SingletonMode: a slow cycle must finish before the next one starts.
	if _, err := m.cron.Every(m.cfg.Interval).SingletonMode().Do(m.runCycle); err != nil {
		m.running.Store(false)
		return err
	}
	m.cron.StartAsync()

	m.logger.Info().
		Dur("interval", m.cfg.Interval).
		Int("concurrency", m.cfg.Concurrency).
		Msg("monitoring started")
	return nil
}

// Stop requests a cooperative shutdown. An in-flight cycle runs to
// completion; in-flight network calls are not cancelled.
func (m *Monitor) Stop() {
	if !m.running.CompareAndSwap(true, false) {
		return
	}
	if m.cron != nil {
		m.cron.Stop()
	}
	m.logger.Info().Msg("monitoring stopped")
}

// Running reports whether the polling loop is active.
func (m *Monitor) Running() bool {
	return m.running.Load()
}

// Interval exposes the configured polling interval for the status surface.
func (m *Monitor) Interval() time.Duration {
	return m.cfg.Interval
}

// runCycle executes one full polling pass. A panic anywhere outside the
// per-session path is caught here and answered with an extended backoff
// rather than a crash: the loop must outlive any single cycle's failure.
func (m *Monitor) runCycle() {
	defer func() {
		if r := recover(); r != nil {
			m.metrics.CycleErrors.Inc()
			m.logger.Error().Interface("panic", r).Dur("backoff", m.cfg.ErrorBackoff).Msg("cycle failed, backing off")
			m.clock.Sleep(m.cfg.ErrorBackoff)
		}
	}()

	if !m.running.Load() {
		return
	}

	start := m.clock.Now()
	cycleID := uuid.NewString()
	logger := m.logger.With().Str("cycle_id", cycleID).Logger()

	sessions := m.registry.Snapshot()
	m.metrics.ActiveSessions.Set(float64(len(sessions)))
	if len(sessions) == 0 {
		return
	}

	logger.Debug().Int("sessions", len(sessions)).Msg("cycle started")

	// Split the snapshot into expired sessions and sessions to poll. Expired
	// ones are skipped this cycle and removed after the full pass.
	var expired []string
	pollable := make([]agent.Session, 0, len(sessions))
	for _, sess := range sessions {
		if sess.Expired(start) {
			expired = append(expired, sess.UserID)
			continue
		}
		pollable = append(pollable, sess)
	}

	m.pollAll(pollable, logger)

	for _, userID := range expired {
		if m.registry.RemoveIfExpired(userID, start) {
			m.metrics.SessionsExpired.Inc()
		}
	}

	m.metrics.CyclesTotal.Inc()
	m.metrics.CycleDuration.Observe(m.clock.Since(start).Seconds())
	logger.Debug().Int("polled", len(pollable)).Int("expired", len(expired)).Msg("cycle finished")
}

// pollAll runs the per-session pipeline over a bounded worker pool. Failure
// isolation is per user: one session's error never affects another's poll.
func (m *Monitor) pollAll(sessions []agent.Session, logger zerolog.Logger) {
	if len(sessions) == 0 {
		return
	}

	workers := m.cfg.Concurrency
	if workers > len(sessions) {
		workers = len(sessions)
	}

	jobs := make(chan agent.Session)
	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			for sess := range jobs {
				m.pollSession(sess, logger)
			}
		}()
	}
	for _, sess := range sessions {
		jobs <- sess
	}
	close(jobs)
	wg.Wait()
}

// pollSession runs one session through fetch -> detect -> filter ->
// dispatch. Upstream failures are logged and leave the session untouched
// until the next cycle.
func (m *Monitor) pollSession(sess agent.Session, logger zerolog.Logger) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error().Interface("panic", r).Str("user_id", sess.UserID).Msg("session poll panicked")
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), m.cfg.FetchTimeout)
	defer cancel()

	now := m.clock.Now()

	current, err := m.client.Current(ctx, sess.Lat, sess.Lon)
	if err != nil {
		m.metrics.FetchErrors.WithLabelValues("current").Inc()
		logger.Warn().Err(err).Str("user_id", sess.UserID).Msg("current weather fetch failed")
		m.registry.Touch(sess.UserID, now)
		return
	}

	forecast, err := m.client.Forecast(ctx, sess.Lat, sess.Lon)
	if err != nil {
		m.metrics.FetchErrors.WithLabelValues("forecast").Inc()
		logger.Warn().Err(err).Str("user_id", sess.UserID).Msg("forecast fetch failed")
		forecast = nil
	}

	alerts, err := m.client.Alerts(ctx, sess.Lat, sess.Lon)
	if err != nil {
		m.metrics.FetchErrors.WithLabelValues("alerts").Inc()
		alerts = nil
	}

	warnings := agent.Detect(sess, current, forecast, alerts, m.cfg.Thresholds, now)
	for _, w := range warnings {
		m.metrics.WarningsDetected.WithLabelValues(w.Type).Inc()
	}

	filtered := agent.FilterWarnings(sess, warnings, now)
	if len(filtered) > 0 {
		m.dispatcher.Dispatch(ctx, sess, filtered)
		m.registry.RecordDispatch(sess.UserID, now, len(filtered))
	}

	m.registry.Touch(sess.UserID, now)
}
