package agent

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"github.com/dopplertower/weather-agent/internal/weather"
)

// SessionStore is the durable backing for the session table. The registry is
// its only writer.
type SessionStore interface {
	Upsert(ctx context.Context, sess Session) error
	LoadActive(ctx context.Context, now time.Time) ([]Session, error)
	MarkExpired(ctx context.Context, userID string, now time.Time) error
}

// Geocoder resolves coordinates to a human-readable place name.
type Geocoder interface {
	ReverseGeocode(ctx context.Context, lat, lon float64) (string, error)
}

// Registration is the outcome of a successful register call.
type Registration struct {
	Location        string
	MonitoringUntil time.Time
	Prefs           NotificationPrefs
}

// SessionStatus is the externally visible view of an active session.
type SessionStatus struct {
	Location        string
	MonitoringUntil time.Time
	LastCheck       time.Time
	AlertCount      int
	Prefs           NotificationPrefs
}

// Registry owns the canonical table of monitoring sessions: the in-memory
// active set plus its durable mirror. All mutation goes through one mutex so
// the scheduler and request handlers never race on read-modify-write
// sequences.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*Session

	store    SessionStore
	current  weather.CurrentProvider
	geocoder Geocoder
	clock    clockwork.Clock
	logger   zerolog.Logger

	defaultCooldown time.Duration
}

// NewRegistry creates a Registry. The geocoder may be nil, in which case
// location names always fall back to a coordinate string.
func NewRegistry(store SessionStore, current weather.CurrentProvider, geocoder Geocoder, clock clockwork.Clock, logger zerolog.Logger, defaultCooldown time.Duration) *Registry {
	if defaultCooldown <= 0 {
		defaultCooldown = 30 * time.Minute
	}
	return &Registry{
		sessions:        make(map[string]*Session),
		store:           store,
		current:         current,
		geocoder:        geocoder,
		clock:           clock,
		logger:          logger,
		defaultCooldown: defaultCooldown,
	}
}

// Register starts monitoring for a user. An existing session for the same
// user id is overwritten: the baseline and timer restart, last write wins.
// The session is persisted before Register returns.
//
// A failing baseline fetch is fatal for the registration; a failing geocode
// is not and degrades to a coordinate-string location name.
func (r *Registry) Register(ctx context.Context, userID string, lat, lon float64, duration time.Duration, email string, prefs *NotificationPrefs) (Registration, error) {
	if userID == "" {
		return Registration{}, fmt.Errorf("user id is required")
	}
	if err := ValidateCoordinates(lat, lon); err != nil {
		return Registration{}, err
	}

	locationName := r.resolveLocation(ctx, lat, lon)

	baseline, err := r.current.Current(ctx, lat, lon)
	if err != nil {
		return Registration{}, fmt.Errorf("%w: %v", ErrBaselineFetch, err)
	}

	p := DefaultPrefs(email)
	if prefs != nil {
		p = *prefs
		if p.SeverityThreshold == "" {
			p.SeverityThreshold = SeverityMedium
		}
	}

	now := r.clock.Now()
	sess := Session{
		UserID:        userID,
		Email:         email,
		Lat:           lat,
		Lon:           lon,
		LocationName:  locationName,
		StartTime:     now,
		EndTime:       now.Add(duration),
		Baseline:      baseline,
		LastCheck:     now,
		AlertCooldown: r.defaultCooldown,
		Prefs:         p,
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.store.Upsert(ctx, sess); err != nil {
		return Registration{}, fmt.Errorf("persist session: %w", err)
	}
	r.sessions[userID] = &sess

	r.logger.Info().
		Str("user_id", userID).
		Str("location", locationName).
		Time("monitoring_until", sess.EndTime).
		Msg("session registered")

	return Registration{
		Location:        locationName,
		MonitoringUntil: sess.EndTime,
		Prefs:           p,
	}, nil
}

func (r *Registry) resolveLocation(ctx context.Context, lat, lon float64) string {
	if r.geocoder == nil {
		return CoordinateLabel(lat, lon)
	}
	name, err := r.geocoder.ReverseGeocode(ctx, lat, lon)
	if err != nil || name == "" {
		r.logger.Warn().Err(err).Float64("lat", lat).Float64("lon", lon).
			Msg("reverse geocode failed, falling back to coordinates")
		return CoordinateLabel(lat, lon)
	}
	return name
}

// Unregister removes a session from the active set immediately, regardless of
// its end time, and expires the durable row so a restart cannot revive it.
// It is idempotent and reports whether a session was actually removed.
func (r *Registry) Unregister(ctx context.Context, userID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.sessions[userID]; !ok {
		return false
	}
	delete(r.sessions, userID)

	if err := r.store.MarkExpired(ctx, userID, r.clock.Now()); err != nil {
		// The in-memory removal already took effect; the stale row only
		// matters until its original end time passes.
		r.logger.Error().Err(err).Str("user_id", userID).Msg("expire persisted session failed")
	}

	r.logger.Info().Str("user_id", userID).Msg("session stopped")
	return true
}

// RemoveIfExpired atomically re-checks expiry before removing, so a
// re-registration that raced with the scheduler's snapshot is not torn down.
func (r *Registry) RemoveIfExpired(userID string, now time.Time) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	sess, ok := r.sessions[userID]
	if !ok || !sess.Expired(now) {
		return false
	}
	delete(r.sessions, userID)
	r.logger.Info().Str("user_id", userID).Str("location", sess.LocationName).Msg("expired session removed")
	return true
}

// Status returns the session status for a user, or ErrNotMonitored.
func (r *Registry) Status(userID string) (SessionStatus, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	sess, ok := r.sessions[userID]
	if !ok {
		return SessionStatus{}, ErrNotMonitored
	}
	return SessionStatus{
		Location:        sess.LocationName,
		MonitoringUntil: sess.EndTime,
		LastCheck:       sess.LastCheck,
		AlertCount:      sess.AlertCount,
		Prefs:           sess.Prefs,
	}, nil
}

// Reload reconstitutes the active set from durable storage. It is invoked
// once at process start, before the scheduler begins polling. Sessions whose
// end time already passed stay in storage untouched but are not loaded.
func (r *Registry) Reload(ctx context.Context) error {
	now := r.clock.Now()
	restored, err := r.store.LoadActive(ctx, now)
	if err != nil {
		return fmt.Errorf("load sessions: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for i := range restored {
		sess := restored[i]
		if sess.AlertCooldown <= 0 {
			sess.AlertCooldown = r.defaultCooldown
		}
		sess.LastCheck = now
		r.sessions[sess.UserID] = &sess
		r.logger.Info().Str("user_id", sess.UserID).Str("location", sess.LocationName).Msg("session restored")
	}
	return nil
}

// Snapshot returns value copies of all active sessions for one polling pass.
func (r *Registry) Snapshot() []Session {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Session, 0, len(r.sessions))
	for _, sess := range r.sessions {
		out = append(out, *sess)
	}
	return out
}

// ActiveCount reports the number of sessions currently monitored.
func (r *Registry) ActiveCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Touch records the completion of a poll for a session.
func (r *Registry) Touch(userID string, checkedAt time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if sess, ok := r.sessions[userID]; ok {
		sess.LastCheck = checkedAt
	}
}

// RecordDispatch bumps the alert bookkeeping after a successful dispatch.
// The cooldown clock starts here, not at detection time.
func (r *Registry) RecordDispatch(userID string, at time.Time, warnings int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if sess, ok := r.sessions[userID]; ok {
		sess.LastAlertTime = at
		sess.AlertCount += warnings
	}
}
