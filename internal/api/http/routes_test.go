package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dopplertower/weather-agent/internal/agent"
	"github.com/dopplertower/weather-agent/internal/observability"
	"github.com/dopplertower/weather-agent/internal/scheduler"
	"github.com/dopplertower/weather-agent/internal/weather"
)

type stubWeather struct {
	snapshot weather.Snapshot
	err      error
}

func (s *stubWeather) Current(context.Context, float64, float64) (weather.Snapshot, error) {
	return s.snapshot, s.err
}

func (s *stubWeather) Forecast(context.Context, float64, float64) (weather.Forecast, error) {
	return nil, nil
}

func (s *stubWeather) Alerts(context.Context, float64, float64) ([]weather.Alert, error) {
	return nil, nil
}

type stubSessionStore struct{}

func (stubSessionStore) Upsert(context.Context, agent.Session) error { return nil }
func (stubSessionStore) LoadActive(context.Context, time.Time) ([]agent.Session, error) {
	return nil, nil
}
func (stubSessionStore) MarkExpired(context.Context, string, time.Time) error { return nil }

type stubHistory struct {
	records []agent.HistoryRecord
	err     error
}

func (h *stubHistory) Append(_ context.Context, rec agent.HistoryRecord) error {
	h.records = append(h.records, rec)
	return nil
}

func (h *stubHistory) Recent(context.Context, string, int) ([]agent.HistoryRecord, error) {
	return h.records, h.err
}

type testEnv struct {
	app     *fiber.App
	weather *stubWeather
	history *stubHistory
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	clock := clockwork.NewFakeClockAt(time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC))
	wx := &stubWeather{snapshot: weather.Snapshot{Temperature: 18, Condition: weather.ConditionClear}}
	history := &stubHistory{}
	metrics := observability.NewMetricsForTesting()

	registry := agent.NewRegistry(stubSessionStore{}, wx, nil, clock, zerolog.Nop(), 30*time.Minute)
	dispatcher := agent.NewDispatcher(history, nil, nil, nil, clock, zerolog.Nop(), metrics)
	monitor := scheduler.NewMonitor(scheduler.Config{
		Interval: 300 * time.Second,
	}, registry, wx, dispatcher, clock, zerolog.Nop(), metrics)

	app := fiber.New()
	RegisterRoutes(app, Deps{
		Registry:        registry,
		History:         history,
		Monitor:         monitor,
		DefaultDuration: 6 * time.Hour,
	})

	return &testEnv{app: app, weather: wx, history: history}
}

func postJSON(t *testing.T, app *fiber.App, path string, payload any) *http.Response {
	t.Helper()
	body, err := json.Marshal(payload)
	require.NoError(t, err)
	req, err := http.NewRequest(http.MethodPost, path, bytes.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	require.NoError(t, err)
	return resp
}

func getPath(t *testing.T, app *fiber.App, path string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, path, nil)
	require.NoError(t, err)
	resp, err := app.Test(req)
	require.NoError(t, err)
	return resp
}

func decodeBody(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var out map[string]any
	require.NoError(t, json.Unmarshal(raw, &out))
	return out
}

func TestRegisterEndpoint(t *testing.T) {
	env := newTestEnv(t)

	resp := postJSON(t, env.app, "/api/v1/agent/register", map[string]any{
		"user_id": "u1",
		"lat":     52.52,
		"lon":     13.405,
		"email":   "u1@example.com",
	})
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	body := decodeBody(t, resp)
	assert.Equal(t, "monitoring", body["status"])
	assert.Equal(t, "u1", body["user_id"])
	assert.NotEmpty(t, body["location"])
	assert.NotEmpty(t, body["monitoring_until"])

	prefs, ok := body["preferences"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, true, prefs["email"])
	assert.Equal(t, true, prefs["push"])
	assert.Equal(t, "medium", prefs["severity_threshold"])
}

func TestRegisterValidation(t *testing.T) {
	env := newTestEnv(t)

	// Missing user id.
	resp := postJSON(t, env.app, "/api/v1/agent/register", map[string]any{
		"lat": 52.52,
		"lon": 13.405,
	})
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)

	// Missing coordinates.
	resp = postJSON(t, env.app, "/api/v1/agent/register", map[string]any{
		"user_id": "u1",
	})
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)

	// Latitude alone is not enough.
	resp = postJSON(t, env.app, "/api/v1/agent/register", map[string]any{
		"user_id": "u1",
		"lat":     52.52,
	})
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)

	// Malformed email.
	resp = postJSON(t, env.app, "/api/v1/agent/register", map[string]any{
		"user_id": "u1",
		"lat":     52.52,
		"lon":     13.405,
		"email":   "not-an-email",
	})
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)

	// Out-of-range coordinates.
	resp = postJSON(t, env.app, "/api/v1/agent/register", map[string]any{
		"user_id": "u1",
		"lat":     123.0,
		"lon":     13.405,
	})
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)

	// Duration beyond the allowed window.
	resp = postJSON(t, env.app, "/api/v1/agent/register", map[string]any{
		"user_id":        "u1",
		"lat":            52.52,
		"lon":            13.405,
		"duration_hours": 200,
	})
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func TestRegisterZeroCoordinates(t *testing.T) {
	env := newTestEnv(t)

	// (0, 0) is a valid position and must not be confused with absent
	// coordinates.
	resp := postJSON(t, env.app, "/api/v1/agent/register", map[string]any{
		"user_id": "u1",
		"lat":     0,
		"lon":     0,
	})
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
}

func TestRegisterUpstreamFailure(t *testing.T) {
	env := newTestEnv(t)
	env.weather.err = errors.New("provider down")

	resp := postJSON(t, env.app, "/api/v1/agent/register", map[string]any{
		"user_id": "u1",
		"lat":     52.52,
		"lon":     13.405,
	})
	assert.Equal(t, fiber.StatusBadGateway, resp.StatusCode)
}

func TestRegisterPreferenceOverrides(t *testing.T) {
	env := newTestEnv(t)

	resp := postJSON(t, env.app, "/api/v1/agent/register", map[string]any{
		"user_id": "u1",
		"lat":     52.52,
		"lon":     13.405,
		"preferences": map[string]any{
			"push":               false,
			"severity_threshold": "high",
		},
	})
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	body := decodeBody(t, resp)
	prefs := body["preferences"].(map[string]any)
	assert.Equal(t, false, prefs["push"])
	assert.Equal(t, true, prefs["log_file"])
	assert.Equal(t, "high", prefs["severity_threshold"])
}

func TestStopEndpoint(t *testing.T) {
	env := newTestEnv(t)

	resp := postJSON(t, env.app, "/api/v1/agent/register", map[string]any{
		"user_id": "u1",
		"lat":     52.52,
		"lon":     13.405,
	})
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	resp = postJSON(t, env.app, "/api/v1/agent/stop", map[string]any{"user_id": "u1"})
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	body := decodeBody(t, resp)
	assert.Equal(t, "stopped", body["status"])

	// Second stop finds nothing.
	resp = postJSON(t, env.app, "/api/v1/agent/stop", map[string]any{"user_id": "u1"})
	require.Equal(t, fiber.StatusNotFound, resp.StatusCode)
	body = decodeBody(t, resp)
	assert.Equal(t, "not_found", body["status"])
}

func TestStatusEndpoint(t *testing.T) {
	env := newTestEnv(t)

	// Unknown users get a definitive answer, not an error status.
	resp := getPath(t, env.app, "/api/v1/agent/status/ghost")
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	body := decodeBody(t, resp)
	assert.Equal(t, "not_monitored", body["status"])

	resp = postJSON(t, env.app, "/api/v1/agent/register", map[string]any{
		"user_id": "u1",
		"lat":     52.52,
		"lon":     13.405,
	})
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	resp = getPath(t, env.app, "/api/v1/agent/status/u1")
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	body = decodeBody(t, resp)
	assert.Equal(t, "active", body["status"])
	assert.Equal(t, float64(0), body["alert_count"])
	assert.NotEmpty(t, body["monitoring_until"])
}

func TestHistoryEndpoint(t *testing.T) {
	env := newTestEnv(t)
	env.history.records = []agent.HistoryRecord{
		{
			ID:       1,
			UserID:   "u1",
			Type:     agent.WarningHighWind,
			Message:  "windy",
			Severity: agent.SeverityMedium,
			SentAt:   time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC),
		},
	}

	resp := getPath(t, env.app, "/api/v1/agent/history/u1")
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	body := decodeBody(t, resp)
	assert.Equal(t, float64(1), body["count"])

	alerts, ok := body["alerts"].([]any)
	require.True(t, ok)
	require.Len(t, alerts, 1)
	first := alerts[0].(map[string]any)
	assert.Equal(t, "high_wind", first["type"])
}

func TestHistoryEndpointEmpty(t *testing.T) {
	env := newTestEnv(t)

	resp := getPath(t, env.app, "/api/v1/agent/history/ghost")
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	body := decodeBody(t, resp)
	assert.Equal(t, float64(0), body["count"])

	// Empty history must serialize as a list, not null.
	alerts, ok := body["alerts"].([]any)
	require.True(t, ok)
	assert.Empty(t, alerts)
}

func TestServiceLifecycleEndpoints(t *testing.T) {
	env := newTestEnv(t)

	resp := getPath(t, env.app, "/api/v1/agent/service/status")
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	body := decodeBody(t, resp)
	assert.Equal(t, false, body["running"])
	assert.Equal(t, float64(0), body["active_sessions"])
	assert.Equal(t, float64(300), body["check_interval_s"])

	resp = postJSON(t, env.app, "/api/v1/agent/service/start", map[string]any{})
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, true, decodeBody(t, resp)["running"])

	resp = postJSON(t, env.app, "/api/v1/agent/service/stop", map[string]any{})
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, false, decodeBody(t, resp)["running"])
}
