package notify

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dopplertower/weather-agent/internal/agent"
)

func TestFileAlertLogAppend(t *testing.T) {
	dir := t.TempDir()
	l := NewFileAlertLog(dir)
	at := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	warnings := []agent.Warning{
		{Message: "Temperature changed by 6.0°C", Source: agent.SourceThreshold},
		{Message: "Storm Warning: take cover", Source: agent.SourceOfficialAlert},
	}
	require.NoError(t, l.Append("u1", "Berlin, Germany", at, warnings))

	data, err := os.ReadFile(filepath.Join(dir, "u1.log"))
	require.NoError(t, err)
	content := string(data)

	assert.Contains(t, content, "=== 2026-03-10T12:00:00Z ===")
	assert.Contains(t, content, "Location: Berlin, Germany")
	assert.Contains(t, content, "Temperature changed by 6.0°C [source: threshold]")
	assert.Contains(t, content, "Storm Warning: take cover [source: official_alert]")
}

func TestFileAlertLogAppendsAcrossCalls(t *testing.T) {
	dir := t.TempDir()
	l := NewFileAlertLog(dir)
	at := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	require.NoError(t, l.Append("u1", "Oslo, Norway", at, []agent.Warning{{Message: "first"}}))
	require.NoError(t, l.Append("u1", "Oslo, Norway", at.Add(time.Hour), []agent.Warning{{Message: "second"}}))

	data, err := os.ReadFile(filepath.Join(dir, "u1.log"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "first")
	assert.Contains(t, string(data), "second")
}

func TestFileAlertLogSanitizesUserID(t *testing.T) {
	dir := t.TempDir()
	l := NewFileAlertLog(dir)
	at := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	require.NoError(t, l.Append("user@example.com", "Berlin, Germany", at, []agent.Warning{{Message: "hi"}}))

	_, err := os.Stat(filepath.Join(dir, "user_at_example.com.log"))
	assert.NoError(t, err)
}

func TestFileAlertLogCreatesDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "alerts")
	l := NewFileAlertLog(dir)

	err := l.Append("u1", "Berlin, Germany", time.Now(), []agent.Warning{{Message: "hi"}})
	require.NoError(t, err)

	_, err = os.Stat(dir)
	assert.NoError(t, err)
}
