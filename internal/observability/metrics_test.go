package observability

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMetricsSnapshot(t *testing.T) {
	t.Parallel()

	m := NewMetrics()
	m.RecordRequest("/session/login", "POST", 200, 15*time.Millisecond)
	m.RecordRequest("/session/login", "POST", 200, 5*time.Millisecond)
	m.RecordError("/session/login", "POST", "TIMEOUT")
	m.RecordLogin("ok", "DOCTOR", 40*time.Millisecond)
	m.RecordLogin("TIMEOUT", "", time.Second)
	m.RecordRetry()
	m.RecordRetry()

	snap := m.Snapshot()
	assert.Equal(t, int64(2), snap.Requests["/session/login|POST|200"])
	assert.Equal(t, int64(20), snap.RequestMillis["/session/login|POST|200"])
	assert.Equal(t, int64(1), snap.Errors["/session/login|POST|TIMEOUT"])
	assert.Equal(t, int64(1), snap.Logins["ok|DOCTOR"])
	assert.Equal(t, int64(1), snap.Logins["TIMEOUT"])
	assert.Equal(t, int64(2), snap.InferenceRetries)
	assert.Equal(t, int64(1000), snap.LastLoginLatencyMS)

	snap.Logins["ok|DOCTOR"] = 99
	assert.Equal(t, int64(1), m.Snapshot().Logins["ok|DOCTOR"])
}

func TestMetricsSessionChanges(t *testing.T) {
	t.Parallel()

	m := NewMetrics()
	m.RecordSessionChange("set", "NURSE")
	assert.Equal(t, "NURSE", m.Snapshot().ActiveRole)

	m.RecordSessionChange("cleared", "")
	m.RecordSessionChange("set", "NURSE")
	m.RecordSessionChange("cleared", "")

	snap := m.Snapshot()
	assert.Equal(t, int64(2), snap.SessionChanges["set|NURSE"])
	assert.Equal(t, int64(2), snap.SessionChanges["cleared"])
	assert.Empty(t, snap.ActiveRole)
}

func TestNilMetricsAreSafe(t *testing.T) {
	t.Parallel()

	var m *Metrics
	m.RecordRequest("/", "GET", 200, time.Millisecond)
	m.RecordLogin("ok", "", 0)
	m.RecordRetry()
	m.RecordSessionChange("set", "ADMIN")
	assert.Empty(t, m.Snapshot().Logins)
}
