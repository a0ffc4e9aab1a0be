package observability

import (
	"strconv"
	"sync"
	"time"
)

// Metrics provides basic in-memory counters.
type Metrics struct {
	mu            sync.Mutex
	requestCount  map[string]int64
	requestMillis map[string]int64
	errorCount    map[string]int64
	loginCount    map[string]int64
	sessionCount  map[string]int64
	activeRole    string
	retryCount    int64
	lastLogin     time.Duration
}

// Snapshot is a point-in-time copy of the counters.
type Snapshot struct {
	Requests           map[string]int64 `json:"requests"`
	RequestMillis      map[string]int64 `json:"request_millis"`
	Errors             map[string]int64 `json:"errors"`
	Logins             map[string]int64 `json:"logins"`
	SessionChanges     map[string]int64 `json:"session_changes"`
	ActiveRole         string           `json:"active_role,omitempty"`
	InferenceRetries   int64            `json:"inference_retries"`
	LastLoginLatencyMS int64            `json:"last_login_latency_ms"`
}

// NewMetrics initializes metrics storage.
func NewMetrics() *Metrics {
	return &Metrics{
		requestCount:  make(map[string]int64),
		requestMillis: make(map[string]int64),
		errorCount:    make(map[string]int64),
		loginCount:    make(map[string]int64),
		sessionCount:  make(map[string]int64),
	}
}

// RecordRequest increments counters for requests.
func (m *Metrics) RecordRequest(path, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	key := pathKey(path, method, status)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requestCount[key]++
	m.requestMillis[key] += duration.Milliseconds()
}

// RecordError increments error counters.
func (m *Metrics) RecordError(path, method, code string) {
	if m == nil {
		return
	}
	key := path + "|" + method + "|" + code
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errorCount[key]++
}

// RecordLogin counts a finished login by outcome. Outcome is "ok" or an error code.
func (m *Metrics) RecordLogin(outcome, role string, duration time.Duration) {
	if m == nil {
		return
	}
	key := outcome
	if role != "" {
		key += "|" + role
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.loginCount[key]++
	m.lastLogin = duration
}

// RecordSessionChange counts a session store mutation and tracks the active role.
// An empty role means no session is active.
func (m *Metrics) RecordSessionChange(kind, role string) {
	if m == nil {
		return
	}
	key := kind
	if role != "" {
		key += "|" + role
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessionCount[key]++
	m.activeRole = role
}

// RecordRetry counts one outbound retry.
func (m *Metrics) RecordRetry() {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.retryCount++
}

// Snapshot copies the current counters.
func (m *Metrics) Snapshot() Snapshot {
	if m == nil {
		return Snapshot{}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return Snapshot{
		Requests:           copyCounts(m.requestCount),
		RequestMillis:      copyCounts(m.requestMillis),
		Errors:             copyCounts(m.errorCount),
		Logins:             copyCounts(m.loginCount),
		SessionChanges:     copyCounts(m.sessionCount),
		ActiveRole:         m.activeRole,
		InferenceRetries:   m.retryCount,
		LastLoginLatencyMS: m.lastLogin.Milliseconds(),
	}
}

func copyCounts(src map[string]int64) map[string]int64 {
	dst := make(map[string]int64, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}

func pathKey(path, method string, status int) string {
	return path + "|" + method + "|" + strconv.Itoa(status)
}
