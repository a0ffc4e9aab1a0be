package events

import (
	"time"

	"github.com/spec-kit/portal-session/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventSessionEstablished EventType = "session_established"
	EventLoginFailed        EventType = "login_failed"
	EventSessionCleared     EventType = "session_cleared"
)

// Event represents a domain event emitted by services.
type Event struct {
	ID        string      `json:"id"`
	Type      EventType   `json:"type"`
	SessionID string      `json:"session_id,omitempty"`
	Subject   string      `json:"subject,omitempty"`
	Attempt   uint64      `json:"attempt"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload"`
}

// SessionEstablishedPayload payload.
type SessionEstablishedPayload struct {
	Role     domain.RolePartition `json:"role"`
	Duration time.Duration        `json:"duration"`
}

// LoginFailedPayload payload.
type LoginFailedPayload struct {
	Code        string              `json:"code"`
	Reason      string              `json:"reason"`
	ClaimedRole domain.ClaimedRole  `json:"claimed_role"`
	Stage       domain.SessionState `json:"stage"`
}

// SessionClearedPayload payload.
type SessionClearedPayload struct {
	Reason string `json:"reason"`
}
