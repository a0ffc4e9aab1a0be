package domain

import "time"

// SessionState is a step of the login state machine.
type SessionState string

const (
	SessionStateIdle           SessionState = "IDLE"
	SessionStateAuthenticating SessionState = "AUTHENTICATING"
	SessionStateResolving      SessionState = "RESOLVING"
	SessionStateActive         SessionState = "ACTIVE"
	SessionStateFailed         SessionState = "FAILED"
)

// Token represents issued session token metadata.
type Token struct {
	SessionID string
	SubjectID string
	Role      RolePartition
	ExpiresAt time.Time
	IssuedAt  time.Time
}
