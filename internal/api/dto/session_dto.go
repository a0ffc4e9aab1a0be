package dto

import (
	"time"

	"github.com/spec-kit/portal-session/internal/domain"
)

// LoginRequest payload for POST /session/login. Role is "patient" or "staff".
type LoginRequest struct {
	Identifier string `json:"identifier"`
	Secret     string `json:"secret"`
	Role       string `json:"role"`
}

// AuthResponse carries the bearer token bound to the session.
type AuthResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// SessionResponse is the public view of a resolved identity.
type SessionResponse struct {
	SessionID  string               `json:"session_id"`
	Subject    string               `json:"subject"`
	Role       domain.RolePartition `json:"role"`
	Profile    any                  `json:"profile"`
	ResolvedAt time.Time            `json:"resolved_at"`
}

// LoginResponse is returned after a successful login.
type LoginResponse struct {
	Session SessionResponse `json:"session"`
	Auth    AuthResponse    `json:"auth"`
}

// StatusResponse describes the login state machine.
type StatusResponse struct {
	State     domain.SessionState `json:"state"`
	Attempt   uint64              `json:"attempt"`
	Session   *SessionResponse    `json:"session,omitempty"`
	LastError string              `json:"last_error,omitempty"`
}

// NewSessionResponse maps an identity to its response shape.
func NewSessionResponse(identity domain.ResolvedIdentity) SessionResponse {
	return SessionResponse{
		SessionID:  identity.SessionID,
		Subject:    string(identity.Subject),
		Role:       identity.Role,
		Profile:    identity.Profile,
		ResolvedAt: identity.ResolvedAt,
	}
}
