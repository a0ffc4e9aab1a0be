package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/portal-session/internal/auth"
	"github.com/spec-kit/portal-session/internal/clock"
	"github.com/spec-kit/portal-session/internal/domain"
	"github.com/spec-kit/portal-session/internal/events"
	"github.com/spec-kit/portal-session/internal/observability"
	"github.com/spec-kit/portal-session/internal/session"
	apperrors "github.com/spec-kit/portal-session/pkg/util/errorutil"
)

// RoleResolver maps a verified subject to its role partition.
type RoleResolver interface {
	Resolve(ctx context.Context, subject domain.Subject, claimed domain.ClaimedRole, deadline time.Duration) (*domain.ResolvedIdentity, error)
}

// SessionDependencies encapsulates collaborators for the session service.
type SessionDependencies struct {
	Verifier   auth.CredentialVerifier
	Resolver   RoleResolver
	Store      *session.Store
	Tokens     *auth.TokenManager
	Dispatcher events.Dispatcher
	Metrics    *observability.Metrics
	Clock      clock.Clock
	Logger     *zap.Logger
	Deadline   time.Duration
}

// LoginResult is returned by a successful login.
type LoginResult struct {
	Identity domain.ResolvedIdentity
	Token    string
	Meta     domain.Token
}

// Status is a snapshot of the state machine.
type Status struct {
	State     domain.SessionState
	Attempt   uint64
	Identity  *domain.ResolvedIdentity
	LastError error
}

// SessionService drives Idle -> Authenticating -> Resolving -> Active/Failed and logout.
// Only the latest login attempt may change state or write the session.
type SessionService struct {
	verifier   auth.CredentialVerifier
	resolver   RoleResolver
	store      *session.Store
	tokens     *auth.TokenManager
	dispatcher events.Dispatcher
	metrics    *observability.Metrics
	clock      clock.Clock
	logger     *zap.Logger
	deadline   time.Duration

	mu      sync.Mutex
	state   domain.SessionState
	attempt uint64
	lastErr error
	cancel  context.CancelFunc
}

// NewSessionService builds the service.
func NewSessionService(deps SessionDependencies) *SessionService {
	s := &SessionService{
		verifier:   deps.Verifier,
		resolver:   deps.Resolver,
		store:      deps.Store,
		tokens:     deps.Tokens,
		dispatcher: deps.Dispatcher,
		metrics:    deps.Metrics,
		clock:      deps.Clock,
		logger:     deps.Logger,
		deadline:   deps.Deadline,
		state:      domain.SessionStateIdle,
	}
	if s.store == nil {
		s.store = session.NewStore()
	}
	if s.clock == nil {
		s.clock = clock.NewSystemClock()
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	return s
}

// Login authenticates cred and resolves its role. A login started while another is in flight
// supersedes it; the earlier call returns Cancelled and never touches the session.
func (s *SessionService) Login(ctx context.Context, cred domain.Credential) (*LoginResult, error) {
	started := s.clock.Now()
	attempt, ctx, done := s.begin(ctx)
	defer done()

	s.logger.Debug("login started",
		zap.Uint64("attempt", attempt),
		zap.String("claimed_role", string(cred.ClaimedRole)))

	subject, err := s.verifier.Verify(ctx, cred.Identifier, cred.Secret)
	if err != nil {
		if ctx.Err() != nil && !isContextError(err) {
			err = apperrors.FromContext(ctx, "credential verification")
		}
		return nil, s.fail(ctx, attempt, cred, domain.SessionStateAuthenticating, err, started)
	}

	if err := s.store.Bind(attempt, subject); err != nil {
		return nil, s.fail(ctx, attempt, cred, domain.SessionStateAuthenticating, superseded(err), started)
	}
	if !s.transition(attempt, domain.SessionStateResolving) {
		return nil, s.fail(ctx, attempt, cred, domain.SessionStateAuthenticating, superseded(nil), started)
	}

	identity, err := s.resolver.Resolve(ctx, subject, cred.ClaimedRole, s.deadline)
	if err != nil {
		return nil, s.fail(ctx, attempt, cred, domain.SessionStateResolving, err, started)
	}
	identity.SessionID = uuid.NewString()

	result := &LoginResult{Identity: *identity}
	if s.tokens != nil {
		token, meta, err := s.tokens.Issue(*identity)
		if err != nil {
			return nil, s.fail(ctx, attempt, cred, domain.SessionStateResolving, apperrors.NewInternalError(err), started)
		}
		result.Token = token
		result.Meta = meta
	}

	if err := s.activate(attempt, *identity); err != nil {
		return nil, s.fail(ctx, attempt, cred, domain.SessionStateResolving, err, started)
	}

	elapsed := s.clock.Now().Sub(started)
	s.metrics.RecordLogin("ok", string(identity.Role), elapsed)
	s.logger.Info("session established",
		zap.Uint64("attempt", attempt),
		zap.String("session_id", identity.SessionID),
		zap.String("role", string(identity.Role)),
		zap.Duration("elapsed", elapsed))
	s.publish(context.WithoutCancel(ctx), events.Event{
		Type:      events.EventSessionEstablished,
		SessionID: identity.SessionID,
		Subject:   string(identity.Subject),
		Attempt:   attempt,
		Payload:   events.SessionEstablishedPayload{Role: identity.Role, Duration: elapsed},
	})
	return result, nil
}

// Logout clears the session and cancels any in-flight login. It is valid from every state.
func (s *SessionService) Logout(ctx context.Context) {
	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	previous, hadSession := s.store.Current()
	s.attempt = s.store.Invalidate()
	s.store.Clear()
	s.state = domain.SessionStateIdle
	s.lastErr = nil
	attempt := s.attempt
	s.mu.Unlock()

	if !hadSession {
		return
	}
	s.logger.Info("session cleared", zap.String("session_id", previous.SessionID))
	s.publish(ctx, events.Event{
		Type:      events.EventSessionCleared,
		SessionID: previous.SessionID,
		Subject:   string(previous.Subject),
		Attempt:   attempt,
		Payload:   events.SessionClearedPayload{Reason: "logout"},
	})
}

// Status returns the current state machine snapshot.
func (s *SessionService) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	status := Status{State: s.state, Attempt: s.attempt, LastError: s.lastErr}
	if identity, ok := s.store.Current(); ok {
		status.Identity = &identity
	}
	return status
}

// State returns the current state.
func (s *SessionService) State() domain.SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Current returns the active identity.
func (s *SessionService) Current() (domain.ResolvedIdentity, bool) {
	return s.store.Current()
}

// Store exposes the underlying session store.
func (s *SessionService) Store() *session.Store {
	return s.store
}

// begin supersedes any running attempt and returns the new token with its cancellable context.
func (s *SessionService) begin(parent context.Context) (uint64, context.Context, func()) {
	ctx, cancel := context.WithCancel(parent)

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel != nil {
		s.cancel()
	}
	previous, hadSession := s.store.Current()
	s.attempt = s.store.Begin()
	s.state = domain.SessionStateAuthenticating
	s.lastErr = nil
	s.cancel = cancel
	attempt := s.attempt

	if hadSession {
		s.logger.Info("session replaced by new login", zap.String("session_id", previous.SessionID))
	}

	return attempt, ctx, func() {
		cancel()
		s.mu.Lock()
		if s.attempt == attempt {
			s.cancel = nil
		}
		s.mu.Unlock()
	}
}

func (s *SessionService) transition(attempt uint64, next domain.SessionState) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.attempt != attempt {
		return false
	}
	s.state = next
	return true
}

func (s *SessionService) activate(attempt uint64, identity domain.ResolvedIdentity) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.attempt != attempt {
		return superseded(nil)
	}
	if err := s.store.Set(attempt, identity); err != nil {
		return superseded(err)
	}
	s.state = domain.SessionStateActive
	return nil
}

// fail moves a still-current attempt to Failed and makes sure it leaves nothing in the store.
// A superseded attempt only reports Cancelled.
func (s *SessionService) fail(ctx context.Context, attempt uint64, cred domain.Credential, stage domain.SessionState, err error, started time.Time) error {
	s.mu.Lock()
	current := s.attempt == attempt
	if current {
		s.store.ClearAttempt(attempt)
		s.state = domain.SessionStateFailed
		s.lastErr = err
	}
	s.mu.Unlock()

	if !current {
		err = superseded(err)
	}

	code := apperrors.CodeOf(err)
	if code == "" {
		code = apperrors.CodeInternal
	}
	s.metrics.RecordLogin(code, "", s.clock.Now().Sub(started))
	s.logger.Info("login failed",
		zap.Uint64("attempt", attempt),
		zap.String("stage", string(stage)),
		zap.String("code", code),
		zap.Bool("superseded", !current),
		zap.Error(err))

	if current {
		s.publish(context.WithoutCancel(ctx), events.Event{
			Type:    events.EventLoginFailed,
			Attempt: attempt,
			Payload: events.LoginFailedPayload{
				Code:        code,
				Reason:      err.Error(),
				ClaimedRole: cred.ClaimedRole,
				Stage:       stage,
			},
		})
	}
	return err
}

func (s *SessionService) publish(ctx context.Context, event events.Event) {
	if s.dispatcher == nil {
		return
	}
	event.ID = uuid.NewString()
	event.Timestamp = s.clock.Now()
	if err := s.dispatcher.Publish(ctx, event); err != nil {
		s.logger.Warn("event handler failed", zap.String("event_type", string(event.Type)), zap.Error(err))
	}
}

func superseded(err error) error {
	if errors.Is(err, apperrors.ErrCancelled) {
		return err
	}
	return apperrors.NewCancelled("login superseded by a newer attempt", err)
}

func isContextError(err error) bool {
	return errors.Is(err, apperrors.ErrCancelled) || errors.Is(err, apperrors.ErrTimeout)
}
