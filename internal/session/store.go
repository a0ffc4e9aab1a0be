package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/spec-kit/portal-session/internal/clock"
	"github.com/spec-kit/portal-session/internal/domain"
)

// ErrStaleAttempt is returned when a write carries an attempt token that is no longer current,
// or an identity for a subject other than the one bound to the attempt.
var ErrStaleAttempt = errors.New("stale session attempt")

// ChangeKind describes a session mutation.
type ChangeKind string

const (
	ChangeSet     ChangeKind = "set"
	ChangeCleared ChangeKind = "cleared"
)

// Change is delivered to observers after every effective mutation.
type Change struct {
	Kind     ChangeKind
	Identity *domain.ResolvedIdentity
	Attempt  uint64
	At       time.Time
}

const defaultObserverBuffer = 16

// Store holds at most one resolved identity for the process. All mutations are serialized
// under one mutex; writes are accepted only for the latest attempt token.
type Store struct {
	mu        sync.Mutex
	attempt   uint64
	subject   domain.Subject
	current   *domain.ResolvedIdentity
	observers map[*observer]struct{}
	buffer    int
	closed    bool
	clock     clock.Clock
}

type observer struct {
	ch chan Change
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithStoreClock sets the clock used to stamp changes.
func WithStoreClock(c clock.Clock) StoreOption {
	return func(s *Store) {
		if c != nil {
			s.clock = c
		}
	}
}

// WithObserverBuffer sets the per-observer channel size. Minimum 1.
func WithObserverBuffer(size int) StoreOption {
	return func(s *Store) {
		s.buffer = max(size, 1)
	}
}

// NewStore returns an empty store.
func NewStore(opts ...StoreOption) *Store {
	s := &Store{
		observers: make(map[*observer]struct{}),
		buffer:    defaultObserverBuffer,
		clock:     clock.NewSystemClock(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Begin starts a new login attempt: it invalidates every earlier token, clears the current
// identity and returns the new token.
func (s *Store) Begin() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.attempt++
	s.subject = ""
	s.clearLocked()
	return s.attempt
}

// Invalidate bumps the attempt token without touching the current identity.
func (s *Store) Invalidate() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.attempt++
	s.subject = ""
	return s.attempt
}

// Bind records the subject the attempt is resolving.
func (s *Store) Bind(attempt uint64, subject domain.Subject) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if attempt != s.attempt {
		return ErrStaleAttempt
	}
	s.subject = subject
	return nil
}

// Set publishes identity if attempt is still the latest one and the identity matches the bound subject.
func (s *Store) Set(attempt uint64, identity domain.ResolvedIdentity) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if attempt != s.attempt {
		return ErrStaleAttempt
	}
	if s.subject != "" && identity.Subject != s.subject {
		return ErrStaleAttempt
	}

	stored := identity
	s.current = &stored
	s.notifyLocked(ChangeSet)
	return nil
}

// Clear drops the current identity. It is idempotent and only notifies when something was cleared.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clearLocked()
}

// ClearAttempt clears only if attempt is still the latest one.
func (s *Store) ClearAttempt(attempt uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if attempt != s.attempt {
		return false
	}
	s.clearLocked()
	return true
}

// Current returns a copy of the active identity.
func (s *Store) Current() (domain.ResolvedIdentity, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current == nil {
		return domain.ResolvedIdentity{}, false
	}
	return *s.current, true
}

// Attempt returns the latest attempt token.
func (s *Store) Attempt() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attempt
}

// Observe returns a channel of changes until ctx ends or the store is closed.
// Slow observers miss changes rather than blocking writers.
func (s *Store) Observe(ctx context.Context) <-chan Change {
	s.mu.Lock()
	defer s.mu.Unlock()

	obs := &observer{ch: make(chan Change, s.buffer)}
	if s.closed {
		close(obs.ch)
		return obs.ch
	}
	s.observers[obs] = struct{}{}

	go func() {
		<-ctx.Done()
		s.unobserve(obs)
	}()
	return obs.ch
}

// Close closes every observer channel. Mutations keep working afterwards.
func (s *Store) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	s.closed = true
	for obs := range s.observers {
		close(obs.ch)
	}
	clear(s.observers)
}

func (s *Store) unobserve(obs *observer) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.observers[obs]; !ok {
		return
	}
	delete(s.observers, obs)
	close(obs.ch)
}

func (s *Store) clearLocked() {
	if s.current == nil {
		return
	}
	s.current = nil
	s.notifyLocked(ChangeCleared)
}

func (s *Store) notifyLocked(kind ChangeKind) {
	change := Change{Kind: kind, Attempt: s.attempt, At: s.clock.Now()}
	if s.current != nil {
		identity := *s.current
		change.Identity = &identity
	}
	for obs := range s.observers {
		select {
		case obs.ch <- change:
		default:
		}
	}
}
