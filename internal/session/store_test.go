package session_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/portal-session/internal/domain"
	"github.com/spec-kit/portal-session/internal/session"
)

func identityFor(subject string, role domain.RolePartition) domain.ResolvedIdentity {
	return domain.ResolvedIdentity{Subject: domain.Subject(subject), Role: role}
}

func TestStoreSetRequiresLatestAttempt(t *testing.T) {
	t.Parallel()

	store := session.NewStore()
	first := store.Begin()
	second := store.Begin()

	err := store.Set(first, identityFor("U1", domain.PartitionDoctor))
	assert.ErrorIs(t, err, session.ErrStaleAttempt)
	_, ok := store.Current()
	assert.False(t, ok)

	require.NoError(t, store.Set(second, identityFor("U2", domain.PartitionNurse)))
	current, ok := store.Current()
	require.True(t, ok)
	assert.Equal(t, domain.Subject("U2"), current.Subject)
}

func TestStoreSetRejectsMismatchedSubject(t *testing.T) {
	t.Parallel()

	store := session.NewStore()
	attempt := store.Begin()
	require.NoError(t, store.Bind(attempt, "U1"))

	assert.ErrorIs(t, store.Set(attempt, identityFor("U2", domain.PartitionAdmin)), session.ErrStaleAttempt)
	assert.NoError(t, store.Set(attempt, identityFor("U1", domain.PartitionAdmin)))
}

func TestStoreBindStaleAttempt(t *testing.T) {
	t.Parallel()

	store := session.NewStore()
	attempt := store.Begin()
	store.Invalidate()
	assert.ErrorIs(t, store.Bind(attempt, "U1"), session.ErrStaleAttempt)
}

func TestStoreClearIsIdempotent(t *testing.T) {
	t.Parallel()

	store := session.NewStore()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	changes := store.Observe(ctx)

	attempt := store.Begin()
	require.NoError(t, store.Set(attempt, identityFor("U1", domain.PartitionDoctor)))
	store.Clear()
	store.Clear()

	first := <-changes
	assert.Equal(t, session.ChangeSet, first.Kind)
	require.NotNil(t, first.Identity)
	assert.Equal(t, domain.PartitionDoctor, first.Identity.Role)

	second := <-changes
	assert.Equal(t, session.ChangeCleared, second.Kind)
	assert.Nil(t, second.Identity)

	select {
	case extra := <-changes:
		t.Fatalf("unexpected change after idempotent clear: %+v", extra)
	case <-time.After(20 * time.Millisecond):
	}
}

func TestStoreBeginClearsPreviousIdentity(t *testing.T) {
	t.Parallel()

	store := session.NewStore()
	attempt := store.Begin()
	require.NoError(t, store.Set(attempt, identityFor("U1", domain.PartitionDoctor)))

	store.Begin()
	_, ok := store.Current()
	assert.False(t, ok)
}

func TestStoreClearAttempt(t *testing.T) {
	t.Parallel()

	store := session.NewStore()
	stale := store.Begin()
	current := store.Begin()
	require.NoError(t, store.Set(current, identityFor("U1", domain.PartitionNurse)))

	assert.False(t, store.ClearAttempt(stale))
	_, ok := store.Current()
	assert.True(t, ok)

	assert.True(t, store.ClearAttempt(current))
	_, ok = store.Current()
	assert.False(t, ok)
}

func TestStoreObserveStopsOnCancel(t *testing.T) {
	t.Parallel()

	store := session.NewStore()
	ctx, cancel := context.WithCancel(context.Background())
	changes := store.Observe(ctx)
	cancel()

	require.Eventually(t, func() bool {
		select {
		case _, open := <-changes:
			return !open
		default:
			return false
		}
	}, time.Second, 5*time.Millisecond)
}

func TestStoreCloseClosesObservers(t *testing.T) {
	t.Parallel()

	store := session.NewStore()
	changes := store.Observe(context.Background())
	store.Close()
	store.Close()

	_, open := <-changes
	assert.False(t, open)

	late := store.Observe(context.Background())
	_, open = <-late
	assert.False(t, open)
}

func TestStoreConcurrentWritersOnlyLatestWins(t *testing.T) {
	t.Parallel()

	store := session.NewStore()
	attempts := make([]uint64, 50)
	for i := range attempts {
		attempts[i] = store.Begin()
	}

	var wg sync.WaitGroup
	for i, attempt := range attempts {
		wg.Add(1)
		go func(i int, attempt uint64) {
			defer wg.Done()
			_ = store.Set(attempt, identityFor("U"+string(rune('A'+i%26)), domain.PartitionDoctor))
		}(i, attempt)
	}
	wg.Wait()

	current, ok := store.Current()
	require.True(t, ok)
	assert.Equal(t, attempts[len(attempts)-1], store.Attempt())
	assert.Equal(t, identityFor("U"+string(rune('A'+(len(attempts)-1)%26)), domain.PartitionDoctor).Subject, current.Subject)
}
