package identity_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/portal-session/internal/domain"
	"github.com/spec-kit/portal-session/internal/identity"
	"github.com/spec-kit/portal-session/internal/repository"
	apperrors "github.com/spec-kit/portal-session/pkg/util/errorutil"
)

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

func profileJSON(name string) repository.Record {
	return repository.Record(fmt.Sprintf(`{"name":%q,"email":"x@example.com"}`, name))
}

// delayed answers after delay, or with the context error if it ends first.
func delayed(delay time.Duration, next repository.IdentityStore) repository.IdentityStore {
	return repository.IdentityStoreFunc(func(ctx context.Context, subjectID string) (repository.Record, error) {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		return next.Get(ctx, subjectID)
	})
}

func blocking() repository.IdentityStore {
	return repository.IdentityStoreFunc(func(ctx context.Context, _ string) (repository.Record, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
}

func failing(err error) repository.IdentityStore {
	return repository.IdentityStoreFunc(func(context.Context, string) (repository.Record, error) {
		return nil, err
	})
}

func newStores() (repository.IdentityStores, map[domain.RolePartition]*repository.MemoryIdentityStore) {
	return repository.NewMemoryIdentityStores()
}

func TestResolveSinglePartition(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	for _, partition := range domain.Partitions {
		t.Run(string(partition), func(t *testing.T) {
			t.Parallel()
			stores, backing := newStores()
			backing[partition].Put("U1", profileJSON("Casey"))

			claimed := domain.ClaimedRoleStaff
			if partition == domain.PartitionPatient {
				claimed = domain.ClaimedRolePatient
			}

			resolver := identity.NewResolver(stores, identity.WithClock(fixedClock{now: now}))
			got, err := resolver.Resolve(context.Background(), "U1", claimed, time.Second)
			require.NoError(t, err)
			assert.Equal(t, partition, got.Role)
			assert.Equal(t, domain.Subject("U1"), got.Subject)
			assert.Equal(t, now, got.ResolvedAt)
		})
	}
}

func TestResolveStaffCredentialToDoctor(t *testing.T) {
	t.Parallel()

	stores, backing := newStores()
	backing[domain.PartitionDoctor].Put("U1", repository.Record(`{"name":"Dr. Ada","email":"ada@example.com","department":"cardiology"}`))

	got, err := identity.NewResolver(stores).Resolve(context.Background(), "U1", domain.ClaimedRoleStaff, 0)
	require.NoError(t, err)
	assert.Equal(t, domain.PartitionDoctor, got.Role)

	profile, ok := got.Profile.(domain.StaffProfile)
	require.True(t, ok)
	assert.Equal(t, "U1", profile.ID)
	assert.Equal(t, "cardiology", profile.Department)
}

func TestResolveAdminWinsOverStaff(t *testing.T) {
	t.Parallel()

	stores, backing := newStores()
	backing[domain.PartitionAdmin].Put("U1", profileJSON("Root"))
	backing[domain.PartitionNurse].Put("U1", profileJSON("Nora"))
	stores[domain.PartitionAdmin] = delayed(20*time.Millisecond, backing[domain.PartitionAdmin])

	got, err := identity.NewResolver(stores).Resolve(context.Background(), "U1", domain.ClaimedRoleStaff, time.Second)
	require.NoError(t, err)
	assert.Equal(t, domain.PartitionAdmin, got.Role)
}

func TestResolveStaffTieBreakIsDeterministic(t *testing.T) {
	t.Parallel()

	stores, backing := newStores()
	backing[domain.PartitionNurse].Put("U1", profileJSON("Nora"))
	backing[domain.PartitionDoctor].Put("U1", profileJSON("Doc"))
	backing[domain.PartitionAccountant].Put("U1", profileJSON("Acc"))
	// The lower-ordered partition answers last.
	stores[domain.PartitionNurse] = delayed(15*time.Millisecond, backing[domain.PartitionNurse])

	resolver := identity.NewResolver(stores)
	for range 10 {
		got, err := resolver.Resolve(context.Background(), "U1", domain.ClaimedRoleStaff, time.Second)
		require.NoError(t, err)
		assert.Equal(t, domain.PartitionNurse, got.Role)
	}
}

func TestResolveWinnerDoesNotWaitForHigherOrderedPartitions(t *testing.T) {
	t.Parallel()

	stores, backing := newStores()
	backing[domain.PartitionNurse].Put("U1", profileJSON("Nora"))
	stores[domain.PartitionDoctor] = blocking()
	stores[domain.PartitionAccountant] = blocking()

	start := time.Now()
	got, err := identity.NewResolver(stores).Resolve(context.Background(), "U1", domain.ClaimedRoleStaff, 2*time.Second)
	require.NoError(t, err)
	assert.Equal(t, domain.PartitionNurse, got.Role)
	assert.Less(t, time.Since(start), time.Second)
}

func TestResolveTimeout(t *testing.T) {
	t.Parallel()

	stores, _ := newStores()
	stores[domain.PartitionNurse] = blocking()

	_, err := identity.NewResolver(stores).Resolve(context.Background(), "U1", domain.ClaimedRoleStaff, 30*time.Millisecond)
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrTimeout)
}

func TestResolveDeadlineKeepsArrivedMatch(t *testing.T) {
	t.Parallel()

	stores, backing := newStores()
	backing[domain.PartitionDoctor].Put("U1", profileJSON("Doc"))
	backing[domain.PartitionAccountant].Put("U1", profileJSON("Acc"))
	stores[domain.PartitionNurse] = blocking()

	start := time.Now()
	got, err := identity.NewResolver(stores).Resolve(context.Background(), "U1", domain.ClaimedRoleStaff, 50*time.Millisecond)
	require.NoError(t, err)
	// Accountant is the lowest-ordered partition that answered.
	assert.Equal(t, domain.PartitionAccountant, got.Role)
	assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)
}

func TestResolveDeadlineDoctorOnly(t *testing.T) {
	t.Parallel()

	stores, backing := newStores()
	backing[domain.PartitionDoctor].Put("U1", profileJSON("Doc"))
	stores[domain.PartitionNurse] = blocking()

	got, err := identity.NewResolver(stores).Resolve(context.Background(), "U1", domain.ClaimedRoleStaff, 50*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, domain.PartitionDoctor, got.Role)
	assert.Equal(t, domain.Subject("U1"), got.Subject)
}

func TestResolveCancelled(t *testing.T) {
	t.Parallel()

	stores, _ := newStores()
	stores[domain.PartitionAdmin] = blocking()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	_, err := identity.NewResolver(stores).Resolve(ctx, "U1", domain.ClaimedRoleStaff, time.Second)
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrCancelled)
}

func TestResolveDecodeErrorIsTerminal(t *testing.T) {
	t.Parallel()

	t.Run("lower partition malformed", func(t *testing.T) {
		t.Parallel()
		stores, backing := newStores()
		backing[domain.PartitionNurse].Put("U1", repository.Record(`{"name":`))
		backing[domain.PartitionDoctor].Put("U1", profileJSON("Doc"))

		_, err := identity.NewResolver(stores).Resolve(context.Background(), "U1", domain.ClaimedRoleStaff, time.Second)
		require.Error(t, err)
		assert.ErrorIs(t, err, apperrors.ErrDecode)
	})

	t.Run("admin malformed stops staff lookups", func(t *testing.T) {
		t.Parallel()
		stores, backing := newStores()
		backing[domain.PartitionAdmin].Put("U1", repository.Record(`{"email":"root@example.com"}`))
		backing[domain.PartitionNurse].Put("U1", profileJSON("Nora"))

		_, err := identity.NewResolver(stores).Resolve(context.Background(), "U1", domain.ClaimedRoleStaff, time.Second)
		assert.ErrorIs(t, err, apperrors.ErrDecode)
	})

	t.Run("patient malformed", func(t *testing.T) {
		t.Parallel()
		stores, backing := newStores()
		backing[domain.PartitionPatient].Put("P1", repository.Record(`[]`))

		_, err := identity.NewResolver(stores).Resolve(context.Background(), "P1", domain.ClaimedRolePatient, time.Second)
		assert.ErrorIs(t, err, apperrors.ErrDecode)
	})
}

func TestResolvePartialFailures(t *testing.T) {
	t.Parallel()

	t.Run("failed partition is a miss", func(t *testing.T) {
		t.Parallel()
		stores, backing := newStores()
		stores[domain.PartitionNurse] = failing(errors.New("connection refused"))
		backing[domain.PartitionDoctor].Put("U1", profileJSON("Doc"))

		got, err := identity.NewResolver(stores).Resolve(context.Background(), "U1", domain.ClaimedRoleStaff, time.Second)
		require.NoError(t, err)
		assert.Equal(t, domain.PartitionDoctor, got.Role)
	})

	t.Run("not found reports failed partitions", func(t *testing.T) {
		t.Parallel()
		stores, _ := newStores()
		stores[domain.PartitionLabTechnician] = failing(errors.New("shard offline"))

		_, err := identity.NewResolver(stores).Resolve(context.Background(), "U1", domain.ClaimedRoleStaff, time.Second)
		require.ErrorIs(t, err, apperrors.ErrNotFound)

		domainErr := apperrors.ToDomainError(err)
		assert.Equal(t, []string{string(domain.PartitionLabTechnician)}, domainErr.Details["failed_partitions"])
	})
}

func TestResolvePatientOnlyForPatientLogins(t *testing.T) {
	t.Parallel()

	stores, backing := newStores()
	backing[domain.PartitionPatient].Put("P1", profileJSON("Pat"))
	resolver := identity.NewResolver(stores)

	_, err := resolver.Resolve(context.Background(), "P1", domain.ClaimedRoleStaff, time.Second)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)

	got, err := resolver.Resolve(context.Background(), "P1", domain.ClaimedRolePatient, time.Second)
	require.NoError(t, err)
	assert.Equal(t, domain.PartitionPatient, got.Role)
}

func TestResolveStaffMatchBeatsPatient(t *testing.T) {
	t.Parallel()

	stores, backing := newStores()
	backing[domain.PartitionPatient].Put("U1", profileJSON("Pat"))
	backing[domain.PartitionLabTechnician].Put("U1", profileJSON("Lab"))

	got, err := identity.NewResolver(stores).Resolve(context.Background(), "U1", domain.ClaimedRolePatient, time.Second)
	require.NoError(t, err)
	assert.Equal(t, domain.PartitionLabTechnician, got.Role)
}
