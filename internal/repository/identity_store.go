package repository

import (
	"context"
	"errors"

	"github.com/spec-kit/portal-session/internal/domain"
)

// ErrRecordNotFound is returned by identity stores when the subject is absent from the partition.
var ErrRecordNotFound = errors.New("identity record not found")

// Record is the raw JSON document stored for a subject in one partition.
type Record []byte

// IdentityStore is a keyed lookup against one role-partitioned collection.
// Get returns ErrRecordNotFound on a miss; any other error is a store failure.
type IdentityStore interface {
	Get(ctx context.Context, subjectID string) (Record, error)
}

// IdentityStores maps each partition to its store.
type IdentityStores map[domain.RolePartition]IdentityStore

// IdentityStoreFunc adapts a function to IdentityStore.
type IdentityStoreFunc func(ctx context.Context, subjectID string) (Record, error)

func (f IdentityStoreFunc) Get(ctx context.Context, subjectID string) (Record, error) {
	return f(ctx, subjectID)
}
