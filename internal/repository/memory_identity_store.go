package repository

import (
	"context"
	"sync"

	"github.com/spec-kit/portal-session/internal/domain"
)

// MemoryIdentityStore is an in-memory IdentityStore. It is safe for concurrent use.
type MemoryIdentityStore struct {
	mu      sync.RWMutex
	records map[string]Record
}

func NewMemoryIdentityStore() *MemoryIdentityStore {
	return &MemoryIdentityStore{records: make(map[string]Record)}
}

// Put stores a copy of the record under subjectID.
func (s *MemoryIdentityStore) Put(subjectID string, record Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[subjectID] = append(Record(nil), record...)
}

// Delete removes the subject. Missing subjects are ignored.
func (s *MemoryIdentityStore) Delete(subjectID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, subjectID)
}

func (s *MemoryIdentityStore) Get(ctx context.Context, subjectID string) (Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	record, ok := s.records[subjectID]
	if !ok {
		return nil, ErrRecordNotFound
	}
	return append(Record(nil), record...), nil
}

// NewMemoryIdentityStores builds one empty in-memory store per partition.
func NewMemoryIdentityStores() (IdentityStores, map[domain.RolePartition]*MemoryIdentityStore) {
	stores := make(IdentityStores, len(domain.Partitions))
	backing := make(map[domain.RolePartition]*MemoryIdentityStore, len(domain.Partitions))
	for _, partition := range domain.Partitions {
		store := NewMemoryIdentityStore()
		stores[partition] = store
		backing[partition] = store
	}
	return stores, backing
}
