package repository

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/spec-kit/portal-session/internal/domain"
)

const identityCachePrefix = "identity:"

type cachedIdentityStore struct {
	next      IdentityStore
	client    *redis.Client
	partition domain.RolePartition
	ttl       time.Duration
	logger    *zap.Logger
}

// NewCachedIdentityStore wraps next with a Redis read-through cache. Only hits are cached;
// cache failures fall through to next.
func NewCachedIdentityStore(next IdentityStore, client *redis.Client, partition domain.RolePartition, ttl time.Duration, logger *zap.Logger) IdentityStore {
	if client == nil || ttl <= 0 {
		return next
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &cachedIdentityStore{next: next, client: client, partition: partition, ttl: ttl, logger: logger}
}

// WithCache wraps every store in stores with the Redis cache.
func WithCache(stores IdentityStores, client *redis.Client, ttl time.Duration, logger *zap.Logger) IdentityStores {
	wrapped := make(IdentityStores, len(stores))
	for partition, store := range stores {
		wrapped[partition] = NewCachedIdentityStore(store, client, partition, ttl, logger)
	}
	return wrapped
}

func (s *cachedIdentityStore) Get(ctx context.Context, subjectID string) (Record, error) {
	key := s.key(subjectID)

	cached, err := s.client.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		return Record(cached), nil
	case !errors.Is(err, redis.Nil):
		s.logger.Warn("identity cache read failed",
			zap.String("partition", string(s.partition)),
			zap.Error(err))
	}

	record, err := s.next.Get(ctx, subjectID)
	if err != nil {
		return nil, err
	}

	if err := s.client.Set(ctx, key, []byte(record), s.ttl).Err(); err != nil {
		s.logger.Warn("identity cache write failed",
			zap.String("partition", string(s.partition)),
			zap.Error(err))
	}
	return record, nil
}

func (s *cachedIdentityStore) key(subjectID string) string {
	return identityCachePrefix + s.partition.Collection() + ":" + subjectID
}
