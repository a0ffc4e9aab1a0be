package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/portal-session/internal/domain"
)

type pgIdentityStore struct {
	pool  *pgxpool.Pool
	query string
}

// NewPostgresIdentityStore returns a store reading the partition's table.
func NewPostgresIdentityStore(pool *pgxpool.Pool, partition domain.RolePartition) IdentityStore {
	table := pgx.Identifier{partition.Collection()}.Sanitize()
	return &pgIdentityStore{
		pool:  pool,
		query: fmt.Sprintf(`SELECT profile FROM %s WHERE subject_id=$1`, table),
	}
}

// NewPostgresIdentityStores builds one store per partition over a shared pool.
func NewPostgresIdentityStores(pool *pgxpool.Pool) IdentityStores {
	stores := make(IdentityStores, len(domain.Partitions))
	for _, partition := range domain.Partitions {
		stores[partition] = NewPostgresIdentityStore(pool, partition)
	}
	return stores
}

func (s *pgIdentityStore) Get(ctx context.Context, subjectID string) (Record, error) {
	var profile []byte
	if err := s.pool.QueryRow(ctx, s.query, subjectID).Scan(&profile); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrRecordNotFound
		}
		return nil, err
	}
	return Record(profile), nil
}
