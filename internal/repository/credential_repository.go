package repository

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrCredentialNotFound is returned when no credential matches the identifier.
var ErrCredentialNotFound = errors.New("credential not found")

// CredentialRecord is a login credential bound to a subject.
type CredentialRecord struct {
	SubjectID    string
	Identifier   string
	PasswordHash string
	Active       bool
}

// CredentialRepository looks up credentials by email-like identifier or subject id.
type CredentialRepository interface {
	GetByIdentifier(ctx context.Context, identifier string) (*CredentialRecord, error)
}

type credentialRepository struct {
	pool *pgxpool.Pool
}

// NewCredentialRepository returns a Postgres-backed implementation.
func NewCredentialRepository(pool *pgxpool.Pool) CredentialRepository {
	return &credentialRepository{pool: pool}
}

func (r *credentialRepository) GetByIdentifier(ctx context.Context, identifier string) (*CredentialRecord, error) {
	const query = `
        SELECT subject_id, identifier, password_hash, active_flag
        FROM credentials WHERE lower(identifier)=lower($1) OR subject_id=$1
        LIMIT 1`

	var cred CredentialRecord
	if err := r.pool.QueryRow(ctx, query, identifier).Scan(
		&cred.SubjectID,
		&cred.Identifier,
		&cred.PasswordHash,
		&cred.Active,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrCredentialNotFound
		}
		return nil, err
	}
	return &cred, nil
}

// MemoryCredentialRepository is an in-memory CredentialRepository. It is safe for concurrent use.
type MemoryCredentialRepository struct {
	mu    sync.RWMutex
	creds []CredentialRecord
}

func NewMemoryCredentialRepository() *MemoryCredentialRepository {
	return &MemoryCredentialRepository{}
}

// Add registers a credential.
func (r *MemoryCredentialRepository) Add(cred CredentialRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.creds = append(r.creds, cred)
}

func (r *MemoryCredentialRepository) GetByIdentifier(ctx context.Context, identifier string) (*CredentialRecord, error) {
	_ = ctx
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, cred := range r.creds {
		if strings.EqualFold(cred.Identifier, identifier) || cred.SubjectID == identifier {
			found := cred
			return &found, nil
		}
	}
	return nil, ErrCredentialNotFound
}
