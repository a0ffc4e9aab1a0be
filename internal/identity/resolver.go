package identity

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/portal-session/internal/clock"
	"github.com/spec-kit/portal-session/internal/domain"
	"github.com/spec-kit/portal-session/internal/repository"
	apperrors "github.com/spec-kit/portal-session/pkg/util/errorutil"
)

// DefaultDeadline bounds a whole resolution when the caller passes none.
const DefaultDeadline = 10 * time.Second

// Resolver determines the single role partition a subject belongs to.
//
// Admin is consulted first and short-circuits on a match. Otherwise the staff partitions are
// queried concurrently and the lowest-ordered partition that matched wins, regardless of which
// lookup returned first. Patient is consulted last, and only for patient logins. Lookups still
// in flight when the resolution ends are abandoned; their results are dropped.
type Resolver struct {
	stores   repository.IdentityStores
	clock    clock.Clock
	logger   *zap.Logger
	deadline time.Duration
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithClock sets the clock used to stamp ResolvedAt.
func WithClock(c clock.Clock) Option {
	return func(r *Resolver) {
		if c != nil {
			r.clock = c
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(r *Resolver) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithDefaultDeadline overrides DefaultDeadline.
func WithDefaultDeadline(d time.Duration) Option {
	return func(r *Resolver) {
		if d > 0 {
			r.deadline = d
		}
	}
}

// NewResolver builds a resolver over the partition stores.
func NewResolver(stores repository.IdentityStores, opts ...Option) *Resolver {
	r := &Resolver{
		stores:   stores,
		clock:    clock.NewSystemClock(),
		logger:   zap.NewNop(),
		deadline: DefaultDeadline,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// outcome is one partition's answer. A miss has neither identity nor err.
type outcome struct {
	partition domain.RolePartition
	identity  *domain.ResolvedIdentity
	err       error
	storeErr  error
}

func (o outcome) decisive() bool {
	return o.identity != nil || o.err != nil
}

// Resolve returns the subject's identity, or one of NotFound, DecodeError, Timeout or Cancelled.
// A deadline <= 0 uses the resolver default.
func (r *Resolver) Resolve(ctx context.Context, subject domain.Subject, claimed domain.ClaimedRole, deadline time.Duration) (*domain.ResolvedIdentity, error) {
	if deadline <= 0 {
		deadline = r.deadline
	}
	ctx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	var failed []domain.RolePartition

	stages := [][]domain.RolePartition{
		{domain.PartitionAdmin},
		domain.StaffPartitions,
	}
	if claimed == domain.ClaimedRolePatient {
		stages = append(stages, []domain.RolePartition{domain.PartitionPatient})
	}

	for _, stage := range stages {
		winner, stageFailed, err := r.firstMatch(ctx, subject, stage)
		failed = append(failed, stageFailed...)
		if err != nil {
			r.logger.Info("role resolution abandoned",
				zap.String("subject", string(subject)),
				zap.Error(err))
			return nil, err
		}
		if winner == nil {
			continue
		}
		if winner.err != nil {
			r.logger.Warn("identity record malformed",
				zap.String("subject", string(subject)),
				zap.String("partition", string(winner.partition)),
				zap.Error(winner.err))
			return nil, winner.err
		}
		return winner.identity, nil
	}

	details := map[string]any{"subject": string(subject)}
	if len(failed) > 0 {
		names := make([]string, 0, len(failed))
		for _, p := range failed {
			names = append(names, string(p))
		}
		details["failed_partitions"] = names
	}
	return nil, apperrors.NewNotFound("identity", details)
}

// firstMatch queries partitions concurrently and returns the lowest-ordered decisive outcome,
// or nil when every partition missed. It returns as soon as the winner is known; the
// remaining lookups are cancelled. When the deadline expires first, a decisive outcome that
// already arrived still wins; only an empty result becomes Timeout.
func (r *Resolver) firstMatch(ctx context.Context, subject domain.Subject, partitions []domain.RolePartition) (*outcome, []domain.RolePartition, error) {
	lookupCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Buffered so abandoned lookups never block on send.
	results := make(chan outcome, len(partitions))
	for _, partition := range partitions {
		go func(partition domain.RolePartition) {
			results <- r.lookup(lookupCtx, partition, subject)
		}(partition)
	}

	reported := make([]*outcome, len(partitions))
	var failed []domain.RolePartition
	for received := 0; received < len(partitions); received++ {
		select {
		case <-ctx.Done():
			// At the deadline the lowest-ordered match that did arrive wins over partitions
			// that never answered.
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				failed = drain(results, partitions, reported, failed)
				for _, candidate := range reported {
					if candidate != nil && candidate.decisive() {
						return candidate, failed, nil
					}
				}
			}
			return nil, failed, apperrors.FromContext(ctx, "role resolution")
		case o := <-results:
			failed = record(o, partitions, reported, failed)
			for _, candidate := range reported {
				if candidate == nil {
					break
				}
				if candidate.decisive() {
					return candidate, failed, nil
				}
			}
		}
	}
	return nil, failed, nil
}

func record(o outcome, partitions []domain.RolePartition, reported []*outcome, failed []domain.RolePartition) []domain.RolePartition {
	for i, partition := range partitions {
		if partition == o.partition {
			reported[i] = &o
			break
		}
	}
	if o.storeErr != nil {
		failed = append(failed, o.partition)
	}
	return failed
}

// drain records outcomes already buffered without waiting for the rest.
func drain(results <-chan outcome, partitions []domain.RolePartition, reported []*outcome, failed []domain.RolePartition) []domain.RolePartition {
	for {
		select {
		case o := <-results:
			failed = record(o, partitions, reported, failed)
		default:
			return failed
		}
	}
}

func (r *Resolver) lookup(ctx context.Context, partition domain.RolePartition, subject domain.Subject) outcome {
	result := outcome{partition: partition}

	store, ok := r.stores[partition]
	if !ok || store == nil {
		return result
	}

	record, err := store.Get(ctx, string(subject))
	if ctx.Err() != nil {
		r.logger.Debug("identity lookup finished after resolution ended",
			zap.String("partition", string(partition)),
			zap.String("subject", string(subject)))
	}
	switch {
	case errors.Is(err, repository.ErrRecordNotFound):
		return result
	case err != nil:
		if ctx.Err() == nil {
			r.logger.Warn("identity store lookup failed",
				zap.String("partition", string(partition)),
				zap.Error(err))
		}
		result.storeErr = err
		return result
	}

	profile, err := DecodeProfile(partition, subject, record)
	if err != nil {
		result.err = apperrors.NewDecodeError(string(partition), err)
		return result
	}

	result.identity = &domain.ResolvedIdentity{
		Subject:    subject,
		Role:       partition,
		Profile:    profile,
		ResolvedAt: r.clock.Now(),
	}
	return result
}
