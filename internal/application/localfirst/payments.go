package localfirst

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/zanmi-app/zanmi-go/internal/core/domain"
	"github.com/zanmi-app/zanmi-go/internal/core/ports"
)

// PaymentService submits a contribution payment with an optimistic
// local update. The matching enrollment's contributed total is bumped
// and published before the network call; a failed call restores the
// pre-mutation snapshot verbatim. Either way the settled mutation
// invalidates the resource queries and their cached responses, so the
// optimistic guess is never the last word.
type PaymentService struct {
	api       APIClient
	repo      ports.LocalRepository
	queries   *QueryCache
	responses ports.ResponseCacheStore
	logger    *zap.Logger
	newID     func() string
}

// NewPaymentService wires the mutator over the pipeline client, the
// shared query cache, and the response cache it invalidates on settle.
func NewPaymentService(api APIClient, repo ports.LocalRepository, queries *QueryCache, responses ports.ResponseCacheStore, logger *zap.Logger) *PaymentService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PaymentService{
		api:       api,
		repo:      repo,
		queries:   queries,
		responses: responses,
		logger:    logger,
		newID:     uuid.NewString,
	}
}

// Pay submits amount (minor units) against an enrollment in the given
// pool scope. The returned result tags how the mutation settled;
// Err carries the network failure on rollback.
func (s *PaymentService) Pay(ctx context.Context, scopeID, enrollmentID string, amount int64) domain.MutationResult {
	key := enrollmentsQueryKey(scopeID)
	snapshot, applied := s.applyOptimistic(ctx, key, enrollmentID, amount)

	req := domain.PaymentRequest{
		EnrollmentID:   enrollmentID,
		Amount:         amount,
		IdempotencyKey: s.newID(),
	}
	err := s.api.PostJSON(ctx, "/payments", req, nil)

	if err != nil && applied {
		// Exact snapshot restore, not a recomputation.
		s.queries.Set(key, snapshot)
	}
	s.settle(ctx, key)

	if err != nil {
		s.logger.Warn("payment rolled back",
			zap.String("enrollment", enrollmentID),
			zap.Int64("amount", amount),
			zap.Error(err))
		return domain.MutationResult{Status: domain.MutationRolledBack, Err: err}
	}
	return domain.MutationResult{Status: domain.MutationApplied}
}

// applyOptimistic snapshots the current enrollment list and publishes
// the optimistically bumped copy. When the enrollment is not in the
// local list there is nothing to guess at, so no publish happens and
// the call degrades to plain request/response.
func (s *PaymentService) applyOptimistic(ctx context.Context, key, enrollmentID string, amount int64) (snapshot []domain.Enrollment, applied bool) {
	if v, present, _ := s.queries.Peek(key); present {
		if enrollments, ok := v.([]domain.Enrollment); ok {
			snapshot = enrollments
		}
	}
	if snapshot == nil {
		var err error
		snapshot, err = s.repo.GetEnrollments(ctx, scopeFromKey(key))
		if err != nil {
			s.logger.Debug("optimistic snapshot unavailable", zap.Error(err))
			return nil, false
		}
	}

	next, ok := domain.ApplyContribution(snapshot, enrollmentID, amount)
	if !ok {
		return snapshot, false
	}
	s.queries.Set(key, next)
	return snapshot, true
}

// settle marks the enrollment and pool queries stale and drops the
// cached responses they were served from, forcing the next read to
// reconcile with the server.
func (s *PaymentService) settle(ctx context.Context, enrollmentsKey string) {
	s.queries.Invalidate(enrollmentsKey)
	s.queries.Invalidate(PoolsQueryKey)

	if s.responses == nil {
		return
	}
	for _, prefix := range []string{"GET:/enrollments", "GET:/pools"} {
		if err := s.responses.ClearCacheCategory(ctx, prefix); err != nil {
			s.logger.Debug("response cache invalidation failed",
				zap.String("prefix", prefix), zap.Error(err))
		}
	}
}

func scopeFromKey(key string) string {
	return key[len("enrollments:"):]
}
