package localfirst

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/zanmi-app/zanmi-go/internal/core/domain"
	"github.com/zanmi-app/zanmi-go/internal/core/ports"
)

// PoolsQueryKey is the query-cache key for the global pool list.
// Exported so views subscribing to pool updates use the same key the
// readers publish under.
const PoolsQueryKey = "pools"

const (
	// defaultMaxAge bounds how out-of-date an instantly-served local
	// mirror may be. Financial figures older than this block on the
	// network instead.
	defaultMaxAge = 2 * time.Minute

	// refetchDelay defers the background revalidation a few seconds so
	// a burst of reads on screen mount issues one fetch, not many.
	refetchDelay = 3 * time.Second

	// refetchMinGap throttles background revalidation per key.
	refetchMinGap = 30 * time.Second

	// revalidateBudget caps a background fetch that has no caller
	// waiting on it.
	revalidateBudget = 20 * time.Second
)

// APIClient is the slice of the request pipeline the sync layer needs.
// Reads go through Do so the readers can see the Degraded mark on a
// synthesized body; a degraded body keeps a screen usable but is not
// server truth and must never be persisted over last-known-good data.
type APIClient interface {
	Do(ctx context.Context, req *domain.RequestContext) (*domain.Response, error)
	PostJSON(ctx context.Context, path string, body any, out any) error
}

func enrollmentsQueryKey(scopeID string) string {
	return "enrollments:" + scopeID
}

// getList fetches a JSON list through the pipeline, reporting whether
// the body was synthesized by graceful degradation rather than served
// by the API.
func getList[T any](ctx context.Context, api APIClient, path string, query map[string]string) (items []T, degraded bool, err error) {
	resp, err := api.Do(ctx, &domain.RequestContext{Method: "GET", Path: path, Query: query})
	if err != nil {
		return nil, false, err
	}
	if len(resp.Body) > 0 {
		if err := json.Unmarshal(resp.Body, &items); err != nil {
			return nil, false, err
		}
	}
	return items, resp.Degraded, nil
}

// refetchScheduler defers and throttles background revalidation. One
// scheduler is shared per reader; the throttle is per query key.
type refetchScheduler struct {
	clock    func() time.Time
	delay    time.Duration
	minGap   time.Duration
	runAfter func(d time.Duration, fn func())

	mu   sync.Mutex
	last map[string]time.Time
}

func newRefetchScheduler(clock func() time.Time) *refetchScheduler {
	if clock == nil {
		clock = time.Now
	}
	return &refetchScheduler{
		clock:  clock,
		delay:  refetchDelay,
		minGap: refetchMinGap,
		runAfter: func(d time.Duration, fn func()) {
			time.AfterFunc(d, fn)
		},
		last: make(map[string]time.Time),
	}
}

// schedule queues fn to run after the deferral delay unless the key
// was already revalidated within the throttle window.
func (s *refetchScheduler) schedule(key string, fn func()) {
	s.mu.Lock()
	now := s.clock()
	if last, ok := s.last[key]; ok && now.Sub(last) < s.minGap {
		s.mu.Unlock()
		return
	}
	s.last[key] = now
	s.mu.Unlock()
	s.runAfter(s.delay, fn)
}

// PoolReader serves the pool list local-first: instant from the query
// cache or a fresh local mirror, blocking on the network only when
// neither can answer. Every instant serve schedules a deferred
// background reconciliation.
type PoolReader struct {
	api     APIClient
	repo    ports.LocalRepository
	queries *QueryCache
	logger  *zap.Logger
	clock   func() time.Time
	maxAge  time.Duration
	sched   *refetchScheduler
}

// NewPoolReader wires a reader over the pipeline client and the local
// repository.
func NewPoolReader(api APIClient, repo ports.LocalRepository, queries *QueryCache, logger *zap.Logger) *PoolReader {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PoolReader{
		api:     api,
		repo:    repo,
		queries: queries,
		logger:  logger,
		clock:   time.Now,
		maxAge:  defaultMaxAge,
		sched:   newRefetchScheduler(time.Now),
	}
}

// ReadPools returns the pool list. A populated query cache or a fresh
// non-empty local mirror answers without touching the network; the
// first run (or a stale mirror) blocks on a fetch.
func (r *PoolReader) ReadPools(ctx context.Context) ([]domain.Pool, error) {
	if v, ok := r.queries.Get(PoolsQueryKey); ok {
		if pools, ok := v.([]domain.Pool); ok {
			r.scheduleRevalidate()
			return pools, nil
		}
	}

	pools, err := r.repo.GetPools(ctx)
	if err != nil {
		r.logger.Warn("local pool mirror unreadable", zap.Error(err))
	}
	if err == nil && len(pools) > 0 && r.mirrorFresh(ctx) {
		r.queries.Set(PoolsQueryKey, pools)
		r.scheduleRevalidate()
		return pools, nil
	}

	return r.fetch(ctx)
}

func (r *PoolReader) mirrorFresh(ctx context.Context) bool {
	at, err := r.repo.PoolsCachedAt(ctx)
	if err != nil || at.IsZero() {
		return false
	}
	return r.clock().Sub(at) <= r.maxAge
}

func (r *PoolReader) fetch(ctx context.Context) ([]domain.Pool, error) {
	pools, degraded, err := getList[domain.Pool](ctx, r.api, "/pools", nil)
	if err != nil {
		return nil, err
	}
	if degraded {
		// The caller may render this, but the mirror and the query
		// cache keep their last-known-good value.
		r.logger.Debug("degraded pool response not persisted")
		return pools, nil
	}
	if err := r.repo.SavePools(ctx, pools); err != nil {
		r.logger.Warn("local pool mirror write failed", zap.Error(err))
	}
	r.queries.Set(PoolsQueryKey, pools)
	return pools, nil
}

func (r *PoolReader) scheduleRevalidate() {
	r.sched.schedule(PoolsQueryKey, func() {
		ctx, cancel := context.WithTimeout(context.Background(), revalidateBudget)
		defer cancel()
		if _, err := r.fetch(ctx); err != nil {
			// Silent drop: the caller already has last-known-good data.
			r.logger.Debug("background pool refresh dropped", zap.Error(err))
		}
	})
}

// EnrollmentReader is the local-first reader for a member's
// enrollments, scoped by pool.
type EnrollmentReader struct {
	api     APIClient
	repo    ports.LocalRepository
	queries *QueryCache
	logger  *zap.Logger
	clock   func() time.Time
	maxAge  time.Duration
	sched   *refetchScheduler
}

// NewEnrollmentReader wires a reader over the pipeline client and the
// local repository.
func NewEnrollmentReader(api APIClient, repo ports.LocalRepository, queries *QueryCache, logger *zap.Logger) *EnrollmentReader {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EnrollmentReader{
		api:     api,
		repo:    repo,
		queries: queries,
		logger:  logger,
		clock:   time.Now,
		maxAge:  defaultMaxAge,
		sched:   newRefetchScheduler(time.Now),
	}
}

// ReadEnrollments returns the enrollments for a pool scope ("" for all
// of the member's enrollments), local-first with deferred background
// reconciliation.
func (r *EnrollmentReader) ReadEnrollments(ctx context.Context, scopeID string) ([]domain.Enrollment, error) {
	key := enrollmentsQueryKey(scopeID)
	if v, ok := r.queries.Get(key); ok {
		if enrollments, ok := v.([]domain.Enrollment); ok {
			r.scheduleRevalidate(scopeID)
			return enrollments, nil
		}
	}

	enrollments, err := r.repo.GetEnrollments(ctx, scopeID)
	if err != nil {
		r.logger.Warn("local enrollment mirror unreadable", zap.Error(err))
	}
	if err == nil && len(enrollments) > 0 && r.mirrorFresh(ctx, scopeID) {
		r.queries.Set(key, enrollments)
		r.scheduleRevalidate(scopeID)
		return enrollments, nil
	}

	return r.fetch(ctx, scopeID)
}

func (r *EnrollmentReader) mirrorFresh(ctx context.Context, scopeID string) bool {
	at, err := r.repo.EnrollmentsCachedAt(ctx, scopeID)
	if err != nil || at.IsZero() {
		return false
	}
	return r.clock().Sub(at) <= r.maxAge
}

func (r *EnrollmentReader) fetch(ctx context.Context, scopeID string) ([]domain.Enrollment, error) {
	var query map[string]string
	if scopeID != "" {
		query = map[string]string{"poolId": scopeID}
	}
	enrollments, degraded, err := getList[domain.Enrollment](ctx, r.api, "/enrollments", query)
	if err != nil {
		return nil, err
	}
	if degraded {
		r.logger.Debug("degraded enrollment response not persisted",
			zap.String("scope", scopeID))
		return enrollments, nil
	}
	if err := r.repo.SaveEnrollments(ctx, scopeID, enrollments); err != nil {
		r.logger.Warn("local enrollment mirror write failed", zap.Error(err))
	}
	r.queries.Set(enrollmentsQueryKey(scopeID), enrollments)
	return enrollments, nil
}

func (r *EnrollmentReader) scheduleRevalidate(scopeID string) {
	r.sched.schedule(enrollmentsQueryKey(scopeID), func() {
		ctx, cancel := context.WithTimeout(context.Background(), revalidateBudget)
		defer cancel()
		if _, err := r.fetch(ctx, scopeID); err != nil {
			r.logger.Debug("background enrollment refresh dropped", zap.Error(err))
		}
	})
}
