package ports

import (
	"context"
	"time"

	"github.com/zanmi-app/zanmi-go/internal/core/domain"
)

// TokenStore persists the session tokens and owns the actual refresh
// call. Implementations must treat "no refresh possible" as a nil
// error with an empty token, never as a failure.
type TokenStore interface {
	GetAccessToken(ctx context.Context) (string, error)
	SaveAccessToken(ctx context.Context, token string) error
	GetRefreshToken(ctx context.Context) (string, error)
	SaveRefreshToken(ctx context.Context, token string) error
	ClearTokens(ctx context.Context) error

	// RefreshAccessToken performs the refresh call and persists the
	// rotated tokens. Returns "" with a nil error when there is no
	// refresh token to refresh with.
	RefreshAccessToken(ctx context.Context) (string, error)
}

// ResponseCacheStore is the TTL-keyed response cache. A missing or
// expired entry reads as (nil, nil).
type ResponseCacheStore interface {
	GetFromCache(ctx context.Context, key string) (*domain.CachedEntry, error)
	SaveToCache(ctx context.Context, key string, data []byte, ttl time.Duration) error
	ClearCache(ctx context.Context) error
	ClearCacheCategory(ctx context.Context, prefix string) error
}

// LocalRepository is the on-device persisted mirror of list resources,
// read before the network to make list screens instant. A zero
// cached-at time means the age is unknown and the mirror counts as
// stale.
type LocalRepository interface {
	GetPools(ctx context.Context) ([]domain.Pool, error)
	SavePools(ctx context.Context, pools []domain.Pool) error
	PoolsCachedAt(ctx context.Context) (time.Time, error)

	GetEnrollments(ctx context.Context, scopeID string) ([]domain.Enrollment, error)
	SaveEnrollments(ctx context.Context, scopeID string, enrollments []domain.Enrollment) error
	EnrollmentsCachedAt(ctx context.Context, scopeID string) (time.Time, error)
}
