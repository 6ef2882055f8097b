package ports

import (
	"context"
	"time"

	"github.com/zanmi-app/zanmi-go/internal/core/domain"
)

// HTTPRequester dispatches one prepared request to the network. It
// performs no auth, caching, or retry logic — that all lives in the
// pipeline in front of it.
type HTTPRequester interface {
	Do(ctx context.Context, req *domain.RequestContext, timeout time.Duration) (*domain.Response, error)
}
