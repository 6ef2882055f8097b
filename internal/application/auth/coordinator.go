package auth

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/zanmi-app/zanmi-go/internal/core/domain"
	"github.com/zanmi-app/zanmi-go/internal/core/ports"
)

// Coordinator is the single-flight token-refresh state machine. It has
// two states: idle and refreshing. The first caller that needs a fresh
// token becomes the driver and performs the one network refresh;
// callers arriving while the refresh is in flight join a FIFO wait
// list and share the driver's outcome. Every waiter is settled exactly
// once, in enqueue order, as soon as the refresh settles — the wait
// list can never be left stuck.
type Coordinator struct {
	store  ports.TokenStore
	events ports.AuthEvents
	logger *zap.Logger
	now    func() time.Time

	mu         sync.Mutex
	refreshing bool
	waiters    []*waiter
}

type outcome struct {
	token string
	err   error
}

// waiter is one suspended caller. Delivery is a synchronous handoff so
// waiters observably settle in enqueue order; abandoned lets a caller
// that gave up (context cancelled) step out of the queue without
// blocking the drain.
type waiter struct {
	ch        chan outcome
	abandoned chan struct{}
}

// NewCoordinator creates a coordinator around a token store.
func NewCoordinator(store ports.TokenStore, events ports.AuthEvents, logger *zap.Logger) *Coordinator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Coordinator{
		store:  store,
		events: events,
		logger: logger,
		now:    time.Now,
	}
}

// Refreshing reports whether a refresh call is currently in flight.
func (c *Coordinator) Refreshing() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.refreshing
}

// WaiterCount reports how many callers are currently suspended on the
// in-flight refresh.
func (c *Coordinator) WaiterCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.waiters)
}

// AcquireOrWait returns a freshly refreshed access token. If a refresh
// is already in flight the caller is enqueued and suspended until it
// settles; otherwise the caller drives the refresh itself. At most one
// network refresh is ever in flight.
func (c *Coordinator) AcquireOrWait(ctx context.Context) (string, error) {
	c.mu.Lock()
	if c.refreshing {
		w := &waiter{ch: make(chan outcome), abandoned: make(chan struct{})}
		c.waiters = append(c.waiters, w)
		c.mu.Unlock()
		select {
		case <-ctx.Done():
			close(w.abandoned)
			return "", ctx.Err()
		case out := <-w.ch:
			return out.token, out.err
		}
	}
	c.refreshing = true
	c.mu.Unlock()

	token, err := c.store.RefreshAccessToken(ctx)
	if err == nil && token == "" {
		err = domain.ErrNoSession
	}
	if err != nil && !errors.Is(err, domain.ErrNoSession) {
		err = fmt.Errorf("%w: %v", domain.ErrRefreshFailed, err)
	}
	c.settle(token, err)
	return token, err
}

// settle leaves the refreshing state and drains the wait list in FIFO
// order with the driver's outcome.
func (c *Coordinator) settle(token string, err error) {
	c.mu.Lock()
	c.refreshing = false
	waiters := c.waiters
	c.waiters = nil
	c.mu.Unlock()

	out := outcome{token: token, err: err}
	for _, w := range waiters {
		select {
		case w.ch <- out:
		case <-w.abandoned:
		}
	}

	switch {
	case err == nil:
		c.logger.Debug("token refresh succeeded", zap.Int("waiters", len(waiters)))
		c.publish(ports.TokenRefreshed)
	case errors.Is(err, domain.ErrNoSession):
		c.logger.Debug("token refresh impossible: no session", zap.Int("waiters", len(waiters)))
		c.publish(ports.SessionExpired)
	default:
		c.logger.Warn("token refresh failed", zap.Error(err), zap.Int("waiters", len(waiters)))
		c.publish(ports.RefreshFailed)
	}
}

// EnsureFresh returns the token to attach to an outgoing request,
// applying the pre-flight expiry policy:
//
//   - auth-critical routes refresh when the stored token is expired:
//     joining the in-flight refresh when there is one, driving one
//     otherwise. A still-valid token goes out as-is even while a
//     refresh is in flight — only callers that actually need a new
//     token queue for it;
//   - UI routes never wait and never drive — they go out with the
//     existing token even when it is technically expired, and rely on
//     the reactive 401 path to recover. Screen-navigation latency wins
//     over strict freshness there.
func (c *Coordinator) EnsureFresh(ctx context.Context, route *domain.Route) (string, error) {
	token, err := c.store.GetAccessToken(ctx)
	if err != nil {
		return "", err
	}

	critical := route == nil || route.Criticality == domain.CriticalityAuth
	if critical && domain.TokenExpired(token, c.now()) {
		return c.AcquireOrWait(ctx)
	}
	return token, nil
}

// Logout clears the persisted session and announces it.
func (c *Coordinator) Logout(ctx context.Context) error {
	if err := c.store.ClearTokens(ctx); err != nil {
		return err
	}
	c.publish(ports.LoggedOut)
	return nil
}

func (c *Coordinator) publish(kind ports.AuthEventKind) {
	if c.events != nil {
		c.events.Publish(ports.AuthEvent{Kind: kind, At: c.now()})
	}
}
