package auth

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zanmi-app/zanmi-go/internal/core/domain"
	"github.com/zanmi-app/zanmi-go/internal/core/ports"
)

// stubTokenStore is a controllable in-memory token store.
type stubTokenStore struct {
	mu           sync.Mutex
	accessToken  string
	refreshToken string

	refreshCalls  int32
	refreshResult string
	refreshErr    error
	refreshGate   chan struct{} // when set, RefreshAccessToken blocks until closed
}

func (s *stubTokenStore) GetAccessToken(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.accessToken, nil
}

func (s *stubTokenStore) SaveAccessToken(ctx context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accessToken = token
	return nil
}

func (s *stubTokenStore) GetRefreshToken(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.refreshToken, nil
}

func (s *stubTokenStore) SaveRefreshToken(ctx context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refreshToken = token
	return nil
}

func (s *stubTokenStore) ClearTokens(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accessToken, s.refreshToken = "", ""
	return nil
}

func (s *stubTokenStore) RefreshAccessToken(ctx context.Context) (string, error) {
	atomic.AddInt32(&s.refreshCalls, 1)
	if s.refreshGate != nil {
		<-s.refreshGate
	}
	if s.refreshErr != nil {
		return "", s.refreshErr
	}
	s.mu.Lock()
	s.accessToken = s.refreshResult
	s.mu.Unlock()
	return s.refreshResult, nil
}

func (s *stubTokenStore) calls() int {
	return int(atomic.LoadInt32(&s.refreshCalls))
}

// signedToken builds an unsigned-but-well-formed JWT expiring at the
// given offset from now.
func signedToken(t *testing.T, expiresIn time.Duration) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "member-1",
		"exp": time.Now().Add(expiresIn).Unix(),
	})
	signed, err := token.SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return signed
}

func TestCoordinator_SingleFlight(t *testing.T) {
	// N concurrent callers that each need a refresh must share one
	// network refresh call.
	gate := make(chan struct{})
	store := &stubTokenStore{refreshResult: "tok2", refreshToken: "rt1", refreshGate: gate}
	coord := NewCoordinator(store, nil, nil)

	const n = 5
	results := make(chan string, n)
	errs := make(chan error, n)

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tok, err := coord.AcquireOrWait(context.Background())
			if err != nil {
				errs <- err
				return
			}
			results <- tok
		}()
	}

	// Wait until the driver is in flight and the rest are queued.
	require.Eventually(t, func() bool {
		return coord.Refreshing() && coord.WaiterCount() == n-1
	}, time.Second, time.Millisecond)

	close(gate)
	wg.Wait()
	close(results)
	close(errs)

	for err := range errs {
		t.Fatalf("unexpected error: %v", err)
	}
	count := 0
	for tok := range results {
		assert.Equal(t, "tok2", tok)
		count++
	}
	assert.Equal(t, n, count)
	assert.Equal(t, 1, store.calls(), "exactly one refresh call for %d concurrent callers", n)
	assert.False(t, coord.Refreshing())
}

func TestCoordinator_FIFOSettlement(t *testing.T) {
	// Waiters enqueued while a refresh is in flight settle in enqueue
	// order once it lands.
	gate := make(chan struct{})
	store := &stubTokenStore{refreshResult: "tok2", refreshToken: "rt1", refreshGate: gate}
	coord := NewCoordinator(store, nil, nil)

	// Driver.
	driverDone := make(chan struct{})
	go func() {
		defer close(driverDone)
		_, err := coord.AcquireOrWait(context.Background())
		assert.NoError(t, err)
	}()
	require.Eventually(t, coord.Refreshing, time.Second, time.Millisecond)

	var mu sync.Mutex
	var order []int
	var wg sync.WaitGroup

	for i := 0; i < 3; i++ {
		before := coord.WaiterCount()
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			_, err := coord.AcquireOrWait(context.Background())
			assert.NoError(t, err)
			mu.Lock()
			order = append(order, id)
			mu.Unlock()
		}(i)
		// Serialize enqueueing so the expected order is well defined.
		require.Eventually(t, func() bool {
			return coord.WaiterCount() == before+1
		}, time.Second, time.Millisecond)
	}

	close(gate)
	wg.Wait()
	<-driverDone

	assert.Equal(t, []int{0, 1, 2}, order)
}

func TestCoordinator_FailureDrainsWaiters(t *testing.T) {
	gate := make(chan struct{})
	store := &stubTokenStore{refreshErr: errors.New("boom"), refreshToken: "rt1", refreshGate: gate}
	coord := NewCoordinator(store, nil, nil)

	const n = 3
	errs := make(chan error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := coord.AcquireOrWait(context.Background())
			errs <- err
		}()
	}
	require.Eventually(t, func() bool {
		return coord.Refreshing() && coord.WaiterCount() == n-1
	}, time.Second, time.Millisecond)

	close(gate)
	wg.Wait()
	close(errs)

	for err := range errs {
		require.Error(t, err)
		assert.ErrorIs(t, err, domain.ErrRefreshFailed)
	}
	assert.False(t, coord.Refreshing(), "a failed refresh must still leave the refreshing state")
	assert.Zero(t, coord.WaiterCount())
}

func TestCoordinator_NoSession(t *testing.T) {
	store := &stubTokenStore{} // no refresh token, store returns ""
	var got []ports.AuthEventKind
	events := newRecordingEvents(&got)
	coord := NewCoordinator(store, events, nil)

	_, err := coord.AcquireOrWait(context.Background())
	assert.ErrorIs(t, err, domain.ErrNoSession)
	assert.Contains(t, got, ports.SessionExpired)
}

func TestCoordinator_AbandonedWaiterDoesNotBlockDrain(t *testing.T) {
	gate := make(chan struct{})
	store := &stubTokenStore{refreshResult: "tok2", refreshToken: "rt1", refreshGate: gate}
	coord := NewCoordinator(store, nil, nil)

	go coord.AcquireOrWait(context.Background())
	require.Eventually(t, coord.Refreshing, time.Second, time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	waiterErr := make(chan error, 1)
	go func() {
		_, err := coord.AcquireOrWait(ctx)
		waiterErr <- err
	}()
	require.Eventually(t, func() bool { return coord.WaiterCount() == 1 }, time.Second, time.Millisecond)

	cancel()
	require.ErrorIs(t, <-waiterErr, context.Canceled)

	close(gate)
	require.Eventually(t, func() bool { return !coord.Refreshing() }, time.Second, time.Millisecond)
}

func TestCoordinator_EnsureFresh(t *testing.T) {
	uiRoute := &domain.Route{Name: "pools", Criticality: domain.CriticalityUI}
	authRoute := &domain.Route{Name: "me", Criticality: domain.CriticalityAuth}

	t.Run("valid token attaches as-is", func(t *testing.T) {
		tok := signedToken(t, time.Hour)
		store := &stubTokenStore{accessToken: tok}
		coord := NewCoordinator(store, nil, nil)

		got, err := coord.EnsureFresh(context.Background(), authRoute)
		require.NoError(t, err)
		assert.Equal(t, tok, got)
		assert.Zero(t, store.calls())
	})

	t.Run("expired token on auth route drives a refresh", func(t *testing.T) {
		store := &stubTokenStore{
			accessToken:   signedToken(t, -time.Minute),
			refreshToken:  "rt1",
			refreshResult: "tok2",
		}
		coord := NewCoordinator(store, nil, nil)

		got, err := coord.EnsureFresh(context.Background(), authRoute)
		require.NoError(t, err)
		assert.Equal(t, "tok2", got)
		assert.Equal(t, 1, store.calls())
	})

	t.Run("expired token on UI route rides the stale token", func(t *testing.T) {
		stale := signedToken(t, -time.Minute)
		store := &stubTokenStore{accessToken: stale, refreshToken: "rt1", refreshResult: "tok2"}
		coord := NewCoordinator(store, nil, nil)

		got, err := coord.EnsureFresh(context.Background(), uiRoute)
		require.NoError(t, err)
		assert.Equal(t, stale, got)
		assert.Zero(t, store.calls(), "UI paths never drive a pre-flight refresh")
	})

	t.Run("valid token on auth route skips an in-flight refresh", func(t *testing.T) {
		gate := make(chan struct{})
		tok := signedToken(t, time.Hour)
		store := &stubTokenStore{accessToken: tok, refreshToken: "rt1", refreshResult: "tok2", refreshGate: gate}
		coord := NewCoordinator(store, nil, nil)

		go coord.AcquireOrWait(context.Background())
		require.Eventually(t, coord.Refreshing, time.Second, time.Millisecond)

		got, err := coord.EnsureFresh(context.Background(), authRoute)
		require.NoError(t, err)
		assert.Equal(t, tok, got, "a token that does not need refreshing never queues")
		assert.Zero(t, coord.WaiterCount())

		close(gate)
	})

	t.Run("UI route proceeds while a refresh is in flight", func(t *testing.T) {
		gate := make(chan struct{})
		stale := signedToken(t, -time.Minute)
		store := &stubTokenStore{accessToken: stale, refreshToken: "rt1", refreshResult: "tok2", refreshGate: gate}
		coord := NewCoordinator(store, nil, nil)

		go coord.AcquireOrWait(context.Background())
		require.Eventually(t, coord.Refreshing, time.Second, time.Millisecond)

		got, err := coord.EnsureFresh(context.Background(), uiRoute)
		require.NoError(t, err)
		assert.Equal(t, stale, got)

		close(gate)
	})

	t.Run("token about to expire counts as expired", func(t *testing.T) {
		store := &stubTokenStore{
			accessToken:   signedToken(t, 2*time.Second), // inside the 5s skew
			refreshToken:  "rt1",
			refreshResult: "tok2",
		}
		coord := NewCoordinator(store, nil, nil)

		got, err := coord.EnsureFresh(context.Background(), authRoute)
		require.NoError(t, err)
		assert.Equal(t, "tok2", got)
	})
}

// recordingEvents is a minimal AuthEvents used to observe publishes.
type recordingEvents struct {
	mu   sync.Mutex
	sink *[]ports.AuthEventKind
}

func newRecordingEvents(sink *[]ports.AuthEventKind) *recordingEvents {
	return &recordingEvents{sink: sink}
}

func (r *recordingEvents) Subscribe(kind ports.AuthEventKind, handler func(ports.AuthEvent)) ports.Unsubscribe {
	return func() {}
}

func (r *recordingEvents) Publish(event ports.AuthEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	*r.sink = append(*r.sink, event.Kind)
}
