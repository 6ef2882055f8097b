package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/zanmi-app/zanmi-go/internal/application/auth"
	"github.com/zanmi-app/zanmi-go/internal/core/domain"
	"github.com/zanmi-app/zanmi-go/internal/core/ports"
)

// ProfileHeader carries the caller's currently active profile/entity.
// It is attached to every request; ProfileNone is the literal sentinel
// used when no profile is selected, so the header is always present.
const (
	ProfileHeader = "X-Zanmi-Profile"
	ProfileNone   = "none"
)

// retryAfterDefault is used when a 429 response carries no retry-after
// header.
const retryAfterDefault = 30 * time.Second

// Options configures a pipeline Client.
type Options struct {
	BaseURL     string
	Routes      *domain.RouteTable
	Requester   ports.HTTPRequester
	Cache       ports.ResponseCacheStore
	Coordinator *auth.Coordinator
	Logger      *zap.Logger
	Clock       func() time.Time
}

// Client runs every outgoing call through a fixed ordered sequence of
// named stages before it reaches the network, and through the response
// phase after. It produces either a real network response or a
// synthesized one (cache hit, graceful degradation) and never turns a
// recoverable condition into a caller-visible error.
type Client struct {
	baseURL     string
	basePath    string
	routes      *domain.RouteTable
	requester   ports.HTTPRequester
	cache       ports.ResponseCacheStore
	coordinator *auth.Coordinator
	logger      *zap.Logger
	clock       func() time.Time

	ledger *RateLimitLedger
	diag   *Diagnostics

	mu      sync.RWMutex
	profile string

	stages []Stage
}

// New builds a Client with the standard stage order: normalize,
// resolve, diagnostics, remap, ratelimit, cache, auth, profile.
func New(opts Options) (*Client, error) {
	if opts.Requester == nil {
		return nil, fmt.Errorf("pipeline: requester is required")
	}
	if opts.Coordinator == nil {
		return nil, fmt.Errorf("pipeline: refresh coordinator is required")
	}
	routes := opts.Routes
	if routes == nil {
		routes = domain.DefaultRouteTable()
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	clock := opts.Clock
	if clock == nil {
		clock = time.Now
	}

	basePath := ""
	if u, err := url.Parse(opts.BaseURL); err == nil {
		basePath = strings.TrimSuffix(u.Path, "/")
	}

	c := &Client{
		baseURL:     opts.BaseURL,
		basePath:    basePath,
		routes:      routes,
		requester:   opts.Requester,
		cache:       opts.Cache,
		coordinator: opts.Coordinator,
		logger:      logger,
		clock:       clock,
		ledger:      NewRateLimitLedger(clock),
		diag:        NewDiagnostics(logger, clock),
	}
	c.stages = []Stage{
		{Name: "normalize", Run: c.stageNormalize},
		{Name: "resolve", Run: c.stageResolve},
		{Name: "diagnostics", Run: c.stageDiagnostics},
		{Name: "remap", Run: c.stageRemap},
		{Name: "ratelimit", Run: c.stageRateLimit},
		{Name: "cache", Run: c.stageCacheLookup},
		{Name: "auth", Run: c.stageAuthAttach},
		{Name: "profile", Run: c.stageProfileHeader},
	}
	return c, nil
}

// SetProfile selects the active profile/entity attached to every
// request. An empty id reverts to the sentinel.
func (c *Client) SetProfile(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.profile = id
}

// BaseURL returns the configured endpoint.
func (c *Client) BaseURL() string { return c.baseURL }

// Ledger exposes the rate-limit ledger for diagnostics surfaces.
func (c *Client) Ledger() *RateLimitLedger { return c.ledger }

// Diagnostics exposes the call ring buffer for diagnostics surfaces.
func (c *Client) Diagnostics() *Diagnostics { return c.diag }

// StageNames returns the registered stage order.
func (c *Client) StageNames() []string {
	names := make([]string, len(c.stages))
	for i, s := range c.stages {
		names[i] = s.Name
	}
	return names
}

// Do runs one request through the pipeline. Non-2xx outcomes return
// the response together with an *domain.APIError carrying the original
// status, so callers can branch on it.
func (c *Client) Do(ctx context.Context, req *domain.RequestContext) (*domain.Response, error) {
	for _, stage := range c.stages {
		res, err := stage.Run(ctx, req)
		if err != nil {
			return nil, err
		}
		if res != nil && res.Response != nil {
			return res.Response, nil
		}
	}

	resp, err := c.dispatch(ctx, req)
	return c.handleResponse(ctx, req, resp, err)
}

// GetJSON issues a GET and decodes a 2xx body into out.
func (c *Client) GetJSON(ctx context.Context, path string, query map[string]string, out any) error {
	resp, err := c.Do(ctx, &domain.RequestContext{Method: "GET", Path: path, Query: query})
	if err != nil {
		return err
	}
	if out == nil || len(resp.Body) == 0 {
		return nil
	}
	return json.Unmarshal(resp.Body, out)
}

// PostJSON issues a POST with a JSON body and decodes a 2xx body into
// out.
func (c *Client) PostJSON(ctx context.Context, path string, body any, out any) error {
	resp, err := c.Do(ctx, &domain.RequestContext{Method: "POST", Path: path, Body: body})
	if err != nil {
		return err
	}
	if out == nil || len(resp.Body) == 0 {
		return nil
	}
	return json.Unmarshal(resp.Body, out)
}

// Request-phase stages, in registration order.

// stageNormalize strips a duplicated base-path prefix a caller may
// have included (e.g. "/api/v1/pools" against a base URL that already
// ends in /api/v1).
func (c *Client) stageNormalize(ctx context.Context, req *domain.RequestContext) (*StageResult, error) {
	if c.basePath != "" && strings.HasPrefix(req.Path, c.basePath+"/") {
		req.Path = strings.TrimPrefix(req.Path, c.basePath)
	}
	if !strings.HasPrefix(req.Path, "/") {
		req.Path = "/" + req.Path
	}
	return nil, nil
}

// stageResolve binds the request to its declared route policy. Unknown
// paths stay nil and get the strict defaults.
func (c *Client) stageResolve(ctx context.Context, req *domain.RequestContext) (*StageResult, error) {
	req.Route = c.routes.Match(req.Path)
	return nil, nil
}

func (c *Client) stageDiagnostics(ctx context.Context, req *domain.RequestContext) (*StageResult, error) {
	c.diag.Record(req.Method, req.Path)
	return nil, nil
}

// stageRemap renames legacy body fields still sent by old call sites.
// Currently: "montant" → "amount" on payment submission paths.
func (c *Client) stageRemap(ctx context.Context, req *domain.RequestContext) (*StageResult, error) {
	if req.Route == nil || req.Body == nil {
		return nil, nil
	}
	if req.Route.Name != "payments" && req.Route.Name != "transactions" {
		return nil, nil
	}
	body, ok := req.Body.(map[string]any)
	if !ok {
		return nil, nil
	}
	if legacy, found := body["montant"]; found {
		if _, taken := body["amount"]; !taken {
			body["amount"] = legacy
		}
		delete(body, "montant")
	}
	return nil, nil
}

func (c *Client) stageRateLimit(ctx context.Context, req *domain.RequestContext) (*StageResult, error) {
	if err := c.ledger.Wait(ctx, req.Path); err != nil {
		return nil, err
	}
	return nil, nil
}

// stageCacheLookup short-circuits cacheable GETs with an unexpired
// entry. Cache-store failures degrade to a miss, never to a request
// failure.
func (c *Client) stageCacheLookup(ctx context.Context, req *domain.RequestContext) (*StageResult, error) {
	if c.cache == nil || req.Method != "GET" || !req.Route.Cacheable() || req.NoCache() {
		return nil, nil
	}
	entry, err := c.cache.GetFromCache(ctx, req.CacheKey())
	if err != nil {
		c.logger.Debug("cache read failed", zap.String("path", req.Path), zap.Error(err))
		return nil, nil
	}
	if !entry.Usable(c.clock()) {
		return nil, nil
	}
	return &StageResult{Response: &domain.Response{
		StatusCode: 200,
		Body:       entry.Data,
		FromCache:  true,
	}}, nil
}

func (c *Client) stageAuthAttach(ctx context.Context, req *domain.RequestContext) (*StageResult, error) {
	if req.Route != nil && req.Route.Anonymous {
		return nil, nil
	}
	token, err := c.coordinator.EnsureFresh(ctx, req.Route)
	if err != nil {
		return nil, err
	}
	if token != "" {
		req.SetHeader("Authorization", "Bearer "+token)
	}
	return nil, nil
}

func (c *Client) stageProfileHeader(ctx context.Context, req *domain.RequestContext) (*StageResult, error) {
	c.mu.RLock()
	profile := c.profile
	c.mu.RUnlock()
	if profile == "" {
		profile = ProfileNone
	}
	req.SetHeader(ProfileHeader, profile)
	return nil, nil
}

// Network dispatch and response phase.

func (c *Client) dispatch(ctx context.Context, req *domain.RequestContext) (*domain.Response, error) {
	timeout := domain.TimeoutDefault
	if req.Route != nil {
		timeout = req.Route.Timeout
	}
	return c.requester.Do(ctx, req, timeout.Duration())
}

func (c *Client) handleResponse(ctx context.Context, req *domain.RequestContext, resp *domain.Response, err error) (*domain.Response, error) {
	if err != nil {
		// Transport errors (including timeouts) surface unchanged;
		// the pipeline does not auto-retry them.
		return nil, err
	}

	switch {
	case resp.OK():
		c.maybeCache(ctx, req, resp)
		return resp, nil

	case resp.StatusCode == 401 && !req.Retried && (req.Route == nil || !req.Route.Anonymous):
		return c.recoverUnauthorized(ctx, req, resp)

	case resp.StatusCode == 429:
		retryAfter := parseRetryAfter(resp.Headers.Get("Retry-After"))
		c.ledger.Set(req.Path, c.clock().Add(retryAfter))
		c.logger.Warn("rate limited",
			zap.String("path", req.Path),
			zap.Duration("retry_after", retryAfter),
		)
		return resp, &domain.APIError{Status: resp.StatusCode, Path: req.Path, Body: resp.Body}

	default:
		apiErr := &domain.APIError{Status: resp.StatusCode, Path: req.Path, Body: resp.Body}
		if domain.ExpectedQuiet(req.Route, resp.StatusCode) {
			c.logger.Debug("expected api failure",
				zap.String("path", req.Path),
				zap.Int("status", resp.StatusCode),
			)
		} else {
			c.logger.Error("api request failed",
				zap.String("method", req.Method),
				zap.String("path", req.Path),
				zap.Int("status", resp.StatusCode),
			)
		}
		return resp, apiErr
	}
}

// recoverUnauthorized handles the reactive 401 path: one refresh, one
// redispatch of the same request. A 401 is only ever resolved into a
// success by actually retrying with a refreshed token; the synthesized
// empty success is reserved for degradable UI reads after a real
// refresh attempt failed.
func (c *Client) recoverUnauthorized(ctx context.Context, req *domain.RequestContext, resp *domain.Response) (*domain.Response, error) {
	req.Retried = true

	token, err := c.coordinator.AcquireOrWait(ctx)
	if err != nil {
		if req.Route != nil && req.Route.Degradable && req.Route.Criticality == domain.CriticalityUI {
			c.logger.Debug("degrading unauthorized read",
				zap.String("path", req.Path),
				zap.Error(err),
			)
			return &domain.Response{
				StatusCode: 200,
				Body:       []byte(req.Route.DegradeBody),
				Degraded:   true,
			}, nil
		}
		return resp, &domain.APIError{Status: resp.StatusCode, Path: req.Path, Body: resp.Body}
	}

	req.SetHeader("Authorization", "Bearer "+token)
	retried, rerr := c.dispatch(ctx, req)
	return c.handleResponse(ctx, req, retried, rerr)
}

func (c *Client) maybeCache(ctx context.Context, req *domain.RequestContext, resp *domain.Response) {
	if c.cache == nil || req.Method != "GET" || !req.Route.Cacheable() {
		return
	}
	if resp.FromCache || resp.Degraded || req.NoCache() {
		return
	}
	if err := c.cache.SaveToCache(ctx, req.CacheKey(), resp.Body, req.Route.TTL); err != nil {
		c.logger.Debug("cache write failed", zap.String("path", req.Path), zap.Error(err))
	}
}

// parseRetryAfter reads a retry-after header in seconds, defaulting to
// 30 seconds when absent or malformed.
func parseRetryAfter(header string) time.Duration {
	if header == "" {
		return retryAfterDefault
	}
	secs, err := strconv.Atoi(strings.TrimSpace(header))
	if err != nil || secs < 0 {
		return retryAfterDefault
	}
	return time.Duration(secs) * time.Second
}
