package httpinfra

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/zanmi-app/zanmi-go/internal/core/domain"
	"github.com/zanmi-app/zanmi-go/internal/core/ports"
)

const userAgent = "zanmi-go/1.0"

// StdRequester performs the actual network dispatch for the pipeline.
// The per-call timeout comes from the route's timeout class and is
// enforced through the context, so one slow payment call never widens
// the budget of unrelated requests.
type StdRequester struct {
	baseURL string
	client  *http.Client
}

// NewStdRequester creates a requester against the API base URL. A nil
// client defaults to a plain http.Client; the deadline is always
// per-call, never on the client.
func NewStdRequester(baseURL string, client *http.Client) *StdRequester {
	if client == nil {
		client = &http.Client{}
	}
	return &StdRequester{baseURL: baseURL, client: client}
}

// Do sends the request and returns the settled response. Non-2xx
// statuses are returned as responses, not errors; only transport
// failures error.
func (r *StdRequester) Do(ctx context.Context, req *domain.RequestContext, timeout time.Duration) (*domain.Response, error) {
	fullURL, err := joinURL(r.baseURL, req.Path, req.Query)
	if err != nil {
		return nil, fmt.Errorf("failed to build request URL: %w", err)
	}

	var body io.Reader
	if req.Body != nil {
		data, err := json.Marshal(req.Body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		body = bytes.NewReader(data)
	}

	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, fullURL, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("User-Agent", userAgent)
	if req.Body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}

	resp, err := r.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request to %s failed: %w", req.Path, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response from %s: %w", req.Path, err)
	}

	return &domain.Response{
		StatusCode: resp.StatusCode,
		Headers:    resp.Header,
		Body:       respBody,
	}, nil
}

func joinURL(base, p string, q map[string]string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	u.Path = joinPath(u.Path, p)
	if len(q) > 0 {
		vals := u.Query()
		for k, v := range q {
			vals.Set(k, v)
		}
		u.RawQuery = vals.Encode()
	}
	return u.String(), nil
}

func joinPath(a, b string) string {
	if a == "" {
		return b
	}
	if b == "" {
		return a
	}
	if a[len(a)-1] == '/' {
		a = a[:len(a)-1]
	}
	if b[0] != '/' {
		b = "/" + b
	}
	return a + b
}

var _ ports.HTTPRequester = (*StdRequester)(nil)
