package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// TokenRefresher exchanges a refresh token for a rotated token pair.
type TokenRefresher interface {
	Refresh(ctx context.Context, refreshToken string) (access, refresh string, err error)
}

// Credentials is a login request body.
type Credentials struct {
	Identifier string `json:"identifier"`
	Password   string `json:"password"`
}

// TokenPair is the auth endpoints' response shape.
type TokenPair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

// HTTPRefresher talks to the auth endpoints directly, outside the
// request pipeline: the refresh call must never itself be gated on a
// token, and login happens before any token exists.
type HTTPRefresher struct {
	baseURL    string
	httpClient *http.Client
}

// NewHTTPRefresher creates a refresher against the API base URL
// (including the version prefix, e.g. https://api.example.com/api/v1).
func NewHTTPRefresher(baseURL string) *HTTPRefresher {
	return &HTTPRefresher{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// Refresh performs the token refresh call.
func (r *HTTPRefresher) Refresh(ctx context.Context, refreshToken string) (string, string, error) {
	pair, err := r.post(ctx, "/auth/refresh", map[string]string{
		"refreshToken": refreshToken,
	})
	if err != nil {
		return "", "", err
	}
	return pair.AccessToken, pair.RefreshToken, nil
}

// Login exchanges credentials for an initial token pair.
func (r *HTTPRefresher) Login(ctx context.Context, creds Credentials) (*TokenPair, error) {
	return r.post(ctx, "/auth/login", creds)
}

func (r *HTTPRefresher) post(ctx context.Context, path string, body any) (*TokenPair, error) {
	requestBody, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+path, bytes.NewBuffer(requestBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "zanmi-go/1.0")

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("auth request failed with status %d: %s", resp.StatusCode, string(respBody))
	}

	var pair TokenPair
	if err := json.NewDecoder(resp.Body).Decode(&pair); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return &pair, nil
}
