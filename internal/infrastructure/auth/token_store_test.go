package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubRefresher struct {
	access  string
	refresh string
	err     error
	calls   int
	lastArg string
}

func (s *stubRefresher) Refresh(ctx context.Context, refreshToken string) (string, string, error) {
	s.calls++
	s.lastArg = refreshToken
	return s.access, s.refresh, s.err
}

func TestSecureFileTokenStore_RoundTrip(t *testing.T) {
	store, err := NewSecureFileTokenStore(t.TempDir(), nil)
	require.NoError(t, err)
	ctx := context.Background()

	// Empty store reads as empty tokens, not an error.
	access, err := store.GetAccessToken(ctx)
	require.NoError(t, err)
	assert.Empty(t, access)

	require.NoError(t, store.SaveAccessToken(ctx, "tok-a"))
	require.NoError(t, store.SaveRefreshToken(ctx, "tok-r"))

	access, err = store.GetAccessToken(ctx)
	require.NoError(t, err)
	assert.Equal(t, "tok-a", access)
	refresh, err := store.GetRefreshToken(ctx)
	require.NoError(t, err)
	assert.Equal(t, "tok-r", refresh)

	// The file on disk is ciphertext, not the token.
	raw, err := os.ReadFile(store.cacheFile)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "tok-a")

	require.NoError(t, store.ClearTokens(ctx))
	access, err = store.GetAccessToken(ctx)
	require.NoError(t, err)
	assert.Empty(t, access)
}

func TestSecureFileTokenStore_RefreshRotatesPair(t *testing.T) {
	refresher := &stubRefresher{access: "new-a", refresh: "new-r"}
	store, err := NewSecureFileTokenStore(t.TempDir(), refresher)
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, store.SaveRefreshToken(ctx, "old-r"))

	access, err := store.RefreshAccessToken(ctx)
	require.NoError(t, err)
	assert.Equal(t, "new-a", access)
	assert.Equal(t, "old-r", refresher.lastArg)

	refresh, err := store.GetRefreshToken(ctx)
	require.NoError(t, err)
	assert.Equal(t, "new-r", refresh)
}

func TestSecureFileTokenStore_RefreshWithoutSession(t *testing.T) {
	refresher := &stubRefresher{access: "new-a"}
	store, err := NewSecureFileTokenStore(t.TempDir(), refresher)
	require.NoError(t, err)

	// No refresh token: "" and nil, never an error and never a call.
	access, err := store.RefreshAccessToken(context.Background())
	require.NoError(t, err)
	assert.Empty(t, access)
	assert.Zero(t, refresher.calls)
}

func TestMemoryTokenStore_RefreshKeepsUnrotatedRefreshToken(t *testing.T) {
	refresher := &stubRefresher{access: "new-a", refresh: ""}
	store := NewMemoryTokenStore(refresher)
	ctx := context.Background()
	require.NoError(t, store.SaveRefreshToken(ctx, "keep-me"))

	access, err := store.RefreshAccessToken(ctx)
	require.NoError(t, err)
	assert.Equal(t, "new-a", access)

	refresh, err := store.GetRefreshToken(ctx)
	require.NoError(t, err)
	assert.Equal(t, "keep-me", refresh)
}

func TestMemoryTokenStore_RefreshError(t *testing.T) {
	refresher := &stubRefresher{err: errors.New("upstream down")}
	store := NewMemoryTokenStore(refresher)
	ctx := context.Background()
	require.NoError(t, store.SaveRefreshToken(ctx, "r"))

	_, err := store.RefreshAccessToken(ctx)
	assert.Error(t, err)
}

func TestHTTPRefresher(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v1/auth/refresh":
			var body map[string]string
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.Equal(t, "old-r", body["refreshToken"])
			json.NewEncoder(w).Encode(TokenPair{AccessToken: "new-a", RefreshToken: "new-r"})
		case "/api/v1/auth/login":
			var creds Credentials
			require.NoError(t, json.NewDecoder(r.Body).Decode(&creds))
			if creds.Password != "s3cret" {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			json.NewEncoder(w).Encode(TokenPair{AccessToken: "a", RefreshToken: "r"})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	refresher := NewHTTPRefresher(server.URL + "/api/v1")

	access, refresh, err := refresher.Refresh(context.Background(), "old-r")
	require.NoError(t, err)
	assert.Equal(t, "new-a", access)
	assert.Equal(t, "new-r", refresh)

	pair, err := refresher.Login(context.Background(), Credentials{Identifier: "u", Password: "s3cret"})
	require.NoError(t, err)
	assert.Equal(t, "a", pair.AccessToken)

	_, err = refresher.Login(context.Background(), Credentials{Identifier: "u", Password: "wrong"})
	assert.Error(t, err)
}
