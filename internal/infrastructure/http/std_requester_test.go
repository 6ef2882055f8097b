package httpinfra

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zanmi-app/zanmi-go/internal/core/domain"
)

func TestStdRequester_Do(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/enrollments", r.URL.Path)
		assert.Equal(t, "p1", r.URL.Query().Get("poolId"))
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		assert.Equal(t, userAgent, r.Header.Get("User-Agent"))
		w.Header().Set("X-Request-Id", "r1")
		w.Write([]byte(`[{"id":"E1"}]`))
	}))
	defer server.Close()

	requester := NewStdRequester(server.URL+"/api/v1", nil)
	resp, err := requester.Do(context.Background(), &domain.RequestContext{
		Method:  "GET",
		Path:    "/enrollments",
		Query:   map[string]string{"poolId": "p1"},
		Headers: map[string]string{"Authorization": "Bearer tok"},
	}, 15*time.Second)

	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "r1", resp.Headers.Get("X-Request-Id"))
	assert.JSONEq(t, `[{"id":"E1"}]`, string(resp.Body))
}

func TestStdRequester_PostMarshalsJSONBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "E1", body["enrollmentId"])
		w.WriteHeader(http.StatusCreated)
	}))
	defer server.Close()

	requester := NewStdRequester(server.URL, nil)
	resp, err := requester.Do(context.Background(), &domain.RequestContext{
		Method: "POST",
		Path:   "/payments",
		Body:   domain.PaymentRequest{EnrollmentID: "E1", Amount: 50},
	}, 45*time.Second)

	require.NoError(t, err)
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
}

func TestStdRequester_NonOKIsResponseNotError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusUnauthorized)
	}))
	defer server.Close()

	requester := NewStdRequester(server.URL, nil)
	resp, err := requester.Do(context.Background(), &domain.RequestContext{
		Method: "GET", Path: "/auth/me",
	}, time.Second)

	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestStdRequester_TimeoutIsTransportError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer server.Close()

	requester := NewStdRequester(server.URL, nil)
	_, err := requester.Do(context.Background(), &domain.RequestContext{
		Method: "GET", Path: "/pools",
	}, 20*time.Millisecond)

	assert.Error(t, err)
}

func TestJoinURL(t *testing.T) {
	got, err := joinURL("https://api.zanmi.test/api/v1/", "/pools", nil)
	require.NoError(t, err)
	assert.Equal(t, "https://api.zanmi.test/api/v1/pools", got)

	got, err = joinURL("https://api.zanmi.test", "pools", map[string]string{"limit": "5"})
	require.NoError(t, err)
	assert.Equal(t, "https://api.zanmi.test/pools?limit=5", got)
}
