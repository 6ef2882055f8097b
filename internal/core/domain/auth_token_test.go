package domain

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tokenWithExp(t *testing.T, exp time.Time) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "member-1",
		"exp": exp.Unix(),
	})
	signed, err := token.SignedString([]byte("secret"))
	require.NoError(t, err)
	return signed
}

func TestTokenExpired(t *testing.T) {
	now := time.Now()

	assert.False(t, TokenExpired(tokenWithExp(t, now.Add(time.Hour)), now))
	assert.True(t, TokenExpired(tokenWithExp(t, now.Add(-time.Hour)), now))

	// Inside the skew window counts as expired even though the exp
	// claim is technically in the future.
	assert.True(t, TokenExpired(tokenWithExp(t, now.Add(2*time.Second)), now))

	assert.True(t, TokenExpired("", now))
	assert.True(t, TokenExpired("not-a-jwt", now))
}

func TestTokenExpired_NoExpClaim(t *testing.T) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": "member-1"})
	signed, err := token.SignedString([]byte("secret"))
	require.NoError(t, err)
	assert.True(t, TokenExpired(signed, time.Now()))
}

func TestRequestCacheKey(t *testing.T) {
	req := &RequestContext{
		Method: "GET",
		Path:   "/enrollments",
		Query:  map[string]string{"poolId": "p1", "limit": "20"},
	}
	// Query params serialize sorted so equivalent requests share a key.
	assert.Equal(t, "GET:/enrollments?limit=20&poolId=p1", req.CacheKey())

	bare := &RequestContext{Method: "GET", Path: "/pools"}
	assert.Equal(t, "GET:/pools", bare.CacheKey())
}

func TestRequestNoCache(t *testing.T) {
	req := &RequestContext{Method: "GET", Path: "/pools"}
	assert.False(t, req.NoCache())

	req.SetHeader("cache-control", "No-Cache")
	assert.True(t, req.NoCache())
}

func TestExpectedQuiet(t *testing.T) {
	contact := &Route{Name: "contact-lookup"}
	assert.True(t, ExpectedQuiet(contact, 404))
	assert.False(t, ExpectedQuiet(contact, 500))
	assert.False(t, ExpectedQuiet(nil, 404))

	detect := &Route{Name: "detect"}
	assert.True(t, ExpectedQuiet(detect, 401))
}
