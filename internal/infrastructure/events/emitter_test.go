package events

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/zanmi-app/zanmi-go/internal/core/ports"
)

func TestEmitter_PublishReachesMatchingHandlers(t *testing.T) {
	e := NewEmitter(nil)

	var refreshed, expired int
	e.Subscribe(ports.TokenRefreshed, func(ports.AuthEvent) { refreshed++ })
	e.Subscribe(ports.SessionExpired, func(ports.AuthEvent) { expired++ })

	e.Publish(ports.AuthEvent{Kind: ports.TokenRefreshed, At: time.Now()})
	e.Publish(ports.AuthEvent{Kind: ports.TokenRefreshed, At: time.Now()})
	e.Publish(ports.AuthEvent{Kind: ports.LoggedOut, At: time.Now()})

	assert.Equal(t, 2, refreshed)
	assert.Zero(t, expired, "handler must only see its own kind")
}

func TestEmitter_Unsubscribe(t *testing.T) {
	e := NewEmitter(nil)

	var calls int
	unsubscribe := e.Subscribe(ports.RefreshFailed, func(ports.AuthEvent) { calls++ })

	e.Publish(ports.AuthEvent{Kind: ports.RefreshFailed})
	unsubscribe()
	unsubscribe() // twice is fine
	e.Publish(ports.AuthEvent{Kind: ports.RefreshFailed})

	assert.Equal(t, 1, calls)
}

func TestEmitter_HandlerMaySubscribeDuringPublish(t *testing.T) {
	e := NewEmitter(nil)

	var late int
	e.Subscribe(ports.LoggedOut, func(ports.AuthEvent) {
		e.Subscribe(ports.LoggedOut, func(ports.AuthEvent) { late++ })
	})

	e.Publish(ports.AuthEvent{Kind: ports.LoggedOut})
	assert.Zero(t, late, "a handler added mid-publish sees only later events")
	e.Publish(ports.AuthEvent{Kind: ports.LoggedOut})
	assert.Equal(t, 1, late)
}

func TestAuthEventKindNames(t *testing.T) {
	assert.Equal(t, "token_refreshed", ports.TokenRefreshed.String())
	assert.Equal(t, "refresh_failed", ports.RefreshFailed.String())
	assert.Equal(t, "session_expired", ports.SessionExpired.String())
	assert.Equal(t, "logged_out", ports.LoggedOut.String())
}
