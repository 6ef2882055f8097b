package ports

import "time"

// AuthEventKind is the closed set of auth lifecycle events the SDK can
// emit. New kinds are added here, never as free-form strings.
type AuthEventKind int

const (
	// TokenRefreshed fires after a refresh settles successfully.
	TokenRefreshed AuthEventKind = iota
	// RefreshFailed fires after a refresh settles with an error.
	RefreshFailed
	// SessionExpired fires when a refresh is impossible and the user
	// has to authenticate again.
	SessionExpired
	// LoggedOut fires when tokens are cleared deliberately.
	LoggedOut
)

// String returns the event name for logs.
func (k AuthEventKind) String() string {
	switch k {
	case TokenRefreshed:
		return "token_refreshed"
	case RefreshFailed:
		return "refresh_failed"
	case SessionExpired:
		return "session_expired"
	case LoggedOut:
		return "logged_out"
	}
	return "unknown"
}

// AuthEvent is one emitted auth lifecycle event.
type AuthEvent struct {
	Kind AuthEventKind
	At   time.Time
}

// Unsubscribe detaches a previously registered handler.
type Unsubscribe func()

// AuthEvents is the typed pub/sub channel for auth lifecycle events.
type AuthEvents interface {
	Subscribe(kind AuthEventKind, handler func(AuthEvent)) Unsubscribe
	Publish(event AuthEvent)
}
