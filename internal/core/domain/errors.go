package domain

import (
	"errors"
	"fmt"
)

// ErrNoSession indicates there is no refresh token to refresh with:
// the user has to authenticate again.
var ErrNoSession = errors.New("no session: refresh not possible")

// ErrRefreshFailed wraps a settled-but-unsuccessful token refresh.
var ErrRefreshFailed = errors.New("token refresh failed")

// APIError carries a non-2xx response through to the caller with the
// original status intact, so caller-side handling can branch on it.
type APIError struct {
	Status int
	Path   string
	Body   []byte
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status %d on %s", e.Status, e.Path)
}

// quietErrors is the fixed allow-list of (status, route name) pairs
// that are part of normal operation: they are logged at debug level
// and never feed the generic error paths.
var quietErrors = map[string]int{
	"contact-lookup": 404,
	"detect":         401,
	"verify":         401,
}

// ExpectedQuiet reports whether a failure status on a route is an
// expected outcome rather than an anomaly.
func ExpectedQuiet(route *Route, status int) bool {
	if route == nil {
		return false
	}
	want, ok := quietErrors[route.Name]
	return ok && want == status
}
