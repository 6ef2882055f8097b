package domain

import (
	"strings"
	"time"
)

// Criticality controls how a route behaves when its token is expired
// or a refresh is already in flight. Auth-critical routes always wait
// for a fresh token; UI routes proceed with the existing token and
// trade strict correctness for availability.
type Criticality int

const (
	// CriticalityAuth is the strict default: wait for a valid token,
	// reject on failed refresh.
	CriticalityAuth Criticality = iota
	// CriticalityUI marks low-risk read paths that prefer going out
	// with a possibly stale token over blocking screen navigation.
	CriticalityUI
)

// TimeoutClass selects the outbound call timeout for a route.
type TimeoutClass int

const (
	// TimeoutDefault is the generic read/write timeout.
	TimeoutDefault TimeoutClass = iota
	// TimeoutPayment is the longer budget for payment and transaction
	// submission paths.
	TimeoutPayment
)

// Duration returns the wall-clock timeout for the class.
func (t TimeoutClass) Duration() time.Duration {
	if t == TimeoutPayment {
		return 45 * time.Second
	}
	return 15 * time.Second
}

// RoutePattern is a path template with named :param segments, e.g.
// "/pools/:id/balance". Matching is segment-exact: a pattern never
// matches a longer or shorter path, which rules out the partial-match
// false positives of substring matching.
type RoutePattern struct {
	raw      string
	segments []string
}

// ParseRoutePattern compiles a path template.
func ParseRoutePattern(pattern string) *RoutePattern {
	return &RoutePattern{
		raw:      pattern,
		segments: splitPath(pattern),
	}
}

// String returns the original template.
func (p *RoutePattern) String() string { return p.raw }

// Match tests a concrete path against the template and returns the
// bound :param values on success.
func (p *RoutePattern) Match(path string) (map[string]string, bool) {
	segs := splitPath(path)
	if len(segs) != len(p.segments) {
		return nil, false
	}
	var params map[string]string
	for i, want := range p.segments {
		if strings.HasPrefix(want, ":") {
			if segs[i] == "" {
				return nil, false
			}
			if params == nil {
				params = make(map[string]string)
			}
			params[want[1:]] = segs[i]
			continue
		}
		if want != segs[i] {
			return nil, false
		}
	}
	return params, true
}

func splitPath(p string) []string {
	p = strings.Trim(p, "/")
	if p == "" {
		return nil
	}
	return strings.Split(p, "/")
}

// Route declares the per-endpoint policy the pipeline consults: cache
// TTL, criticality, timeout class, and degradation behavior.
type Route struct {
	Name        string
	Pattern     *RoutePattern
	TTL         time.Duration // 0 means not cacheable
	Criticality Criticality
	Timeout     TimeoutClass

	// Anonymous routes never get an Authorization header (login,
	// token refresh itself).
	Anonymous bool

	// Degradable routes downgrade an unrecoverable 401 into a
	// synthesized empty success instead of an error.
	Degradable bool

	// DegradeBody is the synthesized body for degraded responses,
	// usually an empty array or object.
	DegradeBody string
}

// Cacheable reports whether GET responses for this route may be cached.
func (r *Route) Cacheable() bool {
	return r != nil && r.TTL > 0
}

// RouteTable is the ordered route registry. First match wins.
type RouteTable struct {
	routes []Route
}

// NewRouteTable builds a table from an explicit route list.
func NewRouteTable(routes []Route) *RouteTable {
	return &RouteTable{routes: routes}
}

// Match resolves a path to its declared route, or nil when the path is
// unknown. Unknown paths get the strict defaults.
func (t *RouteTable) Match(path string) *Route {
	for i := range t.routes {
		if _, ok := t.routes[i].Pattern.Match(path); ok {
			return &t.routes[i]
		}
	}
	return nil
}

// Routes returns the declared routes in match order.
func (t *RouteTable) Routes() []Route { return t.routes }

// DefaultRouteTable is the compiled-in endpoint policy. A YAML file can
// replace it at startup; new endpoints not listed anywhere default to
// the strict auth-critical behavior.
func DefaultRouteTable() *RouteTable {
	return NewRouteTable([]Route{
		{Name: "login", Pattern: ParseRoutePattern("/auth/login"), Anonymous: true},
		{Name: "refresh", Pattern: ParseRoutePattern("/auth/refresh"), Anonymous: true},
		{Name: "logout", Pattern: ParseRoutePattern("/auth/logout")},
		{Name: "me", Pattern: ParseRoutePattern("/auth/me")},
		{Name: "verify", Pattern: ParseRoutePattern("/auth/verify")},
		{Name: "detect", Pattern: ParseRoutePattern("/auth/detect"), Anonymous: true},

		{Name: "pools", Pattern: ParseRoutePattern("/pools"), TTL: 5 * time.Minute,
			Criticality: CriticalityUI, Degradable: true, DegradeBody: "[]"},
		{Name: "pool", Pattern: ParseRoutePattern("/pools/:id"), TTL: 5 * time.Minute,
			Criticality: CriticalityUI, Degradable: true, DegradeBody: "{}"},
		{Name: "pool-balance", Pattern: ParseRoutePattern("/pools/:id/balance"), TTL: 15 * time.Minute,
			Criticality: CriticalityUI},
		{Name: "enrollments", Pattern: ParseRoutePattern("/enrollments"), TTL: 5 * time.Minute,
			Criticality: CriticalityUI, Degradable: true, DegradeBody: "[]"},
		{Name: "enrollment", Pattern: ParseRoutePattern("/enrollments/:id"), TTL: 5 * time.Minute,
			Criticality: CriticalityUI, Degradable: true, DegradeBody: "{}"},
		{Name: "enrollment-payments", Pattern: ParseRoutePattern("/enrollments/:id/payments"), TTL: 2 * time.Minute,
			Criticality: CriticalityUI, Degradable: true, DegradeBody: "[]"},
		{Name: "offers", Pattern: ParseRoutePattern("/offers"), TTL: 30 * time.Minute,
			Criticality: CriticalityUI, Degradable: true, DegradeBody: "[]"},
		{Name: "contact-lookup", Pattern: ParseRoutePattern("/contacts/lookup"),
			Criticality: CriticalityUI},

		{Name: "payments", Pattern: ParseRoutePattern("/payments"), Timeout: TimeoutPayment},
		{Name: "transactions", Pattern: ParseRoutePattern("/transactions"), Timeout: TimeoutPayment},
	})
}
