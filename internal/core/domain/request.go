package domain

import (
	"net/http"
	"sort"
	"strings"
)

// RequestContext describes one outgoing API call. It is created per
// call site and mutated in place by the pipeline stages; after the call
// settles it is discarded.
type RequestContext struct {
	Method  string
	Path    string
	Query   map[string]string
	Headers map[string]string
	Body    any

	// Retried marks that this request already went through one
	// 401-triggered refresh-and-redispatch cycle.
	Retried bool

	// Route is resolved by the pipeline from the route table. Nil for
	// paths the table does not know; such paths get the strict
	// defaults (auth-critical, not cacheable, default timeout).
	Route *Route
}

// SetHeader sets a request header, allocating the map on first use.
func (r *RequestContext) SetHeader(key, value string) {
	if r.Headers == nil {
		r.Headers = make(map[string]string)
	}
	r.Headers[key] = value
}

// NoCache reports whether the caller opted out of response caching for
// this request via a Cache-Control: no-cache header.
func (r *RequestContext) NoCache() bool {
	for k, v := range r.Headers {
		if strings.EqualFold(k, "Cache-Control") && strings.Contains(strings.ToLower(v), "no-cache") {
			return true
		}
	}
	return false
}

// CacheKey builds the response-cache key for this request:
// method, path, and the query parameters serialized in sorted order so
// equivalent requests always map to the same entry.
func (r *RequestContext) CacheKey() string {
	var b strings.Builder
	b.WriteString(r.Method)
	b.WriteByte(':')
	b.WriteString(r.Path)
	if len(r.Query) > 0 {
		keys := make([]string, 0, len(r.Query))
		for k := range r.Query {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		b.WriteByte('?')
		for i, k := range keys {
			if i > 0 {
				b.WriteByte('&')
			}
			b.WriteString(k)
			b.WriteByte('=')
			b.WriteString(r.Query[k])
		}
	}
	return b.String()
}

// Response is the settled result of a pipeline call, either from the
// network or synthesized from cache / graceful degradation.
type Response struct {
	StatusCode int
	Headers    http.Header
	Body       []byte

	// FromCache marks responses synthesized from the response cache,
	// so the response phase never re-caches them.
	FromCache bool

	// Degraded marks a synthesized empty-success response returned in
	// place of an auth failure on a non-critical read path.
	Degraded bool
}

// OK reports whether the response carries a 2xx status.
func (r *Response) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}
