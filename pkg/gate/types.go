package gate

import (
	"context"
	"net/http"
	"strings"
)

// Cookie is a single cookie name/value pair. Cookies are carried as an
// ordered slice rather than a map so that filtered output preserves the
// order they appeared in on the inbound request, keeping header
// serialization deterministic.
type Cookie struct {
	Name  string
	Value string
}

// CallerContext carries per-request caller state consumed by header
// composition. It is constructed by the routing layer once per inbound
// request and never retained.
type CallerContext struct {
	// Cookies are the raw cookies received from the caller, in the order
	// they appeared on the request.
	Cookies []Cookie
}

// ParseCookieHeader parses a raw Cookie header value into ordered
// name/value pairs. Malformed fragments without an "=" are skipped.
func ParseCookieHeader(raw string) []Cookie {
	if raw == "" {
		return nil
	}

	var cookies []Cookie
	for _, pair := range strings.Split(raw, ";") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		name, value, found := strings.Cut(pair, "=")
		if !found {
			continue
		}
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		cookies = append(cookies, Cookie{Name: name, Value: strings.TrimSpace(value)})
	}
	return cookies
}

// Header is a single header name/value pair within a HeaderSet.
type Header struct {
	Name  string
	Value string
}

// HeaderSet is an ordered set of header name/value pairs produced by
// header composition. It is a value object: treat it as immutable once
// composed and safe to hand to any number of transport calls for the
// same logical request.
type HeaderSet []Header

// Get returns the value for the named header, or "" if absent.
func (hs HeaderSet) Get(name string) string {
	for _, h := range hs {
		if h.Name == name {
			return h.Value
		}
	}
	return ""
}

// Has reports whether the named header is present.
func (hs HeaderSet) Has(name string) bool {
	for _, h := range hs {
		if h.Name == name {
			return true
		}
	}
	return false
}

// Set returns a HeaderSet with the named header set to value. An existing
// entry is replaced in place, preserving its position; otherwise the header
// is appended. The receiver is not modified.
func (hs HeaderSet) Set(name, value string) HeaderSet {
	out := make(HeaderSet, len(hs), len(hs)+1)
	copy(out, hs)
	for i, h := range out {
		if h.Name == name {
			out[i].Value = value
			return out
		}
	}
	return append(out, Header{Name: name, Value: value})
}

// Apply sets every header in the set on the given request, replacing any
// existing values for those header names.
func (hs HeaderSet) Apply(req *http.Request) {
	for _, h := range hs {
		req.Header.Set(h.Name, h.Value)
	}
}

// Map returns the header set as a plain map. Ordering is lost; use the
// slice form where deterministic serialization matters.
func (hs HeaderSet) Map() map[string]string {
	m := make(map[string]string, len(hs))
	for _, h := range hs {
		m[h.Name] = h.Value
	}
	return m
}

// HeaderComposer produces the authentication header set for a destination
// and caller context. The routing layer holds whichever implementation it
// was configured with at construction time: the composing implementation
// in pkg/gate/composer, or its NoAuth fallback.
type HeaderComposer interface {
	// Compose returns the headers to attach to an outbound request for the
	// given destination. It fails with an error matching ErrAuthUnavailable
	// when a required credential cannot be produced; no partial header set
	// is ever returned alongside an error.
	Compose(ctx context.Context, destinationID string, caller CallerContext) (HeaderSet, error)
}
