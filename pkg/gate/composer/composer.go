// Package composer orchestrates the token manager and cookie filter to
// produce the final authentication header set for a destination.
package composer

import (
	"context"
	"fmt"
	"sort"

	"github.com/toolgate/toolgate/pkg/gate"
	"github.com/toolgate/toolgate/pkg/gate/cookies"
	"github.com/toolgate/toolgate/pkg/gate/policy"
	"github.com/toolgate/toolgate/pkg/logger"
)

// AuthorizationSource produces Authorization header values for
// destinations that require OAuth2. *tokens.Manager satisfies this
// interface in production.
type AuthorizationSource interface {
	// AuthorizationValue returns the full header value, e.g. "Bearer abc123".
	AuthorizationValue(ctx context.Context, destinationID string) (string, error)
}

// Composer builds per-request authentication headers from the resolved
// destination policy. It implements gate.HeaderComposer.
//
// Compose fails closed: when the resolved policy requires OAuth2 and the
// token cannot be produced, no header set is returned at all, including
// any cookies that would otherwise have passed the filter.
type Composer struct {
	store  *policy.Store
	tokens AuthorizationSource
}

// New creates a Composer over the given policy store and token source.
func New(store *policy.Store, tokens AuthorizationSource) *Composer {
	return &Composer{store: store, tokens: tokens}
}

// Compose resolves the destination's policy and produces its header set.
//
// Header order is deterministic: static headers sorted by name, then
// Authorization, then Cookie. Composed headers win over static headers on
// name collision, replacing the value in place.
func (c *Composer) Compose(ctx context.Context, destinationID string, caller gate.CallerContext) (gate.HeaderSet, error) {
	pol, err := c.store.Resolve(destinationID)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", gate.ErrAuthUnavailable, err)
	}

	hs := gate.HeaderSet{}
	for _, name := range sortedKeys(pol.StaticHeaders) {
		hs = hs.Set(name, pol.StaticHeaders[name])
	}

	if pol.OAuth2 != nil {
		authz, err := c.tokens.AuthorizationValue(ctx, destinationID)
		if err != nil {
			// Fail closed: no partial header set for an auth-required
			// destination.
			return nil, fmt.Errorf("%w for destination %q: %w", gate.ErrAuthUnavailable, destinationID, err)
		}
		hs = hs.Set("Authorization", authz)
	}

	if pol.CookiePassthrough != nil && pol.CookiePassthrough.Enabled {
		if filtered := cookies.Filter(caller.Cookies, pol.CookiePassthrough); len(filtered) > 0 {
			hs = hs.Set("Cookie", cookies.Serialize(filtered))
		}
	}

	logger.Debugw("composed auth headers", "destination", destinationID, "headers", headerNames(hs))
	return hs, nil
}

// NoAuth is a HeaderComposer that always composes an empty header set.
// It is the default implementation a routing layer uses when outbound
// authentication is disabled.
type NoAuth struct{}

// Compose implements gate.HeaderComposer.
func (NoAuth) Compose(context.Context, string, gate.CallerContext) (gate.HeaderSet, error) {
	return gate.HeaderSet{}, nil
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// headerNames lists header names only; values may carry credentials and
// are never logged.
func headerNames(hs gate.HeaderSet) []string {
	names := make([]string, 0, len(hs))
	for _, h := range hs {
		names = append(names, h.Name)
	}
	return names
}
