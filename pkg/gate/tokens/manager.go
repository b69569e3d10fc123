// Package tokens implements the OAuth2 service-token manager: client
// credentials acquisition, per-destination caching with an expiry safety
// margin, and single-flight refresh under concurrent callers.
package tokens

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"

	"github.com/toolgate/toolgate/pkg/gate"
	"github.com/toolgate/toolgate/pkg/gate/policy"
	"github.com/toolgate/toolgate/pkg/logger"
)

// DefaultExpirySkew is subtracted from a token's expiry when deciding
// freshness, forcing refresh slightly before literal expiry to tolerate
// clock drift and in-flight request latency.
const DefaultExpirySkew = 60 * time.Second

// Manager issues and caches bearer tokens per destination.
//
// Thread-safety: safe for concurrent use. Cache hits are O(1) and
// non-blocking for other destinations; refreshes are serialized per
// destination through a single-flight group, so no two network fetches
// for the same destination are ever in flight simultaneously while
// fetches for different destinations proceed in parallel.
type Manager struct {
	store  *policy.Store
	client *http.Client
	now    func() time.Time
	skew   time.Duration

	mu    sync.Mutex
	cache map[string]*oauth2.Token

	group singleflight.Group
}

// Option configures a Manager.
type Option func(*Manager)

// WithHTTPClient sets the HTTP client used for token fetches. Fetch
// timeouts are enforced per request via context, so the client itself
// does not need a Timeout.
func WithHTTPClient(c *http.Client) Option {
	return func(m *Manager) {
		m.client = c
	}
}

// WithClock injects the clock used for expiry computation and comparison.
// The same clock is used on both sides so tests can drive refresh
// behavior deterministically.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		m.now = now
	}
}

// WithExpirySkew overrides the freshness safety margin.
func WithExpirySkew(skew time.Duration) Option {
	return func(m *Manager) {
		m.skew = skew
	}
}

// NewManager creates a token manager backed by the given policy store.
func NewManager(store *policy.Store, opts ...Option) *Manager {
	m := &Manager{
		store:  store,
		client: http.DefaultClient,
		now:    time.Now,
		skew:   DefaultExpirySkew,
		cache:  make(map[string]*oauth2.Token),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// GetToken returns a currently valid bearer token for the destination,
// fetching a new one only when the cached token is missing or within the
// expiry skew. A destination whose resolved policy carries no oauth2 block
// fails with gate.ErrInvalidConfig; fetch failures fail with an error
// matching gate.ErrFetchFailed and are never cached.
func (m *Manager) GetToken(ctx context.Context, destinationID string) (string, error) {
	tok, err := m.getToken(ctx, destinationID)
	if err != nil {
		return "", err
	}
	return tok.AccessToken, nil
}

// AuthorizationValue returns the Authorization header value for the
// destination, e.g. "Bearer abc123". The token type reported by the token
// endpoint is honored, defaulting to Bearer.
func (m *Manager) AuthorizationValue(ctx context.Context, destinationID string) (string, error) {
	tok, err := m.getToken(ctx, destinationID)
	if err != nil {
		return "", err
	}
	return tok.Type() + " " + tok.AccessToken, nil
}

func (m *Manager) getToken(ctx context.Context, destinationID string) (*oauth2.Token, error) {
	cfg, err := m.oauthConfig(destinationID)
	if err != nil {
		return nil, err
	}

	if tok, ok := m.cached(destinationID); ok {
		return tok, nil
	}

	v, err, _ := m.group.Do(destinationID, func() (any, error) {
		// Re-check under the flight: a waiter queued behind a completed
		// fetch must not trigger a second one.
		if tok, ok := m.cached(destinationID); ok {
			return tok, nil
		}

		// The fetch is detached from the triggering caller's lifetime:
		// other waiters may still depend on its result, so only the
		// configured fetch timeout bounds it.
		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.Timeout())
		defer cancel()

		logger.Debugw("fetching service token", "destination", destinationID, "token_url", cfg.TokenURL)
		tok, err := m.fetch(fctx, destinationID, cfg)
		if err != nil {
			return nil, err
		}

		m.mu.Lock()
		m.cache[destinationID] = tok
		m.mu.Unlock()

		logger.Infow("acquired service token",
			"destination", destinationID, "expires_at", tok.Expiry.Format(time.RFC3339))
		return tok, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*oauth2.Token), nil
}

// oauthConfig resolves the destination's policy and requires an oauth2 block.
func (m *Manager) oauthConfig(destinationID string) (*policy.OAuth2Config, error) {
	pol, err := m.store.Resolve(destinationID)
	if err != nil {
		return nil, err
	}
	if pol.OAuth2 == nil {
		return nil, fmt.Errorf("%w: destination %q has no oauth2 configuration", gate.ErrInvalidConfig, destinationID)
	}
	return pol.OAuth2, nil
}

// cached returns the destination's token if present and still fresh.
func (m *Manager) cached(destinationID string) (*oauth2.Token, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	tok, ok := m.cache[destinationID]
	if !ok || !m.fresh(tok) {
		return nil, false
	}
	return tok, true
}

// fresh reports whether the token may still be served: now must be before
// expiry minus the safety skew.
func (m *Manager) fresh(tok *oauth2.Token) bool {
	return m.now().Before(tok.Expiry.Add(-m.skew))
}

// ClearCache drops the cached token for one destination. The next request
// for it will fetch a fresh token.
func (m *Manager) ClearCache(destinationID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.cache, destinationID)
}

// ClearAll drops every cached token.
func (m *Manager) ClearAll() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cache = make(map[string]*oauth2.Token)
}

// CacheStat describes one cached token for debugging. The token value is
// truncated to a short preview and never exposed in full.
type CacheStat struct {
	TokenType    string
	TokenPreview string
	ExpiresAt    time.Time
	Expired      bool
}

// CacheStats returns per-destination cache statistics.
func (m *Manager) CacheStats() map[string]CacheStat {
	m.mu.Lock()
	defer m.mu.Unlock()

	stats := make(map[string]CacheStat, len(m.cache))
	for id, tok := range m.cache {
		stats[id] = CacheStat{
			TokenType:    tok.Type(),
			TokenPreview: previewToken(tok.AccessToken),
			ExpiresAt:    tok.Expiry,
			Expired:      !m.fresh(tok),
		}
	}
	return stats
}

func previewToken(token string) string {
	const previewLen = 8
	if len(token) <= previewLen {
		return token
	}
	return token[:previewLen] + "..."
}
