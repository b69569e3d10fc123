// Package policy defines the per-destination authentication policy model
// and the immutable store that resolves effective policies.
//
// A destination is a downstream tool server identified by a stable string
// key. Each destination may carry an OAuth2 client-credentials block, a
// cookie passthrough allow-list, and static headers. Any block a
// destination omits is inherited from the store's default policy.
package policy

import (
	"fmt"
	"net/url"
	"time"

	"github.com/toolgate/toolgate/pkg/gate"
)

const (
	// DefaultTokenTTL is assumed when the token endpoint omits expires_in
	// and the policy carries no TTL hint.
	DefaultTokenTTL = time.Hour

	// DefaultFetchTimeout bounds a single token fetch HTTP call when the
	// policy does not override it.
	DefaultFetchTimeout = 10 * time.Second

	// redactedPlaceholder replaces secret values in string representations.
	redactedPlaceholder = "[REDACTED]"
)

// Duration wraps time.Duration so that YAML values are written as duration
// strings ("30s", "1h") instead of nanosecond integers.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	dur, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration: %w", err)
	}
	*d = Duration(dur)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// OAuth2Config configures OAuth2 client-credentials authentication for a
// destination. Secrets reach this struct fully resolved; placeholder
// interpolation happens in the config loader, never here.
type OAuth2Config struct {
	// TokenURL is the OAuth2 token endpoint URL.
	TokenURL string `yaml:"token_url" json:"token_url"`

	// ClientID is the OAuth2 client identifier.
	ClientID string `yaml:"client_id" json:"client_id"`

	// ClientSecret is the OAuth2 client secret. It is redacted from all
	// string representations and never serialized back out.
	ClientSecret string `yaml:"client_secret" json:"-"`

	// Scope is the optional space-separated scope string to request.
	Scope string `yaml:"scope,omitempty" json:"scope,omitempty"`

	// TokenTTLHint is the cache lifetime assumed when the token response
	// omits expires_in. Zero means DefaultTokenTTL.
	TokenTTLHint Duration `yaml:"token_ttl_hint,omitempty" json:"token_ttl_hint,omitempty"`

	// FetchTimeout bounds a single token fetch HTTP call.
	// Zero means DefaultFetchTimeout.
	FetchTimeout Duration `yaml:"fetch_timeout,omitempty" json:"fetch_timeout,omitempty"`
}

// Validate checks that the config satisfies the policy invariant: when an
// oauth2 block is present, token_url, client_id and client_secret must all
// be non-empty and token_url must parse as an absolute URL.
func (c *OAuth2Config) Validate() error {
	if c.TokenURL == "" {
		return fmt.Errorf("%w: oauth2 token_url is required", gate.ErrInvalidConfig)
	}
	u, err := url.Parse(c.TokenURL)
	if err != nil || !u.IsAbs() {
		return fmt.Errorf("%w: oauth2 token_url %q is not an absolute URL", gate.ErrInvalidConfig, c.TokenURL)
	}
	if c.ClientID == "" {
		return fmt.Errorf("%w: oauth2 client_id is required", gate.ErrInvalidConfig)
	}
	if c.ClientSecret == "" {
		return fmt.Errorf("%w: oauth2 client_secret is required", gate.ErrInvalidConfig)
	}
	return nil
}

// String implements fmt.Stringer, redacting the client secret.
func (c OAuth2Config) String() string {
	secret := "<empty>"
	if c.ClientSecret != "" {
		secret = redactedPlaceholder
	}
	return fmt.Sprintf("OAuth2Config{TokenURL: %s, ClientID: %s, ClientSecret: %s, Scope: %s}",
		c.TokenURL, c.ClientID, secret, c.Scope)
}

// TTLHint returns the effective TTL assumed when expires_in is absent.
func (c *OAuth2Config) TTLHint() time.Duration {
	if c.TokenTTLHint > 0 {
		return time.Duration(c.TokenTTLHint)
	}
	return DefaultTokenTTL
}

// Timeout returns the effective bound for a single token fetch.
func (c *OAuth2Config) Timeout() time.Duration {
	if c.FetchTimeout > 0 {
		return time.Duration(c.FetchTimeout)
	}
	return DefaultFetchTimeout
}

// CookiePassthroughConfig configures which caller cookies may cross the
// trust boundary to a destination. Filtering is default-deny: a nil or
// disabled config forwards nothing, and an enabled config with empty
// allow-lists forwards nothing either.
type CookiePassthroughConfig struct {
	// Enabled turns cookie passthrough on for the destination.
	Enabled bool `yaml:"enabled" json:"enabled"`

	// AllowNames lists cookie names forwarded on exact, case-sensitive match.
	AllowNames []string `yaml:"allow_names,omitempty" json:"allow_names,omitempty"`

	// AllowPrefixes lists name prefixes; a cookie is forwarded when its name
	// starts with any of them. Literal prefix semantics, no wildcards.
	AllowPrefixes []string `yaml:"allow_prefixes,omitempty" json:"allow_prefixes,omitempty"`
}

// DestinationPolicy is the authentication policy for one destination.
// All blocks are optional; a destination with none configured is a
// no-auth destination and composes an empty header set.
type DestinationPolicy struct {
	// OAuth2 configures service-credential authentication.
	OAuth2 *OAuth2Config `yaml:"oauth2,omitempty" json:"oauth2,omitempty"`

	// CookiePassthrough configures caller cookie forwarding.
	CookiePassthrough *CookiePassthroughConfig `yaml:"cookie_passthrough,omitempty" json:"cookie_passthrough,omitempty"`

	// StaticHeaders are fixed headers added to every request for the
	// destination. Composed OAuth2 and Cookie headers take precedence on
	// name collision.
	StaticHeaders map[string]string `yaml:"static_headers,omitempty" json:"static_headers,omitempty"`
}

// Validate checks every configured block.
func (p *DestinationPolicy) Validate() error {
	if p.OAuth2 != nil {
		if err := p.OAuth2.Validate(); err != nil {
			return err
		}
	}
	return nil
}
