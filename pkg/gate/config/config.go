// Package config loads toolgate configuration from YAML and produces the
// validated policy store consumed by the gate core.
//
// The loader is the only environment-aware stage: secret values written as
// "${VAR}" placeholders are resolved here through an injected env.Reader,
// so the core components only ever see fully-resolved secrets.
package config

import (
	"fmt"
	"net/url"

	"github.com/toolgate/toolgate/pkg/gate"
	"github.com/toolgate/toolgate/pkg/gate/policy"
)

// DestinationConfig is the configuration for one downstream tool server:
// its forwarding target plus its authentication policy.
type DestinationConfig struct {
	// URL is the base URL requests for this destination are forwarded to.
	// Optional for library-only use of the policy store; required by the
	// forwarding server.
	URL string `yaml:"url,omitempty"`

	// DestinationPolicy fields (oauth2, cookie_passthrough, static_headers)
	// are inlined at the destination level.
	policy.DestinationPolicy `yaml:",inline"`
}

// Config is the root configuration document.
type Config struct {
	// Defaults is the optional global default policy. Any policy block a
	// destination omits is inherited from here, block by block.
	Defaults *policy.DestinationPolicy `yaml:"defaults,omitempty"`

	// Destinations maps destination id to its configuration.
	Destinations map[string]*DestinationConfig `yaml:"destinations"`
}

// PolicyStore builds the validated, immutable policy store from the
// configuration.
func (c *Config) PolicyStore() (*policy.Store, error) {
	policies := make(map[string]*policy.DestinationPolicy, len(c.Destinations))
	for id, dest := range c.Destinations {
		if dest == nil {
			dest = &DestinationConfig{}
		}
		pol := dest.DestinationPolicy
		policies[id] = &pol
	}
	return policy.NewStore(policies, c.Defaults)
}

// TargetURLs returns the parsed forwarding target for every destination.
// Every destination must carry a valid absolute URL; this is only enforced
// here, so policy-only deployments can omit URLs entirely.
func (c *Config) TargetURLs() (map[string]*url.URL, error) {
	targets := make(map[string]*url.URL, len(c.Destinations))
	for id, dest := range c.Destinations {
		if dest == nil || dest.URL == "" {
			return nil, fmt.Errorf("%w: destination %q has no url", gate.ErrInvalidConfig, id)
		}
		u, err := url.Parse(dest.URL)
		if err != nil || !u.IsAbs() {
			return nil, fmt.Errorf("%w: destination %q url %q is not an absolute URL", gate.ErrInvalidConfig, id, dest.URL)
		}
		targets[id] = u
	}
	return targets, nil
}
