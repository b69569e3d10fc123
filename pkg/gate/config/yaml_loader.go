package config

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/toolgate/toolgate/pkg/env"
	"github.com/toolgate/toolgate/pkg/gate"
	"github.com/toolgate/toolgate/pkg/gate/policy"
)

// YAMLLoader loads configuration from a YAML file, resolving "${VAR}"
// secret placeholders through the injected environment reader.
type YAMLLoader struct {
	path string
	env  env.Reader
}

// NewYAMLLoader creates a loader for the given file path.
func NewYAMLLoader(path string, envReader env.Reader) *YAMLLoader {
	return &YAMLLoader{path: path, env: envReader}
}

// Load reads, parses, resolves, and validates the configuration. Unknown
// YAML fields, unresolvable placeholders, and policy invariant violations
// are all load-time errors.
func (l *YAMLLoader) Load() (*Config, error) {
	f, err := os.Open(l.path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("%w: failed to parse %s: %w", gate.ErrInvalidConfig, l.path, err)
	}

	if err := l.resolveSecrets(&cfg); err != nil {
		return nil, err
	}

	// Building the store validates every policy up front.
	if _, err := cfg.PolicyStore(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// resolveSecrets replaces "${VAR}" placeholders in secret-bearing fields.
func (l *YAMLLoader) resolveSecrets(cfg *Config) error {
	if cfg.Defaults != nil {
		if err := l.resolvePolicy(cfg.Defaults); err != nil {
			return fmt.Errorf("defaults: %w", err)
		}
	}
	for id, dest := range cfg.Destinations {
		if dest == nil {
			continue
		}
		if err := l.resolvePolicy(&dest.DestinationPolicy); err != nil {
			return fmt.Errorf("destination %q: %w", id, err)
		}
	}
	return nil
}

func (l *YAMLLoader) resolvePolicy(pol *policy.DestinationPolicy) error {
	if oauth := pol.OAuth2; oauth != nil {
		var err error
		if oauth.TokenURL, err = l.resolveValue(oauth.TokenURL); err != nil {
			return fmt.Errorf("oauth2 token_url: %w", err)
		}
		if oauth.ClientID, err = l.resolveValue(oauth.ClientID); err != nil {
			return fmt.Errorf("oauth2 client_id: %w", err)
		}
		if oauth.ClientSecret, err = l.resolveValue(oauth.ClientSecret); err != nil {
			return fmt.Errorf("oauth2 client_secret: %w", err)
		}
	}
	for name, value := range pol.StaticHeaders {
		resolved, err := l.resolveValue(value)
		if err != nil {
			return fmt.Errorf("static header %q: %w", name, err)
		}
		pol.StaticHeaders[name] = resolved
	}
	return nil
}

// resolveValue resolves a "${VAR}" placeholder through the environment
// reader. Values without the placeholder form pass through unchanged. An
// unset variable is an error; the error names the variable, never the
// value it would have held.
func (l *YAMLLoader) resolveValue(value string) (string, error) {
	if !strings.HasPrefix(value, "${") || !strings.HasSuffix(value, "}") {
		return value, nil
	}
	key := value[2 : len(value)-1]
	resolved := l.env.Getenv(key)
	if resolved == "" {
		return "", fmt.Errorf("%w: environment variable %q is not set", gate.ErrInvalidConfig, key)
	}
	return resolved, nil
}
