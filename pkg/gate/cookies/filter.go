// Package cookies implements the caller-cookie filter: given the raw
// cookies of an inbound request and a destination's allow-list, it returns
// the subset permitted to cross the trust boundary.
package cookies

import (
	"strings"

	"github.com/toolgate/toolgate/pkg/gate"
	"github.com/toolgate/toolgate/pkg/gate/policy"
)

// Filter returns the cookies permitted by the passthrough config, in the
// order they appeared in the input. Filtering is default-deny: a nil or
// disabled config yields nothing. A cookie passes when its name exactly
// matches an allow_names entry or starts with an allow_prefixes entry;
// matching is case-sensitive with literal prefix semantics.
//
// Filter is pure: it never mutates its input and never fails.
func Filter(raw []gate.Cookie, cfg *policy.CookiePassthroughConfig) []gate.Cookie {
	if cfg == nil || !cfg.Enabled {
		return nil
	}

	var out []gate.Cookie
	for _, c := range raw {
		if allowed(c.Name, cfg) {
			out = append(out, c)
		}
	}
	return out
}

func allowed(name string, cfg *policy.CookiePassthroughConfig) bool {
	for _, n := range cfg.AllowNames {
		if name == n {
			return true
		}
	}
	for _, p := range cfg.AllowPrefixes {
		if p != "" && strings.HasPrefix(name, p) {
			return true
		}
	}
	return false
}

// Serialize joins cookies into a single Cookie header value using the
// standard "name=value; name2=value2" form, preserving input order.
func Serialize(cookies []gate.Cookie) string {
	parts := make([]string, 0, len(cookies))
	for _, c := range cookies {
		parts = append(parts, c.Name+"="+c.Value)
	}
	return strings.Join(parts, "; ")
}
