package policy

import (
	"fmt"
	"sort"

	"github.com/toolgate/toolgate/pkg/gate"
)

// Store holds the authentication policies for all known destinations plus
// an optional default policy. It is immutable after construction and safe
// for unsynchronized concurrent reads.
type Store struct {
	destinations map[string]*DestinationPolicy
	defaults     *DestinationPolicy
}

// NewStore builds a Store from per-destination policies and an optional
// default policy. Every policy is validated up front so that a malformed
// oauth2 block fails at construction rather than on first use.
func NewStore(destinations map[string]*DestinationPolicy, defaults *DestinationPolicy) (*Store, error) {
	if defaults != nil {
		if err := defaults.Validate(); err != nil {
			return nil, fmt.Errorf("default policy: %w", err)
		}
	}

	byID := make(map[string]*DestinationPolicy, len(destinations))
	for id, pol := range destinations {
		if id == "" {
			return nil, fmt.Errorf("%w: destination id cannot be empty", gate.ErrInvalidConfig)
		}
		if pol == nil {
			pol = &DestinationPolicy{}
		}
		if err := pol.Validate(); err != nil {
			return nil, fmt.Errorf("destination %q: %w", id, err)
		}
		byID[id] = pol
	}

	return &Store{destinations: byID, defaults: defaults}, nil
}

// Resolve returns the effective policy for a destination, merging the
// default policy block by block: a block the destination sets always wins,
// a block it omits is inherited from the defaults. An unknown destination
// id is a configuration error.
//
// The returned policy is a fresh value; mutating it does not affect the
// store.
func (s *Store) Resolve(destinationID string) (*DestinationPolicy, error) {
	pol, ok := s.destinations[destinationID]
	if !ok {
		return nil, fmt.Errorf("%w: unknown destination %q", gate.ErrInvalidConfig, destinationID)
	}

	resolved := &DestinationPolicy{
		OAuth2:            pol.OAuth2,
		CookiePassthrough: pol.CookiePassthrough,
		StaticHeaders:     pol.StaticHeaders,
	}
	if s.defaults != nil {
		if resolved.OAuth2 == nil {
			resolved.OAuth2 = s.defaults.OAuth2
		}
		if resolved.CookiePassthrough == nil {
			resolved.CookiePassthrough = s.defaults.CookiePassthrough
		}
		if resolved.StaticHeaders == nil {
			resolved.StaticHeaders = s.defaults.StaticHeaders
		}
	}
	return resolved, nil
}

// Destinations returns the configured destination ids in sorted order.
func (s *Store) Destinations() []string {
	ids := make([]string, 0, len(s.destinations))
	for id := range s.destinations {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
