package gate

import (
	"errors"
	"fmt"
)

// Common domain errors used across gate subpackages.
// These errors should be checked using errors.Is().

var (
	// ErrInvalidConfig indicates a destination policy is missing or malformed.
	// This is a configuration bug, not a transient condition: callers should
	// surface it immediately rather than retry.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrFetchFailed indicates a token endpoint was unreachable, timed out,
	// or returned an invalid response. Transient by nature; the caller may
	// retry on a subsequent request. A *FetchError wrapping this sentinel
	// carries the destination and underlying cause.
	ErrFetchFailed = errors.New("token fetch failed")

	// ErrAuthUnavailable is the umbrella error surfaced from header
	// composition. It wraps either ErrInvalidConfig or ErrFetchFailed with
	// destination context attached.
	ErrAuthUnavailable = errors.New("authentication unavailable")
)

// FetchError describes a failed token fetch for a specific destination.
// It matches ErrFetchFailed under errors.Is and unwraps to the underlying
// cause (network error, OAuth error response, malformed body).
type FetchError struct {
	// Destination is the destination identifier the fetch was performed for.
	Destination string

	// StatusCode is the HTTP status returned by the token endpoint,
	// or 0 if the request never completed.
	StatusCode int

	// Err is the underlying cause.
	Err error
}

// Error implements the error interface.
func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("token fetch failed for destination %q (status %d): %v", e.Destination, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("token fetch failed for destination %q: %v", e.Destination, e.Err)
}

// Unwrap returns the underlying cause.
func (e *FetchError) Unwrap() error {
	return e.Err
}

// Is reports whether target is ErrFetchFailed, so that
// errors.Is(err, ErrFetchFailed) matches any *FetchError.
func (*FetchError) Is(target error) bool {
	return target == ErrFetchFailed
}
