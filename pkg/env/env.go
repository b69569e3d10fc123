// Package env abstracts environment variable access so that components
// resolving secrets from the environment can be tested without mutating
// the process environment.
package env

import "os"

// Reader reads environment variables.
type Reader interface {
	// Getenv retrieves the value of the named environment variable.
	// It returns "" if the variable is not present.
	Getenv(key string) string
}

// OSReader reads environment variables from the process environment.
type OSReader struct{}

// Getenv implements Reader using os.Getenv.
func (*OSReader) Getenv(key string) string {
	return os.Getenv(key)
}

// MapReader reads environment variables from a fixed map. It is intended
// for tests.
type MapReader map[string]string

// Getenv implements Reader by map lookup.
func (m MapReader) Getenv(key string) string {
	return m[key]
}
