// Package testutils provides shared test doubles for worker, scheduler and
// command tests: a mock http.RoundTripper and an in-memory subscription store.
// Grounded on testutils/testutils.go's MockTransport/NewRoundTripper,
// carried over essentially unchanged since the shape already fits this
// domain, and database.NopStorage's role as an in-memory store double for
// tests that don't want a real sqlite file.
package testutils

import "net/http"

// MockTransport implements http.RoundTripper by delegating to RT.
type MockTransport struct {
	RT func(*http.Request) (*http.Response, error)
}

// RoundTrip satisfies http.RoundTripper.
func (t MockTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	return t.RT(req)
}

// NewRoundTripper returns an http.RoundTripper backed by roundTrip.
func NewRoundTripper(roundTrip func(*http.Request) (*http.Response, error)) http.RoundTripper {
	return MockTransport{RT: roundTrip}
}
