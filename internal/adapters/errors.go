package adapters

import "errors"

// Structured adapter errors. Adapters translate provider-specific failures
// into these before returning; callers match with errors.Is.
var (
	ErrSourceUnavailable    = errors.New("source unavailable")
	ErrRateLimited          = errors.New("rate limited")
	ErrUnsupportedSymbol    = errors.New("unsupported symbol")
	ErrUnsupportedTimeframe = errors.New("unsupported timeframe")
	ErrAuthFailed           = errors.New("authentication failed")
	ErrMalformedResponse    = errors.New("malformed response")

	// ErrNoRoute is returned by the registry when no adapter can serve a
	// symbol.
	ErrNoRoute = errors.New("no route for symbol")
)
