package openmeteo

import "errors"

// Error classes for a single fetch attempt. Status codes map onto these so
// callers can distinguish a retryable outage from a broken configuration.
var (
	// ErrConnection means the API is unreachable (502/503 or a transport
	// failure).
	ErrConnection = errors.New("the API is unreachable")
	// ErrRequest means the API rejected the request as malformed (400).
	ErrRequest = errors.New("bad request")
	// ErrAuthentication means the API key is invalid (401/403).
	ErrAuthentication = errors.New("invalid API key")
	// ErrConfig means the API rejected the request parameters (422).
	ErrConfig = errors.New("invalid configuration")
	// ErrRatelimit means the request quota was exceeded (429).
	ErrRatelimit = errors.New("rate limit exceeded")
	// ErrUnexpectedResponse means the API returned something other than JSON.
	ErrUnexpectedResponse = errors.New("unexpected response from the API")
	// ErrInvalidModel means the configured weather model is malformed.
	// Multiple comma-separated models are not supported.
	ErrInvalidModel = errors.New("multiple weather models are not supported")
)
