package config

import "errors"

// Sentinel errors for internal use.
var (
	ErrInvalidConfig   = errors.New("invalid config")
	ErrMissingConfig   = errors.New("missing core configuration")
	ErrCoreUnreachable = errors.New("payment core unreachable")
	ErrCircuitOpen     = errors.New("circuit breaker is open")
	ErrNotFound        = errors.New("not found")

	// Tracker
	ErrMaxSessions     = errors.New("max active sessions reached")
	ErrAlreadyTracking = errors.New("invoice already tracked")
	ErrSessionNotFound = errors.New("session not found")
)

// Gateway error kinds. Stable across the status and confirm gateways and
// shared with the storefront via the "error" field of every failure envelope.
const (
	ErrorBadRequest = "bad_request"
	ErrorConfig     = "config"
	ErrorPSPCore    = "psp_core_error"
	ErrorNetwork    = "network_error"
)

// Error codes for the supplementary tracker/demo endpoints.
const (
	ErrorNotFound       = "not_found"
	ErrorMaxSessions    = "max_sessions"
	ErrorAlreadyTracked = "already_tracked"
	ErrorInternal       = "internal"
	ErrorStoreFailed    = "store_failed"
)
