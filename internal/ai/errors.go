package ai

import "errors"

// Failure taxonomy surfaced by the router and triage engine. Callers
// branch on these; anything not listed collapses to ErrBackendUnavailable
// so nobody grows a dependency on the backend's own error shapes.
var (
	ErrInvalidInput       = errors.New("invalid input")
	ErrNotConfigured      = errors.New("ai gateway key not configured")
	ErrRateLimited        = errors.New("rate limit exceeded")
	ErrQuotaExhausted     = errors.New("ai credits exhausted")
	ErrBackendUnavailable = errors.New("ai service temporarily unavailable")
)
