// Package errs contains sentinel errors used across layers for stable error mapping.
package errs

import "errors"

// Validation failures. All of them wrap ErrValidation and are raised before any I/O.
var (
	// ErrValidation is the parent of every input validation error.
	ErrValidation = errors.New("validation")

	// ErrInvalidRegion indicates a region code outside the supported set.
	ErrInvalidRegion = fmtValidation("invalid region")

	// ErrInvalidRiotID indicates a malformed Name#TAG pair.
	ErrInvalidRiotID = fmtValidation("invalid riot id")

	// ErrInvalidPrefix indicates an unusable command prefix.
	ErrInvalidPrefix = fmtValidation("invalid prefix")
)

// Local lookup outcomes.
var (
	// ErrNotFound indicates the requested link or config does not exist locally.
	ErrNotFound = errors.New("not found")

	// ErrCommandThrottled indicates the caller exhausted its own command budget.
	ErrCommandThrottled = errors.New("command throttled")
)

// Remote verifier outcomes.
var (
	// ErrUpstreamNotFound indicates the game identity does not exist upstream.
	ErrUpstreamNotFound = errors.New("upstream: identity not found")

	// ErrRateLimited indicates the upstream API asked us to slow down.
	ErrRateLimited = errors.New("upstream: rate limited")

	// ErrUnauthorized indicates the API credential was rejected.
	ErrUnauthorized = errors.New("upstream: unauthorized")

	// ErrUpstreamFault indicates a 5xx-class upstream failure.
	ErrUpstreamFault = errors.New("upstream: server fault")

	// ErrTransport indicates a network-level failure talking to the upstream API.
	ErrTransport = errors.New("upstream: transport")

	// ErrMalformed indicates an upstream response that could not be interpreted.
	ErrMalformed = errors.New("upstream: malformed response")
)

// ErrStore is the parent of every durable store failure (see StoreError).
var ErrStore = errors.New("store")

type validationError struct{ msg string }

func fmtValidation(msg string) error { return &validationError{msg: msg} }

func (e *validationError) Error() string { return e.msg }
func (e *validationError) Unwrap() error { return ErrValidation }

// IsTransient reports whether err is a failure the caller may retry later.
// Validation, not-found and credential problems are never transient.
func IsTransient(err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, ErrStore),
		errors.Is(err, ErrRateLimited),
		errors.Is(err, ErrUpstreamFault),
		errors.Is(err, ErrTransport),
		errors.Is(err, ErrMalformed):
		return true
	default:
		return false
	}
}

// Code returns a short stable label for err, used in metrics and logs.
func Code(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrInvalidRegion):
		return "invalid_region"
	case errors.Is(err, ErrInvalidRiotID):
		return "invalid_riot_id"
	case errors.Is(err, ErrInvalidPrefix):
		return "invalid_prefix"
	case errors.Is(err, ErrValidation):
		return "validation"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrCommandThrottled):
		return "throttled"
	case errors.Is(err, ErrUpstreamNotFound):
		return "upstream_not_found"
	case errors.Is(err, ErrRateLimited):
		return "rate_limited"
	case errors.Is(err, ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, ErrUpstreamFault):
		return "upstream_fault"
	case errors.Is(err, ErrTransport):
		return "transport"
	case errors.Is(err, ErrMalformed):
		return "malformed"
	case errors.Is(err, ErrStore):
		return "store"
	default:
		return "internal"
	}
}
