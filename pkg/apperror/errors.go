package apperror

import "errors"

// Error kinds surfaced by the context pipeline. Wrap them with
// fmt.Errorf("%w: ...", kind) and test with errors.Is.
var (
	// ErrValidation is returned before any I/O happens (empty question, bad budget).
	ErrValidation = errors.New("validation failed")

	// ErrUpstreamTimeout marks an embedding, vector index or completion call
	// that did not answer in time.
	ErrUpstreamTimeout = errors.New("upstream timeout")

	// ErrCacheUnavailable is never fatal. Callers treat it as a miss.
	ErrCacheUnavailable = errors.New("cache unavailable")

	// ErrForbidden is returned when a conversation is not owned by the caller.
	ErrForbidden = errors.New("access denied")

	ErrNotFound = errors.New("not found")

	// ErrInvariant signals a budgeting or ordering bug. It is logged and
	// returned, never clamped.
	ErrInvariant = errors.New("internal invariant violated")
)

// Kind returns the sentinel the error wraps, or nil.
func Kind(err error) error {
	for _, k := range []error{ErrValidation, ErrUpstreamTimeout, ErrCacheUnavailable, ErrForbidden, ErrNotFound, ErrInvariant} {
		if errors.Is(err, k) {
			return k
		}
	}
	return nil
}
