package remote

import "errors"

// Error classes the sync engine dispatches on. Connectivity-shaped failures
// keep records pending for a later drain; rejected requests are terminal and
// surface to the caller.
var (
	// ErrUnavailable covers transport failures, timeouts and 5xx responses.
	ErrUnavailable = errors.New("server unavailable")

	// ErrUnauthorized covers authentication and permission failures.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrRejected covers validation failures the server will never accept.
	ErrRejected = errors.New("request rejected")

	// ErrQuotaExceeded is terminal for uploads and is never retried.
	ErrQuotaExceeded = errors.New("storage quota exceeded")

	// ErrMissingIndex signals an ordered query the deployment cannot serve
	// yet; callers fall back to an unordered query with a client-side sort.
	ErrMissingIndex = errors.New("missing server index")

	ErrNotFound = errors.New("not found")
)

// Terminal reports whether err is a failure class that must not be retried.
func Terminal(err error) bool {
	return errors.Is(err, ErrUnauthorized) ||
		errors.Is(err, ErrRejected) ||
		errors.Is(err, ErrQuotaExceeded)
}
