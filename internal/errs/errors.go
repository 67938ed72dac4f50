package errs

import "errors"

// Common sentinel errors for cross-layer signaling.
var (
	// ErrInvalid marks malformed or out-of-range caller input (HTTP 400).
	ErrInvalid = errors.New("invalid_argument")
	// ErrUnauthorized marks missing or bad credentials (HTTP 401).
	ErrUnauthorized = errors.New("unauthorized")
	// ErrNotFound marks an absent account, entry, or api key (HTTP 404).
	ErrNotFound = errors.New("not_found")
	// ErrTimeout marks caller cancellation propagated through the core (HTTP 408).
	ErrTimeout = errors.New("timeout")
	// ErrConflict marks state conflicts: duplicate names, commits over
	// non-pending entries, cancellation of committed entries (HTTP 409).
	ErrConflict = errors.New("conflict")
	// ErrInternal marks persistence failures and runtime invariant violations (HTTP 500).
	ErrInternal = errors.New("internal")
)
