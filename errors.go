package memfront

import "errors"

var (
	// ErrNoDriver is returned when no backend driver is registered for a
	// URL scheme.
	ErrNoDriver = errors.New("memfront: no cache driver available")

	// ErrKeyNotFound is returned when a key is not found in the cache.
	ErrKeyNotFound = errors.New("memfront: key not found")

	// ErrCASNotSupported is returned by drivers whose underlying client
	// does not expose CAS version tokens.
	ErrCASNotSupported = errors.New("memfront: cas tokens not supported by this driver")

	// ErrInvalidExpiry is returned when a negative duration or an absolute
	// time in the past is used as an expiry.
	ErrInvalidExpiry = errors.New("memfront: invalid expiry")
)

// Construction argument errors.
var (
	errNilConn   = errors.New("nil driver connection")
	errZeroToken = errors.New("zero cas token")
)
