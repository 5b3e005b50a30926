package cache

import "errors"

var (
	// ErrOutOfMemory is returned when the cache cannot be allocated.
	ErrOutOfMemory = errors.New("cache: allocation failed")

	// ErrCorrupt is returned when an internal invariant (the priority
	// permutation, or a malformed payload) is violated. This indicates a
	// programming bug, not a recoverable runtime condition.
	ErrCorrupt = errors.New("cache: invariant violation")
)
