package cart

import "errors"

// Error kinds surfaced by the driver, per spec.md §7. Call sites wrap these
// with fmt.Errorf("...: %w", ...) so errors.Is keeps working after
// wrapping.
var (
	// ErrBusError covers short I/O, connect failure, or a controller
	// return code of 1. Call sites return it in place of the internal/bus
	// error; the bus-layer error itself is not wrapped.
	ErrBusError = errors.New("cart: bus error")

	// ErrBadHandle means the handle was not found, or was found but
	// closed.
	ErrBadHandle = errors.New("cart: bad handle")

	// ErrBusy means Open was called on a name that is already open.
	ErrBusy = errors.New("cart: file busy")

	// ErrOutOfRange means Seek targeted a negative location or one past
	// the file's length, or Write needed more than one new slot (a first
	// write larger than one frame included).
	ErrOutOfRange = errors.New("cart: out of range")

	// ErrOutOfMemory means a slot array or working buffer could not be
	// allocated.
	ErrOutOfMemory = errors.New("cart: out of memory")

	// ErrCorrupt means a runtime invariant was violated: treated as a
	// programming bug, reported but not expected to be recoverable.
	ErrCorrupt = errors.New("cart: corrupt state")
)
