package bus

import "errors"

// ErrBus is the sentinel wrapped by every bus-layer failure: short I/O,
// connect failure, or a non-zero return code from the controller.
var ErrBus = errors.New("bus: exchange failed")
