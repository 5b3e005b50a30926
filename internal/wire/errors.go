package wire

import "errors"

// ErrOutOfRange is returned by Encode when a field value does not fit its
// bit width in the register word.
var ErrOutOfRange = errors.New("wire: value out of range")
