// Package wire packs and unpacks the 64-bit register word spoken between
// the filesystem driver and the cartridge controller, and frames the
// fixed-size frame payloads that accompany READ and WRITE exchanges.
package wire

import (
	"encoding/binary"
	"fmt"
)

// Opcode identifies the bus operation carried in a register word.
type Opcode uint8

// Bus operations, matching the key1 field of the register word.
const (
	OpInit      Opcode = 0
	OpZero      Opcode = 1
	OpLoad      Opcode = 2
	OpRead      Opcode = 3
	OpWrite     Opcode = 4
	OpPoweroff  Opcode = 5
)

func (o Opcode) String() string {
	switch o {
	case OpInit:
		return "INIT"
	case OpZero:
		return "ZERO"
	case OpLoad:
		return "LOAD"
	case OpRead:
		return "READ"
	case OpWrite:
		return "WRITE"
	case OpPoweroff:
		return "POWEROFF"
	default:
		return fmt.Sprintf("Opcode(%d)", uint8(o))
	}
}

// Field widths, bit 63 is the MSB.
const (
	cartBits  = 16
	frameBits = 16
	cartMax   = 1<<cartBits - 1
	frameMax  = 1<<frameBits - 1

	opShift    = 56
	ret1Shift  = 47
	cartShift  = 31
	frameShift = 15
)

// Registers is the decoded form of a register word.
type Registers struct {
	Opcode Opcode
	Cart   uint16
	Frame  uint16
	Ret    bool
}

// Encode packs opcode, cart and frame into a register word with the return
// code and reserved bits zeroed. It rejects cart or frame values that do
// not fit their field widths.
func Encode(op Opcode, cart, frame uint32) (uint64, error) {
	if cart > cartMax {
		return 0, fmt.Errorf("wire: cartridge index %d out of range: %w", cart, ErrOutOfRange)
	}
	if frame > frameMax {
		return 0, fmt.Errorf("wire: frame index %d out of range: %w", frame, ErrOutOfRange)
	}

	word := uint64(op) << opShift
	word |= uint64(cart) << cartShift
	word |= uint64(frame) << frameShift
	return word, nil
}

// Decode unpacks a register word into its constituent fields.
func Decode(word uint64) Registers {
	return Registers{
		Opcode: Opcode(word >> opShift),
		Cart:   uint16(word>>cartShift) & cartMax,
		Frame:  uint16(word>>frameShift) & frameMax,
		Ret:    (word>>ret1Shift)&1 != 0,
	}
}

// EncodeRet behaves like Encode but also sets the return-code bit, for use
// by a controller-side test double composing a response word.
func EncodeRet(op Opcode, cart, frame uint32, ret bool) (uint64, error) {
	word, err := Encode(op, cart, frame)
	if err != nil {
		return 0, err
	}
	if ret {
		word |= 1 << ret1Shift
	}
	return word, nil
}

// PutWord writes word to b in network byte order. b must be at least 8
// bytes long.
func PutWord(b []byte, word uint64) {
	binary.BigEndian.PutUint64(b, word)
}

// GetWord reads a register word from b in network byte order. b must be at
// least 8 bytes long.
func GetWord(b []byte) uint64 {
	return binary.BigEndian.Uint64(b)
}

// WordSize is the size in bytes of a register word on the wire.
const WordSize = 8
