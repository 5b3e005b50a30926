package cart

import (
	"context"
	"fmt"
	"io"

	"github.com/sirupsen/logrus"

	"github.com/jwf5426/cartfs/internal/bus"
	"github.com/jwf5426/cartfs/internal/wire"
)

func noopLogger() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return logrus.NewEntry(l)
}

// fakeController is an in-process stand-in for the simulated cartridge
// controller, letting driver tests exercise every bus-facing code path
// (§8 end-to-end scenarios) without opening a real socket. It tracks
// every exchange so tests can assert bus traffic counts and cache-hit
// avoidance.
type fakeController struct {
	storage   map[slotKey][]byte
	loaded    int32
	exchanges []wire.Opcode
	failOn    *wire.Opcode // nil means every exchange succeeds
}

type slotKey struct {
	cart  uint16
	frame uint16
}

func newFakeController() *fakeController {
	return &fakeController{
		storage: make(map[slotKey][]byte),
		loaded:  -1,
	}
}

func (f *fakeController) Exchange(_ context.Context, op wire.Opcode, cart, frame uint16, payload []byte) (wire.Registers, []byte, error) {
	f.exchanges = append(f.exchanges, op)

	regs := wire.Registers{Opcode: op, Cart: cart, Frame: frame}
	if f.failOn != nil && op == *f.failOn {
		return regs, nil, fmt.Errorf("fakecontroller: %s returned error status: %w", op, bus.ErrBus)
	}

	switch op {
	case wire.OpLoad:
		f.loaded = int32(cart)
	case wire.OpRead:
		key := slotKey{cart, frame}
		data, ok := f.storage[key]
		if !ok {
			data = make([]byte, wire.FrameSize)
		}
		out := make([]byte, wire.FrameSize)
		copy(out, data)
		return regs, out, nil
	case wire.OpWrite:
		key := slotKey{cart, frame}
		stored := make([]byte, wire.FrameSize)
		copy(stored, payload)
		f.storage[key] = stored
	}
	return regs, nil, nil
}

func (f *fakeController) Close() error { return nil }

func (f *fakeController) readCount(op wire.Opcode) int {
	n := 0
	for _, e := range f.exchanges {
		if e == op {
			n++
		}
	}
	return n
}

func newTestDriver(cacheCapacity int) (*Driver, *fakeController) {
	fc := newFakeController()
	d := &Driver{
		bus:           fc,
		cacheCapacity: cacheCapacity,
	}
	d.log = noopLogger()
	return d, fc
}
