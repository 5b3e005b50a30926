// Package bus implements the client side of the register-word bus
// protocol: one TCP connection to the cartridge controller, carrying
// 64-bit command words and fixed-size frame payloads.
package bus

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/jwf5426/cartfs/internal/metrics"
	"github.com/jwf5426/cartfs/internal/wire"
)

// Client maintains a single TCP connection to the controller and drives
// request/response bus exchanges over it. It is not safe for concurrent
// use: the driver that owns a Client is itself single-threaded (see
// internal/cart.Driver).
type Client struct {
	addr string
	port uint16

	conn net.Conn
	log  *logrus.Entry
	m    *metrics.Metrics
}

// NewClient builds a bus Client targeting addr:port. The TCP connection is
// not made until the first Exchange call.
func NewClient(addr string, port uint16, log *logrus.Entry, m *metrics.Metrics) *Client {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Client{
		addr: addr,
		port: port,
		log:  log.WithField("component", "bus"),
		m:    m,
	}
}

// ensureConnected resolves and dials the controller address on first use.
// Subsequent calls are no-ops while the connection is live.
func (c *Client) ensureConnected() error {
	if c.conn != nil {
		return nil
	}

	target := net.JoinHostPort(c.addr, strconv.Itoa(int(c.port)))
	c.log.WithField("target", target).Debug("dialing controller")

	conn, err := net.Dial("tcp", target)
	if err != nil {
		return fmt.Errorf("bus: connect to %s: %w", target, ErrBus)
	}
	c.conn = conn
	return nil
}

// Exchange issues one bus request and returns the decoded response
// registers and, for a READ, the frame payload read back. For a WRITE,
// payload must carry exactly wire.FrameSize bytes to send; for other
// opcodes payload is ignored on the way in.
//
// ctx is accepted for the idiomatic call shape and is checked once before
// the exchange begins, but the blocking socket calls themselves are not
// interruptible mid-flight — the driver has no suspension/cancellation
// model (see internal/cart.Driver doc comment).
func (c *Client) Exchange(ctx context.Context, op wire.Opcode, cart, frame uint16, payload []byte) (wire.Registers, []byte, error) {
	if err := ctx.Err(); err != nil {
		return wire.Registers{}, nil, err
	}

	start := time.Now()
	regs, out, err := c.exchange(op, cart, frame, payload)
	elapsed := time.Since(start).Seconds()

	result := "ok"
	if err != nil {
		result = "error"
	} else if regs.Ret {
		result = "ret_error"
	}
	c.m.ObserveBusExchange(op.String(), result, elapsed)

	c.log.WithFields(logrus.Fields{
		"op":     op.String(),
		"cart":   cart,
		"frame":  frame,
		"result": result,
		"millis": elapsed * 1000,
	}).Debug("bus exchange")

	if err != nil {
		return wire.Registers{}, nil, err
	}
	if regs.Ret {
		return regs, nil, fmt.Errorf("bus: %s returned error status: %w", op, ErrBus)
	}
	return regs, out, nil
}

func (c *Client) exchange(op wire.Opcode, cart, frame uint16, payload []byte) (wire.Registers, []byte, error) {
	if err := c.ensureConnected(); err != nil {
		return wire.Registers{}, nil, err
	}

	word, err := wire.Encode(op, uint32(cart), uint32(frame))
	if err != nil {
		return wire.Registers{}, nil, fmt.Errorf("bus: encode request: %w", err)
	}

	req := make([]byte, wire.WordSize)
	wire.PutWord(req, word)
	if err := c.writeFull(req); err != nil {
		return wire.Registers{}, nil, err
	}

	if op == wire.OpWrite {
		if len(payload) != wire.FrameSize {
			return wire.Registers{}, nil, fmt.Errorf("bus: write payload must be %d bytes, got %d: %w", wire.FrameSize, len(payload), ErrBus)
		}
		if err := c.writeFull(payload); err != nil {
			return wire.Registers{}, nil, err
		}
	}

	respBuf := make([]byte, wire.WordSize)
	if err := c.readFull(respBuf); err != nil {
		return wire.Registers{}, nil, err
	}
	regs := wire.Decode(wire.GetWord(respBuf))

	var out []byte
	if op == wire.OpRead {
		out = make([]byte, wire.FrameSize)
		if err := c.readFull(out); err != nil {
			return wire.Registers{}, nil, err
		}
	}

	if op == wire.OpPoweroff {
		_ = c.conn.Close()
		c.conn = nil
	}

	return regs, out, nil
}

func (c *Client) writeFull(b []byte) error {
	n, err := c.conn.Write(b)
	if err != nil {
		return fmt.Errorf("bus: write: %w", ErrBus)
	}
	if n != len(b) {
		return fmt.Errorf("bus: short write (%d of %d bytes): %w", n, len(b), ErrBus)
	}
	return nil
}

func (c *Client) readFull(b []byte) error {
	read := 0
	for read < len(b) {
		n, err := c.conn.Read(b[read:])
		if err != nil {
			return fmt.Errorf("bus: read: %w", ErrBus)
		}
		read += n
	}
	return nil
}

// Close closes the underlying connection out of band, if one is open. The
// next Exchange call will observe a failure, per §5's "no cancellation"
// model: closing out of band is the only way to unstick a caller waiting
// on a stalled controller.
func (c *Client) Close() error {
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	return err
}
