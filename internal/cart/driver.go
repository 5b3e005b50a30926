// Package cart implements the CORE of the driver described in spec.md:
// the append-only cartridge/frame filesystem and the control surface
// (poweron/poweroff) that ties the bus client and frame cache to it.
package cart

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/jwf5426/cartfs/internal/bus"
	"github.com/jwf5426/cartfs/internal/cache"
	"github.com/jwf5426/cartfs/internal/metrics"
	"github.com/jwf5426/cartfs/internal/wire"
)

// busClient is the subset of *bus.Client the driver needs, so tests can
// substitute a fake without a real socket.
type busClient interface {
	Exchange(ctx context.Context, op wire.Opcode, cart, frame uint16, payload []byte) (wire.Registers, []byte, error)
	Close() error
}

// Driver owns every piece of process-wide state the original C driver kept
// in module-level globals: the bus connection, the filesystem's file
// table and allocation frontier, the currently loaded cartridge, and the
// frame cache. Per spec.md §5 and §9, Driver is deliberately NOT
// goroutine-safe — the driver is single-threaded by design (no
// concurrency across file operations), so it carries no internal mutex.
// Callers needing concurrent access must serialize externally.
type Driver struct {
	bus   busClient
	cache *cache.Cache

	files      []*fileRecord
	nextCart   uint16
	nextFrame  uint16
	loadedCart *uint16

	cacheCapacity int
	log           *logrus.Entry
	metrics       *metrics.Metrics
}

// Option configures a Driver at construction time.
type Option func(*Driver)

// WithLogger attaches a structured logger. A nil or unset logger falls
// back to logrus' standard logger.
func WithLogger(log *logrus.Entry) Option {
	return func(d *Driver) { d.log = log }
}

// WithMetrics attaches a Prometheus metrics sink. A nil sink is safe (all
// observations become no-ops).
func WithMetrics(m *metrics.Metrics) Option {
	return func(d *Driver) { d.metrics = m }
}

// New constructs a Driver targeting the controller at addr:port, with a
// frame cache of the given capacity. The bus connection is not made and
// the cache is not allocated until Poweron.
func New(addr string, port uint16, cacheCapacity int, opts ...Option) *Driver {
	d := &Driver{cacheCapacity: cacheCapacity}
	for _, opt := range opts {
		opt(d)
	}
	if d.log == nil {
		d.log = logrus.NewEntry(logrus.StandardLogger())
	}
	d.bus = bus.NewClient(addr, port, d.log, d.metrics)
	return d
}

func (d *Driver) logEntry() *logrus.Entry {
	return d.log.WithField("component", "cart")
}

// ctx is the background context threaded through every bus exchange. The
// driver has no request-scoped cancellation model (see the Driver doc
// comment and spec.md §5); a fixed background context keeps the bus
// client's call shape idiomatic without pretending to support
// cancellation it cannot honor.
func (d *Driver) ctx() context.Context {
	return context.Background()
}

func (d *Driver) observeOp(op string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	d.metrics.ObserveFSOperation(op, result)
	if d.cache != nil {
		d.metrics.SetCacheOccupancy(d.cache.Occupied())
	}
	entry := d.logEntry().WithField("op", op)
	if err != nil {
		entry.WithError(err).Debug("operation failed")
	} else {
		entry.Trace("operation succeeded")
	}
}

// Poweron initializes the memory system, loads and zeroes every
// cartridge in index order, and allocates the frame cache, per spec.md
// §4.5. Any non-zero return code from the controller aborts the sequence
// with an error.
func (d *Driver) Poweron() error {
	if _, _, err := d.bus.Exchange(d.ctx(), wire.OpInit, 0, 0, nil); err != nil {
		return fmt.Errorf("cart: poweron: init memory system: %w", ErrBusError)
	}

	var last uint16
	for c := uint16(0); c < wire.MaxCartridges; c++ {
		if _, _, err := d.bus.Exchange(d.ctx(), wire.OpLoad, c, 0, nil); err != nil {
			return fmt.Errorf("cart: poweron: load cartridge %d: %w", c, ErrBusError)
		}
		if _, _, err := d.bus.Exchange(d.ctx(), wire.OpZero, 0, 0, nil); err != nil {
			return fmt.Errorf("cart: poweron: zero cartridge %d: %w", c, ErrBusError)
		}
		last = c
	}
	d.loadedCart = &last

	c, err := cache.New(d.cacheCapacity)
	if err != nil {
		return fmt.Errorf("cart: poweron: init cache: %w", err)
	}
	d.cache = c

	d.logEntry().WithField("cartridges", wire.MaxCartridges).Info("poweron complete")
	return nil
}

// Poweroff releases every file record, issues the POWEROFF bus exchange,
// and closes the frame cache, per spec.md §4.5. A non-zero return code
// from the controller is reported but cleanup still completes.
func (d *Driver) Poweroff() error {
	d.files = nil

	_, _, busErr := d.bus.Exchange(d.ctx(), wire.OpPoweroff, 0, 0, nil)

	if d.cache != nil {
		d.cache.Close()
	}

	if busErr != nil {
		d.logEntry().WithError(busErr).Error("poweroff: controller reported failure")
		return fmt.Errorf("cart: poweroff: %w", ErrBusError)
	}
	d.logEntry().Info("poweroff complete")
	return nil
}
