package cart

import (
	"bytes"
	"fmt"

	"github.com/jwf5426/cartfs/internal/wire"
)

// slot is a (cartridge, frame) pair, the addressable unit owned by a file.
type slot struct {
	cart  uint16
	frame uint16
}

// fileRecord is the per-file metadata described in spec.md §3. A record
// survives Close (retaining length and slots for a later reopen) and is
// only ever appended to, never removed: names are unique and permanent
// for the lifetime of a power cycle.
type fileRecord struct {
	name   []byte
	length int
	cursor int
	handle int // 0 when closed, positive and unique among open files
	slots  []slot
}

func (f *fileRecord) isOpen() bool {
	return f.handle > 0
}

// findFile returns the record named name, or nil.
func (d *Driver) findFile(name []byte) *fileRecord {
	for _, f := range d.files {
		if bytes.Equal(f.name, name) {
			return f
		}
	}
	return nil
}

// findByHandle returns the record currently open under handle, or nil.
func (d *Driver) findByHandle(handle int) *fileRecord {
	for _, f := range d.files {
		if f.handle == handle {
			return f
		}
	}
	return nil
}

// nextFreeHandle returns the smallest positive integer not currently held
// by an open file.
func (d *Driver) nextFreeHandle() int {
	for candidate := 1; ; candidate++ {
		inUse := false
		for _, f := range d.files {
			if f.handle == candidate {
				inUse = true
				break
			}
		}
		if !inUse {
			return candidate
		}
	}
}

// Open resolves name to a handle, per spec.md §4.4: an already-open name
// is rejected with ErrBusy; an existing closed name is reopened in place
// with cursor reset and a fresh handle written into its own record (the
// fix for the reopen bug noted in spec.md §9 item 4 — the original writes
// the new handle into the last filesystem slot instead of the matching
// one); an unknown name creates a fresh, empty record.
func (d *Driver) Open(name []byte) (handle int, err error) {
	defer func() { d.observeOp("open", err) }()

	if f := d.findFile(name); f != nil {
		if f.isOpen() {
			return -1, fmt.Errorf("cart: open %q: %w", name, ErrBusy)
		}
		f.handle = d.nextFreeHandle()
		f.cursor = 0
		d.logEntry().WithField("handle", f.handle).Debug("reopened file")
		return f.handle, nil
	}

	f := &fileRecord{
		name:   append([]byte(nil), name...),
		handle: d.nextFreeHandle(),
	}
	d.files = append(d.files, f)
	d.logEntry().WithField("handle", f.handle).Debug("created file")
	return f.handle, nil
}

// Close marks handle's file closed, resetting its cursor. The file's
// length and slots are retained for a later Open.
func (d *Driver) Close(handle int) (err error) {
	defer func() { d.observeOp("close", err) }()

	f := d.findByHandle(handle)
	if f == nil || !f.isOpen() {
		return fmt.Errorf("cart: close handle %d: %w", handle, ErrBadHandle)
	}
	f.handle = 0
	f.cursor = 0
	return nil
}

// Seek repositions handle's cursor. loc must not exceed the file's current
// length.
func (d *Driver) Seek(handle int, loc int) (err error) {
	defer func() { d.observeOp("seek", err) }()

	f := d.findByHandle(handle)
	if f == nil || !f.isOpen() {
		return fmt.Errorf("cart: seek handle %d: %w", handle, ErrBadHandle)
	}
	if loc > f.length || loc < 0 {
		return fmt.Errorf("cart: seek handle %d to %d beyond length %d: %w", handle, loc, f.length, ErrOutOfRange)
	}
	f.cursor = loc
	return nil
}

// Read copies up to count bytes from handle's current cursor into buf,
// per spec.md §4.4. It returns fewer bytes than requested exactly when the
// read runs past end of file, leaving cursor at length.
func (d *Driver) Read(handle int, buf []byte, count int) (n int, err error) {
	defer func() {
		d.observeOp("read", err)
		d.metrics.AddBytesTransferred("read", n)
	}()

	f := d.findByHandle(handle)
	if f == nil || !f.isOpen() {
		return -1, fmt.Errorf("cart: read handle %d: %w", handle, ErrBadHandle)
	}
	if count <= 0 || len(f.slots) == 0 {
		return 0, nil
	}

	startSlot := f.cursor / wire.FrameSize
	endSlot := (f.cursor + count) / wire.FrameSize
	if endSlot >= len(f.slots) {
		endSlot = len(f.slots) - 1
	}
	if startSlot > endSlot {
		startSlot = endSlot
	}

	working := make([]byte, wire.FrameSize*(endSlot-startSlot+1))
	for i := startSlot; i <= endSlot; i++ {
		frame, err := d.readThroughCache(f.slots[i])
		if err != nil {
			return -1, err
		}
		copy(working[(i-startSlot)*wire.FrameSize:], frame)
	}

	available := f.length - f.cursor
	if count > available {
		count = available
	}

	offset := f.cursor - startSlot*wire.FrameSize
	copy(buf, working[offset:offset+count])
	f.cursor += count
	return count, nil
}

// Write overlays count bytes from buf at handle's current cursor, per
// spec.md §4.4, allocating new slots from the append-only frontier as
// needed. It carries forward the original implementation's single
// extra-slot-per-call allocation limit (spec.md §9 item 2): a write that
// would need more than one new slot is rejected with ErrOutOfRange rather
// than silently under-allocating.
func (d *Driver) Write(handle int, buf []byte, count int) (n int, err error) {
	defer func() {
		d.observeOp("write", err)
		d.metrics.AddBytesTransferred("write", n)
	}()

	f := d.findByHandle(handle)
	if f == nil || !f.isOpen() {
		return -1, fmt.Errorf("cart: write handle %d: %w", handle, ErrBadHandle)
	}
	if count <= 0 {
		return 0, nil
	}

	if f.length == 0 && len(f.slots) == 0 {
		if count > wire.FrameSize {
			return -1, fmt.Errorf("cart: write handle %d: first write of %d bytes exceeds frame size %d: %w", handle, count, wire.FrameSize, ErrOutOfRange)
		}
		s, err := d.allocateSlot()
		if err != nil {
			return -1, err
		}
		f.slots = append(f.slots, s)

		payload := make([]byte, wire.FrameSize)
		copy(payload, buf[:count])
		if err := d.writeSlot(s, payload); err != nil {
			return -1, err
		}

		f.length = count
		f.cursor = count
		return count, nil
	}

	capacityBytes := len(f.slots) * wire.FrameSize
	if f.cursor+count > capacityBytes {
		if f.cursor+count > capacityBytes+wire.FrameSize {
			return -1, fmt.Errorf("cart: write handle %d: requires more than one new slot: %w", handle, ErrOutOfRange)
		}
		s, err := d.allocateSlot()
		if err != nil {
			return -1, err
		}
		f.slots = append(f.slots, s)
	}

	startSlot := f.cursor / wire.FrameSize
	endSlot := (f.cursor + count) / wire.FrameSize
	if (f.cursor+count)%wire.FrameSize == 0 {
		endSlot = startSlot
	}
	if endSlot >= len(f.slots) {
		endSlot = len(f.slots) - 1
	}

	working := make([]byte, wire.FrameSize*(endSlot-startSlot+1))
	for i := startSlot; i <= endSlot; i++ {
		frame, err := d.readThroughCache(f.slots[i])
		if err != nil {
			return -1, err
		}
		copy(working[(i-startSlot)*wire.FrameSize:], frame)
	}

	offset := f.cursor - startSlot*wire.FrameSize
	copy(working[offset:offset+count], buf[:count])

	for i := startSlot; i <= endSlot; i++ {
		chunk := working[(i-startSlot)*wire.FrameSize : (i-startSlot+1)*wire.FrameSize]
		if err := d.writeSlot(f.slots[i], chunk); err != nil {
			return -1, err
		}
	}

	if f.cursor+count > f.length {
		f.length = f.cursor + count
	}
	f.cursor += count
	return count, nil
}

// readThroughCache returns the current bytes of s, consulting the cache
// first and falling back to a bus READ (loading the owning cartridge if
// necessary) on a miss.
func (d *Driver) readThroughCache(s slot) ([]byte, error) {
	if data, ok := d.cache.Get(s.cart, s.frame); ok {
		d.metrics.ObserveCacheHit()
		return data, nil
	}
	d.metrics.ObserveCacheMiss()

	if err := d.ensureCartridgeLoaded(s.cart); err != nil {
		return nil, err
	}
	_, data, err := d.bus.Exchange(d.ctx(), wire.OpRead, s.cart, s.frame, nil)
	if err != nil {
		return nil, fmt.Errorf("cart: read frame (cart=%d,frame=%d): %w", s.cart, s.frame, ErrBusError)
	}
	if err := d.cache.Put(s.cart, s.frame, data); err != nil {
		return nil, fmt.Errorf("cart: cache frame (cart=%d,frame=%d): %w", s.cart, s.frame, err)
	}
	return data, nil
}

// writeSlot pushes data to s through the cache and the bus.
func (d *Driver) writeSlot(s slot, data []byte) error {
	if err := d.ensureCartridgeLoaded(s.cart); err != nil {
		return err
	}
	if _, _, err := d.bus.Exchange(d.ctx(), wire.OpWrite, s.cart, s.frame, data); err != nil {
		return fmt.Errorf("cart: write frame (cart=%d,frame=%d): %w", s.cart, s.frame, ErrBusError)
	}
	if err := d.cache.Put(s.cart, s.frame, data); err != nil {
		return fmt.Errorf("cart: cache frame (cart=%d,frame=%d): %w", s.cart, s.frame, err)
	}
	return nil
}

// allocateSlot consumes the next slot from the append-only frontier. The
// frontier rolls over to the next cartridge when nextFrame reaches
// wire.MaxFramesPerCartridge; the original C source rolled over at
// wire.FrameSize, the byte size of a frame, instead (spec.md §9 item 1;
// see DESIGN.md). Once every cartridge is used up it returns
// ErrOutOfMemory.
func (d *Driver) allocateSlot() (slot, error) {
	if d.nextCart >= wire.MaxCartridges {
		return slot{}, fmt.Errorf("cart: allocator exhausted all %d cartridges: %w", wire.MaxCartridges, ErrOutOfMemory)
	}

	s := slot{cart: d.nextCart, frame: d.nextFrame}
	d.nextFrame++
	if d.nextFrame >= wire.MaxFramesPerCartridge {
		d.nextFrame = 0
		d.nextCart++
	}
	return s, nil
}

// ensureCartridgeLoaded issues a LOAD bus request if cart is not already
// the loaded cartridge.
func (d *Driver) ensureCartridgeLoaded(cart uint16) error {
	if d.loadedCart != nil && *d.loadedCart == cart {
		return nil
	}
	if _, _, err := d.bus.Exchange(d.ctx(), wire.OpLoad, cart, 0, nil); err != nil {
		return fmt.Errorf("cart: load cartridge %d: %w", cart, ErrBusError)
	}
	loaded := cart
	d.loadedCart = &loaded
	return nil
}
