// Package cache implements the driver's fixed-capacity frame cache: an
// array-backed reverse-LRU keyed by (cartridge, frame), where priority 1 is
// the freshest entry and priority equal to the occupied count is the next
// one evicted. The scheme is reproduced exactly from the original C
// implementation (see DESIGN.md) because the driver's observable eviction
// order depends on it — a drop-in hash map + doubly-linked list would be
// the natural systems-language replacement, but tests are written against
// this behavior, not the representation.
package cache

import (
	"fmt"

	"github.com/jwf5426/cartfs/internal/wire"
)

// Key identifies a cached frame.
type Key struct {
	Cart  uint16
	Frame uint16
}

type entry struct {
	key      Key
	bytes    [wire.FrameSize]byte
	priority int
	occupied bool
}

// Cache is the fixed-capacity frame cache described in spec.md §4.3.
type Cache struct {
	capacity   int
	entries    []entry
	unoccupied int
}

// New allocates a cache with room for capacity frames. Capacity must be
// set before first use; a zero or negative capacity is rejected.
func New(capacity int) (*Cache, error) {
	if capacity <= 0 {
		return nil, fmt.Errorf("cache: capacity must be positive, got %d: %w", capacity, ErrOutOfMemory)
	}
	return &Cache{
		capacity:   capacity,
		entries:    make([]entry, capacity),
		unoccupied: capacity,
	}, nil
}

// Capacity returns the cache's fixed capacity.
func (c *Cache) Capacity() int {
	return c.capacity
}

// Occupied returns the number of entries currently holding a frame.
func (c *Cache) Occupied() int {
	return c.capacity - c.unoccupied
}

// Close releases the cache's storage. Subsequent calls to Put or Get on a
// closed cache are invalid.
func (c *Cache) Close() {
	c.entries = nil
	c.capacity = 0
	c.unoccupied = 0
}

// indexOf returns the index of the occupied entry holding key, or -1.
func (c *Cache) indexOf(key Key) int {
	for i := c.unoccupied; i < c.capacity; i++ {
		if c.entries[i].occupied && c.entries[i].key == key {
			return i
		}
	}
	return -1
}

// touch promotes the entry at index i to priority 1 and ages every other
// occupied entry whose priority was strictly less than old, the entry's
// priority before this touch. This is the single priority-rotation
// primitive shared by Put (on overwrite/insert) and Get (on hit).
func (c *Cache) touch(i int, old int) {
	c.entries[i].priority = 1
	for j := c.unoccupied; j < c.capacity; j++ {
		if j == i || !c.entries[j].occupied {
			continue
		}
		if c.entries[j].priority < old {
			c.entries[j].priority++
		}
	}
}

// Put inserts or overwrites the cached frame for key, per the put
// algorithm in spec.md §4.3:
//
//  1. If key is already cached, overwrite its bytes and promote it to
//     priority 1, aging entries that were fresher than it.
//  2. Else if there is a free slot, occupy it at the lowest priority
//     (occupied count after insertion), then promote it to priority 1 as
//     if its prior priority were the full capacity.
//  3. Else evict the entry at priority == capacity (the unique victim)
//     and reuse its slot at priority 1.
func (c *Cache) Put(cart, frame uint16, data []byte) error {
	if len(data) != wire.FrameSize {
		return fmt.Errorf("cache: frame payload must be %d bytes, got %d: %w", wire.FrameSize, len(data), ErrCorrupt)
	}
	key := Key{Cart: cart, Frame: frame}

	if i := c.indexOf(key); i >= 0 {
		old := c.entries[i].priority
		c.touch(i, old)
		copy(c.entries[i].bytes[:], data)
		return nil
	}

	if c.unoccupied > 0 {
		i := c.unoccupied - 1
		occupiedAfter := c.capacity - c.unoccupied + 1
		c.entries[i] = entry{key: key, priority: occupiedAfter, occupied: true}
		copy(c.entries[i].bytes[:], data)
		c.unoccupied--
		c.touch(i, c.capacity)
		return nil
	}

	victim := -1
	for j := c.unoccupied; j < c.capacity; j++ {
		if c.entries[j].priority == c.capacity {
			victim = j
			break
		}
	}
	if victim == -1 {
		return fmt.Errorf("cache: no entry at priority %d to evict: %w", c.capacity, ErrCorrupt)
	}

	c.entries[victim].key = key
	copy(c.entries[victim].bytes[:], data)
	c.touch(victim, c.capacity)
	return nil
}

// Get retrieves the cached frame for (cart, frame), promoting it to
// priority 1 on a hit. The returned slice is a copy; the cache never hands
// out a reference whose lifetime spans a further cache mutation.
func (c *Cache) Get(cart, frame uint16) ([]byte, bool) {
	key := Key{Cart: cart, Frame: frame}
	i := c.indexOf(key)
	if i < 0 {
		return nil, false
	}

	old := c.entries[i].priority
	c.touch(i, old)

	out := make([]byte, wire.FrameSize)
	copy(out, c.entries[i].bytes[:])
	return out, true
}

// Priorities returns the priority of every occupied entry, for invariant
// checks in tests.
func (c *Cache) Priorities() []int {
	out := make([]int, 0, c.Occupied())
	for i := c.unoccupied; i < c.capacity; i++ {
		out = append(out, c.entries[i].priority)
	}
	return out
}
