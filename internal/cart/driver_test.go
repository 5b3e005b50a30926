package cart

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwf5426/cartfs/internal/wire"
)

func TestPoweronPoweroffExchangeCount(t *testing.T) {
	d, fc := newTestDriver(4)
	require.NoError(t, d.Poweron())
	require.NoError(t, d.Poweroff())

	want := 1 + int(wire.MaxCartridges)*2 + 1
	assert.Equal(t, want, len(fc.exchanges))
	assert.Equal(t, 1, fc.readCount(wire.OpInit))
	assert.Equal(t, int(wire.MaxCartridges), fc.readCount(wire.OpLoad))
	assert.Equal(t, int(wire.MaxCartridges), fc.readCount(wire.OpZero))
	assert.Equal(t, 1, fc.readCount(wire.OpPoweroff))
}

func TestOpenWriteReadClose(t *testing.T) {
	d, _ := newTestDriver(4)
	require.NoError(t, d.Poweron())

	h, err := d.Open([]byte("a"))
	require.NoError(t, err)
	require.Equal(t, 1, h)

	n, err := d.Write(h, []byte("hello"), 5)
	require.NoError(t, err)
	assert.Equal(t, 5, n)

	require.NoError(t, d.Seek(h, 0))

	buf := make([]byte, 5)
	n, err = d.Read(h, buf, 5)
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	assert.Equal(t, "hello", string(buf))
}

func TestReopenClosedFilePreservesData(t *testing.T) {
	d, _ := newTestDriver(4)
	require.NoError(t, d.Poweron())

	h, err := d.Open([]byte("a"))
	require.NoError(t, err)
	_, err = d.Write(h, []byte("hello"), 5)
	require.NoError(t, err)
	require.NoError(t, d.Close(h))

	h2, err := d.Open([]byte("a"))
	require.NoError(t, err)
	assert.Equal(t, h, h2, "handle is reused once free")

	buf := make([]byte, 5)
	n, err := d.Read(h2, buf, 5)
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	assert.Equal(t, "hello", string(buf))
}

func TestCacheHitAvoidsBusRead(t *testing.T) {
	d, fc := newTestDriver(4)
	require.NoError(t, d.Poweron())

	h, err := d.Open([]byte("a"))
	require.NoError(t, err)
	_, err = d.Write(h, []byte("hello"), 5)
	require.NoError(t, err)
	require.NoError(t, d.Seek(h, 0))

	buf := make([]byte, 5)
	_, err = d.Read(h, buf, 5)
	require.NoError(t, err)

	readsBefore := fc.readCount(wire.OpRead)

	require.NoError(t, d.Seek(h, 0))
	_, err = d.Read(h, buf, 5)
	require.NoError(t, err)

	assert.Equal(t, readsBefore, fc.readCount(wire.OpRead), "second read should be served entirely from cache")
}

func TestCrossFrameWrite(t *testing.T) {
	d, _ := newTestDriver(4)
	require.NoError(t, d.Poweron())

	h, err := d.Open([]byte("big"))
	require.NoError(t, err)

	zeros := make([]byte, wire.FrameSize)
	ones := make([]byte, wire.FrameSize)
	for i := range ones {
		ones[i] = 1
	}

	n, err := d.Write(h, zeros, wire.FrameSize)
	require.NoError(t, err)
	assert.Equal(t, wire.FrameSize, n)

	n, err = d.Write(h, ones, wire.FrameSize)
	require.NoError(t, err)
	assert.Equal(t, wire.FrameSize, n)

	f := d.findByHandle(h)
	require.NotNil(t, f)
	assert.Equal(t, 2*wire.FrameSize, f.length)
	assert.Len(t, f.slots, 2)

	require.NoError(t, d.Seek(h, 0))
	out := make([]byte, 2*wire.FrameSize)
	n, err = d.Read(h, out, 2*wire.FrameSize)
	require.NoError(t, err)
	assert.Equal(t, 2*wire.FrameSize, n)
	assert.Equal(t, zeros, out[:wire.FrameSize])
	assert.Equal(t, ones, out[wire.FrameSize:])
}

func TestSeekBounds(t *testing.T) {
	d, _ := newTestDriver(4)
	require.NoError(t, d.Poweron())

	h, err := d.Open([]byte("a"))
	require.NoError(t, err)
	_, err = d.Write(h, []byte("hello"), 5)
	require.NoError(t, err)

	err = d.Seek(h, 6)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrOutOfRange))

	f := d.findByHandle(h)
	assert.Equal(t, 5, f.cursor, "cursor must be left unchanged on a rejected seek")
}

func TestOpenAlreadyOpenIsBusy(t *testing.T) {
	d, _ := newTestDriver(4)
	require.NoError(t, d.Poweron())

	_, err := d.Open([]byte("a"))
	require.NoError(t, err)

	_, err = d.Open([]byte("a"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrBusy))
}

func TestCloseBadHandle(t *testing.T) {
	d, _ := newTestDriver(4)
	require.NoError(t, d.Poweron())

	err := d.Close(99)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrBadHandle))
}

func TestReadWriteOnClosedHandleIsBadHandle(t *testing.T) {
	d, _ := newTestDriver(4)
	require.NoError(t, d.Poweron())

	h, err := d.Open([]byte("a"))
	require.NoError(t, err)
	require.NoError(t, d.Close(h))

	_, err = d.Read(h, make([]byte, 1), 1)
	assert.True(t, errors.Is(err, ErrBadHandle))

	_, err = d.Write(h, []byte("x"), 1)
	assert.True(t, errors.Is(err, ErrBadHandle))
}

func TestShortReadPastEndOfFile(t *testing.T) {
	d, _ := newTestDriver(4)
	require.NoError(t, d.Poweron())

	h, err := d.Open([]byte("a"))
	require.NoError(t, err)
	_, err = d.Write(h, []byte("hello"), 5)
	require.NoError(t, err)
	require.NoError(t, d.Seek(h, 2))

	buf := make([]byte, 10)
	n, err := d.Read(h, buf, 10)
	require.NoError(t, err)
	assert.Equal(t, 3, n, "only the remaining 3 bytes should be returned")

	f := d.findByHandle(h)
	assert.Equal(t, f.length, f.cursor)
}

func TestPoweronAbortsOnControllerError(t *testing.T) {
	d, fc := newTestDriver(4)
	op := wire.OpZero
	fc.failOn = &op

	err := d.Poweron()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrBusError))
}
