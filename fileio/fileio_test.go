package fileio_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blockfs/extentfs/extent"
	"github.com/blockfs/extentfs/fileio"
	"github.com/blockfs/extentfs/inodetab"
	"github.com/blockfs/extentfs/layout"
)

const (
	testInodeCount = 8
	testBlockCount = 32
)

func newEngine(t *testing.T) (*fileio.Engine, *layout.Inode) {
	t.Helper()
	image := make([]byte, layout.BlockSize*testBlockCount)

	inodeBitmap := layout.NewBitmap(testInodeCount)
	freeInodes := uint32(testInodeCount)
	inodes := inodetab.NewManager(image, 1, &inodeBitmap, &freeInodes)

	blockBitmap := layout.NewBitmap(testBlockCount)
	freeBlocks := uint32(testBlockCount)
	alloc := extent.NewAllocator(&blockBitmap, &freeBlocks)

	engine := fileio.NewEngine(image, inodes, alloc)

	in := &layout.Inode{Mode: layout.ModeReg | 0644, Links: 1, ExtentTableBlock: 20}
	require.NoError(t, inodes.WriteExtents(in, nil))

	return engine, in
}

func TestWriteReadRoundTrip(t *testing.T) {
	engine, in := newEngine(t)

	n, err := engine.Write(in, []byte("HELLO"), 0)
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	assert.Equal(t, uint64(5), in.Size)

	buf := make([]byte, 5)
	n, err = engine.Read(in, buf, 0)
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	assert.Equal(t, "HELLO", string(buf))
}

func TestWrite_HoleZeroing(t *testing.T) {
	engine, in := newEngine(t)

	_, err := engine.Write(in, []byte("HELLO"), 0)
	require.NoError(t, err)

	_, err = engine.Write(in, []byte("X"), 10)
	require.NoError(t, err)
	assert.Equal(t, uint64(11), in.Size)

	buf := make([]byte, 11)
	n, err := engine.Read(in, buf, 0)
	require.NoError(t, err)
	assert.Equal(t, 11, n)
	assert.Equal(t, []byte("HELLO\x00\x00\x00\x00\x00X"), buf)
}

func TestTruncate_GrowZeroFills(t *testing.T) {
	engine, in := newEngine(t)
	require.NoError(t, engine.Truncate(in, 11))
	assert.Equal(t, uint64(11), in.Size)

	buf := make([]byte, 11)
	n, err := engine.Read(in, buf, 0)
	require.NoError(t, err)
	assert.Equal(t, 11, n)
	for _, b := range buf {
		assert.Equal(t, byte(0), b)
	}
}

func TestTruncate_ShrinkThenGrow_PreservesPrefix(t *testing.T) {
	engine, in := newEngine(t)

	_, err := engine.Write(in, []byte("HELLO"), 0)
	require.NoError(t, err)
	_, err = engine.Write(in, []byte("X"), 10)
	require.NoError(t, err)

	require.NoError(t, engine.Truncate(in, 3))
	assert.Equal(t, uint64(3), in.Size)

	buf := make([]byte, 3)
	_, err = engine.Read(in, buf, 0)
	require.NoError(t, err)
	assert.Equal(t, "HEL", string(buf))

	require.NoError(t, engine.Truncate(in, 8))
	buf = make([]byte, 5)
	_, err = engine.Read(in, buf, 3)
	require.NoError(t, err)
	for _, b := range buf {
		assert.Equal(t, byte(0), b)
	}
}

func TestRead_PastEOF(t *testing.T) {
	engine, in := newEngine(t)
	_, err := engine.Write(in, []byte("abc"), 0)
	require.NoError(t, err)

	buf := make([]byte, 10)
	n, err := engine.Read(in, buf, 3)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestWrite_SpansMultipleBlocks(t *testing.T) {
	engine, in := newEngine(t)
	data := make([]byte, layout.BlockSize+100)
	for i := range data {
		data[i] = byte(i % 256)
	}

	n, err := engine.Write(in, data, 0)
	require.NoError(t, err)
	assert.Equal(t, len(data), n)

	buf := make([]byte, len(data))
	n, err = engine.Read(in, buf, 0)
	require.NoError(t, err)
	assert.Equal(t, len(data), n)
	assert.Equal(t, data, buf)
}
