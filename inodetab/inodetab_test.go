package inodetab_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blockfs/extentfs/inodetab"
	"github.com/blockfs/extentfs/layout"
)

const testInodeCount = 16

func newManager(t *testing.T) (*inodetab.Manager, *layout.Bitmap, *uint32) {
	t.Helper()
	image := make([]byte, layout.BlockSize*4)
	bm := layout.NewBitmap(testInodeCount)
	free := uint32(testInodeCount)
	return inodetab.NewManager(image, 1, &bm, &free), &bm, &free
}

func TestAlloc_FreeRoundTrip(t *testing.T) {
	mgr, bm, free := newManager(t)

	idx, err := mgr.Alloc()
	require.NoError(t, err)
	assert.Equal(t, uint32(0), idx)
	assert.True(t, bm.Test(0))
	assert.Equal(t, uint32(testInodeCount-1), *free)

	require.NoError(t, mgr.Free(idx))
	assert.False(t, bm.Test(0))
	assert.Equal(t, uint32(testInodeCount), *free)
}

func TestWriteRead_RoundTrip(t *testing.T) {
	mgr, _, _ := newManager(t)

	in := layout.Inode{
		Mode:             layout.ModeReg | 0644,
		Links:            1,
		Size:             42,
		ExtentTableBlock: 3,
	}
	require.NoError(t, mgr.Write(5, &in))

	got, err := mgr.Read(5)
	require.NoError(t, err)
	assert.Equal(t, uint32(5), got.Number)
	assert.Equal(t, uint64(42), got.Size)
	assert.Equal(t, uint32(3), got.ExtentTableBlock)
	assert.True(t, got.IsFile())
}

func TestIsAllocated(t *testing.T) {
	mgr, bm, _ := newManager(t)
	assert.False(t, mgr.IsAllocated(2))
	bm.Set(2)
	assert.True(t, mgr.IsAllocated(2))
}

func TestAlloc_NoSpace(t *testing.T) {
	mgr, _, _ := newManager(t)
	for i := 0; i < testInodeCount; i++ {
		_, err := mgr.Alloc()
		require.NoError(t, err)
	}
	_, err := mgr.Alloc()
	assert.Error(t, err)
}

func TestExtentsRoundTrip(t *testing.T) {
	mgr, _, _ := newManager(t)
	in := layout.Inode{ExtentTableBlock: 2}

	extents := []layout.Extent{
		{StartBlock: 10, BlockCount: 4},
		{StartBlock: 20, BlockCount: 1},
	}
	require.NoError(t, mgr.WriteExtents(&in, extents))
	assert.Equal(t, uint32(2), in.ExtentCount)

	got, err := mgr.ReadExtents(&in)
	require.NoError(t, err)
	assert.Equal(t, extents, got)
}

func TestWriteExtents_TooMany(t *testing.T) {
	mgr, _, _ := newManager(t)
	in := layout.Inode{ExtentTableBlock: 2}

	extents := make([]layout.Extent, layout.MaxExtents+1)
	err := mgr.WriteExtents(&in, extents)
	assert.Error(t, err)
}

func TestRead_OutOfRange(t *testing.T) {
	mgr, _, _ := newManager(t)
	_, err := mgr.Read(testInodeCount)
	assert.Error(t, err)
}
