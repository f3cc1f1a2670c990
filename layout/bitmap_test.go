package layout_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blockfs/extentfs/layout"
)

func TestBitmap_SetClearTest(t *testing.T) {
	bm := layout.NewBitmap(16)
	assert.False(t, bm.Test(3))
	bm.Set(3)
	assert.True(t, bm.Test(3))
	bm.Clear(3)
	assert.False(t, bm.Test(3))
}

func TestBitmap_ScanFirstFree(t *testing.T) {
	bm := layout.NewBitmap(8)
	bm.Set(0)
	bm.Set(1)
	idx, ok := bm.ScanFirstFree()
	require.True(t, ok)
	assert.Equal(t, uint(2), idx)
}

func TestBitmap_ScanFirstFree_AllUsed(t *testing.T) {
	bm := layout.NewBitmap(4)
	for i := uint(0); i < 4; i++ {
		bm.Set(i)
	}
	_, ok := bm.ScanFirstFree()
	assert.False(t, ok)
}

func TestBitmap_ScanRun(t *testing.T) {
	bm := layout.NewBitmap(10)
	bm.Set(0)
	bm.Set(1)
	bm.Set(5)
	start, ok := bm.ScanRun(3)
	require.True(t, ok)
	assert.Equal(t, uint(2), start)

	_, ok = bm.ScanRun(5)
	assert.False(t, ok, "no run of 5 exists: the free runs are [2,3,4] and [6..9]")
}

func TestBitmap_ScanRunFrom(t *testing.T) {
	bm := layout.NewBitmap(10)
	bm.Set(0)
	bm.Set(1)

	start, ok := bm.ScanRunFrom(2, 3)
	require.True(t, ok)
	assert.Equal(t, uint(2), start)

	bm.Set(3)
	_, ok = bm.ScanRunFrom(2, 3)
	assert.False(t, ok)
}

func TestBitmap_ScanLongestRun(t *testing.T) {
	bm := layout.NewBitmap(12)
	bm.Set(0)
	bm.Set(4)
	bm.Set(5)
	// free runs: [1,2,3] (len 3) and [6..11] (len 6)
	start, length, ok := bm.ScanLongestRun()
	require.True(t, ok)
	assert.Equal(t, uint(6), start)
	assert.Equal(t, uint(6), length)
}

func TestBitmap_CountFree(t *testing.T) {
	bm := layout.NewBitmap(8)
	bm.Set(0)
	bm.Set(7)
	assert.Equal(t, uint(6), bm.CountFree())
}

func TestBitmap_FromBytes_SharesBacking(t *testing.T) {
	data := make([]byte, 2)
	bm := layout.FromBytes(data, 16)
	bm.Set(0)
	assert.Equal(t, byte(1), data[0], "FromBytes must wrap in place, not copy")
}

func TestDirent_SetNameGetName(t *testing.T) {
	var d layout.Dirent
	require.NoError(t, d.SetName("hello"))
	assert.Equal(t, "hello", d.GetName())
}

func TestDirent_SetName_TooLong(t *testing.T) {
	var d layout.Dirent
	long := make([]byte, layout.NameMax+1)
	for i := range long {
		long[i] = 'a'
	}
	err := d.SetName(string(long))
	assert.Error(t, err)
}

func TestDirent_IsFree(t *testing.T) {
	var d layout.Dirent
	assert.True(t, d.IsFree())
	d.InodeNumber = 5
	assert.False(t, d.IsFree())
}

func TestComputeRegionSizes(t *testing.T) {
	// 1 MiB image, 4096-byte blocks => 256 total blocks, 32 inodes.
	ibm, bbm, itab := layout.ComputeRegionSizes(32, 256)
	assert.Equal(t, uint64(1), ibm)
	assert.Equal(t, uint64(1), bbm)
	assert.Equal(t, uint64(1), itab) // 32 * 128 = 4096 = exactly one block
}

func TestSuperblock_WriteReadRoundTrip(t *testing.T) {
	image := make([]byte, layout.BlockSize)
	sb := layout.Superblock{
		Magic:          layout.Magic,
		ImageSize:      int64(len(image)),
		InodeCount:     32,
		BlockCount:     256,
		FreeInodeCount: 31,
		FreeBlockCount: 200,
	}
	require.NoError(t, layout.WriteSuperblock(image, &sb))

	got, err := layout.ReadSuperblock(image)
	require.NoError(t, err)
	assert.Equal(t, sb.InodeCount, got.InodeCount)
	assert.Equal(t, sb.FreeBlockCount, got.FreeBlockCount)
}

func TestReadSuperblock_BadMagic(t *testing.T) {
	image := make([]byte, layout.BlockSize)
	_, err := layout.ReadSuperblock(image)
	assert.Error(t, err)
}

func TestCheckPath(t *testing.T) {
	assert.NoError(t, layout.CheckPath("/a/b"))
	assert.Error(t, layout.CheckPath("a/b"), "relative paths are rejected")

	long := make([]byte, layout.PathMax+1)
	for i := range long {
		long[i] = 'a'
	}
	assert.Error(t, layout.CheckPath("/"+string(long)))
}
