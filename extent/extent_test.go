package extent_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blockfs/extentfs/extent"
	"github.com/blockfs/extentfs/layout"
)

func newAllocator(total uint) (*extent.Allocator, *uint32) {
	bm := layout.NewBitmap(total)
	free := uint32(total)
	return extent.NewAllocator(&bm, &free), &free
}

func TestAllocateExact_FromEmpty(t *testing.T) {
	alloc, free := newAllocator(16)
	ext, err := alloc.AllocateExact(4)
	require.NoError(t, err)
	assert.Equal(t, uint32(0), ext.StartBlock)
	assert.Equal(t, uint32(4), ext.BlockCount)
	assert.Equal(t, uint32(12), *free)
}

func TestAllocateExact_PrefersTail(t *testing.T) {
	alloc, _ := newAllocator(16)
	first, err := alloc.AllocateExact(4)
	require.NoError(t, err)
	assert.Equal(t, uint32(0), first.StartBlock)

	second, err := alloc.AllocateExact(4)
	require.NoError(t, err)
	assert.Equal(t, uint32(4), second.StartBlock, "second allocation should extend the tail")
}

func TestAllocateExact_NoSpace(t *testing.T) {
	alloc, _ := newAllocator(4)
	_, err := alloc.AllocateExact(5)
	assert.Error(t, err)
}

func TestAllocateExact_FallsBackToFirstFit(t *testing.T) {
	alloc, _ := newAllocator(4)
	// Use every block, then free a hole in the middle that is NOT reachable
	// as a tail-anchored run (the tail, block 4, is out of range).
	for i := 0; i < 4; i++ {
		_, err := alloc.AllocateExact(1)
		require.NoError(t, err)
	}
	alloc.Free(layout.Extent{StartBlock: 1, BlockCount: 1})

	ext, err := alloc.AllocateExact(1)
	require.NoError(t, err)
	assert.Equal(t, uint32(1), ext.StartBlock, "must fall back to the first matching run from block 0")
}

func TestAllocateLongest(t *testing.T) {
	alloc, _ := newAllocator(10)
	_, err := alloc.AllocateExact(2) // uses blocks 0-1
	require.NoError(t, err)

	ext, err := alloc.AllocateLongest()
	require.NoError(t, err)
	assert.Equal(t, uint32(2), ext.StartBlock)
	assert.Equal(t, uint32(8), ext.BlockCount)
}

func TestAllocateGrow_ExactFitFirst(t *testing.T) {
	alloc, _ := newAllocator(10)
	extents, err := alloc.AllocateGrow(4)
	require.NoError(t, err)
	require.Len(t, extents, 1)
	assert.Equal(t, uint32(4), extents[0].BlockCount)
}

func TestAllocateGrow_FragmentsAcrossRuns(t *testing.T) {
	alloc, free := newAllocator(6)
	for i := 0; i < 6; i++ {
		_, err := alloc.AllocateExact(1)
		require.NoError(t, err)
	}
	require.Equal(t, uint32(0), *free)

	// Punch holes so no single run of 3 exists, forcing AllocateGrow to
	// stitch the request together from several shorter runs.
	alloc.Free(layout.Extent{StartBlock: 1, BlockCount: 1})
	alloc.Free(layout.Extent{StartBlock: 3, BlockCount: 1})
	alloc.Free(layout.Extent{StartBlock: 5, BlockCount: 1})

	extents, err := alloc.AllocateGrow(3)
	require.NoError(t, err)
	total := uint32(0)
	for _, e := range extents {
		total += e.BlockCount
	}
	assert.Equal(t, uint32(3), total)
}

func TestAllocateGrow_ExhaustionRollsBack(t *testing.T) {
	alloc, free := newAllocator(4)
	_, err := alloc.AllocateGrow(10)
	assert.Error(t, err)
	assert.Equal(t, uint32(4), *free, "a failed grow must release everything it acquired")
}

func TestFree(t *testing.T) {
	alloc, free := newAllocator(8)
	ext, err := alloc.AllocateExact(4)
	require.NoError(t, err)
	alloc.Free(ext)
	assert.Equal(t, uint32(8), *free)
}
