// Package extent implements the block allocator: finding and releasing runs
// of contiguous free blocks in the image's block bitmap.
//
// It merges the teacher's two near-identical allocators
// (drivers/common/allocatormap.go's Allocator and
// drivers/common/blockmanager.go's BlockManager — both a linear bitmap scan
// wrapping github.com/boljen/go-bitmap) into one type generalized to the two
// policies the extent-based file engine needs: an exact-fit, tail-anchored
// search, and a longest-available-run search.
package extent

import (
	"github.com/blockfs/extentfs/errno"
	"github.com/blockfs/extentfs/layout"
)

// Extent is a contiguous run of data blocks owned by one inode.
type Extent = layout.Extent

// Allocator finds and flips bits in a block bitmap, keeping a free-block
// counter in sync as it goes.
type Allocator struct {
	bitmap    *layout.Bitmap
	freeCount *uint32
}

// NewAllocator builds an allocator over bitmap, maintaining freeCount (a
// pointer into the superblock's FreeBlockCount field) as blocks are
// allocated and released.
func NewAllocator(bitmap *layout.Bitmap, freeCount *uint32) *Allocator {
	return &Allocator{bitmap: bitmap, freeCount: freeCount}
}

// highestUsedBlock returns one past the index of the highest set bit, i.e.
// the first candidate tail position for a tail-anchored allocation. Returns
// 0 if no bits are set.
func (a *Allocator) highestUsedBlock() uint {
	highest := uint(0)
	found := false
	for i := uint(0); i < a.bitmap.Len(); i++ {
		if a.bitmap.Test(i) {
			highest = i + 1
			found = true
		}
	}
	if !found {
		return 0
	}
	return highest
}

// AllocateExact finds a run of exactly `length` consecutive free blocks.
// Preference order: (a) a run starting immediately after the highest used
// block, keeping files contiguous at the tail; (b) the first matching run
// scanning from block 0. It fails with errno.NoSpace if no such run exists.
func (a *Allocator) AllocateExact(length uint) (Extent, error) {
	if length == 0 {
		return Extent{}, errno.InvalidArgument("allocation length must be > 0")
	}

	tail := a.highestUsedBlock()
	if start, ok := a.bitmap.ScanRunFrom(tail, length); ok {
		a.markUsed(start, length)
		return Extent{StartBlock: uint32(start), BlockCount: uint32(length)}, nil
	}

	if start, ok := a.bitmap.ScanRun(length); ok {
		a.markUsed(start, length)
		return Extent{StartBlock: uint32(start), BlockCount: uint32(length)}, nil
	}

	return Extent{}, errno.NoSpace("no run of %d contiguous free blocks", length)
}

// AllocateLongest returns the longest available run of consecutive free
// blocks, allocating all of it. It fails only when there isn't a single
// free block.
func (a *Allocator) AllocateLongest() (Extent, error) {
	start, length, ok := a.bitmap.ScanLongestRun()
	if !ok {
		return Extent{}, errno.NoSpace("no free blocks remain")
	}
	a.markUsed(start, length)
	return Extent{StartBlock: uint32(start), BlockCount: uint32(length)}, nil
}

// AllocateGrow satisfies a request for `length` blocks using AllocateExact
// first, falling back to repeated AllocateLongest calls until the request
// is satisfied or the device is exhausted. On exhaustion it releases
// everything it allocated during this call and returns errno.NoSpace, so
// the caller observes an atomic all-or-nothing result.
func (a *Allocator) AllocateGrow(length uint) ([]Extent, error) {
	if ext, err := a.AllocateExact(length); err == nil {
		return []Extent{ext}, nil
	}

	var acquired []Extent
	remaining := length
	for remaining > 0 {
		ext, err := a.AllocateLongest()
		if err != nil {
			for _, e := range acquired {
				a.Free(e)
			}
			return nil, errno.NoSpace("not enough free space to grow by %d blocks", length)
		}

		if uint(ext.BlockCount) > remaining {
			// Trim the tail of this run back to the filesystem; we only
			// needed `remaining` more blocks.
			extra := uint(ext.BlockCount) - remaining
			a.unmarkUsed(uint(ext.StartBlock)+remaining, extra)
			ext.BlockCount = uint32(remaining)
		}

		acquired = append(acquired, ext)
		remaining -= uint(ext.BlockCount)
	}

	return acquired, nil
}

// Free releases every block in ext back to the bitmap.
func (a *Allocator) Free(ext Extent) {
	a.unmarkUsed(uint(ext.StartBlock), uint(ext.BlockCount))
}

func (a *Allocator) markUsed(start, length uint) {
	for i := uint(0); i < length; i++ {
		a.bitmap.Set(start + i)
	}
	*a.freeCount -= uint32(length)
}

func (a *Allocator) unmarkUsed(start, length uint) {
	for i := uint(0); i < length; i++ {
		a.bitmap.Clear(start + i)
	}
	*a.freeCount += uint32(length)
}
