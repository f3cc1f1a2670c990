// Package inodetab is the inode manager: it allocates and frees inode
// numbers via the inode bitmap, and reads/writes fixed-size inode records
// by index in the inode table.
//
// It's grounded on the same shape as the teacher's
// file_systems/unixv1/inode.go raw-struct marshaling, generalized from that
// file system's 512-byte direct block list to this one's single
// extent-table-block-per-inode design.
package inodetab

import (
	"bytes"
	"encoding/binary"

	"github.com/blockfs/extentfs/errno"
	"github.com/blockfs/extentfs/layout"
)

// Manager reads, writes, allocates, and frees inode records against a
// mapped image region.
type Manager struct {
	image        []byte
	tableStart   uint32 // block number of the inode table
	bitmap       *layout.Bitmap
	freeCount    *uint32
}

// NewManager builds an inode manager over the inode table starting at
// tableStartBlock, backed by bitmap for allocation and freeCount (a pointer
// into the superblock) to track the free-inode counter.
func NewManager(image []byte, tableStartBlock uint32, bitmap *layout.Bitmap, freeCount *uint32) *Manager {
	return &Manager{image: image, tableStart: tableStartBlock, bitmap: bitmap, freeCount: freeCount}
}

func (m *Manager) offsetOf(index uint32) int64 {
	return layout.BlockOffset(m.tableStart) + int64(index)*layout.InodeSize
}

// Read loads the inode record at index i.
func (m *Manager) Read(i uint32) (*layout.Inode, error) {
	if uint(i) >= m.bitmap.Len() {
		return nil, errno.InvalidArgument("inode number %d out of range", i)
	}
	off := m.offsetOf(i)
	var in layout.Inode
	if err := binary.Read(bytes.NewReader(m.image[off:off+layout.InodeSize]), binary.LittleEndian, &in); err != nil {
		return nil, errno.IO("failed to decode inode %d: %s", i, err)
	}
	return &in, nil
}

// Write stores in back to index i, exactly as a fixed-size record.
func (m *Manager) Write(i uint32, in *layout.Inode) error {
	if uint(i) >= m.bitmap.Len() {
		return errno.InvalidArgument("inode number %d out of range", i)
	}
	in.Number = i

	buf := new(bytes.Buffer)
	buf.Grow(layout.InodeSize)
	if err := binary.Write(buf, binary.LittleEndian, in); err != nil {
		return errno.IO("failed to encode inode %d: %s", i, err)
	}

	off := m.offsetOf(i)
	copy(m.image[off:off+layout.InodeSize], buf.Bytes())
	return nil
}

// IsAllocated reports whether inode i's bitmap bit is set. The path
// resolver uses this to refuse dangling directory entries (a directory
// entry pointing at a bit that isn't set is a consistency failure, reported
// as errno.NotADirectory).
func (m *Manager) IsAllocated(i uint32) bool {
	if uint(i) >= m.bitmap.Len() {
		return false
	}
	return m.bitmap.Test(uint(i))
}

// Alloc scans the inode bitmap for the first cleared bit, sets it,
// decrements the free-inode counter, zeroes the inode slot, and returns the
// new inode's index.
func (m *Manager) Alloc() (uint32, error) {
	idx, ok := m.bitmap.ScanFirstFree()
	if !ok {
		return 0, errno.NoSpace("no free inodes remain")
	}

	m.bitmap.Set(idx)
	*m.freeCount--

	zero := layout.Inode{}
	if err := m.Write(uint32(idx), &zero); err != nil {
		m.bitmap.Clear(idx)
		*m.freeCount++
		return 0, err
	}
	return uint32(idx), nil
}

// Free clears inode i's bitmap bit, increments the free-inode counter, and
// zeroes its slot.
func (m *Manager) Free(i uint32) error {
	if uint(i) >= m.bitmap.Len() {
		return errno.InvalidArgument("inode number %d out of range", i)
	}

	zero := layout.Inode{}
	if err := m.Write(i, &zero); err != nil {
		return err
	}

	m.bitmap.Clear(uint(i))
	*m.freeCount++
	return nil
}

// ReadExtents loads the dense extent array from inode in's extent-table
// block, truncated to in.ExtentCount entries.
func (m *Manager) ReadExtents(in *layout.Inode) ([]layout.Extent, error) {
	off := layout.BlockOffset(in.ExtentTableBlock)
	block := m.image[off : off+layout.BlockSize]

	extents := make([]layout.Extent, in.ExtentCount)
	r := bytes.NewReader(block)
	for i := range extents {
		if err := binary.Read(r, binary.LittleEndian, &extents[i]); err != nil {
			return nil, errno.IO("failed to decode extent %d of inode %d: %s", i, in.Number, err)
		}
	}
	return extents, nil
}

// WriteExtents serializes extents into inode in's extent-table block, and
// updates in.ExtentCount. The remainder of the block beyond the live
// extents is zeroed, matching the data model's "the remainder is zero"
// invariant.
func (m *Manager) WriteExtents(in *layout.Inode, extents []layout.Extent) error {
	if len(extents) > layout.MaxExtents {
		return errno.NoSpace("extent table full (%d > %d)", len(extents), layout.MaxExtents)
	}

	off := layout.BlockOffset(in.ExtentTableBlock)
	block := m.image[off : off+layout.BlockSize]
	for i := range block {
		block[i] = 0
	}

	buf := new(bytes.Buffer)
	for _, e := range extents {
		binary.Write(buf, binary.LittleEndian, e)
	}
	copy(block, buf.Bytes())

	in.ExtentCount = uint32(len(extents))
	return nil
}
