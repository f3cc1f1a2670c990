// Package mkfs initializes an empty extentfs image: it writes the
// superblock, zeroes the bitmaps, pre-marks the metadata blocks as used, and
// installs the root directory inode.
//
// Grounded on the teacher's file_systems/unixv1/format.go, which computes
// bitmap sizes, validates the minimum image size, and writes the
// superblock/bitmaps/root-inode sequence directly into a mapped byte slice
// using encoding/binary — the same shape this formatter follows, adapted to
// extent-table inodes instead of a 512-byte direct-block inode.
package mkfs

import (
	"time"

	"github.com/blockfs/extentfs/errno"
	"github.com/blockfs/extentfs/inodetab"
	"github.com/blockfs/extentfs/layout"
)

// Options configures Format.
type Options struct {
	// InodeCount is the target number of inodes to provision (the `-i N`
	// formatter flag).
	InodeCount uint32
}

// Format lays out a brand-new, empty filesystem onto image, which must
// already be exactly imageSize bytes. It fails if imageSize doesn't leave
// room for the superblock, both bitmaps, the inode table, and the root
// directory's extent-table block.
func Format(image []byte, imageSize int64, opts Options) error {
	if int64(len(image)) != imageSize {
		return errno.InvalidArgument("image buffer is %d bytes, expected %d", len(image), imageSize)
	}
	if opts.InodeCount == 0 {
		return errno.InvalidArgument("inode count must be > 0")
	}

	totalBlocks := uint64(imageSize) / layout.BlockSize
	ibmBlocks, bbmBlocks, itabBlocks := layout.ComputeRegionSizes(uint64(opts.InodeCount), totalBlocks)

	// superblock + bitmaps + inode table + root's extent-table block.
	required := uint64(1) + ibmBlocks + bbmBlocks + itabBlocks + 1
	if totalBlocks < required {
		return errno.InvalidArgument(
			"image too small: need at least %d blocks, have %d", required, totalBlocks)
	}

	for i := range image {
		image[i] = 0
	}

	inodeBitmapStart := uint32(1)
	blockBitmapStart := inodeBitmapStart + uint32(ibmBlocks)
	inodeTableStart := blockBitmapStart + uint32(bbmBlocks)
	dataRegionStart := inodeTableStart + uint32(itabBlocks)
	rootExtentTableBlock := dataRegionStart

	sb := layout.Superblock{
		Magic:             layout.Magic,
		ImageSize:         imageSize,
		InodeBitmapStart:  inodeBitmapStart,
		BlockBitmapStart:  blockBitmapStart,
		InodeTableStart:   inodeTableStart,
		DataRegionStart:   dataRegionStart,
		InodeBitmapBlocks: uint32(ibmBlocks),
		BlockBitmapBlocks: uint32(bbmBlocks),
		InodeTableBlocks:  uint32(itabBlocks),
		InodeCount:        opts.InodeCount,
		BlockCount:        uint32(totalBlocks),
		FreeInodeCount:    opts.InodeCount - 1, // root inode is pre-allocated
		FreeBlockCount:    uint32(totalBlocks) - uint32(required),
	}

	if err := layout.WriteSuperblock(image, &sb); err != nil {
		return err
	}

	// Mark the superblock, both bitmaps, the inode table, inode 0, and the
	// root's extent-table block as used.
	inodeBitmap := layout.FromBytes(
		image[layout.BlockOffset(inodeBitmapStart):layout.BlockOffset(blockBitmapStart)],
		uint(opts.InodeCount),
	)
	inodeBitmap.Set(layout.RootInode)

	blockBitmap := layout.FromBytes(
		image[layout.BlockOffset(blockBitmapStart):layout.BlockOffset(inodeTableStart)],
		uint(totalBlocks),
	)
	for b := uint32(0); b < uint32(required); b++ {
		blockBitmap.Set(uint(b))
	}

	now := time.Now()
	root := layout.Inode{
		Mode:             layout.ModeDir | 0777,
		Links:            2,
		Size:             0,
		MtimeSec:         now.Unix(),
		MtimeNsec:        int32(now.Nanosecond()),
		Number:           layout.RootInode,
		EntryCount:       0,
		ExtentCount:      0,
		ExtentTableBlock: rootExtentTableBlock,
	}

	freeInodeCount := sb.FreeInodeCount
	inodes := inodetab.NewManager(image, inodeTableStart, &inodeBitmap, &freeInodeCount)
	return inodes.Write(layout.RootInode, &root)
}
