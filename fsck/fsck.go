// Package fsck walks a mounted image read-only and reports structural
// invariant violations without attempting to fix them, matching the
// filesystem design's choice to leave crash/corruption repair out of scope:
// a consistency checker observes and reports, a repair tool is a distinct,
// unbuilt concern.
//
// Grounded on the teacher's disks package for the shape of a standalone
// diagnostic entry point, and on github.com/hashicorp/go-multierror (carried
// from the teacher's go.mod) to accumulate every violation found in one pass
// instead of stopping at the first.
package fsck

import (
	"fmt"
	"io"

	"github.com/gocarina/gocsv"
	"github.com/hashicorp/go-multierror"

	"github.com/blockfs/extentfs/dirent"
	"github.com/blockfs/extentfs/inodetab"
	"github.com/blockfs/extentfs/layout"
)

// WriteCSV renders a report's violations as CSV, one row per violation, for
// `fsck -csv out.csv <image>`-style invocations.
func WriteCSV(w io.Writer, violations []Violation) error {
	return gocsv.Marshal(violations, w)
}

// Violation is a single invariant failure, in a shape gocsv can marshal
// directly to a report file.
type Violation struct {
	Invariant string `csv:"invariant"`
	Detail    string `csv:"detail"`
}

func (v Violation) String() string {
	return fmt.Sprintf("%s: %s", v.Invariant, v.Detail)
}

// Report is the outcome of a single Check run.
type Report struct {
	Violations []Violation
	// Err aggregates every violation as a single *multierror.Error, or nil
	// if none were found.
	Err error
}

// OK reports whether the checked image had no violations.
func (r Report) OK() bool {
	return len(r.Violations) == 0
}

// Check walks image's entire reachable tree from the root inode and
// verifies:
//
//  1. superblock free counts match the bitmaps' cleared-bit counts.
//  2. the block bitmap's used set equals the union of every metadata region
//     and every live inode's extent-table block and data extents.
//  3. every directory's entry_count and size match its live entries.
func Check(image []byte) (Report, error) {
	sb, err := layout.ReadSuperblock(image)
	if err != nil {
		return Report{}, err
	}

	inodeBitmap := layout.FromBytes(
		image[layout.BlockOffset(sb.InodeBitmapStart):layout.BlockOffset(sb.BlockBitmapStart)],
		uint(sb.InodeCount),
	)
	blockBitmap := layout.FromBytes(
		image[layout.BlockOffset(sb.BlockBitmapStart):layout.BlockOffset(sb.InodeTableStart)],
		uint(sb.BlockCount),
	)

	inodes := inodetab.NewManager(image, sb.InodeTableStart, &inodeBitmap, &sb.FreeInodeCount)
	dirs := dirent.NewEngine(image, inodes, nil)

	var result *multierror.Error
	var violations []Violation

	report := func(invariant, format string, args ...any) {
		v := Violation{Invariant: invariant, Detail: fmt.Sprintf(format, args...)}
		violations = append(violations, v)
		result = multierror.Append(result, fmt.Errorf("%s", v.String()))
	}

	expectedUsed := make([]bool, sb.BlockCount)
	markRegion := func(start, count uint32) {
		for b := start; b < start+count; b++ {
			if uint32(len(expectedUsed)) > b {
				expectedUsed[b] = true
			}
		}
	}
	markRegion(0, 1) // superblock
	markRegion(sb.InodeBitmapStart, sb.InodeBitmapBlocks)
	markRegion(sb.BlockBitmapStart, sb.BlockBitmapBlocks)
	markRegion(sb.InodeTableStart, sb.InodeTableBlocks)

	var walk func(inodeNum uint32) error
	visited := make(map[uint32]bool)

	walk = func(inodeNum uint32) error {
		if visited[inodeNum] {
			return nil
		}
		visited[inodeNum] = true

		in, err := inodes.Read(inodeNum)
		if err != nil {
			return err
		}

		markRegion(in.ExtentTableBlock, 1)

		extents, err := inodes.ReadExtents(in)
		if err != nil {
			return err
		}
		for _, ext := range extents {
			markRegion(ext.StartBlock, ext.BlockCount)
		}

		if !in.IsDir() {
			return nil
		}

		entries, err := dirs.Enumerate(in)
		if err != nil {
			return err
		}

		if uint32(len(entries)) != in.EntryCount {
			report("entry_count",
				"inode %d: entry_count=%d but found %d live entries", inodeNum, in.EntryCount, len(entries))
		}
		expectedSize := uint64(in.EntryCount) * layout.DirentSize
		if in.Size != expectedSize {
			report("directory_size",
				"inode %d: size=%d, expected entry_count*dirent_size=%d", inodeNum, in.Size, expectedSize)
		}

		for _, e := range entries {
			if !inodes.IsAllocated(e.InodeNumber) {
				report("dangling_entry",
					"inode %d: entry %q points at unallocated inode %d", inodeNum, e.Name, e.InodeNumber)
				continue
			}
			if err := walk(e.InodeNumber); err != nil {
				return err
			}
		}
		return nil
	}

	if err := walk(layout.RootInode); err != nil {
		return Report{}, err
	}

	for b := uint32(0); b < sb.BlockCount; b++ {
		actual := blockBitmap.Test(uint(b))
		if actual != expectedUsed[b] {
			report("block_bitmap", "block %d: bitmap says used=%v, reachability says used=%v", b, actual, expectedUsed[b])
		}
	}

	if inodeBitmap.CountFree() != uint(sb.FreeInodeCount) {
		report("free_inode_count",
			"superblock free_inode_count=%d, bitmap has %d cleared bits", sb.FreeInodeCount, inodeBitmap.CountFree())
	}
	if blockBitmap.CountFree() != uint(sb.FreeBlockCount) {
		report("free_block_count",
			"superblock free_block_count=%d, bitmap has %d cleared bits", sb.FreeBlockCount, blockBitmap.CountFree())
	}

	if result != nil {
		result.ErrorFormat = func(errs []error) string {
			return fmt.Sprintf("%d invariant violation(s) found", len(errs))
		}
	}

	return Report{Violations: violations, Err: result.ErrorOrNil()}, nil
}
