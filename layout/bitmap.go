package layout

import (
	"github.com/boljen/go-bitmap"
)

// Bitmap is a packed bit array over a region of the mapped image, addressed
// in little-endian order within bytes (bit 0 is the LSB of byte 0), matching
// the teacher's use of github.com/boljen/go-bitmap in
// drivers/common/allocatormap.go and drivers/common/blockmanager.go.
//
// Those two teacher files are near-identical copies of the same run-scanning
// allocator; this type is the single, deduplicated implementation both of
// them collapse into.
type Bitmap struct {
	bits  bitmap.Bitmap
	count uint
}

// NewBitmap creates a zeroed bitmap with room for count bits.
func NewBitmap(count uint) Bitmap {
	return Bitmap{bits: bitmap.New(int(count)), count: count}
}

// FromBytes wraps an existing packed byte region (e.g. a slice into the
// mapped image) as a Bitmap without copying.
func FromBytes(data []byte, count uint) Bitmap {
	return Bitmap{bits: bitmap.Bitmap(data), count: count}
}

// Bytes returns the underlying packed byte representation.
func (b *Bitmap) Bytes() []byte {
	return []byte(b.bits)
}

// Test reports whether bit i is set.
func (b *Bitmap) Test(i uint) bool {
	return b.bits.Get(int(i))
}

// Set marks bit i as used.
func (b *Bitmap) Set(i uint) {
	b.bits.Set(int(i), true)
}

// Clear marks bit i as free.
func (b *Bitmap) Clear(i uint) {
	b.bits.Set(int(i), false)
}

// ScanFirstFree returns the index of the first cleared bit, and false if
// every bit is set.
func (b *Bitmap) ScanFirstFree() (uint, bool) {
	for i := uint(0); i < b.count; i++ {
		if !b.bits.Get(int(i)) {
			return i, true
		}
	}
	return 0, false
}

// ScanRun returns the starting index of the first run of length cleared
// bits found scanning from the beginning, and false if no such run exists.
func (b *Bitmap) ScanRun(length uint) (uint, bool) {
	if length == 0 {
		return 0, false
	}

	runSize := uint(0)
	runStart := uint(0)
	for i := uint(0); i < b.count; i++ {
		if b.bits.Get(int(i)) {
			runSize = 0
			continue
		}
		if runSize == 0 {
			runStart = i
		}
		runSize++
		if runSize == length {
			return runStart, true
		}
	}
	return 0, false
}

// ScanRunFrom behaves like ScanRun but only considers runs that start at or
// after minStart. It's used to find a run anchored immediately after the
// highest currently used block.
func (b *Bitmap) ScanRunFrom(minStart, length uint) (uint, bool) {
	if length == 0 || minStart+length > b.count {
		return 0, false
	}
	for i := minStart; i < minStart+length; i++ {
		if b.bits.Get(int(i)) {
			return 0, false
		}
	}
	return minStart, true
}

// ScanLongestRun returns the starting index and length of the longest run
// of consecutive cleared bits. ok is false only when every bit is set.
func (b *Bitmap) ScanLongestRun() (start uint, length uint, ok bool) {
	bestStart, bestLen := uint(0), uint(0)
	curStart, curLen := uint(0), uint(0)

	for i := uint(0); i < b.count; i++ {
		if b.bits.Get(int(i)) {
			curLen = 0
			continue
		}
		if curLen == 0 {
			curStart = i
		}
		curLen++
		if curLen > bestLen {
			bestStart, bestLen = curStart, curLen
		}
	}

	return bestStart, bestLen, bestLen > 0
}

// CountFree returns the number of cleared bits. It's a linear scan, used
// only by consistency checks (see package fsck); hot paths track free
// counts in the superblock incrementally instead.
func (b *Bitmap) CountFree() uint {
	free := uint(0)
	for i := uint(0); i < b.count; i++ {
		if !b.bits.Get(int(i)) {
			free++
		}
	}
	return free
}

// Len returns the number of addressable bits in the bitmap.
func (b *Bitmap) Len() uint {
	return b.count
}
