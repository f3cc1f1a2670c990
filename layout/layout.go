// Package layout computes the on-disk geometry of an extentfs image and
// defines its fixed-size records: the superblock, the inode record, the
// extent record, and the directory-entry record.
//
// All multi-byte integers are little-endian, matching the native alignment
// of the compiled-in inode size; the format is not portable across hosts
// with different endianness (this mirrors the teacher's raw-struct approach
// in file_systems/unixv1/inode.go and file_systems/unixv6/dirents.go).
package layout

import (
	"bytes"
	"encoding/binary"

	"github.com/blockfs/extentfs/errno"
)

// BlockSize is the fixed size of a block, in bytes. It's compiled in and
// must match between the formatter and the driver.
const BlockSize = 4096

// MaxExtents is the maximum number of extents a single inode may own.
const MaxExtents = 512

// NameMax is the longest permissible name for a single path component.
const NameMax = 60

// PathMax is the longest permissible absolute path, including the NUL
// terminator budget.
const PathMax = 4096

// Magic identifies an extentfs image.
const Magic uint64 = 0x74787446534e4558 // "XENSFtxt" backwards, arbitrary but stable

// RootInode is the inode number of the root directory. It is always in use.
const RootInode = 0

// Superblock is the fixed-size record stored at block 0 of the image.
type Superblock struct {
	Magic uint64

	ImageSize int64

	InodeBitmapStart uint32
	BlockBitmapStart uint32
	InodeTableStart  uint32
	DataRegionStart  uint32

	InodeBitmapBlocks uint32
	BlockBitmapBlocks uint32
	InodeTableBlocks  uint32

	InodeCount uint32
	BlockCount uint32

	FreeInodeCount uint32
	FreeBlockCount uint32

	// Padding keeps the record a round number of bytes and leaves room for
	// future fields without shifting everything else on disk.
	_ [shortPad]byte
}

// shortPad pads Superblock out to a tidy 96 bytes; it is not meaningful data.
const shortPad = 96 - (8 + 8 + 4*4 + 4*3 + 4*2 + 4*2)

// SuperblockSize is the serialized size of Superblock, in bytes.
const SuperblockSize = 96

// Inode is the fixed-size metadata record stored at index i in the inode
// table.
type Inode struct {
	Mode  uint32 // directory or regular file; permission bits preserved verbatim
	Links uint32
	Size  uint64

	MtimeSec  int64
	MtimeNsec int32

	Number uint32 // redundant with table position; used for write-back

	EntryCount  uint32 // directories only
	ExtentCount uint32 // 0..MaxExtents

	ExtentTableBlock uint32

	_ [inodePad]byte
}

const inodePad = 128 - (4 + 4 + 8 + 8 + 4 + 4 + 4 + 4 + 4)

// InodeSize is the serialized, on-disk size of an Inode record.
const InodeSize = 128

// Mode bits. Only the kind bits and the permission bits are meaningful;
// everything else is preserved verbatim per the data model's invariants.
const (
	ModeDir uint32 = 1 << 31
	ModeReg uint32 = 1 << 30
	ModePermMask uint32 = 0777
)

func (in *Inode) IsDir() bool  { return in.Mode&ModeDir != 0 }
func (in *Inode) IsFile() bool { return in.Mode&ModeReg != 0 }
func (in *Inode) IsFree() bool { return in.Mode&(ModeDir|ModeReg) == 0 }

// Extent is a contiguous run of data blocks owned by one inode.
type Extent struct {
	StartBlock uint32
	BlockCount uint32
}

// ExtentSize is the serialized size of an Extent record.
const ExtentSize = 8

// ExtentsPerBlock is how many Extent records fit in one block.
const ExtentsPerBlock = BlockSize / ExtentSize

// Dirent is the fixed-size directory-entry record stored inside a
// directory's data blocks. An entry with InodeNumber == 0 and an empty Name
// is a free slot.
type Dirent struct {
	InodeNumber uint32
	Name        [DirentNameCapacity]byte
}

// DirentSize is chosen to be a power of two (256 bytes) so an integral
// number fit in one block, per the data model's requirement.
const DirentSize = 256
const DirentNameCapacity = DirentSize - 4

// DirentsPerBlock is how many Dirent records fit in one block.
const DirentsPerBlock = BlockSize / DirentSize

// SetName copies a UTF-8 name into the fixed-size, NUL-padded Name field. It
// fails with errno.NameTooLong if name is longer than NameMax or doesn't fit
// the on-disk capacity.
func (d *Dirent) SetName(name string) error {
	if len(name) > NameMax || len(name) >= DirentNameCapacity {
		return errno.NameTooLong("component %q exceeds NAME_MAX", name)
	}
	var buf [DirentNameCapacity]byte
	copy(buf[:], name)
	d.Name = buf
	return nil
}

// GetName returns the entry's name with trailing NUL padding stripped.
func (d *Dirent) GetName() string {
	n := bytes.IndexByte(d.Name[:], 0)
	if n < 0 {
		n = len(d.Name)
	}
	return string(d.Name[:n])
}

// IsFree reports whether this slot holds no live entry.
func (d *Dirent) IsFree() bool {
	return d.InodeNumber == 0
}

// Geometry holds the derived block offsets and counts computed from a
// Superblock at mount time. No allocation happens while deriving it.
type Geometry struct {
	InodeBitmapStart uint32
	BlockBitmapStart uint32
	InodeTableStart  uint32
	DataRegionStart  uint32

	InodeBitmapBlocks uint32
	BlockBitmapBlocks uint32
	InodeTableBlocks  uint32

	InodeCount uint32
	BlockCount uint32
}

// DeriveGeometry recomputes the pointers into the bitmaps, inode table, and
// data region from a loaded superblock.
func DeriveGeometry(sb *Superblock) Geometry {
	return Geometry{
		InodeBitmapStart:  sb.InodeBitmapStart,
		BlockBitmapStart:  sb.BlockBitmapStart,
		InodeTableStart:   sb.InodeTableStart,
		DataRegionStart:   sb.DataRegionStart,
		InodeBitmapBlocks: sb.InodeBitmapBlocks,
		BlockBitmapBlocks: sb.BlockBitmapBlocks,
		InodeTableBlocks:  sb.InodeTableBlocks,
		InodeCount:        sb.InodeCount,
		BlockCount:        sb.BlockCount,
	}
}

// ceilDiv returns ceil(a / b) for positive integers.
func ceilDiv(a, b uint64) uint64 {
	return (a + b - 1) / b
}

// ComputeRegionSizes returns the block counts required for the inode bitmap,
// block bitmap, and inode table, given a target inode count and total block
// count, following the formatter's sizing rule:
//
//	IBM  = ceil(I / (BLOCK*8))
//	BBM  = ceil(BLOCKS / (BLOCK*8))
//	ITAB = ceil(I * sizeof(inode) / BLOCK)
func ComputeRegionSizes(inodeCount, totalBlocks uint64) (ibm, bbm, itab uint64) {
	bitsPerBlock := uint64(BlockSize * 8)
	ibm = ceilDiv(inodeCount, bitsPerBlock)
	bbm = ceilDiv(totalBlocks, bitsPerBlock)
	itab = ceilDiv(inodeCount*InodeSize, BlockSize)
	return
}

// ReadSuperblock decodes the superblock from block 0 of the image.
func ReadSuperblock(image []byte) (*Superblock, error) {
	if len(image) < SuperblockSize {
		return nil, errno.InvalidArgument("image too small to contain a superblock")
	}
	var sb Superblock
	if err := binary.Read(bytes.NewReader(image[:SuperblockSize]), binary.LittleEndian, &sb); err != nil {
		return nil, errno.IO("failed to decode superblock: %s", err)
	}
	if sb.Magic != Magic {
		return nil, errno.InvalidArgument("bad magic number %#x", sb.Magic)
	}
	return &sb, nil
}

// WriteSuperblock encodes sb into block 0 of the image.
func WriteSuperblock(image []byte, sb *Superblock) error {
	if len(image) < SuperblockSize {
		return errno.InvalidArgument("image too small to contain a superblock")
	}
	buf := new(bytes.Buffer)
	buf.Grow(SuperblockSize)
	if err := binary.Write(buf, binary.LittleEndian, sb); err != nil {
		return errno.IO("failed to encode superblock: %s", err)
	}
	copy(image[:SuperblockSize], buf.Bytes())
	return nil
}

// BlockOffset returns the byte offset of the given block number.
func BlockOffset(block uint32) int64 {
	return int64(block) * BlockSize
}

// CheckComponentName validates a single path component against NAME_MAX.
func CheckComponentName(name string) error {
	if len(name) == 0 || len(name) > NameMax {
		return errno.NameTooLong("component %q exceeds NAME_MAX (%d)", name, NameMax)
	}
	return nil
}

// CheckPath validates an absolute path against PATH_MAX.
func CheckPath(path string) error {
	if len(path) >= PathMax {
		return errno.NameTooLong("path length %d exceeds PATH_MAX (%d)", len(path), PathMax)
	}
	if len(path) == 0 || path[0] != '/' {
		return errno.NotADirectory("path %q is not absolute", path)
	}
	return nil
}
