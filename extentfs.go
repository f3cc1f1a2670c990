// Package extentfs is the operation façade: the set of entry points an
// external userspace-filesystem shim invokes (see package fuseshim), wired
// together from the lower-level layout, extent, inodetab, dirent, pathwalk,
// and fileio packages.
//
// Grounded on the teacher's drivers/common/basedriver.CommonDriver, which
// plays the same role (normalizing paths, walking to an object, dispatching
// to the concrete per-filesystem operations) for dargueta/disko's
// multi-filesystem abstraction. This module targets exactly one filesystem,
// so FileSystem below inlines what CommonDriver would otherwise delegate to
// a DriverImplementation.
package extentfs

import (
	"os"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/blockfs/extentfs/dirent"
	"github.com/blockfs/extentfs/errno"
	"github.com/blockfs/extentfs/extent"
	"github.com/blockfs/extentfs/fileio"
	"github.com/blockfs/extentfs/inodetab"
	"github.com/blockfs/extentfs/layout"
	"github.com/blockfs/extentfs/pathwalk"
)

// Stat mirrors the host's struct stat, filled in the same minimal way the
// teacher's disko.FileStat is.
type Stat struct {
	InodeNumber uint64
	Mode        os.FileMode
	Links       uint32
	Size        uint64
	Blocks      uint64
	Mtime       time.Time
}

// StatFS mirrors the host's struct statfs.
type StatFS struct {
	BlockSize     uint32
	TotalBlocks   uint64
	FreeBlocks    uint64
	TotalInodes   uint64
	FreeInodes    uint64
	MaxNameLength uint32
}

// Dirent is a single entry returned by ReadDir.
type Dirent struct {
	Name  string
	Inode uint32
	IsDir bool
}

// FileSystem is a mounted extentfs image: the whole operation façade,
// behind one coarse mutex. Every invariant in the data model is formulated
// "between operations, not during one" (per the concurrency model), so a
// single mutex held for the duration of each method call is sufficient even
// under a multi-threaded FUSE callback loop.
type FileSystem struct {
	mu sync.Mutex

	image []byte
	sb    *layout.Superblock

	inodeBitmap layout.Bitmap
	blockBitmap layout.Bitmap

	inodes    *inodetab.Manager
	allocator *extent.Allocator
	dirs      *dirent.Engine
	files     *fileio.Engine
	resolver  *pathwalk.Resolver

	log *logrus.Logger
}

// New mounts an already-formatted image held in memory. No allocation
// happens at mount time; only the superblock's pointers are re-derived.
func New(image []byte) (*FileSystem, error) {
	sb, err := layout.ReadSuperblock(image)
	if err != nil {
		return nil, err
	}

	fs := &FileSystem{
		image: image,
		sb:    sb,
		log:   logrus.StandardLogger(),
	}

	fs.inodeBitmap = layout.FromBytes(
		image[layout.BlockOffset(sb.InodeBitmapStart):layout.BlockOffset(sb.BlockBitmapStart)],
		uint(sb.InodeCount),
	)
	fs.blockBitmap = layout.FromBytes(
		image[layout.BlockOffset(sb.BlockBitmapStart):layout.BlockOffset(sb.InodeTableStart)],
		uint(sb.BlockCount),
	)

	fs.inodes = inodetab.NewManager(image, sb.InodeTableStart, &fs.inodeBitmap, &sb.FreeInodeCount)
	fs.allocator = extent.NewAllocator(&fs.blockBitmap, &sb.FreeBlockCount)
	fs.dirs = dirent.NewEngine(image, fs.inodes, fs.allocator)
	fs.files = fileio.NewEngine(image, fs.inodes, fs.allocator)
	fs.resolver = pathwalk.NewResolver(fs.inodes, fs.dirs)

	return fs, nil
}

// SetLogger overrides the default standard logger, e.g. to redirect output
// or change verbosity from a CLI flag.
func (fs *FileSystem) SetLogger(log *logrus.Logger) {
	fs.log = log
}

// syncSuperblock re-encodes fs.sb back into block 0 of the image. The
// allocator and inode manager hold pointers into fs.sb's free-count fields
// (see New), so those counters are always current in memory; this is what
// carries that back into the mapped bytes so the on-disk superblock never
// lags the bitmaps it describes. Every mutating operation below defers it
// while still holding fs.mu.
func (fs *FileSystem) syncSuperblock() {
	if err := layout.WriteSuperblock(fs.image, fs.sb); err != nil {
		fs.log.WithError(err).Error("failed to sync superblock")
	}
}

func statFromInode(in *layout.Inode) Stat {
	mode := os.FileMode(in.Mode & layout.ModePermMask)
	if in.IsDir() {
		mode |= os.ModeDir
	}
	return Stat{
		InodeNumber: uint64(in.Number),
		Mode:        mode,
		Links:       in.Links,
		Size:        in.Size,
		Blocks:      (in.Size + 511) / 512,
		Mtime:       time.Unix(in.MtimeSec, int64(in.MtimeNsec)),
	}
}

// StatFS reports block size, total/free blocks, total/free inodes, and the
// maximum name length.
func (fs *FileSystem) StatFS() StatFS {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	return StatFS{
		BlockSize:     layout.BlockSize,
		TotalBlocks:   uint64(fs.sb.BlockCount),
		FreeBlocks:    uint64(fs.sb.FreeBlockCount),
		TotalInodes:   uint64(fs.sb.InodeCount),
		FreeInodes:    uint64(fs.sb.FreeInodeCount),
		MaxNameLength: layout.NameMax,
	}
}

// GetAttr fills mode, links, size, blocks, and mtime for path.
func (fs *FileSystem) GetAttr(path string) (Stat, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	idx, err := fs.resolver.Resolve(path)
	if err != nil {
		return Stat{}, err
	}
	in, err := fs.inodes.Read(idx)
	if err != nil {
		return Stat{}, err
	}
	return statFromInode(in), nil
}

// ReadDir lists path's directory entries. "." and ".." are synthesized by
// the caller (e.g. the FUSE shim), not returned here.
func (fs *FileSystem) ReadDir(path string) ([]Dirent, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	idx, err := fs.resolver.Resolve(path)
	if err != nil {
		return nil, err
	}
	in, err := fs.inodes.Read(idx)
	if err != nil {
		return nil, err
	}
	if !in.IsDir() {
		return nil, errno.NotADirectory("%q is not a directory", path)
	}

	entries, err := fs.dirs.Enumerate(in)
	if err != nil {
		return nil, err
	}

	out := make([]Dirent, 0, len(entries))
	for _, e := range entries {
		child, err := fs.inodes.Read(e.InodeNumber)
		if err != nil {
			return nil, err
		}
		out = append(out, Dirent{Name: e.Name, Inode: e.InodeNumber, IsDir: child.IsDir()})
	}
	return out, nil
}

func (fs *FileSystem) resolveExisting(path string) (idx uint32, in *layout.Inode, err error) {
	idx, err = fs.resolver.Resolve(path)
	if err != nil {
		return 0, nil, err
	}
	in, err = fs.inodes.Read(idx)
	return idx, in, err
}

// createObject is the shared core of Mkdir and Create: it resolves the
// parent, checks the name doesn't already exist, allocates a new inode, and
// links it into the parent directory.
func (fs *FileSystem) createObject(path string, mode os.FileMode, isDir bool) error {
	parentIdx, baseName, err := fs.resolver.ResolveParent(path)
	if err != nil {
		return err
	}
	parent, err := fs.inodes.Read(parentIdx)
	if err != nil {
		return err
	}
	if !parent.IsDir() {
		return errno.NotADirectory("%q is not a directory", path)
	}
	if _, err := fs.dirs.Find(parent, baseName); err == nil {
		return errno.Exists("%q already exists", path)
	}

	// mkdir is refused up front unless two blocks are free (the child's own
	// extent-table block, and the data block the Insert call below may need
	// in the parent); create checks only for the child's extent-table
	// block. If Insert then runs out of space, the child's inode and
	// extent-table block are released again below.
	needed := uint(1)
	if isDir {
		needed = 2
	}
	if uint(fs.blockBitmap.CountFree()) < needed {
		return errno.NoSpace("fewer than %d free blocks remain", needed)
	}

	childIdx, err := fs.inodes.Alloc()
	if err != nil {
		return err
	}

	extentTableBlock, err := fs.allocator.AllocateExact(1)
	if err != nil {
		fs.inodes.Free(childIdx)
		return err
	}
	zeroBlock(fs.image, extentTableBlock.StartBlock)

	now := time.Now()
	child := layout.Inode{
		Mode:             uint32(mode.Perm()),
		MtimeSec:         now.Unix(),
		MtimeNsec:        int32(now.Nanosecond()),
		Number:           childIdx,
		ExtentTableBlock: extentTableBlock.StartBlock,
	}
	if isDir {
		child.Mode |= layout.ModeDir
		child.Links = 2
	} else {
		child.Mode |= layout.ModeReg
		child.Links = 1
	}

	if err := fs.inodes.Write(childIdx, &child); err != nil {
		fs.allocator.Free(extentTableBlock)
		fs.inodes.Free(childIdx)
		return err
	}

	if err := fs.dirs.Insert(parent, baseName, childIdx); err != nil {
		fs.allocator.Free(extentTableBlock)
		fs.inodes.Free(childIdx)
		return err
	}

	if isDir {
		parent.Links++
	}
	if err := fs.inodes.Write(parentIdx, parent); err != nil {
		return err
	}

	fs.log.WithField("path", path).Debug("created object")
	return nil
}

func zeroBlock(image []byte, block uint32) {
	off := layout.BlockOffset(block)
	b := image[off : off+layout.BlockSize]
	for i := range b {
		b[i] = 0
	}
}

// Mkdir creates a new, empty directory at path.
func (fs *FileSystem) Mkdir(path string, mode os.FileMode) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	defer fs.syncSuperblock()
	return fs.createObject(path, mode, true)
}

// Create creates a new, empty regular file at path.
func (fs *FileSystem) Create(path string, mode os.FileMode) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	defer fs.syncSuperblock()
	return fs.createObject(path, mode, false)
}

// Rmdir removes an empty directory. It fails with errno.NotEmpty if path
// has any live child.
func (fs *FileSystem) Rmdir(path string) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	defer fs.syncSuperblock()

	idx, in, err := fs.resolveExisting(path)
	if err != nil {
		return err
	}
	if !in.IsDir() {
		return errno.NotADirectory("%q is not a directory", path)
	}
	if in.EntryCount != 0 {
		return errno.NotEmpty("%q is not empty", path)
	}

	parentIdx, baseName, err := fs.resolver.ResolveParent(path)
	if err != nil {
		return err
	}
	parent, err := fs.inodes.Read(parentIdx)
	if err != nil {
		return err
	}

	if err := fs.dirs.Delete(parent, baseName); err != nil {
		return err
	}
	parent.Links--
	if err := fs.inodes.Write(parentIdx, parent); err != nil {
		return err
	}

	return fs.freeObject(idx, in)
}

// Unlink removes a regular file.
func (fs *FileSystem) Unlink(path string) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	defer fs.syncSuperblock()

	idx, in, err := fs.resolveExisting(path)
	if err != nil {
		return err
	}
	if in.IsDir() {
		return errno.IsADirectory("%q is a directory", path)
	}

	parentIdx, baseName, err := fs.resolver.ResolveParent(path)
	if err != nil {
		return err
	}
	parent, err := fs.inodes.Read(parentIdx)
	if err != nil {
		return err
	}
	if err := fs.dirs.Delete(parent, baseName); err != nil {
		return err
	}
	if err := fs.inodes.Write(parentIdx, parent); err != nil {
		return err
	}

	return fs.freeObject(idx, in)
}

// freeObject releases in's data extents, its extent-table block, and
// finally its inode number.
func (fs *FileSystem) freeObject(idx uint32, in *layout.Inode) error {
	extents, err := fs.inodes.ReadExtents(in)
	if err != nil {
		return err
	}
	for _, ext := range extents {
		fs.allocator.Free(ext)
	}
	fs.allocator.Free(layout.Extent{StartBlock: in.ExtentTableBlock, BlockCount: 1})
	return fs.inodes.Free(idx)
}

// Utimens sets path's modification time.
func (fs *FileSystem) Utimens(path string, mtime time.Time) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	defer fs.syncSuperblock()

	idx, in, err := fs.resolveExisting(path)
	if err != nil {
		return err
	}
	in.MtimeSec = mtime.Unix()
	in.MtimeNsec = int32(mtime.Nanosecond())
	return fs.inodes.Write(idx, in)
}

// Truncate changes a regular file's size.
func (fs *FileSystem) Truncate(path string, size uint64) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	defer fs.syncSuperblock()

	idx, in, err := fs.resolveExisting(path)
	if err != nil {
		return err
	}
	if !in.IsFile() {
		return errno.IsADirectory("%q is not a regular file", path)
	}
	if err := fs.files.Truncate(in, size); err != nil {
		return err
	}
	return fs.inodes.Write(idx, in)
}

// Read copies up to len(buf) bytes from path at offset.
func (fs *FileSystem) Read(path string, buf []byte, offset uint64) (int, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	_, in, err := fs.resolveExisting(path)
	if err != nil {
		return 0, err
	}
	if !in.IsFile() {
		return 0, errno.IsADirectory("%q is not a regular file", path)
	}
	return fs.files.Read(in, buf, offset)
}

// Write copies buf into path at offset, growing the file if necessary.
func (fs *FileSystem) Write(path string, buf []byte, offset uint64) (int, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	defer fs.syncSuperblock()

	idx, in, err := fs.resolveExisting(path)
	if err != nil {
		return 0, err
	}
	if !in.IsFile() {
		return 0, errno.IsADirectory("%q is not a regular file", path)
	}

	n, err := fs.files.Write(in, buf, offset)
	if err != nil {
		return n, err
	}
	if writeErr := fs.inodes.Write(idx, in); writeErr != nil {
		return n, writeErr
	}
	return n, nil
}
