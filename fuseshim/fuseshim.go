// Package fuseshim adapts a mounted extentfs.FileSystem to
// github.com/hanwen/go-fuse/v2's path-based FUSE binding, so the engine
// packages can be driven by an actual kernel mount.
//
// The host callback surface is explicitly out of scope for this module's
// correctness (per the filesystem design, the operation façade is meant to
// be invoked by an external FUSE-like host, not to implement one), so this
// shim is a thin, mostly mechanical translation layer: every method below
// forwards to the matching extentfs.FileSystem operation and converts its
// *errno.Error back to a fuse.Status.
package fuseshim

import (
	"os"
	"time"

	"github.com/hanwen/go-fuse/v2/fuse"
	"github.com/hanwen/go-fuse/v2/fuse/nodefs"
	"github.com/hanwen/go-fuse/v2/fuse/pathfs"

	"github.com/blockfs/extentfs"
	"github.com/blockfs/extentfs/errno"
)

// FileSystem wraps an extentfs.FileSystem as a pathfs.FileSystem.
type FileSystem struct {
	pathfs.FileSystem
	fs *extentfs.FileSystem
}

// New builds the FUSE-facing adapter around an already-mounted filesystem.
func New(fs *extentfs.FileSystem) pathfs.FileSystem {
	return &FileSystem{FileSystem: pathfs.NewDefaultFileSystem(), fs: fs}
}

// toAbs turns a go-fuse relative path (no leading slash, "" for the mount
// root) into the absolute path extentfs.FileSystem expects.
func toAbs(name string) string {
	return "/" + name
}

func toStatus(err error) fuse.Status {
	if err == nil {
		return fuse.OK
	}
	code, ok := errno.Errno(err)
	if !ok {
		return fuse.EIO
	}
	return fuse.Status(code)
}

func toAttr(stat extentfs.Stat) *fuse.Attr {
	return &fuse.Attr{
		Mode:  uint32(stat.Mode.Perm()) | modeBits(stat),
		Nlink: stat.Links,
		Size:  stat.Size,
		Mtime: uint64(stat.Mtime.Unix()),
		Atime: uint64(stat.Mtime.Unix()),
		Ctime: uint64(stat.Mtime.Unix()),
	}
}

func modeBits(stat extentfs.Stat) uint32 {
	if stat.Mode.IsDir() {
		return fuse.S_IFDIR
	}
	return fuse.S_IFREG
}

// GetAttr reports path's metadata.
func (f *FileSystem) GetAttr(name string, _ *fuse.Context) (*fuse.Attr, fuse.Status) {
	stat, err := f.fs.GetAttr(toAbs(name))
	if err != nil {
		return nil, toStatus(err)
	}
	return toAttr(stat), fuse.OK
}

// OpenDir lists a directory's entries.
func (f *FileSystem) OpenDir(name string, _ *fuse.Context) ([]fuse.DirEntry, fuse.Status) {
	entries, err := f.fs.ReadDir(toAbs(name))
	if err != nil {
		return nil, toStatus(err)
	}

	out := make([]fuse.DirEntry, 0, len(entries))
	for _, e := range entries {
		mode := uint32(fuse.S_IFREG)
		if e.IsDir {
			mode = fuse.S_IFDIR
		}
		out = append(out, fuse.DirEntry{Name: e.Name, Mode: mode})
	}
	return out, fuse.OK
}

// Mkdir creates a directory.
func (f *FileSystem) Mkdir(name string, mode uint32, _ *fuse.Context) fuse.Status {
	return toStatus(f.fs.Mkdir(toAbs(name), permFileMode(mode)))
}

// Rmdir removes an empty directory.
func (f *FileSystem) Rmdir(name string, _ *fuse.Context) fuse.Status {
	return toStatus(f.fs.Rmdir(toAbs(name)))
}

// Unlink removes a regular file.
func (f *FileSystem) Unlink(name string, _ *fuse.Context) fuse.Status {
	return toStatus(f.fs.Unlink(toAbs(name)))
}

// Create makes a new regular file and opens it.
func (f *FileSystem) Create(name string, _ uint32, mode uint32, _ *fuse.Context) (nodefs.File, fuse.Status) {
	if err := f.fs.Create(toAbs(name), permFileMode(mode)); err != nil {
		return nil, toStatus(err)
	}
	return &file{File: nodefs.NewDefaultFile(), fs: f.fs, path: toAbs(name)}, fuse.OK
}

// Open opens an existing regular file for read/write.
func (f *FileSystem) Open(name string, _ uint32, _ *fuse.Context) (nodefs.File, fuse.Status) {
	if _, err := f.fs.GetAttr(toAbs(name)); err != nil {
		return nil, toStatus(err)
	}
	return &file{File: nodefs.NewDefaultFile(), fs: f.fs, path: toAbs(name)}, fuse.OK
}

// Truncate changes a file's size.
func (f *FileSystem) Truncate(name string, size uint64, _ *fuse.Context) fuse.Status {
	return toStatus(f.fs.Truncate(toAbs(name), size))
}

// Utimens sets a path's modification time.
func (f *FileSystem) Utimens(name string, _ *time.Time, mtime *time.Time, _ *fuse.Context) fuse.Status {
	if mtime == nil {
		now := time.Now()
		mtime = &now
	}
	return toStatus(f.fs.Utimens(toAbs(name), *mtime))
}

// StatFs reports filesystem-wide capacity statistics.
func (f *FileSystem) StatFs(name string) *fuse.StatfsOut {
	stat := f.fs.StatFS()
	return &fuse.StatfsOut{
		Blocks:  stat.TotalBlocks,
		Bfree:   stat.FreeBlocks,
		Bavail:  stat.FreeBlocks,
		Files:   stat.TotalInodes,
		Ffree:   stat.FreeInodes,
		Bsize:   stat.BlockSize,
		NameLen: stat.MaxNameLength,
	}
}

func permFileMode(mode uint32) os.FileMode {
	return os.FileMode(mode & 0777)
}

// file is the nodefs.File handle returned by Open/Create.
type file struct {
	nodefs.File
	fs   *extentfs.FileSystem
	path string
}

func (h *file) Read(dest []byte, off int64) (fuse.ReadResult, fuse.Status) {
	n, err := h.fs.Read(h.path, dest, uint64(off))
	if err != nil {
		return nil, toStatus(err)
	}
	return fuse.ReadResultData(dest[:n]), fuse.OK
}

func (h *file) Write(data []byte, off int64) (uint32, fuse.Status) {
	n, err := h.fs.Write(h.path, data, uint64(off))
	if err != nil {
		return uint32(n), toStatus(err)
	}
	return uint32(n), fuse.OK
}

func (h *file) Truncate(size uint64) fuse.Status {
	return toStatus(h.fs.Truncate(h.path, size))
}

func (h *file) GetAttr(out *fuse.Attr) fuse.Status {
	stat, err := h.fs.GetAttr(h.path)
	if err != nil {
		return toStatus(err)
	}
	*out = *toAttr(stat)
	return fuse.OK
}
