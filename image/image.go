// Package image memory-maps the backing image file, exposing a single
// mutable byte region of known size.
//
// This is the image-mapping collaborator named as out of scope by the
// filesystem design: the core metadata engine only needs a []byte, and any
// equivalent plumbing (mmap, a plain read-into-memory buffer, a block
// device) can provide one. This implementation uses
// golang.org/x/sys/unix.Mmap, the syscall wrapper already present in the
// example pack's diskfs dependency surface.
package image

import (
	"os"

	"golang.org/x/sys/unix"

	"github.com/blockfs/extentfs/errno"
)

// Mapping is a memory-mapped image file.
type Mapping struct {
	Bytes []byte
	file  *os.File
}

// Open maps an existing image file read-write.
func Open(path string) (*Mapping, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, errno.IO("failed to open image %q: %s", path, err)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, errno.IO("failed to stat image %q: %s", path, err)
	}

	data, err := unix.Mmap(int(f.Fd()), 0, int(info.Size()), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		f.Close()
		return nil, errno.IO("failed to mmap image %q: %s", path, err)
	}

	return &Mapping{Bytes: data, file: f}, nil
}

// Create truncates (or extends) the file at path to size bytes and maps it,
// used by the formatter to materialize a blank image before laying out the
// filesystem onto it.
func Create(path string, size int64) (*Mapping, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, errno.IO("failed to create image %q: %s", path, err)
	}
	if err := f.Truncate(size); err != nil {
		f.Close()
		return nil, errno.IO("failed to size image %q to %d bytes: %s", path, size, err)
	}
	f.Close()
	return Open(path)
}

// Sync flushes the mapping's dirty pages back to the backing file.
func (m *Mapping) Sync() error {
	if err := unix.Msync(m.Bytes, unix.MS_SYNC); err != nil {
		return errno.IO("msync failed: %s", err)
	}
	return nil
}

// Close unmaps the image and closes the backing file descriptor. Stores
// become durable once this returns (or once the host flushes the mapping on
// its own).
func (m *Mapping) Close() error {
	err := unix.Munmap(m.Bytes)
	closeErr := m.file.Close()
	if err != nil {
		return errno.IO("munmap failed: %s", err)
	}
	if closeErr != nil {
		return errno.IO("failed to close image file: %s", closeErr)
	}
	return nil
}
