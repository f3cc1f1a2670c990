// Package dirent is the directory engine: it walks a directory inode's
// extents to enumerate, search for, insert into, and delete from the
// directory-entry slots packed into its data blocks.
//
// This is the "most permissive, most correct" variant the spec settled on
// after comparing several divergent copies in the source this module is
// built from: it iterates every slot in every extent skipping only
// ino == 0, rather than stopping early once EntryCount live entries have
// been seen (a bug present in some of those copies, since deleted entries
// leave holes earlier in the extent list than undeleted ones).
package dirent

import (
	"bytes"
	"encoding/binary"
	"time"

	"github.com/blockfs/extentfs/errno"
	"github.com/blockfs/extentfs/extent"
	"github.com/blockfs/extentfs/inodetab"
	"github.com/blockfs/extentfs/layout"
)

// Engine operates on a single directory inode's data.
type Engine struct {
	image     []byte
	inodes    *inodetab.Manager
	allocator *extent.Allocator
}

// NewEngine builds a directory engine backed by the given inode manager and
// block allocator.
func NewEngine(image []byte, inodes *inodetab.Manager, allocator *extent.Allocator) *Engine {
	return &Engine{image: image, inodes: inodes, allocator: allocator}
}

func (e *Engine) blockSlice(block uint32) []byte {
	off := layout.BlockOffset(block)
	return e.image[off : off+layout.BlockSize]
}

func readDirent(block []byte, slot int) layout.Dirent {
	var d layout.Dirent
	start := slot * layout.DirentSize
	binary.Read(bytes.NewReader(block[start:start+layout.DirentSize]), binary.LittleEndian, &d)
	return d
}

func writeDirent(block []byte, slot int, d layout.Dirent) {
	buf := new(bytes.Buffer)
	buf.Grow(layout.DirentSize)
	binary.Write(buf, binary.LittleEndian, d)
	start := slot * layout.DirentSize
	copy(block[start:start+layout.DirentSize], buf.Bytes())
}

// Entry is a live directory entry discovered while walking a directory.
type Entry struct {
	Name        string
	InodeNumber uint32
}

// Enumerate yields every live entry ("." and ".." are synthesized by the
// caller, not stored on disk).
func (e *Engine) Enumerate(dir *layout.Inode) ([]Entry, error) {
	extents, err := e.inodes.ReadExtents(dir)
	if err != nil {
		return nil, err
	}

	var entries []Entry
	for _, ext := range extents {
		for b := uint32(0); b < ext.BlockCount; b++ {
			block := e.blockSlice(ext.StartBlock + b)
			for slot := 0; slot < layout.DirentsPerBlock; slot++ {
				d := readDirent(block, slot)
				if d.IsFree() {
					continue
				}
				entries = append(entries, Entry{Name: d.GetName(), InodeNumber: d.InodeNumber})
			}
		}
	}
	return entries, nil
}

// Find returns the inode number of the first live entry named `name`.
func (e *Engine) Find(dir *layout.Inode, name string) (uint32, error) {
	extents, err := e.inodes.ReadExtents(dir)
	if err != nil {
		return 0, err
	}

	for _, ext := range extents {
		for b := uint32(0); b < ext.BlockCount; b++ {
			block := e.blockSlice(ext.StartBlock + b)
			for slot := 0; slot < layout.DirentsPerBlock; slot++ {
				d := readDirent(block, slot)
				if d.IsFree() {
					continue
				}
				if d.GetName() == name {
					return d.InodeNumber, nil
				}
			}
		}
	}
	return 0, errno.NotFound("no such entry %q", name)
}

// touchMtime bumps dir's modification time to now.
func touchMtime(dir *layout.Inode) {
	now := time.Now()
	dir.MtimeSec = now.Unix()
	dir.MtimeNsec = int32(now.Nanosecond())
}

// Insert adds a new entry (name -> childInode) to dir. It scans for a free
// slot first; if none is found and the extent table isn't full, it
// allocates one new data block, zeroes it, appends an extent, and writes
// the entry at offset 0. It fails with errno.NoSpace if the extent table is
// already at layout.MaxExtents and no free slot exists.
func (e *Engine) Insert(dir *layout.Inode, name string, childInode uint32) error {
	var entry layout.Dirent
	if err := entry.SetName(name); err != nil {
		return err
	}
	entry.InodeNumber = childInode

	extents, err := e.inodes.ReadExtents(dir)
	if err != nil {
		return err
	}

	for _, ext := range extents {
		for b := uint32(0); b < ext.BlockCount; b++ {
			block := e.blockSlice(ext.StartBlock + b)
			for slot := 0; slot < layout.DirentsPerBlock; slot++ {
				if readDirent(block, slot).IsFree() {
					writeDirent(block, slot, entry)
					dir.EntryCount++
					dir.Size = uint64(dir.EntryCount) * layout.DirentSize
					touchMtime(dir)
					return nil
				}
			}
		}
	}

	if len(extents) >= layout.MaxExtents {
		return errno.NoSpace("directory's extent table is full")
	}

	newExtent, err := e.allocator.AllocateExact(1)
	if err != nil {
		return err
	}

	block := e.blockSlice(newExtent.StartBlock)
	for i := range block {
		block[i] = 0
	}
	writeDirent(block, 0, entry)

	extents = append(extents, newExtent)
	if err := e.inodes.WriteExtents(dir, extents); err != nil {
		e.allocator.Free(newExtent)
		return err
	}

	dir.EntryCount++
	dir.Size = uint64(dir.EntryCount) * layout.DirentSize
	touchMtime(dir)
	return nil
}

// Delete zeroes the entry named `name` in place. While the directory still
// holds other entries, no extent is reclaimed; this simplifies bookkeeping
// at the cost of leaving holes, which is acceptable because optimal packing
// isn't a goal. When the last entry is deleted, every data block of the
// directory is released and its extent table is emptied.
func (e *Engine) Delete(dir *layout.Inode, name string) error {
	extents, err := e.inodes.ReadExtents(dir)
	if err != nil {
		return err
	}

	for _, ext := range extents {
		for b := uint32(0); b < ext.BlockCount; b++ {
			block := e.blockSlice(ext.StartBlock + b)
			for slot := 0; slot < layout.DirentsPerBlock; slot++ {
				d := readDirent(block, slot)
				if d.IsFree() || d.GetName() != name {
					continue
				}
				writeDirent(block, slot, layout.Dirent{})
				dir.EntryCount--
				dir.Size = uint64(dir.EntryCount) * layout.DirentSize
				touchMtime(dir)
				if dir.EntryCount == 0 {
					for _, freed := range extents {
						e.allocator.Free(freed)
					}
					return e.inodes.WriteExtents(dir, nil)
				}
				return nil
			}
		}
	}
	return errno.NotFound("no such entry %q", name)
}
