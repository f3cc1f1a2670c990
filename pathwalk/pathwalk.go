// Package pathwalk resolves absolute paths to inode numbers by walking
// directory entries starting from the root inode.
//
// Grounded on the teacher's drivers/common/basedriver.getObjectAtPathNoFollow,
// generalized path-component walk, but simplified: this module has no
// symbolic links (see spec Non-goals), so there is no link-cycle detection
// or resolveSymlink step, just a straight walk.
package pathwalk

import (
	"strings"

	"github.com/blockfs/extentfs/dirent"
	"github.com/blockfs/extentfs/errno"
	"github.com/blockfs/extentfs/inodetab"
	"github.com/blockfs/extentfs/layout"
)

// Resolver walks paths against a directory engine and inode manager.
type Resolver struct {
	inodes *inodetab.Manager
	dirs   *dirent.Engine
}

// NewResolver builds a path resolver.
func NewResolver(inodes *inodetab.Manager, dirs *dirent.Engine) *Resolver {
	return &Resolver{inodes: inodes, dirs: dirs}
}

// splitComponents splits an absolute path on "/", dropping empty components
// produced by leading/trailing/doubled slashes.
func splitComponents(path string) []string {
	parts := strings.Split(path, "/")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Resolve walks an absolute path from the root inode (index 0) to the
// target inode, returning its inode number. The empty path ("/") yields the
// root inode.
func (r *Resolver) Resolve(path string) (uint32, error) {
	if err := layout.CheckPath(path); err != nil {
		return 0, err
	}

	components := splitComponents(path)
	current := uint32(layout.RootInode)

	for idx, name := range components {
		if err := layout.CheckComponentName(name); err != nil {
			return 0, err
		}

		currentInode, err := r.inodes.Read(current)
		if err != nil {
			return 0, err
		}

		if !currentInode.IsDir() {
			return 0, errno.NotADirectory("%q is not a directory", strings.Join(components[:idx], "/"))
		}

		childInode, err := r.dirs.Find(currentInode, name)
		if err != nil {
			return 0, err
		}

		// A directory entry pointing at an inode whose bitmap bit isn't set
		// is a consistency failure; it is reported as not-a-directory.
		if !r.inodes.IsAllocated(childInode) {
			return 0, errno.NotADirectory("dangling entry %q", name)
		}

		current = childInode
	}

	return current, nil
}

// ResolveParent resolves the parent directory of path and returns the
// parent's inode number alongside the final path component's basename.
// This is the split basedriver.posixpath.Split performs before create,
// mkdir, unlink, and rmdir.
func (r *Resolver) ResolveParent(path string) (parentInode uint32, baseName string, err error) {
	if err := layout.CheckPath(path); err != nil {
		return 0, "", err
	}

	components := splitComponents(path)
	if len(components) == 0 {
		return 0, "", errno.InvalidArgument("path %q has no parent", path)
	}

	parentPath := "/" + strings.Join(components[:len(components)-1], "/")
	parent, err := r.Resolve(parentPath)
	if err != nil {
		return 0, "", err
	}
	return parent, components[len(components)-1], nil
}
