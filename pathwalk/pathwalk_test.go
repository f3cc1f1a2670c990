package pathwalk_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blockfs/extentfs/dirent"
	"github.com/blockfs/extentfs/extent"
	"github.com/blockfs/extentfs/inodetab"
	"github.com/blockfs/extentfs/layout"
	"github.com/blockfs/extentfs/pathwalk"
)

const (
	testInodeCount = 16
	testBlockCount = 16
)

type fixture struct {
	inodes   *inodetab.Manager
	dirs     *dirent.Engine
	resolver *pathwalk.Resolver
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	image := make([]byte, layout.BlockSize*testBlockCount)

	inodeBitmap := layout.NewBitmap(testInodeCount)
	freeInodes := uint32(testInodeCount)
	inodes := inodetab.NewManager(image, 1, &inodeBitmap, &freeInodes)

	// Block 1 holds the inode table; keep the allocator from handing it out.
	blockBitmap := layout.NewBitmap(testBlockCount)
	blockBitmap.Set(1)
	freeBlocks := uint32(testBlockCount - 1)
	alloc := extent.NewAllocator(&blockBitmap, &freeBlocks)

	dirs := dirent.NewEngine(image, inodes, alloc)
	resolver := pathwalk.NewResolver(inodes, dirs)

	// Root directory: inode 0.
	rootIdx, err := inodes.Alloc()
	require.NoError(t, err)
	require.Equal(t, uint32(layout.RootInode), rootIdx)

	rootExt, err := alloc.AllocateExact(1)
	require.NoError(t, err)
	root := layout.Inode{Mode: layout.ModeDir | 0755, Links: 2, ExtentTableBlock: 10}
	require.NoError(t, inodes.WriteExtents(&root, []layout.Extent{rootExt}))
	require.NoError(t, inodes.Write(rootIdx, &root))

	return &fixture{inodes: inodes, dirs: dirs, resolver: resolver}
}

func (f *fixture) mkdir(t *testing.T, parent *layout.Inode, parentIdx uint32, name string) (uint32, *layout.Inode) {
	t.Helper()
	idx, err := f.inodes.Alloc()
	require.NoError(t, err)

	child := layout.Inode{Mode: layout.ModeDir | 0755, Links: 2, ExtentTableBlock: 10 + idx}
	require.NoError(t, f.inodes.Write(idx, &child))
	require.NoError(t, f.dirs.Insert(parent, name, idx))
	require.NoError(t, f.inodes.Write(parentIdx, parent))

	got, err := f.inodes.Read(idx)
	require.NoError(t, err)
	return idx, got
}

func TestResolve_Root(t *testing.T) {
	fx := newFixture(t)
	idx, err := fx.resolver.Resolve("/")
	require.NoError(t, err)
	assert.Equal(t, uint32(layout.RootInode), idx)
}

func TestResolve_NestedPath(t *testing.T) {
	fx := newFixture(t)
	root, err := fx.inodes.Read(layout.RootInode)
	require.NoError(t, err)

	aIdx, aInode := fx.mkdir(t, root, layout.RootInode, "a")
	bIdx, _ := fx.mkdir(t, aInode, aIdx, "b")

	got, err := fx.resolver.Resolve("/a/b")
	require.NoError(t, err)
	assert.Equal(t, bIdx, got)
}

func TestResolve_NoSuchEntry(t *testing.T) {
	fx := newFixture(t)
	_, err := fx.resolver.Resolve("/nope")
	assert.Error(t, err)
}

func TestResolve_MidPathNotADirectory(t *testing.T) {
	fx := newFixture(t)
	root, err := fx.inodes.Read(layout.RootInode)
	require.NoError(t, err)

	fileIdx, err := fx.inodes.Alloc()
	require.NoError(t, err)
	file := layout.Inode{Mode: layout.ModeReg | 0644, Links: 1, ExtentTableBlock: 11}
	require.NoError(t, fx.inodes.Write(fileIdx, &file))
	require.NoError(t, fx.dirs.Insert(root, "f", fileIdx))
	require.NoError(t, fx.inodes.Write(layout.RootInode, root))

	_, err = fx.resolver.Resolve("/f/x")
	assert.Error(t, err)
}

func TestResolve_PathTooLong(t *testing.T) {
	fx := newFixture(t)
	long := make([]byte, layout.PathMax+1)
	for i := range long {
		long[i] = 'a'
	}
	_, err := fx.resolver.Resolve("/" + string(long))
	assert.Error(t, err)
}

func TestResolveParent(t *testing.T) {
	fx := newFixture(t)
	root, err := fx.inodes.Read(layout.RootInode)
	require.NoError(t, err)
	fx.mkdir(t, root, layout.RootInode, "a")

	parentIdx, base, err := fx.resolver.ResolveParent("/a/b")
	require.NoError(t, err)
	assert.Equal(t, base, "b")

	parent, err := fx.inodes.Read(parentIdx)
	require.NoError(t, err)
	assert.True(t, parent.IsDir())
}
