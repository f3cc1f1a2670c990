package fsck_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blockfs/extentfs"
	"github.com/blockfs/extentfs/fsck"
	"github.com/blockfs/extentfs/mkfs"
)

func TestCheck_CleanImage(t *testing.T) {
	const size = 1024 * 1024
	image := make([]byte, size)
	require.NoError(t, mkfs.Format(image, size, mkfs.Options{InodeCount: 32}))

	report, err := fsck.Check(image)
	require.NoError(t, err)
	assert.True(t, report.OK(), "%v", report.Violations)
	assert.NoError(t, report.Err)
}

func TestCheck_AfterActivity(t *testing.T) {
	const size = 1024 * 1024
	image := make([]byte, size)
	require.NoError(t, mkfs.Format(image, size, mkfs.Options{InodeCount: 32}))

	fs, err := extentfs.New(image)
	require.NoError(t, err)
	require.NoError(t, fs.Mkdir("/a", 0755))
	require.NoError(t, fs.Create("/a/f", 0644))
	_, err = fs.Write("/a/f", []byte("hello world"), 0)
	require.NoError(t, err)

	report, err := fsck.Check(image)
	require.NoError(t, err)
	assert.True(t, report.OK(), "%v", report.Violations)
}

func TestCheck_DetectsCorruptedFreeCount(t *testing.T) {
	const size = 1024 * 1024
	image := make([]byte, size)
	require.NoError(t, mkfs.Format(image, size, mkfs.Options{InodeCount: 32}))

	// Corrupt the superblock's free-inode counter directly, byte-for-byte,
	// without going through any engine.
	const freeInodeCountOffset = 8 + 8 + 4*4 + 4*3 + 4*2 // matches layout.Superblock's field order
	image[freeInodeCountOffset] = 0xFF

	report, err := fsck.Check(image)
	require.NoError(t, err)
	assert.False(t, report.OK())
	assert.Error(t, report.Err)
}
