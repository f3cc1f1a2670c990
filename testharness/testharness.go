// Package testharness provides helpers for building in-memory extentfs
// images in tests.
//
// Adapted from the teacher's testing/images.go, which wraps a decompressed
// disk image in a github.com/xaionaro-go/bytesextra.ReadWriteSeeker so test
// code can exercise stream-oriented APIs against a plain byte slice. This
// module's engines operate on a mapped []byte directly rather than a stream,
// so the seeker here is used the other way around: it gives tests a
// conventional io.ReadWriteSeeker view onto a fixture for incidental
// inspection (e.g. seeking to a known block to assert on raw bytes) while
// the engines themselves still receive the backing slice directly.
package testharness

import (
	"io"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/xaionaro-go/bytesextra"

	"github.com/blockfs/extentfs/layout"
	"github.com/blockfs/extentfs/mkfs"
	"github.com/blockfs/extentfs/utilities/fixtures"
)

// BlankImage formats a brand-new image of totalBlocks blocks with
// inodeCount inodes and returns its backing buffer.
func BlankImage(t *testing.T, inodeCount uint32, totalBlocks uint64) []byte {
	t.Helper()
	image := make([]byte, totalBlocks*layout.BlockSize)
	require.NoError(t, mkfs.Format(image, int64(len(image)), mkfs.Options{InodeCount: inodeCount}))
	return image
}

// LoadFixture decompresses a compressed reference image (produced by
// fixtures.Compress) and returns its backing buffer, alongside a seekable
// stream view of the same bytes for assertions that read more naturally as
// stream operations than slice indexing.
func LoadFixture(t *testing.T, compressed []byte, expectedSize int) ([]byte, io.ReadWriteSeeker) {
	t.Helper()
	require.Greater(t, len(compressed), 0, "compressed fixture is empty")

	image, err := fixtures.Decompress(compressed, expectedSize)
	require.NoError(t, err)

	return image, bytesextra.NewReadWriteSeeker(image)
}
