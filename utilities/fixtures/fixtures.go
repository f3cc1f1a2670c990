// Package fixtures compresses and decompresses whole filesystem images for
// storage as compact embedded test data.
//
// Adapted from the teacher's utilities/compression package: the same RLE8 +
// gzip pipeline (disk images are mostly zero bytes and repeated patterns,
// which RLE8 collapses before gzip ever sees them), trimmed down to just the
// image-level Compress/Decompress entry points this module's tests need.
package fixtures

import (
	"bufio"
	"bytes"
	"compress/gzip"
	"errors"
	"fmt"
	"io"
)

type byteRun struct {
	b     byte
	count int
}

// nextRun reads consecutive identical bytes from r, starting with whatever
// byte comes next.
func nextRun(r *bufio.Reader) (byteRun, error) {
	first, err := r.ReadByte()
	if err != nil {
		return byteRun{}, err
	}

	run := byteRun{b: first, count: 1}
	for {
		next, err := r.Peek(1)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return run, nil
			}
			return run, err
		}
		if next[0] != first {
			return run, nil
		}
		r.Discard(1)
		run.count++
	}
}

// compressRLE8 run-length encodes input, writing three bytes (value, value,
// repeat count) for every run of two or more identical bytes and the byte
// itself otherwise.
func compressRLE8(input io.Reader, output io.Writer) error {
	r := bufio.NewReader(input)
	for {
		run, err := nextRun(r)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}

		for run.count >= 2 {
			repeatCount := run.count - 2
			if repeatCount > 255 {
				repeatCount = 255
			}
			if _, err := output.Write([]byte{run.b, run.b, byte(repeatCount)}); err != nil {
				return err
			}
			run.count -= repeatCount + 2
		}
		if run.count == 1 {
			if _, err := output.Write([]byte{run.b}); err != nil {
				return err
			}
		}
	}
}

// decompressRLE8 reverses compressRLE8.
func decompressRLE8(input io.Reader, output io.Writer) error {
	r := bufio.NewReader(input)
	lastByte := -1

	for {
		b, err := r.ReadByte()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}

		var chunk []byte
		if int(b) == lastByte {
			repeatCount, err := r.ReadByte()
			if err != nil {
				return fmt.Errorf("missing repeat count after run of %#x: %w", b, err)
			}
			chunk = bytes.Repeat([]byte{b}, int(repeatCount)+1)
			lastByte = -1
		} else {
			lastByte = int(b)
			chunk = []byte{b}
		}

		if _, err := output.Write(chunk); err != nil {
			return err
		}
	}
}

// Compress RLE8-encodes and gzips a raw filesystem image.
func Compress(image []byte) ([]byte, error) {
	var rle bytes.Buffer
	if err := compressRLE8(bytes.NewReader(image), &rle); err != nil {
		return nil, fmt.Errorf("rle8 compression failed: %w", err)
	}

	var out bytes.Buffer
	gz, err := gzip.NewWriterLevel(&out, gzip.BestCompression)
	if err != nil {
		return nil, fmt.Errorf("failed to create gzip writer: %w", err)
	}
	if _, err := gz.Write(rle.Bytes()); err != nil {
		gz.Close()
		return nil, fmt.Errorf("gzip compression failed: %w", err)
	}
	if err := gz.Close(); err != nil {
		return nil, fmt.Errorf("gzip close failed: %w", err)
	}
	return out.Bytes(), nil
}

// Decompress reverses Compress, returning exactly expectedSize bytes.
func Decompress(compressed []byte, expectedSize int) ([]byte, error) {
	gz, err := gzip.NewReader(bytes.NewReader(compressed))
	if err != nil {
		return nil, fmt.Errorf("failed to create gzip reader: %w", err)
	}
	defer gz.Close()

	var raw bytes.Buffer
	if err := decompressRLE8(gz, &raw); err != nil {
		return nil, fmt.Errorf("rle8 decompression failed: %w", err)
	}

	if raw.Len() != expectedSize {
		return nil, fmt.Errorf("decompressed image is %d bytes, expected %d", raw.Len(), expectedSize)
	}
	return raw.Bytes(), nil
}
