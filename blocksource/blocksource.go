// Package blocksource abstracts the random-access byte sequences the
// scanner and hasher read from. A Source is anything that can serve
// concurrent positional reads and report its total size: an in-memory
// buffer, a file, or a mapped region.
package blocksource

import (
	"bytes"
	"io"
	"os"

	"github.com/pkg/errors"
)

// Source is a random-access byte sequence. ReadAt must be safe for
// concurrent use; nothing in this module writes through a Source.
type Source interface {
	io.ReaderAt
	Size() int64
}

// Buffer is an in-memory Source.
type Buffer struct {
	*bytes.Reader
}

// NewBuffer wraps a byte slice as a Source. The slice is not copied;
// the caller must not mutate it while reads are in flight.
func NewBuffer(data []byte) *Buffer {
	return &Buffer{bytes.NewReader(data)}
}

// File is an os.File-backed Source.
type File struct {
	f    *os.File
	size int64
}

// Open opens path as a Source.
func Open(path string) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	stat, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, errors.WithStack(err)
	}
	return &File{f: f, size: stat.Size()}, nil
}

func (fs *File) ReadAt(p []byte, off int64) (int, error) {
	return fs.f.ReadAt(p, off)
}

func (fs *File) Size() int64 {
	return fs.size
}

func (fs *File) Close() error {
	return fs.f.Close()
}

// ReadFull reads length bytes at offset into a freshly-owned buffer,
// truncating the read at the end of the source. Reading at or past the
// end returns an empty buffer.
func ReadFull(src Source, offset int64, length int64) ([]byte, error) {
	if remaining := src.Size() - offset; length > remaining {
		length = remaining
	}
	if length <= 0 {
		return nil, nil
	}
	buf := make([]byte, length)
	_, err := src.ReadAt(buf, offset)
	if err != nil && err != io.EOF {
		return nil, errors.Wrapf(err, "reading %d bytes at %d", length, offset)
	}
	return buf, nil
}
