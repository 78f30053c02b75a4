package fsutil

import (
	"fmt"
	"io"
)

// Buffer is an in-memory io.ReaderAt and io.WriterAt. Radar files are
// decoded from and encoded into a Buffer so whole files move through a
// FileSystem as byte slices.
type Buffer struct {
	data []byte
}

// NewBuffer returns a Buffer reading data. The slice is used directly.
func NewBuffer(data []byte) *Buffer {
	return &Buffer{data: data}
}

// Bytes returns the current contents.
func (b *Buffer) Bytes() []byte { return b.data }

// ReadAt implements io.ReaderAt.
func (b *Buffer) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 {
		return 0, fmt.Errorf("negative offset %d", off)
	}
	if off >= int64(len(b.data)) {
		return 0, io.EOF
	}
	n := copy(p, b.data[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

// WriteAt implements io.WriterAt, growing the buffer as needed. Gaps are
// zero-filled.
func (b *Buffer) WriteAt(p []byte, off int64) (int, error) {
	if off < 0 {
		return 0, fmt.Errorf("negative offset %d", off)
	}
	end := int(off) + len(p)
	if end > len(b.data) {
		if end > cap(b.data) {
			grown := make([]byte, end, 2*end)
			copy(grown, b.data)
			b.data = grown
		} else {
			b.data = b.data[:end]
		}
	}
	copy(b.data[off:], p)
	return len(p), nil
}
