// Package buffered coalesces small reads into full blocks before framing, so
// a trickle of tiny writes doesn't turn into a trickle of tiny frames.
package buffered

import (
	"errors"
	"io"
)

// DefaultSize matches frame.DefaultBlockSize.
const DefaultSize = 64 * 1024

// Reader returns whole blocks of size bytes from r, except for the final
// block before io.EOF.
type Reader struct {
	r    io.Reader
	size int
	err  error
}

func NewReader(r io.Reader, size int) *Reader {
	if size <= 0 {
		size = DefaultSize
	}
	return &Reader{r: r, size: size}
}

// Read fills up to min(len(p), size) bytes, waiting on r until the block is
// full or r is exhausted.
func (b *Reader) Read(p []byte) (int, error) {
	if b.err != nil {
		return 0, b.err
	}
	if len(p) > b.size {
		p = p[:b.size]
	}
	n, err := io.ReadFull(b.r, p)
	switch {
	case err == nil:
		return n, nil
	case errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF):
		b.err = io.EOF
		if n > 0 {
			return n, nil
		}
		return 0, io.EOF
	default:
		b.err = err
		return n, err
	}
}
