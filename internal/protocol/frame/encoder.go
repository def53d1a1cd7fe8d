package frame

import (
	"io"
)

// DefaultBlockSize is the chunk size used when reading from an upstream
// reader. Full blocks take a one-byte prefix.
const DefaultBlockSize = 64 * 1024

var terminator = []byte{0}

// Encoder is the pull side of framing: every Read of the wrapped reader
// becomes one chunk, and the encoded stream is read back out of the Encoder.
type Encoder struct {
	r   io.Reader
	buf []byte
	err error

	prefixBuf [3]byte
	prefix    []byte
	payload   []byte
	chunk     []byte
	finished  bool

	frames int64
	bytes  int64
}

// NewEncoder frames r, reading at most blockSize bytes per chunk.
func NewEncoder(r io.Reader, blockSize int) *Encoder {
	if blockSize <= 0 {
		blockSize = DefaultBlockSize
	}
	return &Encoder{r: r, buf: make([]byte, blockSize)}
}

// Read fills p with encoded bytes. It returns io.EOF once the terminator has
// been delivered.
func (e *Encoder) Read(p []byte) (int, error) {
	total := 0
	for total < len(p) {
		switch {
		case len(e.prefix) > 0:
			n := copy(p[total:], e.prefix)
			e.prefix = e.prefix[n:]
			total += n
		case len(e.payload) > 0:
			n := copy(p[total:], e.payload)
			e.payload = e.payload[n:]
			total += n
		case len(e.chunk) > 0:
			k := splitLength(len(e.chunk))
			e.prefix, _ = AppendLength(e.prefixBuf[:0], k)
			e.payload = e.chunk[:k]
			e.chunk = e.chunk[k:]
			e.frames++
			e.bytes += int64(k)
		case e.finished:
			if total > 0 {
				return total, nil
			}
			return 0, io.EOF
		case e.err != nil:
			if e.err != io.EOF {
				if total > 0 {
					return total, nil
				}
				return 0, e.err
			}
			e.prefix = terminator
			e.finished = true
		default:
			if total > 0 {
				// don't block on upstream while holding output
				return total, nil
			}
			n, err := e.r.Read(e.buf)
			e.chunk = e.buf[:n]
			e.err = err
		}
	}
	return total, nil
}

// Frames is the number of data frames emitted so far, excluding the terminator.
func (e *Encoder) Frames() int64 {
	return e.frames
}

// Bytes is the number of payload bytes framed so far.
func (e *Encoder) Bytes() int64 {
	return e.bytes
}

// Writer is the push side of framing: each Write is one chunk. Close writes
// the terminator; it does not close the underlying writer.
type Writer struct {
	w         io.Writer
	prefixBuf [3]byte
	closed    bool
	frames    int64
}

func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

func (fw *Writer) Write(p []byte) (int, error) {
	if fw.closed {
		return 0, io.ErrClosedPipe
	}
	written := 0
	for len(p) > 0 {
		k := splitLength(len(p))
		prefix, _ := AppendLength(fw.prefixBuf[:0], k)
		if _, err := fw.w.Write(prefix); err != nil {
			return written, err
		}
		n, err := fw.w.Write(p[:k])
		written += n
		if err != nil {
			return written, err
		}
		fw.frames++
		p = p[k:]
	}
	return written, nil
}

// ReadFrom frames everything in r, one chunk per Read.
func (fw *Writer) ReadFrom(r io.Reader) (int64, error) {
	buf := make([]byte, DefaultBlockSize)
	var total int64
	for {
		n, err := r.Read(buf)
		if n > 0 {
			if _, werr := fw.Write(buf[:n]); werr != nil {
				return total, werr
			}
			total += int64(n)
		}
		if err == io.EOF {
			return total, nil
		}
		if err != nil {
			return total, err
		}
	}
}

func (fw *Writer) Close() error {
	if fw.closed {
		return nil
	}
	fw.closed = true
	_, err := fw.w.Write(terminator)
	return err
}

// Frames is the number of data frames written so far.
func (fw *Writer) Frames() int64 {
	return fw.frames
}
