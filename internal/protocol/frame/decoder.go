package frame

import (
	"errors"
	"io"

	"github.com/danmuck/bottle/internal/protocol"
	"github.com/danmuck/bottle/internal/protocol/source"
)

// Decoder reads a framed stream back into its payload bytes. It stops exactly
// after the terminator frame, leaving src positioned at whatever follows.
type Decoder struct {
	src       *source.Source
	remaining int
	finished  bool
	err       error

	prefix [3]byte
	frames int64
	bytes  int64
}

func NewDecoder(src *source.Source) *Decoder {
	return &Decoder{src: src}
}

// Read returns payload bytes, never crossing past the terminator. It returns
// io.EOF once the terminator frame has been read.
func (d *Decoder) Read(p []byte) (int, error) {
	if d.err != nil {
		return 0, d.err
	}
	for d.remaining == 0 {
		if d.finished {
			return 0, io.EOF
		}
		length, err := d.readLength()
		if err != nil {
			d.err = err
			return 0, err
		}
		if length == 0 {
			d.finished = true
			return 0, io.EOF
		}
		d.remaining = length
		d.frames++
	}
	if len(p) == 0 {
		return 0, nil
	}
	if len(p) > d.remaining {
		p = p[:d.remaining]
	}
	n, err := d.src.Read(p)
	d.remaining -= n
	d.bytes += int64(n)
	if err != nil {
		if errors.Is(err, io.EOF) {
			err = protocol.Truncatedf("frame: payload ended with %d bytes missing at position %d", d.remaining, d.src.BytesRead())
		}
		d.err = err
		if n > 0 {
			return n, nil
		}
		return 0, err
	}
	return n, nil
}

func (d *Decoder) readLength() (int, error) {
	lead, err := d.src.ReadByte()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return 0, protocol.Truncatedf("frame: missing length at position %d", d.src.BytesRead())
		}
		return 0, err
	}
	d.prefix[0] = lead
	width := LengthLength(lead)
	if width > 1 {
		if err := d.src.ReadFull(d.prefix[1:width], "frame length"); err != nil {
			return 0, err
		}
	}
	return DecodeLength(d.prefix[:width])
}

// Finished reports whether the terminator frame has been read.
func (d *Decoder) Finished() bool {
	return d.finished
}

// Frames is the number of data frames read so far.
func (d *Decoder) Frames() int64 {
	return d.frames
}

// Bytes is the number of payload bytes read so far.
func (d *Decoder) Bytes() int64 {
	return d.bytes
}
