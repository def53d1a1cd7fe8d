package bottle

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/danmuck/bottle/internal/observability"
	"github.com/danmuck/bottle/internal/protocol"
	"github.com/danmuck/bottle/internal/protocol/frame"
)

// Encoder serializes a bottle on demand: reading from it pulls sub-streams
// from the bottle one at a time and frames them. Nothing is buffered beyond
// one frame.
type Encoder struct {
	b         *Bottle
	blockSize int

	pending []byte
	marker  [1]byte
	cur     io.Reader
	raw     *frame.Encoder
	stream  *RawStream
	child   *Encoder
	started bool
	ended   bool
	err     error
	written int64
}

// Encoder returns a reader over b's serialized form. Raw sub-streams are
// framed blockSize bytes at a time (frame.DefaultBlockSize if <= 0).
func (b *Bottle) Encoder(blockSize int) *Encoder {
	return &Encoder{b: b, blockSize: blockSize}
}

// WriteTo serializes b to w. A failed write closes the encoder.
func (b *Bottle) WriteTo(w io.Writer) (int64, error) {
	e := b.Encoder(frame.DefaultBlockSize)
	n, err := io.Copy(w, e)
	if err != nil {
		e.Close()
	}
	return n, err
}

func (e *Encoder) Read(p []byte) (int, error) {
	for {
		if len(e.pending) > 0 {
			n := copy(p, e.pending)
			e.pending = e.pending[n:]
			e.written += int64(n)
			return n, nil
		}
		if e.err != nil {
			return 0, e.err
		}
		if e.cur != nil {
			n, err := e.cur.Read(p)
			e.written += int64(n)
			if errors.Is(err, io.EOF) {
				e.closeSubStream()
				if n > 0 {
					return n, nil
				}
				continue
			}
			if err != nil {
				e.err = err
				e.b.fail(err)
				e.release()
			}
			return n, err
		}
		if e.ended {
			return 0, io.EOF
		}
		if !e.started {
			capBytes, err := e.b.Cap.Encode()
			if err != nil {
				e.err = err
				e.b.fail(err)
				return 0, err
			}
			e.started = true
			e.pending = capBytes
			observability.RecordBottle(observability.DirectionWrite, e.b.Cap.Type.String())
			continue
		}
		if err := e.nextSubStream(); err != nil {
			e.err = err
			e.release()
			return 0, err
		}
	}
}

// Written is the number of bytes produced so far.
func (e *Encoder) Written() int64 {
	return e.written
}

func (e *Encoder) nextSubStream() error {
	// the previous sub-stream was read to its end, so this never waits
	s, err := e.b.Next(context.Background())
	if errors.Is(err, io.EOF) {
		e.marker[0] = protocol.MarkerEnd
		e.pending = e.marker[:]
		e.ended = true
		return nil
	}
	if err != nil {
		return err
	}
	switch s := s.(type) {
	case *RawStream:
		e.marker[0] = protocol.MarkerRaw
		e.raw = frame.NewEncoder(s, e.blockSize)
		e.cur = e.raw
		e.stream = s
	case *Bottle:
		e.marker[0] = protocol.MarkerBottle
		e.child = s.Encoder(e.blockSize)
		e.cur = e.child
	default:
		return e.b.fail(fmt.Errorf("bottle: unknown stream %T", s))
	}
	e.pending = e.marker[:]
	return nil
}

func (e *Encoder) closeSubStream() {
	if e.raw != nil {
		observability.RecordFrames(observability.DirectionWrite, e.raw.Frames(), e.raw.Bytes())
	}
	e.cur = nil
	e.raw = nil
	e.stream = nil
	e.child = nil
}

// Close abandons an unfinished encoding. The bottle fails with ErrAbandoned
// and the sub-stream being encoded is closed, which stops a Transform
// goroutine feeding it. Closing a fully read Encoder does nothing.
func (e *Encoder) Close() error {
	if e.ended && len(e.pending) == 0 {
		return nil
	}
	if e.err == nil {
		e.err = fmt.Errorf("%w: encoder closed", ErrAbandoned)
		e.b.fail(e.err)
	}
	e.pending = nil
	e.release()
	return nil
}

func (e *Encoder) release() {
	if e.stream != nil {
		e.stream.Close()
	}
	if e.child != nil {
		e.child.Close()
	}
	e.cur = nil
	e.raw = nil
	e.stream = nil
	e.child = nil
}
