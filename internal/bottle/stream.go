package bottle

import (
	"fmt"
	"io"
	"sync"

	"github.com/danmuck/bottle/internal/observability"
	"github.com/danmuck/bottle/internal/protocol/frame"
)

// Stream is one sub-stream of a bottle: a *RawStream or a nested *Bottle.
type Stream interface {
	// Done is closed once the sub-stream is exhausted or has failed.
	Done() <-chan struct{}
	// Err is the failure that closed Done, or nil.
	Err() error

	isStream()
}

// completion is a one-shot signal resolved exactly once.
type completion struct {
	once sync.Once
	ch   chan struct{}
	err  error
}

func newCompletion() *completion {
	return &completion{ch: make(chan struct{})}
}

func (c *completion) resolve(err error) {
	c.once.Do(func() {
		c.err = err
		close(c.ch)
	})
}

func (c *completion) resolved() bool {
	select {
	case <-c.ch:
		return true
	default:
		return false
	}
}

// RawStream is a sub-stream of plain bytes. On the write side it wraps the
// caller's reader; on the read side it wraps a frame decoder positioned on
// the shared source.
type RawStream struct {
	r    io.Reader
	dec  *frame.Decoder
	done *completion
	n    int64
}

// Raw wraps r as a raw sub-stream for writing. Each Read of r becomes one
// frame; wrap r in buffered.NewReader to coalesce small reads.
func Raw(r io.Reader) *RawStream {
	return &RawStream{r: r, done: newCompletion()}
}

func newDecodedStream(dec *frame.Decoder) *RawStream {
	return &RawStream{r: dec, dec: dec, done: newCompletion()}
}

// Read delivers the sub-stream's bytes. io.EOF resolves Done.
func (s *RawStream) Read(p []byte) (int, error) {
	if s.done.resolved() {
		if s.done.err != nil {
			return 0, s.done.err
		}
		return 0, io.EOF
	}
	n, err := s.r.Read(p)
	s.n += int64(n)
	switch {
	case err == io.EOF:
		if s.dec != nil {
			observability.RecordFrames(observability.DirectionRead, s.dec.Frames(), s.dec.Bytes())
		}
		s.done.resolve(nil)
	case err != nil:
		s.done.resolve(err)
	}
	return n, err
}

// Len is the number of bytes delivered so far.
func (s *RawStream) Len() int64 {
	return s.n
}

// Frames is the number of frames decoded so far, or 0 on the write side.
func (s *RawStream) Frames() int64 {
	if s.dec == nil {
		return 0
	}
	return s.dec.Frames()
}

// Close abandons a write-side stream: Done resolves with ErrAbandoned if the
// stream had not ended, and the wrapped reader is closed when it is an
// io.Closer. It is a no-op on the read side.
func (s *RawStream) Close() error {
	if s.dec != nil {
		return nil
	}
	s.done.resolve(fmt.Errorf("%w: raw stream closed", ErrAbandoned))
	if c, ok := s.r.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

func (s *RawStream) Done() <-chan struct{} {
	return s.done.ch
}

func (s *RawStream) Err() error {
	if !s.done.resolved() {
		return nil
	}
	return s.done.err
}

func (*RawStream) isStream() {}
