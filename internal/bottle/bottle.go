package bottle

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync/atomic"

	"github.com/rs/zerolog/log"

	"github.com/danmuck/bottle/internal/observability"
	"github.com/danmuck/bottle/internal/protocol"
	"github.com/danmuck/bottle/internal/protocol/bottlecap"
	"github.com/danmuck/bottle/internal/protocol/frame"
	"github.com/danmuck/bottle/internal/protocol/header"
	"github.com/danmuck/bottle/internal/protocol/source"
)

// ErrAbandoned marks a bottle whose reader gave up waiting on a sub-stream.
var ErrAbandoned = errors.New("bottle: abandoned")

// State is where a bottle is in its sub-stream sequence.
type State int

const (
	StateStreaming State = iota
	StateFinished
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateStreaming:
		return "streaming"
	case StateFinished:
		return "finished"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Producer yields the next sub-stream, or io.EOF when there are no more. It
// is only called once the previous sub-stream has completed.
type Producer func() (Stream, error)

var nextID atomic.Uint64

// Bottle is a cap plus a forward-only sequence of sub-streams. Next, the
// typed helpers and the Encoder must be driven from one goroutine at a time;
// the sub-stream they hand out may be drained from another.
type Bottle struct {
	Cap *bottlecap.Cap

	id      uint64
	produce Producer
	src     *source.Source
	count   int
	current Stream
	state   State
	err     error
	done    *completion
}

// New builds a bottle for writing from a fixed list of sub-streams.
func New(t protocol.Type, h *header.Header, streams ...Stream) *Bottle {
	i := 0
	return Generate(t, h, func() (Stream, error) {
		if i >= len(streams) {
			return nil, io.EOF
		}
		s := streams[i]
		i++
		return s, nil
	})
}

// Generate builds a bottle for writing whose sub-streams are produced on
// demand.
func Generate(t protocol.Type, h *header.Header, produce Producer) *Bottle {
	b := newBottle(bottlecap.New(t, h))
	b.produce = produce
	return b
}

// Read parses a cap from r and returns a bottle whose sub-streams are read
// lazily from the same cursor.
func Read(r io.Reader) (*Bottle, error) {
	src := source.New(r)
	c, err := bottlecap.Read(src)
	if err != nil {
		return nil, err
	}
	b := newBottle(c)
	b.src = src
	b.produce = b.readMarker
	observability.RecordBottle(observability.DirectionRead, c.Type.String())
	log.Debug().Uint64("bottle", b.id).Uint64("source", src.ID()).Stringer("cap", c).Msg("bottle opened")
	return b, nil
}

func newBottle(c *bottlecap.Cap) *Bottle {
	return &Bottle{Cap: c, id: nextID.Add(1), done: newCompletion()}
}

// Type is shorthand for b.Cap.Type.
func (b *Bottle) Type() protocol.Type {
	return b.Cap.Type
}

// Header is shorthand for b.Cap.Header.
func (b *Bottle) Header() *header.Header {
	return b.Cap.Header
}

// Count is the number of sub-streams handed out so far.
func (b *Bottle) Count() int {
	return b.count
}

func (b *Bottle) State() State {
	return b.state
}

// Done is closed once the sub-stream sequence is exhausted or has failed.
func (b *Bottle) Done() <-chan struct{} {
	return b.done.ch
}

// Err is the failure that ended the bottle, or nil.
func (b *Bottle) Err() error {
	if !b.done.resolved() {
		return nil
	}
	return b.done.err
}

func (*Bottle) isStream() {}

// Next returns the next sub-stream, or io.EOF after the last one. It first
// waits for the previously returned sub-stream to complete; see the package
// documentation for what happens if it never does.
func (b *Bottle) Next(ctx context.Context) (Stream, error) {
	switch b.state {
	case StateFinished:
		return nil, io.EOF
	case StateFailed:
		return nil, b.err
	}
	if b.current != nil {
		if err := b.await(ctx, b.current); err != nil {
			return nil, err
		}
		b.current = nil
	}

	s, err := b.produce()
	if errors.Is(err, io.EOF) {
		b.finish()
		return nil, io.EOF
	}
	if err != nil {
		b.fail(err)
		return nil, err
	}
	b.count++
	b.current = s
	observability.RecordStream(b.direction(), kindOf(s))
	return s, nil
}

// NextRaw returns the next sub-stream, which must be raw.
func (b *Bottle) NextRaw(ctx context.Context) (*RawStream, error) {
	s, err := b.Next(ctx)
	if errors.Is(err, io.EOF) {
		return nil, protocol.Violationf("bottle: expected raw stream, reached end")
	}
	if err != nil {
		return nil, err
	}
	raw, ok := s.(*RawStream)
	if !ok {
		return nil, b.fail(protocol.Violationf("bottle: expected raw stream, got nested bottle"))
	}
	return raw, nil
}

// NextBottle returns the next sub-stream, which must be a nested bottle.
func (b *Bottle) NextBottle(ctx context.Context) (*Bottle, error) {
	s, err := b.Next(ctx)
	if errors.Is(err, io.EOF) {
		return nil, protocol.Violationf("bottle: expected nested bottle, reached end")
	}
	if err != nil {
		return nil, err
	}
	nested, ok := s.(*Bottle)
	if !ok {
		return nil, b.fail(protocol.Violationf("bottle: expected nested bottle, got raw stream"))
	}
	return nested, nil
}

// End asserts that no sub-streams remain. Once the bottle has finished it
// keeps succeeding.
func (b *Bottle) End(ctx context.Context) error {
	s, err := b.Next(ctx)
	if errors.Is(err, io.EOF) {
		return nil
	}
	if err != nil {
		return err
	}
	return b.fail(protocol.Violationf("bottle: expected end of bottle, got %s stream #%d", kindOf(s), b.count))
}

// Discard drains s without looking at its contents: a raw stream is read to
// its end, a nested bottle has every sub-stream discarded recursively.
func Discard(ctx context.Context, s Stream) error {
	switch s := s.(type) {
	case *RawStream:
		_, err := io.Copy(io.Discard, s)
		return err
	case *Bottle:
		for {
			child, err := s.Next(ctx)
			if errors.Is(err, io.EOF) {
				return nil
			}
			if err != nil {
				return err
			}
			if err := Discard(ctx, child); err != nil {
				return err
			}
		}
	default:
		return fmt.Errorf("bottle: unknown stream %T", s)
	}
}

func (b *Bottle) await(ctx context.Context, s Stream) error {
	select {
	case <-s.Done():
		if err := s.Err(); err != nil {
			return b.fail(err)
		}
		return nil
	default:
	}
	log.Trace().Uint64("bottle", b.id).Int("stream", b.count).Msg("waiting for sub-stream to drain")
	select {
	case <-s.Done():
		if err := s.Err(); err != nil {
			return b.fail(err)
		}
		return nil
	case <-ctx.Done():
		return b.fail(fmt.Errorf("%w: sub-stream %d never drained: %w", ErrAbandoned, b.count, ctx.Err()))
	}
}

func (b *Bottle) readMarker() (Stream, error) {
	offset := b.src.BytesRead()
	marker, err := b.src.ReadByte()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, protocol.Truncatedf("bottle: missing marker at position %d", offset)
		}
		return nil, err
	}
	switch marker {
	case protocol.MarkerRaw:
		return newDecodedStream(frame.NewDecoder(b.src)), nil
	case protocol.MarkerBottle:
		nested, err := Read(b.src)
		if err != nil {
			return nil, err
		}
		return nested, nil
	case protocol.MarkerEnd:
		return nil, io.EOF
	default:
		return nil, &protocol.StrayByteError{Byte: marker, Offset: offset}
	}
}

func (b *Bottle) finish() {
	b.state = StateFinished
	b.done.resolve(nil)
	log.Debug().Uint64("bottle", b.id).Int("streams", b.count).Msg("bottle finished")
}

// fail moves the bottle to StateFailed. Finished and Failed are terminal.
func (b *Bottle) fail(err error) error {
	switch b.state {
	case StateFailed:
		return b.err
	case StateFinished:
		return err
	}
	b.state = StateFailed
	b.err = err
	b.done.resolve(err)
	log.Debug().Uint64("bottle", b.id).Err(err).Msg("bottle failed")
	return err
}

func (b *Bottle) direction() string {
	if b.src != nil {
		return observability.DirectionRead
	}
	return observability.DirectionWrite
}

func (b *Bottle) String() string {
	return fmt.Sprintf("Bottle[%d](%s, read=%d, %s)", b.id, b.Cap, b.count, b.state)
}

func kindOf(s Stream) string {
	if _, ok := s.(*Bottle); ok {
		return "bottle"
	}
	return "raw"
}
