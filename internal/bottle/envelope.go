package bottle

import (
	"context"
	"fmt"
	"io"

	"github.com/danmuck/bottle/internal/protocol"
	"github.com/danmuck/bottle/internal/protocol/header"
	"github.com/danmuck/bottle/internal/protocol/source"
)

// Envelope is an outer bottle whose single raw sub-stream carries another
// serialized bottle, usually after some transform (decompression,
// decryption).
type Envelope struct {
	Outer *Bottle
	Inner *Bottle

	raw    *RawStream
	body   *source.Source
	closer io.Closer
}

// Seal builds an envelope for writing around body, the already-transformed
// serialized inner bottle.
func Seal(t protocol.Type, h *header.Header, body io.Reader) *Bottle {
	return New(t, h, Raw(body))
}

// Unwrapper turns the raw sub-stream of an envelope back into the inner
// bottle's bytes. If the returned reader is also an io.Closer it is closed
// once the envelope is drained.
type Unwrapper func(raw io.Reader) (io.Reader, error)

// Open checks outer's type, takes its raw sub-stream, unwraps it and parses
// the inner bottle. The inner bottle is returned before any of its
// sub-streams have been read.
func Open(ctx context.Context, outer *Bottle, want protocol.Type, unwrap Unwrapper) (*Envelope, error) {
	if outer.Type() != want {
		return nil, protocol.Violationf("bottle: expected %s bottle, got %s", want, outer.Type())
	}
	raw, err := outer.NextRaw(ctx)
	if err != nil {
		return nil, err
	}
	var body io.Reader = raw
	if unwrap != nil {
		body, err = unwrap(raw)
		if err != nil {
			return nil, outer.fail(fmt.Errorf("bottle: unwrap %s: %w", want, err))
		}
	}
	env := &Envelope{Outer: outer, raw: raw, body: source.New(body)}
	if c, ok := body.(io.Closer); ok && unwrap != nil {
		env.closer = c
	}
	inner, err := Read(env.body)
	if err != nil {
		env.close()
		return nil, outer.fail(err)
	}
	env.Inner = inner
	return env, nil
}

// Close completes the envelope once Inner has been consumed. The outer bottle
// must have no further sub-streams.
func (e *Envelope) Close(ctx context.Context) error {
	if err := e.Drain(ctx); err != nil {
		return err
	}
	return e.Outer.End(ctx)
}

// Drain waits for Inner to finish, then consumes the rest of the unwrapped
// body and the raw sub-stream under it. Bytes left in the body after the
// inner bottle's end marker are a protocol violation. The outer bottle is
// left positioned after its first sub-stream.
func (e *Envelope) Drain(ctx context.Context) error {
	select {
	case <-e.Inner.Done():
		if err := e.Inner.Err(); err != nil {
			e.close()
			return e.Outer.fail(err)
		}
	case <-ctx.Done():
		e.close()
		return e.Outer.fail(fmt.Errorf("%w: inner bottle never drained: %w", ErrAbandoned, ctx.Err()))
	}
	trailing, err := io.Copy(io.Discard, e.body)
	e.close()
	if err != nil {
		return e.Outer.fail(err)
	}
	if trailing > 0 {
		return e.Outer.fail(protocol.Violationf("bottle: %d bytes of trailing data after %s payload", trailing, e.Outer.Type()))
	}
	if _, err := io.Copy(io.Discard, e.raw); err != nil {
		return e.Outer.fail(err)
	}
	return nil
}

func (e *Envelope) close() {
	if e.closer != nil {
		e.closer.Close()
		e.closer = nil
	}
}
