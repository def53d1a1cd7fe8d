// Package inspect walks a bottle tree and describes its structure.
package inspect

import (
	"context"
	"errors"
	"fmt"
	"io"

	"filippo.io/age"

	"github.com/danmuck/bottle/internal/bottle"
	"github.com/danmuck/bottle/internal/compressed"
	"github.com/danmuck/bottle/internal/encrypted"
	"github.com/danmuck/bottle/internal/protocol"
	"github.com/danmuck/bottle/internal/protocol/header"
	"github.com/danmuck/bottle/internal/signed"
)

const (
	KindBottle = "bottle"
	KindRaw    = "raw"
)

// Field is one header field in printable form. Value is a uint64, a string,
// or true for a flag.
type Field struct {
	Type  string `json:"type" yaml:"type" cbor:"type"`
	ID    uint8  `json:"id" yaml:"id" cbor:"id"`
	Value any    `json:"value" yaml:"value" cbor:"value"`
}

// Node describes a bottle or a raw sub-stream.
type Node struct {
	Kind     string  `json:"kind" yaml:"kind" cbor:"kind"`
	Type     string  `json:"type,omitempty" yaml:"type,omitempty" cbor:"type,omitempty"`
	Header   []Field `json:"header,omitempty" yaml:"header,omitempty" cbor:"header,omitempty"`
	Bytes    int64   `json:"bytes,omitempty" yaml:"bytes,omitempty" cbor:"bytes,omitempty"`
	Frames   int64   `json:"frames,omitempty" yaml:"frames,omitempty" cbor:"frames,omitempty"`
	Verified string  `json:"verified,omitempty" yaml:"verified,omitempty" cbor:"verified,omitempty"`
	Children []*Node `json:"children,omitempty" yaml:"children,omitempty" cbor:"children,omitempty"`
}

// Options controls whether envelopes are opened during a walk. With Expand
// unset, compressed, encrypted and signed bottles are shown as their raw
// sub-streams.
type Options struct {
	Expand     bool
	Identities []age.Identity
	Verify     signed.VerifyOptions
}

// Walk drains b and every sub-stream under it, returning their description.
func Walk(ctx context.Context, b *bottle.Bottle, opts Options) (*Node, error) {
	node := &Node{Kind: KindBottle, Type: b.Type().String(), Header: fields(b.Header())}
	if opts.Expand {
		handled, err := walkEnvelope(ctx, b, node, opts)
		if handled || err != nil {
			return node, err
		}
	}
	for {
		s, err := b.Next(ctx)
		if errors.Is(err, io.EOF) {
			return node, nil
		}
		if err != nil {
			return node, err
		}
		child, err := walkStream(ctx, s, opts)
		if child != nil {
			node.Children = append(node.Children, child)
		}
		if err != nil {
			return node, err
		}
	}
}

func walkStream(ctx context.Context, s bottle.Stream, opts Options) (*Node, error) {
	switch s := s.(type) {
	case *bottle.RawStream:
		n, err := io.Copy(io.Discard, s)
		return &Node{Kind: KindRaw, Bytes: n, Frames: s.Frames()}, err
	case *bottle.Bottle:
		return Walk(ctx, s, opts)
	default:
		return nil, fmt.Errorf("inspect: unknown stream %T", s)
	}
}

// walkEnvelope opens b if it is an envelope type it knows how to open. It
// reports false when b should be walked as a plain bottle instead.
func walkEnvelope(ctx context.Context, b *bottle.Bottle, node *Node, opts Options) (bool, error) {
	switch b.Type() {
	case protocol.TypeCompressed:
		env, err := compressed.Read(ctx, b)
		if err != nil {
			return true, err
		}
		return true, walkInner(ctx, env.Inner, node, opts, func() error { return env.Close(ctx) })
	case protocol.TypeEncrypted:
		if len(opts.Identities) == 0 {
			return false, nil
		}
		env, err := encrypted.Read(ctx, b, opts.Identities...)
		if err != nil {
			return true, err
		}
		return true, walkInner(ctx, env.Inner, node, opts, func() error { return env.Close(ctx) })
	case protocol.TypeSigned:
		vb, err := signed.Read(ctx, b, opts.Verify)
		if err != nil {
			return true, err
		}
		return true, walkInner(ctx, vb.Inner, node, opts, func() error {
			v, err := vb.Verify(ctx)
			if err != nil {
				return err
			}
			node.Verified = v.String()
			return nil
		})
	default:
		return false, nil
	}
}

func walkInner(ctx context.Context, inner *bottle.Bottle, node *Node, opts Options, finish func() error) error {
	child, err := Walk(ctx, inner, opts)
	node.Children = append(node.Children, child)
	if err != nil {
		return err
	}
	return finish()
}

func fields(h *header.Header) []Field {
	if h == nil {
		return nil
	}
	out := make([]Field, 0, len(h.Fields))
	for _, f := range h.Fields {
		pf := Field{Type: f.Type.String(), ID: f.ID}
		switch f.Type {
		case header.TypeFlag:
			pf.Value = true
		case header.TypeString:
			pf.Value = f.Str
		default:
			pf.Value = f.Int
		}
		out = append(out, pf)
	}
	return out
}
