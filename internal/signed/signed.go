// Package signed builds and checks bottles whose payload is hashed, and
// optionally signed, as it streams.
//
// A signed bottle has two raw sub-streams: the serialized inner bottle, then
// its digest (or a signature blob wrapping the digest). The digest stream is
// unreachable until the payload has drained, so a reader always has the
// recomputed digest in hand by the time the stored one arrives.
package signed

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/danmuck/bottle/internal/bottle"
	"github.com/danmuck/bottle/internal/observability"
	"github.com/danmuck/bottle/internal/protocol"
	"github.com/danmuck/bottle/internal/protocol/header"
)

const (
	fieldHashMethod = 0
	fieldSignedBy   = 0
)

// Schema describes the header of a signed bottle.
var Schema = header.Schema{
	Name: "signed",
	Fields: []header.FieldSpec{
		{ID: fieldHashMethod, Type: header.TypeU8},
		{ID: fieldSignedBy, Type: header.TypeString},
	},
}

// Signer turns a digest into a signed blob that contains it.
type Signer func(digest []byte) ([]byte, error)

// Verifier checks a signed blob from signedBy and returns the digest inside
// it, or fails.
type Verifier func(blob []byte, signedBy string) ([]byte, error)

type SignOptions struct {
	Hash     Method
	SignedBy string
	Signer   Signer
}

type VerifyOptions struct {
	Verifier Verifier
}

// Status is the outcome of checking a signed bottle.
type Status int

const (
	StatusOK Status = iota
	StatusBadHash
	StatusUnverified
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "OK"
	case StatusBadHash:
		return "BAD_HASH"
	case StatusUnverified:
		return "UNVERIFIED"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// Verified reports whether a signed bottle checked out. SignedBy is the
// recorded signer, if any; Reason explains any status other than OK.
type Verified struct {
	Status   Status
	SignedBy string
	Reason   string
}

func (v Verified) String() string {
	if v.Reason == "" {
		return v.Status.String()
	}
	return v.Status.String() + ": " + v.Reason
}

// Write wraps r, a serialized bottle, in a signed bottle. The digest is
// computed while r streams out; the signer, if any, runs once r is drained.
func Write(r io.Reader, opts SignOptions) (*bottle.Bottle, error) {
	h, err := opts.Hash.New()
	if err != nil {
		return nil, err
	}
	hdr := header.New().AddUint(fieldHashMethod, uint64(opts.Hash))
	if opts.SignedBy != "" {
		hdr.AddString(fieldSignedBy, opts.SignedBy)
	}

	tee := NewTee(r, h)
	step := 0
	return bottle.Generate(protocol.TypeSigned, hdr, func() (bottle.Stream, error) {
		step++
		switch step {
		case 1:
			return bottle.Raw(tee), nil
		case 2:
			digest, err := tee.Digest(context.Background())
			if err != nil {
				return nil, err
			}
			blob := digest
			if opts.Signer != nil {
				if blob, err = opts.Signer(digest); err != nil {
					return nil, fmt.Errorf("signed: sign digest: %w", err)
				}
			}
			log.Debug().Stringer("method", opts.Hash).Int64("bytes", tee.Len()).Hex("digest", digest).Msg("signed payload")
			return bottle.Raw(bytes.NewReader(blob)), nil
		default:
			return nil, io.EOF
		}
	}), nil
}

// VerifiedBottle is an opened signed bottle. Inner is returned before any of
// it has been read; Verify resolves once it has been consumed.
type VerifiedBottle struct {
	Method   Method
	SignedBy string
	Inner    *bottle.Bottle

	env  *bottle.Envelope
	tee  *Tee
	opts VerifyOptions

	once     sync.Once
	verified Verified
	err      error
}

// Read opens a signed bottle. The payload is hashed as Inner is read.
func Read(ctx context.Context, b *bottle.Bottle, opts VerifyOptions) (*VerifiedBottle, error) {
	if b.Type() != protocol.TypeSigned {
		return nil, protocol.Violationf("signed: expected %s bottle, got %s", protocol.TypeSigned, b.Type())
	}
	method := SHA256
	if v, ok := b.Header().GetUint(fieldHashMethod); ok {
		if v > uint64(BLAKE3) {
			return nil, protocol.Violationf("signed: unknown hash method %d", v)
		}
		method = Method(v)
	}
	h, err := method.New()
	if err != nil {
		return nil, protocol.Violationf("signed: unknown hash method %d", uint8(method))
	}
	signedBy, _ := b.Header().GetString(fieldSignedBy)

	vb := &VerifiedBottle{Method: method, SignedBy: signedBy, opts: opts}
	env, err := bottle.Open(ctx, b, protocol.TypeSigned, func(raw io.Reader) (io.Reader, error) {
		vb.tee = NewTee(raw, h)
		return vb.tee, nil
	})
	if err != nil {
		return nil, err
	}
	vb.env = env
	vb.Inner = env.Inner
	return vb, nil
}

// Verify waits for Inner to be consumed, reads the stored digest and checks
// it. Errors are reserved for a broken stream; a digest or signature that
// doesn't check out is reported in the returned Verified. The result is
// computed once.
func (vb *VerifiedBottle) Verify(ctx context.Context) (Verified, error) {
	vb.once.Do(func() {
		vb.verified, vb.err = vb.verify(ctx)
		if vb.err == nil {
			observability.RecordVerification(vb.Method.String(), vb.verified.Status.String())
			log.Debug().Stringer("method", vb.Method).Str("signed_by", vb.SignedBy).Stringer("verified", vb.verified).Msg("signed bottle checked")
		}
	})
	return vb.verified, vb.err
}

func (vb *VerifiedBottle) verify(ctx context.Context) (Verified, error) {
	if err := vb.env.Drain(ctx); err != nil {
		return Verified{}, err
	}
	digest, err := vb.tee.Digest(ctx)
	if err != nil {
		return Verified{}, err
	}
	outer := vb.env.Outer
	raw, err := outer.NextRaw(ctx)
	if err != nil {
		return Verified{}, err
	}
	stored, err := io.ReadAll(raw)
	if err != nil {
		return Verified{}, err
	}
	if err := outer.End(ctx); err != nil {
		return Verified{}, err
	}

	if vb.SignedBy != "" {
		if vb.opts.Verifier == nil {
			return Verified{Status: StatusUnverified, SignedBy: vb.SignedBy, Reason: "no verifier"}, nil
		}
		stored, err = vb.opts.Verifier(stored, vb.SignedBy)
		if err != nil {
			return Verified{Status: StatusUnverified, SignedBy: vb.SignedBy, Reason: err.Error()}, nil
		}
	}
	if !bytes.Equal(digest, stored) {
		return Verified{
			Status:   StatusBadHash,
			SignedBy: vb.SignedBy,
			Reason:   fmt.Sprintf("expected %x, got %x", digest, stored),
		}, nil
	}
	return Verified{Status: StatusOK, SignedBy: vb.SignedBy}, nil
}
