// Package compressed carries a serialized bottle through a compressor. The
// outer bottle holds one raw sub-stream: the compressed inner bottle.
package compressed

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/klauspost/compress/s2"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"

	"github.com/danmuck/bottle/internal/bottle"
	"github.com/danmuck/bottle/internal/protocol"
	"github.com/danmuck/bottle/internal/protocol/header"
)

// Method is the compression algorithm, stored as U8(0) in the header.
// Snappy streams use the snappy framing format, written by s2 in its
// snappy-compatible mode.
type Method uint8

const (
	Snappy Method = iota
	Zstd
	LZ4
)

const fieldMethod = 0

var Schema = header.Schema{
	Name: "compressed",
	Fields: []header.FieldSpec{
		{ID: fieldMethod, Type: header.TypeU8, Required: true},
	},
}

func (m Method) String() string {
	switch m {
	case Snappy:
		return "snappy"
	case Zstd:
		return "zstd"
	case LZ4:
		return "lz4"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(m))
	}
}

func ParseMethod(name string) (Method, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "snappy":
		return Snappy, nil
	case "zstd", "":
		return Zstd, nil
	case "lz4":
		return LZ4, nil
	default:
		return 0, protocol.Configf("compressed: unknown method %q", name)
	}
}

func (m Method) writer(w io.Writer) (io.WriteCloser, error) {
	switch m {
	case Snappy:
		return s2.NewWriter(w, s2.WriterSnappyCompat()), nil
	case Zstd:
		return zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.SpeedDefault))
	case LZ4:
		return lz4.NewWriter(w), nil
	default:
		return nil, protocol.Configf("compressed: unknown method %d", uint8(m))
	}
}

func (m Method) reader(r io.Reader) (io.Reader, error) {
	switch m {
	case Snappy:
		return s2.NewReader(r), nil
	case Zstd:
		d, err := zstd.NewReader(r, zstd.WithDecoderConcurrency(1))
		if err != nil {
			return nil, err
		}
		return d.IOReadCloser(), nil
	case LZ4:
		return lz4.NewReader(r), nil
	default:
		return nil, protocol.Violationf("compressed: unknown method %d", uint8(m))
	}
}

// Write compresses r, a serialized bottle, into a compressed bottle.
// Compression runs on a goroutine once the bottle is encoded.
func Write(r io.Reader, method Method) (*bottle.Bottle, error) {
	if method > LZ4 {
		return nil, protocol.Configf("compressed: unknown method %d", uint8(method))
	}
	hdr := header.New().AddUint(fieldMethod, uint64(method))
	return bottle.Seal(protocol.TypeCompressed, hdr, bottle.Transform(r, method.writer)), nil
}

// Read opens a compressed bottle. The returned envelope's Inner is parsed
// from the decompressed stream; Close the envelope once Inner is consumed.
func Read(ctx context.Context, b *bottle.Bottle) (*bottle.Envelope, error) {
	if b.Type() != protocol.TypeCompressed {
		return nil, protocol.Violationf("compressed: expected %s bottle, got %s", protocol.TypeCompressed, b.Type())
	}
	if err := Schema.Validate(b.Header()); err != nil {
		return nil, err
	}
	v, _ := b.Header().GetUint(fieldMethod)
	if v > uint64(LZ4) {
		return nil, protocol.Violationf("compressed: unknown method %d", v)
	}
	method := Method(v)
	return bottle.Open(ctx, b, protocol.TypeCompressed, method.reader)
}
