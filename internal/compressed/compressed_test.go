package compressed

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/danmuck/bottle/internal/bottle"
	"github.com/danmuck/bottle/internal/protocol"
	"github.com/danmuck/bottle/internal/protocol/header"
	"github.com/danmuck/bottle/internal/testutil/testlog"
)

func serialize(t *testing.T, b *bottle.Bottle) []byte {
	t.Helper()
	var buf bytes.Buffer
	if _, err := b.WriteTo(&buf); err != nil {
		t.Fatalf("write: %v", err)
	}
	return buf.Bytes()
}

func TestRoundTripEachMethod(t *testing.T) {
	testlog.Start(t)
	payload := strings.Repeat("the quick brown fox jumps over the lazy dog. ", 5000)
	for _, m := range []Method{Snappy, Zstd, LZ4} {
		t.Run(m.String(), func(t *testing.T) {
			ctx := context.Background()
			inner := bottle.New(protocol.TypeFile, header.New().AddString(0, "fox.txt"), bottle.Raw(strings.NewReader(payload)))
			b, err := Write(inner.Encoder(0), m)
			if err != nil {
				t.Fatalf("write: %v", err)
			}
			data := serialize(t, b)
			if len(data) >= len(payload) {
				t.Fatalf("expected compression, got %d bytes for %d", len(data), len(payload))
			}

			outer, err := bottle.Read(bytes.NewReader(data))
			if err != nil {
				t.Fatalf("read: %v", err)
			}
			env, err := Read(ctx, outer)
			if err != nil {
				t.Fatalf("open: %v", err)
			}
			if name, _ := env.Inner.Header().GetString(0); name != "fox.txt" {
				t.Fatalf("unexpected inner header %s", env.Inner.Header())
			}
			raw, err := env.Inner.NextRaw(ctx)
			if err != nil {
				t.Fatalf("inner raw: %v", err)
			}
			got, err := io.ReadAll(raw)
			if err != nil {
				t.Fatalf("read payload: %v", err)
			}
			if string(got) != payload {
				t.Fatalf("payload mismatch: %d bytes", len(got))
			}
			if err := env.Inner.End(ctx); err != nil {
				t.Fatalf("inner end: %v", err)
			}
			if err := env.Close(ctx); err != nil {
				t.Fatalf("close: %v", err)
			}
		})
	}
}

func TestWriteHeader(t *testing.T) {
	testlog.Start(t)
	b, err := Write(strings.NewReader(""), LZ4)
	if err != nil {
		t.Fatalf("write: %v", err)
	}
	if v, ok := b.Header().GetUint(fieldMethod); !ok || Method(v) != LZ4 {
		t.Fatalf("unexpected header %s", b.Header())
	}
}

func TestWriteRejectsUnknownMethod(t *testing.T) {
	testlog.Start(t)
	if _, err := Write(strings.NewReader(""), Method(7)); !errors.Is(err, protocol.ErrConfiguration) {
		t.Fatalf("expected ErrConfiguration, got %v", err)
	}
}

func TestReadRejectsUnknownMethod(t *testing.T) {
	testlog.Start(t)
	// 256 and 257 are stored as U16 and must not wrap onto Snappy or Zstd.
	for _, v := range []uint64{7, 256, 257} {
		b := bottle.Seal(protocol.TypeCompressed, header.New().AddUint(fieldMethod, v), strings.NewReader("x"))
		outer, err := bottle.Read(bytes.NewReader(serialize(t, b)))
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		if _, err := Read(context.Background(), outer); !errors.Is(err, protocol.ErrViolation) {
			t.Fatalf("method %d: expected ErrViolation, got %v", v, err)
		}
	}
}

func TestReadRequiresMethod(t *testing.T) {
	testlog.Start(t)
	b := bottle.Seal(protocol.TypeCompressed, nil, strings.NewReader("x"))
	outer, err := bottle.Read(bytes.NewReader(serialize(t, b)))
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var missing header.MissingFieldError
	if _, err := Read(context.Background(), outer); !errors.As(err, &missing) {
		t.Fatalf("expected MissingFieldError, got %v", err)
	}
}

func TestReadRejectsWrongType(t *testing.T) {
	testlog.Start(t)
	outer, err := bottle.Read(bytes.NewReader(serialize(t, bottle.New(protocol.TypeFile, nil))))
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if _, err := Read(context.Background(), outer); !errors.Is(err, protocol.ErrViolation) {
		t.Fatalf("expected ErrViolation, got %v", err)
	}
}

func TestReadCorruptBody(t *testing.T) {
	testlog.Start(t)
	b := bottle.Seal(protocol.TypeCompressed, header.New().AddUint(fieldMethod, uint64(Zstd)), strings.NewReader("definitely not zstd"))
	outer, err := bottle.Read(bytes.NewReader(serialize(t, b)))
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if _, err := Read(context.Background(), outer); err == nil {
		t.Fatalf("expected corrupt body to fail")
	}
	if outer.State() != bottle.StateFailed {
		t.Fatalf("expected outer bottle failed, got %s", outer.State())
	}
}

func TestParseMethod(t *testing.T) {
	for in, want := range map[string]Method{"snappy": Snappy, "ZSTD": Zstd, "": Zstd, "lz4": LZ4} {
		got, err := ParseMethod(in)
		if err != nil || got != want {
			t.Fatalf("ParseMethod(%q) = %s, %v", in, got, err)
		}
	}
	if _, err := ParseMethod("brotli"); !errors.Is(err, protocol.ErrConfiguration) {
		t.Fatalf("expected ErrConfiguration, got %v", err)
	}
}
