package bottlecap

import (
	"bytes"
	"encoding/hex"
	"errors"
	"testing"

	"github.com/danmuck/bottle/internal/protocol"
	"github.com/danmuck/bottle/internal/protocol/header"
	"github.com/danmuck/bottle/internal/protocol/source"
)

func read(t *testing.T, s string) (*Cap, error) {
	t.Helper()
	b, err := hex.DecodeString(s)
	if err != nil {
		t.Fatalf("bad hex: %v", err)
	}
	return Read(source.New(bytes.NewReader(b)))
}

func TestEncodeKnownVectors(t *testing.T) {
	h := header.New()
	if err := h.AddInt(0, 150); err != nil {
		t.Fatalf("add int: %v", err)
	}
	cases := []struct {
		cap  *Cap
		want string
	}{
		{New(14, nil), "f09f8dbc000000e09dcdda54"},
		{New(10, nil), "f09f8dbc000000a00d8c0622"},
		{New(10, h), "f09f8dbc000002a00096457f1ca3"},
	}
	for _, tc := range cases {
		b, err := tc.cap.Encode()
		if err != nil {
			t.Fatalf("encode %s: %v", tc.cap, err)
		}
		if got := hex.EncodeToString(b); got != tc.want {
			t.Fatalf("encode %s: got %s want %s", tc.cap, got, tc.want)
		}
	}
}

func TestReadHeader(t *testing.T) {
	c, err := read(t, "f09f8dbc000000c055edb46f")
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if c.Type != 12 || c.Header.String() != "Header()" {
		t.Fatalf("unexpected cap %s", c)
	}

	c, err = read(t, "f09f8dbc000002a00096457f1ca3")
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if v, ok := c.Header.GetInt(0); c.Type != 10 || !ok || v != 150 {
		t.Fatalf("unexpected cap %s", c)
	}
}

func TestReadValidation(t *testing.T) {
	cases := []struct {
		in   string
		want error
	}{
		{"00", protocol.ErrTruncated},
		{"00ff00ff00ff00ffcccccccc", ErrBadMagic},
		{"f09f8dbcff000000cccccccc", ErrUnsupportedVersion},
		{"f09f8dbc00ff0000cccccccc", ErrInvalidFlags},
		{"f09f8dbc000000c0cccccccc", ErrChecksumMismatch},
		{"f09f8dbc000002a00096", protocol.ErrTruncated},
	}
	for _, tc := range cases {
		_, err := read(t, tc.in)
		if !errors.Is(err, tc.want) {
			t.Fatalf("input %s: expected %v, got %v", tc.in, tc.want, err)
		}
	}
	_, err := read(t, "f09f8dbc000000c0cccccccc")
	if !errors.Is(err, protocol.ErrCapValidation) {
		t.Fatalf("expected checksum failure to be a cap validation error, got %v", err)
	}
}

func TestRoundTripLargeHeader(t *testing.T) {
	h := header.New()
	for i := uint8(0); i < 4; i++ {
		h.AddString(i, string(bytes.Repeat([]byte{'a' + i}, 200)))
	}
	c := New(protocol.TypeSigned, h)
	b, err := c.Encode()
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	out, err := Read(source.New(bytes.NewReader(b)))
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if out.Type != protocol.TypeSigned || out.Header.String() != h.String() {
		t.Fatalf("round trip mismatch: %s", out)
	}
}

func TestEncodeRejectsBadType(t *testing.T) {
	if _, err := New(16, nil).Encode(); !errors.Is(err, protocol.ErrConfiguration) {
		t.Fatalf("expected ErrConfiguration, got %v", err)
	}
}
