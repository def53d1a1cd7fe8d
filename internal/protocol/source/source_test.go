package source

import (
	"bytes"
	"errors"
	"io"
	"testing"

	"github.com/danmuck/bottle/internal/protocol"
)

func TestSourceCountsBytes(t *testing.T) {
	s := New(bytes.NewReader([]byte("hello world")))
	b, err := s.ReadByte()
	if err != nil || b != 'h' {
		t.Fatalf("read byte: %q %v", b, err)
	}
	buf := make([]byte, 4)
	if err := s.ReadFull(buf, "test"); err != nil {
		t.Fatalf("read full: %v", err)
	}
	if string(buf) != "ello" {
		t.Fatalf("unexpected bytes %q", buf)
	}
	if s.BytesRead() != 5 {
		t.Fatalf("expected 5 bytes read, got %d", s.BytesRead())
	}
	rest, err := io.ReadAll(s)
	if err != nil {
		t.Fatalf("read all: %v", err)
	}
	if string(rest) != " world" || s.BytesRead() != 11 {
		t.Fatalf("unexpected tail %q at %d", rest, s.BytesRead())
	}
}

func TestSourceReadFullTruncated(t *testing.T) {
	s := New(bytes.NewReader([]byte{1, 2}))
	err := s.ReadFull(make([]byte, 3), "payload")
	if !errors.Is(err, protocol.ErrTruncated) {
		t.Fatalf("expected ErrTruncated, got %v", err)
	}
}

func TestNewReusesSource(t *testing.T) {
	s := New(bytes.NewReader(nil))
	if New(s) != s {
		t.Fatalf("expected wrapping a source to return it unchanged")
	}
}
