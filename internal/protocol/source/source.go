// Package source is the pull-based byte source every bottle reader shares.
//
// A bottle tree is parsed from a single forward-only cursor: nested bottles
// and raw sub-streams all read from the same Source, so the position reported
// by BytesRead is the position in the outermost byte stream.
package source

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"sync/atomic"

	"github.com/danmuck/bottle/internal/protocol"
)

const defaultBufferSize = 64 * 1024

var nextID atomic.Uint64

// Source reads from an underlying io.Reader and counts consumed bytes.
type Source struct {
	id   uint64
	r    *bufio.Reader
	read int64
}

// New wraps r. If r is already a *Source it is returned unchanged so nested
// parsers keep sharing one cursor.
func New(r io.Reader) *Source {
	if s, ok := r.(*Source); ok {
		return s
	}
	return &Source{
		id: nextID.Add(1),
		r:  bufio.NewReaderSize(r, defaultBufferSize),
	}
}

// ID is a diagnostic name for log lines. It carries no protocol meaning.
func (s *Source) ID() uint64 {
	return s.id
}

// BytesRead is the number of bytes consumed so far.
func (s *Source) BytesRead() int64 {
	return s.read
}

// Read returns up to len(p) bytes; io.EOF at end of input.
func (s *Source) Read(p []byte) (int, error) {
	n, err := s.r.Read(p)
	s.read += int64(n)
	return n, err
}

// ReadByte returns the next byte or io.EOF.
func (s *Source) ReadByte() (byte, error) {
	b, err := s.r.ReadByte()
	if err != nil {
		return 0, err
	}
	s.read++
	return b, nil
}

// ReadFull reads exactly len(p) bytes. Running out of input part way is
// reported as truncation naming what was being read.
func (s *Source) ReadFull(p []byte, what string) error {
	n, err := io.ReadFull(s.r, p)
	s.read += int64(n)
	if err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return protocol.Truncatedf("%s: wanted %d bytes, got %d at position %d", what, len(p), n, s.read)
		}
		return fmt.Errorf("source: read %s: %w", what, err)
	}
	return nil
}

func (s *Source) String() string {
	return fmt.Sprintf("Source[%d](read=%d)", s.id, s.read)
}
