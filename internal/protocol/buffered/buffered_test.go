package buffered

import (
	"bytes"
	"encoding/hex"
	"io"
	"testing"

	"github.com/danmuck/bottle/internal/protocol/frame"
)

type chunkReader struct {
	chunks []string
}

func (c *chunkReader) Read(p []byte) (int, error) {
	if len(c.chunks) == 0 {
		return 0, io.EOF
	}
	n := copy(p, c.chunks[0])
	c.chunks[0] = c.chunks[0][n:]
	if len(c.chunks[0]) == 0 {
		c.chunks = c.chunks[1:]
	}
	return n, nil
}

func TestBufferedCoalescesIntoOneFrame(t *testing.T) {
	in := &chunkReader{chunks: []string{"he", "ll", "o sai", "lor"}}
	out, err := io.ReadAll(frame.NewEncoder(NewReader(in, 0), 0))
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if got := hex.EncodeToString(out); got != "0c68656c6c6f207361696c6f7200" {
		t.Fatalf("unexpected encoding %s", got)
	}
}

func TestBufferedBlocks(t *testing.T) {
	data := bytes.Repeat([]byte("abc"), 100)
	r := NewReader(bytes.NewReader(data), 128)
	var sizes []int
	buf := make([]byte, 1024)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			sizes = append(sizes, n)
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("read: %v", err)
		}
	}
	if len(sizes) != 3 || sizes[0] != 128 || sizes[1] != 128 || sizes[2] != 44 {
		t.Fatalf("unexpected block sizes %v", sizes)
	}
}
