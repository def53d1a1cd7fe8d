package signed

import (
	"context"
	"hash"
	"io"
	"sync"
)

// Tee passes a reader through unchanged while hashing every byte. The digest
// is available once the wrapped reader reports io.EOF.
type Tee struct {
	r io.Reader
	h hash.Hash
	n int64

	once sync.Once
	done chan struct{}
	sum  []byte
	err  error
}

func NewTee(r io.Reader, h hash.Hash) *Tee {
	return &Tee{r: r, h: h, done: make(chan struct{})}
}

func (t *Tee) Read(p []byte) (int, error) {
	select {
	case <-t.done:
		if t.err != nil {
			return 0, t.err
		}
		return 0, io.EOF
	default:
	}
	n, err := t.r.Read(p)
	if n > 0 {
		t.h.Write(p[:n])
		t.n += int64(n)
	}
	switch {
	case err == io.EOF:
		t.resolve(t.h.Sum(nil), nil)
	case err != nil:
		t.resolve(nil, err)
	}
	return n, err
}

func (t *Tee) resolve(sum []byte, err error) {
	t.once.Do(func() {
		t.sum = sum
		t.err = err
		close(t.done)
	})
}

// Len is the number of bytes passed through so far.
func (t *Tee) Len() int64 {
	return t.n
}

// Done is closed once the wrapped reader is exhausted or has failed.
func (t *Tee) Done() <-chan struct{} {
	return t.done
}

// Digest waits for the wrapped reader to finish and returns the hash of
// everything that passed through.
func (t *Tee) Digest(ctx context.Context) ([]byte, error) {
	select {
	case <-t.done:
		return t.sum, t.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
