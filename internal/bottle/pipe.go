package bottle

import (
	"io"
	"sync"
)

// WriterFunc wraps w in a push-only transform, such as a compressor or an
// encryptor. Closing the returned writer must flush everything to w.
type WriterFunc func(w io.Writer) (io.WriteCloser, error)

// Transform turns a push-only transform into a reader: reading from the
// result pulls src through wrap. The copy runs on its own goroutine behind an
// io.Pipe, started by the first Read. Close stops it early.
func Transform(src io.Reader, wrap WriterFunc) io.ReadCloser {
	return &pushReader{src: src, wrap: wrap}
}

type pushReader struct {
	once sync.Once
	src  io.Reader
	wrap WriterFunc
	pr   *io.PipeReader
}

func (p *pushReader) Read(b []byte) (int, error) {
	p.once.Do(p.start)
	return p.pr.Read(b)
}

func (p *pushReader) Close() error {
	p.once.Do(p.start)
	return p.pr.Close()
}

func (p *pushReader) start() {
	pr, pw := io.Pipe()
	p.pr = pr
	go func() {
		w, err := p.wrap(pw)
		if err == nil {
			_, err = io.Copy(w, p.src)
			if cerr := w.Close(); err == nil {
				err = cerr
			}
		}
		pw.CloseWithError(err)
	}()
}
