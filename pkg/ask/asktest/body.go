package asktest

import (
	"errors"
	"io"
	"sync"
)

// ErrBodyClosed is returned by reads after Close.
var ErrBodyClosed = errors.New("asktest: body closed")

// Body is an io.ReadCloser that hands out one scripted chunk per Read, so a
// test controls exactly where chunk boundaries fall. After the chunks it
// returns Err, or io.EOF when Err is nil.
type Body struct {
	Err error

	mu     sync.Mutex
	chunks [][]byte
	reads  int
	closed bool
}

// NewBody returns a body that yields chunks one Read at a time.
func NewBody(chunks ...string) *Body {
	b := &Body{}
	for _, c := range chunks {
		b.chunks = append(b.chunks, []byte(c))
	}
	return b
}

func (b *Body) Read(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return 0, ErrBodyClosed
	}
	if len(b.chunks) == 0 {
		if b.Err != nil {
			return 0, b.Err
		}
		return 0, io.EOF
	}

	b.reads++
	n := copy(p, b.chunks[0])
	if n < len(b.chunks[0]) {
		b.chunks[0] = b.chunks[0][n:]
	} else {
		b.chunks = b.chunks[1:]
	}
	return n, nil
}

// Close marks the body released.
func (b *Body) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	return nil
}

// Closed reports whether Close was called.
func (b *Body) Closed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closed
}

// Reads returns how many reads returned data.
func (b *Body) Reads() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.reads
}

// Remaining returns how many scripted chunks have not been read.
func (b *Body) Remaining() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.chunks)
}
