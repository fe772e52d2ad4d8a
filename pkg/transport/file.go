// ABOUTME: Local file transport
// ABOUTME: Streams a file in fixed-size pieces with the same callback contract
package transport

import (
	"fmt"
	"io"
	"os"
	"sync"
)

// fileReadSize is how many bytes are delivered per piece.
const fileReadSize = 32 * 1024

// File streams a local file in fixed-size pieces. It follows the same
// callback discipline as the network transports, which makes it useful for
// offline playback and tests.
type File struct {
	path string

	mu        sync.Mutex
	cancelled bool
}

// NewFile creates a transport reading from path.
func NewFile(path string) *File {
	return &File{path: path}
}

// Load starts streaming the file.
func (t *File) Load(cb Callbacks) {
	go t.run(cb)
}

// Cancel stops delivery. A cancelled load emits no completion.
func (t *File) Cancel() {
	t.mu.Lock()
	t.cancelled = true
	t.mu.Unlock()
}

func (t *File) isCancelled() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cancelled
}

func (t *File) run(cb Callbacks) {
	f, err := os.Open(t.path)
	if err != nil {
		cb.fail(fmt.Errorf("failed to open %s: %w", t.path, err))
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		cb.fail(fmt.Errorf("failed to stat %s: %w", t.path, err))
		return
	}
	total := info.Size()

	var received int64
	buf := make([]byte, fileReadSize)
	for {
		if t.isCancelled() {
			return
		}

		n, err := f.Read(buf)
		if n > 0 {
			received += int64(n)
			piece := make([]byte, n)
			copy(piece, buf[:n])
			cb.data(piece)

			fraction := 0.0
			if total > 0 {
				fraction = float64(received) / float64(total)
			}
			cb.progress(fraction, received, total)
		}
		if err == io.EOF {
			cb.load()
			return
		}
		if err != nil {
			cb.fail(fmt.Errorf("read failed for %s: %w", t.path, err))
			return
		}
	}
}
