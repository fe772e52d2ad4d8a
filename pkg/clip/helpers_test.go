// ABOUTME: Shared test fixtures: synthetic frame format and scripted transport
// ABOUTME: Keeps per-scenario tests focused on behavior, not plumbing
package clip

import (
	"bytes"
	"sync"
	"testing"
	"time"

	"github.com/clipstream/clipstream-go/pkg/adapter"
	"github.com/clipstream/clipstream-go/pkg/transport"
)

// The synthetic test format: fixed 8-byte frames starting with the magic
// pair 0xA5 0x5A, each worth 0.1 seconds at 1000 Hz. Payload bytes are kept
// clear of the magic values so false frame starts cannot occur.
const (
	testFrameSize     = 8
	testFrameDuration = 0.1
)

type testMeta struct{}

func (testMeta) SampleRate() int { return 1000 }

type testAdapter struct{}

func (testAdapter) ValidateFrame(data []byte, offset int) bool {
	return offset+1 < len(data) && data[offset] == 0xA5 && data[offset+1] == 0x5A
}

func (a testAdapter) FrameMetadata(data []byte, offset int) (adapter.Metadata, bool) {
	if !a.ValidateFrame(data, offset) {
		return nil, false
	}
	return testMeta{}, true
}

func (testAdapter) FrameLength(data []byte, meta adapter.Metadata, offset int) (int, bool) {
	return testFrameSize, true
}

func (testAdapter) FrameDuration(data []byte, meta adapter.Metadata, offset int) (float64, bool) {
	return testFrameDuration, true
}

// testHeaderAdapter adds ID3-style header sizing on top of the synthetic
// frame format.
type testHeaderAdapter struct {
	testAdapter
}

func (testHeaderAdapter) HeaderLength(data []byte) int {
	if len(data) < 10 || !bytes.HasPrefix(data, []byte("ID3")) {
		return 0
	}
	size := int(data[6])<<21 | int(data[7])<<14 | int(data[8])<<7 | int(data[9])
	return 10 + size
}

// testFrames builds a stream of n well-formed frames.
func testFrames(n int) []byte {
	out := make([]byte, 0, n*testFrameSize)
	for i := 0; i < n; i++ {
		out = append(out, 0xA5, 0x5A, byte(i), byte(i>>8), 0, 0, 0, 0)
	}
	return out
}

// testID3Header builds a minimal ID3v2.3 tag with a single TIT2 frame.
func testID3Header(title string) []byte {
	content := append([]byte{0}, []byte(title)...) // ISO-8859-1 encoding byte
	frame := append([]byte("TIT2"), byte(len(content)>>24), byte(len(content)>>16),
		byte(len(content)>>8), byte(len(content)), 0, 0)
	frame = append(frame, content...)

	size := len(frame)
	head := []byte{'I', 'D', '3', 3, 0, 0,
		byte(size >> 21 & 0x7f), byte(size >> 14 & 0x7f), byte(size >> 7 & 0x7f), byte(size & 0x7f)}
	return append(head, frame...)
}

// fakeTransport is a scripted transport driven explicitly by the test.
type fakeTransport struct {
	mu        sync.Mutex
	cb        transport.Callbacks
	loads     int
	cancelled bool
}

func (f *fakeTransport) Load(cb transport.Callbacks) {
	f.mu.Lock()
	f.cb = cb
	f.loads++
	f.mu.Unlock()
}

func (f *fakeTransport) Cancel() {
	f.mu.Lock()
	f.cancelled = true
	f.mu.Unlock()
}

func (f *fakeTransport) callbacks() transport.Callbacks {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cb
}

func (f *fakeTransport) sendProgress(fraction float64, received, total int64) {
	f.callbacks().OnProgress(fraction, received, total)
}

func (f *fakeTransport) sendData(p []byte) {
	f.callbacks().OnData(p)
}

func (f *fakeTransport) sendLoad() {
	f.callbacks().OnLoad()
}

func (f *fakeTransport) sendError(err error) {
	f.callbacks().OnError(err)
}

func (f *fakeTransport) loadCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.loads
}

func (f *fakeTransport) wasCancelled() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cancelled
}

// eventRecorder captures emitted event names in order.
type eventRecorder struct {
	mu     sync.Mutex
	names  []string
	datums []interface{}
}

func (r *eventRecorder) record(name string) Handler {
	return func(data interface{}) {
		r.mu.Lock()
		r.names = append(r.names, name)
		r.datums = append(r.datums, data)
		r.mu.Unlock()
	}
}

func (r *eventRecorder) has(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, n := range r.names {
		if n == name {
			return true
		}
	}
	return false
}

func (r *eventRecorder) count(name string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, got := range r.names {
		if got == name {
			n++
		}
	}
	return n
}

func (r *eventRecorder) all() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.names...)
}

func (r *eventRecorder) last(name string) interface{} {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.names) - 1; i >= 0; i-- {
		if r.names[i] == name {
			return r.datums[i]
		}
	}
	return nil
}

// waitFor polls cond until it holds or the timeout elapses.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func near(a, b float64) bool {
	d := a - b
	if d < 0 {
		d = -d
	}
	return d < 1e-6
}
