// ABOUTME: Frame-aligned chunk: decode state, duration, and stitching
// ABOUTME: Readiness is monotonic and gated on attachment plus known duration
package clip

import (
	"fmt"

	"github.com/clipstream/clipstream-go/pkg/adapter"
)

// noNext marks a chunk explicitly attached to no successor (last chunk).
const noNext = -1

// chunkArena is the index-addressable, append-only sequence of chunks owned
// by one Clip. Successors are stable index lookups rather than raw links.
type chunkArena struct {
	chunks []*chunk
}

func newChunkArena() *chunkArena {
	return &chunkArena{}
}

func (a *chunkArena) len() int { return len(a.chunks) }

func (a *chunkArena) at(i int) *chunk { return a.chunks[i] }

func (a *chunkArena) last() *chunk {
	if len(a.chunks) == 0 {
		return nil
	}
	return a.chunks[len(a.chunks)-1]
}

// append adds a chunk and immediately attaches it to its predecessor.
func (a *chunkArena) append(c *chunk) int {
	idx := len(a.chunks)
	a.chunks = append(a.chunks, c)
	if idx > 0 {
		a.chunks[idx-1].attach(idx)
	}
	return idx
}

func (a *chunkArena) clear() {
	a.chunks = nil
}

// totalRawBytes sums the raw byte length of every chunk (the stripped
// container header is accounted separately).
func (a *chunkArena) totalRawBytes() int64 {
	var n int64
	for _, c := range a.chunks {
		n += int64(len(c.data))
	}
	return n
}

// chunk owns one frame-aligned slice of the raw stream plus its decode
// state. The raw bytes are immutable after creation; the successor index is
// set exactly once by attach.
type chunk struct {
	data      []byte
	firstByte int // first usable byte found by the decode offset search

	duration    float64
	hasDuration bool
	frameCount  int

	next     int // successor index in the arena, noNext when last
	attached bool

	ready   bool
	failed  bool   // decode exhausted the offset search; fatal to this chunk
	onReady func() // pending became-ready callback, fired at most once
}

func newChunk(data []byte) *chunk {
	return &chunk{data: data, next: noNext}
}

// attach records the successor (noNext for the final chunk) and re-checks
// readiness. The link is set once; a second attach is ignored.
func (c *chunk) attach(next int) {
	if c.attached {
		return
	}
	c.next = next
	c.attached = true
	c.checkReady()
}

// setDuration records the walked duration and frame count. Duration is set
// at most once.
func (c *chunk) setDuration(seconds float64, frames int) {
	if c.hasDuration {
		return
	}
	c.duration = seconds
	c.frameCount = frames
	c.hasDuration = true
	c.checkReady()
}

// checkReady flips the monotonic readiness flag once both the neighbor
// attachment and the duration are known, firing the pending callback.
func (c *chunk) checkReady() {
	if c.ready || !c.attached || !c.hasDuration {
		return
	}
	c.ready = true
	if c.onReady != nil {
		fn := c.onReady
		c.onReady = nil
		fn()
	}
}

// whenReady registers the pending became-ready callback. If the chunk is
// already ready the callback fires immediately; otherwise it fires exactly
// once when readiness is reached.
func (c *chunk) whenReady(fn func()) {
	if c.ready {
		fn()
		return
	}
	prev := c.onReady
	if prev != nil {
		c.onReady = func() { prev(); fn() }
		return
	}
	c.onReady = fn
}

// extended returns the byte range handed to the decode engine for
// playback: this chunk's bytes from the first usable byte onward, plus half
// of the successor's raw bytes when one exists. Frames near the boundary
// need following bytes to decode, and truncating mid-frame is audible.
func (c *chunk) extended(arena *chunkArena) []byte {
	own := c.data[c.firstByte:]
	if c.next == noNext || c.next >= arena.len() {
		return own
	}
	succ := arena.at(c.next)
	stitch := succ.data[:len(succ.data)/2]

	out := make([]byte, 0, len(own)+len(stitch))
	out = append(out, own...)
	out = append(out, stitch...)
	return out
}

// walkFrames measures total duration and frame count by walking every frame
// in data[from:] with the adapter. Non-validating gap bytes between frames
// are skipped one byte at a time.
func walkFrames(data []byte, from int, a adapter.Adapter) (seconds float64, frames int) {
	i := from
	for i < len(data) {
		if !a.ValidateFrame(data, i) {
			i++
			continue
		}
		meta, ok := a.FrameMetadata(data, i)
		if !ok {
			i++
			continue
		}
		length, ok := a.FrameLength(data, meta, i)
		if !ok || length <= 0 {
			i++
			continue
		}
		if i+length > len(data) {
			// Header-valid frame whose body is cut off by the segment
			// boundary. Treat it as gap bytes rather than full duration.
			i++
			continue
		}
		dur, ok := a.FrameDuration(data, meta, i)
		if !ok {
			i++
			continue
		}
		seconds += dur
		frames++
		i += length
	}
	return seconds, frames
}

// nextFrameOffset returns the first adapter-validated frame start strictly
// after from, or -1 when none remains in the segment.
func nextFrameOffset(data []byte, from int, a adapter.Adapter) int {
	for i := from + 1; i < len(data); i++ {
		if a.ValidateFrame(data, i) {
			return i
		}
	}
	return -1
}

// decodeChunk runs the byte-offset retry search against the engine's
// decoder. Some decoders spuriously reject a buffer starting exactly at a
// valid frame's first byte, so on failure the search advances to the next
// adapter-confirmed frame start and retries until success or segment end.
//
// It is a pure function of the chunk's immutable raw bytes and safe to run
// off the clip loop; the caller applies the result back on the loop.
func decodeChunk(data []byte, a adapter.Adapter, decode func([]byte) error) (firstByte int, seconds float64, frames int, err error) {
	offset := 0
	var lastErr error
	for offset >= 0 && offset < len(data) {
		if lastErr = decode(data[offset:]); lastErr == nil {
			seconds, frames = walkFrames(data, offset, a)
			return offset, seconds, frames, nil
		}
		offset = nextFrameOffset(data, offset, a)
	}

	if lastErr == nil {
		lastErr = fmt.Errorf("no decodable frame in segment")
	}
	return 0, 0, 0, fmt.Errorf("chunk decode exhausted %d bytes: %w", len(data), lastErr)
}
