// ABOUTME: Incremental stream segmenter producing frame-aligned chunks
// ABOUTME: Strips the container header and drains at frame boundaries
package clip

import "github.com/clipstream/clipstream-go/pkg/adapter"

// frameLookahead is how many bytes beyond a candidate position must be
// buffered before the adapter is asked to validate it. Keeps boundary
// decisions independent of how the stream was split into delivery pieces:
// a position is either skipped for good or deferred until enough bytes
// exist to judge it.
const frameLookahead = 4

// minHeaderProbe is how many bytes are needed before the adapter can size
// a leading container header.
const minHeaderProbe = 10

// segmenter consumes the transport byte stream in arbitrarily sized pieces
// and drains frame-aligned segments once the accumulation exceeds the
// target size and a new frame boundary is found.
//
// The scan position persists across writes and only ever moves forward, so
// boundary detection re-scans from the current stream position rather than
// from the last accumulator reset.
type segmenter struct {
	adapter    adapter.Adapter
	targetSize int

	onChunk  func(data []byte)
	onHeader func(header []byte)

	buf        []byte
	scanPos    int
	headerDone bool
	finished   bool
}

func newSegmenter(a adapter.Adapter, targetSize int, onChunk func([]byte), onHeader func([]byte)) *segmenter {
	return &segmenter{
		adapter:    a,
		targetSize: targetSize,
		onChunk:    onChunk,
		onHeader:   onHeader,
	}
}

// write accumulates the next piece of the stream and drains any segments
// that became complete.
func (s *segmenter) write(p []byte) {
	if s.finished || len(p) == 0 {
		return
	}
	s.buf = append(s.buf, p...)
	s.stripHeader(false)
	if !s.headerDone {
		return
	}
	s.scan()
}

// finish drains whatever remains as the final segment. If no frame
// boundary was ever found the remaining bytes still form a chunk;
// segmentation never fails on its own.
func (s *segmenter) finish() {
	if s.finished {
		return
	}
	s.finished = true

	s.stripHeader(true)
	s.scan()
	if len(s.buf) > 0 {
		s.onChunk(s.buf)
		s.buf = nil
	}
	s.scanPos = 0
}

// stripHeader removes a leading container header (e.g. an ID3 tag) before
// any frame logic runs. The header bytes are handed to onHeader so they
// stay byte-accounted and available for tag parsing. With force set, a
// decision is made from whatever bytes exist.
func (s *segmenter) stripHeader(force bool) {
	if s.headerDone {
		return
	}
	sizer, ok := s.adapter.(adapter.HeaderSizer)
	if !ok {
		s.headerDone = true
		return
	}
	if len(s.buf) < minHeaderProbe && !force {
		return
	}

	size := sizer.HeaderLength(s.buf)
	if size <= 0 {
		s.headerDone = true
		return
	}
	if size > len(s.buf) {
		if !force {
			return // header extends past the bytes seen so far
		}
		size = len(s.buf)
	}

	header := s.buf[:size]
	s.buf = s.buf[size:]
	s.headerDone = true
	if s.onHeader != nil {
		s.onHeader(header)
	}
}

// scan advances the boundary search and drains a segment each time a frame
// start is found at or past the target size.
func (s *segmenter) scan() {
	for s.scanPos+frameLookahead <= len(s.buf) {
		if s.scanPos >= s.targetSize && s.adapter.ValidateFrame(s.buf, s.scanPos) {
			segment := s.buf[:s.scanPos:s.scanPos]
			s.buf = append([]byte(nil), s.buf[s.scanPos:]...)
			s.scanPos = 0
			s.onChunk(segment)
			continue
		}
		s.scanPos++
	}
}
