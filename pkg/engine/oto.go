// ABOUTME: MP3 decode and oto-backed playback engine
// ABOUTME: Mixes scheduled PCM sources with gain automation into one output
package engine

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"log"
	"math"
	"sync"

	"github.com/ebitengine/oto/v3"
	"github.com/hajimehoshi/go-mp3"
)

// mixBlockFrames is the number of sample frames mixed per write to the
// output device. Small enough that gain ramps stay smooth, large enough to
// keep the mix loop cheap.
const mixBlockFrames = 1024

// Oto is the bundled Engine implementation: go-mp3 for decoding, a software
// mixer feeding an oto player for output. Scheduled sources are mixed
// sample-accurately against a frames-written output clock, so overlapping
// buffers crossfade without clicks.
type Oto struct {
	mu         sync.Mutex
	otoCtx     *oto.Context
	player     *oto.Player
	pipeReader *io.PipeReader
	pipeWriter *io.PipeWriter
	sampleRate int
	channels   int
	cursor     int64 // frames mixed so far
	sources    []*otoSource
	closed     bool
	done       chan struct{}
}

// NewOto creates the engine. The output device is opened lazily on the
// first Schedule call, using that buffer's sample rate and channel count.
func NewOto() *Oto {
	return &Oto{done: make(chan struct{})}
}

// Decode converts an MP3 byte stream to 16-bit interleaved PCM.
func (e *Oto) Decode(data []byte) (*PCMBuffer, error) {
	dec, err := mp3.NewDecoder(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("mp3 decode failed: %w", err)
	}

	raw, err := io.ReadAll(dec)
	if err != nil {
		return nil, fmt.Errorf("mp3 read failed: %w", err)
	}

	// go-mp3 always produces 16-bit little-endian stereo.
	samples := make([]int16, len(raw)/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(raw[i*2:]))
	}

	return &PCMBuffer{
		SampleRate: dec.SampleRate(),
		Channels:   2,
		Samples:    samples,
	}, nil
}

// Now returns the output clock in seconds.
func (e *Oto) Now() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.sampleRate == 0 {
		return 0
	}
	return float64(e.cursor) / float64(e.sampleRate)
}

// Schedule queues buf to start at output-clock time when, skipping the
// first offset seconds of the buffer.
func (e *Oto) Schedule(buf *PCMBuffer, when, offset float64) (Source, error) {
	if buf == nil || buf.NumFrames() == 0 {
		return nil, fmt.Errorf("cannot schedule empty buffer")
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return nil, fmt.Errorf("engine is closed")
	}
	if err := e.openLocked(buf.SampleRate, buf.Channels); err != nil {
		return nil, err
	}

	startFrame := int64(when * float64(e.sampleRate))
	if startFrame < e.cursor {
		startFrame = e.cursor
	}
	offsetFrames := int64(offset * float64(buf.SampleRate))
	if offsetFrames < 0 {
		offsetFrames = 0
	}
	if offsetFrames >= int64(buf.NumFrames()) {
		return nil, fmt.Errorf("schedule offset %.3fs beyond buffer end (%.3fs)", offset, buf.Duration())
	}

	src := &otoSource{
		engine:      e,
		buf:         buf,
		startFrame:  startFrame,
		offsetFrame: offsetFrames,
		gain:        1.0,
	}
	e.sources = append(e.sources, src)
	return src, nil
}

// openLocked initializes the oto context and mix loop on first use.
// oto allows one context per process, so a later format change keeps the
// existing context rather than reopening.
func (e *Oto) openLocked(sampleRate, channels int) error {
	if e.otoCtx != nil {
		if e.sampleRate != sampleRate || e.channels != channels {
			log.Printf("engine: format change (%dHz %dch -> %dHz %dch) ignored, keeping existing output",
				e.sampleRate, e.channels, sampleRate, channels)
		}
		return nil
	}

	ctx, ready, err := oto.NewContext(&oto.NewContextOptions{
		SampleRate:   sampleRate,
		ChannelCount: channels,
		Format:       oto.FormatSignedInt16LE,
	})
	if err != nil {
		return fmt.Errorf("failed to create oto context: %w", err)
	}
	<-ready

	e.otoCtx = ctx
	e.sampleRate = sampleRate
	e.channels = channels
	e.pipeReader, e.pipeWriter = io.Pipe()
	e.player = ctx.NewPlayer(e.pipeReader)
	e.player.Play()

	go e.mixLoop()

	log.Printf("engine: output opened at %dHz, %d channels", sampleRate, channels)
	return nil
}

// mixLoop renders blocks of mixed audio into the player pipe. Pipe writes
// block until the device consumes them, which paces the loop.
func (e *Oto) mixLoop() {
	for {
		select {
		case <-e.done:
			return
		default:
		}

		block := e.mixBlock()
		if _, err := e.pipeWriter.Write(block); err != nil {
			return
		}
	}
}

// mixBlock renders the next mixBlockFrames frames of output.
func (e *Oto) mixBlock() []byte {
	e.mu.Lock()
	defer e.mu.Unlock()

	acc := make([]int32, mixBlockFrames*e.channels)
	live := e.sources[:0]
	for _, src := range e.sources {
		if src.mix(acc, e.cursor, mixBlockFrames, e.channels, e.sampleRate) {
			live = append(live, src)
		}
	}
	e.sources = live
	e.cursor += mixBlockFrames

	out := make([]byte, len(acc)*2)
	for i, s := range acc {
		if s > math.MaxInt16 {
			s = math.MaxInt16
		} else if s < math.MinInt16 {
			s = math.MinInt16
		}
		binary.LittleEndian.PutUint16(out[i*2:], uint16(int16(s)))
	}
	return out
}

// Close stops the mix loop and releases the output device.
func (e *Oto) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	e.sources = nil
	close(e.done)
	e.mu.Unlock()

	if e.pipeWriter != nil {
		e.pipeWriter.Close()
	}
	if e.player != nil {
		e.player.Close()
	}
	if e.pipeReader != nil {
		e.pipeReader.Close()
	}
	if e.otoCtx != nil {
		e.otoCtx.Suspend()
	}
	return nil
}

// gainRamp is one linear gain automation segment on a source.
type gainRamp struct {
	from, to   float64
	start, end float64 // output-clock seconds
}

// otoSource is one scheduled buffer inside the mixer.
type otoSource struct {
	engine      *Oto
	buf         *PCMBuffer
	startFrame  int64
	offsetFrame int64
	gain        float64
	ramps       []gainRamp
	stopped     bool
}

// mix accumulates this source's samples for the block starting at cursor.
// Returns false once the source is exhausted or stopped.
func (s *otoSource) mix(acc []int32, cursor int64, frames, channels, sampleRate int) bool {
	if s.stopped {
		return false
	}
	total := int64(s.buf.NumFrames()) - s.offsetFrame
	if cursor >= s.startFrame+total {
		return false
	}

	bufCh := s.buf.Channels
	for f := 0; f < frames; f++ {
		pos := cursor + int64(f) - s.startFrame
		if pos < 0 {
			continue
		}
		srcFrame := pos + s.offsetFrame
		if srcFrame >= int64(s.buf.NumFrames()) {
			break
		}
		g := s.gainAt(float64(cursor+int64(f)) / float64(sampleRate))
		for c := 0; c < channels; c++ {
			sc := c
			if sc >= bufCh {
				sc = bufCh - 1 // mono upmix
			}
			sample := float64(s.buf.Samples[srcFrame*int64(bufCh)+int64(sc)])
			acc[f*channels+c] += int32(sample * g)
		}
	}
	return true
}

// gainAt evaluates the gain automation at output-clock time t.
func (s *otoSource) gainAt(t float64) float64 {
	g := s.gain
	for _, r := range s.ramps {
		switch {
		case t >= r.end:
			g = r.to
		case t >= r.start:
			if r.end > r.start {
				g = r.from + (r.to-r.from)*(t-r.start)/(r.end-r.start)
			} else {
				g = r.to
			}
		}
	}
	return g
}

// SetGain sets the source's base gain immediately.
func (s *otoSource) SetGain(gain float64) {
	s.engine.mu.Lock()
	s.gain = gain
	s.engine.mu.Unlock()
}

// RampGain appends a linear gain ramp over [rampStart, rampEnd].
func (s *otoSource) RampGain(from, to, rampStart, rampEnd float64) {
	s.engine.mu.Lock()
	s.ramps = append(s.ramps, gainRamp{from: from, to: to, start: rampStart, end: rampEnd})
	s.engine.mu.Unlock()
}

// Stop halts the source immediately.
func (s *otoSource) Stop() {
	s.engine.mu.Lock()
	s.stopped = true
	s.engine.mu.Unlock()
}

// Disconnect removes the source from the mixer.
func (s *otoSource) Disconnect() { s.Stop() }
