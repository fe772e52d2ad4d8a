// ABOUTME: Decode-and-schedule engine contract
// ABOUTME: Defines PCM buffers, scheduled sources, and the output clock
// Package engine defines the decode-and-schedule contract the playback core
// depends on: turning compressed bytes into PCM, and scheduling PCM buffers
// to start at precise output-clock times with gain automation.
//
// The bundled implementation decodes MP3 with hajimehoshi/go-mp3 and plays
// through an ebitengine/oto output, mixing concurrently scheduled sources so
// overlapping buffers crossfade sample-accurately.
package engine

// PCMBuffer holds decoded, directly playable audio samples.
type PCMBuffer struct {
	SampleRate int
	Channels   int
	Samples    []int16 // interleaved
}

// NumFrames returns the number of sample frames in the buffer.
func (b *PCMBuffer) NumFrames() int {
	if b.Channels == 0 {
		return 0
	}
	return len(b.Samples) / b.Channels
}

// Duration returns the buffer's playback duration in seconds.
func (b *PCMBuffer) Duration() float64 {
	if b.SampleRate == 0 {
		return 0
	}
	return float64(b.NumFrames()) / float64(b.SampleRate)
}

// Source is a handle to one scheduled buffer. All methods are safe to call
// after the source has finished playing; they become no-ops.
type Source interface {
	// SetGain sets the source's gain immediately (1.0 = unity).
	SetGain(gain float64)

	// RampGain linearly ramps the source's gain from one value to another
	// over the output-clock window [rampStart, rampEnd].
	RampGain(from, to, rampStart, rampEnd float64)

	// Stop halts playback of this source immediately.
	Stop()

	// Disconnect removes the source from the output graph. Equivalent to
	// Stop for this engine; both are accepted for caller convenience.
	Disconnect()
}

// Engine decodes compressed audio and schedules PCM for playback.
type Engine interface {
	// Decode converts compressed bytes to PCM. It blocks until the whole
	// buffer is decoded and may be called from any goroutine.
	Decode(data []byte) (*PCMBuffer, error)

	// Now returns the output clock in seconds. The clock starts at zero
	// and advances monotonically while the engine is open.
	Now() float64

	// Schedule queues buf to begin playing at output-clock time when,
	// skipping the first offset seconds of the buffer. A when in the past
	// starts as soon as possible.
	Schedule(buf *PCMBuffer, when, offset float64) (Source, error)

	// Close releases the output device and stops all sources.
	Close() error
}
