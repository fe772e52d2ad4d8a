// ABOUTME: Gapless playback scheduler walking the chunk chain
// ABOUTME: Double-buffered crossfade scheduling against the engine clock
package clip

import (
	"log"

	"github.com/clipstream/clipstream-go/pkg/engine"
)

// playState is the per-clip playback state machine.
type playState int

const (
	stateStopped playState = iota
	stateStarting
	statePlaying
	statePaused
	stateEnded
)

func (s playState) String() string {
	switch s {
	case stateStopped:
		return "stopped"
	case stateStarting:
		return "starting"
	case statePlaying:
		return "playing"
	case statePaused:
		return "paused"
	case stateEnded:
		return "ended"
	}
	return "unknown"
}

// scheduler walks the chunk chain during playback, keeping the next chunk
// decoded and scheduled ahead of the output clock with a short crossfade at
// every seam. All methods run on the clip loop; decode work is farmed to
// goroutines whose results are posted back.
type scheduler struct {
	c *Clip

	state    playState
	position float64 // playback offset when not playing

	startClock    float64 // engine clock at playback start
	startPosition float64 // clip position at playback start

	currentIndex int
	lastStart    float64 // engine time the current chunk began
	nextStart    float64 // engine time the upcoming chunk must begin

	active []engine.Source

	// Lookahead decode cache, keyed by chunk index. Invalidated and
	// rebuilt whenever playback position changes discontinuously.
	pcm       map[int]*engine.PCMBuffer
	decoding  map[int]bool
	failedPCM map[int]bool

	// epoch invalidates in-flight decode completions and deferred
	// retries from a previous playback attempt.
	epoch int
}

func newScheduler(c *Clip) *scheduler {
	return &scheduler{
		c:         c,
		pcm:       make(map[int]*engine.PCMBuffer),
		decoding:  make(map[int]bool),
		failedPCM: make(map[int]bool),
	}
}

// play begins playback from the current position. The caller has already
// rejected invalid transitions.
func (s *scheduler) play() {
	s.state = stateStarting
	s.epoch++
	s.locate(s.epoch)
}

// locate finds the chunk containing the current position by accumulating
// durations along the chain. If the target chunk is not ready yet, the
// start is deferred and retried, not aborted.
func (s *scheduler) locate(epoch int) {
	if epoch != s.epoch || s.state != stateStarting {
		return
	}

	var cum float64
	for i := 0; i < s.c.arena.len(); i++ {
		ch := s.c.arena.at(i)
		if ch.failed {
			s.c.emitPlaybackError(newError(CodeCouldNotStartPlayback, s.c.cfg.URL, nil,
				"cannot play into undecodable chunk %d", i))
			s.state = stateStopped
			return
		}
		if !ch.ready {
			s.retryLocate(epoch)
			return
		}
		if s.position < cum+ch.duration {
			s.begin(i, s.position-cum, epoch)
			return
		}
		cum += ch.duration
	}

	if !s.c.loaded {
		// The containing chunk has not arrived yet.
		s.retryLocate(epoch)
		return
	}

	// Position at or beyond the end of a fully loaded clip: restart from
	// the top.
	if s.position > 0 && cum > 0 {
		s.position = 0
		s.locate(epoch)
		return
	}
	s.state = stateStopped
	log.Printf("clip %s: nothing to play", s.c.id)
}

func (s *scheduler) retryLocate(epoch int) {
	s.c.after(s.c.cfg.RetryDelay, func() { s.locate(epoch) })
}

// begin schedules chunk i to start now, offset into its buffer by intra
// seconds. Waits for the lookahead decode when the PCM is not cached yet.
func (s *scheduler) begin(i int, intra float64, epoch int) {
	if epoch != s.epoch || s.state != stateStarting {
		return
	}

	if s.failedPCM[i] {
		s.state = statePaused
		return
	}
	buf := s.pcm[i]
	if buf == nil {
		s.requestDecode(i, epoch)
		s.c.after(s.c.cfg.RetryDelay, func() { s.begin(i, intra, epoch) })
		return
	}

	when := s.c.cfg.Engine.Now()
	src, err := s.c.cfg.Engine.Schedule(buf, when, intra)
	if err != nil {
		s.c.emitPlaybackError(newError(CodeCouldNotStartPlayback, s.c.cfg.URL, err,
			"failed to schedule chunk %d", i))
		s.state = statePaused
		return
	}
	src.SetGain(s.c.volume)

	ch := s.c.arena.at(i)
	s.state = statePlaying
	s.startClock = when
	s.startPosition = s.position
	s.currentIndex = i
	s.lastStart = when
	s.nextStart = when + (ch.duration - intra)
	s.active = []engine.Source{src}

	s.prefetch(i + 1)
	s.c.emit(EventPlay, nil)
	log.Printf("clip %s: playback started at %.3fs (chunk %d +%.3fs)", s.c.id, s.position, i, intra)
}

// tick advances the double-buffered schedule. Runs on the polling cadence.
func (s *scheduler) tick() {
	if s.state != statePlaying {
		return
	}

	now := s.c.cfg.Engine.Now()
	if now < s.lastStart {
		return
	}

	next := s.currentIndex + 1
	if next >= s.c.arena.len() {
		if !s.c.loaded {
			return // more chunks still arriving
		}
		if s.c.cfg.Loop && s.c.arena.len() > 0 {
			s.scheduleNext(0, now)
			return
		}
		// Out of chunks: wait for the output clock to reach the end of
		// the final chunk, then finish.
		if now >= s.nextStart {
			s.finish()
		}
		return
	}

	s.scheduleNext(next, now)
}

// scheduleNext pre-schedules chunk next to begin exactly at nextStart with
// complementary crossfade ramps against the currently sounding source.
func (s *scheduler) scheduleNext(next int, now float64) {
	ch := s.c.arena.at(next)
	if s.failedPCM[next] {
		return // error already surfaced, do not advance past it
	}
	if ch.failed {
		s.failedPCM[next] = true
		s.c.emitPlaybackError(newError(CodeCouldNotStartPlayback, s.c.cfg.URL, nil,
			"cannot advance into undecodable chunk %d", next))
		return
	}
	if !ch.ready {
		return // still loading, try again next tick
	}
	buf := s.pcm[next]
	if buf == nil {
		s.requestDecode(next, s.epoch)
		return // decode in flight, try again next tick
	}

	src, err := s.c.cfg.Engine.Schedule(buf, s.nextStart, 0)
	if err != nil {
		s.c.emitPlaybackError(newError(CodeCouldNotStartPlayback, s.c.cfg.URL, err,
			"failed to schedule chunk %d", next))
		return
	}

	// Complementary fades over [nextStart, nextStart+overlap]: the new
	// buffer ramps in while the previous ramps out, so the seam carries
	// no click and no silence.
	o := s.c.cfg.Overlap
	src.RampGain(0, s.c.volume, s.nextStart, s.nextStart+o)
	if len(s.active) > 0 {
		s.active[len(s.active)-1].RampGain(s.c.volume, 0, s.nextStart, s.nextStart+o)
	}

	s.active = append(s.active, src)
	if len(s.active) > 2 {
		old := s.active[0]
		s.active = s.active[1:]
		old.Disconnect()
	}

	if next == 0 && s.c.cfg.Loop {
		// Wrapped: rebase position bookkeeping to the new pass.
		if total, ok := s.c.totalDuration(); ok {
			s.startPosition -= total
		}
	}

	s.lastStart = s.nextStart
	s.nextStart += ch.duration
	s.currentIndex = next
	s.prefetch(next + 1)
}

// prefetch issues decode requests for the next chunks ahead of the cursor
// so the crossfade never stalls on a decode.
func (s *scheduler) prefetch(from int) {
	for i := from; i < from+s.c.cfg.Lookahead; i++ {
		if s.c.cfg.Loop && s.c.loaded && s.c.arena.len() > 0 {
			s.requestDecode(i%s.c.arena.len(), s.epoch)
			continue
		}
		if i < s.c.arena.len() {
			s.requestDecode(i, s.epoch)
		}
	}
}

// requestDecode decodes chunk i's extended (stitched) buffer off-loop and
// caches the PCM. Completions from a stale epoch are dropped.
func (s *scheduler) requestDecode(i int, epoch int) {
	if s.pcm[i] != nil || s.decoding[i] || s.failedPCM[i] {
		return
	}
	if i < 0 || i >= s.c.arena.len() {
		return
	}
	ch := s.c.arena.at(i)
	if !ch.ready || ch.failed {
		return
	}
	s.decoding[i] = true

	ext := ch.extended(s.c.arena)
	eng := s.c.cfg.Engine
	go func() {
		buf, err := eng.Decode(ext)
		s.c.post(func() {
			if epoch != s.epoch {
				return
			}
			delete(s.decoding, i)
			if err != nil {
				s.failedPCM[i] = true
				s.c.emitPlaybackError(newError(CodeCouldNotStartPlayback, s.c.cfg.URL, err,
					"failed to decode chunk %d for playback", i))
				return
			}
			s.pcm[i] = buf
		})
	}()
}

// pause stops and disconnects all in-flight sources immediately, capturing
// the playback position from elapsed output-clock time. Scheduled buffers
// do not survive; resume recomputes everything from the captured position.
func (s *scheduler) pause() {
	if s.state == statePlaying {
		s.position = s.startPosition + (s.c.cfg.Engine.Now() - s.startClock)
	}
	s.stopSources()
	s.epoch++
	s.state = statePaused
}

// seek moves the playback position discontinuously, invalidating the
// lookahead cache. If playback was active it restarts from the new offset.
func (s *scheduler) seek(t float64) {
	wasActive := s.state == statePlaying || s.state == stateStarting
	s.stopSources()
	s.epoch++
	s.pcm = make(map[int]*engine.PCMBuffer)
	s.decoding = make(map[int]bool)
	s.failedPCM = make(map[int]bool)
	if t < 0 {
		t = 0
	}
	s.position = t

	if wasActive {
		s.state = stateStarting
		s.locate(s.epoch)
	} else if s.state == stateEnded {
		s.state = stateStopped
	}
}

// finish handles end-of-content: terminal ended state, position reset.
func (s *scheduler) finish() {
	s.stopSources()
	s.epoch++
	s.pcm = make(map[int]*engine.PCMBuffer)
	s.decoding = make(map[int]bool)
	s.failedPCM = make(map[int]bool)
	s.state = stateEnded
	s.position = 0
	s.c.handleEnded()
}

// stop tears playback down without emitting anything (dispose path).
func (s *scheduler) stop() {
	s.stopSources()
	s.epoch++
	s.state = stateStopped
}

func (s *scheduler) stopSources() {
	for _, src := range s.active {
		src.Stop()
		src.Disconnect()
	}
	s.active = nil
}

// setVolume applies the new gain to every in-flight source.
func (s *scheduler) setVolume(v float64) {
	for _, src := range s.active {
		src.SetGain(v)
	}
}

// currentTime derives the playback position.
func (s *scheduler) currentTime() float64 {
	if s.state == statePlaying {
		return s.startPosition + (s.c.cfg.Engine.Now() - s.startClock)
	}
	return s.position
}
