// ABOUTME: Clip orchestrator: progressive load, gapless playback, events
// ABOUTME: Owns the chunk chain and drives all components on one run loop
// Package clip implements progressive streaming audio playback: a Clip
// downloads a compressed stream, splits it into frame-aligned chunks,
// decodes them incrementally, and schedules them back-to-back with a short
// crossfade so playback is gapless while the rest of the file is still
// arriving.
//
// A Clip is wired from three collaborators: a transport that streams bytes,
// a format adapter that finds frame boundaries, and a decode-and-schedule
// engine that turns compressed bytes into playable PCM.
//
//	c, err := clip.New(clip.Config{
//	    URL:       url,
//	    Transport: transport.NewHTTP(url, nil),
//	    Adapter:   adapter.NewMP3(),
//	    Engine:    engine.NewOto(),
//	})
//	done := c.Play()
//	err = <-done
package clip

import (
	"context"
	"log"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/clipstream/clipstream-go/pkg/adapter"
	"github.com/clipstream/clipstream-go/pkg/engine"
	"github.com/clipstream/clipstream-go/pkg/transport"
)

// Defaults applied by New for zero Config fields.
const (
	DefaultTargetChunkSize  = 64 * 1024
	DefaultOverlap          = 0.2 // seconds of crossfade at chunk seams
	DefaultSafetyFactor     = 1.5 // margin on estimated remaining download time
	DefaultTickInterval     = 500 * time.Millisecond
	DefaultProgressInterval = 100 * time.Millisecond
	DefaultRetryDelay       = 100 * time.Millisecond
	DefaultLookahead        = 2 // chunks decoded ahead of the playback cursor
)

// Config holds clip configuration. Transport, Adapter, and Engine are
// required; everything else has a usable default.
type Config struct {
	// URL identifies the source, carried on errors for diagnostics.
	URL string

	// Transport streams the raw bytes.
	Transport transport.Transport

	// Adapter locates and measures frames in the stream.
	Adapter adapter.Adapter

	// Engine decodes compressed bytes and schedules PCM output.
	Engine engine.Engine

	// TargetChunkSize is the segment drain threshold in bytes.
	TargetChunkSize int

	// Overlap is the crossfade window in seconds at each chunk seam.
	Overlap float64

	// SafetyFactor inflates the buffering heuristic's estimate of
	// remaining download time.
	SafetyFactor float64

	// TickInterval is the scheduling advancement poll cadence.
	TickInterval time.Duration

	// ProgressInterval is the progress event cadence while playing.
	ProgressInterval time.Duration

	// RetryDelay is how long a deferred playback start waits before
	// re-checking chunk readiness.
	RetryDelay time.Duration

	// Lookahead is how many chunks are decoded ahead of the cursor.
	Lookahead int

	// Loop wraps playback around to the first chunk instead of ending.
	Loop bool

	// Volume is the initial output gain, 0..1 (default 1).
	Volume float64
}

// LoadProgress is the payload of the loadprogress event.
type LoadProgress struct {
	Fraction      float64
	ReceivedBytes int64
	TotalBytes    int64
}

type bufferWaiter struct {
	toCompletion bool
	ch           chan error
}

// Clip is a progressively streamed, gaplessly playable audio source.
//
// All state is confined to one run-loop goroutine; public methods post
// tasks to it and never block on I/O. Methods are safe for concurrent use.
type Clip struct {
	cfg Config
	id  string

	tasks  chan func()
	ctx    context.Context
	cancel context.CancelFunc
	loopID atomic.Uint64 // run-loop goroutine id, for re-entrancy detection

	// postMu gates task submission against disposal: closed flips under
	// the write lock, so once Dispose holds it every accepted task is
	// already in the queue and will be drained.
	postMu sync.RWMutex
	closed bool

	// Everything below is loop-confined.
	arena  *chunkArena
	seg    *segmenter
	heur   *bufferingHeuristic
	sched  *scheduler
	events *emitter

	loading       bool
	loaded        bool
	canplay       bool
	disposed      bool
	playRequested bool

	header []byte

	receivedBytes int64
	totalBytes    int64
	loadStart     time.Time

	volume float64

	playWaiters   []chan error
	bufferWaiters []bufferWaiter
}

// New creates a Clip. Loading does not start until Buffer or Play.
func New(cfg Config) (*Clip, error) {
	if cfg.Transport == nil {
		return nil, newError(CodeInvalidOperation, cfg.URL, nil, "config requires a Transport")
	}
	if cfg.Adapter == nil {
		return nil, newError(CodeInvalidOperation, cfg.URL, nil, "config requires an Adapter")
	}
	if cfg.Engine == nil {
		return nil, newError(CodeInvalidOperation, cfg.URL, nil, "config requires an Engine")
	}
	return newClip(cfg), nil
}

func newClip(cfg Config) *Clip {
	if cfg.TargetChunkSize == 0 {
		cfg.TargetChunkSize = DefaultTargetChunkSize
	}
	if cfg.Overlap == 0 {
		cfg.Overlap = DefaultOverlap
	}
	if cfg.SafetyFactor == 0 {
		cfg.SafetyFactor = DefaultSafetyFactor
	}
	if cfg.TickInterval == 0 {
		cfg.TickInterval = DefaultTickInterval
	}
	if cfg.ProgressInterval == 0 {
		cfg.ProgressInterval = DefaultProgressInterval
	}
	if cfg.RetryDelay == 0 {
		cfg.RetryDelay = DefaultRetryDelay
	}
	if cfg.Lookahead == 0 {
		cfg.Lookahead = DefaultLookahead
	}
	if cfg.Volume == 0 {
		cfg.Volume = 1.0
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &Clip{
		cfg:    cfg,
		id:     uuid.New().String(),
		tasks:  make(chan func(), 128),
		ctx:    ctx,
		cancel: cancel,
		arena:  newChunkArena(),
		heur:   newBufferingHeuristic(cfg.SafetyFactor),
		events: newEmitter(),
		volume: cfg.Volume,
	}
	c.sched = newScheduler(c)

	go c.run()
	go c.tickLoop()
	return c
}

// run drives the clip's single logical thread.
func (c *Clip) run() {
	c.loopID.Store(goroutineID())
	for {
		select {
		case f := <-c.tasks:
			f()
		case <-c.ctx.Done():
			// Tasks accepted while disposal was in flight still run
			// once, so their disposed checks reject waiters instead of
			// stranding them.
			for {
				select {
				case f := <-c.tasks:
					f()
				default:
					return
				}
			}
		}
	}
}

// onLoop reports whether the caller is already running on the clip's loop.
func (c *Clip) onLoop() bool {
	return c.loopID.Load() == goroutineID()
}

// goroutineID parses the current goroutine's id from its stack header.
func goroutineID() uint64 {
	var buf [32]byte
	n := runtime.Stack(buf[:], false)
	fields := strings.Fields(string(buf[:n]))
	if len(fields) < 2 {
		return 0
	}
	id, _ := strconv.ParseUint(fields[1], 10, 64)
	return id
}

// tickLoop posts the scheduling and progress polls onto the run loop.
func (c *Clip) tickLoop() {
	tick := time.NewTicker(c.cfg.TickInterval)
	defer tick.Stop()
	prog := time.NewTicker(c.cfg.ProgressInterval)
	defer prog.Stop()

	for {
		select {
		case <-c.ctx.Done():
			return
		case <-tick.C:
			c.post(func() { c.sched.tick() })
		case <-prog.C:
			c.post(func() {
				if c.sched.state == statePlaying {
					c.events.emit(EventProgress, c.sched.currentTime())
				}
			})
		}
	}
}

// post queues f on the run loop. Returns false once the clip is disposed;
// a true return guarantees f runs.
func (c *Clip) post(f func()) bool {
	c.postMu.RLock()
	defer c.postMu.RUnlock()
	if c.closed {
		return false
	}
	select {
	case c.tasks <- f:
		return true
	case <-c.ctx.Done():
		return false
	}
}

// call runs f on the loop and waits for it. Re-entrant calls from code
// already on the loop (event handlers in particular) run f inline.
func (c *Clip) call(f func()) {
	if c.onLoop() {
		f()
		return
	}
	done := make(chan struct{})
	if !c.post(func() { f(); close(done) }) {
		return
	}
	<-done
}

// after schedules f on the loop after delay d.
func (c *Clip) after(d time.Duration, f func()) {
	time.AfterFunc(d, func() { c.post(f) })
}

func (c *Clip) emit(event string, data interface{}) {
	c.events.emit(event, data)
}

// ID returns the clip's unique identifier.
func (c *Clip) ID() string { return c.id }

// URL returns the configured source URL.
func (c *Clip) URL() string { return c.cfg.URL }

// Buffer starts (or continues) loading and returns a channel that resolves
// when enough is buffered: with toCompletion, when the whole stream has
// loaded; otherwise as soon as the clip can play through.
func (c *Clip) Buffer(toCompletion bool) <-chan error {
	ch := make(chan error, 1)
	ok := c.post(func() {
		if c.disposed {
			ch <- newError(CodeDisposed, c.cfg.URL, nil, "clip is disposed")
			return
		}
		c.ensureLoading()
		if (toCompletion && c.loaded) || (!toCompletion && c.canplay) {
			ch <- nil
			return
		}
		c.bufferWaiters = append(c.bufferWaiters, bufferWaiter{toCompletion: toCompletion, ch: ch})
	})
	if !ok {
		ch <- newError(CodeDisposed, c.cfg.URL, nil, "clip is disposed")
	}
	return ch
}

// Play starts playback, loading first if necessary. If the clip cannot play
// through yet, a warning is logged and playback is deferred until it can.
// The returned channel resolves nil when playback reaches the end, or with
// a DISPOSED error if the clip is disposed first.
func (c *Clip) Play() <-chan error {
	ch := make(chan error, 1)
	ok := c.post(func() {
		if c.disposed {
			ch <- newError(CodeDisposed, c.cfg.URL, nil, "clip is disposed")
			return
		}
		c.playWaiters = append(c.playWaiters, ch)
		c.ensureLoading()

		if c.sched.state == statePlaying || c.sched.state == stateStarting {
			log.Printf("clip %s: warning: %v", c.id,
				newError(CodeInvalidOperation, c.cfg.URL, nil, "play requested while already playing"))
			return
		}
		if !c.canplay {
			log.Printf("clip %s: warning: play requested before canplaythrough, deferring", c.id)
			c.playRequested = true
			return
		}
		c.sched.play()
	})
	if !ok {
		ch <- newError(CodeDisposed, c.cfg.URL, nil, "clip is disposed")
	}
	return ch
}

// Pause halts playback immediately, capturing the current position.
// Pausing a clip that is not playing is a logged no-op.
func (c *Clip) Pause() {
	c.call(func() {
		if c.sched.state != statePlaying && c.sched.state != stateStarting {
			log.Printf("clip %s: warning: %v", c.id,
				newError(CodeInvalidOperation, c.cfg.URL, nil, "pause requested while not playing"))
			return
		}
		c.playRequested = false
		c.sched.pause()
		c.events.emit(EventPause, nil)
	})
}

// CurrentTime returns the playback position in seconds.
func (c *Clip) CurrentTime() float64 {
	var t float64
	c.call(func() { t = c.sched.currentTime() })
	return t
}

// SetCurrentTime seeks. Seeking while playing performs pause-seek-resume.
func (c *Clip) SetCurrentTime(t float64) {
	c.call(func() { c.sched.seek(t) })
}

// Duration returns the clip's total duration. ok is false while any
// chunk's duration is still unknown.
func (c *Clip) Duration() (seconds float64, ok bool) {
	c.call(func() { seconds, ok = c.totalDuration() })
	return seconds, ok
}

// Volume returns the output gain (0..1).
func (c *Clip) Volume() float64 {
	var v float64
	c.call(func() { v = c.volume })
	return v
}

// SetVolume sets the output gain (clamped to 0..1), applied immediately to
// any sounding sources.
func (c *Clip) SetVolume(v float64) {
	if v < 0 {
		v = 0
	}
	if v > 1 {
		v = 1
	}
	c.call(func() {
		c.volume = v
		c.sched.setVolume(v)
	})
}

// State returns the playback state name: stopped, starting, playing,
// paused, or ended.
func (c *Clip) State() string {
	var s string
	c.call(func() { s = c.sched.state.String() })
	return s
}

// Loaded reports whether the whole stream has been received.
func (c *Clip) Loaded() bool {
	var v bool
	c.call(func() { v = c.loaded })
	return v
}

// CanPlayThrough reports whether the buffering heuristic has latched.
func (c *Clip) CanPlayThrough() bool {
	var v bool
	c.call(func() { v = c.canplay })
	return v
}

// On registers a handler for the named event. The returned id removes it
// via Off.
func (c *Clip) On(event string, fn Handler) ListenerID {
	var id ListenerID
	c.call(func() { id = c.events.on(event, fn, false) })
	return id
}

// Once registers a handler that unsubscribes itself after first delivery.
func (c *Clip) Once(event string, fn Handler) ListenerID {
	var id ListenerID
	c.call(func() { id = c.events.on(event, fn, true) })
	return id
}

// Off removes a previously registered handler.
func (c *Clip) Off(event string, id ListenerID) {
	c.call(func() { c.events.off(event, id) })
}

// Dispose cancels any in-flight load, stops playback, drops the chunk
// chain, and rejects outstanding waiters. The clip is unusable afterwards.
func (c *Clip) Dispose() {
	c.call(func() {
		if c.disposed {
			return
		}
		c.disposed = true
		c.cfg.Transport.Cancel()
		c.sched.stop()
		c.arena.clear()
		c.loading = false

		rejection := newError(CodeDisposed, c.cfg.URL, nil, "clip disposed before playback completed")
		c.resolvePlayWaiters(rejection)
		for _, w := range c.bufferWaiters {
			w.ch <- rejection
		}
		c.bufferWaiters = nil

		c.events.emit(EventDispose, nil)
		log.Printf("clip %s: disposed", c.id)
	})
	finish := func() {
		c.postMu.Lock()
		c.closed = true
		c.postMu.Unlock()
		c.cancel()
	}
	if c.onLoop() {
		// Closing the gate takes the write lock, which waits for in-flight
		// posts; those can block on a full queue until the loop resumes.
		go finish()
	} else {
		finish()
	}
}

// Clone returns an independent Clip that reuses this clip's downloaded
// chunk chain read-only: its own scheduler, event bus, volume, and
// position, without re-downloading. The source clip must be fully loaded.
func (c *Clip) Clone() (*Clip, error) {
	var (
		out *Clip
		err error
	)
	c.call(func() {
		if c.disposed {
			err = newError(CodeDisposed, c.cfg.URL, nil, "cannot clone a disposed clip")
			return
		}
		if !c.loaded {
			err = newError(CodeInvalidOperation, c.cfg.URL, nil, "cannot clone before load completes")
			return
		}
		out = newClip(c.cfg)
		out.call(func() {
			out.arena.chunks = append([]*chunk(nil), c.arena.chunks...)
			out.loaded = true
			out.canplay = true
			out.receivedBytes = c.receivedBytes
			out.totalBytes = c.totalBytes
			out.header = c.header
		})
	})
	return out, err
}

// ensureLoading starts the transport on first use. A load that previously
// failed may be retried by calling Buffer or Play again.
func (c *Clip) ensureLoading() {
	if c.loading || c.loaded || c.disposed {
		return
	}
	c.loading = true
	c.loadStart = time.Now()
	c.seg = newSegmenter(c.cfg.Adapter, c.cfg.TargetChunkSize, c.onChunkData, c.onHeader)

	log.Printf("clip %s: loading %s", c.id, c.cfg.URL)
	c.cfg.Transport.Load(transport.Callbacks{
		OnProgress: func(fraction float64, received, total int64) {
			c.post(func() { c.onProgress(fraction, received, total) })
		},
		OnData: func(p []byte) {
			c.post(func() { c.seg.write(p) })
		},
		OnLoad: func() {
			c.post(c.onTransportLoad)
		},
		OnError: func(err error) {
			c.post(func() { c.onTransportError(err) })
		},
	})
}

func (c *Clip) onProgress(fraction float64, received, total int64) {
	if !c.loading {
		return
	}
	c.receivedBytes = received
	c.totalBytes = total
	c.events.emit(EventLoadProgress, LoadProgress{
		Fraction:      fraction,
		ReceivedBytes: received,
		TotalBytes:    total,
	})
	c.evaluateCanPlay()
}

// onChunkData receives a drained frame-aligned segment from the segmenter,
// appends it to the chain, and kicks off its asynchronous decode.
func (c *Clip) onChunkData(data []byte) {
	ch := newChunk(data)
	idx := c.arena.append(ch)
	ch.whenReady(func() { c.onChunkReady(idx) })

	adapterImpl := c.cfg.Adapter
	eng := c.cfg.Engine
	go func() {
		first, seconds, frames, err := decodeChunk(data, adapterImpl, func(b []byte) error {
			_, derr := eng.Decode(b)
			return derr
		})
		c.post(func() {
			if c.disposed {
				return
			}
			if err != nil {
				ch.failed = true
				c.emitLoadError(newError(CodeCouldNotDecode, c.cfg.URL, err,
					"chunk %d could not be decoded", idx))
				return
			}
			ch.firstByte = first
			ch.setDuration(seconds, frames)
		})
	}()
}

func (c *Clip) onChunkReady(int) {
	c.evaluateCanPlay()
}

func (c *Clip) onHeader(header []byte) {
	c.header = header
	if meta, ok := parseHeaderTags(header); ok {
		c.events.emit(EventMetadata, meta)
	} else {
		log.Printf("clip %s: container header carried no readable tags (%d bytes)", c.id, len(header))
	}
}

func (c *Clip) onTransportLoad() {
	if !c.loading {
		return
	}
	c.seg.finish()
	if last := c.arena.last(); last != nil {
		last.attach(noNext)
	}
	c.loading = false
	c.loaded = true

	// With the full stream local, playthrough is no longer an estimate.
	c.setCanPlay()
	c.events.emit(EventLoad, nil)
	c.resolveBufferWaiters(true, nil)
	log.Printf("clip %s: load complete (%d chunks, %d bytes)", c.id, c.arena.len(), c.receivedBytes)
}

func (c *Clip) onTransportError(err error) {
	if !c.loading {
		return
	}
	c.loading = false // reset so a retry can be attempted
	e := newError(CodeCouldNotLoad, c.cfg.URL, err, "load failed")
	c.emitLoadError(e)
	c.rejectBufferWaiters(e)
}

// evaluateCanPlay re-runs the buffering heuristic over the leading run of
// duration-known chunks.
func (c *Clip) evaluateCanPlay() {
	if c.canplay || c.disposed {
		return
	}

	var decodedDuration float64
	var decodedBytes int64
	for i := 0; i < c.arena.len(); i++ {
		ch := c.arena.at(i)
		if !ch.hasDuration {
			break
		}
		decodedDuration += ch.duration
		decodedBytes += int64(len(ch.data))
	}

	if c.heur.evaluate(decodedDuration, decodedBytes, c.receivedBytes, c.totalBytes, time.Since(c.loadStart)) {
		c.setCanPlay()
	}
}

// setCanPlay latches the canplaythrough state and releases anything
// waiting on it: buffer waiters and a deferred play request.
func (c *Clip) setCanPlay() {
	if c.canplay {
		return
	}
	c.canplay = true
	c.events.emit(EventCanPlayThrough, nil)
	c.resolveBufferWaiters(false, nil)

	if c.playRequested {
		c.playRequested = false
		if c.sched.state != statePlaying && c.sched.state != stateStarting {
			c.sched.play()
		}
	}
}

// handleEnded reacts to the scheduler reaching end-of-content.
func (c *Clip) handleEnded() {
	c.events.emit(EventEnded, nil)
	c.resolvePlayWaiters(nil)
	log.Printf("clip %s: playback ended", c.id)
}

func (c *Clip) totalDuration() (float64, bool) {
	if !c.loaded || c.arena.len() == 0 {
		return 0, false
	}
	var sum float64
	for i := 0; i < c.arena.len(); i++ {
		ch := c.arena.at(i)
		if !ch.hasDuration {
			return 0, false
		}
		sum += ch.duration
	}
	return sum, true
}

func (c *Clip) emitLoadError(e *Error) {
	log.Printf("clip %s: %v", c.id, e)
	c.events.emit(EventLoadError, e)
}

func (c *Clip) emitPlaybackError(e *Error) {
	log.Printf("clip %s: %v", c.id, e)
	c.events.emit(EventPlaybackError, e)
}

func (c *Clip) resolvePlayWaiters(err error) {
	for _, ch := range c.playWaiters {
		ch <- err
	}
	c.playWaiters = nil
}

// resolveBufferWaiters releases waiters of the given kind; completion
// waiters also satisfy canplaythrough-level waits.
func (c *Clip) resolveBufferWaiters(toCompletion bool, err error) {
	var keep []bufferWaiter
	for _, w := range c.bufferWaiters {
		if w.toCompletion && !toCompletion {
			keep = append(keep, w)
			continue
		}
		w.ch <- err
	}
	c.bufferWaiters = keep
}

func (c *Clip) rejectBufferWaiters(e *Error) {
	for _, w := range c.bufferWaiters {
		w.ch <- e
	}
	c.bufferWaiters = nil
}
