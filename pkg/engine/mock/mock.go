// ABOUTME: In-memory mock of the decode-and-schedule engine for tests
// ABOUTME: Scripted decoding, manual output clock, recorded schedule calls
// Package mock provides an in-memory mock implementation of [engine.Engine]
// for use in unit tests.
//
// The mock records every Schedule call and its gain automation, exposes a
// manually advanced output clock, and lets the test script decode results
// via exported fields. It is safe for concurrent use.
package mock

import (
	"fmt"
	"sync"

	"github.com/clipstream/clipstream-go/pkg/engine"
)

// Compile-time interface assertion.
var _ engine.Engine = (*Engine)(nil)

// Ramp records one RampGain call on a scheduled source.
type Ramp struct {
	From, To   float64
	Start, End float64
}

// Source records one scheduled buffer and everything done to it.
type Source struct {
	mu sync.Mutex

	Buf    *engine.PCMBuffer
	When   float64
	Offset float64

	Gain         float64
	Ramps        []Ramp
	Stopped      bool
	Disconnected bool
}

// SetGain records the new base gain.
func (s *Source) SetGain(gain float64) {
	s.mu.Lock()
	s.Gain = gain
	s.mu.Unlock()
}

// RampGain records a gain automation segment.
func (s *Source) RampGain(from, to, rampStart, rampEnd float64) {
	s.mu.Lock()
	s.Ramps = append(s.Ramps, Ramp{From: from, To: to, Start: rampStart, End: rampEnd})
	s.mu.Unlock()
}

// Stop marks the source stopped.
func (s *Source) Stop() {
	s.mu.Lock()
	s.Stopped = true
	s.mu.Unlock()
}

// Disconnect marks the source disconnected.
func (s *Source) Disconnect() {
	s.mu.Lock()
	s.Disconnected = true
	s.mu.Unlock()
}

// LastGain returns the current base gain.
func (s *Source) LastGain() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Gain
}

// RampList returns a copy of the recorded gain automation.
func (s *Source) RampList() []Ramp {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Ramp(nil), s.Ramps...)
}

// IsStopped reports whether Stop was called.
func (s *Source) IsStopped() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Stopped
}

// IsDisconnected reports whether Disconnect was called.
func (s *Source) IsDisconnected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Disconnected
}

// Engine is a mock implementation of [engine.Engine].
//
// DecodeFunc scripts decoding; when nil, every decode succeeds and yields a
// buffer whose duration in seconds equals len(data) / BytesPerSecond at a
// 1000 Hz mono sample rate, which keeps test arithmetic simple.
type Engine struct {
	mu sync.Mutex

	// DecodeFunc, if set, is called for every Decode.
	DecodeFunc func(data []byte) (*engine.PCMBuffer, error)

	// BytesPerSecond controls the default decode duration mapping
	// (default 1000, so 1000 bytes decode to one second of audio).
	BytesPerSecond int

	// ScheduleErr, if set, is returned by every Schedule call.
	ScheduleErr error

	clock     float64
	Scheduled []*Source
	Closed    bool
	Decodes   int
}

// Decode returns the scripted or derived PCM buffer.
func (e *Engine) Decode(data []byte) (*engine.PCMBuffer, error) {
	e.mu.Lock()
	e.Decodes++
	fn := e.DecodeFunc
	bps := e.BytesPerSecond
	e.mu.Unlock()

	if fn != nil {
		return fn(data)
	}
	if bps == 0 {
		bps = 1000
	}
	frames := len(data) * 1000 / bps
	return &engine.PCMBuffer{
		SampleRate: 1000,
		Channels:   1,
		Samples:    make([]int16, frames),
	}, nil
}

// Now returns the manually advanced output clock.
func (e *Engine) Now() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.clock
}

// Advance moves the output clock forward by dt seconds.
func (e *Engine) Advance(dt float64) {
	e.mu.Lock()
	e.clock += dt
	e.mu.Unlock()
}

// Schedule records the call and returns a recording source handle.
func (e *Engine) Schedule(buf *engine.PCMBuffer, when, offset float64) (engine.Source, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.ScheduleErr != nil {
		return nil, e.ScheduleErr
	}
	if e.Closed {
		return nil, fmt.Errorf("engine is closed")
	}
	src := &Source{Buf: buf, When: when, Offset: offset, Gain: 1.0}
	e.Scheduled = append(e.Scheduled, src)
	return src, nil
}

// Close marks the engine closed.
func (e *Engine) Close() error {
	e.mu.Lock()
	e.Closed = true
	e.mu.Unlock()
	return nil
}

// ScheduledAt returns the i-th schedule record, or nil.
func (e *Engine) ScheduledAt(i int) *Source {
	e.mu.Lock()
	defer e.mu.Unlock()
	if i < 0 || i >= len(e.Scheduled) {
		return nil
	}
	return e.Scheduled[i]
}

// LastScheduled returns the most recent schedule record, or nil.
func (e *Engine) LastScheduled() *Source {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.Scheduled) == 0 {
		return nil
	}
	return e.Scheduled[len(e.Scheduled)-1]
}

// ScheduledCount returns how many buffers have been scheduled.
func (e *Engine) ScheduledCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.Scheduled)
}
