// ABOUTME: Tests for PCM buffer math and mixer gain automation
// ABOUTME: Exercises the pure mixing paths without opening an audio device
package engine

import (
	"math"
	"testing"
)

func TestPCMBufferDuration(t *testing.T) {
	buf := &PCMBuffer{
		SampleRate: 44100,
		Channels:   2,
		Samples:    make([]int16, 44100*2), // one second, stereo
	}

	if buf.NumFrames() != 44100 {
		t.Errorf("expected 44100 frames, got %d", buf.NumFrames())
	}
	if math.Abs(buf.Duration()-1.0) > 1e-9 {
		t.Errorf("expected duration 1.0s, got %v", buf.Duration())
	}

	empty := &PCMBuffer{}
	if empty.Duration() != 0 {
		t.Errorf("expected zero duration for empty buffer, got %v", empty.Duration())
	}
}

func TestGainRampInterpolation(t *testing.T) {
	src := &otoSource{engine: &Oto{}, gain: 1.0}
	src.RampGain(0, 1, 2.0, 2.2)

	cases := []struct {
		t    float64
		want float64
	}{
		{1.9, 1.0}, // before the ramp, base gain
		{2.0, 0.0},
		{2.1, 0.5},
		{2.2, 1.0},
		{3.0, 1.0}, // after the ramp, final value holds
	}
	for _, c := range cases {
		if got := src.gainAt(c.t); math.Abs(got-c.want) > 1e-9 {
			t.Errorf("gainAt(%v): expected %v, got %v", c.t, c.want, got)
		}
	}
}

func TestGainRampSequence(t *testing.T) {
	src := &otoSource{engine: &Oto{}, gain: 1.0}
	src.RampGain(1, 0, 1.0, 1.2) // fade out
	src.RampGain(0, 1, 1.5, 1.7) // later fade back in

	if got := src.gainAt(1.3); math.Abs(got) > 1e-9 {
		t.Errorf("expected silence between ramps, got %v", got)
	}
	if got := src.gainAt(1.6); math.Abs(got-0.5) > 1e-9 {
		t.Errorf("expected 0.5 mid second ramp, got %v", got)
	}
}

func TestSourceMixRespectsStartAndOffset(t *testing.T) {
	buf := &PCMBuffer{
		SampleRate: 1000,
		Channels:   1,
		Samples:    []int16{100, 200, 300, 400},
	}
	src := &otoSource{
		engine:      &Oto{},
		buf:         buf,
		startFrame:  2,
		offsetFrame: 1, // skip the first sample
		gain:        1.0,
	}

	acc := make([]int32, 6*2) // 6 frames, stereo output
	alive := src.mix(acc, 0, 6, 2, 1000)
	if !alive {
		t.Fatal("expected source to stay alive within block")
	}

	// Frames 0,1 silent; frames 2..4 carry samples 200,300,400 upmixed
	// to both channels; frame 5 past buffer end.
	want := []int32{0, 0, 0, 0, 200, 200, 300, 300, 400, 400, 0, 0}
	for i := range want {
		if acc[i] != want[i] {
			t.Errorf("acc[%d]: expected %d, got %d", i, want[i], acc[i])
		}
	}

	// Next block starts past the end of the source.
	acc2 := make([]int32, 6*2)
	if src.mix(acc2, 6, 6, 2, 1000) {
		t.Error("expected source to report exhaustion")
	}
}

func TestSourceMixStopped(t *testing.T) {
	buf := &PCMBuffer{SampleRate: 1000, Channels: 1, Samples: []int16{1, 2, 3}}
	src := &otoSource{engine: &Oto{}, buf: buf, gain: 1.0}
	src.Stop()

	acc := make([]int32, 4)
	if src.mix(acc, 0, 4, 1, 1000) {
		t.Error("expected stopped source to be dropped")
	}
	for i, v := range acc {
		if v != 0 {
			t.Errorf("acc[%d]: expected silence, got %d", i, v)
		}
	}
}
