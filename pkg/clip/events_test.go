// ABOUTME: Event bus unit tests: ordering, once semantics, dispatch safety
// ABOUTME: Exercises the emitter directly, off the clip loop
package clip

import "testing"

func TestEmitterDeliversInRegistrationOrder(t *testing.T) {
	e := newEmitter()
	var order []int
	e.on("x", func(interface{}) { order = append(order, 1) }, false)
	e.on("x", func(interface{}) { order = append(order, 2) }, false)
	e.on("x", func(interface{}) { order = append(order, 3) }, false)

	e.emit("x", nil)

	if len(order) != 3 || order[0] != 1 || order[1] != 2 || order[2] != 3 {
		t.Errorf("delivery order %v, want [1 2 3]", order)
	}
}

func TestEmitterOnceFiresExactlyOnce(t *testing.T) {
	e := newEmitter()
	calls := 0
	e.on("x", func(interface{}) { calls++ }, true)

	e.emit("x", nil)
	e.emit("x", nil)

	if calls != 1 {
		t.Errorf("once handler ran %d times, want 1", calls)
	}
}

func TestEmitterOffRemovesHandler(t *testing.T) {
	e := newEmitter()
	calls := 0
	id := e.on("x", func(interface{}) { calls++ }, false)
	e.emit("x", nil)
	e.off("x", id)
	e.emit("x", nil)

	if calls != 1 {
		t.Errorf("handler ran %d times after removal, want 1", calls)
	}
}

func TestEmitterRemovalDuringDispatchDoesNotSkip(t *testing.T) {
	e := newEmitter()
	var fired []string
	var firstID ListenerID
	firstID = e.on("x", func(interface{}) {
		fired = append(fired, "a")
		e.off("x", firstID)
	}, false)
	e.on("x", func(interface{}) { fired = append(fired, "b") }, false)

	e.emit("x", nil)

	if len(fired) != 2 || fired[0] != "a" || fired[1] != "b" {
		t.Errorf("dispatch with re-entrant removal fired %v, want [a b]", fired)
	}
}

func TestEmitterRegistrationDuringDispatchDeferred(t *testing.T) {
	e := newEmitter()
	calls := 0
	e.on("x", func(interface{}) {
		e.on("x", func(interface{}) { calls++ }, false)
	}, false)

	e.emit("x", nil)
	if calls != 0 {
		t.Error("handler registered during dispatch must not see the in-flight event")
	}
	e.emit("x", nil)
	if calls != 1 {
		t.Error("handler registered during dispatch must see subsequent events")
	}
}

func TestEmitterPayloadPassedThrough(t *testing.T) {
	e := newEmitter()
	var got interface{}
	e.on("x", func(data interface{}) { got = data }, false)

	e.emit("x", 42)
	if v, ok := got.(int); !ok || v != 42 {
		t.Errorf("payload = %v, want 42", got)
	}
}
