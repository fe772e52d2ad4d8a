// ABOUTME: Per-clip event bus with copy-on-dispatch semantics
// ABOUTME: Ordered delivery, once-listeners, and dispatch-safe removal
package clip

// Event names emitted by a Clip.
const (
	EventLoadProgress   = "loadprogress"
	EventCanPlayThrough = "canplaythrough"
	EventLoad           = "load"
	EventMetadata       = "metadata"
	EventPlay           = "play"
	EventPause          = "pause"
	EventProgress       = "progress"
	EventEnded          = "ended"
	EventLoadError      = "loaderror"
	EventPlaybackError  = "playbackerror"
	EventDispose        = "dispose"
)

// Handler receives an event payload. Payload types per event:
// loadprogress carries LoadProgress, progress carries a float64 position in
// seconds, metadata carries Metadata, loaderror and playbackerror carry
// *Error, everything else carries nil.
type Handler func(data interface{})

// ListenerID identifies a registered handler for removal.
type ListenerID int64

type listener struct {
	id   ListenerID
	fn   Handler
	once bool
}

// emitter maps event names to ordered listener lists. It is confined to
// the clip's run loop: registration from other goroutines is posted there,
// so no locking is needed. Dispatch snapshots the list first, so handlers
// may add or remove listeners without affecting the in-flight delivery.
type emitter struct {
	listeners map[string][]listener
	nextID    ListenerID
}

func newEmitter() *emitter {
	return &emitter{listeners: make(map[string][]listener)}
}

func (e *emitter) on(event string, fn Handler, once bool) ListenerID {
	e.nextID++
	id := e.nextID
	e.listeners[event] = append(e.listeners[event], listener{id: id, fn: fn, once: once})
	return id
}

func (e *emitter) off(event string, id ListenerID) {
	list := e.listeners[event]
	for i, l := range list {
		if l.id == id {
			e.listeners[event] = append(list[:i:i], list[i+1:]...)
			return
		}
	}
}

// emit delivers the event to a snapshot of the current listeners, in
// registration order. Once-listeners are unregistered before their handler
// runs, so re-entrant emits cannot double-deliver.
func (e *emitter) emit(event string, data interface{}) {
	list := e.listeners[event]
	if len(list) == 0 {
		return
	}
	snapshot := make([]listener, len(list))
	copy(snapshot, list)

	for _, l := range snapshot {
		if l.once {
			e.off(event, l.id)
		}
		l.fn(data)
	}
}
