// ABOUTME: Byte transport contract for progressive audio loading
// ABOUTME: Progress/data/completion/error callbacks plus cancellation
// Package transport provides the byte transports that feed the streaming
// pipeline: progressive HTTP, WebSocket, and local files.
//
// A transport pushes arbitrarily sized byte pieces to its callbacks as they
// arrive; it never buffers the whole stream. All callbacks for one Load are
// invoked sequentially from a single goroutine.
package transport

// Callbacks receives transport events. Any field may be nil.
type Callbacks struct {
	// OnProgress reports download progress after each delivered piece.
	// fraction is 0 when the total size is unknown.
	OnProgress func(fraction float64, receivedBytes, totalBytes int64)

	// OnData delivers the next piece of the byte stream. The slice is
	// owned by the receiver.
	OnData func(p []byte)

	// OnLoad signals that the stream completed successfully.
	OnLoad func()

	// OnError signals a fatal transport failure. No further callbacks
	// follow.
	OnError func(err error)
}

// Transport streams bytes from a source. Load starts delivery in the
// background and returns immediately; Cancel stops an in-flight load.
type Transport interface {
	Load(cb Callbacks)
	Cancel()
}

func (cb Callbacks) progress(fraction float64, received, total int64) {
	if cb.OnProgress != nil {
		cb.OnProgress(fraction, received, total)
	}
}

func (cb Callbacks) data(p []byte) {
	if cb.OnData != nil {
		cb.OnData(p)
	}
}

func (cb Callbacks) load() {
	if cb.OnLoad != nil {
		cb.OnLoad()
	}
}

func (cb Callbacks) fail(err error) {
	if cb.OnError != nil {
		cb.OnError(err)
	}
}
