// ABOUTME: WebSocket transport for live byte streams
// ABOUTME: Binary messages are data pieces; total size is unknown
package transport

import (
	"fmt"
	"sync"

	"github.com/gorilla/websocket"
)

// WS streams bytes from a WebSocket endpoint. Each binary message is one
// data piece. The total size is unknown, so progress fraction stays 0 and
// a clean close from the peer maps to load completion.
type WS struct {
	url string

	mu        sync.Mutex
	conn      *websocket.Conn
	cancelled bool
}

// NewWS creates a WebSocket transport for a ws:// or wss:// URL.
func NewWS(url string) *WS {
	return &WS{url: url}
}

// Load dials the endpoint and starts reading messages.
func (t *WS) Load(cb Callbacks) {
	go t.run(cb)
}

// Cancel closes the connection. A cancelled load emits no completion.
func (t *WS) Cancel() {
	t.mu.Lock()
	t.cancelled = true
	conn := t.conn
	t.mu.Unlock()

	if conn != nil {
		conn.Close()
	}
}

func (t *WS) run(cb Callbacks) {
	conn, _, err := websocket.DefaultDialer.Dial(t.url, nil)
	if err != nil {
		cb.fail(fmt.Errorf("dial failed for %s: %w", t.url, err))
		return
	}

	t.mu.Lock()
	if t.cancelled {
		t.mu.Unlock()
		conn.Close()
		return
	}
	t.conn = conn
	t.mu.Unlock()

	var received int64
	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			t.mu.Lock()
			cancelled := t.cancelled
			t.mu.Unlock()
			if cancelled {
				return
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				cb.load()
				return
			}
			cb.fail(fmt.Errorf("read failed for %s: %w", t.url, err))
			return
		}
		if msgType != websocket.BinaryMessage || len(data) == 0 {
			continue
		}

		received += int64(len(data))
		cb.data(data)
		cb.progress(0, received, 0)
	}
}
