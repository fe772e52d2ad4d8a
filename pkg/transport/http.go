// ABOUTME: Progressive HTTP transport
// ABOUTME: Streams a response body in pieces with byte-level progress
package transport

import (
	"context"
	"fmt"
	"io"
	"net/http"
)

// httpReadSize is how many bytes are read from the response body per
// delivery piece.
const httpReadSize = 32 * 1024

// HTTP streams a URL progressively over HTTP GET.
type HTTP struct {
	url    string
	client *http.Client
	cancel context.CancelFunc
}

// NewHTTP creates an HTTP transport for url. A nil client uses
// http.DefaultClient.
func NewHTTP(url string, client *http.Client) *HTTP {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTP{url: url, client: client}
}

// Load starts the download. Callbacks fire from a single goroutine until
// OnLoad or OnError.
func (t *HTTP) Load(cb Callbacks) {
	ctx, cancel := context.WithCancel(context.Background())
	t.cancel = cancel

	go t.run(ctx, cb)
}

// Cancel aborts an in-flight load. Aborted loads emit no completion.
func (t *HTTP) Cancel() {
	if t.cancel != nil {
		t.cancel()
	}
}

func (t *HTTP) run(ctx context.Context, cb Callbacks) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.url, nil)
	if err != nil {
		cb.fail(fmt.Errorf("failed to create request for %s: %w", t.url, err))
		return
	}

	resp, err := t.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return // cancelled, stay silent
		}
		cb.fail(fmt.Errorf("request failed for %s: %w", t.url, err))
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		cb.fail(fmt.Errorf("unexpected status %d for %s", resp.StatusCode, t.url))
		return
	}

	total := resp.ContentLength
	if total < 0 {
		total = 0
	}

	var received int64
	buf := make([]byte, httpReadSize)
	for {
		n, err := resp.Body.Read(buf)
		if n > 0 {
			received += int64(n)
			piece := make([]byte, n)
			copy(piece, buf[:n])
			cb.data(piece)

			fraction := 0.0
			if total > 0 {
				fraction = float64(received) / float64(total)
			}
			cb.progress(fraction, received, total)
		}
		if err == io.EOF {
			cb.load()
			return
		}
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			cb.fail(fmt.Errorf("read failed for %s: %w", t.url, err))
			return
		}
	}
}
