// Package stream implements the client side of the remote service's job
// progress streams: a single-owner subscription handle that decodes framed
// events and exposes the latest progress, terminal result, or error.
package stream

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"github.com/stringvet/stringvet/internal/common"
	"github.com/stringvet/stringvet/internal/model"
)

// Channel owns at most one streaming subscription to a running remote job.
// T is the terminal result type; the caller that started the job knows it
// statically, so translation and verification payloads never share a handle.
//
// Opening a new subscription always closes the previous one first. There is
// no automatic reconnect: a fresh job requires a fresh Connect with a new
// endpoint.
type Channel[T any] struct {
	mu         sync.Mutex
	httpc      *http.Client
	gen        int
	cancel     context.CancelFunc
	term       chan struct{}
	termClosed bool
	active     bool
	completed  bool
	progress   *model.JobProgressEvent
	result     *T
	err        error
	onProgress func(model.JobProgressEvent)
}

// completeFrame is the envelope of a terminal complete event.
type completeFrame struct {
	Complete bool            `json:"complete"`
	Result   json.RawMessage `json:"result"`
}

// errorFrame is the envelope of a terminal error event.
type errorFrame struct {
	Error string `json:"error"`
}

// New creates a channel using the given HTTP client. A nil client gets a
// dedicated one with no timeout: a streaming job has no client-side deadline,
// and a stalled stream stays connected with no escalation.
func New[T any](httpc *http.Client) *Channel[T] {
	if httpc == nil {
		httpc = &http.Client{}
	}
	return &Channel[T]{httpc: httpc}
}

// OnProgress registers an observer invoked serially for every progress frame.
// It must be set before Connect.
func (c *Channel[T]) OnProgress(fn func(model.JobProgressEvent)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onProgress = fn
}

// Connect opens exactly one subscription to the given streaming endpoint,
// closing any previous subscription on this channel first. onComplete is
// invoked at most once, with the decoded terminal result; it never runs on
// the error path.
//
// The returned channel closes when the subscription reaches any terminal
// state (complete, error frame, transport failure, or Disconnect). Callers
// that must observe the error path wait on it and then inspect Err.
func (c *Channel[T]) Connect(ctx context.Context, endpoint string, onComplete func(T)) (<-chan struct{}, error) {
	c.mu.Lock()
	c.disconnectLocked()
	c.gen++
	gen := c.gen

	sctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	term := make(chan struct{})
	c.term = term
	c.termClosed = false
	c.active = true
	c.completed = false
	c.result = nil
	c.err = nil
	c.mu.Unlock()

	req, err := http.NewRequestWithContext(sctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, c.failConnect(gen, common.NewTransportError("building stream request", err))
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, c.failConnect(gen, common.NewTransportError("opening stream", err))
	}
	if resp.StatusCode != http.StatusOK {
		_ = resp.Body.Close()
		return nil, c.failConnect(gen,
			common.NewTransportError(fmt.Sprintf("stream rejected with status %d", resp.StatusCode), nil))
	}

	go c.read(gen, resp.Body, onComplete)

	return term, nil
}

// Disconnect idempotently closes any open subscription, discarding pending
// frames. Exposed progress, result, and error state stay intact.
func (c *Channel[T]) Disconnect() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.disconnectLocked()
}

// Reset disconnects and clears all exposed state to initial values.
func (c *Channel[T]) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.disconnectLocked()
	c.progress = nil
	c.result = nil
	c.err = nil
	c.completed = false
}

// Active reports whether a subscription is open and not yet terminal.
func (c *Channel[T]) Active() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active
}

// Progress returns a copy of the most recently received progress event.
func (c *Channel[T]) Progress() *model.JobProgressEvent {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.progress == nil {
		return nil
	}
	ev := *c.progress
	return &ev
}

// Result returns the terminal result, or nil before completion.
func (c *Channel[T]) Result() *T {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.result
}

// Err returns the channel's error state: the job's error message, or a
// TransportError after a connection drop or undecodable frame.
func (c *Channel[T]) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// disconnectLocked tears down the current subscription. Bumping the
// generation makes any frame still in flight on the old reader stale.
func (c *Channel[T]) disconnectLocked() {
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	c.gen++
	c.active = false
	c.closeTermLocked()
}

func (c *Channel[T]) closeTermLocked() {
	if c.term != nil && !c.termClosed {
		close(c.term)
		c.termClosed = true
	}
}

// failConnect records a connect-time failure for the given subscription,
// unless a newer subscription has already replaced it.
func (c *Channel[T]) failConnect(gen int, err error) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen == c.gen {
		c.err = err
		c.active = false
		c.closeTermLocked()
	}
	return err
}

// read consumes SSE frames until a terminal frame, transport failure, or
// disconnect. It is the only goroutine mutating this subscription's state,
// which keeps batch completion handlers serialized by construction.
func (c *Channel[T]) read(gen int, body io.ReadCloser, onComplete func(T)) {
	defer func() {
		_ = body.Close()
	}()

	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	event := ""
	data := ""
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case line == "":
			if data != "" {
				if terminal := c.dispatch(gen, event, data, onComplete); terminal {
					return
				}
			}
			event, data = "", ""
		case strings.HasPrefix(line, ":"):
			// Heartbeat comment; keeps the connection alive.
		case strings.HasPrefix(line, "event:"):
			event = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			if data != "" {
				data += "\n"
			}
			data += strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		}
	}

	// Stream ended without a terminal frame: connection drop.
	err := scanner.Err()
	if err == nil {
		err = io.ErrUnexpectedEOF
	}
	c.terminate(gen, common.NewTransportError("stream closed before completion", err))
}

// dispatch applies one decoded frame. Frames from a superseded subscription
// are dropped. The return value reports whether the frame was terminal.
func (c *Channel[T]) dispatch(gen int, event, data string, onComplete func(T)) bool {
	switch event {
	case "", "progress":
		var ev model.JobProgressEvent
		if err := json.Unmarshal([]byte(data), &ev); err != nil {
			c.terminate(gen, common.NewTransportError("undecodable progress frame", err))
			return true
		}

		c.mu.Lock()
		if gen != c.gen {
			c.mu.Unlock()
			return true
		}
		c.progress = &ev
		observer := c.onProgress
		c.mu.Unlock()

		if observer != nil {
			observer(ev)
		}
		return false

	case "complete":
		var frame completeFrame
		if err := json.Unmarshal([]byte(data), &frame); err != nil {
			c.terminate(gen, common.NewTransportError("undecodable complete frame", err))
			return true
		}
		var result T
		if len(frame.Result) > 0 {
			if err := json.Unmarshal(frame.Result, &result); err != nil {
				c.terminate(gen, common.NewTransportError("undecodable job result", err))
				return true
			}
		}

		c.mu.Lock()
		if gen != c.gen {
			c.mu.Unlock()
			return true
		}
		c.result = &result
		c.active = false
		fire := !c.completed
		c.completed = true
		c.mu.Unlock()

		// The callback runs before the terminal notification so that a
		// continuation opened inside it owns the slot by the time waiters
		// wake up.
		if fire && onComplete != nil {
			onComplete(result)
		}

		c.mu.Lock()
		if gen == c.gen {
			c.closeTermLocked()
		}
		c.mu.Unlock()
		return true

	case "error":
		var frame errorFrame
		if err := json.Unmarshal([]byte(data), &frame); err != nil {
			c.terminate(gen, common.NewTransportError("undecodable error frame", err))
			return true
		}
		c.terminate(gen, errors.New(frame.Error))
		return true

	default:
		slog.Debug("Ignoring unknown stream event", "event", event)
		return false
	}
}

// terminate records a terminal error state for the given subscription.
// onComplete is never invoked on this path.
func (c *Channel[T]) terminate(gen int, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.gen {
		return
	}
	c.err = err
	c.active = false
	c.closeTermLocked()
}
