// Package aggregate turns a stream of chunk frames into settled chunks, merging
// the fragments of a streamed tool-call invocation into a single chunk.
package aggregate

import (
	"bytes"
	"log/slog"
	"sync/atomic"

	"github.com/bitop-dev/cohere/internal/chat"
)

// DoneSentinel ends a stream without being decoded.
const DoneSentinel = "[DONE]"

type DecodeFunc func(data []byte) (chat.Chunk, error)

// Aggregator pulls frames only when Next is called. Chunks outside a tool-call
// window are emitted one per frame; a window is emitted as one folded chunk
// when the chunk finishing the tool call arrives.
type Aggregator struct {
	frames chat.Frames
	decode DecodeFunc
	logger *slog.Logger

	cur    chat.Chunk
	done   bool
	err    error
	closed atomic.Bool
}

func New(frames chat.Frames, decode DecodeFunc, logger *slog.Logger) *Aggregator {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Aggregator{frames: frames, decode: decode, logger: logger}
}

func (a *Aggregator) Next() bool {
	if a.done || a.err != nil || a.closed.Load() {
		return false
	}

	var win *window
	for a.frames.Next() {
		data := bytes.TrimSpace(a.frames.Data())
		if len(data) == 0 {
			continue
		}
		if string(data) == DoneSentinel {
			a.done = true
			break
		}

		c, err := a.decode(data)
		if err != nil {
			a.fail(err)
			return false
		}

		if win == nil && opensWindow(c) {
			win = newWindow()
		}
		if win == nil {
			a.cur = c
			return true
		}
		win.fold(c)
		if closesWindow(c) {
			a.cur = win.chunk()
			return true
		}
	}

	if a.closed.Load() {
		// Canceled by the consumer; whatever was folded is never observed.
		return false
	}
	if !a.done {
		if err := a.frames.Err(); err != nil {
			a.fail(err)
			return false
		}
		a.done = true
	}
	if win != nil {
		a.cur = win.chunk()
		a.cur.Partial = true
		a.logger.Warn("stream ended inside a tool-call window", "id", a.cur.ID, "tool_calls", len(a.cur.Delta.ToolCalls))
		return true
	}
	return false
}

func (a *Aggregator) Chunk() chat.Chunk { return a.cur }

func (a *Aggregator) Err() error { return a.err }

// Close releases the underlying frames. It may be called from another
// goroutine to cancel a blocked Next.
func (a *Aggregator) Close() error {
	if a.closed.Swap(true) {
		return nil
	}
	return a.frames.Close()
}

func (a *Aggregator) fail(err error) {
	a.err = err
	if !a.closed.Swap(true) {
		_ = a.frames.Close()
	}
}

func opensWindow(c chat.Chunk) bool { return c.HasToolCalls() }

func closesWindow(c chat.Chunk) bool { return c.FinishReason == chat.FinishToolCall }
