package cohere

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/bitop-dev/cohere/internal/chat"
)

// fakeTransport answers calls and streams from callbacks, recording every
// request.
type fakeTransport struct {
	mu sync.Mutex

	requests []chat.Request

	call   func(n int, req chat.Request) (chat.Response, error)
	stream func(n int, req chat.Request) ([]string, error)
}

func (f *fakeTransport) Call(ctx context.Context, req chat.Request) (chat.Response, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	n := len(f.requests) - 1
	fn := f.call
	f.mu.Unlock()
	if fn == nil {
		return chat.Response{}, fmt.Errorf("fakeTransport.Call not configured")
	}
	return fn(n, req)
}

func (f *fakeTransport) Stream(ctx context.Context, req chat.Request) (chat.Frames, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	n := len(f.requests) - 1
	fn := f.stream
	f.mu.Unlock()
	if fn == nil {
		return nil, fmt.Errorf("fakeTransport.Stream not configured")
	}
	frames, err := fn(n, req)
	if err != nil {
		return nil, err
	}
	return &sliceFrames{data: frames}, nil
}

func (f *fakeTransport) Requests() []chat.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]chat.Request, len(f.requests))
	copy(out, f.requests)
	return out
}

// sliceFrames replays wire-format payloads.
type sliceFrames struct {
	data   []string
	pos    int
	closed bool
}

func (f *sliceFrames) Next() bool {
	if f.closed || f.pos >= len(f.data) {
		return false
	}
	f.pos++
	return true
}

func (f *sliceFrames) Data() []byte { return []byte(strings.TrimSpace(f.data[f.pos-1])) }
func (f *sliceFrames) Err() error   { return nil }
func (f *sliceFrames) Close() error {
	f.closed = true
	return nil
}

func newTestClient(ft *fakeTransport) *Client {
	return NewClient(Config{APIKey: "test", transport: ft})
}
