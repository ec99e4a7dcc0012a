package conversation

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/bitop-dev/cohere/internal/chat"
)

// fakeTransport replays scripted turns and records every request it receives.
type fakeTransport struct {
	mu       sync.Mutex
	calls    []chat.Response
	streams  [][]chat.Chunk
	err      error
	requests []chat.Request

	// afterStreamFrame, when set, runs before frame i of every stream.
	afterStreamFrame func(i int) bool
}

func (f *fakeTransport) Call(ctx context.Context, req chat.Request) (chat.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	if f.err != nil {
		return chat.Response{}, f.err
	}
	if len(f.calls) == 0 {
		return chat.Response{}, fmt.Errorf("fake transport: no scripted response")
	}
	resp := f.calls[0]
	if len(f.calls) > 1 {
		f.calls = f.calls[1:]
	}
	return resp, nil
}

func (f *fakeTransport) Stream(ctx context.Context, req chat.Request) (chat.Frames, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	if f.err != nil {
		return nil, f.err
	}
	if len(f.streams) == 0 {
		return nil, fmt.Errorf("fake transport: no scripted stream")
	}
	chunks := f.streams[0]
	if len(f.streams) > 1 {
		f.streams = f.streams[1:]
	}
	frames := &fakeFrames{onNext: f.afterStreamFrame}
	for _, c := range chunks {
		b, err := json.Marshal(c)
		if err != nil {
			return nil, err
		}
		frames.data = append(frames.data, string(b))
	}
	frames.data = append(frames.data, "[DONE]")
	return frames, nil
}

func (f *fakeTransport) requestCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

type fakeFrames struct {
	data   []string
	pos    int
	closed bool
	onNext func(i int) bool
}

func (f *fakeFrames) Next() bool {
	if f.closed || f.pos >= len(f.data) {
		return false
	}
	if f.onNext != nil && !f.onNext(f.pos) {
		return false
	}
	f.pos++
	return true
}

func (f *fakeFrames) Data() []byte { return []byte(f.data[f.pos-1]) }
func (f *fakeFrames) Err() error   { return nil }
func (f *fakeFrames) Close() error {
	f.closed = true
	return nil
}

func decodeJSONChunk(data []byte) (chat.Chunk, error) {
	var c chat.Chunk
	err := json.Unmarshal(data, &c)
	return c, err
}

func intp(v int) *int { return &v }

func usageOf(in, out int) chat.Usage {
	return chat.Usage{InputTokens: intp(in), OutputTokens: intp(out)}
}

func textResponse(id, text string, u chat.Usage) chat.Response {
	return chat.Response{
		ID:           id,
		FinishReason: chat.FinishComplete,
		Generations: []chat.Generation{{
			Message:      chat.Message{Role: chat.RoleAssistant, Content: []chat.ContentPart{chat.TextPart{Text: text}}},
			FinishReason: chat.FinishComplete,
		}},
		Usage: u,
	}
}

func toolCallResponse(id string, u chat.Usage, calls ...chat.ToolCall) chat.Response {
	return chat.Response{
		ID:           id,
		FinishReason: chat.FinishToolCall,
		Generations: []chat.Generation{{
			Message:      chat.Message{Role: chat.RoleAssistant, ToolCalls: calls},
			FinishReason: chat.FinishToolCall,
		}},
		Usage: u,
	}
}
