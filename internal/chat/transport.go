package chat

import "context"

// Transport performs one model exchange. Retries, if any, apply to a single
// Call or to opening a single Stream.
type Transport interface {
	Call(ctx context.Context, req Request) (Response, error)
	Stream(ctx context.Context, req Request) (Frames, error)
}

// Frames is an ordered sequence of raw stream payloads.
type Frames interface {
	Next() bool
	Data() []byte
	Err() error
	Close() error
}

type Request struct {
	Messages []Message
	Tools    []ToolDefinition
	Options  Options
	Stream   bool
}
