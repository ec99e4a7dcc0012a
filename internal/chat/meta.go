package chat

import "context"

// ToolMeta describes the invocation a tool handler is serving.
type ToolMeta struct {
	ToolName   string
	ToolCallID string
	// Context is the caller's tool context from Options.ToolContext.
	Context map[string]any
}

type toolMetaKey struct{}

func WithToolMeta(ctx context.Context, meta ToolMeta) context.Context {
	return context.WithValue(ctx, toolMetaKey{}, meta)
}

func ToolMetaFrom(ctx context.Context) (ToolMeta, bool) {
	if ctx == nil {
		return ToolMeta{}, false
	}
	meta, ok := ctx.Value(toolMetaKey{}).(ToolMeta)
	return meta, ok
}
