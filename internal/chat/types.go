package chat

import (
	"context"
	"encoding/json"
)

type FinishReason string

const (
	FinishComplete     FinishReason = "COMPLETE"
	FinishStopSequence FinishReason = "STOP_SEQUENCE"
	FinishMaxTokens    FinishReason = "MAX_TOKENS"
	FinishToolCall     FinishReason = "TOOL_CALL"
	FinishError        FinishReason = "ERROR"
)

// Usage carries the counters reported for a turn. A nil field means the
// provider never reported that counter, which is not the same as zero.
type Usage struct {
	InputTokens  *int
	OutputTokens *int

	BilledUnits *BilledUnits
}

type BilledUnits struct {
	InputTokens     *int
	OutputTokens    *int
	SearchUnits     *float64
	Classifications *float64
}

type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

type Message struct {
	Role    Role
	Content []ContentPart
	Name    string

	// ToolPlan is the model's reasoning about which tools it is about to call.
	ToolPlan  string
	ToolCalls []ToolCall
	Citations []Citation

	// ToolCallID is used for tool result messages (role=tool) to associate the
	// result with a prior tool call.
	ToolCallID string
}

// Text concatenates the message's text parts.
func (m Message) Text() string {
	var n int
	for _, p := range m.Content {
		if t, ok := p.(TextPart); ok {
			n += len(t.Text)
		}
	}
	if n == 0 {
		return ""
	}
	b := make([]byte, 0, n)
	for _, p := range m.Content {
		if t, ok := p.(TextPart); ok {
			b = append(b, t.Text...)
		}
	}
	return string(b)
}

type ContentPart interface {
	isContentPart()
}

type TextPart struct{ Text string }

func (TextPart) isContentPart() {}

// ImagePart references an image either by URL (including data: URLs) or by
// raw bytes plus media type.
type ImagePart struct {
	URL       string
	Bytes     []byte
	MediaType string
}

func (ImagePart) isContentPart() {}

type ToolCall struct {
	ID        string
	Type      string
	Name      string
	Arguments json.RawMessage
	Index     int
}

type Citation struct {
	Start   int
	End     int
	Text    string
	Type    string
	Sources []CitationSource
}

type CitationSource struct {
	Type       string
	ID         string
	ToolOutput map[string]any
	Document   map[string]any
}

type ToolDefinition struct {
	Name        string
	Description string
	InputSchema json.RawMessage
}

type ToolHandler func(ctx context.Context, input json.RawMessage) (any, error)

// Tool is a caller-supplied function the model may ask to invoke.
type Tool struct {
	Name        string
	Description string
	InputSchema json.RawMessage

	// ReturnDirect hands the tool's output straight back to the caller instead
	// of sending it to the model for another turn.
	ReturnDirect bool

	Handler ToolHandler
}

func (t Tool) Definition() ToolDefinition {
	return ToolDefinition{Name: t.Name, Description: t.Description, InputSchema: t.InputSchema}
}

type Generation struct {
	Message      Message
	FinishReason FinishReason

	// ReturnDirect is set on generations built from tool output that bypassed
	// the model.
	ReturnDirect bool
}

// Response is the settled result of one turn.
type Response struct {
	ID           string
	FinishReason FinishReason
	Generations  []Generation
	Usage        Usage
}

// Message returns the first generation's message, or an empty assistant
// message when there is none.
func (r Response) Message() Message {
	if len(r.Generations) == 0 {
		return Message{Role: RoleAssistant}
	}
	return r.Generations[0].Message
}

// ToolCalls returns the tool calls requested by the first generation.
func (r Response) ToolCalls() []ToolCall {
	if len(r.Generations) == 0 {
		return nil
	}
	return r.Generations[0].Message.ToolCalls
}

type Delta struct {
	Role      Role
	Text      string
	ToolPlan  string
	ToolCalls []ToolCallDelta
	Citations []Citation
}

type ToolCallDelta struct {
	Index int
	ID    string
	Type  string
	Name  string
	// Arguments contains a fragment of the JSON arguments string as it arrives
	// during streaming (it is not guaranteed to be valid JSON by itself).
	Arguments string
}

// Chunk is a single decoded stream frame, or the fold of several frames when
// they belong to one tool-call invocation.
type Chunk struct {
	ID    string
	Index int

	Delta        Delta
	FinishReason FinishReason
	Usage        *Usage

	// Partial is set when the stream ended while a tool-call window was still
	// open; its tool calls may be incomplete.
	Partial bool
}

func (c Chunk) HasToolCalls() bool { return len(c.Delta.ToolCalls) > 0 }
