package cohereapi

import "encoding/json"

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
	Tools    []tool        `json:"tools,omitempty"`

	Documents       []document       `json:"documents,omitempty"`
	CitationOptions *citationOptions `json:"citation_options,omitempty"`
	ResponseFormat  *responseFormat  `json:"response_format,omitempty"`
	SafetyMode      string           `json:"safety_mode,omitempty"`

	MaxTokens        *int     `json:"max_tokens,omitempty"`
	StopSequences    []string `json:"stop_sequences,omitempty"`
	Temperature      *float64 `json:"temperature,omitempty"`
	Seed             *int     `json:"seed,omitempty"`
	FrequencyPenalty *float64 `json:"frequency_penalty,omitempty"`
	PresencePenalty  *float64 `json:"presence_penalty,omitempty"`
	K                *int     `json:"k,omitempty"`
	P                *float64 `json:"p,omitempty"`
	Logprobs         *bool    `json:"logprobs,omitempty"`

	Stream      bool   `json:"stream"`
	ToolChoice  string `json:"tool_choice,omitempty"`
	StrictTools *bool  `json:"strict_tools,omitempty"`
}

// chatMessage is used in both directions. Content is a plain string or an
// array of typed parts.
type chatMessage struct {
	Role       string          `json:"role,omitempty"`
	Content    json.RawMessage `json:"content,omitempty"`
	ToolPlan   string          `json:"tool_plan,omitempty"`
	ToolCalls  []toolCall      `json:"tool_calls,omitempty"`
	Citations  []citation      `json:"citations,omitempty"`
	ToolCallID string          `json:"tool_call_id,omitempty"`
	Name       string          `json:"name,omitempty"`
}

type contentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *imageURL `json:"image_url,omitempty"`
}

type imageURL struct {
	URL string `json:"url"`
}

type tool struct {
	Type     string       `json:"type"`
	Function toolFunction `json:"function"`
}

type toolFunction struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Parameters  json.RawMessage `json:"parameters,omitempty"`
}

type toolCall struct {
	ID       string     `json:"id,omitempty"`
	Type     string     `json:"type,omitempty"`
	Function toolCallFn `json:"function"`
	Index    *int       `json:"index,omitempty"`
}

type toolCallFn struct {
	Name      string `json:"name,omitempty"`
	Arguments string `json:"arguments,omitempty"`
}

type citation struct {
	Start   int              `json:"start"`
	End     int              `json:"end"`
	Text    string           `json:"text"`
	Type    string           `json:"type,omitempty"`
	Sources []citationSource `json:"sources,omitempty"`
}

type citationSource struct {
	Type       string         `json:"type,omitempty"`
	ID         string         `json:"id,omitempty"`
	ToolOutput map[string]any `json:"tool_output,omitempty"`
	Document   map[string]any `json:"document,omitempty"`
}

type document struct {
	ID   string `json:"id,omitempty"`
	Data string `json:"data"`
}

type citationOptions struct {
	Mode string `json:"mode"`
}

type responseFormat struct {
	Type       string         `json:"type"`
	JSONSchema map[string]any `json:"json_schema,omitempty"`
}

type usage struct {
	Tokens      *tokens      `json:"tokens,omitempty"`
	BilledUnits *billedUnits `json:"billed_units,omitempty"`
}

type tokens struct {
	InputTokens  *int `json:"input_tokens,omitempty"`
	OutputTokens *int `json:"output_tokens,omitempty"`
}

type billedUnits struct {
	InputTokens     *int     `json:"input_tokens,omitempty"`
	OutputTokens    *int     `json:"output_tokens,omitempty"`
	SearchUnits     *float64 `json:"search_units,omitempty"`
	Classifications *float64 `json:"classifications,omitempty"`
}

type chatResponse struct {
	ID           string       `json:"id"`
	FinishReason string       `json:"finish_reason"`
	Message      *chatMessage `json:"message,omitempty"`
	Usage        *usage       `json:"usage,omitempty"`
}

type chatChunk struct {
	ID      string        `json:"id"`
	Choices []chunkChoice `json:"choices"`
	Usage   *usage        `json:"usage,omitempty"`
}

type chunkChoice struct {
	Index        int         `json:"index"`
	Delta        chatMessage `json:"delta"`
	FinishReason string      `json:"finish_reason,omitempty"`
}
