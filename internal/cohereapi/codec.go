package cohereapi

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/bitop-dev/cohere/internal/chat"
	"github.com/tidwall/gjson"
)

// EncodeRequest validates req and renders the /v2/chat request body.
func EncodeRequest(req chat.Request) ([]byte, error) {
	payload, err := buildRequest(req)
	if err != nil {
		return nil, err
	}
	return json.Marshal(payload)
}

func buildRequest(req chat.Request) (chatRequest, error) {
	opts := req.Options
	if opts.Model == "" {
		return chatRequest{}, chat.Invalid("model", "model is required")
	}
	if len(req.Messages) == 0 {
		return chatRequest{}, chat.Invalid("messages", "at least one message is required")
	}

	msgs := make([]chatMessage, 0, len(req.Messages))
	for i, m := range req.Messages {
		cm, err := toChatMessage(m)
		if err != nil {
			return chatRequest{}, fmt.Errorf("messages[%d]: %w", i, err)
		}
		msgs = append(msgs, cm)
	}

	var tools []tool
	if len(req.Tools) > 0 {
		tools = make([]tool, 0, len(req.Tools))
		seen := make(map[string]bool, len(req.Tools))
		for _, t := range req.Tools {
			if t.Name == "" {
				return chatRequest{}, chat.Invalid("tools", "tool name is required")
			}
			if seen[t.Name] {
				return chatRequest{}, chat.Invalid("tools", "duplicate tool %q", t.Name)
			}
			seen[t.Name] = true
			params := t.InputSchema
			if len(bytes.TrimSpace(params)) == 0 {
				params = json.RawMessage(`{"type":"object","properties":{}}`)
			}
			tools = append(tools, tool{
				Type: "function",
				Function: toolFunction{
					Name:        t.Name,
					Description: t.Description,
					Parameters:  params,
				},
			})
		}
	}

	out := chatRequest{
		Model:            opts.Model,
		Messages:         msgs,
		Tools:            tools,
		SafetyMode:       strings.ToUpper(opts.SafetyMode),
		MaxTokens:        opts.MaxTokens,
		StopSequences:    append([]string(nil), opts.StopSequences...),
		Temperature:      opts.Temperature,
		Seed:             opts.Seed,
		FrequencyPenalty: opts.FrequencyPenalty,
		PresencePenalty:  opts.PresencePenalty,
		K:                opts.TopK,
		P:                opts.TopP,
		Logprobs:         opts.Logprobs,
		Stream:           req.Stream,
		ToolChoice:       strings.ToUpper(opts.ToolChoice),
		StrictTools:      opts.StrictTools,
	}
	for _, d := range opts.Documents {
		out.Documents = append(out.Documents, document{ID: d.ID, Data: d.Data})
	}
	if opts.CitationMode != "" {
		out.CitationOptions = &citationOptions{Mode: strings.ToUpper(opts.CitationMode)}
	}
	if rf := opts.ResponseFormat; rf != nil {
		out.ResponseFormat = &responseFormat{Type: rf.Type, JSONSchema: rf.JSONSchema}
	}
	return out, nil
}

func toChatMessage(m chat.Message) (chatMessage, error) {
	cm := chatMessage{Role: string(m.Role)}
	switch m.Role {
	case chat.RoleSystem, chat.RoleUser:
	case chat.RoleAssistant:
		cm.ToolPlan = m.ToolPlan
		for _, tc := range m.ToolCalls {
			args := string(tc.Arguments)
			if strings.TrimSpace(args) == "" {
				args = "{}"
			}
			typ := tc.Type
			if typ == "" {
				typ = "function"
			}
			cm.ToolCalls = append(cm.ToolCalls, toolCall{
				ID:       tc.ID,
				Type:     typ,
				Function: toolCallFn{Name: tc.Name, Arguments: args},
			})
		}
		for _, c := range m.Citations {
			cm.Citations = append(cm.Citations, toWireCitation(c))
		}
	case chat.RoleTool:
		if m.ToolCallID == "" {
			return chatMessage{}, chat.Invalid("tool_call_id", "tool message missing ToolCallID")
		}
		cm.ToolCallID = m.ToolCallID
		cm.Name = m.Name
	case "":
		return chatMessage{}, chat.Invalid("role", "message role is required")
	default:
		return chatMessage{}, chat.Invalid("role", "unknown role %q", m.Role)
	}

	content, err := encodeContent(m)
	if err != nil {
		return chatMessage{}, err
	}
	cm.Content = content
	return cm, nil
}

// encodeContent renders text-only content as a JSON string and content with
// images as a part array. Images are accepted on user messages only.
func encodeContent(m chat.Message) (json.RawMessage, error) {
	var hasImage bool
	for _, p := range m.Content {
		if _, ok := p.(chat.ImagePart); ok {
			hasImage = true
			break
		}
	}
	if !hasImage {
		text := m.Text()
		if text == "" && m.Role == chat.RoleAssistant && len(m.ToolCalls) > 0 {
			return nil, nil
		}
		return json.Marshal(text)
	}
	if m.Role != chat.RoleUser {
		return nil, chat.Invalid("content", "images are only supported in user messages")
	}

	parts := make([]contentPart, 0, len(m.Content))
	for _, p := range m.Content {
		switch v := p.(type) {
		case chat.TextPart:
			parts = append(parts, contentPart{Type: "text", Text: v.Text})
		case chat.ImagePart:
			u, err := imageDataURL(v)
			if err != nil {
				return nil, err
			}
			parts = append(parts, contentPart{Type: "image_url", ImageURL: &imageURL{URL: u}})
		default:
			return nil, chat.Invalid("content", "unsupported content part %T", p)
		}
	}
	return json.Marshal(parts)
}

func imageDataURL(p chat.ImagePart) (string, error) {
	if p.URL != "" {
		return p.URL, nil
	}
	if len(p.Bytes) == 0 {
		return "", chat.Invalid("content", "image part has neither URL nor bytes")
	}
	if p.MediaType == "" {
		return "", chat.Invalid("content", "image bytes require a media type")
	}
	return "data:" + p.MediaType + ";base64," + base64.StdEncoding.EncodeToString(p.Bytes), nil
}

// DecodeResponse decodes a non-streaming /v2/chat response.
func DecodeResponse(data []byte) (chat.Response, error) {
	var wire chatResponse
	if err := json.Unmarshal(data, &wire); err != nil {
		return chat.Response{}, decodeError(err)
	}
	out := chat.Response{
		ID:           wire.ID,
		FinishReason: chat.FinishReason(wire.FinishReason),
		Usage:        fromWireUsage(wire.Usage),
	}
	if wire.Message != nil {
		msg, err := fromChatMessage(*wire.Message)
		if err != nil {
			return chat.Response{}, decodeError(err)
		}
		out.Generations = []chat.Generation{{Message: msg, FinishReason: out.FinishReason}}
	}
	return out, nil
}

// DecodeChunk decodes one stream frame. Only the first choice is read; a frame
// carrying an error object instead of a chunk is reported as a provider error.
func DecodeChunk(data []byte) (chat.Chunk, error) {
	var wire chatChunk
	if err := json.Unmarshal(data, &wire); err != nil {
		return chat.Chunk{}, decodeError(err)
	}
	if len(wire.Choices) == 0 && wire.Usage == nil {
		if msg := gjson.GetBytes(data, "message"); msg.Exists() && msg.String() != "" {
			return chat.Chunk{}, &chat.Error{Provider: provider, Code: "stream_error", Message: msg.String()}
		}
	}

	out := chat.Chunk{ID: wire.ID}
	if wire.Usage != nil {
		u := fromWireUsage(wire.Usage)
		out.Usage = &u
	}
	if len(wire.Choices) == 0 {
		return out, nil
	}

	c := wire.Choices[0]
	out.Index = c.Index
	out.FinishReason = chat.FinishReason(c.FinishReason)

	text, err := decodeText(c.Delta.Content)
	if err != nil {
		return chat.Chunk{}, decodeError(err)
	}
	out.Delta = chat.Delta{
		Role:      chat.Role(c.Delta.Role),
		Text:      text,
		ToolPlan:  c.Delta.ToolPlan,
		Citations: fromWireCitations(c.Delta.Citations),
	}
	for i, tc := range c.Delta.ToolCalls {
		idx := i
		if tc.Index != nil {
			idx = *tc.Index
		}
		out.Delta.ToolCalls = append(out.Delta.ToolCalls, chat.ToolCallDelta{
			Index:     idx,
			ID:        tc.ID,
			Type:      tc.Type,
			Name:      tc.Function.Name,
			Arguments: tc.Function.Arguments,
		})
	}
	return out, nil
}

func fromChatMessage(m chatMessage) (chat.Message, error) {
	role := chat.Role(m.Role)
	if role == "" {
		role = chat.RoleAssistant
	}
	text, err := decodeText(m.Content)
	if err != nil {
		return chat.Message{}, err
	}
	out := chat.Message{
		Role:      role,
		ToolPlan:  m.ToolPlan,
		Citations: fromWireCitations(m.Citations),
	}
	if text != "" {
		out.Content = []chat.ContentPart{chat.TextPart{Text: text}}
	}
	for i, tc := range m.ToolCalls {
		if tc.Function.Name == "" {
			return chat.Message{}, fmt.Errorf("tool call %d missing name", i)
		}
		idx := i
		if tc.Index != nil {
			idx = *tc.Index
		}
		out.ToolCalls = append(out.ToolCalls, chat.ToolCall{
			ID:        tc.ID,
			Type:      tc.Type,
			Name:      tc.Function.Name,
			Arguments: json.RawMessage(tc.Function.Arguments),
			Index:     idx,
		})
	}
	return out, nil
}

// decodeText accepts content as a string or as an array of typed parts, keeping
// only the text parts.
func decodeText(raw json.RawMessage) (string, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return "", nil
	}
	switch raw[0] {
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return "", err
		}
		return s, nil
	case '[':
		var parts []contentPart
		if err := json.Unmarshal(raw, &parts); err != nil {
			return "", err
		}
		var b strings.Builder
		for _, p := range parts {
			if p.Type == "" || p.Type == "text" {
				b.WriteString(p.Text)
			}
		}
		return b.String(), nil
	case '{':
		var p contentPart
		if err := json.Unmarshal(raw, &p); err != nil {
			return "", err
		}
		return p.Text, nil
	}
	return "", fmt.Errorf("unexpected content %s", raw)
}

func fromWireUsage(u *usage) chat.Usage {
	if u == nil {
		return chat.Usage{}
	}
	var out chat.Usage
	if u.Tokens != nil {
		out.InputTokens = u.Tokens.InputTokens
		out.OutputTokens = u.Tokens.OutputTokens
	}
	if b := u.BilledUnits; b != nil {
		out.BilledUnits = &chat.BilledUnits{
			InputTokens:     b.InputTokens,
			OutputTokens:    b.OutputTokens,
			SearchUnits:     b.SearchUnits,
			Classifications: b.Classifications,
		}
	}
	return out
}

func fromWireCitations(in []citation) []chat.Citation {
	if len(in) == 0 {
		return nil
	}
	out := make([]chat.Citation, 0, len(in))
	for _, c := range in {
		cc := chat.Citation{Start: c.Start, End: c.End, Text: c.Text, Type: c.Type}
		for _, s := range c.Sources {
			cc.Sources = append(cc.Sources, chat.CitationSource{
				Type:       s.Type,
				ID:         s.ID,
				ToolOutput: s.ToolOutput,
				Document:   s.Document,
			})
		}
		out = append(out, cc)
	}
	return out
}

func toWireCitation(c chat.Citation) citation {
	out := citation{Start: c.Start, End: c.End, Text: c.Text, Type: c.Type}
	for _, s := range c.Sources {
		out.Sources = append(out.Sources, citationSource{
			Type:       s.Type,
			ID:         s.ID,
			ToolOutput: s.ToolOutput,
			Document:   s.Document,
		})
	}
	return out
}

func decodeError(err error) *chat.Error {
	return &chat.Error{Provider: provider, Code: "decode_error", Message: err.Error(), Cause: err}
}
