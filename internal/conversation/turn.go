package conversation

import (
	"encoding/json"
	"strings"

	"github.com/bitop-dev/cohere/internal/chat"
)

// turnBuilder assembles a turn's response from its settled chunks.
type turnBuilder struct {
	id     string
	role   chat.Role
	text   strings.Builder
	plan   strings.Builder
	calls  []chat.ToolCall
	cites  []chat.Citation
	finish chat.FinishReason
	usage  chat.Usage
}

func (b *turnBuilder) add(c chat.Chunk) {
	if b.id == "" {
		b.id = c.ID
	}
	if b.role == "" {
		b.role = c.Delta.Role
	}
	b.text.WriteString(c.Delta.Text)
	b.plan.WriteString(c.Delta.ToolPlan)
	b.cites = append(b.cites, c.Delta.Citations...)
	for _, tc := range c.Delta.ToolCalls {
		b.calls = append(b.calls, chat.ToolCall{
			ID:        tc.ID,
			Type:      tc.Type,
			Name:      tc.Name,
			Arguments: json.RawMessage(tc.Arguments),
			Index:     tc.Index,
		})
	}
	if c.FinishReason != "" {
		b.finish = c.FinishReason
	}
	if c.Usage != nil {
		b.usage = *c.Usage
	}
}

func (b *turnBuilder) response() chat.Response {
	role := b.role
	if role == "" {
		role = chat.RoleAssistant
	}
	msg := chat.Message{
		Role:      role,
		ToolPlan:  b.plan.String(),
		ToolCalls: b.calls,
		Citations: b.cites,
	}
	if t := b.text.String(); t != "" {
		msg.Content = []chat.ContentPart{chat.TextPart{Text: t}}
	}
	return chat.Response{
		ID:           b.id,
		FinishReason: b.finish,
		Generations:  []chat.Generation{{Message: msg, FinishReason: b.finish}},
		Usage:        b.usage,
	}
}
