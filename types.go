package cohere

import (
	"context"

	"github.com/bitop-dev/cohere/internal/chat"
	"github.com/bitop-dev/cohere/internal/conversation"
	"github.com/bitop-dev/cohere/internal/tools"
)

type (
	Role         = chat.Role
	FinishReason = chat.FinishReason

	Message        = chat.Message
	ContentPart    = chat.ContentPart
	TextPart       = chat.TextPart
	ImagePart      = chat.ImagePart
	ToolCall       = chat.ToolCall
	Citation       = chat.Citation
	CitationSource = chat.CitationSource

	Tool        = chat.Tool
	ToolHandler = chat.ToolHandler
	ToolMeta    = chat.ToolMeta

	Options        = chat.Options
	Document       = chat.Document
	ResponseFormat = chat.ResponseFormat

	Response    = chat.Response
	Generation  = chat.Generation
	Usage       = chat.Usage
	BilledUnits = chat.BilledUnits

	Chunk         = chat.Chunk
	Delta         = chat.Delta
	ToolCallDelta = chat.ToolCallDelta

	Step = conversation.Step

	// ExecutionPolicy decides whether the tools requested in a turn are run
	// before the next model call.
	ExecutionPolicy = tools.ExecutionPolicy
	PolicyFunc      = tools.PolicyFunc
)

const (
	RoleSystem    = chat.RoleSystem
	RoleUser      = chat.RoleUser
	RoleAssistant = chat.RoleAssistant
	RoleTool      = chat.RoleTool
)

const (
	FinishComplete     = chat.FinishComplete
	FinishStopSequence = chat.FinishStopSequence
	FinishMaxTokens    = chat.FinishMaxTokens
	FinishToolCall     = chat.FinishToolCall
	FinishError        = chat.FinishError
)

func System(text string) Message {
	return Message{Role: RoleSystem, Content: []ContentPart{TextPart{Text: text}}}
}

// User builds a user message. Images are sent after the text.
func User(text string, images ...ImagePart) Message {
	parts := make([]ContentPart, 0, 1+len(images))
	if text != "" || len(images) == 0 {
		parts = append(parts, TextPart{Text: text})
	}
	for _, img := range images {
		parts = append(parts, img)
	}
	return Message{Role: RoleUser, Content: parts}
}

func Assistant(text string) Message {
	return Message{Role: RoleAssistant, Content: []ContentPart{TextPart{Text: text}}}
}

// ToolResult answers the tool call toolCallID. Strings are sent verbatim and
// other values as JSON; a value that cannot be marshalled is an error.
func ToolResult(toolCallID, toolName string, value any) (Message, error) {
	return tools.ResultMessage(toolCallID, toolName, value)
}

// ImageURL references an image by URL, including data: URLs.
func ImageURL(url string) ImagePart { return ImagePart{URL: url} }

// ImageBytes embeds raw image bytes; they are sent as a base64 data URL.
func ImageBytes(data []byte, mediaType string) ImagePart {
	return ImagePart{Bytes: data, MediaType: mediaType}
}

// MergeOptions combines defaults with runtime options, runtime values winning.
func MergeOptions(defaults, runtime Options) Options { return chat.MergeOptions(defaults, runtime) }

// ToolMetaFrom returns the invocation details inside a tool handler.
func ToolMetaFrom(ctx context.Context) (ToolMeta, bool) { return chat.ToolMetaFrom(ctx) }

// Ptr returns a pointer to v, for the optional fields of Options.
func Ptr[T any](v T) *T { return &v }
