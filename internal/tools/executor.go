package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"slices"

	"github.com/bitop-dev/cohere/internal/chat"
	"github.com/bitop-dev/cohere/internal/schema"
)

// Result is the outcome of executing one turn's tool calls.
type Result struct {
	// History is the input history plus the assistant turn and one tool
	// message per call.
	History []chat.Message
	// Results holds only the tool messages, in call order.
	Results []chat.Message
	// ReturnDirect is true when every tool invoked declared ReturnDirect.
	ReturnDirect bool
}

// Generations builds one generation per tool result, used when the tool output
// goes straight back to the caller.
func (r Result) Generations() []chat.Generation {
	out := make([]chat.Generation, 0, len(r.Results))
	for _, m := range r.Results {
		out = append(out, chat.Generation{
			Message: chat.Message{
				Role:    chat.RoleAssistant,
				Content: slices.Clone(m.Content),
				Name:    m.Name,
			},
			FinishReason: chat.FinishToolCall,
			ReturnDirect: true,
		})
	}
	return out
}

type Executor struct {
	Logger *slog.Logger
}

// Execute runs the turn's tool calls sequentially. Either every call succeeds
// and all results are appended, or an error is returned and history is left
// untouched.
func (e *Executor) Execute(ctx context.Context, history []chat.Message, turn chat.Response, opts chat.Options) (Result, error) {
	logger := e.logger()
	calls := turn.ToolCalls()
	if len(calls) == 0 {
		return Result{}, chat.Invalid("tool_calls", "turn finished with %s but requested no tool calls", turn.FinishReason)
	}
	if len(opts.Tools) == 0 {
		return Result{}, fmt.Errorf("model requested tool calls but no tools were provided")
	}

	results := make([]chat.Message, 0, len(calls))
	returnDirect := true
	for _, call := range calls {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}
		if call.ID == "" {
			return Result{}, chat.Invalid("tool_calls.id", "tool call %q missing id", call.Name)
		}
		t, ok := findTool(opts.Tools, call.Name)
		if !ok {
			return Result{}, &NoSuchToolError{ToolName: call.Name}
		}
		if t.Handler == nil {
			return Result{}, fmt.Errorf("tool %q missing handler", call.Name)
		}

		args := call.Arguments
		if len(bytes.TrimSpace(args)) == 0 {
			args = json.RawMessage(`{}`)
		}
		if err := schema.Validate(t.InputSchema, args); err != nil {
			return Result{}, &InvalidToolInputError{ToolName: t.Name, ToolCallID: call.ID, Cause: err}
		}

		execCtx := chat.WithToolMeta(ctx, chat.ToolMeta{
			ToolName:   t.Name,
			ToolCallID: call.ID,
			Context:    opts.ToolContext,
		})
		logger.Debug("executing tool", "tool", t.Name, "tool_call_id", call.ID)
		val, err := t.Handler(execCtx, args)
		if err != nil {
			return Result{}, &ToolExecutionError{ToolName: t.Name, ToolCallID: call.ID, Cause: err}
		}
		msg, err := ResultMessage(call.ID, t.Name, val)
		if err != nil {
			return Result{}, &ToolExecutionError{ToolName: t.Name, ToolCallID: call.ID, Cause: err}
		}
		results = append(results, msg)
		returnDirect = returnDirect && t.ReturnDirect
	}

	next := make([]chat.Message, 0, len(history)+1+len(results))
	next = append(next, history...)
	next = append(next, turn.Message())
	next = append(next, results...)
	return Result{History: next, Results: results, ReturnDirect: returnDirect}, nil
}

func (e *Executor) logger() *slog.Logger {
	if e == nil || e.Logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return e.Logger
}

func findTool(tools []chat.Tool, name string) (chat.Tool, bool) {
	for _, t := range tools {
		if t.Name == name {
			return t, true
		}
	}
	return chat.Tool{}, false
}

// ResultMessage builds the tool message answering call toolCallID. Strings are
// sent verbatim, anything else as JSON.
func ResultMessage(toolCallID, toolName string, value any) (chat.Message, error) {
	var text string
	switch v := value.(type) {
	case string:
		text = v
	case json.RawMessage:
		text = string(v)
	default:
		raw, err := json.Marshal(value)
		if err != nil {
			return chat.Message{}, fmt.Errorf("encode result of tool %q: %w", toolName, err)
		}
		text = string(raw)
	}
	return chat.Message{
		Role:       chat.RoleTool,
		ToolCallID: toolCallID,
		Name:       toolName,
		Content:    []chat.ContentPart{chat.TextPart{Text: text}},
	}, nil
}
