// Package tools decides when a turn's tool calls must be run and runs them.
package tools

import "github.com/bitop-dev/cohere/internal/chat"

// ExecutionPolicy decides whether the loop should execute the tools a turn
// asked for.
type ExecutionPolicy interface {
	IsExecutionRequired(opts chat.Options, turn chat.Response) bool
}

// DefaultPolicy requires execution when the turn finished on a tool call and
// the options leave internal execution enabled.
type DefaultPolicy struct{}

func (DefaultPolicy) IsExecutionRequired(opts chat.Options, turn chat.Response) bool {
	return turn.FinishReason == chat.FinishToolCall && opts.ToolExecutionEnabled()
}

// PolicyFunc adapts a function to ExecutionPolicy.
type PolicyFunc func(opts chat.Options, turn chat.Response) bool

func (f PolicyFunc) IsExecutionRequired(opts chat.Options, turn chat.Response) bool {
	return f(opts, turn)
}
