// Package conversation drives a chat request through tool-execution round
// trips until the model produces a final answer.
package conversation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/bitop-dev/cohere/internal/aggregate"
	"github.com/bitop-dev/cohere/internal/chat"
	"github.com/bitop-dev/cohere/internal/tools"
	"github.com/bitop-dev/cohere/internal/usage"
)

// DefaultMaxToolRoundTrips applies when Options.MaxToolRoundTrips is unset.
const DefaultMaxToolRoundTrips = 5

var ErrMaxRoundTrips = errors.New("conversation: exceeded max tool round trips")

type state int

const (
	awaitingModel state = iota
	toolExecution
	terminal
)

func (s state) String() string {
	switch s {
	case awaitingModel:
		return "awaiting_model"
	case toolExecution:
		return "tool_execution"
	case terminal:
		return "terminal"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Step records one model turn and the tool results it produced, if any.
type Step struct {
	Number      int
	Response    chat.Response
	ToolResults []chat.Message
}

type Result struct {
	// Response is the final turn. Its Usage is the sum over every turn.
	Response chat.Response
	// History is the full conversation, caller messages included.
	History []chat.Message
	Steps   []Step
}

// Loop holds the collaborators of a conversation. A Loop is safe for
// concurrent use as long as its collaborators are; each Generate or Stream
// call owns its own history.
type Loop struct {
	Transport chat.Transport
	Policy    tools.ExecutionPolicy
	Executor  *tools.Executor
	Logger    *slog.Logger

	// Decode turns one stream frame into a chunk. Required by Stream.
	Decode aggregate.DecodeFunc

	// OnStepFinish, when set, is called after every completed step.
	OnStepFinish func(Step)
}

// Generate runs the synchronous loop. On error no partial history or usage is
// returned.
func (l *Loop) Generate(ctx context.Context, messages []chat.Message, opts chat.Options) (Result, error) {
	if l.Transport == nil {
		return Result{}, fmt.Errorf("transport is required")
	}
	logger := l.logger()
	maxTrips := maxRoundTrips(opts)

	history := slices.Clone(messages)
	var (
		total        chat.Usage
		turn         chat.Response
		steps        []Step
		trips        int
		returnDirect bool
	)

	for st := awaitingModel; ; {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}

		switch st {
		case awaitingModel:
			resp, err := l.Transport.Call(ctx, l.request(history, opts, false))
			if err != nil {
				return Result{}, err
			}
			total = usage.Merge(total, resp.Usage)
			turn = resp
			logger.Debug("turn finished", "turn", len(steps), "finish_reason", resp.FinishReason, "tool_calls", len(resp.ToolCalls()), "total_tokens", usage.Total(total))

			if l.policy().IsExecutionRequired(opts, resp) {
				st = toolExecution
				continue
			}
			steps = l.finishStep(steps, Step{Number: len(steps), Response: resp})
			st = terminal

		case toolExecution:
			if trips >= maxTrips {
				return Result{}, fmt.Errorf("%w (%d)", ErrMaxRoundTrips, maxTrips)
			}
			res, err := l.executor().Execute(ctx, history, turn, opts)
			if err != nil {
				return Result{}, err
			}
			trips++
			history = res.History
			steps = l.finishStep(steps, Step{Number: len(steps), Response: turn, ToolResults: res.Results})

			if res.ReturnDirect {
				logger.Debug("returning tool output directly", "turn", len(steps)-1, "results", len(res.Results))
				turn = chat.Response{ID: turn.ID, FinishReason: chat.FinishToolCall, Generations: res.Generations()}
				returnDirect = true
				st = terminal
				continue
			}
			st = awaitingModel

		case terminal:
			if !returnDirect && len(turn.Generations) > 0 {
				history = append(history, turn.Message())
			}
			turn.Usage = total
			return Result{Response: turn, History: history, Steps: steps}, nil
		}
	}
}

func (l *Loop) request(history []chat.Message, opts chat.Options, stream bool) chat.Request {
	var defs []chat.ToolDefinition
	if len(opts.Tools) > 0 {
		defs = make([]chat.ToolDefinition, 0, len(opts.Tools))
		for _, t := range opts.Tools {
			defs = append(defs, t.Definition())
		}
	}
	return chat.Request{
		Messages: slices.Clone(history),
		Tools:    defs,
		Options:  opts,
		Stream:   stream,
	}
}

func (l *Loop) finishStep(steps []Step, step Step) []Step {
	if l.OnStepFinish != nil {
		l.OnStepFinish(step)
	}
	return append(steps, step)
}

func (l *Loop) policy() tools.ExecutionPolicy {
	if l.Policy == nil {
		return tools.DefaultPolicy{}
	}
	return l.Policy
}

func (l *Loop) executor() *tools.Executor {
	if l.Executor == nil {
		return &tools.Executor{Logger: l.Logger}
	}
	return l.Executor
}

func (l *Loop) logger() *slog.Logger {
	if l.Logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return l.Logger
}

func maxRoundTrips(opts chat.Options) int {
	if opts.MaxToolRoundTrips > 0 {
		return opts.MaxToolRoundTrips
	}
	return DefaultMaxToolRoundTrips
}
