package conversation

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/bitop-dev/cohere/internal/aggregate"
	"github.com/bitop-dev/cohere/internal/chat"
	"github.com/bitop-dev/cohere/internal/usage"
)

// Stream yields the settled chunks of every turn in order, running tools
// between turns. It is single-consumer; Close may be called from any
// goroutine.
type Stream struct {
	ctx  context.Context
	loop *Loop
	opts chat.Options

	history  []chat.Message
	total    chat.Usage
	steps    []Step
	trips    int
	maxTrips int

	mu  sync.Mutex
	agg *aggregate.Aggregator

	turn    turnBuilder
	pending []chat.Chunk
	cur     chat.Chunk
	final   *Result
	err     error
	closed  atomic.Bool
}

func (l *Loop) Stream(ctx context.Context, messages []chat.Message, opts chat.Options) *Stream {
	return &Stream{
		ctx:      ctx,
		loop:     l,
		opts:     opts,
		history:  slices.Clone(messages),
		maxTrips: maxRoundTrips(opts),
	}
}

func (s *Stream) Next() bool {
	if s.err != nil || s.closed.Load() {
		return false
	}

	for {
		if len(s.pending) > 0 {
			s.cur = s.pending[0]
			s.pending = s.pending[1:]
			return true
		}
		if s.final != nil {
			return false
		}
		if err := s.ctx.Err(); err != nil {
			s.fail(err)
			return false
		}

		agg := s.current()
		if agg == nil {
			var err error
			if agg, err = s.start(); err != nil {
				s.fail(err)
				return false
			}
			if agg == nil {
				return false
			}
		}

		if agg.Next() {
			c := agg.Chunk()
			s.turn.add(c)
			s.cur = c
			return true
		}
		if err := agg.Err(); err != nil {
			s.fail(err)
			return false
		}
		if s.closed.Load() {
			return false
		}
		s.release()

		if err := s.settleTurn(); err != nil {
			s.fail(err)
			return false
		}
	}
}

// settleTurn runs the decision logic at the end of one turn's chunks.
func (s *Stream) settleTurn() error {
	l := s.loop
	resp := s.turn.response()
	s.turn = turnBuilder{}
	s.total = usage.Merge(s.total, resp.Usage)
	l.logger().Debug("turn finished", "turn", len(s.steps), "finish_reason", resp.FinishReason, "tool_calls", len(resp.ToolCalls()), "total_tokens", usage.Total(s.total))

	if !l.policy().IsExecutionRequired(s.opts, resp) {
		s.steps = l.finishStep(s.steps, Step{Number: len(s.steps), Response: resp})
		s.history = append(s.history, resp.Message())
		s.complete(resp)
		return nil
	}

	if s.trips >= s.maxTrips {
		return fmt.Errorf("%w (%d)", ErrMaxRoundTrips, s.maxTrips)
	}
	res, err := l.executor().Execute(s.ctx, s.history, resp, s.opts)
	if err != nil {
		return err
	}
	s.trips++
	s.history = res.History
	s.steps = l.finishStep(s.steps, Step{Number: len(s.steps), Response: resp, ToolResults: res.Results})

	if res.ReturnDirect {
		gens := res.Generations()
		for i, g := range gens {
			s.pending = append(s.pending, chat.Chunk{
				ID:           resp.ID,
				Index:        i,
				Delta:        chat.Delta{Role: chat.RoleAssistant, Text: g.Message.Text()},
				FinishReason: chat.FinishToolCall,
			})
		}
		s.complete(chat.Response{ID: resp.ID, FinishReason: chat.FinishToolCall, Generations: gens})
	}
	return nil
}

func (s *Stream) complete(resp chat.Response) {
	resp.Usage = s.total
	s.final = &Result{Response: resp, History: s.history, Steps: s.steps}
}

func (s *Stream) start() (*aggregate.Aggregator, error) {
	l := s.loop
	if l.Transport == nil {
		return nil, fmt.Errorf("transport is required")
	}
	if l.Decode == nil {
		return nil, fmt.Errorf("stream decoder is required")
	}
	frames, err := l.Transport.Stream(s.ctx, l.request(s.history, s.opts, true))
	if err != nil {
		return nil, err
	}
	agg := aggregate.New(frames, l.Decode, l.Logger)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed.Load() {
		_ = agg.Close()
		return nil, nil
	}
	s.agg = agg
	return agg, nil
}

func (s *Stream) current() *aggregate.Aggregator {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.agg
}

func (s *Stream) release() {
	s.mu.Lock()
	agg := s.agg
	s.agg = nil
	s.mu.Unlock()
	if agg != nil {
		_ = agg.Close()
	}
}

func (s *Stream) fail(err error) {
	s.err = err
	s.release()
}

// Chunk returns the chunk produced by the last successful Next.
func (s *Stream) Chunk() chat.Chunk { return s.cur }

// Final returns the completed result, or nil until the stream has finished
// without error.
func (s *Stream) Final() *Result {
	if s.err != nil {
		return nil
	}
	return s.final
}

func (s *Stream) Err() error { return s.err }

// Close stops the stream and releases the open response body. A tool-call
// window still being assembled is dropped.
func (s *Stream) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	s.mu.Lock()
	agg := s.agg
	s.mu.Unlock()
	if agg != nil {
		return agg.Close()
	}
	return nil
}
