package conversation

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/bitop-dev/cohere/internal/chat"
	"github.com/bitop-dev/cohere/internal/tools"
	"github.com/google/go-cmp/cmp"
)

var userAsk = []chat.Message{{Role: chat.RoleUser, Content: []chat.ContentPart{chat.TextPart{Text: "weather in Oslo?"}}}}

func weatherTool(returnDirect bool) chat.Tool {
	return chat.Tool{
		Name:         "weather",
		InputSchema:  json.RawMessage(`{"type":"object","properties":{"city":{"type":"string"}},"required":["city"]}`),
		ReturnDirect: returnDirect,
		Handler: func(ctx context.Context, input json.RawMessage) (any, error) {
			return "sunny, 21C", nil
		},
	}
}

var osloCall = chat.ToolCall{ID: "c1", Type: "function", Name: "weather", Arguments: json.RawMessage(`{"city":"Oslo"}`)}

func TestGenerate_CompleteIsOneCall(t *testing.T) {
	ft := &fakeTransport{calls: []chat.Response{textResponse("r1", "hello", usageOf(10, 5))}}
	l := &Loop{Transport: ft}

	res, err := l.Generate(context.Background(), userAsk, chat.Options{Model: "m"})
	if err != nil {
		t.Fatal(err)
	}
	if ft.requestCount() != 1 {
		t.Fatalf("calls=%d", ft.requestCount())
	}
	if res.Response.Message().Text() != "hello" {
		t.Fatalf("response=%#v", res.Response)
	}
	if len(res.History) != 2 || res.History[1].Role != chat.RoleAssistant {
		t.Fatalf("history=%#v", res.History)
	}
	if len(res.Steps) != 1 {
		t.Fatalf("steps=%d", len(res.Steps))
	}
}

func TestGenerate_ToolRoundTrip(t *testing.T) {
	ft := &fakeTransport{calls: []chat.Response{
		toolCallResponse("r1", usageOf(10, 5), osloCall),
		textResponse("r2", "It is sunny.", usageOf(3, 2)),
	}}
	var finished []Step
	l := &Loop{Transport: ft, OnStepFinish: func(s Step) { finished = append(finished, s) }}
	opts := chat.Options{Model: "m", Tools: []chat.Tool{weatherTool(false)}}

	res, err := l.Generate(context.Background(), userAsk, opts)
	if err != nil {
		t.Fatal(err)
	}
	if ft.requestCount() != 2 {
		t.Fatalf("calls=%d, want 2", ft.requestCount())
	}

	second := ft.requests[1]
	if len(second.Messages) != len(userAsk)+2 {
		t.Fatalf("second request messages=%d", len(second.Messages))
	}
	toolMsg := second.Messages[2]
	if toolMsg.Role != chat.RoleTool || toolMsg.ToolCallID != "c1" || toolMsg.Text() != "sunny, 21C" {
		t.Fatalf("tool message=%#v", toolMsg)
	}
	if len(second.Tools) != 1 || second.Tools[0].Name != "weather" {
		t.Fatalf("tool definitions not sent: %#v", second.Tools)
	}

	if diff := cmp.Diff(usageOf(13, 7), res.Response.Usage); diff != "" {
		t.Fatalf("cumulative usage (-want +got):\n%s", diff)
	}
	if res.Response.Message().Text() != "It is sunny." {
		t.Fatalf("final=%q", res.Response.Message().Text())
	}
	if len(res.History) != 4 {
		t.Fatalf("history=%d", len(res.History))
	}
	if len(finished) != 2 || len(finished[0].ToolResults) != 1 || finished[1].Number != 1 {
		t.Fatalf("steps=%#v", finished)
	}
}

func TestGenerate_ReturnDirect(t *testing.T) {
	ft := &fakeTransport{calls: []chat.Response{toolCallResponse("r1", usageOf(4, 1), osloCall)}}
	l := &Loop{Transport: ft}

	res, err := l.Generate(context.Background(), userAsk, chat.Options{Model: "m", Tools: []chat.Tool{weatherTool(true)}})
	if err != nil {
		t.Fatal(err)
	}
	if ft.requestCount() != 1 {
		t.Fatalf("calls=%d, want 1", ft.requestCount())
	}
	gens := res.Response.Generations
	if len(gens) != 1 || gens[0].Message.Text() != "sunny, 21C" || !gens[0].ReturnDirect {
		t.Fatalf("generations=%#v", gens)
	}
	if res.Response.FinishReason != chat.FinishToolCall {
		t.Fatalf("finish=%q", res.Response.FinishReason)
	}
	if *res.Response.Usage.InputTokens != 4 {
		t.Fatalf("usage=%#v", res.Response.Usage)
	}
}

func TestGenerate_MaxRoundTrips(t *testing.T) {
	ft := &fakeTransport{calls: []chat.Response{toolCallResponse("r", usageOf(1, 1), osloCall)}}
	l := &Loop{Transport: ft}
	opts := chat.Options{Model: "m", Tools: []chat.Tool{weatherTool(false)}, MaxToolRoundTrips: 2}

	res, err := l.Generate(context.Background(), userAsk, opts)
	if !errors.Is(err, ErrMaxRoundTrips) {
		t.Fatalf("err=%v", err)
	}
	if ft.requestCount() != 3 {
		t.Fatalf("calls=%d, want 3", ft.requestCount())
	}
	if res.History != nil || res.Response.Usage.InputTokens != nil {
		t.Fatalf("partial result leaked: %#v", res)
	}
}

func TestGenerate_InternalExecutionDisabled(t *testing.T) {
	ft := &fakeTransport{calls: []chat.Response{toolCallResponse("r1", usageOf(1, 1), osloCall)}}
	l := &Loop{Transport: ft}
	off := false
	opts := chat.Options{Model: "m", Tools: []chat.Tool{weatherTool(false)}, InternalToolExecution: &off}

	res, err := l.Generate(context.Background(), userAsk, opts)
	if err != nil {
		t.Fatal(err)
	}
	if ft.requestCount() != 1 {
		t.Fatalf("calls=%d", ft.requestCount())
	}
	if calls := res.Response.ToolCalls(); len(calls) != 1 || calls[0].ID != "c1" {
		t.Fatalf("tool calls not surfaced: %#v", calls)
	}
}

func TestGenerate_CustomPolicy(t *testing.T) {
	ft := &fakeTransport{calls: []chat.Response{toolCallResponse("r1", usageOf(1, 1), osloCall)}}
	never := tools.PolicyFunc(func(chat.Options, chat.Response) bool { return false })
	l := &Loop{Transport: ft, Policy: never}

	if _, err := l.Generate(context.Background(), userAsk, chat.Options{Model: "m", Tools: []chat.Tool{weatherTool(false)}}); err != nil {
		t.Fatal(err)
	}
	if ft.requestCount() != 1 {
		t.Fatalf("calls=%d", ft.requestCount())
	}
}

func TestGenerate_Failures(t *testing.T) {
	boom := errors.New("boom")

	t.Run("transport", func(t *testing.T) {
		l := &Loop{Transport: &fakeTransport{err: boom}}
		res, err := l.Generate(context.Background(), userAsk, chat.Options{Model: "m"})
		if !errors.Is(err, boom) || res.History != nil {
			t.Fatalf("err=%v res=%#v", err, res)
		}
	})

	t.Run("unknown tool", func(t *testing.T) {
		ft := &fakeTransport{calls: []chat.Response{toolCallResponse("r1", usageOf(1, 1), chat.ToolCall{ID: "c1", Name: "nope"})}}
		l := &Loop{Transport: ft}
		_, err := l.Generate(context.Background(), userAsk, chat.Options{Model: "m", Tools: []chat.Tool{weatherTool(false)}})
		if !tools.IsNoSuchTool(err) {
			t.Fatalf("err=%v", err)
		}
		if ft.requestCount() != 1 {
			t.Fatalf("calls=%d", ft.requestCount())
		}
	})

	t.Run("canceled", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		ft := &fakeTransport{calls: []chat.Response{textResponse("r1", "x", chat.Usage{})}}
		_, err := (&Loop{Transport: ft}).Generate(ctx, userAsk, chat.Options{Model: "m"})
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("err=%v", err)
		}
		if ft.requestCount() != 0 {
			t.Fatalf("calls=%d", ft.requestCount())
		}
	})
}

func TestGenerate_DoesNotMutateInput(t *testing.T) {
	in := make([]chat.Message, 1, 8)
	copy(in, userAsk)
	ft := &fakeTransport{calls: []chat.Response{
		toolCallResponse("r1", usageOf(1, 1), osloCall),
		textResponse("r2", "done", usageOf(1, 1)),
	}}
	if _, err := (&Loop{Transport: ft}).Generate(context.Background(), in, chat.Options{Model: "m", Tools: []chat.Tool{weatherTool(false)}}); err != nil {
		t.Fatal(err)
	}
	if extra := in[:cap(in)][1]; extra.Role != "" {
		t.Fatalf("caller backing array written: %#v", extra)
	}
}

func TestGenerate_LogsRunningTokenTotal(t *testing.T) {
	ft := &fakeTransport{calls: []chat.Response{
		toolCallResponse("r1", usageOf(10, 5), osloCall),
		textResponse("r2", "It is sunny.", usageOf(3, 2)),
	}}
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	l := &Loop{Transport: ft, Logger: logger}

	if _, err := l.Generate(context.Background(), userAsk, chat.Options{Model: "m", Tools: []chat.Tool{weatherTool(false)}}); err != nil {
		t.Fatal(err)
	}

	var totals []float64
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		var rec map[string]any
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			t.Fatalf("log line %q: %v", line, err)
		}
		if rec["msg"] == "turn finished" {
			totals = append(totals, rec["total_tokens"].(float64))
		}
	}
	if diff := cmp.Diff([]float64{15, 20}, totals); diff != "" {
		t.Fatalf("total_tokens (-want +got):\n%s", diff)
	}
}
