package aggregate

import (
	"strings"

	"github.com/bitop-dev/cohere/internal/chat"
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// window folds the chunks of one in-progress tool-call invocation.
type window struct {
	acc  chat.Chunk
	text strings.Builder
	plan strings.Builder

	// keyed by call index, in first-seen order
	calls *orderedmap.OrderedMap[int, *callFold]
}

type callFold struct {
	id   string
	typ  string
	name string
	args strings.Builder
}

func newWindow() *window {
	return &window{calls: orderedmap.New[int, *callFold]()}
}

func (w *window) fold(c chat.Chunk) {
	if c.ID != "" {
		w.acc.ID = c.ID
	}
	w.acc.Index = c.Index
	if w.acc.Delta.Role == "" {
		w.acc.Delta.Role = c.Delta.Role
	}
	w.text.WriteString(c.Delta.Text)
	w.plan.WriteString(c.Delta.ToolPlan)
	w.acc.Delta.Citations = append(w.acc.Delta.Citations, c.Delta.Citations...)

	for _, tc := range c.Delta.ToolCalls {
		f, ok := w.calls.Get(tc.Index)
		if !ok {
			f = &callFold{}
			w.calls.Set(tc.Index, f)
		}
		if f.id == "" {
			f.id = tc.ID
		}
		if f.typ == "" {
			f.typ = tc.Type
		}
		if f.name == "" {
			f.name = tc.Name
		}
		f.args.WriteString(tc.Arguments)
	}

	if c.FinishReason != "" {
		w.acc.FinishReason = c.FinishReason
	}
	if c.Usage != nil {
		u := *c.Usage
		w.acc.Usage = &u
	}
}

func (w *window) chunk() chat.Chunk {
	out := w.acc
	out.Delta.Text = w.text.String()
	out.Delta.ToolPlan = w.plan.String()
	out.Delta.ToolCalls = make([]chat.ToolCallDelta, 0, w.calls.Len())
	for p := w.calls.Oldest(); p != nil; p = p.Next() {
		out.Delta.ToolCalls = append(out.Delta.ToolCalls, chat.ToolCallDelta{
			Index:     p.Key,
			ID:        p.Value.id,
			Type:      p.Value.typ,
			Name:      p.Value.name,
			Arguments: p.Value.args.String(),
		})
	}
	return out
}
