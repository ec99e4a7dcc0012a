package cohere

import (
	"context"
	"io"
	"iter"

	"github.com/bitop-dev/cohere/internal/conversation"
)

// ChatStream yields settled chunks across every turn of a conversation. A
// tool call arrives as one chunk holding its complete arguments.
type ChatStream struct {
	s      *conversation.Stream
	cancel context.CancelFunc
}

func (s *ChatStream) Next() bool {
	if s == nil || s.s == nil {
		return false
	}
	if s.s.Next() {
		return true
	}
	s.release()
	return false
}

func (s *ChatStream) Chunk() Chunk {
	if s == nil || s.s == nil {
		return Chunk{}
	}
	return s.s.Chunk()
}

// Text returns the text delta of the current chunk.
func (s *ChatStream) Text() string { return s.Chunk().Delta.Text }

func (s *ChatStream) Err() error {
	if s == nil || s.s == nil {
		return nil
	}
	return s.s.Err()
}

// Close stops the stream. It may be called from another goroutine to cancel
// a pending Next.
func (s *ChatStream) Close() error {
	if s == nil || s.s == nil {
		return nil
	}
	err := s.s.Close()
	s.release()
	return err
}

func (s *ChatStream) release() {
	if s.cancel != nil {
		s.cancel()
	}
}

// Result returns the completed conversation once Next has returned false
// without error, or nil otherwise.
func (s *ChatStream) Result() *ChatResult {
	if s == nil || s.s == nil {
		return nil
	}
	r := s.s.Final()
	if r == nil {
		return nil
	}
	return &ChatResult{Response: r.Response, History: r.History, Steps: r.Steps}
}

// All ranges over the chunks. A failure is yielded once as the final pair
// with a zero Chunk. Breaking out of the loop closes the stream.
//
// Do not call Next() concurrently with All().
func (s *ChatStream) All() iter.Seq2[Chunk, error] {
	return func(yield func(Chunk, error) bool) {
		defer s.Close()
		for s.Next() {
			if !yield(s.Chunk(), nil) {
				return
			}
		}
		if err := s.Err(); err != nil {
			yield(Chunk{}, err)
		}
	}
}

// Reader exposes the stream as an io.Reader of text deltas.
//
// Do not call Next() concurrently with Reader().
func (s *ChatStream) Reader() io.Reader {
	return &chatStreamReader{stream: s}
}

type chatStreamReader struct {
	stream *ChatStream
	buf    []byte
	done   bool
}

func (r *chatStreamReader) Read(p []byte) (int, error) {
	if r.done {
		return 0, io.EOF
	}
	for len(r.buf) == 0 {
		if r.stream.Next() {
			r.buf = []byte(r.stream.Text())
			continue
		}
		r.done = true
		if err := r.stream.Err(); err != nil {
			return 0, err
		}
		return 0, io.EOF
	}
	n := copy(p, r.buf)
	r.buf = r.buf[n:]
	return n, nil
}
