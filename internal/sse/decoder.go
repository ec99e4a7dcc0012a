// Package sse splits a Server-Sent Events body into frames.
package sse

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"strings"
	"sync/atomic"
)

// Decoder reads Server-Sent Events and yields each event's joined "data:"
// lines as one frame. Events carrying no data are skipped, and event, id
// and retry fields are ignored.
type Decoder struct {
	r   *bufio.Reader
	buf bytes.Buffer
	err error
}

func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{r: bufio.NewReader(r)}
}

// Next advances to the next event with a payload. It returns false on EOF or
// error.
func (d *Decoder) Next() bool {
	if d.err != nil {
		return false
	}
	d.buf.Reset()
	var sawData bool

	for {
		line, err := d.r.ReadString('\n')
		if err != nil && !(err == io.EOF && line != "") {
			if err == io.EOF && sawData {
				d.err = io.EOF
				return true
			}
			d.err = err
			return false
		}
		if err == io.EOF {
			// Unterminated last line; process it and stop after this event.
			d.err = io.EOF
		}

		line = strings.TrimRight(line, "\r\n")
		if line == "" {
			if sawData {
				return true
			}
			if d.err != nil {
				return false
			}
			continue
		}
		if strings.HasPrefix(line, ":") {
			continue
		}

		field, value, _ := strings.Cut(line, ":")
		value = strings.TrimPrefix(value, " ")
		if field == "data" {
			if sawData {
				d.buf.WriteByte('\n')
			}
			d.buf.WriteString(value)
			sawData = true
		}

		if d.err != nil {
			return sawData
		}
	}
}

func (d *Decoder) Data() []byte {
	if d == nil {
		return nil
	}
	return d.buf.Bytes()
}

func (d *Decoder) Err() error {
	if d == nil {
		return nil
	}
	if d.err == io.EOF {
		return nil
	}
	return d.err
}

// Frames adapts a decoder over a response body to a closable frame sequence.
type Frames struct {
	*Decoder
	body   io.ReadCloser
	closed atomic.Bool
}

func NewFrames(body io.ReadCloser) *Frames {
	return &Frames{Decoder: NewDecoder(body), body: body}
}

func (f *Frames) Next() bool {
	if f.closed.Load() {
		return false
	}
	return f.Decoder.Next()
}

func (f *Frames) Err() error {
	if err := f.Decoder.Err(); err != nil {
		return fmt.Errorf("sse decode: %w", err)
	}
	return nil
}

func (f *Frames) Close() error {
	if f.closed.Swap(true) {
		return nil
	}
	if f.body == nil {
		return nil
	}
	return f.body.Close()
}
