// Package sse turns an upstream chat-completions event stream into minimal {"content"} frames.
package sse

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"

	"github.com/tidwall/gjson"
)

const (
	dataPrefix   = "data: "
	doneSentinel = "[DONE]"
	deltaPath    = "choices.0.delta.content"

	readBufferSize = 32 * 1024
)

// Frame is one downstream event carrying a text fragment.
type Frame struct {
	Content string `json:"content"`
}

// Encode renders the frame as an SSE data event.
func (f Frame) Encode() []byte {
	var buf bytes.Buffer
	buf.WriteString(dataPrefix)
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	// A struct with one string field cannot fail to encode.
	_ = enc.Encode(f)
	buf.Truncate(buf.Len() - 1)
	buf.WriteString("\n\n")
	return buf.Bytes()
}

// Reframer buffers upstream bytes and yields frames for each complete line.
// It belongs to a single upstream connection and is not safe for concurrent use.
type Reframer struct {
	buf []byte
}

// Push appends chunk and returns the frames completed by it, in order.
// The trailing partial line is held until a later Push or Flush.
func (r *Reframer) Push(chunk []byte) []Frame {
	r.buf = append(r.buf, chunk...)

	var frames []Frame
	for {
		i := bytes.IndexByte(r.buf, '\n')
		if i < 0 {
			break
		}
		if f, ok := parseLine(r.buf[:i]); ok {
			frames = append(frames, f)
		}
		r.buf = r.buf[i+1:]
	}

	// Reclaim the consumed prefix once nothing is pending.
	if len(r.buf) == 0 {
		r.buf = nil
	}
	return frames
}

// Flush processes whatever remains in the buffer as a final line.
func (r *Reframer) Flush() []Frame {
	rest := r.buf
	r.buf = nil
	if f, ok := parseLine(rest); ok {
		return []Frame{f}
	}
	return nil
}

// Buffered reports the number of bytes held back as an incomplete line.
func (r *Reframer) Buffered() int {
	return len(r.buf)
}

func parseLine(line []byte) (Frame, bool) {
	line = bytes.TrimSpace(line)
	if len(line) == 0 || !bytes.HasPrefix(line, []byte(dataPrefix)) {
		return Frame{}, false
	}
	payload := line[len(dataPrefix):]
	if string(payload) == doneSentinel || !gjson.ValidBytes(payload) {
		return Frame{}, false
	}

	// Only string deltas become frames; numbers and objects are dropped.
	content := gjson.GetBytes(payload, deltaPath)
	if content.Type != gjson.String || content.Str == "" {
		return Frame{}, false
	}
	return Frame{Content: content.Str}, true
}

// Relay reads src until EOF and passes every re-framed event to emit in upstream order.
// It stops early when ctx is done, returning ctx.Err().
func Relay(ctx context.Context, src io.Reader, emit func(Frame) error) error {
	var r Reframer
	chunk := make([]byte, readBufferSize)

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		n, err := src.Read(chunk)
		if n > 0 {
			for _, f := range r.Push(chunk[:n]) {
				if emitErr := emit(f); emitErr != nil {
					return emitErr
				}
			}
		}

		if errors.Is(err, io.EOF) {
			for _, f := range r.Flush() {
				if emitErr := emit(f); emitErr != nil {
					return emitErr
				}
			}
			return nil
		}
		if err != nil {
			return err
		}
	}
}
