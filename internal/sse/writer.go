package sse

import (
	"errors"
	"net/http"
)

// Writer sends frames to a client, flushing after every frame.
type Writer struct {
	w  http.ResponseWriter
	rc *http.ResponseController
}

// NewWriter wraps w. Middleware wrappers must expose Unwrap for flushing to reach the connection.
func NewWriter(w http.ResponseWriter) *Writer {
	return &Writer{w: w, rc: http.NewResponseController(w)}
}

// SetHeaders writes the event-stream response headers and status.
func (w *Writer) SetHeaders() {
	h := w.w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no") // Disable nginx buffering
	w.w.WriteHeader(http.StatusOK)
	_ = w.flush()
}

// WriteFrame writes one encoded frame and flushes it.
func (w *Writer) WriteFrame(f Frame) error {
	if _, err := w.w.Write(f.Encode()); err != nil {
		return err
	}
	return w.flush()
}

func (w *Writer) flush() error {
	err := w.rc.Flush()
	if errors.Is(err, http.ErrNotSupported) {
		return nil
	}
	return err
}
