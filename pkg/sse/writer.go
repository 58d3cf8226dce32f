package sse

import (
	"bytes"
	"encoding/json"
	"io"

	"github.com/bytedance/sonic"
)

// ErrorEvent is the payload written by Writer.WriteError. It mirrors the
// shape of the upstream's own in-stream error event.
type ErrorEvent struct {
	Event   string `json:"event"`
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type flusher interface {
	Flush() error
}

// Writer re-serialises decoded events as an SSE stream: one
// "data: <json>\n\n" frame per event and a final "data: [DONE]\n\n".
// A Writer is not safe for concurrent use.
type Writer struct {
	w io.Writer
}

// NewWriter returns a Writer framing events onto w. When w has a
// Flush() error method it is flushed after every frame.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

// WriteEvent writes v as one data frame. Events carrying raw JSON
// (*Event, json.RawMessage, []byte) are written as is, after compaction onto a
// single line; anything else is marshalled.
func (w *Writer) WriteEvent(v any) error {
	var (
		data []byte
		err  error
	)

	switch t := v.(type) {
	case *Event:
		data, err = compact(t.Data)
	case json.RawMessage:
		data, err = compact(t)
	case []byte:
		data, err = compact(t)
	default:
		data, err = sonic.ConfigStd.Marshal(v)
	}
	if err != nil {
		return err
	}

	return w.frame(data)
}

// WriteDone writes the end-of-stream sentinel frame.
func (w *Writer) WriteDone() error {
	return w.frame([]byte(DoneSentinel))
}

// WriteError writes an error event frame. Callers follow it with WriteDone.
func (w *Writer) WriteError(status int, code, message string) error {
	return w.WriteEvent(ErrorEvent{
		Event:   "error",
		Status:  status,
		Code:    code,
		Message: message,
	})
}

func (w *Writer) frame(data []byte) error {
	buf := make([]byte, 0, len(data)+8)
	buf = append(buf, "data: "...)
	buf = append(buf, data...)
	buf = append(buf, '\n', '\n')

	if _, err := w.w.Write(buf); err != nil {
		return err
	}
	if f, ok := w.w.(flusher); ok {
		return f.Flush()
	}
	return nil
}

func compact(raw []byte) ([]byte, error) {
	if !bytes.ContainsAny(raw, "\r\n") {
		return raw, nil
	}
	var out bytes.Buffer
	if err := json.Compact(&out, raw); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}
