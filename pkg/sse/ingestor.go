package sse

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"strings"

	"github.com/bytedance/sonic"

	"github.com/papercomputeco/wenshu/pkg/logger"
)

// DefaultChunkSize is the read size used against the source when none is configured.
const DefaultChunkSize = 1024

// Ingestor reads raw chunks from a source io.Reader, reassembles them into
// complete lines and yields one Event per valid "data:" line.
//
// ┌──────────────────┐
// │ source io.Reader │
// └──────────────────┘
// │ chunks of any size
// ▼
// ┌──────────────────┐   ┌──────────────────┐
// │   line buffer    │──▶│ tee io.Writer    │ (optional, raw bytes)
// └──────────────────┘   └──────────────────┘
// │ complete lines
// ▼
// ┌──────────────────┐
// │  Ingestor.Next() │──▶ *Event
// └──────────────────┘
//
// Chunk boundaries carry no meaning: a chunk may end mid-line, mid-JSON or
// mid-rune, and the decoded sequence is the same for every chunking of the
// same bytes. An Ingestor is single pass and must be used from one goroutine.
type Ingestor struct {
	src    io.Reader
	tee    io.Writer
	logger *slog.Logger

	chunk []byte
	buf   []byte

	// pending holds events decoded from the last chunk that have not been
	// handed out yet.
	pending []*Event

	done bool
	eof  bool
	err  error
}

// IngestorOption configures an Ingestor.
type IngestorOption func(*Ingestor)

// WithLogger sets the logger used for malformed lines.
func WithLogger(l *slog.Logger) IngestorOption {
	return func(i *Ingestor) {
		if l != nil {
			i.logger = l
		}
	}
}

// WithChunkSize sets how many bytes are requested from the source per read.
func WithChunkSize(n int) IngestorOption {
	return func(i *Ingestor) {
		if n > 0 {
			i.chunk = make([]byte, n)
		}
	}
}

// WithTee mirrors every raw chunk, verbatim, to w as it is read.
func WithTee(w io.Writer) IngestorOption {
	return func(i *Ingestor) {
		i.tee = w
	}
}

// NewIngestor returns an Ingestor pulling from src.
func NewIngestor(src io.Reader, opts ...IngestorOption) *Ingestor {
	i := &Ingestor{
		src:    src,
		logger: logger.Nop(),
		chunk:  make([]byte, DefaultChunkSize),
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Next returns the next decoded event. It blocks until an event is complete,
// the source is exhausted, or the source fails.
//
// The "[DONE]" sentinel only marks the stream as logically finished (see
// Done): lines the transport still delivers after it are decoded as usual.
// Next returns (nil, io.EOF) once the source has been drained. Any other error
// is a read error from the source and is returned again on every later call.
func (i *Ingestor) Next() (*Event, error) {
	for {
		if len(i.pending) > 0 {
			ev := i.pending[0]
			i.pending[0] = nil
			i.pending = i.pending[1:]
			return ev, nil
		}

		if i.err != nil {
			return nil, i.err
		}

		if i.eof {
			return nil, io.EOF
		}

		n, err := i.src.Read(i.chunk)
		if n > 0 {
			if i.tee != nil {
				if _, werr := i.tee.Write(i.chunk[:n]); werr != nil {
					i.err = werr
					return nil, werr
				}
			}
			i.ingest(i.chunk[:n])
		}

		switch {
		case err == nil:
		case errors.Is(err, io.EOF):
			i.flush()
			i.eof = true
		default:
			i.err = err
		}
	}
}

// Done reports whether the "[DONE]" sentinel was observed.
func (i *Ingestor) Done() bool {
	return i.done
}

// ingest appends a chunk to the line buffer and processes every complete line.
// The trailing segment after the last newline stays buffered.
func (i *Ingestor) ingest(chunk []byte) {
	i.buf = append(i.buf, chunk...)

	start := 0
	for {
		idx := bytes.IndexByte(i.buf[start:], '\n')
		if idx < 0 {
			break
		}
		i.processLine(i.buf[start : start+idx])
		start += idx + 1
	}

	// Compact so the buffer only ever holds the unfinished line.
	n := copy(i.buf, i.buf[start:])
	i.buf = i.buf[:n]
}

// flush gives the unterminated remainder one last chance at the end of the
// source.
func (i *Ingestor) flush() {
	if len(i.buf) > 0 {
		i.processLine(i.buf)
	}
	i.buf = nil
}

func (i *Ingestor) processLine(raw []byte) {
	line := strings.ToValidUTF8(string(raw), "\uFFFD")

	kind, value := ClassifyLine(line)
	if kind != LineData {
		return
	}

	switch value {
	case "":
		return
	case DoneSentinel:
		i.done = true
		return
	}

	ev, err := decodeEvent(value)
	if err != nil {
		i.logger.Warn("dropping malformed sse data line",
			"data", value,
			"error", err,
		)
		return
	}

	i.pending = append(i.pending, ev)
}

func decodeEvent(value string) (*Event, error) {
	data := json.RawMessage(value)

	var payload any
	if err := sonic.ConfigStd.Unmarshal(data, &payload); err != nil {
		return nil, err
	}

	ev := &Event{
		Data:    data,
		Payload: payload,
	}
	if obj, ok := payload.(map[string]any); ok {
		if t, ok := obj["event"].(string); ok {
			ev.Type = t
		}
	}
	return ev, nil
}
