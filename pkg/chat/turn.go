package chat

import (
	"errors"
	"io"
	"time"

	"github.com/papercomputeco/wenshu/pkg/dify"
	"github.com/papercomputeco/wenshu/pkg/retry"
	"github.com/papercomputeco/wenshu/pkg/sse"
)

// Turn is one streaming exchange in flight. It yields upstream events in
// order and records the assembled answer once the stream ends cleanly. A Turn
// must be used from one goroutine.
type Turn struct {
	svc *Service
	req Request

	stream    *retry.Stream[*sse.Event]
	collector *dify.Collector
	attempt   int
	start     time.Time
	recorded  bool
}

// Next returns the next upstream event, or io.EOF once the stream is complete.
// Events from an attempt that failed mid-stream may be repeated by the next
// attempt; only the final attempt contributes to the recorded answer.
func (t *Turn) Next() (*sse.Event, error) {
	ev, err := t.stream.Next()

	// A new attempt starts the answer over, even when it ends without events.
	if n := t.stream.Attempts(); n != t.attempt {
		t.attempt = n
		t.collector = dify.NewCollector()
	}

	if err != nil {
		if errors.Is(err, io.EOF) {
			t.finish()
		}
		return nil, err
	}

	t.collector.Add(dify.ParseEvent(ev))
	return ev, nil
}

// Result returns the answer assembled so far.
func (t *Turn) Result() *dify.Collected {
	return t.collector.Result()
}

// Attempts reports how many upstream requests have been made.
func (t *Turn) Attempts() int {
	return t.stream.Attempts()
}

// State reports the retry state of the underlying stream.
func (t *Turn) State() retry.State {
	return t.stream.State()
}

// Close abandons the exchange. Nothing is recorded for a closed Turn.
func (t *Turn) Close() error {
	return t.stream.Close()
}

func (t *Turn) finish() {
	if t.recorded {
		return
	}
	t.recorded = true

	res := t.collector.Result()
	t.svc.record(t.req, exchange{
		conversationID: res.ConversationID,
		messageID:      res.MessageID,
		answer:         res.Answer,
		metadata:       res.Metadata,
		usage:          res.Usage,
		events:         res.TotalEvents,
		start:          t.start,
		attempts:       t.stream.Attempts(),
		streaming:      true,
	})
}
