package dify

import (
	"errors"
	"io"

	"github.com/papercomputeco/wenshu/pkg/sse"
)

// EventIterator is any pull source of decoded stream events, such as a Stream
// or a retry.Stream[*sse.Event].
type EventIterator interface {
	Next() (*sse.Event, error)
}

// Collected is the whole answer assembled from a stream.
type Collected struct {
	Answer         string         `json:"answer"`
	ConversationID string         `json:"conversation_id"`
	MessageID      string         `json:"message_id"`
	Usage          *Usage         `json:"usage"`
	Metadata       map[string]any `json:"metadata"`
	Events         []ParsedEvent  `json:"events"`
	TotalEvents    int            `json:"total_events"`
}

// Collector assembles a Collected incrementally, one event at a time.
type Collector struct {
	c Collected
}

// NewCollector returns an empty Collector.
func NewCollector() *Collector {
	return &Collector{c: Collected{
		Usage:    &Usage{},
		Metadata: map[string]any{},
		Events:   []ParsedEvent{},
	}}
}

// Add folds one parsed event into the result: message answers are
// concatenated in order, the first conversation and message ids win and
// message_end supplies usage and metadata.
func (col *Collector) Add(p ParsedEvent) {
	col.c.Events = append(col.c.Events, p)
	col.c.TotalEvents = len(col.c.Events)

	switch p.EventType {
	case EventMessage, EventAgentMessage:
		col.c.Answer += p.Answer
		if col.c.ConversationID == "" {
			col.c.ConversationID = p.ConversationID
		}
		if col.c.MessageID == "" {
			col.c.MessageID = p.MessageID
		}

	case EventMessageEnd:
		if p.Usage != nil {
			col.c.Usage = p.Usage
		}
		if p.Metadata != nil {
			col.c.Metadata = p.Metadata
		}
		if col.c.MessageID == "" {
			col.c.MessageID = p.MessageID
		}
		if col.c.ConversationID == "" {
			col.c.ConversationID = p.ConversationID
		}
	}
}

// Result returns the assembled response so far.
func (col *Collector) Result() *Collected {
	out := col.c
	return &out
}

// Collect drains it and assembles the whole answer. On error the partial
// result is returned along with the error.
func Collect(it EventIterator) (*Collected, error) {
	col := NewCollector()
	for {
		ev, err := it.Next()
		if errors.Is(err, io.EOF) {
			return col.Result(), nil
		}
		if err != nil {
			return col.Result(), err
		}
		col.Add(ParseEvent(ev))
	}
}
