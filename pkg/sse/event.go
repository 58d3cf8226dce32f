// Package sse turns an upstream Server-Sent Events byte stream into an ordered,
// lazily pulled sequence of decoded JSON payloads, and re-emits decoded payloads
// to a downstream client in the same wire shape.
//
// Only "data:" lines carry events. "event:", "id:" and "retry:" fields are
// recognised but not used, and the literal payload "[DONE]" marks the stream
// logically finished.
//
// See the SSE specification:
// https://html.spec.whatwg.org/multipage/server-sent-events.html
package sse

import (
	"encoding/json"

	"github.com/bytedance/sonic"
)

// DoneSentinel is the data payload that marks an intentional end of stream.
const DoneSentinel = "[DONE]"

// Event is a single decoded "data:" line.
type Event struct {
	// Type is the payload's top-level "event" string when the payload is a
	// JSON object carrying one. Empty otherwise.
	Type string

	// Data is the raw JSON payload exactly as it appeared on the wire, trimmed.
	Data json.RawMessage

	// Payload is Data decoded into generic JSON values
	// (map[string]any, []any, string, float64, bool or nil).
	Payload any
}

// Decode unmarshals the raw payload into v.
func (e *Event) Decode(v any) error {
	return sonic.ConfigStd.Unmarshal(e.Data, v)
}

// Object returns the payload as a JSON object, or nil when the payload is
// some other JSON value.
func (e *Event) Object() map[string]any {
	m, _ := e.Payload.(map[string]any)
	return m
}
