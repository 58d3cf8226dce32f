package dify

import (
	"strconv"

	"github.com/papercomputeco/wenshu/pkg/sse"
)

// Event types emitted by Dify chat and workflow applications.
const (
	EventWorkflowStarted  = "workflow_started"
	EventWorkflowFinished = "workflow_finished"
	EventNodeStarted      = "node_started"
	EventNodeFinished     = "node_finished"
	EventMessage          = "message"
	EventAgentMessage     = "agent_message"
	EventMessageEnd       = "message_end"
	EventError            = "error"
	EventPing             = "ping"
)

// ParsedEvent is a normalised view of one decoded stream payload. Fields that
// do not apply to EventType are left zero.
type ParsedEvent struct {
	EventType     string         `json:"event_type"`
	TaskID        string         `json:"task_id,omitempty"`
	WorkflowRunID string         `json:"workflow_run_id,omitempty"`
	Data          map[string]any `json:"data"`
	Raw           map[string]any `json:"-"`

	// workflow_started
	WorkflowID string `json:"workflow_id,omitempty"`

	// workflow_started and message
	CreatedAt int64 `json:"created_at,omitempty"`

	// node_started and node_finished
	NodeID      string  `json:"node_id,omitempty"`
	NodeType    string  `json:"node_type,omitempty"`
	Title       string  `json:"title,omitempty"`
	Index       int     `json:"index,omitempty"`
	Status      string  `json:"status,omitempty"`
	ElapsedTime float64 `json:"elapsed_time,omitempty"`

	// message and message_end
	MessageID      string         `json:"message_id,omitempty"`
	Answer         string         `json:"answer,omitempty"`
	ConversationID string         `json:"conversation_id,omitempty"`
	Metadata       map[string]any `json:"metadata,omitempty"`
	Usage          *Usage         `json:"usage,omitempty"`
}

// ParseEvent projects a decoded stream event. Payloads that are not JSON
// objects yield a ParsedEvent with only an empty Data map.
func ParseEvent(ev *sse.Event) ParsedEvent {
	return ParsePayload(ev.Object())
}

// ParsePayload projects one decoded event object.
//
// Per-type fields are read from the nested "data" object first and from the
// top level second, since chat applications put answer, ids and metadata at
// the top level while workflow applications nest them.
func ParsePayload(raw map[string]any) ParsedEvent {
	data, _ := raw["data"].(map[string]any)
	if data == nil {
		data = map[string]any{}
	}

	p := ParsedEvent{
		EventType:     str(raw, "event"),
		TaskID:        str(raw, "task_id"),
		WorkflowRunID: str(raw, "workflow_run_id"),
		Data:          data,
		Raw:           raw,
	}

	field := func(key string) any {
		if v, ok := data[key]; ok {
			return v
		}
		return raw[key]
	}

	switch p.EventType {
	case EventWorkflowStarted:
		p.WorkflowID = asString(field("workflow_id"))
		p.CreatedAt = asInt64(field("created_at"))

	case EventNodeStarted, EventNodeFinished:
		p.NodeID = asString(field("node_id"))
		p.NodeType = asString(field("node_type"))
		p.Title = asString(field("title"))
		p.Index = int(asInt64(field("index")))
		p.Status = asString(field("status"))
		p.ElapsedTime = asFloat(field("elapsed_time"))

	case EventMessage, EventAgentMessage:
		p.MessageID = firstString(data["id"], raw["message_id"], raw["id"])
		p.Answer = asString(field("answer"))
		p.ConversationID = asString(field("conversation_id"))
		p.CreatedAt = asInt64(field("created_at"))

	case EventMessageEnd:
		p.MessageID = firstString(data["id"], raw["message_id"], raw["id"])
		p.ConversationID = asString(field("conversation_id"))

		meta, _ := field("metadata").(map[string]any)
		if meta == nil {
			meta = map[string]any{}
		}
		p.Metadata = meta

		usage, _ := field("usage").(map[string]any)
		if usage == nil {
			usage, _ = meta["usage"].(map[string]any)
		}
		p.Usage = usageFrom(usage)
	}

	return p
}

func usageFrom(m map[string]any) *Usage {
	if m == nil {
		return &Usage{}
	}
	return &Usage{
		PromptTokens:     int(asInt64(m["prompt_tokens"])),
		CompletionTokens: int(asInt64(m["completion_tokens"])),
		TotalTokens:      int(asInt64(m["total_tokens"])),
		TotalPrice:       asString(m["total_price"]),
		Currency:         asString(m["currency"]),
		Latency:          asFloat(m["latency"]),
	}
}

func str(m map[string]any, key string) string {
	return asString(m[key])
}

func firstString(vs ...any) string {
	for _, v := range vs {
		if s := asString(v); s != "" {
			return s
		}
	}
	return ""
}

func asString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return ""
	}
}

func asFloat(v any) float64 {
	switch t := v.(type) {
	case float64:
		return t
	case string:
		f, _ := strconv.ParseFloat(t, 64)
		return f
	default:
		return 0
	}
}

func asInt64(v any) int64 {
	return int64(asFloat(v))
}
