package eventstream

import (
	"time"

	"github.com/google/uuid"
)

const (
	// SchemaVersionV1 is the first version of the event payload schema.
	SchemaVersionV1 = 1

	// EventTypeChatCompleted is emitted after a chat exchange is persisted.
	EventTypeChatCompleted = "wenshu.chat.completed"
)

// ChatCompletedEvent is a transport-neutral event payload for a finished
// question and answer exchange.
type ChatCompletedEvent struct {
	SchemaVersion int         `json:"schema_version"`
	EventType     string      `json:"event_type"`
	EventID       string      `json:"event_id"`
	EmittedAt     time.Time   `json:"emitted_at"`
	Source        EventSource `json:"source"`
	RequestMeta   RequestMeta `json:"request_meta"`
	Chat          ChatMeta    `json:"chat"`
}

// EventSource identifies where the exchange originated.
type EventSource struct {
	Service string `json:"service"`
	App     string `json:"app,omitempty"`
}

// RequestMeta captures request lifecycle metadata for the event.
type RequestMeta struct {
	Path        string    `json:"path,omitempty"`
	StartedAt   time.Time `json:"started_at"`
	CompletedAt time.Time `json:"completed_at"`
	DurationMs  int64     `json:"duration_ms"`
	Streaming   bool      `json:"streaming"`
	Attempts    int       `json:"attempts,omitempty"`
}

// ChatMeta describes the exchange itself.
type ChatMeta struct {
	UserID         string `json:"user_id"`
	ConversationID string `json:"conversation_id"`
	MessageID      string `json:"message_id,omitempty"`
	QueryType      string `json:"query_type"`
	QueryChars     int    `json:"query_chars"`
	AnswerChars    int    `json:"answer_chars"`
	TotalTokens    int64  `json:"total_tokens,omitempty"`
	TotalEvents    int    `json:"total_events,omitempty"`
}

// NewChatCompletedEvent stamps a ChatCompletedEvent with the current schema,
// a fresh event id and the emission time.
func NewChatCompletedEvent(source EventSource, meta RequestMeta, chat ChatMeta) *ChatCompletedEvent {
	return &ChatCompletedEvent{
		SchemaVersion: SchemaVersionV1,
		EventType:     EventTypeChatCompleted,
		EventID:       "evt_" + uuid.NewString(),
		EmittedAt:     time.Now().UTC(),
		Source:        source,
		RequestMeta:   meta,
		Chat:          chat,
	}
}
