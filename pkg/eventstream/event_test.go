package eventstream_test

import (
	"encoding/json"
	"strings"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/wenshu/pkg/eventstream"
)

var _ = Describe("Event", func() {
	It("marshals ChatCompletedEvent with expected top-level keys", func() {
		now := time.Unix(1735689600, 0).UTC()
		event := eventstream.ChatCompletedEvent{
			SchemaVersion: eventstream.SchemaVersionV1,
			EventType:     eventstream.EventTypeChatCompleted,
			EventID:       "evt_123",
			EmittedAt:     now,
			Source:        eventstream.EventSource{Service: "wenshu", App: "legal-qa"},
			RequestMeta: eventstream.RequestMeta{
				Path:        "/chat/query",
				StartedAt:   now.Add(-2 * time.Second),
				CompletedAt: now,
				DurationMs:  2000,
				Streaming:   true,
				Attempts:    1,
			},
			Chat: eventstream.ChatMeta{
				UserID:         "alice",
				ConversationID: "conv-1",
				MessageID:      "msg-1",
				QueryType:      "query",
				QueryChars:     4,
				AnswerChars:    9,
				TotalTokens:    50,
			},
		}

		payload, err := json.Marshal(event)
		Expect(err).NotTo(HaveOccurred())

		var got map[string]any
		Expect(json.Unmarshal(payload, &got)).To(Succeed())

		Expect(got).To(HaveKey("schema_version"))
		Expect(got).To(HaveKey("event_type"))
		Expect(got).To(HaveKey("event_id"))
		Expect(got).To(HaveKey("emitted_at"))
		Expect(got).To(HaveKey("source"))
		Expect(got).To(HaveKey("request_meta"))
		Expect(got).To(HaveKey("chat"))
	})

	It("stamps new events with schema, type and a unique id", func() {
		a := eventstream.NewChatCompletedEvent(eventstream.EventSource{Service: "wenshu"}, eventstream.RequestMeta{}, eventstream.ChatMeta{})
		b := eventstream.NewChatCompletedEvent(eventstream.EventSource{Service: "wenshu"}, eventstream.RequestMeta{}, eventstream.ChatMeta{})

		Expect(a.SchemaVersion).To(Equal(eventstream.SchemaVersionV1))
		Expect(a.EventType).To(Equal(eventstream.EventTypeChatCompleted))
		Expect(strings.HasPrefix(a.EventID, "evt_")).To(BeTrue())
		Expect(a.EventID).NotTo(Equal(b.EventID))
		Expect(a.EmittedAt).NotTo(BeZero())
	})

	It("defines stable event constants", func() {
		Expect(eventstream.SchemaVersionV1).To(BeNumerically(">", 0))
		Expect(eventstream.EventTypeChatCompleted).To(Equal("wenshu.chat.completed"))
	})

	It("provides ErrNilChatEvent for nil payload validation", func() {
		Expect(eventstream.ErrNilChatEvent).To(MatchError("nil chat event"))
	})
})
