// Package kafka publishes chat events to a Kafka topic with segmentio/kafka-go.
package kafka

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/bytedance/sonic"
	kafkago "github.com/segmentio/kafka-go"

	"github.com/papercomputeco/wenshu/pkg/eventstream"
	"github.com/papercomputeco/wenshu/pkg/logger"
)

// DefaultTopic is the topic used when none is configured.
const DefaultTopic = "wenshu.chat"

// MessageWriter is the subset of *kafkago.Writer used by the Publisher.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// Config configures a Kafka Publisher.
type Config struct {
	// Brokers are the bootstrap broker addresses, host:port.
	Brokers []string

	// Topic receives the events. Defaults to DefaultTopic.
	Topic string

	// WriteTimeout bounds one publish. Defaults to 10s.
	WriteTimeout time.Duration

	Logger *slog.Logger
}

// Publisher writes each event as one JSON message keyed by conversation id,
// so every exchange of a conversation lands on the same partition.
type Publisher struct {
	writer  MessageWriter
	topic   string
	timeout time.Duration
	logger  *slog.Logger
}

// NewPublisher creates a Publisher backed by a kafka-go Writer.
func NewPublisher(c Config) (*Publisher, error) {
	if len(c.Brokers) == 0 {
		return nil, errors.New("kafka publisher requires at least one broker")
	}
	if c.Topic == "" {
		c.Topic = DefaultTopic
	}

	w := &kafkago.Writer{
		Addr:                   kafkago.TCP(c.Brokers...),
		Topic:                  c.Topic,
		Balancer:               &kafkago.Hash{},
		RequiredAcks:           kafkago.RequireOne,
		AllowAutoTopicCreation: true,
	}

	return NewPublisherWithWriter(w, c), nil
}

// NewPublisherWithWriter creates a Publisher on top of an existing writer.
func NewPublisherWithWriter(w MessageWriter, c Config) *Publisher {
	if c.Topic == "" {
		c.Topic = DefaultTopic
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 10 * time.Second
	}
	if c.Logger == nil {
		c.Logger = logger.Nop()
	}

	return &Publisher{
		writer:  w,
		topic:   c.Topic,
		timeout: c.WriteTimeout,
		logger:  c.Logger,
	}
}

// PublishChat writes one event.
func (p *Publisher) PublishChat(ctx context.Context, event *eventstream.ChatCompletedEvent) error {
	if event == nil {
		return eventstream.ErrNilChatEvent
	}

	value, err := sonic.ConfigStd.Marshal(event)
	if err != nil {
		return fmt.Errorf("could not encode chat event: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	msg := kafkago.Message{
		Key:   []byte(event.Chat.ConversationID),
		Value: value,
		Time:  event.EmittedAt,
		Headers: []kafkago.Header{
			{Key: "event_type", Value: []byte(event.EventType)},
			{Key: "schema_version", Value: fmt.Appendf(nil, "%d", event.SchemaVersion)},
		},
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("could not publish chat event to %s: %w", p.topic, err)
	}

	p.logger.Debug("chat event published",
		"topic", p.topic,
		"event_id", event.EventID,
		"conversation_id", event.Chat.ConversationID,
	)
	return nil
}

// Close flushes pending writes and closes the writer.
func (p *Publisher) Close() error {
	return p.writer.Close()
}
