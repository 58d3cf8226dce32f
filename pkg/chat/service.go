// Package chat turns gateway requests into upstream Dify calls: it sanitises
// queries, validates user ids, formats answers and hands every finished
// exchange to the history recorder.
package chat

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/papercomputeco/wenshu/pkg/dify"
	"github.com/papercomputeco/wenshu/pkg/eventstream"
	"github.com/papercomputeco/wenshu/pkg/history"
	"github.com/papercomputeco/wenshu/pkg/logger"
	"github.com/papercomputeco/wenshu/pkg/retry"
	"github.com/papercomputeco/wenshu/pkg/sse"
	"github.com/papercomputeco/wenshu/pkg/storage"
)

// ErrHistoryDisabled is returned by History when no storage driver is configured.
var ErrHistoryDisabled = errors.New("chat history storage is not configured")

// Upstream is the subset of *dify.Client used by the Service.
type Upstream interface {
	SendMessage(ctx context.Context, req dify.MessageRequest) (*dify.ChatResponse, error)
	StreamMessageWithRetry(ctx context.Context, req dify.MessageRequest, opts ...dify.StreamOption) *retry.Stream[*sse.Event]
	SubmitFeedback(ctx context.Context, messageID, rating, user, content string) (*dify.FeedbackResult, error)
	GetMessages(ctx context.Context, user, conversationID string, limit int) (*dify.MessagesResponse, error)
	GetSuggestedQuestions(ctx context.Context, messageID, user string) ([]string, error)
}

// Asker answers one blocking question. *Service implements it.
type Asker interface {
	Query(ctx context.Context, req Request) (*Response, error)
}

// Request is one question as received by the gateway.
type Request struct {
	Query          string
	UserID         string
	ConversationID string
	Inputs         map[string]any
	Files          []dify.File

	// QueryType is storage.QueryTypeQuery or storage.QueryTypeAnalysis.
	QueryType string

	// Path is the gateway route, carried into published events.
	Path string
}

// Service is safe for concurrent use.
type Service struct {
	upstream Upstream
	recorder history.Recorder
	history  storage.Driver
	logger   *slog.Logger
	app      string
	now      func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithRecorder sets where finished exchanges and feedback are recorded.
func WithRecorder(r history.Recorder) Option {
	return func(s *Service) {
		s.recorder = r
	}
}

// WithHistory sets the driver that History reads from.
func WithHistory(d storage.Driver) Option {
	return func(s *Service) {
		s.history = d
	}
}

// WithLogger sets the service logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithAppName names the upstream application in published events.
func WithAppName(name string) Option {
	return func(s *Service) {
		s.app = name
	}
}

// NewService returns a Service calling upstream.
func NewService(upstream Upstream, opts ...Option) *Service {
	s := &Service{
		upstream: upstream,
		logger:   logger.Nop(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Query sends a blocking question and returns the formatted answer.
func (s *Service) Query(ctx context.Context, req Request) (*Response, error) {
	req, err := prepare(req)
	if err != nil {
		return nil, err
	}

	start := s.now()
	s.logger.Info("chat query",
		"user_id", req.UserID,
		"conversation_id", req.ConversationID,
		"query_type", req.QueryType,
	)

	resp, err := s.upstream.SendMessage(ctx, messageRequest(req))
	if err != nil {
		s.logger.Error("chat query failed", "user_id", req.UserID, "error", err)
		return nil, err
	}

	out := FormatResponse(resp)
	s.record(req, exchange{
		conversationID: out.ConversationID,
		messageID:      out.MessageID,
		answer:         out.Answer,
		metadata:       out.Metadata,
		start:          start,
		attempts:       1,
	})
	return out, nil
}

// QueryStream sends a streaming question under the upstream stream retry
// policy. The returned Turn must be drained or closed by the caller.
func (s *Service) QueryStream(ctx context.Context, req Request, opts ...dify.StreamOption) (*Turn, error) {
	req, err := prepare(req)
	if err != nil {
		return nil, err
	}

	s.logger.Info("chat stream",
		"user_id", req.UserID,
		"conversation_id", req.ConversationID,
		"query_type", req.QueryType,
	)

	return &Turn{
		svc:       s,
		req:       req,
		stream:    s.upstream.StreamMessageWithRetry(ctx, messageRequest(req), opts...),
		collector: dify.NewCollector(),
		start:     s.now(),
	}, nil
}

// Feedback rates an answer upstream and records the rating.
func (s *Service) Feedback(ctx context.Context, messageID, rating, userID, content string) (*dify.FeedbackResult, error) {
	if messageID == "" {
		return nil, &dify.ValidationError{Message: "message id is required"}
	}
	if err := ValidateRating(rating); err != nil {
		return nil, err
	}
	if err := ValidateUserID(userID); err != nil {
		return nil, err
	}

	res, err := s.upstream.SubmitFeedback(ctx, messageID, rating, userID, content)
	if err != nil {
		return nil, err
	}

	s.enqueue(&history.FeedbackJob{Feedback: &storage.Feedback{
		MessageID: messageID,
		UserID:    userID,
		Rating:    rating,
		Content:   content,
	}})
	return res, nil
}

// Messages lists the upstream history of a user.
func (s *Service) Messages(ctx context.Context, userID, conversationID string, limit int) (*dify.MessagesResponse, error) {
	if err := ValidateUserID(userID); err != nil {
		return nil, err
	}
	return s.upstream.GetMessages(ctx, userID, conversationID, limit)
}

// Suggested returns the follow-up questions suggested for a message.
func (s *Service) Suggested(ctx context.Context, messageID, userID string) ([]string, error) {
	if messageID == "" {
		return nil, &dify.ValidationError{Message: "message id is required"}
	}
	if err := ValidateUserID(userID); err != nil {
		return nil, err
	}
	return s.upstream.GetSuggestedQuestions(ctx, messageID, userID)
}

// History returns locally recorded exchanges, newest first.
func (s *Service) History(ctx context.Context, q storage.HistoryQuery) ([]*storage.QueryRecord, error) {
	if s.history == nil {
		return nil, ErrHistoryDisabled
	}
	if err := ValidateUserID(q.UserID); err != nil {
		return nil, err
	}
	return s.history.ListQueries(ctx, q)
}

func prepare(req Request) (Request, error) {
	req.Query = SanitizeQuery(req.Query)
	if req.Query == "" {
		return req, &dify.ValidationError{Message: "query is required"}
	}
	if err := ValidateUserID(req.UserID); err != nil {
		return req, err
	}
	if req.QueryType == "" {
		req.QueryType = storage.QueryTypeQuery
	}
	return req, nil
}

func messageRequest(req Request) dify.MessageRequest {
	return dify.MessageRequest{
		Query:          req.Query,
		ConversationID: req.ConversationID,
		Inputs:         req.Inputs,
		Files:          req.Files,
		User:           req.UserID,
	}
}

// exchange is what is known about an answered question once it is complete.
type exchange struct {
	conversationID string
	messageID      string
	answer         string
	metadata       map[string]any
	usage          *dify.Usage
	events         int
	start          time.Time
	attempts       int
	streaming      bool
}

func (s *Service) record(req Request, ex exchange) {
	if s.recorder == nil {
		return
	}

	end := s.now()
	elapsed := end.Sub(ex.start)

	conversationID := ex.conversationID
	if conversationID == "" {
		conversationID = req.ConversationID
	}
	if conversationID == "" {
		conversationID = NewConversationID()
		s.logger.Warn("upstream answer carried no conversation id", "user_id", req.UserID, "conversation_id", conversationID)
	}

	chat := eventstream.ChatMeta{
		UserID:         req.UserID,
		ConversationID: conversationID,
		MessageID:      ex.messageID,
		QueryType:      req.QueryType,
		QueryChars:     len([]rune(req.Query)),
		AnswerChars:    len([]rune(ex.answer)),
		TotalEvents:    ex.events,
	}
	if ex.usage != nil {
		chat.TotalTokens = int64(ex.usage.TotalTokens)
	}

	s.enqueue(&history.ChatJob{
		Session: &storage.Session{
			UserID:         req.UserID,
			ConversationID: conversationID,
			Title:          truncate(req.Query, titleLength),
		},
		Query: &storage.QueryRecord{
			ConversationID: conversationID,
			UserID:         req.UserID,
			MessageID:      ex.messageID,
			Query:          req.Query,
			Answer:         ex.answer,
			QueryType:      req.QueryType,
			Inputs:         req.Inputs,
			Metadata:       ex.metadata,
			ProcessingMS:   elapsed.Milliseconds(),
		},
		Completed: eventstream.NewChatCompletedEvent(
			eventstream.EventSource{Service: "wenshu", App: s.app},
			eventstream.RequestMeta{
				Path:        req.Path,
				StartedAt:   ex.start.UTC(),
				CompletedAt: end.UTC(),
				DurationMs:  elapsed.Milliseconds(),
				Streaming:   ex.streaming,
				Attempts:    ex.attempts,
			},
			chat,
		),
	})
}

func (s *Service) enqueue(job history.Job) {
	if s.recorder == nil {
		return
	}
	if !s.recorder.Enqueue(job) {
		s.logger.Warn("history job dropped", "job", job.Name())
	}
}
