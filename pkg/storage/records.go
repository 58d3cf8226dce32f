package storage

import (
	"time"

	"github.com/google/uuid"
)

// Query types recorded on QueryRecord.
const (
	QueryTypeQuery    = "query"
	QueryTypeAnalysis = "analysis"
)

// Session groups the queries of one upstream conversation.
type Session struct {
	ID             string    `json:"id"`
	UserID         string    `json:"user_id"`
	ConversationID string    `json:"conversation_id"`
	Title          string    `json:"title,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
	Active         bool      `json:"active"`
}

// QueryRecord is one question and the answer it got.
type QueryRecord struct {
	ID             string         `json:"id"`
	ConversationID string         `json:"conversation_id"`
	UserID         string         `json:"user_id"`
	MessageID      string         `json:"message_id,omitempty"`
	Query          string         `json:"query"`
	Answer         string         `json:"answer"`
	QueryType      string         `json:"query_type"`
	Inputs         map[string]any `json:"inputs,omitempty"`
	Metadata       map[string]any `json:"metadata,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
	ProcessingMS   int64          `json:"processing_ms"`
}

// Feedback is a rating left on an answer. Rating is "like", "dislike" or
// empty for a cleared rating.
type Feedback struct {
	ID        string    `json:"id"`
	MessageID string    `json:"message_id"`
	UserID    string    `json:"user_id"`
	Rating    string    `json:"rating,omitempty"`
	Content   string    `json:"content,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// APIUsage is one request served by the gateway.
type APIUsage struct {
	ID           string         `json:"id"`
	UserID       string         `json:"user_id"`
	Endpoint     string         `json:"endpoint"`
	Method       string         `json:"method"`
	StatusCode   int            `json:"status_code"`
	ProcessingMS int64          `json:"processing_ms"`
	CreatedAt    time.Time      `json:"created_at"`
	Metadata     map[string]any `json:"metadata,omitempty"`
}

// UsageStats aggregates APIUsage records.
type UsageStats struct {
	TotalRequests   int            `json:"total_requests"`
	FailedRequests  int            `json:"failed_requests"`
	AvgProcessingMS float64        `json:"avg_processing_ms"`
	ByEndpoint      map[string]int `json:"by_endpoint"`
}

// Prepare fills the id and timestamps of a record that has none yet.
func (s *Session) Prepare(now time.Time) {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	if s.CreatedAt.IsZero() {
		s.CreatedAt = now
	}
	if s.UpdatedAt.IsZero() {
		s.UpdatedAt = now
	}
}

// Prepare fills the id, type and timestamp of a record that has none yet.
func (q *QueryRecord) Prepare(now time.Time) {
	if q.ID == "" {
		q.ID = uuid.NewString()
	}
	if q.QueryType == "" {
		q.QueryType = QueryTypeQuery
	}
	if q.CreatedAt.IsZero() {
		q.CreatedAt = now
	}
}

// Prepare fills the id and timestamps of a record that has none yet.
func (f *Feedback) Prepare(now time.Time) {
	if f.ID == "" {
		f.ID = uuid.NewString()
	}
	if f.CreatedAt.IsZero() {
		f.CreatedAt = now
	}
	if f.UpdatedAt.IsZero() {
		f.UpdatedAt = now
	}
}

// Prepare fills the id and timestamp of a record that has none yet.
func (u *APIUsage) Prepare(now time.Time) {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = now
	}
}
