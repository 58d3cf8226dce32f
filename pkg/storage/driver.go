// Package storage defines the chat history records and the Driver interface
// implemented by the inmemory, sqlite and postgres backends.
package storage

import (
	"context"
)

// Driver persists and queries chat history.
type Driver interface {
	// UpsertSession creates the session for its conversation id, or refreshes
	// UpdatedAt (and an empty title) when the conversation is already known.
	UpsertSession(ctx context.Context, s *Session) error

	// GetSession returns the session of a conversation id.
	GetSession(ctx context.Context, conversationID string) (*Session, error)

	// ListSessions returns a user's sessions, most recently updated first.
	ListSessions(ctx context.Context, query SessionQuery) ([]*Session, error)

	// SaveQuery stores one question and its answer.
	SaveQuery(ctx context.Context, q *QueryRecord) error

	// ListQueries returns query records, newest first.
	ListQueries(ctx context.Context, query HistoryQuery) ([]*QueryRecord, error)

	// SaveFeedback stores a rating left on a message.
	SaveFeedback(ctx context.Context, f *Feedback) error

	// RecordUsage stores one API request.
	RecordUsage(ctx context.Context, u *APIUsage) error

	// UsageStats aggregates recorded API requests.
	UsageStats(ctx context.Context, query UsageQuery) (*UsageStats, error)

	// Close closes the store and releases any resources.
	Close() error
}

// HistoryQuery filters ListQueries.
type HistoryQuery struct {
	UserID         string
	ConversationID string
	Limit          int
	Offset         int
}

// SessionQuery filters ListSessions.
type SessionQuery struct {
	UserID string
	Limit  int
	Offset int
}

// UsageQuery filters UsageStats. An empty UserID aggregates every user.
type UsageQuery struct {
	UserID string
}

// DefaultLimit applies when a query leaves Limit unset.
const DefaultLimit = 50

// EffectiveLimit returns limit, or DefaultLimit when limit is not positive.
func EffectiveLimit(limit int) int {
	if limit <= 0 {
		return DefaultLimit
	}
	return limit
}
