// Package inmemory provides a map backed storage.Driver for tests and for
// running without a database.
package inmemory

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/papercomputeco/wenshu/pkg/storage"
)

// Driver implements storage.Driver using in-memory maps and slices.
type Driver struct {
	// mu guards every field below.
	mu sync.RWMutex

	// sessions is keyed by conversation id.
	sessions map[string]*storage.Session

	queries   []*storage.QueryRecord
	feedbacks []*storage.Feedback
	usage     []*storage.APIUsage
}

// NewDriver creates a new in-memory driver.
func NewDriver() *Driver {
	return &Driver{
		sessions: make(map[string]*storage.Session),
	}
}

// UpsertSession stores a session keyed by conversation id.
func (d *Driver) UpsertSession(_ context.Context, s *storage.Session) error {
	if s == nil || s.ConversationID == "" {
		return errors.New("cannot store session without conversation id")
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	now := time.Now().UTC()
	if existing, ok := d.sessions[s.ConversationID]; ok {
		existing.UpdatedAt = now
		if !s.UpdatedAt.IsZero() {
			existing.UpdatedAt = s.UpdatedAt
		}
		if existing.Title == "" {
			existing.Title = s.Title
		}
		return nil
	}

	cp := *s
	cp.Prepare(now)
	cp.Active = true
	d.sessions[s.ConversationID] = &cp
	return nil
}

// GetSession returns the session of a conversation id.
func (d *Driver) GetSession(_ context.Context, conversationID string) (*storage.Session, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	s, ok := d.sessions[conversationID]
	if !ok {
		return nil, storage.NotFoundError{Kind: "session", ID: conversationID}
	}

	cp := *s
	return &cp, nil
}

// ListSessions returns a user's sessions, most recently updated first.
func (d *Driver) ListSessions(_ context.Context, q storage.SessionQuery) ([]*storage.Session, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var result []*storage.Session
	for _, s := range d.sessions {
		if q.UserID != "" && s.UserID != q.UserID {
			continue
		}
		cp := *s
		result = append(result, &cp)
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].UpdatedAt.After(result[j].UpdatedAt)
	})

	return page(result, q.Offset, q.Limit), nil
}

// SaveQuery stores a query record.
func (d *Driver) SaveQuery(_ context.Context, q *storage.QueryRecord) error {
	if q == nil {
		return errors.New("cannot store nil query record")
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	cp := *q
	cp.Prepare(time.Now().UTC())
	d.queries = append(d.queries, &cp)
	return nil
}

// ListQueries returns query records, newest first.
func (d *Driver) ListQueries(_ context.Context, q storage.HistoryQuery) ([]*storage.QueryRecord, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var result []*storage.QueryRecord
	// Walk backwards so that records with equal timestamps keep insertion order reversed.
	for i := len(d.queries) - 1; i >= 0; i-- {
		r := d.queries[i]
		if q.UserID != "" && r.UserID != q.UserID {
			continue
		}
		if q.ConversationID != "" && r.ConversationID != q.ConversationID {
			continue
		}
		cp := *r
		result = append(result, &cp)
	}

	sort.SliceStable(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})

	return page(result, q.Offset, q.Limit), nil
}

// SaveFeedback stores a feedback record.
func (d *Driver) SaveFeedback(_ context.Context, f *storage.Feedback) error {
	if f == nil {
		return errors.New("cannot store nil feedback")
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	cp := *f
	cp.Prepare(time.Now().UTC())
	d.feedbacks = append(d.feedbacks, &cp)
	return nil
}

// Feedbacks returns every stored feedback record, oldest first.
func (d *Driver) Feedbacks() []*storage.Feedback {
	d.mu.RLock()
	defer d.mu.RUnlock()

	out := make([]*storage.Feedback, 0, len(d.feedbacks))
	for _, f := range d.feedbacks {
		cp := *f
		out = append(out, &cp)
	}
	return out
}

// RecordUsage stores an API usage record.
func (d *Driver) RecordUsage(_ context.Context, u *storage.APIUsage) error {
	if u == nil {
		return errors.New("cannot store nil usage record")
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	cp := *u
	cp.Prepare(time.Now().UTC())
	d.usage = append(d.usage, &cp)
	return nil
}

// UsageStats aggregates the stored usage records.
func (d *Driver) UsageStats(_ context.Context, q storage.UsageQuery) (*storage.UsageStats, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	stats := &storage.UsageStats{ByEndpoint: map[string]int{}}
	var total int64
	for _, u := range d.usage {
		if q.UserID != "" && u.UserID != q.UserID {
			continue
		}
		stats.TotalRequests++
		if u.StatusCode >= 400 {
			stats.FailedRequests++
		}
		stats.ByEndpoint[u.Endpoint]++
		total += u.ProcessingMS
	}
	if stats.TotalRequests > 0 {
		stats.AvgProcessingMS = float64(total) / float64(stats.TotalRequests)
	}
	return stats, nil
}

// Close is a no-op for the in-memory driver.
func (d *Driver) Close() error {
	return nil
}

func page[T any](items []T, offset, limit int) []T {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(items) {
		return []T{}
	}
	items = items[offset:]

	limit = storage.EffectiveLimit(limit)
	if len(items) > limit {
		items = items[:limit]
	}
	return items
}
