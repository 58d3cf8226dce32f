// Package entdriver implements storage.Driver on top of ent's SQL driver and
// query builders. It is database-agnostic and embedded by the sqlite and
// postgres drivers.
package entdriver

import (
	"context"
	stdsql "database/sql"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	entsql "entgo.io/ent/dialect/sql"
	"github.com/bytedance/sonic"

	"github.com/papercomputeco/wenshu/pkg/storage"
	"github.com/papercomputeco/wenshu/pkg/storage/ent/migrate"
)

var (
	sessionColumns = []string{"id", "user_id", "conversation_id", "title", "created_at", "updated_at", "is_active"}
	queryColumns   = []string{
		"id", "conversation_id", "user_id", "message_id", "query", "answer",
		"query_type", "inputs", "metadata", "created_at", "processing_ms",
	}
)

// EntDriver provides storage operations over an ent SQL driver.
type EntDriver struct {
	DB     *entsql.Driver
	Schema *migrate.Schema
}

// New wraps drv and binds the schema migration to it.
func New(drv *entsql.Driver) *EntDriver {
	return &EntDriver{DB: drv, Schema: migrate.NewSchema(drv)}
}

func (ed *EntDriver) builder() *entsql.DialectBuilder {
	return entsql.Dialect(ed.DB.Dialect())
}

// UpsertSession stores a session keyed by conversation id. A known
// conversation only gets its updated_at refreshed, and its title filled in
// when it has none yet.
func (ed *EntDriver) UpsertSession(ctx context.Context, s *storage.Session) error {
	if s == nil || s.ConversationID == "" {
		return errors.New("cannot store session without conversation id")
	}

	cp := *s
	cp.Prepare(time.Now().UTC())

	tx, err := ed.DB.Tx(ctx)
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}

	query, args := ed.builder().Insert(migrate.SessionsTable).
		Columns(sessionColumns...).
		Values(cp.ID, cp.UserID, cp.ConversationID, cp.Title, cp.CreatedAt.UTC(), cp.UpdatedAt.UTC(), true).
		OnConflict(
			entsql.ConflictColumns("conversation_id"),
			entsql.ResolveWith(func(u *entsql.UpdateSet) {
				u.SetExcluded("updated_at")
			}),
		).
		Query()
	if err := tx.Exec(ctx, query, args, nil); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("failed to upsert session: %w", err)
	}

	if cp.Title != "" {
		query, args = ed.builder().Update(migrate.SessionsTable).
			Set("title", cp.Title).
			Where(entsql.And(
				entsql.EQ("conversation_id", cp.ConversationID),
				entsql.EQ("title", ""),
			)).
			Query()
		if err := tx.Exec(ctx, query, args, nil); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to set session title: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing session: %w", err)
	}
	return nil
}

// GetSession returns the session of a conversation id.
func (ed *EntDriver) GetSession(ctx context.Context, conversationID string) (*storage.Session, error) {
	query, args := ed.builder().Select(sessionColumns...).
		From(entsql.Table(migrate.SessionsTable)).
		Where(entsql.EQ("conversation_id", conversationID)).
		Limit(1).
		Query()

	sessions, err := ed.querySessions(ctx, query, args)
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	if len(sessions) == 0 {
		return nil, storage.NotFoundError{Kind: "session", ID: conversationID}
	}
	return sessions[0], nil
}

// ListSessions returns a user's sessions, most recently updated first.
func (ed *EntDriver) ListSessions(ctx context.Context, q storage.SessionQuery) ([]*storage.Session, error) {
	selector := ed.builder().Select(sessionColumns...).
		From(entsql.Table(migrate.SessionsTable))
	if q.UserID != "" {
		selector.Where(entsql.EQ("user_id", q.UserID))
	}
	query, args := selector.
		OrderBy(entsql.Desc("updated_at")).
		Limit(storage.EffectiveLimit(q.Limit)).
		Offset(max(q.Offset, 0)).
		Query()

	sessions, err := ed.querySessions(ctx, query, args)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	return sessions, nil
}

func (ed *EntDriver) querySessions(ctx context.Context, query string, args []any) ([]*storage.Session, error) {
	var rows entsql.Rows
	if err := ed.DB.Query(ctx, query, args, &rows); err != nil {
		return nil, err
	}
	defer rows.Close()

	result := []*storage.Session{}
	for rows.Next() {
		var s storage.Session
		if err := rows.Scan(&s.ID, &s.UserID, &s.ConversationID, &s.Title, &s.CreatedAt, &s.UpdatedAt, &s.Active); err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		result = append(result, &s)
	}
	return result, rows.Err()
}

// SaveQuery stores a query record.
func (ed *EntDriver) SaveQuery(ctx context.Context, q *storage.QueryRecord) error {
	if q == nil {
		return errors.New("cannot store nil query record")
	}

	cp := *q
	cp.Prepare(time.Now().UTC())

	inputs, err := marshalMap(cp.Inputs)
	if err != nil {
		return err
	}
	metadata, err := marshalMap(cp.Metadata)
	if err != nil {
		return err
	}

	query, args := ed.builder().Insert(migrate.QueriesTable).
		Columns(append(queryColumns, "seq")...).
		Values(cp.ID, cp.ConversationID, cp.UserID, cp.MessageID, cp.Query, cp.Answer,
			cp.QueryType, inputs, metadata, cp.CreatedAt.UTC(), cp.ProcessingMS, nextSeq()).
		Query()
	if err := ed.DB.Exec(ctx, query, args, nil); err != nil {
		return fmt.Errorf("failed to save query: %w", err)
	}
	return nil
}

// ListQueries returns query records, newest first.
func (ed *EntDriver) ListQueries(ctx context.Context, q storage.HistoryQuery) ([]*storage.QueryRecord, error) {
	selector := ed.builder().Select(queryColumns...).
		From(entsql.Table(migrate.QueriesTable))

	var preds []*entsql.Predicate
	if q.UserID != "" {
		preds = append(preds, entsql.EQ("user_id", q.UserID))
	}
	if q.ConversationID != "" {
		preds = append(preds, entsql.EQ("conversation_id", q.ConversationID))
	}
	if len(preds) > 0 {
		selector.Where(entsql.And(preds...))
	}

	query, args := selector.
		OrderBy(entsql.Desc("created_at"), entsql.Desc("seq")).
		Limit(storage.EffectiveLimit(q.Limit)).
		Offset(max(q.Offset, 0)).
		Query()

	var rows entsql.Rows
	if err := ed.DB.Query(ctx, query, args, &rows); err != nil {
		return nil, fmt.Errorf("failed to list queries: %w", err)
	}
	defer rows.Close()

	result := []*storage.QueryRecord{}
	for rows.Next() {
		var (
			r                storage.QueryRecord
			inputs, metadata stdsql.NullString
		)
		if err := rows.Scan(&r.ID, &r.ConversationID, &r.UserID, &r.MessageID, &r.Query, &r.Answer,
			&r.QueryType, &inputs, &metadata, &r.CreatedAt, &r.ProcessingMS); err != nil {
			return nil, fmt.Errorf("failed to scan query: %w", err)
		}
		var err error
		if r.Inputs, err = unmarshalMap(inputs.String); err != nil {
			return nil, err
		}
		if r.Metadata, err = unmarshalMap(metadata.String); err != nil {
			return nil, err
		}
		result = append(result, &r)
	}
	return result, rows.Err()
}

// SaveFeedback stores a feedback record.
func (ed *EntDriver) SaveFeedback(ctx context.Context, f *storage.Feedback) error {
	if f == nil {
		return errors.New("cannot store nil feedback")
	}

	cp := *f
	cp.Prepare(time.Now().UTC())

	query, args := ed.builder().Insert(migrate.FeedbacksTable).
		Columns("id", "message_id", "user_id", "rating", "content", "created_at", "updated_at").
		Values(cp.ID, cp.MessageID, cp.UserID, cp.Rating, cp.Content, cp.CreatedAt.UTC(), cp.UpdatedAt.UTC()).
		Query()
	if err := ed.DB.Exec(ctx, query, args, nil); err != nil {
		return fmt.Errorf("failed to save feedback: %w", err)
	}
	return nil
}

// RecordUsage stores an API usage record.
func (ed *EntDriver) RecordUsage(ctx context.Context, u *storage.APIUsage) error {
	if u == nil {
		return errors.New("cannot store nil usage record")
	}

	cp := *u
	cp.Prepare(time.Now().UTC())

	metadata, err := marshalMap(cp.Metadata)
	if err != nil {
		return err
	}

	query, args := ed.builder().Insert(migrate.UsageTable).
		Columns("id", "user_id", "endpoint", "method", "status_code", "processing_ms", "created_at", "metadata").
		Values(cp.ID, cp.UserID, cp.Endpoint, cp.Method, cp.StatusCode, cp.ProcessingMS, cp.CreatedAt.UTC(), metadata).
		Query()
	if err := ed.DB.Exec(ctx, query, args, nil); err != nil {
		return fmt.Errorf("failed to record usage: %w", err)
	}
	return nil
}

// UsageStats aggregates the stored usage records. Rows are grouped by
// endpoint and status code in the database and folded together here.
func (ed *EntDriver) UsageStats(ctx context.Context, q storage.UsageQuery) (*storage.UsageStats, error) {
	selector := ed.builder().Select("endpoint", "status_code", entsql.Count("*"), entsql.Sum("processing_ms")).
		From(entsql.Table(migrate.UsageTable))
	if q.UserID != "" {
		selector.Where(entsql.EQ("user_id", q.UserID))
	}
	query, args := selector.GroupBy("endpoint", "status_code").Query()

	var rows entsql.Rows
	if err := ed.DB.Query(ctx, query, args, &rows); err != nil {
		return nil, fmt.Errorf("failed to aggregate usage: %w", err)
	}
	defer rows.Close()

	stats := &storage.UsageStats{ByEndpoint: map[string]int{}}
	var totalMS float64
	for rows.Next() {
		var (
			endpoint string
			status   int
			n        int
			sum      stdsql.NullFloat64
		)
		if err := rows.Scan(&endpoint, &status, &n, &sum); err != nil {
			return nil, fmt.Errorf("failed to scan usage: %w", err)
		}
		stats.TotalRequests += n
		if status >= 400 {
			stats.FailedRequests += n
		}
		stats.ByEndpoint[endpoint] += n
		totalMS += sum.Float64
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if stats.TotalRequests > 0 {
		stats.AvgProcessingMS = totalMS / float64(stats.TotalRequests)
	}
	return stats, nil
}

// Close closes the database connection.
func (ed *EntDriver) Close() error {
	return ed.DB.Close()
}

var lastSeq atomic.Int64

// nextSeq returns a strictly increasing insert sequence, seeded from the
// clock so it keeps increasing across restarts.
func nextSeq() int64 {
	for {
		last := lastSeq.Load()
		next := max(last+1, time.Now().UnixNano())
		if lastSeq.CompareAndSwap(last, next) {
			return next
		}
	}
}

func marshalMap(m map[string]any) (string, error) {
	if len(m) == 0 {
		return "{}", nil
	}
	b, err := sonic.ConfigStd.Marshal(m)
	if err != nil {
		return "", fmt.Errorf("failed to encode json column: %w", err)
	}
	return string(b), nil
}

func unmarshalMap(s string) (map[string]any, error) {
	if s == "" || s == "{}" {
		return nil, nil
	}
	var m map[string]any
	if err := sonic.ConfigStd.UnmarshalFromString(s, &m); err != nil {
		return nil, fmt.Errorf("failed to decode json column: %w", err)
	}
	return m, nil
}

var _ storage.Driver = (*EntDriver)(nil)
