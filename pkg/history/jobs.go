// Package history defines the asynchronous jobs that persist chat history and
// the Recorder that accepts them. The gateway's worker pool is the Recorder in
// production.
package history

import (
	"context"
	"fmt"

	"github.com/papercomputeco/wenshu/pkg/eventstream"
	"github.com/papercomputeco/wenshu/pkg/storage"
)

// Job is a unit of history work run against a storage driver.
type Job interface {
	// Name identifies the job in logs.
	Name() string

	// Execute runs the job against the storage driver.
	Execute(ctx context.Context, driver storage.Driver) error
}

// Eventer is implemented by jobs that announce themselves on the event stream
// once they have been stored.
type Eventer interface {
	Event() *eventstream.ChatCompletedEvent
}

// Recorder accepts jobs for asynchronous execution. Enqueue reports false
// when the job was dropped.
type Recorder interface {
	Enqueue(job Job) bool
}

// JobFunc adapts a function into a Job.
type JobFunc func(ctx context.Context, driver storage.Driver) error

// Name implements Job.
func (f JobFunc) Name() string { return "func" }

// Execute implements Job.
func (f JobFunc) Execute(ctx context.Context, driver storage.Driver) error {
	return f(ctx, driver)
}

// ChatJob stores one question and answer, creating or refreshing the session
// of its conversation first.
type ChatJob struct {
	Session *storage.Session
	Query   *storage.QueryRecord

	// Completed is published after the exchange is stored. Optional.
	Completed *eventstream.ChatCompletedEvent
}

// Name implements Job.
func (j *ChatJob) Name() string { return "chat" }

// Execute implements Job.
func (j *ChatJob) Execute(ctx context.Context, driver storage.Driver) error {
	if j.Session != nil && j.Session.ConversationID != "" {
		if err := driver.UpsertSession(ctx, j.Session); err != nil {
			return fmt.Errorf("storing session: %w", err)
		}
	}

	if j.Query != nil {
		if err := driver.SaveQuery(ctx, j.Query); err != nil {
			return fmt.Errorf("storing query: %w", err)
		}
	}
	return nil
}

// Event implements Eventer.
func (j *ChatJob) Event() *eventstream.ChatCompletedEvent {
	return j.Completed
}

// FeedbackJob stores a rating left on a message.
type FeedbackJob struct {
	Feedback *storage.Feedback
}

// Name implements Job.
func (j *FeedbackJob) Name() string { return "feedback" }

// Execute implements Job.
func (j *FeedbackJob) Execute(ctx context.Context, driver storage.Driver) error {
	if err := driver.SaveFeedback(ctx, j.Feedback); err != nil {
		return fmt.Errorf("storing feedback: %w", err)
	}
	return nil
}

// UsageJob stores one served API request.
type UsageJob struct {
	Usage *storage.APIUsage
}

// Name implements Job.
func (j *UsageJob) Name() string { return "usage" }

// Execute implements Job.
func (j *UsageJob) Execute(ctx context.Context, driver storage.Driver) error {
	if err := driver.RecordUsage(ctx, j.Usage); err != nil {
		return fmt.Errorf("storing usage: %w", err)
	}
	return nil
}
