package chat_test

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/papercomputeco/wenshu/pkg/history"
)

const answerSSE = "data: {\"event\":\"message\",\"task_id\":\"task-1\",\"data\":{\"id\":\"msg-1\",\"answer\":\"你好！\",\"conversation_id\":\"conv-1\"}}\n\n" +
	"data: {\"event\":\"message\",\"task_id\":\"task-1\",\"data\":{\"id\":\"msg-1\",\"answer\":\"我是AI助手\",\"conversation_id\":\"conv-1\"}}\n\n" +
	"data: {\"event\":\"message_end\",\"task_id\":\"task-1\",\"data\":{\"id\":\"msg-1\",\"metadata\":{\"retriever_resources\":[]},\"usage\":{\"prompt_tokens\":20,\"completion_tokens\":30,\"total_tokens\":50}}}\n\n" +
	"data: [DONE]\n\n"

// jobRecorder captures history jobs instead of running them.
type jobRecorder struct {
	mu   sync.Mutex
	jobs []history.Job
	full bool
}

func (r *jobRecorder) Enqueue(job history.Job) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.full {
		return false
	}
	r.jobs = append(r.jobs, job)
	return true
}

func (r *jobRecorder) chatJobs() []*history.ChatJob {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*history.ChatJob
	for _, j := range r.jobs {
		if c, ok := j.(*history.ChatJob); ok {
			out = append(out, c)
		}
	}
	return out
}

func (r *jobRecorder) feedbackJobs() []*history.FeedbackJob {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*history.FeedbackJob
	for _, j := range r.jobs {
		if f, ok := j.(*history.FeedbackJob); ok {
			out = append(out, f)
		}
	}
	return out
}

func noSleep(ctx context.Context, _ time.Duration) error {
	return ctx.Err()
}

func writeSSE(w http.ResponseWriter, body string) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, body)
}
