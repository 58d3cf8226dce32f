package worker

import (
	"context"
	"errors"
	"sync"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/wenshu/pkg/eventstream"
	"github.com/papercomputeco/wenshu/pkg/history"
	"github.com/papercomputeco/wenshu/pkg/logger"
	"github.com/papercomputeco/wenshu/pkg/storage"
	"github.com/papercomputeco/wenshu/pkg/storage/inmemory"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []*eventstream.ChatCompletedEvent
	err    error
}

func (p *recordingPublisher) PublishChat(_ context.Context, event *eventstream.ChatCompletedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, event)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

func (p *recordingPublisher) published() []*eventstream.ChatCompletedEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*eventstream.ChatCompletedEvent(nil), p.events...)
}

type failingChatJob struct {
	*history.ChatJob
}

func (j *failingChatJob) Execute(context.Context, storage.Driver) error {
	return errors.New("disk full")
}

// newTestPool creates a worker pool backed by an in-memory driver.
// Callers should "wp.Close()" to drain enqueued jobs before asserting storage state.
func newTestPool(pub eventstream.Publisher) (*Pool, *inmemory.Driver) {
	driver := inmemory.NewDriver()

	wp, err := NewPool(&Config{
		Driver:    driver,
		Publisher: pub,
		Logger:    logger.Nop(),
	})
	Expect(err).NotTo(HaveOccurred())

	return wp, driver
}

func chatJob(user, conv, query string) *history.ChatJob {
	return &history.ChatJob{
		Session: &storage.Session{UserID: user, ConversationID: conv, Title: query},
		Query: &storage.QueryRecord{
			UserID:         user,
			ConversationID: conv,
			MessageID:      "msg-" + query,
			Query:          query,
			Answer:         "answer to " + query,
		},
		Completed: eventstream.NewChatCompletedEvent(
			eventstream.EventSource{Service: "wenshu"},
			eventstream.RequestMeta{Path: "/chat/query"},
			eventstream.ChatMeta{UserID: user, ConversationID: conv},
		),
	}
}

var _ = Describe("Worker Pool", func() {
	var (
		wp     *Pool
		driver *inmemory.Driver
		pub    *recordingPublisher
		ctx    context.Context
	)

	BeforeEach(func() {
		pub = &recordingPublisher{}
		wp, driver = newTestPool(pub)
		ctx = context.Background()
	})

	AfterEach(func() {
		wp.Close()
	})

	Describe("NewPool", func() {
		It("requires a driver", func() {
			_, err := NewPool(&Config{})
			Expect(err).To(HaveOccurred())
		})

		It("applies defaults", func() {
			c := &Config{Driver: inmemory.NewDriver()}
			p, err := NewPool(c)
			Expect(err).NotTo(HaveOccurred())
			defer p.Close()

			Expect(c.NumWorkers).To(Equal(defaultNumWorkers))
			Expect(c.QueueSize).To(Equal(defaultJobQueueSize))
			Expect(c.JobTimeout).To(Equal(defaultJobTimeout))
		})
	})

	Describe("Enqueue", func() {
		It("returns true when the queue has capacity", func() {
			Expect(wp.Enqueue(chatJob("alice", "conv-1", "hello"))).To(BeTrue())
		})

		It("drops jobs once closed", func() {
			wp.Close()
			Expect(wp.Enqueue(chatJob("alice", "conv-1", "late"))).To(BeFalse())
		})

		It("drops jobs when the queue is full", func() {
			release := make(chan struct{})
			started := make(chan struct{})

			full, err := NewPool(&Config{Driver: inmemory.NewDriver(), NumWorkers: 1, QueueSize: 1})
			Expect(err).NotTo(HaveOccurred())

			blocking := history.JobFunc(func(context.Context, storage.Driver) error {
				close(started)
				<-release
				return nil
			})
			Expect(full.Enqueue(blocking)).To(BeTrue())
			Eventually(started).Should(BeClosed())

			Expect(full.Enqueue(history.JobFunc(func(context.Context, storage.Driver) error { return nil }))).To(BeTrue())
			Expect(full.Enqueue(history.JobFunc(func(context.Context, storage.Driver) error { return nil }))).To(BeFalse())

			close(release)
			full.Close()
		})
	})

	Describe("chat history storage", func() {
		BeforeEach(func() {
			wp.Enqueue(chatJob("alice", "conv-1", "first"))
			wp.Enqueue(chatJob("alice", "conv-1", "second"))
			wp.Enqueue(chatJob("alice", "conv-2", "third"))

			// Drain the worker pool to ensure storage completes before assertions
			wp.Close()
		})

		It("stores every query", func() {
			records, err := driver.ListQueries(ctx, storage.HistoryQuery{UserID: "alice"})
			Expect(err).NotTo(HaveOccurred())
			Expect(records).To(HaveLen(3))
		})

		It("creates one session per conversation", func() {
			sessions, err := driver.ListSessions(ctx, storage.SessionQuery{UserID: "alice"})
			Expect(err).NotTo(HaveOccurred())
			Expect(sessions).To(HaveLen(2))
		})

		It("publishes one event per stored exchange", func() {
			Expect(pub.published()).To(HaveLen(3))
		})
	})

	Describe("failures", func() {
		It("does not publish when storage fails", func() {
			wp.Enqueue(&failingChatJob{ChatJob: chatJob("alice", "conv-1", "lost")})
			wp.Enqueue(chatJob("alice", "conv-1", "kept"))
			wp.Close()

			Expect(pub.published()).To(HaveLen(1))

			records, err := driver.ListQueries(ctx, storage.HistoryQuery{UserID: "alice"})
			Expect(err).NotTo(HaveOccurred())
			Expect(records).To(HaveLen(1))
			Expect(records[0].Query).To(Equal("kept"))
		})

		It("keeps storing when publishing fails", func() {
			pub.err = errors.New("broker down")
			wp.Enqueue(chatJob("alice", "conv-1", "q"))
			wp.Close()

			records, err := driver.ListQueries(ctx, storage.HistoryQuery{UserID: "alice"})
			Expect(err).NotTo(HaveOccurred())
			Expect(records).To(HaveLen(1))
		})
	})

	Describe("feedback and usage", func() {
		It("stores feedback and usage records", func() {
			wp.Enqueue(&history.FeedbackJob{Feedback: &storage.Feedback{MessageID: "msg-1", UserID: "alice", Rating: "like"}})
			wp.Enqueue(&history.UsageJob{Usage: &storage.APIUsage{UserID: "alice", Endpoint: "/chat/query", Method: "POST", StatusCode: 200}})
			wp.Close()

			Expect(driver.Feedbacks()).To(HaveLen(1))

			stats, err := driver.UsageStats(ctx, storage.UsageQuery{UserID: "alice"})
			Expect(err).NotTo(HaveOccurred())
			Expect(stats.TotalRequests).To(Equal(1))
		})
	})
})
