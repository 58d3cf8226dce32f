// Package storagetest holds the behaviour every storage.Driver must share,
// written as ginkgo specs that each driver's suite registers.
package storagetest

import (
	"context"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/wenshu/pkg/storage"
)

// DescribeDriver registers the behaviour every storage.Driver shares. newDriver is called
// before each It and must return an empty store; the store is closed afterwards.
func DescribeDriver(newDriver func(ctx context.Context) storage.Driver) {
	var (
		ctx    context.Context
		driver storage.Driver
		base   time.Time
	)

	BeforeEach(func() {
		ctx = context.Background()
		driver = nil
		driver = newDriver(ctx)
		base = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	})

	AfterEach(func() {
		if driver != nil {
			Expect(driver.Close()).To(Succeed())
		}
	})

	Describe("sessions", func() {
		It("creates a session on first upsert", func() {
			Expect(driver.UpsertSession(ctx, &storage.Session{
				UserID:         "alice",
				ConversationID: "conv-1",
				Title:          "first question",
			})).To(Succeed())

			s, err := driver.GetSession(ctx, "conv-1")
			Expect(err).NotTo(HaveOccurred())
			Expect(s.ID).NotTo(BeEmpty())
			Expect(s.UserID).To(Equal("alice"))
			Expect(s.Title).To(Equal("first question"))
			Expect(s.Active).To(BeTrue())
			Expect(s.CreatedAt).NotTo(BeZero())
		})

		It("refreshes an existing session without replacing its title", func() {
			Expect(driver.UpsertSession(ctx, &storage.Session{
				UserID: "alice", ConversationID: "conv-1", Title: "kept",
				CreatedAt: base, UpdatedAt: base,
			})).To(Succeed())
			Expect(driver.UpsertSession(ctx, &storage.Session{
				UserID: "alice", ConversationID: "conv-1", Title: "ignored",
				UpdatedAt: base.Add(time.Hour),
			})).To(Succeed())

			s, err := driver.GetSession(ctx, "conv-1")
			Expect(err).NotTo(HaveOccurred())
			Expect(s.Title).To(Equal("kept"))
			Expect(s.UpdatedAt.Equal(base.Add(time.Hour))).To(BeTrue())

			sessions, err := driver.ListSessions(ctx, storage.SessionQuery{UserID: "alice"})
			Expect(err).NotTo(HaveOccurred())
			Expect(sessions).To(HaveLen(1))
		})

		It("fills in the title of a session that had none", func() {
			Expect(driver.UpsertSession(ctx, &storage.Session{
				UserID: "alice", ConversationID: "conv-1",
				CreatedAt: base, UpdatedAt: base,
			})).To(Succeed())
			Expect(driver.UpsertSession(ctx, &storage.Session{
				UserID: "alice", ConversationID: "conv-1", Title: "late title",
				UpdatedAt: base.Add(time.Minute),
			})).To(Succeed())

			s, err := driver.GetSession(ctx, "conv-1")
			Expect(err).NotTo(HaveOccurred())
			Expect(s.Title).To(Equal("late title"))
			Expect(s.CreatedAt.Equal(base)).To(BeTrue())
		})

		It("rejects a session without a conversation id", func() {
			Expect(driver.UpsertSession(ctx, &storage.Session{UserID: "alice"})).NotTo(Succeed())
		})

		It("returns NotFoundError for an unknown conversation", func() {
			_, err := driver.GetSession(ctx, "missing")
			Expect(err).To(BeAssignableToTypeOf(storage.NotFoundError{}))
		})

		It("lists a user's sessions most recently updated first", func() {
			for i, id := range []string{"conv-a", "conv-b", "conv-c"} {
				at := base.Add(time.Duration(i) * time.Minute)
				Expect(driver.UpsertSession(ctx, &storage.Session{
					UserID: "alice", ConversationID: id, CreatedAt: at, UpdatedAt: at,
				})).To(Succeed())
			}
			Expect(driver.UpsertSession(ctx, &storage.Session{
				UserID: "bob", ConversationID: "conv-z", CreatedAt: base, UpdatedAt: base,
			})).To(Succeed())

			sessions, err := driver.ListSessions(ctx, storage.SessionQuery{UserID: "alice"})
			Expect(err).NotTo(HaveOccurred())

			ids := make([]string, 0, len(sessions))
			for _, s := range sessions {
				ids = append(ids, s.ConversationID)
			}
			Expect(ids).To(Equal([]string{"conv-c", "conv-b", "conv-a"}))

			sessions, err = driver.ListSessions(ctx, storage.SessionQuery{UserID: "alice", Limit: 1, Offset: 1})
			Expect(err).NotTo(HaveOccurred())
			Expect(sessions).To(HaveLen(1))
			Expect(sessions[0].ConversationID).To(Equal("conv-b"))
		})
	})

	Describe("query history", func() {
		save := func(user, conv, query string, at time.Time) {
			Expect(driver.SaveQuery(ctx, &storage.QueryRecord{
				UserID:         user,
				ConversationID: conv,
				MessageID:      "msg-" + query,
				Query:          query,
				Answer:         "answer to " + query,
				Inputs:         map[string]any{"case_type": "civil"},
				Metadata:       map[string]any{"retriever_resources": []any{"doc-1"}},
				CreatedAt:      at,
				ProcessingMS:   120,
			})).To(Succeed())
		}

		It("round trips a query record", func() {
			save("alice", "conv-1", "q1", base)

			records, err := driver.ListQueries(ctx, storage.HistoryQuery{UserID: "alice"})
			Expect(err).NotTo(HaveOccurred())
			Expect(records).To(HaveLen(1))

			r := records[0]
			Expect(r.ID).NotTo(BeEmpty())
			Expect(r.QueryType).To(Equal(storage.QueryTypeQuery))
			Expect(r.MessageID).To(Equal("msg-q1"))
			Expect(r.Answer).To(Equal("answer to q1"))
			Expect(r.Inputs).To(HaveKeyWithValue("case_type", "civil"))
			Expect(r.Metadata).To(HaveKey("retriever_resources"))
			Expect(r.ProcessingMS).To(Equal(int64(120)))
			Expect(r.CreatedAt.Equal(base)).To(BeTrue())
		})

		It("lists newest first and filters by user and conversation", func() {
			save("alice", "conv-1", "q1", base)
			save("alice", "conv-2", "q2", base.Add(time.Minute))
			save("alice", "conv-1", "q3", base.Add(2*time.Minute))
			save("bob", "conv-9", "q4", base.Add(3*time.Minute))

			records, err := driver.ListQueries(ctx, storage.HistoryQuery{UserID: "alice"})
			Expect(err).NotTo(HaveOccurred())
			Expect(queries(records)).To(Equal([]string{"q3", "q2", "q1"}))

			records, err = driver.ListQueries(ctx, storage.HistoryQuery{UserID: "alice", ConversationID: "conv-1"})
			Expect(err).NotTo(HaveOccurred())
			Expect(queries(records)).To(Equal([]string{"q3", "q1"}))

			records, err = driver.ListQueries(ctx, storage.HistoryQuery{})
			Expect(err).NotTo(HaveOccurred())
			Expect(records).To(HaveLen(4))
		})

		It("lists records saved at the same instant newest insert first", func() {
			save("alice", "conv-1", "first", base)
			save("alice", "conv-1", "second", base)
			save("alice", "conv-1", "third", base)

			records, err := driver.ListQueries(ctx, storage.HistoryQuery{UserID: "alice"})
			Expect(err).NotTo(HaveOccurred())
			Expect(queries(records)).To(Equal([]string{"third", "second", "first"}))
		})

		It("pages with limit and offset", func() {
			for i := range 5 {
				save("alice", "conv-1", string(rune('a'+i)), base.Add(time.Duration(i)*time.Minute))
			}

			records, err := driver.ListQueries(ctx, storage.HistoryQuery{UserID: "alice", Limit: 2, Offset: 1})
			Expect(err).NotTo(HaveOccurred())
			Expect(queries(records)).To(Equal([]string{"d", "c"}))

			records, err = driver.ListQueries(ctx, storage.HistoryQuery{UserID: "alice", Offset: 10})
			Expect(err).NotTo(HaveOccurred())
			Expect(records).To(BeEmpty())
		})

		It("rejects a nil record", func() {
			Expect(driver.SaveQuery(ctx, nil)).NotTo(Succeed())
		})
	})

	Describe("feedback", func() {
		It("stores feedback including a cleared rating", func() {
			Expect(driver.SaveFeedback(ctx, &storage.Feedback{
				MessageID: "msg-1", UserID: "alice", Rating: "like", Content: "useful",
			})).To(Succeed())
			Expect(driver.SaveFeedback(ctx, &storage.Feedback{
				MessageID: "msg-1", UserID: "alice",
			})).To(Succeed())
			Expect(driver.SaveFeedback(ctx, nil)).NotTo(Succeed())
		})
	})

	Describe("usage", func() {
		It("aggregates usage per user", func() {
			record := func(user, endpoint string, status int, ms int64) {
				Expect(driver.RecordUsage(ctx, &storage.APIUsage{
					UserID: user, Endpoint: endpoint, Method: "POST",
					StatusCode: status, ProcessingMS: ms,
				})).To(Succeed())
			}
			record("alice", "/chat/query", 200, 100)
			record("alice", "/chat/query", 502, 300)
			record("alice", "/chat/feedback", 200, 200)
			record("bob", "/chat/query", 200, 1000)

			stats, err := driver.UsageStats(ctx, storage.UsageQuery{UserID: "alice"})
			Expect(err).NotTo(HaveOccurred())
			Expect(stats.TotalRequests).To(Equal(3))
			Expect(stats.FailedRequests).To(Equal(1))
			Expect(stats.AvgProcessingMS).To(BeNumerically("~", 200, 0.001))
			Expect(stats.ByEndpoint).To(Equal(map[string]int{
				"/chat/query":    2,
				"/chat/feedback": 1,
			}))

			stats, err = driver.UsageStats(ctx, storage.UsageQuery{})
			Expect(err).NotTo(HaveOccurred())
			Expect(stats.TotalRequests).To(Equal(4))
		})

		It("returns zeroed stats when nothing was recorded", func() {
			stats, err := driver.UsageStats(ctx, storage.UsageQuery{UserID: "nobody"})
			Expect(err).NotTo(HaveOccurred())
			Expect(stats.TotalRequests).To(BeZero())
			Expect(stats.AvgProcessingMS).To(BeZero())
			Expect(stats.ByEndpoint).To(BeEmpty())
		})
	})
}

func queries(records []*storage.QueryRecord) []string {
	out := make([]string, 0, len(records))
	for _, r := range records {
		out = append(out, r.Query)
	}
	return out
}
