package proxy

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/wenshu/pkg/storage"
	"github.com/papercomputeco/wenshu/pkg/storage/inmemory"
	"github.com/papercomputeco/wenshu/proxy/header"
)

var _ = Describe("New", func() {
	It("requires an upstream client", func() {
		_, err := New(Config{}, inmemory.NewDriver(), nil)
		Expect(err).To(MatchError(ContainSubstring("upstream")))
	})
})

var _ = Describe("Chat gateway", func() {
	var (
		p        *Proxy
		driver   *inmemory.Driver
		pub      *recordingPublisher
		upstream *httptest.Server
		handler  http.HandlerFunc
		ctx      context.Context
	)

	BeforeEach(func() {
		ctx = context.Background()
		handler = func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusNotFound)
		}
		upstream = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			handler(w, r)
		}))
		pub = &recordingPublisher{}
		p, driver = newTestProxy(upstream.URL, pub)
	})

	AfterEach(func() {
		if p != nil {
			p.Close()
		}
		upstream.Close()
	})

	storedQueries := func() []*storage.QueryRecord {
		records, err := driver.ListQueries(ctx, storage.HistoryQuery{})
		Expect(err).NotTo(HaveOccurred())
		return records
	}

	Describe("status routes", func() {
		It("describes the service on /", func() {
			resp, err := p.server.Test(httptest.NewRequest(http.MethodGet, "/", nil))
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusOK))

			var body map[string]any
			decodeJSON(resp, &body)
			Expect(body["name"]).To(Equal("wenshu"))
			Expect(body["status"]).To(Equal("running"))
		})

		It("reports health", func() {
			resp, err := p.server.Test(httptest.NewRequest(http.MethodGet, "/health", nil))
			Expect(err).NotTo(HaveOccurred())

			var body map[string]any
			decodeJSON(resp, &body)
			Expect(body["status"]).To(Equal("healthy"))
		})
	})

	Describe("POST /chat/query", func() {
		Context("without streaming", func() {
			var sent map[string]any

			BeforeEach(func() {
				handler = func(w http.ResponseWriter, r *http.Request) {
					defer GinkgoRecover()
					Expect(r.URL.Path).To(Equal("/chat-messages"))
					Expect(r.Header.Get("Authorization")).To(Equal("Bearer app-secret"))
					Expect(json.NewDecoder(r.Body).Decode(&sent)).To(Succeed())
					w.Header().Set("Content-Type", "application/json")
					_, _ = io.WriteString(w, blockingAnswer)
				}
			})

			It("returns the formatted answer and records the exchange", func() {
				resp, err := p.server.Test(jsonRequest(http.MethodPost, "/chat/query", map[string]any{
					"query": "  生命的意义是什么？  ",
					"user":  "alice",
				}))
				Expect(err).NotTo(HaveOccurred())
				Expect(resp.StatusCode).To(Equal(http.StatusOK))
				Expect(resp.Header.Get(header.RequestIDHeader)).NotTo(BeEmpty())

				var body map[string]any
				decodeJSON(resp, &body)
				Expect(body["success"]).To(BeTrue())
				Expect(body["answer"]).To(Equal("四十二"))
				Expect(body["conversation_id"]).To(Equal("conv-1"))
				Expect(body["message_id"]).To(Equal("msg-1"))

				Expect(sent["query"]).To(Equal("生命的意义是什么？"))
				Expect(sent["response_mode"]).To(Equal("blocking"))
				Expect(sent["user"]).To(Equal("alice"))

				Eventually(storedQueries).Should(HaveLen(1))
				rec := storedQueries()[0]
				Expect(rec.Answer).To(Equal("四十二"))
				Expect(rec.QueryType).To(Equal(storage.QueryTypeQuery))

				session, err := driver.GetSession(ctx, "conv-1")
				Expect(err).NotTo(HaveOccurred())
				Expect(session.UserID).To(Equal("alice"))

				Eventually(pub.published).Should(HaveLen(1))
				Expect(pub.published()[0].RequestMeta.Path).To(Equal("/chat/query"))
			})

			It("takes the user from the header when the body names none", func() {
				req := jsonRequest(http.MethodPost, "/chat/analyze", map[string]any{"query": "趋势如何"})
				req.Header.Set(header.UserHeader, "bob")

				resp, err := p.server.Test(req)
				Expect(err).NotTo(HaveOccurred())
				Expect(resp.StatusCode).To(Equal(http.StatusOK))
				resp.Body.Close()

				Expect(sent["user"]).To(Equal("bob"))
				Eventually(storedQueries).Should(HaveLen(1))
				Expect(storedQueries()[0].QueryType).To(Equal(storage.QueryTypeAnalysis))
			})

			It("records usage per request", func() {
				resp, err := p.server.Test(jsonRequest(http.MethodPost, "/chat/query", map[string]any{
					"query": "hello",
					"user":  "alice",
				}))
				Expect(err).NotTo(HaveOccurred())
				resp.Body.Close()

				Eventually(func() int {
					stats, err := driver.UsageStats(ctx, storage.UsageQuery{UserID: "alice"})
					Expect(err).NotTo(HaveOccurred())
					return stats.ByEndpoint["/chat/query"]
				}).Should(Equal(1))
			})
		})

		It("rejects a request without a user", func() {
			resp, err := p.server.Test(jsonRequest(http.MethodPost, "/chat/query", map[string]any{"query": "hello"}))
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))

			var body errorResponse
			decodeJSON(resp, &body)
			Expect(body.Success).To(BeFalse())
			Expect(body.Error.Code).To(Equal("VALIDATION_ERROR"))
		})

		It("rejects a body that is not JSON", func() {
			req := httptest.NewRequest(http.MethodPost, "/chat/query", strings.NewReader("query=hello"))
			resp, err := p.server.Test(req)
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
			resp.Body.Close()
		})

		It("maps an upstream authentication failure to 401", func() {
			handler = func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusUnauthorized)
			}

			resp, err := p.server.Test(jsonRequest(http.MethodPost, "/chat/query", map[string]any{"query": "hi", "user": "alice"}))
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusUnauthorized))

			var body errorResponse
			decodeJSON(resp, &body)
			Expect(body.Error.Code).To(Equal("DIFY_ERROR"))
			Expect(body.Error.UpstreamStatus).To(Equal(http.StatusUnauthorized))
		})

		It("maps other upstream failures to 502", func() {
			handler = func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusInternalServerError)
				_, _ = io.WriteString(w, `{"code":"internal","message":"model overloaded","status":500}`)
			}

			resp, err := p.server.Test(jsonRequest(http.MethodPost, "/chat/query", map[string]any{"query": "hi", "user": "alice"}))
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusBadGateway))

			var body errorResponse
			decodeJSON(resp, &body)
			Expect(body.Error.Message).To(ContainSubstring("model overloaded"))
			Expect(body.Error.UpstreamStatus).To(Equal(http.StatusInternalServerError))
		})
	})

	Describe("streaming", func() {
		streamRequest := func() *http.Request {
			req := jsonRequest(http.MethodPost, "/chat/query", map[string]any{
				"query":  "你好",
				"user":   "alice",
				"stream": true,
			})
			req.Header.Set("Accept", "text/event-stream")
			return req
		}

		It("re-streams every event and ends with the sentinel", func() {
			handler = func(w http.ResponseWriter, _ *http.Request) {
				writeSSE(w, streamedAnswer)
			}

			resp, err := p.server.Test(streamRequest(), -1)
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(resp.Header.Get("Content-Type")).To(HavePrefix("text/event-stream"))

			body, err := io.ReadAll(resp.Body)
			Expect(err).NotTo(HaveOccurred())
			resp.Body.Close()

			frames := strings.Split(strings.TrimSuffix(string(body), "\n\n"), "\n\n")
			Expect(frames).To(HaveLen(4))
			Expect(frames[0]).To(HavePrefix(`data: {"event":"message"`))
			Expect(frames[0]).To(ContainSubstring("你好！"))
			Expect(frames[2]).To(ContainSubstring(`"message_end"`))
			Expect(frames[3]).To(Equal("data: [DONE]"))

			Eventually(storedQueries).Should(HaveLen(1))
			Expect(storedQueries()[0].Answer).To(Equal("你好！我是AI助手"))

			Eventually(pub.published).Should(HaveLen(1))
			ev := pub.published()[0]
			Expect(ev.RequestMeta.Streaming).To(BeTrue())
			Expect(ev.Chat.TotalTokens).To(Equal(int64(50)))
		})

		It("never compresses a streamed answer, even without an event-stream Accept header", func() {
			handler = func(w http.ResponseWriter, _ *http.Request) {
				writeSSE(w, streamedAnswer)
			}

			req := jsonRequest(http.MethodPost, "/chat/query", map[string]any{
				"query":  "你好",
				"user":   "alice",
				"stream": true,
			})
			req.Header.Del("Accept")
			req.Header.Set("Accept-Encoding", "gzip")

			resp, err := p.server.Test(req, -1)
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(resp.Header.Get("Content-Type")).To(HavePrefix("text/event-stream"))
			Expect(resp.Header.Get("Content-Encoding")).To(BeEmpty())

			body, err := io.ReadAll(resp.Body)
			Expect(err).NotTo(HaveOccurred())
			resp.Body.Close()
			Expect(string(body)).To(HavePrefix(`data: {"event":"message"`))
			Expect(string(body)).To(HaveSuffix("data: [DONE]\n\n"))
		})

		It("answers with a JSON error when every attempt fails before the first event", func() {
			var calls atomic.Int32
			handler = func(w http.ResponseWriter, _ *http.Request) {
				calls.Add(1)
				w.WriteHeader(http.StatusTooManyRequests)
			}

			resp, err := p.server.Test(streamRequest(), -1)
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusTooManyRequests))
			resp.Body.Close()

			Expect(calls.Load()).To(Equal(int32(2)))
			Consistently(storedQueries).Should(BeEmpty())
		})

		It("writes an error event before the sentinel when the stream breaks on the last attempt", func() {
			handler = func(w http.ResponseWriter, _ *http.Request) {
				w.Header().Set("Content-Type", "text/event-stream")
				w.Header().Set("Content-Length", "4096")
				w.WriteHeader(http.StatusOK)
				_, _ = io.WriteString(w, "data: {\"event\":\"message\",\"data\":{\"answer\":\"partial\"}}\n\n")
			}

			resp, err := p.server.Test(streamRequest(), -1)
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusOK))

			body, err := io.ReadAll(resp.Body)
			Expect(err).NotTo(HaveOccurred())
			resp.Body.Close()

			text := string(body)
			Expect(text).To(ContainSubstring(`"event":"error"`))
			Expect(text).To(ContainSubstring(`"code":"DIFY_ERROR"`))
			Expect(text).To(HaveSuffix("data: [DONE]\n\n"))
			Expect(strings.Index(text, `"event":"error"`)).To(BeNumerically("<", strings.Index(text, "[DONE]")))

			Consistently(storedQueries).Should(BeEmpty())
		})
	})

	Describe("companion routes", func() {
		It("submits feedback upstream and stores it", func() {
			var sent map[string]any
			handler = func(w http.ResponseWriter, r *http.Request) {
				defer GinkgoRecover()
				Expect(r.URL.Path).To(Equal("/messages/msg-1/feedbacks"))
				Expect(json.NewDecoder(r.Body).Decode(&sent)).To(Succeed())
				_, _ = io.WriteString(w, `{"result":"success"}`)
			}

			resp, err := p.server.Test(jsonRequest(http.MethodPost, "/chat/feedback", map[string]any{
				"message_id": "msg-1",
				"rating":     "like",
				"user":       "alice",
				"content":    "精准",
			}))
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusOK))

			var body map[string]any
			decodeJSON(resp, &body)
			Expect(body["result"]).To(Equal("success"))
			Expect(sent["rating"]).To(Equal("like"))

			Eventually(driver.Feedbacks).Should(HaveLen(1))
			Expect(driver.Feedbacks()[0].Content).To(Equal("精准"))
		})

		It("rejects an unknown rating", func() {
			resp, err := p.server.Test(jsonRequest(http.MethodPost, "/chat/feedback", map[string]any{
				"message_id": "msg-1",
				"rating":     "meh",
				"user":       "alice",
			}))
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
			resp.Body.Close()
		})

		It("lists upstream messages", func() {
			handler = func(w http.ResponseWriter, r *http.Request) {
				defer GinkgoRecover()
				Expect(r.URL.Path).To(Equal("/messages"))
				Expect(r.URL.Query().Get("user")).To(Equal("alice"))
				Expect(r.URL.Query().Get("conversation_id")).To(Equal("conv-1"))
				Expect(r.URL.Query().Get("limit")).To(Equal("5"))
				_, _ = io.WriteString(w, `{"limit":5,"has_more":false,"data":[{"id":"msg-1","conversation_id":"conv-1","query":"q","answer":"a"}]}`)
			}

			resp, err := p.server.Test(httptest.NewRequest(http.MethodGet, "/chat/messages?user=alice&conversation_id=conv-1&limit=5", nil))
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusOK))

			var body map[string]any
			decodeJSON(resp, &body)
			Expect(body["data"]).To(HaveLen(1))
		})

		It("returns suggested questions", func() {
			handler = func(w http.ResponseWriter, r *http.Request) {
				defer GinkgoRecover()
				Expect(r.URL.Path).To(Equal("/messages/msg-1/suggested"))
				_, _ = io.WriteString(w, `{"result":"success","data":["为什么？","还有呢？"]}`)
			}

			req := httptest.NewRequest(http.MethodGet, "/chat/suggested/msg-1", nil)
			req.Header.Set(header.UserHeader, "alice")
			resp, err := p.server.Test(req)
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusOK))

			var body suggestedResponse
			decodeJSON(resp, &body)
			Expect(body.MessageID).To(Equal("msg-1"))
			Expect(body.Questions).To(Equal([]string{"为什么？", "还有呢？"}))
		})

		It("serves local history newest first", func() {
			Expect(driver.SaveQuery(ctx, &storage.QueryRecord{UserID: "alice", ConversationID: "conv-1", Query: "first", Answer: "1"})).To(Succeed())
			Expect(driver.SaveQuery(ctx, &storage.QueryRecord{UserID: "alice", ConversationID: "conv-1", Query: "second", Answer: "2"})).To(Succeed())
			Expect(driver.SaveQuery(ctx, &storage.QueryRecord{UserID: "bob", ConversationID: "conv-2", Query: "other", Answer: "3"})).To(Succeed())

			resp, err := p.server.Test(httptest.NewRequest(http.MethodGet, "/chat/history?user=alice", nil))
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusOK))

			var body historyResponse
			decodeJSON(resp, &body)
			Expect(body.UserID).To(Equal("alice"))
			Expect(body.Records).To(HaveLen(2))
			Expect(body.Records[0].Query).To(Equal("second"))
		})
	})

	It("answers CORS preflight requests", func() {
		req := httptest.NewRequest(http.MethodOptions, "/chat/query", nil)
		req.Header.Set("Origin", "https://app.example.com")
		req.Header.Set("Access-Control-Request-Method", "POST")

		resp, err := p.server.Test(req)
		Expect(err).NotTo(HaveOccurred())
		resp.Body.Close()

		Expect(resp.StatusCode).To(Equal(http.StatusNoContent))
		Expect(resp.Header.Get("Access-Control-Allow-Origin")).To(Equal("*"))
	})
})
