package sse_test

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"io"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/wenshu/pkg/sse"
)

var _ = Describe("Writer", func() {
	var (
		buf *bytes.Buffer
		w   *sse.Writer
	)

	BeforeEach(func() {
		buf = &bytes.Buffer{}
		w = sse.NewWriter(buf)
	})

	It("frames a marshalled value", func() {
		Expect(w.WriteEvent(map[string]string{"event": "message"})).To(Succeed())
		Expect(buf.String()).To(Equal("data: {\"event\":\"message\"}\n\n"))
	})

	It("writes raw JSON as is", func() {
		Expect(w.WriteEvent(json.RawMessage(`{"answer":"你好"}`))).To(Succeed())
		Expect(buf.String()).To(Equal("data: {\"answer\":\"你好\"}\n\n"))
	})

	It("compacts multi-line raw JSON onto one line", func() {
		Expect(w.WriteEvent([]byte("{\n  \"a\": 1\n}"))).To(Succeed())
		Expect(buf.String()).To(Equal("data: {\"a\":1}\n\n"))
	})

	It("writes the sentinel", func() {
		Expect(w.WriteDone()).To(Succeed())
		Expect(buf.String()).To(Equal("data: [DONE]\n\n"))
	})

	It("writes an error event", func() {
		Expect(w.WriteError(429, "DIFY_ERROR", "API rate limit exceeded")).To(Succeed())
		Expect(buf.String()).To(Equal(
			"data: {\"event\":\"error\",\"status\":429,\"code\":\"DIFY_ERROR\",\"message\":\"API rate limit exceeded\"}\n\n",
		))
	})

	It("flushes buffered writers after every frame", func() {
		bw := bufio.NewWriter(buf)
		w = sse.NewWriter(bw)

		Expect(w.WriteDone()).To(Succeed())
		Expect(buf.String()).To(Equal("data: [DONE]\n\n"))
	})

	It("returns write errors", func() {
		pr, pw := io.Pipe()
		Expect(pr.Close()).To(Succeed())
		w = sse.NewWriter(pw)

		Expect(w.WriteDone()).To(MatchError(io.ErrClosedPipe))
	})

	It("round trips through an Ingestor", func() {
		src := sse.NewIngestor(bytes.NewReader([]byte(workflowStream)))
		for {
			ev, err := src.Next()
			if errors.Is(err, io.EOF) {
				break
			}
			Expect(err).NotTo(HaveOccurred())
			Expect(w.WriteEvent(ev)).To(Succeed())
		}
		Expect(w.WriteDone()).To(Succeed())

		again := sse.NewIngestor(bytes.NewReader(buf.Bytes()))
		var types []string
		for {
			ev, err := again.Next()
			if errors.Is(err, io.EOF) {
				break
			}
			Expect(err).NotTo(HaveOccurred())
			types = append(types, ev.Type)
		}
		Expect(types).To(Equal([]string{"workflow_started", "message", "message", "message_end"}))
		Expect(again.Done()).To(BeTrue())
	})
})
