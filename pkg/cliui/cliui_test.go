package cliui_test

import (
	"bytes"
	"errors"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/wenshu/pkg/cliui"
)

var _ = Describe("cliui", func() {
	Describe("FormatDuration", func() {
		It("uses milliseconds below one second", func() {
			Expect(cliui.FormatDuration(12 * time.Millisecond)).To(Equal("12ms"))
		})

		It("uses seconds with one decimal above", func() {
			Expect(cliui.FormatDuration(3200 * time.Millisecond)).To(Equal("3.2s"))
		})
	})

	Describe("Mark", func() {
		It("distinguishes success from failure", func() {
			Expect(cliui.Mark(nil)).To(Equal(cliui.SuccessMark))
			Expect(cliui.Mark(errors.New("boom"))).To(Equal(cliui.FailMark))
		})
	})

	Describe("PrintError", func() {
		It("writes the error after a failure mark", func() {
			var buf bytes.Buffer
			cliui.PrintError(&buf, errors.New("upstream unreachable"))
			Expect(buf.String()).To(HavePrefix(cliui.FailMark))
			Expect(buf.String()).To(ContainSubstring("Error: upstream unreachable"))
			Expect(buf.String()).To(HaveSuffix("\n"))
		})

		It("writes nothing without an error", func() {
			var buf bytes.Buffer
			cliui.PrintError(&buf, nil)
			Expect(buf.String()).To(BeEmpty())
		})
	})

	Describe("Step", func() {
		It("returns the error of the wrapped function and prints the message", func() {
			var buf bytes.Buffer
			err := cliui.Step(&buf, "connecting", func() error { return errors.New("refused") })
			Expect(err).To(MatchError("refused"))
			Expect(buf.String()).To(ContainSubstring("connecting"))
		})
	})

	Describe("Exchange and KeyValue", func() {
		It("prints query and answer", func() {
			var buf bytes.Buffer
			cliui.Exchange(&buf, time.Now(), "what is wenshu?", "a gateway")
			cliui.KeyValue(&buf, "conversation", "conv-1")
			Expect(buf.String()).To(ContainSubstring("what is wenshu?"))
			Expect(buf.String()).To(ContainSubstring("a gateway"))
			Expect(buf.String()).To(ContainSubstring("conv-1"))
		})
	})
})
