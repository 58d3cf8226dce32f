package nop_test

import (
	"context"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/wenshu/pkg/eventstream"
	"github.com/papercomputeco/wenshu/pkg/eventstream/nop"
)

var _ = Describe("Publisher", func() {
	It("creates a non-nil publisher", func() {
		p := nop.NewPublisher()
		Expect(p).NotTo(BeNil())
	})

	It("returns ErrNilChatEvent for nil events", func() {
		p := nop.NewPublisher()
		err := p.PublishChat(context.Background(), nil)
		Expect(err).To(MatchError(eventstream.ErrNilChatEvent))
	})

	It("succeeds for non-nil events", func() {
		p := nop.NewPublisher()
		err := p.PublishChat(context.Background(), &eventstream.ChatCompletedEvent{})
		Expect(err).NotTo(HaveOccurred())
	})

	It("closes successfully", func() {
		p := nop.NewPublisher()
		Expect(p.Close()).To(Succeed())
	})
})
