package inmemory_test

import (
	"context"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/wenshu/pkg/storage"
	"github.com/papercomputeco/wenshu/pkg/storage/inmemory"
	"github.com/papercomputeco/wenshu/pkg/storage/storagetest"
)

var _ = Describe("Driver", func() {
	storagetest.DescribeDriver(func(context.Context) storage.Driver {
		return inmemory.NewDriver()
	})

	It("returns copies of stored feedback", func() {
		driver := inmemory.NewDriver()
		Expect(driver.SaveFeedback(context.Background(), &storage.Feedback{
			MessageID: "msg-1", UserID: "alice", Rating: "dislike",
		})).To(Succeed())

		fb := driver.Feedbacks()
		Expect(fb).To(HaveLen(1))
		Expect(fb[0].Rating).To(Equal("dislike"))

		fb[0].Rating = "like"
		Expect(driver.Feedbacks()[0].Rating).To(Equal("dislike"))
	})
})
