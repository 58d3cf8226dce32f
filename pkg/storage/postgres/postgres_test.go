package postgres_test

import (
	"context"
	"os"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/wenshu/pkg/storage"
	"github.com/papercomputeco/wenshu/pkg/storage/postgres"
	"github.com/papercomputeco/wenshu/pkg/storage/storagetest"
)

// connStr returns the PostgreSQL connection string from environment or skips the test.
func connStr() string {
	dsn := os.Getenv("WENSHU_TEST_POSTGRES_DSN")
	if dsn == "" {
		Skip("WENSHU_TEST_POSTGRES_DSN not set, skipping PostgreSQL tests")
	}
	return dsn
}

var _ = Describe("Driver", func() {
	Context("against a live database", func() {
		storagetest.DescribeDriver(func(ctx context.Context) storage.Driver {
			driver, err := postgres.NewDriver(ctx, connStr())
			Expect(err).NotTo(HaveOccurred())

			// Clean all tables before each test for isolation.
			err = driver.DB.Exec(ctx, "TRUNCATE chat_sessions, query_history, feedbacks, api_usage", []any{}, nil)
			Expect(err).NotTo(HaveOccurred())
			return driver
		})
	})

	It("rejects an unparsable connection string", func() {
		_, err := postgres.NewDriver(context.Background(), "postgres://%zz")
		Expect(err).To(HaveOccurred())
	})
})
