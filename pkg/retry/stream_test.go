package retry_test

import (
	"context"
	"errors"
	"io"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/wenshu/pkg/retry"
)

var _ = Describe("Stream", func() {
	var (
		ctx    context.Context
		sleep  *sleepRecorder
		policy retry.Policy
	)

	BeforeEach(func() {
		ctx = context.Background()
		sleep = &sleepRecorder{}
		policy = retry.Policy{
			MaxAttempts: 2,
			Delay:       retry.ExponentialOn(isRateLimit, time.Second),
			Retryable:   notAuth,
			Sleep:       sleep.sleep,
		}
	})

	It("starts idle and ends in success", func() {
		s := retry.NewStream[string](ctx, policy, func(context.Context) (retry.Iterator[string], error) {
			return &sliceIter{items: []string{"a", "b"}}, nil
		})
		Expect(s.State()).To(Equal(retry.StateIdle))

		out, err := drain(s)
		Expect(err).NotTo(HaveOccurred())
		Expect(out).To(Equal([]string{"a", "b"}))
		Expect(s.State()).To(Equal(retry.StateSuccess))
		Expect(s.Attempts()).To(Equal(1))
		Expect(sleep.waits).To(BeEmpty())

		_, err = s.Next()
		Expect(err).To(MatchError(io.EOF))
	})

	It("yields only the second attempt's items after a rate limit", func() {
		attempts := 0
		s := retry.NewStream[string](ctx, policy, func(context.Context) (retry.Iterator[string], error) {
			attempts++
			if attempts == 1 {
				return nil, rateLimitErr{}
			}
			return &sliceIter{items: []string{"x", "y"}}, nil
		})

		out, err := drain(s)
		Expect(err).NotTo(HaveOccurred())
		Expect(out).To(Equal([]string{"x", "y"}))
		Expect(attempts).To(Equal(2))
		Expect(sleep.waits).To(Equal([]time.Duration{time.Second}))
		Expect(sleep.total()).To(Equal(time.Second))
	})

	It("fails immediately on authentication errors regardless of attempts", func() {
		policy.MaxAttempts = 10
		attempts := 0
		s := retry.NewStream[string](ctx, policy, func(context.Context) (retry.Iterator[string], error) {
			attempts++
			return nil, authErr{}
		})

		_, err := s.Next()
		Expect(err).To(MatchError(authErr{}))
		Expect(attempts).To(Equal(1))
		Expect(sleep.waits).To(BeEmpty())
		Expect(s.State()).To(Equal(retry.StateFailed))
	})

	It("backs off exponentially on rate limits and constantly otherwise", func() {
		policy.MaxAttempts = 4
		errs := []error{rateLimitErr{}, errors.New("502"), rateLimitErr{}, rateLimitErr{}}
		attempts := 0
		s := retry.NewStream[string](ctx, policy, func(context.Context) (retry.Iterator[string], error) {
			err := errs[attempts]
			attempts++
			return nil, err
		})

		_, err := s.Next()
		Expect(err).To(MatchError(rateLimitErr{}))
		Expect(attempts).To(Equal(4))
		Expect(sleep.waits).To(Equal([]time.Duration{time.Second, time.Second, 4 * time.Second}))
		Expect(s.State()).To(Equal(retry.StateExhausted))
	})

	It("restarts from scratch after a mid-stream failure", func() {
		policy.MaxAttempts = 3
		attempts := 0
		var first *sliceIter
		s := retry.NewStream[string](ctx, policy, func(context.Context) (retry.Iterator[string], error) {
			attempts++
			if attempts == 1 {
				first = &sliceIter{items: []string{"m1"}, failAt: io.ErrUnexpectedEOF}
				return first, nil
			}
			return &sliceIter{items: []string{"m1", "m2"}}, nil
		})

		out, err := drain(s)
		Expect(err).NotTo(HaveOccurred())
		Expect(out).To(Equal([]string{"m1", "m1", "m2"}))
		Expect(first.closed).To(BeTrue())
		Expect(sleep.waits).To(Equal([]time.Duration{time.Second}))
	})

	It("surfaces the last error once attempts are exhausted", func() {
		attempts := 0
		s := retry.NewStream[string](ctx, policy, func(context.Context) (retry.Iterator[string], error) {
			attempts++
			return &sliceIter{failAt: errors.New("upstream 500")}, nil
		})

		_, err := s.Next()
		Expect(err).To(MatchError("upstream 500"))
		Expect(attempts).To(Equal(2))
		Expect(s.State()).To(Equal(retry.StateExhausted))

		_, err = s.Next()
		Expect(err).To(MatchError("upstream 500"))
	})

	It("reports exhaustion when no attempt is allowed", func() {
		policy.MaxAttempts = 0
		s := retry.NewStream[string](ctx, policy, func(context.Context) (retry.Iterator[string], error) {
			Fail("must not be called")
			return nil, nil
		})

		_, err := s.Next()
		Expect(err).To(MatchError(retry.ErrAttemptsExhausted))
	})

	It("closes the current attempt on Close", func() {
		it := &sliceIter{items: []string{"a", "b"}}
		s := retry.NewStream[string](ctx, policy, func(context.Context) (retry.Iterator[string], error) {
			return it, nil
		})

		v, err := s.Next()
		Expect(err).NotTo(HaveOccurred())
		Expect(v).To(Equal("a"))

		Expect(s.Close()).To(Succeed())
		Expect(it.closed).To(BeTrue())

		_, err = s.Next()
		Expect(err).To(MatchError(retry.ErrClosed))
	})

	It("names its states", func() {
		Expect(retry.StateRetrying.String()).To(Equal("retrying"))
		Expect(retry.StateExhausted.String()).To(Equal("exhausted"))
	})
})
