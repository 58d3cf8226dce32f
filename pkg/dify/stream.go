package dify

import (
	"context"
	"errors"
	"io"
	"net/http"
	"sync"

	"github.com/papercomputeco/wenshu/pkg/retry"
	"github.com/papercomputeco/wenshu/pkg/sse"
)

// Stream is one streaming chat exchange: a single HTTP response read through
// an sse.Ingestor. It implements retry.Iterator[*sse.Event].
type Stream struct {
	body     io.ReadCloser
	ingestor *sse.Ingestor

	closeOnce sync.Once
	closeErr  error
}

// Next returns the next decoded event, io.EOF at the end of the stream, or a
// ServiceError when the connection fails mid-stream. The body is released as
// soon as the stream ends.
func (s *Stream) Next() (*sse.Event, error) {
	ev, err := s.ingestor.Next()
	if err == nil {
		return ev, nil
	}

	_ = s.Close()
	if errors.Is(err, io.EOF) {
		return nil, io.EOF
	}
	return nil, networkError(err)
}

// Done reports whether the upstream sent the end-of-stream sentinel.
func (s *Stream) Done() bool {
	return s.ingestor.Done()
}

// Close releases the underlying connection. It is safe to call more than once.
func (s *Stream) Close() error {
	s.closeOnce.Do(func() {
		s.closeErr = s.body.Close()
	})
	return s.closeErr
}

// StreamOption configures a single streaming call.
type StreamOption func(*streamOptions)

type streamOptions struct {
	tee io.Writer
}

// WithRawTee mirrors the raw upstream bytes to w while they are decoded.
func WithRawTee(w io.Writer) StreamOption {
	return func(o *streamOptions) {
		o.tee = w
	}
}

// StreamMessage sends a streaming chat message with a single attempt. The HTTP
// status is classified before any event is read, so a 401, 429 or other
// non-2xx response is returned here as an error.
func (c *Client) StreamMessage(ctx context.Context, req MessageRequest, opts ...StreamOption) (*Stream, error) {
	o := &streamOptions{}
	for _, opt := range opts {
		opt(o)
	}

	resp, err := c.do(ctx, http.MethodPost, "/chat-messages", nil, c.chatPayload(req, ResponseModeStreaming))
	if err != nil {
		return nil, err
	}

	ingestOpts := []sse.IngestorOption{sse.WithLogger(c.logger)}
	if o.tee != nil {
		ingestOpts = append(ingestOpts, sse.WithTee(o.tee))
	}

	return &Stream{
		body:     resp.Body,
		ingestor: sse.NewIngestor(resp.Body, ingestOpts...),
	}, nil
}

// StreamMessageWithRetry sends a streaming chat message under
// StreamRetryPolicy. A failed attempt re-sends the whole request, so events
// already returned by a failed attempt may be returned again.
func (c *Client) StreamMessageWithRetry(ctx context.Context, req MessageRequest, opts ...StreamOption) *retry.Stream[*sse.Event] {
	open := func(ctx context.Context) (retry.Iterator[*sse.Event], error) {
		s, err := c.StreamMessage(ctx, req, opts...)
		if err != nil {
			return nil, err
		}
		return s, nil
	}
	return retry.NewStream[*sse.Event](ctx, c.StreamRetryPolicy(), open)
}

// StreamRetryPolicy never retries authentication failures, waits
// delay * 2^attempt after a rate limit and a constant delay after anything else.
func (c *Client) StreamRetryPolicy() retry.Policy {
	r := c.Retry()
	return retry.Policy{
		MaxAttempts: r.MaxAttempts,
		BaseDelay:   r.Delay,
		Delay:       retry.ExponentialOn(IsRateLimit, r.Delay),
		Retryable:   notAuthentication,
		Sleep:       c.sleep,
		Logger:      c.logger,
	}
}
