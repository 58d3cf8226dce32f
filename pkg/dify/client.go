// Package dify is a client for the Dify chat application API. It classifies
// upstream failures into AuthenticationError, RateLimitError and ServiceError,
// streams chat answers as decoded SSE events and retries calls under explicit
// policies.
package dify

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/bytedance/sonic"

	"github.com/papercomputeco/wenshu/pkg/logger"
	"github.com/papercomputeco/wenshu/pkg/retry"
)

// Client talks to one Dify application. It is safe for concurrent use; every
// call shares one pooled http.Client.
type Client struct {
	config     Config
	httpClient *http.Client
	logger     *slog.Logger
	sleep      retry.SleepFunc

	mu    sync.RWMutex
	retry RetryConfig
}

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the client logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithHTTPClient replaces the pooled http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithSleep replaces how the client waits between retry attempts.
func WithSleep(s retry.SleepFunc) Option {
	return func(c *Client) {
		c.sleep = s
	}
}

// New validates cfg and returns a Client.
func New(cfg Config, opts ...Option) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg = cfg.withDefaults()

	c := &Client{
		config:     cfg,
		httpClient: newHTTPClient(cfg),
		logger:     logger.Nop(),
		sleep:      retry.SleepContext,
		retry:      cfg.Retry,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func newHTTPClient(cfg Config) *http.Client {
	return &http.Client{
		// One deadline for the whole exchange, streaming body included.
		Timeout: cfg.Timeout,
		Transport: &http.Transport{
			Proxy: http.ProxyFromEnvironment,
			DialContext: (&net.Dialer{
				Timeout:   10 * time.Second,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			TLSHandshakeTimeout: 10 * time.Second,
			MaxIdleConns:        cfg.MaxConns,
			MaxConnsPerHost:     cfg.MaxConnsPerHost,
			MaxIdleConnsPerHost: cfg.MaxConnsPerHost,
			IdleConnTimeout:     90 * time.Second,
		},
	}
}

// SetRetry swaps the retry budget used by later calls.
func (c *Client) SetRetry(r RetryConfig) {
	r = r.withDefaults()

	c.mu.Lock()
	c.retry = r
	c.mu.Unlock()

	c.logger.Info("dify retry policy updated",
		"max_attempts", r.MaxAttempts,
		"delay", r.Delay,
	)
}

// Retry returns the current retry budget.
func (c *Client) Retry() RetryConfig {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.retry
}

// Config returns the effective client configuration.
func (c *Client) Config() Config {
	cfg := c.config
	cfg.Retry = c.Retry()
	return cfg
}

// Close releases idle pooled connections.
func (c *Client) Close() {
	c.httpClient.CloseIdleConnections()
}

// SendMessage sends a blocking chat message and returns the whole answer.
// Every failure except AuthenticationError is retried with a constant delay.
func (c *Client) SendMessage(ctx context.Context, req MessageRequest) (*ChatResponse, error) {
	payload := c.chatPayload(req, ResponseModeBlocking)

	var out ChatResponse
	err := retry.Do(ctx, c.unaryPolicy(c.Retry()), func(ctx context.Context) error {
		return c.doJSON(ctx, http.MethodPost, "/chat-messages", nil, payload, &out)
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// SubmitFeedback rates a message. An empty rating clears a previous one.
func (c *Client) SubmitFeedback(ctx context.Context, messageID, rating, user, content string) (*FeedbackResult, error) {
	payload := feedbackPayload{
		User:    c.user(user),
		Content: content,
	}
	if rating != "" {
		payload.Rating = &rating
	}

	var out FeedbackResult
	endpoint := "/messages/" + url.PathEscape(messageID) + "/feedbacks"
	err := retry.Do(ctx, c.unaryPolicy(c.Retry().companion()), func(ctx context.Context) error {
		return c.doJSON(ctx, http.MethodPost, endpoint, nil, payload, &out)
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// GetMessages lists the upstream message history of a user, optionally
// restricted to one conversation.
func (c *Client) GetMessages(ctx context.Context, user, conversationID string, limit int) (*MessagesResponse, error) {
	if limit <= 0 {
		limit = 20
	}
	params := url.Values{}
	params.Set("user", c.user(user))
	params.Set("limit", fmt.Sprint(limit))
	if conversationID != "" {
		params.Set("conversation_id", conversationID)
	}

	var out MessagesResponse
	err := retry.Do(ctx, c.unaryPolicy(c.Retry().companion()), func(ctx context.Context) error {
		return c.doJSON(ctx, http.MethodGet, "/messages", params, nil, &out)
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// GetSuggestedQuestions returns the follow-up questions suggested for a message.
func (c *Client) GetSuggestedQuestions(ctx context.Context, messageID, user string) ([]string, error) {
	params := url.Values{}
	params.Set("user", c.user(user))

	var out suggestedResponse
	endpoint := "/messages/" + url.PathEscape(messageID) + "/suggested"
	err := retry.Do(ctx, c.unaryPolicy(c.Retry().companion()), func(ctx context.Context) error {
		return c.doJSON(ctx, http.MethodGet, endpoint, params, nil, &out)
	})
	if err != nil {
		return nil, err
	}
	if out.Data == nil {
		return []string{}, nil
	}
	return out.Data, nil
}

func (c *Client) user(u string) string {
	if u == "" {
		return c.config.User
	}
	return u
}

func (c *Client) chatPayload(req MessageRequest, mode string) chatPayload {
	inputs := req.Inputs
	if inputs == nil {
		inputs = map[string]any{}
	}
	return chatPayload{
		Inputs:         inputs,
		Query:          req.Query,
		ResponseMode:   mode,
		User:           c.user(req.User),
		ConversationID: req.ConversationID,
		Files:          req.Files,
	}
}

// unaryPolicy retries everything but authentication failures with a constant delay.
func (c *Client) unaryPolicy(r RetryConfig) retry.Policy {
	return retry.Policy{
		MaxAttempts: r.MaxAttempts,
		BaseDelay:   r.Delay,
		Retryable:   notAuthentication,
		Sleep:       c.sleep,
		Logger:      c.logger,
	}
}

func notAuthentication(err error) bool {
	return !IsAuthentication(err)
}

// doJSON performs one request and decodes a 2xx JSON body into out.
func (c *Client) doJSON(ctx context.Context, method, endpoint string, params url.Values, body, out any) error {
	resp, err := c.do(ctx, method, endpoint, params, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return networkError(err)
	}
	if out == nil || len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	if err := sonic.ConfigStd.Unmarshal(raw, out); err != nil {
		return &ServiceError{
			Status:  resp.StatusCode,
			Message: fmt.Sprintf("could not decode response: %v", err),
			Err:     err,
		}
	}
	return nil
}

// do performs one request and classifies the status. On success the caller
// owns the response body.
func (c *Client) do(ctx context.Context, method, endpoint string, params url.Values, body any) (*http.Response, error) {
	u := c.config.BaseURL + endpoint
	if len(params) > 0 {
		u += "?" + params.Encode()
	}

	var reader io.Reader
	if body != nil {
		b, err := sonic.ConfigStd.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("could not encode request body: %w", err)
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return nil, fmt.Errorf("could not create request for %s %s: %w", method, endpoint, err)
	}
	req.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	c.logger.Debug("dify api call",
		"method", method,
		"endpoint", endpoint,
	)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("network error calling dify", "endpoint", endpoint, "error", err)
		return nil, networkError(err)
	}

	if err := checkResponse(resp); err != nil {
		resp.Body.Close()
		return nil, err
	}
	return resp, nil
}

// checkResponse maps a non-2xx response to the error taxonomy. It reads, but
// does not close, the body of a failed response.
func checkResponse(resp *http.Response) error {
	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusUnauthorized:
		return &AuthenticationError{Message: "invalid API key or authentication failed"}
	case resp.StatusCode == http.StatusTooManyRequests:
		return &RateLimitError{Message: "API rate limit exceeded"}
	}

	msg := fmt.Sprintf("HTTP %d", resp.StatusCode)
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	if err == nil && len(raw) > 0 {
		var eb errorBody
		if sonic.ConfigStd.Unmarshal(raw, &eb) == nil && eb.Message != "" {
			msg = eb.Message
		}
	}
	return &ServiceError{Status: resp.StatusCode, Message: msg}
}
