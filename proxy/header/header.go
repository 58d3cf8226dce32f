// Package header handles the request and response headers of the wenshu
// gateway.
//
// The gateway sits between a client and the Dify application API like so:
//
//	Client <--> Gateway <--> Dify
//
// The upstream leg is owned by the dify client and carries only the
// application key, so nothing from the client request is forwarded upstream.
// This package resolves who is asking and shapes the client facing response.
package header

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

const (
	// UserHeader names the end user when the request body does not.
	UserHeader = "X-Wenshu-User"

	// RequestIDHeader correlates a request across logs. A missing id is
	// generated and echoed back to the client.
	RequestIDHeader = "X-Request-Id"
)

// requestIDKey is the fiber Locals key of the resolved request id.
const requestIDKey = "wenshu_request_id"

// Handler manages headers between gateway connections.
type Handler struct{}

// NewHandler creates a new header Handler.
func NewHandler() *Handler {
	return &Handler{}
}

// User returns fromBody when set, the UserHeader value otherwise. Both are
// trimmed; an empty result means the caller did not identify a user.
func (h *Handler) User(c *fiber.Ctx, fromBody string) string {
	if u := strings.TrimSpace(fromBody); u != "" {
		return u
	}
	return strings.TrimSpace(c.Get(UserHeader))
}

// RequestID returns the id of the request, taking it from RequestIDHeader or
// generating one, and sets it on the response.
func (h *Handler) RequestID(c *fiber.Ctx) string {
	if id, ok := c.Locals(requestIDKey).(string); ok && id != "" {
		return id
	}

	id := strings.TrimSpace(c.Get(RequestIDHeader))
	if id == "" {
		id = uuid.NewString()
	}
	c.Locals(requestIDKey, id)
	c.Set(RequestIDHeader, id)
	return id
}

// SetStreamHeaders prepares the response for a server-sent event stream.
func (h *Handler) SetStreamHeaders(c *fiber.Ctx) {
	c.Set(fiber.HeaderContentType, "text/event-stream; charset=utf-8")
	c.Set(fiber.HeaderCacheControl, "no-cache")
	c.Set(fiber.HeaderConnection, "keep-alive")

	// Reverse proxies such as nginx buffer responses unless told otherwise.
	c.Set("X-Accel-Buffering", "no")
}
