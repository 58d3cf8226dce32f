package proxy

import (
	"time"

	"github.com/bytedance/sonic"
	"github.com/gofiber/fiber/v2"

	"github.com/papercomputeco/wenshu/pkg/chat"
	"github.com/papercomputeco/wenshu/pkg/dify"
	"github.com/papercomputeco/wenshu/pkg/storage"
	"github.com/papercomputeco/wenshu/pkg/utils"
)

// userKey is the fiber Locals key of the resolved end user.
const userKey = "wenshu_user"

// queryRequest is the body of POST /chat/query and POST /chat/analyze.
type queryRequest struct {
	Query          string         `json:"query"`
	User           string         `json:"user"`
	ConversationID string         `json:"conversation_id"`
	Inputs         map[string]any `json:"inputs"`
	Files          []dify.File    `json:"files"`
	Stream         bool           `json:"stream"`
}

// feedbackRequest is the body of POST /chat/feedback.
type feedbackRequest struct {
	MessageID string `json:"message_id"`
	Rating    string `json:"rating"`
	User      string `json:"user"`
	Content   string `json:"content"`
}

// statusResponse is returned by GET / and GET /health.
type statusResponse struct {
	Name      string    `json:"name,omitempty"`
	Version   string    `json:"version,omitempty"`
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

// historyResponse is returned by GET /chat/history.
type historyResponse struct {
	Success bool                   `json:"success"`
	UserID  string                 `json:"user_id"`
	Records []*storage.QueryRecord `json:"records"`
}

// suggestedResponse is returned by GET /chat/suggested/:message_id.
type suggestedResponse struct {
	Success   bool     `json:"success"`
	MessageID string   `json:"message_id"`
	Questions []string `json:"questions"`
}

func (p *Proxy) handleRoot(c *fiber.Ctx) error {
	return c.JSON(statusResponse{
		Name:      "wenshu",
		Version:   utils.Version,
		Status:    "running",
		Timestamp: time.Now().UTC(),
	})
}

func (p *Proxy) handleHealth(c *fiber.Ctx) error {
	return c.JSON(statusResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC(),
	})
}

// handleQuery answers a question of the given type, as one JSON document or,
// when the body asks for it, as a re-streamed SSE feed.
func (p *Proxy) handleQuery(queryType string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var body queryRequest
		if err := decodeBody(c, &body); err != nil {
			return err
		}

		req := chat.Request{
			Query:          body.Query,
			UserID:         p.user(c, body.User),
			ConversationID: body.ConversationID,
			Inputs:         body.Inputs,
			Files:          body.Files,
			QueryType:      queryType,
			Path:           c.Path(),
		}

		if body.Stream {
			return p.streamQuery(c, req)
		}

		resp, err := p.service.Query(c.UserContext(), req)
		if err != nil {
			return err
		}
		return c.JSON(resp)
	}
}

func (p *Proxy) handleFeedback(c *fiber.Ctx) error {
	var body feedbackRequest
	if err := decodeBody(c, &body); err != nil {
		return err
	}

	res, err := p.service.Feedback(c.UserContext(), body.MessageID, body.Rating, p.user(c, body.User), body.Content)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{
		"success":    true,
		"message_id": body.MessageID,
		"result":     res.Result,
	})
}

func (p *Proxy) handleMessages(c *fiber.Ctx) error {
	resp, err := p.service.Messages(c.UserContext(),
		p.user(c, c.Query("user")),
		c.Query("conversation_id"),
		c.QueryInt("limit", 20),
	)
	if err != nil {
		return err
	}
	return c.JSON(resp)
}

func (p *Proxy) handleSuggested(c *fiber.Ctx) error {
	messageID := c.Params("message_id")

	questions, err := p.service.Suggested(c.UserContext(), messageID, p.user(c, c.Query("user")))
	if err != nil {
		return err
	}
	return c.JSON(suggestedResponse{
		Success:   true,
		MessageID: messageID,
		Questions: questions,
	})
}

func (p *Proxy) handleHistory(c *fiber.Ctx) error {
	userID := p.user(c, c.Query("user"))

	records, err := p.service.History(c.UserContext(), storage.HistoryQuery{
		UserID:         userID,
		ConversationID: c.Query("conversation_id"),
		Limit:          c.QueryInt("limit", storage.DefaultLimit),
		Offset:         c.QueryInt("offset", 0),
	})
	if err != nil {
		return err
	}
	if records == nil {
		records = []*storage.QueryRecord{}
	}
	return c.JSON(historyResponse{
		Success: true,
		UserID:  userID,
		Records: records,
	})
}

// user resolves the end user of the request and remembers it for usage
// recording.
func (p *Proxy) user(c *fiber.Ctx, fromBody string) string {
	u := p.headerHandler.User(c, fromBody)
	c.Locals(userKey, u)
	return u
}

func (p *Proxy) userOf(c *fiber.Ctx) string {
	if u, ok := c.Locals(userKey).(string); ok && u != "" {
		return u
	}
	return p.headerHandler.User(c, c.Query("user"))
}

func decodeBody(c *fiber.Ctx, v any) error {
	if err := sonic.ConfigStd.Unmarshal(c.Body(), v); err != nil {
		return &dify.ValidationError{Message: "request body must be a JSON object"}
	}
	return nil
}
