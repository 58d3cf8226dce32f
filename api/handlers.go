package api

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/papercomputeco/wenshu/pkg/storage"
)

// ErrorResponse is the body of every failed API request.
type ErrorResponse struct {
	Error string `json:"error"`
}

// SessionResponse is a session together with its recorded exchanges.
type SessionResponse struct {
	Session *storage.Session       `json:"session"`
	Queries []*storage.QueryRecord `json:"queries"`
}

// handlePing returns a simple health check response.
func (s *Server) handlePing(c *fiber.Ctx) error {
	return c.JSON("pong")
}

// handleHistory returns recorded exchanges, newest first.
func (s *Server) handleHistory(c *fiber.Ctx) error {
	records, err := s.driver.ListQueries(c.UserContext(), storage.HistoryQuery{
		UserID:         c.Query("user"),
		ConversationID: c.Query("conversation_id"),
		Limit:          c.QueryInt("limit", storage.DefaultLimit),
		Offset:         c.QueryInt("offset", 0),
	})
	if err != nil {
		s.logger.Error("failed to list history", "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{Error: "failed to list history"})
	}
	if records == nil {
		records = []*storage.QueryRecord{}
	}

	return c.JSON(map[string]any{
		"count":   len(records),
		"records": records,
	})
}

// handleListSessions returns sessions, most recently updated first.
func (s *Server) handleListSessions(c *fiber.Ctx) error {
	sessions, err := s.driver.ListSessions(c.UserContext(), storage.SessionQuery{
		UserID: c.Query("user"),
		Limit:  c.QueryInt("limit", storage.DefaultLimit),
		Offset: c.QueryInt("offset", 0),
	})
	if err != nil {
		s.logger.Error("failed to list sessions", "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{Error: "failed to list sessions"})
	}
	if sessions == nil {
		sessions = []*storage.Session{}
	}

	return c.JSON(map[string]any{
		"count":    len(sessions),
		"sessions": sessions,
	})
}

// handleGetSession returns one session, looked up by conversation id, with
// its exchanges.
func (s *Server) handleGetSession(c *fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: "id parameter required"})
	}

	session, err := s.driver.GetSession(c.UserContext(), id)
	if err != nil {
		var nf storage.NotFoundError
		if errors.As(err, &nf) {
			return c.Status(fiber.StatusNotFound).JSON(ErrorResponse{Error: "session not found"})
		}
		s.logger.Error("failed to get session", "conversation_id", id, "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{Error: "failed to get session"})
	}

	queries, err := s.driver.ListQueries(c.UserContext(), storage.HistoryQuery{
		ConversationID: id,
		Limit:          c.QueryInt("limit", storage.DefaultLimit),
	})
	if err != nil {
		s.logger.Error("failed to list session queries", "conversation_id", id, "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{Error: "failed to list session queries"})
	}
	if queries == nil {
		queries = []*storage.QueryRecord{}
	}

	return c.JSON(SessionResponse{Session: session, Queries: queries})
}

// handleUsageStats aggregates gateway usage, optionally for one user.
func (s *Server) handleUsageStats(c *fiber.Ctx) error {
	stats, err := s.driver.UsageStats(c.UserContext(), storage.UsageQuery{
		UserID: c.Query("user"),
	})
	if err != nil {
		s.logger.Error("failed to aggregate usage", "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{Error: "failed to aggregate usage"})
	}
	return c.JSON(stats)
}
