package mcp

import (
	"context"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/papercomputeco/wenshu/pkg/chat"
	"github.com/papercomputeco/wenshu/pkg/storage"
)

var (
	historyToolName    = "history"
	historyDescription = "List recorded questions and answers of a wenshu user, newest first, optionally restricted to one conversation."

	askToolName    = "ask"
	askDescription = "Ask the configured Dify application a question and return its answer. Pass conversation_id to continue a conversation."
)

// HistoryInput represents the input arguments for the history tool.
type HistoryInput struct {
	User           string `json:"user" jsonschema:"the user whose history to list"`
	ConversationID string `json:"conversation_id,omitempty" jsonschema:"restrict to one conversation"`
	Limit          int    `json:"limit,omitempty" jsonschema:"maximum number of records (default: 10)"`
}

// Exchange is one recorded question and its answer.
type Exchange struct {
	ConversationID string `json:"conversation_id"`
	MessageID      string `json:"message_id,omitempty"`
	Query          string `json:"query"`
	Answer         string `json:"answer"`
	CreatedAt      string `json:"created_at"`
}

// HistoryOutput represents the output of the history tool.
type HistoryOutput struct {
	User      string     `json:"user"`
	Exchanges []Exchange `json:"exchanges"`
	Count     int        `json:"count"`
}

// AskInput represents the input arguments for the ask tool.
type AskInput struct {
	Query          string `json:"query" jsonschema:"the question to ask"`
	User           string `json:"user" jsonschema:"the user asking"`
	ConversationID string `json:"conversation_id,omitempty" jsonschema:"conversation to continue"`
}

// AskOutput represents the output of the ask tool.
type AskOutput struct {
	Answer         string `json:"answer"`
	ConversationID string `json:"conversation_id"`
	MessageID      string `json:"message_id"`
}

func (s *Server) handleHistory(ctx context.Context, _ *mcp.CallToolRequest, input HistoryInput) (*mcp.CallToolResult, HistoryOutput, error) {
	logger := s.config.Logger

	if err := chat.ValidateUserID(input.User); err != nil {
		return errorResult(err.Error()), HistoryOutput{}, nil
	}

	limit := input.Limit
	if limit <= 0 {
		limit = 10
	}

	logger.Debug("MCP history request",
		"user", input.User,
		"conversation_id", input.ConversationID,
		"limit", limit,
	)

	records, err := s.config.Driver.ListQueries(ctx, storage.HistoryQuery{
		UserID:         input.User,
		ConversationID: input.ConversationID,
		Limit:          limit,
	})
	if err != nil {
		logger.Error("failed to list history", "error", err)
		return errorResult(fmt.Sprintf("Failed to list history: %v", err)), HistoryOutput{}, nil
	}

	output := HistoryOutput{
		User:      input.User,
		Exchanges: make([]Exchange, 0, len(records)),
	}
	for _, r := range records {
		output.Exchanges = append(output.Exchanges, Exchange{
			ConversationID: r.ConversationID,
			MessageID:      r.MessageID,
			Query:          r.Query,
			Answer:         r.Answer,
			CreatedAt:      r.CreatedAt.UTC().Format("2006-01-02T15:04:05Z"),
		})
	}
	output.Count = len(output.Exchanges)

	result, err := textResult(output)
	if err != nil {
		logger.Error("failed to marshal history output", "error", err)
		return errorResult(fmt.Sprintf("Failed to serialize results: %v", err)), HistoryOutput{}, nil
	}
	return result, output, nil
}

func (s *Server) handleAsk(ctx context.Context, _ *mcp.CallToolRequest, input AskInput) (*mcp.CallToolResult, AskOutput, error) {
	logger := s.config.Logger

	logger.Debug("MCP ask request",
		"user", input.User,
		"conversation_id", input.ConversationID,
	)

	resp, err := s.config.Asker.Query(ctx, chat.Request{
		Query:          input.Query,
		UserID:         input.User,
		ConversationID: input.ConversationID,
		Path:           "mcp:" + askToolName,
	})
	if err != nil {
		logger.Error("MCP ask failed", "error", err)
		return errorResult(fmt.Sprintf("Failed to ask: %v", err)), AskOutput{}, nil
	}

	output := AskOutput{
		Answer:         resp.Answer,
		ConversationID: resp.ConversationID,
		MessageID:      resp.MessageID,
	}

	result, err := textResult(output)
	if err != nil {
		return errorResult(fmt.Sprintf("Failed to serialize answer: %v", err)), AskOutput{}, nil
	}
	return result, output, nil
}
