// Package mcp provides an MCP (Model Context Protocol) server that lets
// agents ask the configured Dify application and read wenshu chat history.
package mcp

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/bytedance/sonic"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/papercomputeco/wenshu/pkg/chat"
	"github.com/papercomputeco/wenshu/pkg/storage"
	"github.com/papercomputeco/wenshu/pkg/utils"
)

type Config struct {
	// Driver reads recorded history for the history tool.
	Driver storage.Driver

	// Asker answers questions for the ask tool. Optional; the tool is only
	// registered when set.
	Asker chat.Asker

	// Logger is the configured slog logger
	Logger *slog.Logger
}

type Server struct {
	config    Config
	mcpServer *mcp.Server
	handler   *mcp.StreamableHTTPHandler
}

// NewServer creates a new MCP server with the history tool and, when an
// Asker is configured, the ask tool.
func NewServer(c Config) (*Server, error) {
	if c.Driver == nil {
		return nil, errors.New("storage driver is required")
	}
	if c.Logger == nil {
		return nil, errors.New("logger is required")
	}

	s := &Server{
		config: c,
	}

	mcpServer := mcp.NewServer(
		&mcp.Implementation{
			Name:    "wenshu",
			Version: utils.Version,
		},
		&mcp.ServerOptions{},
	)

	mcp.AddTool(mcpServer, &mcp.Tool{
		Name:        historyToolName,
		Description: historyDescription,
	}, s.handleHistory)

	if c.Asker != nil {
		mcp.AddTool(mcpServer, &mcp.Tool{
			Name:        askToolName,
			Description: askDescription,
		}, s.handleAsk)
	}

	s.mcpServer = mcpServer

	// Create a streamable HTTP net/http handler for stateless operations
	s.handler = mcp.NewStreamableHTTPHandler(
		func(_ *http.Request) *mcp.Server {
			return mcpServer
		},
		&mcp.StreamableHTTPOptions{
			Stateless: true,
		},
	)

	return s, nil
}

// Handler returns the HTTP handler for the MCP server.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// textResult serialises structured output into a TextContent block as well,
// for clients that only read text.
func textResult(v any) (*mcp.CallToolResult, error) {
	b, err := sonic.ConfigStd.Marshal(v)
	if err != nil {
		return nil, err
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: string(b)},
		},
	}, nil
}

func errorResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		IsError: true,
		Content: []mcp.Content{
			&mcp.TextContent{Text: text},
		},
	}
}
