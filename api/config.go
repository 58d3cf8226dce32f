// Package api provides an HTTP API server for reading the recorded chat
// history: sessions, question and answer records, gateway usage, and an MCP
// endpoint exposing the same to agents.
package api

import "github.com/papercomputeco/wenshu/pkg/chat"

// Config is the API server configuration.
type Config struct {
	// ListenAddr is the address to listen on (e.g., ":8081")
	ListenAddr string

	// Asker answers questions for the MCP "ask" tool. Optional; without it
	// the tool is not offered.
	Asker chat.Asker
}
