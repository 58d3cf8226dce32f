package proxy

import (
	"github.com/papercomputeco/wenshu/pkg/chat"
	"github.com/papercomputeco/wenshu/pkg/eventstream"
)

// Config is the gateway server configuration.
type Config struct {
	// ListenAddr is the address to listen on (e.g., ":8080")
	ListenAddr string

	// Upstream is the Dify application client, usually a *dify.Client.
	Upstream chat.Upstream

	// AppName names the Dify application in published events.
	AppName string

	// CORSOrigins is a comma separated list of allowed origins, "*" for any.
	CORSOrigins string

	// Publisher is an optional event stream for finished exchanges.
	// If nil, no events are published.
	Publisher eventstream.Publisher

	// Workers is the number of history workers (defaults to the pool default).
	Workers uint
}
