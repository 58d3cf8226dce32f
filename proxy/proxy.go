// Package proxy provides the wenshu chat gateway: an HTTP front for one Dify
// application that answers questions as JSON or as a re-streamed SSE feed and
// records every exchange as local chat history.
package proxy

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/compress"
	"github.com/gofiber/fiber/v2/middleware/cors"

	"github.com/papercomputeco/wenshu/pkg/chat"
	"github.com/papercomputeco/wenshu/pkg/history"
	"github.com/papercomputeco/wenshu/pkg/storage"
	"github.com/papercomputeco/wenshu/proxy/header"
	"github.com/papercomputeco/wenshu/proxy/worker"
)

// Proxy is the chat gateway. Answers go back to the client immediately while
// history, usage and chat events are handed to its worker pool.
type Proxy struct {
	config        Config
	driver        storage.Driver
	workerPool    *worker.Pool
	service       *chat.Service
	logger        *slog.Logger
	server        *fiber.App
	headerHandler *header.Handler
}

// New creates a new Proxy. The driver backs the history endpoints and the
// asynchronous persistence of exchanges.
func New(config Config, driver storage.Driver, logger *slog.Logger) (*Proxy, error) {
	if config.Upstream == nil {
		return nil, errors.New("upstream dify client is required")
	}
	if config.CORSOrigins == "" {
		config.CORSOrigins = "*"
	}

	app := fiber.New(fiber.Config{
		// Disable startup message for cleaner logs
		DisableStartupMessage: true,
		ErrorHandler:          errorHandler,
	})

	// Event streams are written chunk by chunk and must not sit in a
	// compression buffer. Streamed answers also drop Accept-Encoding in
	// streamQuery, whatever the Accept header says.
	app.Use(compress.New(compress.Config{
		Next: func(c *fiber.Ctx) bool {
			return strings.Contains(c.Get(fiber.HeaderAccept), "text/event-stream")
		},
	}))
	app.Use(cors.New(cors.Config{
		AllowOrigins:  config.CORSOrigins,
		AllowHeaders:  strings.Join([]string{fiber.HeaderOrigin, fiber.HeaderContentType, fiber.HeaderAccept, header.UserHeader, header.RequestIDHeader}, ", "),
		ExposeHeaders: header.RequestIDHeader,
	}))

	wp, err := worker.NewPool(&worker.Config{
		Driver:     driver,
		Publisher:  config.Publisher,
		NumWorkers: config.Workers,
		Logger:     logger,
	})
	if err != nil {
		return nil, fmt.Errorf("could not create worker pool: %w", err)
	}

	p := &Proxy{
		config:        config,
		driver:        driver,
		workerPool:    wp,
		logger:        logger,
		server:        app,
		headerHandler: header.NewHandler(),
		service: chat.NewService(config.Upstream,
			chat.WithRecorder(wp),
			chat.WithHistory(driver),
			chat.WithLogger(logger),
			chat.WithAppName(config.AppName),
		),
	}

	app.Use(p.usageMiddleware)

	app.Get("/", p.handleRoot)
	app.Get("/health", p.handleHealth)

	chatGroup := app.Group("/chat")
	chatGroup.Post("/query", p.handleQuery(storage.QueryTypeQuery))
	chatGroup.Post("/analyze", p.handleQuery(storage.QueryTypeAnalysis))
	chatGroup.Post("/feedback", p.handleFeedback)
	chatGroup.Get("/messages", p.handleMessages)
	chatGroup.Get("/suggested/:message_id", p.handleSuggested)
	chatGroup.Get("/history", p.handleHistory)

	return p, nil
}

// Run starts the gateway on the configured listening address
func (p *Proxy) Run() error {
	p.logger.Info("starting chat gateway",
		"listen", p.config.ListenAddr,
		"app", p.config.AppName,
	)

	return p.server.Listen(p.config.ListenAddr)
}

// RunWithListener starts the gateway using the provided listener.
func (p *Proxy) RunWithListener(listener net.Listener) error {
	p.logger.Info("starting chat gateway",
		"listen", listener.Addr().String(),
		"app", p.config.AppName,
	)

	return p.server.Listener(listener)
}

// Service returns the chat service behind the gateway routes.
func (p *Proxy) Service() *chat.Service {
	return p.service
}

// Close gracefully shuts down the gateway and waits for the worker pool to drain
func (p *Proxy) Close() error {
	err := p.server.Shutdown()
	p.workerPool.Close()
	return err
}

// usageMiddleware records one APIUsage row per chat request once the
// handler has produced its status.
func (p *Proxy) usageMiddleware(c *fiber.Ctx) error {
	if !strings.HasPrefix(c.Path(), "/chat/") {
		return c.Next()
	}

	start := time.Now()
	requestID := p.headerHandler.RequestID(c)

	err := c.Next()

	status := c.Response().StatusCode()
	if err != nil {
		status = statusOf(err)
	}

	p.workerPool.Enqueue(&history.UsageJob{Usage: &storage.APIUsage{
		UserID:       p.userOf(c),
		Endpoint:     c.Route().Path,
		Method:       c.Method(),
		StatusCode:   status,
		ProcessingMS: time.Since(start).Milliseconds(),
		Metadata: map[string]any{
			"request_id": requestID,
		},
	}})

	return err
}
