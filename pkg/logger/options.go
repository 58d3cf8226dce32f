package logger

import (
	"io"
	"log/slog"
)

// Option configures a logger created with New.
type Option func(*config)

// WithDebug lowers the level to Debug.
func WithDebug(debug bool) Option {
	return func(c *config) {
		c.level = slog.LevelInfo
		if debug {
			c.level = slog.LevelDebug
		}
	}
}

// WithPretty selects the charmbracelet/log handler.
func WithPretty(pretty bool) Option {
	return func(c *config) { c.pretty = pretty }
}

// WithJSON selects slog's JSON handler. It wins over WithPretty.
func WithJSON(json bool) Option {
	return func(c *config) { c.json = json }
}

// WithWriter sends output to w instead of os.Stdout.
func WithWriter(w io.Writer) Option {
	return func(c *config) { c.writers = []io.Writer{w} }
}

// WithWriters sends output to every writer in ws.
func WithWriters(ws ...io.Writer) Option {
	return func(c *config) { c.writers = ws }
}

// WithSource adds the calling file and line to each record.
func WithSource(source bool) Option {
	return func(c *config) { c.source = source }
}
