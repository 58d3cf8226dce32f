package proxy

import (
	"context"
	"errors"
	"io"

	"github.com/gofiber/fiber/v2"

	"github.com/papercomputeco/wenshu/pkg/chat"
	"github.com/papercomputeco/wenshu/pkg/dify"
	"github.com/papercomputeco/wenshu/pkg/sse"
)

// streamQuery answers with a re-streamed SSE feed. The first upstream event
// is pulled before any byte is sent, so a request that fails on every attempt
// still gets a JSON error with a proper status.
func (p *Proxy) streamQuery(c *fiber.Ctx, req chat.Request) error {
	// Use a detached context instead of c.Context() because fasthttp recycles
	// its RequestCtx after the handler returns, while the stream keeps being
	// pulled by the pipe goroutine.
	ctx, cancel := context.WithCancel(context.Background())

	turn, err := p.service.QueryStream(ctx, req)
	if err != nil {
		cancel()
		return err
	}

	first, err := turn.Next()
	if err != nil && !errors.Is(err, io.EOF) {
		turn.Close()
		cancel()
		return err
	}

	p.headerHandler.SetStreamHeaders(c)

	// The compress middleware encodes after the handler returns, keyed on the
	// request's Accept-Encoding. A gzip writer would buffer the frames, so a
	// streamed answer is always sent uncompressed.
	c.Request().Header.Del(fiber.HeaderAcceptEncoding)

	// Use io.Pipe + SetBodyStream instead of SetBodyStreamWriter.
	// With io.Pipe, pw.Write blocks until fasthttp's writeBodyChunked has
	// consumed the frame and flushed it to the socket, which gives direct
	// backpressure and per-event delivery.
	pr, pw := io.Pipe()
	go p.pipeTurn(turn, first, pw, cancel)

	// Unknown size (-1) triggers chunked transfer encoding in fasthttp.
	c.Context().Response.SetBodyStream(pr, -1)

	return nil
}

// pipeTurn writes every event of turn to pw as an SSE frame, ending with the
// sentinel. An upstream failure after the first event becomes an error event
// before the sentinel. A failed write means the client went away; the turn is
// abandoned and nothing is recorded.
func (p *Proxy) pipeTurn(turn *chat.Turn, first *sse.Event, pw *io.PipeWriter, cancel context.CancelFunc) {
	defer cancel()
	defer pw.Close()
	defer turn.Close()

	w := sse.NewWriter(pw)

	ev := first
	for ev != nil {
		if err := w.WriteEvent(ev); err != nil {
			p.logger.Warn("client went away mid-stream", "error", err, "attempts", turn.Attempts())
			return
		}

		var err error
		ev, err = turn.Next()
		if err == nil {
			continue
		}
		if !errors.Is(err, io.EOF) {
			p.logger.Error("upstream stream failed",
				"error", err,
				"attempts", turn.Attempts(),
				"state", turn.State().String(),
			)
			if werr := w.WriteError(dify.StatusCode(err), dify.ErrorCode(err), err.Error()); werr != nil {
				return
			}
		}
	}

	if err := w.WriteDone(); err != nil {
		p.logger.Warn("could not write stream sentinel", "error", err)
		return
	}

	res := turn.Result()
	p.logger.Debug("streaming complete",
		"conversation_id", res.ConversationID,
		"message_id", res.MessageID,
		"events", res.TotalEvents,
		"attempts", turn.Attempts(),
	)
}
