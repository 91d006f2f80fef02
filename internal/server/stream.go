package server

import (
	"bufio"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/discroundup/roundup/internal/feed"
)

// streamBuffer is the per-client backlog before the feed starts dropping.
const streamBuffer = 64

// streamFeed relays feed updates as server-sent events, one event per
// update named after its kind.
func (s *Server) streamFeed(c *fiber.Ctx) error {
	if s.feed == nil {
		return fiber.NewError(fiber.StatusServiceUnavailable, "ingestion is not enabled")
	}

	id := uuid.NewString()
	updates := make(chan feed.Update, streamBuffer)
	if err := s.feed.Subscribe(id, updates); err != nil {
		return fiber.NewError(fiber.StatusServiceUnavailable, err.Error())
	}

	c.Set("Content-Type", "text/event-stream")
	c.Set("Cache-Control", "no-cache")
	c.Set("Connection", "keep-alive")
	c.Set("X-Accel-Buffering", "no")

	c.Context().SetBodyStreamWriter(func(w *bufio.Writer) {
		defer func() {
			if stats, err := s.feed.Stats(id); err == nil && stats.Dropped > 0 {
				s.logger.Debug("stream dropped updates", "subscriber", id, "dropped", stats.Dropped)
			}
			_ = s.feed.Unsubscribe(id)
		}()
		s.logger.Debug("stream opened", "subscriber", id)
		s.stream(w, updates)
		s.logger.Debug("stream closed", "subscriber", id)
	})
	return nil
}

// stream writes updates to w until updates is closed, the client goes
// away, or the server shuts down.
func (s *Server) stream(w *bufio.Writer, updates <-chan feed.Update) {
	ticker := time.NewTicker(s.keepAlive)
	defer ticker.Stop()

	if _, err := w.WriteString(":\n\n"); err != nil {
		return
	}
	if err := w.Flush(); err != nil {
		return
	}

	for {
		select {
		case u, ok := <-updates:
			if !ok {
				return
			}
			if err := writeEvent(w, u); err != nil {
				s.logger.Warn("stream write failed", "error", err)
				return
			}
		case <-ticker.C:
			if _, err := w.WriteString(":\n\n"); err != nil {
				return
			}
		case <-s.done:
			return
		}
		if err := w.Flush(); err != nil {
			return
		}
	}
}

func writeEvent(w *bufio.Writer, u feed.Update) error {
	payload, err := json.Marshal(u)
	if err != nil {
		return fmt.Errorf("encode update: %w", err)
	}
	_, err = fmt.Fprintf(w, "id: %d\nevent: %s\ndata: %s\n\n", u.Seq, u.Kind, payload)
	return err
}
