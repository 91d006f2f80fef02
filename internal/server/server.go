// Package server exposes the results store and live ingestion over HTTP.
//
// Routes mirror the REST contract the results client speaks, plus the
// leaderboard, ingestion control and a server-sent event stream of the
// presentation feed. Write routes require "Authorization: Token <token>"
// when a token is configured.
package server

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/discroundup/roundup/internal/event"
	"github.com/discroundup/roundup/internal/feed"
	"github.com/discroundup/roundup/internal/ingest"
	"github.com/discroundup/roundup/internal/store"
)

// DefaultAddr is the listen address when none is configured.
const DefaultAddr = ":8000"

// Config wires a Server to its collaborators. Manager and Feed may be nil,
// which disables the ingestion routes.
type Config struct {
	Store   *store.Store
	Manager *ingest.Manager
	Feed    *feed.Feed
	Token   string
	Logger  *slog.Logger

	// KeepAlive is the interval of comment frames on idle event streams.
	KeepAlive time.Duration
}

// Server is the HTTP surface.
type Server struct {
	app       *fiber.App
	store     *store.Store
	manager   *ingest.Manager
	feed      *feed.Feed
	token     string
	logger    *slog.Logger
	keepAlive time.Duration
	done      chan struct{}
}

// New builds the fiber app and registers all routes.
func New(cfg Config) *Server {
	s := &Server{
		store:     cfg.Store,
		manager:   cfg.Manager,
		feed:      cfg.Feed,
		token:     cfg.Token,
		logger:    cfg.Logger,
		keepAlive: cfg.KeepAlive,
		done:      make(chan struct{}),
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.keepAlive <= 0 {
		s.keepAlive = 15 * time.Second
	}
	if s.token == "" {
		s.logger.Warn("no API token configured, write routes are open")
	}

	s.app = fiber.New(fiber.Config{
		AppName:               "roundup",
		DisableStartupMessage: true,
		ErrorHandler:          s.handleError,
	})
	s.routes()
	return s
}

func (s *Server) routes() {
	auth := TokenAuth(s.token, s.logger)

	s.app.Get("/scorecards/", s.listScorecards)
	s.app.Post("/scorecards/", auth, s.createScorecard)
	s.app.Get("/custom-users/", s.listPlayers)
	s.app.Post("/custom-users/", auth, s.upsertPlayer)
	s.app.Get("/checkins/", s.listCheckins)
	s.app.Post("/checkins/", auth, s.createCheckin)
	s.app.Get("/events/", s.getEvent)
	s.app.Post("/events/", auth, s.putEvent)
	s.app.Get("/leaderboard/", s.getLeaderboard)

	s.app.Post("/ingest/", auth, s.beginIngest)
	s.app.Delete("/ingest/", auth, s.cancelIngest)
	s.app.Get("/ingest/status", s.ingestStatus)
	s.app.Get("/ingest/stream", s.streamFeed)
}

// App returns the underlying fiber app, for tests and embedding.
func (s *Server) App() *fiber.App {
	return s.app
}

// Listen serves on addr until Shutdown.
func (s *Server) Listen(addr string) error {
	if addr == "" {
		addr = DefaultAddr
	}
	s.logger.Info("server listening", "addr", addr)
	return s.app.Listen(addr)
}

// Shutdown ends open event streams and stops the listener.
func (s *Server) Shutdown(ctx context.Context) error {
	select {
	case <-s.done:
	default:
		close(s.done)
	}
	return s.app.ShutdownWithContext(ctx)
}

// handleError maps domain errors to status codes.
func (s *Server) handleError(c *fiber.Ctx, err error) error {
	status := fiber.StatusInternalServerError

	var (
		fe *fiber.Error
		le *event.LoadError
	)
	switch {
	case errors.As(err, &fe):
		status = fe.Code
	case errors.Is(err, store.ErrNotFound):
		status = fiber.StatusNotFound
	case errors.Is(err, store.ErrInvalid), errors.Is(err, ingest.ErrInvalidCardURL), errors.As(err, &le):
		status = fiber.StatusBadRequest
	case ingest.IsBusy(err):
		status = fiber.StatusConflict
	}

	if status >= fiber.StatusInternalServerError {
		s.logger.Error("request failed", "method", c.Method(), "path", c.Path(), "error", err)
	} else {
		s.logger.Debug("request rejected", "method", c.Method(), "path", c.Path(), "status", status, "error", err)
	}
	return c.Status(status).JSON(fiber.Map{"error": err.Error()})
}
