package server

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/discroundup/roundup/internal/event"
	"github.com/discroundup/roundup/internal/leaderboard"
	"github.com/discroundup/roundup/internal/scorecard"
	"github.com/discroundup/roundup/internal/store"
)

func (s *Server) listScorecards(c *fiber.Ctx) error {
	f := store.Filter{CardID: c.Query("card_id"), Date: c.Query("date")}
	if f.Date != "" {
		if err := scorecard.ValidateDate(f.Date); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
	}
	rows, err := s.store.Scorecards(c.UserContext(), f)
	if err != nil {
		return err
	}
	return c.JSON(rows)
}

func (s *Server) createScorecard(c *fiber.Ctx) error {
	var rec scorecard.Record
	if err := c.BodyParser(&rec); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid scorecard: "+err.Error())
	}
	created, err := s.store.WriteScorecard(c.UserContext(), rec)
	if err != nil {
		return err
	}
	status := fiber.StatusOK
	if created {
		status = fiber.StatusCreated
	}
	return c.Status(status).JSON(fiber.Map{"card_id": rec.CardID, "created": created})
}

func (s *Server) listPlayers(c *fiber.Ctx) error {
	players, err := s.store.Players(c.UserContext())
	if err != nil {
		return err
	}
	return c.JSON(players)
}

func (s *Server) upsertPlayer(c *fiber.Ctx) error {
	var p scorecard.Player
	if err := c.BodyParser(&p); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid player: "+err.Error())
	}
	saved, err := s.store.UpsertPlayer(c.UserContext(), p)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(saved)
}

func (s *Server) listCheckins(c *fiber.Ctx) error {
	checkins, err := s.store.Checkins(c.UserContext(), c.Query("date"))
	if err != nil {
		return err
	}
	return c.JSON(checkins)
}

func (s *Server) createCheckin(c *fiber.Ctx) error {
	var in scorecard.Checkin
	if err := c.BodyParser(&in); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid checkin: "+err.Error())
	}
	saved, err := s.store.CheckIn(c.UserContext(), in)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(saved)
}

func (s *Server) getEvent(c *fiber.Ctx) error {
	date := c.Query("date")
	if err := scorecard.ValidateDate(date); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	ev, err := s.store.EventByDate(c.UserContext(), date)
	if err != nil {
		return err
	}
	return c.JSON(ev)
}

// putEvent accepts an event as JSON, or as CUE source when the content
// type names cue or plain text.
func (s *Server) putEvent(c *fiber.Ctx) error {
	var (
		ev  event.Event
		err error
	)
	ctype := strings.ToLower(c.Get(fiber.HeaderContentType))
	if strings.Contains(ctype, "cue") || strings.HasPrefix(ctype, fiber.MIMETextPlain) {
		ev, err = event.Parse("request.cue", c.Body())
		if err != nil {
			return err
		}
	} else {
		ev = event.Default("")
		if err := c.BodyParser(&ev); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid event: "+err.Error())
		}
	}

	if err := s.store.PutEvent(c.UserContext(), ev); err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(ev)
}

func (s *Server) getLeaderboard(c *fiber.Ctx) error {
	date := c.Query("date")
	if err := scorecard.ValidateDate(date); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}

	ev, err := s.store.EventByDate(c.UserContext(), date)
	if errors.Is(err, store.ErrNotFound) {
		ev = event.Default(date)
	} else if err != nil {
		return err
	}

	rows, err := s.store.Scorecards(c.UserContext(), store.Filter{Date: date})
	if err != nil {
		return err
	}
	return c.JSON(leaderboard.Build(ev, rows))
}

type ingestRequest struct {
	URL string `json:"url"`
}

func (s *Server) beginIngest(c *fiber.Ctx) error {
	if s.manager == nil {
		return fiber.NewError(fiber.StatusServiceUnavailable, "ingestion is not enabled")
	}
	var req ingestRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request: "+err.Error())
	}

	sess, err := s.manager.Begin(c.UserContext(), req.URL)
	if err != nil {
		return err
	}
	s.logger.Info("ingestion started", "run_id", sess.RunID(), "card_id", sess.CardID())
	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"run_id":  sess.RunID(),
		"card_id": sess.CardID(),
	})
}

func (s *Server) cancelIngest(c *fiber.Ctx) error {
	if s.manager == nil {
		return fiber.NewError(fiber.StatusServiceUnavailable, "ingestion is not enabled")
	}
	return c.JSON(fiber.Map{"cancelled": s.manager.Cancel()})
}

func (s *Server) ingestStatus(c *fiber.Ctx) error {
	if s.manager == nil {
		return fiber.NewError(fiber.StatusServiceUnavailable, "ingestion is not enabled")
	}
	return c.JSON(s.manager.Status())
}
