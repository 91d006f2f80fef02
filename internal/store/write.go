package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/text/unicode/norm"

	"github.com/discroundup/roundup/internal/event"
	"github.com/discroundup/roundup/internal/ingest"
	"github.com/discroundup/roundup/internal/scorecard"
)

// ErrInvalid is returned when a write is rejected before reaching the database.
var ErrInvalid = errors.New("invalid input")

// WriteScorecard stores a joined record. Returns false without error when
// a record with the same entry id already exists (first write wins).
func (s *Store) WriteScorecard(ctx context.Context, rec scorecard.Record) (bool, error) {
	if rec.CardID == "" {
		return false, fmt.Errorf("%w: scorecard without card_id", ErrInvalid)
	}
	if rec.StartDate.IsZero() {
		return false, fmt.Errorf("%w: scorecard %s without start_date", ErrInvalid, rec.CardID)
	}

	holes, err := marshalHoles(rec.HoleScores)
	if err != nil {
		return false, err
	}
	user, err := marshalUser(rec.User)
	if err != nil {
		return false, err
	}
	var userID string
	if rec.User != nil {
		userID = rec.User.ID
	}
	var rating sql.NullFloat64
	if rec.RoundRating != nil {
		rating = sql.NullFloat64{Float64: *rec.RoundRating, Valid: true}
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO scorecards (card_id, date, start_date, end_date, layout_id,
			round_rating, hole_scores, user_id, user, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(card_id) DO NOTHING
	`, rec.CardID, scorecard.DateOf(rec.StartDate), formatTime(rec.StartDate),
		formatTime(rec.EndDate), rec.LayoutID, rating, holes, userID, user, s.timestamp())
	if err != nil {
		return false, fmt.Errorf("insert scorecard %s: %w", rec.CardID, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n > 0, nil
}

// SubmitScoreRecord stores rec, treating a duplicate as success. It lets
// the store serve directly as a dispatch target.
func (s *Store) SubmitScoreRecord(ctx context.Context, rec scorecard.Record) error {
	_, err := s.WriteScorecard(ctx, rec)
	return err
}

// UpsertPlayer creates or updates a player keyed by username.
// Names are normalized to NFC so the same name typed on different
// devices matches.
func (s *Store) UpsertPlayer(ctx context.Context, p scorecard.Player) (scorecard.Player, error) {
	p.Username = norm.NFC.String(strings.TrimSpace(p.Username))
	p.FullName = norm.NFC.String(strings.TrimSpace(p.FullName))
	if p.Username == "" {
		return scorecard.Player{}, fmt.Errorf("%w: player without username", ErrInvalid)
	}
	if p.FullName == "" {
		p.FullName = p.Username
	}
	if p.Division == "" {
		p.Division = scorecard.DefaultDivision
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO players (username, user_id, full_name, division, handicap, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(username) DO UPDATE SET
			user_id = CASE WHEN excluded.user_id != '' THEN excluded.user_id ELSE players.user_id END,
			full_name = excluded.full_name,
			division = excluded.division,
			handicap = excluded.handicap
	`, p.Username, p.UserID, p.FullName, p.Division, p.Handicap, s.timestamp())
	if err != nil {
		return scorecard.Player{}, fmt.Errorf("upsert player %s: %w", p.Username, err)
	}
	return s.Player(ctx, p.Username)
}

// CheckIn registers a player for a round date. Division and handicap
// default to the player's own when unset. Checking in twice for the same
// date updates the existing check-in.
func (s *Store) CheckIn(ctx context.Context, c scorecard.Checkin) (scorecard.Checkin, error) {
	if err := scorecard.ValidateDate(c.Date); err != nil {
		return scorecard.Checkin{}, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	c.Username = norm.NFC.String(strings.TrimSpace(c.Username))

	player, err := s.Player(ctx, c.Username)
	if err != nil {
		return scorecard.Checkin{}, fmt.Errorf("check in %s: %w", c.Username, err)
	}
	if c.Division == "" {
		c.Division = player.Division
	}
	if c.Handicap == 0 {
		c.Handicap = player.Handicap
	}
	if c.ID == "" {
		c.ID = uuid.Must(uuid.NewV7()).String()
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO checkins (id, date, username, division, handicap, tag, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(date, username) DO UPDATE SET
			division = excluded.division,
			handicap = excluded.handicap,
			tag = excluded.tag
	`, c.ID, c.Date, c.Username, c.Division, c.Handicap, c.Tag, s.timestamp())
	if err != nil {
		return scorecard.Checkin{}, fmt.Errorf("insert checkin: %w", err)
	}
	return s.checkin(ctx, c.Date, c.Username)
}

// PutEvent stores an event definition, replacing any for the same date.
func (s *Store) PutEvent(ctx context.Context, ev event.Event) error {
	if err := scorecard.ValidateDate(ev.Date); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	def, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO events (date, name, definition) VALUES (?, ?, ?)
		ON CONFLICT(date) DO UPDATE SET name = excluded.name, definition = excluded.definition
	`, ev.Date, ev.Name, string(def))
	if err != nil {
		return fmt.Errorf("put event %s: %w", ev.Date, err)
	}
	return nil
}

// WriteRun records the outcome of an ingestion session. Records are not
// stored here; they go through WriteScorecard.
func (s *Store) WriteRun(ctx context.Context, sum ingest.Summary) error {
	if sum.RunID == "" {
		return fmt.Errorf("%w: run without id", ErrInvalid)
	}
	var submitted, failed int
	if sum.Report != nil {
		submitted, failed = sum.Report.Submitted, sum.Report.Failed
	}
	return s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO ingest_runs (id, card_id, phase, started_at, ended_at,
				expected, joined, unresolved, submitted, failed, error)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO NOTHING
		`, sum.RunID, sum.CardID, sum.Phase, formatTime(sum.StartedAt), formatTime(sum.EndedAt),
			sum.Expected, sum.Joined, sum.Unresolved, submitted, failed, sum.Error)
		if err != nil {
			return fmt.Errorf("insert run %s: %w", sum.RunID, err)
		}
		return nil
	})
}
