package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/discroundup/roundup/internal/dispatch"
	"github.com/discroundup/roundup/internal/event"
	"github.com/discroundup/roundup/internal/ingest"
	"github.com/discroundup/roundup/internal/scorecard"
)

// Filter narrows Scorecards. Zero fields match everything.
type Filter struct {
	CardID string
	Date   string
}

// Scorecards returns stored records annotated with their player's
// registration and check-in for the record's date.
//
// A record matches a player by user id first, then by username. Records
// with no matching player keep the name carried on the record and the
// default division.
//
// Ordered by date, start time, then card id for deterministic output.
func (s *Store) Scorecards(ctx context.Context, f Filter) ([]scorecard.Row, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT card_id, date, start_date, end_date, layout_id, round_rating, hole_scores, user
		FROM scorecards
		WHERE (? = '' OR card_id = ?) AND (? = '' OR date = ?)
		ORDER BY date ASC, start_date ASC, card_id COLLATE BINARY ASC
	`, f.CardID, f.CardID, f.Date, f.Date)
	if err != nil {
		return nil, fmt.Errorf("query scorecards: %w", err)
	}
	defer rows.Close()

	result := []scorecard.Row{}
	for rows.Next() {
		var (
			row        scorecard.Row
			start, end string
			rating     sql.NullFloat64
			holes      string
			user       sql.NullString
		)
		if err := rows.Scan(&row.CardID, &row.Date, &start, &end, &row.LayoutID, &rating, &holes, &user); err != nil {
			return nil, fmt.Errorf("scan scorecard: %w", err)
		}
		if row.StartDate, err = parseTime(start); err != nil {
			return nil, err
		}
		if row.EndDate, err = parseTime(end); err != nil {
			return nil, err
		}
		if rating.Valid {
			r := rating.Float64
			row.RoundRating = &r
		}
		if row.HoleScores, err = unmarshalHoles(holes); err != nil {
			return nil, err
		}
		if row.User, err = unmarshalUser(user); err != nil {
			return nil, err
		}
		result = append(result, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate scorecards: %w", err)
	}
	rows.Close()

	if len(result) == 0 {
		return result, nil
	}
	return s.annotate(ctx, result, f.Date)
}

// annotate fills the player and check-in columns of rows.
func (s *Store) annotate(ctx context.Context, rows []scorecard.Row, date string) ([]scorecard.Row, error) {
	players, err := s.Players(ctx)
	if err != nil {
		return nil, err
	}
	byUserID := make(map[string]scorecard.Player, len(players))
	byUsername := make(map[string]scorecard.Player, len(players))
	for _, p := range players {
		if p.UserID != "" {
			byUserID[p.UserID] = p
		}
		byUsername[p.Username] = p
	}

	checkins, err := s.checkinsFor(ctx, date)
	if err != nil {
		return nil, err
	}
	type key struct{ date, username string }
	byDay := make(map[key]scorecard.Checkin, len(checkins))
	for _, c := range checkins {
		byDay[key{c.Date, c.Username}] = c
	}

	for i := range rows {
		r := &rows[i]
		r.FullName = r.PlayerName()
		r.Division = scorecard.DefaultDivision

		var (
			p  scorecard.Player
			ok bool
		)
		if r.User != nil {
			r.Username = r.User.Username
			if p, ok = byUserID[r.User.ID]; !ok && r.User.Username != "" {
				p, ok = byUsername[r.User.Username]
			}
		}
		if !ok {
			continue
		}
		r.Username = p.Username
		r.FullName = p.FullName
		r.Division = p.Division
		r.Handicap = p.Handicap
		if c, ok := byDay[key{r.Date, p.Username}]; ok {
			r.Division = c.Division
			r.Handicap = c.Handicap
			r.Tag = c.Tag
		}
	}
	return rows, nil
}

// Player returns the player with the given username, or ErrNotFound.
func (s *Store) Player(ctx context.Context, username string) (scorecard.Player, error) {
	var (
		p       scorecard.Player
		created string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT username, user_id, full_name, division, handicap, created_at
		FROM players WHERE username = ?
	`, username).Scan(&p.Username, &p.UserID, &p.FullName, &p.Division, &p.Handicap, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return scorecard.Player{}, fmt.Errorf("player %q: %w", username, ErrNotFound)
	}
	if err != nil {
		return scorecard.Player{}, fmt.Errorf("query player: %w", err)
	}
	if p.CreatedAt, err = parseTime(created); err != nil {
		return scorecard.Player{}, err
	}
	return p, nil
}

// Players returns all registered players ordered by username.
func (s *Store) Players(ctx context.Context) ([]scorecard.Player, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT username, user_id, full_name, division, handicap, created_at
		FROM players
		ORDER BY username COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query players: %w", err)
	}
	defer rows.Close()

	result := []scorecard.Player{}
	for rows.Next() {
		var (
			p       scorecard.Player
			created string
		)
		if err := rows.Scan(&p.Username, &p.UserID, &p.FullName, &p.Division, &p.Handicap, &created); err != nil {
			return nil, fmt.Errorf("scan player: %w", err)
		}
		if p.CreatedAt, err = parseTime(created); err != nil {
			return nil, err
		}
		result = append(result, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate players: %w", err)
	}
	return result, nil
}

// Checkins returns the check-ins for date ordered by tag, then username.
// Untagged players sort last.
func (s *Store) Checkins(ctx context.Context, date string) ([]scorecard.Checkin, error) {
	if err := scorecard.ValidateDate(date); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	return s.checkinsFor(ctx, date)
}

// checkinsFor returns check-ins for date, or for all dates when date is empty.
func (s *Store) checkinsFor(ctx context.Context, date string) ([]scorecard.Checkin, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, date, username, division, handicap, tag, created_at
		FROM checkins
		WHERE (? = '' OR date = ?)
		ORDER BY date ASC, tag = 0 ASC, tag ASC, username COLLATE BINARY ASC
	`, date, date)
	if err != nil {
		return nil, fmt.Errorf("query checkins: %w", err)
	}
	defer rows.Close()

	result := []scorecard.Checkin{}
	for rows.Next() {
		c, err := scanCheckin(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate checkins: %w", err)
	}
	return result, nil
}

func (s *Store) checkin(ctx context.Context, date, username string) (scorecard.Checkin, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, date, username, division, handicap, tag, created_at
		FROM checkins WHERE date = ? AND username = ?
	`, date, username)
	c, err := scanCheckin(row)
	if errors.Is(err, sql.ErrNoRows) {
		return scorecard.Checkin{}, fmt.Errorf("checkin %s/%s: %w", date, username, ErrNotFound)
	}
	return c, err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanCheckin(sc scanner) (scorecard.Checkin, error) {
	var (
		c       scorecard.Checkin
		created string
	)
	if err := sc.Scan(&c.ID, &c.Date, &c.Username, &c.Division, &c.Handicap, &c.Tag, &created); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return scorecard.Checkin{}, err
		}
		return scorecard.Checkin{}, fmt.Errorf("scan checkin: %w", err)
	}
	t, err := parseTime(created)
	if err != nil {
		return scorecard.Checkin{}, err
	}
	c.CreatedAt = t
	return c, nil
}

// EventByDate returns the event defined for date, or ErrNotFound.
func (s *Store) EventByDate(ctx context.Context, date string) (event.Event, error) {
	var def string
	err := s.db.QueryRowContext(ctx, `SELECT definition FROM events WHERE date = ?`, date).Scan(&def)
	if errors.Is(err, sql.ErrNoRows) {
		return event.Event{}, fmt.Errorf("event %s: %w", date, ErrNotFound)
	}
	if err != nil {
		return event.Event{}, fmt.Errorf("query event: %w", err)
	}
	var ev event.Event
	if err := json.Unmarshal([]byte(def), &ev); err != nil {
		return event.Event{}, fmt.Errorf("unmarshal event %s: %w", date, err)
	}
	return ev, nil
}

// Runs returns the most recent ingestion runs, newest first. Records are
// not populated.
func (s *Store) Runs(ctx context.Context, limit int) ([]ingest.Summary, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, card_id, phase, started_at, ended_at, expected, joined,
			unresolved, submitted, failed, error
		FROM ingest_runs
		ORDER BY started_at DESC, id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	result := []ingest.Summary{}
	for rows.Next() {
		var (
			sum               ingest.Summary
			started, ended    string
			submitted, failed int
		)
		if err := rows.Scan(&sum.RunID, &sum.CardID, &sum.Phase, &started, &ended,
			&sum.Expected, &sum.Joined, &sum.Unresolved, &submitted, &failed, &sum.Error); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		if sum.StartedAt, err = parseTime(started); err != nil {
			return nil, err
		}
		if sum.EndedAt, err = parseTime(ended); err != nil {
			return nil, err
		}
		sum.Records = []scorecard.Record{}
		sum.Report = &dispatch.Report{Outcomes: []dispatch.Outcome{}, Submitted: submitted, Failed: failed}
		result = append(result, sum)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return result, nil
}
