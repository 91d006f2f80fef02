package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/discroundup/roundup/internal/dispatch"
	"github.com/discroundup/roundup/internal/event"
	"github.com/discroundup/roundup/internal/frame"
	"github.com/discroundup/roundup/internal/ingest"
	"github.com/discroundup/roundup/internal/scorecard"
)

// createTestStore creates a store in a temporary directory.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

var roundStart = time.Date(2025, 6, 14, 17, 0, 0, 0, time.UTC)

func record(cardID string, user *frame.User, strokes ...int) scorecard.Record {
	holes := make([]frame.HoleScore, len(strokes))
	for i, n := range strokes {
		holes[i] = frame.HoleScore{Strokes: n}
	}
	return scorecard.Record{
		CardID:     cardID,
		StartDate:  roundStart,
		LayoutID:   "layout-1",
		HoleScores: holes,
		User:       user,
	}
}

func TestOpen_Pragmas(t *testing.T) {
	s := createTestStore(t)

	assert.NoError(t, s.verifyPragma("journal_mode", "wal"))
	assert.NoError(t, s.verifyPragma("synchronous", "1"))
	assert.NoError(t, s.verifyPragma("busy_timeout", "5000"))
	assert.NoError(t, s.verifyPragma("foreign_keys", "1"))
	assert.NoError(t, s.verifyPragma("user_version", "1"))
}

func TestOpen_Idempotent(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")

	s1, err := Open(dbPath)
	require.NoError(t, err)
	_, err = s1.WriteScorecard(context.Background(), record("e1", nil, 3))
	require.NoError(t, err)
	require.NoError(t, s1.Close())

	s2, err := Open(dbPath)
	require.NoError(t, err)
	defer s2.Close()

	rows, err := s2.Scorecards(context.Background(), Filter{})
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}

func TestWriteScorecard_FirstWriteWins(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	inserted, err := s.WriteScorecard(ctx, record("e1", nil, 3, 4))
	require.NoError(t, err)
	assert.True(t, inserted)

	inserted, err = s.WriteScorecard(ctx, record("e1", nil, 9, 9))
	require.NoError(t, err)
	assert.False(t, inserted)

	rows, err := s.Scorecards(ctx, Filter{CardID: "e1"})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, 7, rows[0].TotalStrokes())
}

func TestWriteScorecard_Invalid(t *testing.T) {
	s := createTestStore(t)

	_, err := s.WriteScorecard(context.Background(), scorecard.Record{StartDate: roundStart})
	assert.ErrorIs(t, err, ErrInvalid)

	_, err = s.WriteScorecard(context.Background(), scorecard.Record{CardID: "e1"})
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestSubmitScoreRecord_ImplementsSubmitter(t *testing.T) {
	s := createTestStore(t)
	var sub dispatch.Submitter = s

	require.NoError(t, sub.SubmitScoreRecord(context.Background(), record("e1", nil, 3)))
	require.NoError(t, sub.SubmitScoreRecord(context.Background(), record("e1", nil, 3)))
}

func TestScorecards_RoundTrip(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	rating := 912.5
	rec := record("e1", &frame.User{ID: "u1", FullName: "Ada Lovelace", Username: "ada"}, 3, 4)
	rec.HoleScores[1].Penalty = 1
	rec.RoundRating = &rating
	rec.EndDate = roundStart.Add(2 * time.Hour)
	_, err := s.WriteScorecard(ctx, rec)
	require.NoError(t, err)

	rows, err := s.Scorecards(ctx, Filter{Date: "2025-06-14"})
	require.NoError(t, err)
	require.Len(t, rows, 1)

	got := rows[0]
	assert.Equal(t, rec.CardID, got.CardID)
	assert.True(t, rec.StartDate.Equal(got.StartDate))
	assert.True(t, rec.EndDate.Equal(got.EndDate))
	assert.Equal(t, rec.HoleScores, got.HoleScores)
	require.NotNil(t, got.RoundRating)
	assert.Equal(t, rating, *got.RoundRating)
	assert.Equal(t, *rec.User, *got.User)
	assert.Equal(t, "2025-06-14", got.Date)
}

func TestScorecards_EmptyNotNil(t *testing.T) {
	s := createTestStore(t)

	rows, err := s.Scorecards(context.Background(), Filter{Date: "2025-01-01"})
	require.NoError(t, err)
	assert.NotNil(t, rows)
	assert.Empty(t, rows)
}

func TestScorecards_AnnotatesFromCheckin(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	_, err := s.UpsertPlayer(ctx, scorecard.Player{UserID: "u1", Username: "ada", FullName: "Ada L.", Division: "advanced", Handicap: 2})
	require.NoError(t, err)
	_, err = s.UpsertPlayer(ctx, scorecard.Player{Username: "alan", FullName: "Alan T."})
	require.NoError(t, err)
	_, err = s.CheckIn(ctx, scorecard.Checkin{Date: "2025-06-14", Username: "ada", Division: "intermediate", Handicap: 4, Tag: 7})
	require.NoError(t, err)

	_, err = s.WriteScorecard(ctx, record("e1", &frame.User{ID: "u1", FullName: "Ada Lovelace", Username: "ada_udisc"}, 3))
	require.NoError(t, err)
	// No user id on file for alan: matched by username.
	_, err = s.WriteScorecard(ctx, record("e2", &frame.User{ID: "u2", FullName: "Alan Turing", Username: "alan"}, 4))
	require.NoError(t, err)
	_, err = s.WriteScorecard(ctx, record("e3", nil, 5))
	require.NoError(t, err)

	rows, err := s.Scorecards(ctx, Filter{Date: "2025-06-14"})
	require.NoError(t, err)
	require.Len(t, rows, 3)

	assert.Equal(t, "ada", rows[0].Username)
	assert.Equal(t, "Ada L.", rows[0].FullName)
	assert.Equal(t, "intermediate", rows[0].Division)
	assert.Equal(t, 4, rows[0].Handicap)
	assert.Equal(t, 7, rows[0].Tag)

	assert.Equal(t, "alan", rows[1].Username)
	assert.Equal(t, scorecard.DefaultDivision, rows[1].Division)
	assert.Equal(t, 0, rows[1].Tag)

	assert.Equal(t, "", rows[2].Username)
	assert.Equal(t, "Unknown Player", rows[2].FullName)
	assert.Equal(t, scorecard.DefaultDivision, rows[2].Division)
}

func TestUpsertPlayer_NormalizesAndUpdates(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	// NFD input: "e" followed by a combining acute accent.
	p, err := s.UpsertPlayer(ctx, scorecard.Player{Username: " jose ", FullName: "Jose\u0301", UserID: "u9"})
	require.NoError(t, err)
	assert.Equal(t, "jose", p.Username)
	assert.Equal(t, "Jos\u00e9", p.FullName)
	assert.Equal(t, scorecard.DefaultDivision, p.Division)
	assert.False(t, p.CreatedAt.IsZero())

	p, err = s.UpsertPlayer(ctx, scorecard.Player{Username: "jose", FullName: "Jos\u00e9 M.", Division: "advanced"})
	require.NoError(t, err)
	assert.Equal(t, "advanced", p.Division)
	assert.Equal(t, "u9", p.UserID, "empty user id keeps the stored one")

	players, err := s.Players(ctx)
	require.NoError(t, err)
	assert.Len(t, players, 1)
}

func TestUpsertPlayer_RequiresUsername(t *testing.T) {
	s := createTestStore(t)
	_, err := s.UpsertPlayer(context.Background(), scorecard.Player{FullName: "Nobody"})
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestCheckIn_DefaultsAndUpdate(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	_, err := s.UpsertPlayer(ctx, scorecard.Player{Username: "ada", Division: "advanced", Handicap: 3})
	require.NoError(t, err)

	c, err := s.CheckIn(ctx, scorecard.Checkin{Date: "2025-06-14", Username: "ada"})
	require.NoError(t, err)
	assert.NotEmpty(t, c.ID)
	assert.Equal(t, "advanced", c.Division)
	assert.Equal(t, 3, c.Handicap)

	again, err := s.CheckIn(ctx, scorecard.Checkin{Date: "2025-06-14", Username: "ada", Tag: 12})
	require.NoError(t, err)
	assert.Equal(t, c.ID, again.ID)
	assert.Equal(t, 12, again.Tag)

	list, err := s.Checkins(ctx, "2025-06-14")
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestCheckIn_Errors(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	_, err := s.CheckIn(ctx, scorecard.Checkin{Date: "14/06/2025", Username: "ada"})
	assert.ErrorIs(t, err, ErrInvalid)

	_, err = s.CheckIn(ctx, scorecard.Checkin{Date: "2025-06-14", Username: "ghost"})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCheckins_OrderedByTagUntaggedLast(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	for _, name := range []string{"ada", "alan", "grace"} {
		_, err := s.UpsertPlayer(ctx, scorecard.Player{Username: name})
		require.NoError(t, err)
	}
	_, err := s.CheckIn(ctx, scorecard.Checkin{Date: "2025-06-14", Username: "ada"})
	require.NoError(t, err)
	_, err = s.CheckIn(ctx, scorecard.Checkin{Date: "2025-06-14", Username: "grace", Tag: 2})
	require.NoError(t, err)
	_, err = s.CheckIn(ctx, scorecard.Checkin{Date: "2025-06-14", Username: "alan", Tag: 1})
	require.NoError(t, err)

	list, err := s.Checkins(ctx, "2025-06-14")
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, []string{"alan", "grace", "ada"}, []string{list[0].Username, list[1].Username, list[2].Username})
}

func TestEvents_PutAndGet(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	_, err := s.EventByDate(ctx, "2025-06-14")
	assert.ErrorIs(t, err, ErrNotFound)

	ev := event.Default("2025-06-14")
	ev.Name = "Saturday Doubles"
	ev.BestOnHoles = []int{3, 7}
	ev.Duels = []event.Duel{{Name: "Grudge", Players: []string{"ada", "alan"}}}
	require.NoError(t, s.PutEvent(ctx, ev))

	got, err := s.EventByDate(ctx, "2025-06-14")
	require.NoError(t, err)
	assert.Equal(t, ev, got)

	ev.Name = "Renamed"
	require.NoError(t, s.PutEvent(ctx, ev))
	got, err = s.EventByDate(ctx, "2025-06-14")
	require.NoError(t, err)
	assert.Equal(t, "Renamed", got.Name)
}

func TestRuns_WriteAndList(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	first := ingest.Summary{
		RunID:     "run-1",
		CardID:    "card1",
		Phase:     "completed",
		StartedAt: roundStart,
		EndedAt:   roundStart.Add(time.Minute),
		Expected:  2,
		Joined:    2,
		Report:    &dispatch.Report{Submitted: 2},
	}
	second := ingest.Summary{
		RunID:     "run-2",
		CardID:    "card2",
		Phase:     "errored",
		StartedAt: roundStart.Add(time.Hour),
		EndedAt:   roundStart.Add(time.Hour + time.Second),
		Error:     "connection lost",
	}
	require.NoError(t, s.WriteRun(ctx, first))
	require.NoError(t, s.WriteRun(ctx, second))
	require.NoError(t, s.WriteRun(ctx, first), "rewriting a run is a no-op")

	runs, err := s.Runs(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "run-2", runs[0].RunID)
	assert.Equal(t, "connection lost", runs[0].Error)
	assert.Equal(t, "run-1", runs[1].RunID)
	assert.Equal(t, 2, runs[1].Report.Submitted)
	assert.True(t, first.EndedAt.Equal(runs[1].EndedAt))

	err = s.WriteRun(ctx, ingest.Summary{})
	assert.ErrorIs(t, err, ErrInvalid)
}
