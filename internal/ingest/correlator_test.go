package ingest

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/discroundup/roundup/internal/frame"
	"github.com/discroundup/roundup/internal/scorecard"
)

var (
	ada  = frame.User{ID: "u1", FullName: "Ada Lovelace", Name: "Ada", Username: "ada"}
	alan = frame.User{ID: "u2", FullName: "Alan Turing", Name: "Alan", Username: "alan"}
)

func entry(id, owner string, strokes ...int) frame.ScorecardEntry {
	holes := make([]frame.HoleScore, 0, len(strokes))
	for _, s := range strokes {
		holes = append(holes, frame.HoleScore{Strokes: s})
	}
	return frame.ScorecardEntry{
		ID:         id,
		OwnerRef:   owner,
		StartDate:  time.Date(2025, 6, 14, 17, 0, 0, 0, time.UTC),
		LayoutID:   "layout-1",
		HoleScores: holes,
	}
}

func meta(entries ...string) frame.ScorecardMeta {
	return frame.ScorecardMeta{EntryRefs: entries, UserRefs: []string{"u1", "u2"}}
}

func TestCorrelator_DedupByEntryID(t *testing.T) {
	var c Correlator
	c, _ = c.WithUsers([]frame.User{ada})

	c, first := c.WithEntry(entry("e1", "u1", 3))
	c, second := c.WithEntry(entry("e1", "u1", 3))

	assert.Len(t, first, 1)
	assert.Empty(t, second)
	assert.Equal(t, 1, c.Joined())
	assert.Len(t, c.Records(), 1)
}

func TestCorrelator_OrderIndependence(t *testing.T) {
	var usersFirst Correlator
	usersFirst, _ = usersFirst.WithUsers([]frame.User{ada})
	usersFirst, _ = usersFirst.WithEntry(entry("e1", "u1", 3, 4))

	var entryFirst Correlator
	entryFirst, held := entryFirst.WithEntry(entry("e1", "u1", 3, 4))
	assert.Empty(t, held, "entry must wait for its owner")
	assert.Equal(t, 1, entryFirst.Pending())
	entryFirst, resolved := entryFirst.WithUsers([]frame.User{ada})

	require.Len(t, resolved, 1)
	assert.Equal(t, usersFirst.Records(), entryFirst.Records())
	require.NotNil(t, entryFirst.Records()[0].User)
	assert.Equal(t, "Ada Lovelace", entryFirst.Records()[0].PlayerName())
	assert.Equal(t, 0, entryFirst.Pending())
}

func TestCorrelator_UnresolvedOwnerAfterUsers(t *testing.T) {
	var c Correlator
	c = c.WithMeta(meta("e1"))
	c, _ = c.WithUsers([]frame.User{ada})

	c, recs := c.WithEntry(entry("e1", "ghost", 5))

	require.Len(t, recs, 1)
	assert.Nil(t, recs[0].User)
	assert.True(t, c.Complete(), "unresolved entries still count toward completion")

	c, again := c.WithEntry(entry("e1", "ghost", 5))
	assert.Empty(t, again)
	assert.Len(t, c.Records(), 1)
}

func TestCorrelator_PendingOwnerMissingFromUserResult(t *testing.T) {
	var c Correlator
	c, _ = c.WithEntry(entry("e1", "u1", 3))
	c, _ = c.WithEntry(entry("e2", "ghost", 4))

	c, recs := c.WithUsers([]frame.User{ada})

	require.Len(t, recs, 2)
	assert.Equal(t, "e1", recs[0].CardID)
	assert.NotNil(t, recs[0].User)
	assert.Equal(t, "e2", recs[1].CardID)
	assert.Nil(t, recs[1].User)
}

func TestCorrelator_PendingKeepsLatestVersion(t *testing.T) {
	var c Correlator
	c, _ = c.WithEntry(entry("e1", "u1", 3))
	c, _ = c.WithEntry(entry("e1", "u1", 3, 4))
	assert.Equal(t, 1, c.Pending())

	_, recs := c.WithUsers([]frame.User{ada})
	require.Len(t, recs, 1)
	assert.Equal(t, 7, recs[0].TotalStrokes())
}

func TestCorrelator_GiveUp(t *testing.T) {
	var c Correlator
	c = c.WithMeta(meta("e1", "e2"))
	c, _ = c.WithEntry(entry("e1", "u1"))
	c, _ = c.WithEntry(entry("e2", "u2"))
	require.False(t, c.Complete())

	c, recs := c.GiveUp()

	assert.Len(t, recs, 2)
	for _, r := range recs {
		assert.Nil(t, r.User)
	}
	assert.True(t, c.Complete())
	assert.Equal(t, 0, c.Pending())
}

func TestCorrelator_EmptyOwnerJoinsImmediately(t *testing.T) {
	var c Correlator
	_, recs := c.WithEntry(entry("e1", ""))
	require.Len(t, recs, 1)
	assert.Nil(t, recs[0].User)
}

func TestCorrelator_CompletionRequiresMeta(t *testing.T) {
	var c Correlator
	c, _ = c.WithUsers([]frame.User{ada})
	c, _ = c.WithEntry(entry("e1", "u1"))
	assert.False(t, c.Complete(), "no meta, no completion")

	c = c.WithMeta(frame.ScorecardMeta{})
	assert.False(t, c.Complete(), "zero expected entries never completes")
}

func TestCorrelator_FirstMetaWins(t *testing.T) {
	var c Correlator
	c = c.WithMeta(meta("e1", "e2", "e2"))
	c = c.WithMeta(meta("e1"))

	assert.Equal(t, 2, c.Expected())
}

func TestCorrelator_UsersAppendOnly(t *testing.T) {
	var c Correlator
	c, _ = c.WithUsers([]frame.User{ada})
	c, _ = c.WithUsers([]frame.User{{ID: "u1", FullName: "Impostor"}, alan})

	got, ok := c.User("u1")
	require.True(t, ok)
	assert.Equal(t, "Ada Lovelace", got.FullName)
	assert.Equal(t, 2, c.UserCount())
}

func TestCorrelator_ValueSemantics(t *testing.T) {
	var base Correlator
	base, _ = base.WithUsers([]frame.User{ada})
	base = base.WithMeta(meta("e1", "e2"))

	next, _ := base.WithEntry(entry("e1", "u1"))
	next, _ = next.WithUsers([]frame.User{alan})
	_ = next.MarkComplete()

	assert.Equal(t, 0, base.Joined())
	assert.Equal(t, 1, base.UserCount())
	assert.False(t, base.Completed())
	assert.Empty(t, base.Records())
}

func TestCorrelator_RecordsIsACopy(t *testing.T) {
	var c Correlator
	c, _ = c.WithEntry(entry("e1", ""))

	recs := c.Records()
	recs[0] = scorecard.Record{CardID: "mutated"}
	assert.Equal(t, "e1", c.Records()[0].CardID)
}
