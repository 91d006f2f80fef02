package dispatch

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/discroundup/roundup/internal/frame"
	"github.com/discroundup/roundup/internal/scorecard"
)

func records(ids ...string) []scorecard.Record {
	out := make([]scorecard.Record, 0, len(ids))
	for _, id := range ids {
		out = append(out, scorecard.Record{
			CardID: id,
			User:   &frame.User{ID: "u-" + id, FullName: "Player " + id},
		})
	}
	return out
}

func TestDispatch_AllSucceed(t *testing.T) {
	var seen []string
	d := New(SubmitterFunc(func(_ context.Context, rec scorecard.Record) error {
		seen = append(seen, rec.CardID)
		return nil
	}))

	report := d.Dispatch(context.Background(), records("e1", "e2"))

	assert.True(t, report.OK())
	assert.Equal(t, 2, report.Submitted)
	assert.Equal(t, []string{"e1", "e2"}, seen)
	assert.Equal(t, "Player e1", report.Outcomes[0].Player)
}

func TestDispatch_FailureDoesNotAbort(t *testing.T) {
	var seen []string
	d := New(SubmitterFunc(func(_ context.Context, rec scorecard.Record) error {
		seen = append(seen, rec.CardID)
		if rec.CardID == "e2" {
			return errors.New("400 Bad Request")
		}
		return nil
	}))

	report := d.Dispatch(context.Background(), records("e1", "e2", "e3"))

	assert.False(t, report.OK())
	assert.Equal(t, 2, report.Submitted)
	assert.Equal(t, 1, report.Failed)
	assert.Equal(t, []string{"e1", "e2", "e3"}, seen)

	require.Len(t, report.Outcomes, 3)
	assert.False(t, report.Outcomes[1].OK)
	assert.Equal(t, "400 Bad Request", report.Outcomes[1].Error)
	assert.True(t, report.Outcomes[2].OK)
}

func TestDispatch_CancelledContextFailsRemaining(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	calls := 0
	d := New(SubmitterFunc(func(_ context.Context, _ scorecard.Record) error {
		calls++
		cancel()
		return nil
	}))

	report := d.Dispatch(ctx, records("e1", "e2", "e3"))

	assert.Equal(t, 1, calls)
	assert.Equal(t, 1, report.Submitted)
	assert.Equal(t, 2, report.Failed)
	assert.Equal(t, context.Canceled.Error(), report.Outcomes[2].Error)
}

func TestDispatch_UnresolvedPlayerName(t *testing.T) {
	d := New(SubmitterFunc(func(context.Context, scorecard.Record) error { return nil }))

	report := d.Dispatch(context.Background(), []scorecard.Record{{CardID: "e9"}})

	require.Len(t, report.Outcomes, 1)
	assert.Equal(t, "Unknown Player", report.Outcomes[0].Player)
}

func TestDispatch_Empty(t *testing.T) {
	d := New(SubmitterFunc(func(context.Context, scorecard.Record) error { return nil }))

	report := d.Dispatch(context.Background(), nil)
	assert.True(t, report.OK())
	assert.Empty(t, report.Outcomes)
}
