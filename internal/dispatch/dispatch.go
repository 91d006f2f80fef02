// Package dispatch submits finished score records to the results store.
package dispatch

import (
	"context"
	"log/slog"

	"github.com/discroundup/roundup/internal/scorecard"
)

// Submitter persists one score record.
// Implemented by results.Client (remote API) and store.Store (local SQLite).
type Submitter interface {
	SubmitScoreRecord(ctx context.Context, rec scorecard.Record) error
}

// SubmitterFunc adapts a function to Submitter.
type SubmitterFunc func(ctx context.Context, rec scorecard.Record) error

func (f SubmitterFunc) SubmitScoreRecord(ctx context.Context, rec scorecard.Record) error {
	return f(ctx, rec)
}

// Outcome is the result of submitting a single record.
type Outcome struct {
	CardID string `json:"card_id"`
	Player string `json:"player"`
	OK     bool   `json:"ok"`
	Error  string `json:"error,omitempty"`
}

// Report aggregates the outcomes of one dispatch, in submission order.
type Report struct {
	Outcomes  []Outcome `json:"outcomes"`
	Submitted int       `json:"submitted"`
	Failed    int       `json:"failed"`
}

// OK reports whether every record was accepted.
func (r Report) OK() bool {
	return r.Failed == 0
}

// Dispatcher forwards records one at a time.
//
// Submission is best-effort and sequential: a rejected record is logged
// and the remaining records are still attempted. There is no retry.
type Dispatcher struct {
	submitter Submitter
	logger    *slog.Logger
}

// New creates a dispatcher that submits through s.
func New(s Submitter) *Dispatcher {
	return &Dispatcher{submitter: s, logger: slog.Default()}
}

// WithLogger returns a copy of d that logs to l.
func (d *Dispatcher) WithLogger(l *slog.Logger) *Dispatcher {
	cp := *d
	cp.logger = l
	return &cp
}

// Dispatch submits records in order and returns one Outcome per record.
//
// If ctx is cancelled mid-way, the records not yet attempted are reported
// as failed with the context error.
func (d *Dispatcher) Dispatch(ctx context.Context, records []scorecard.Record) Report {
	report := Report{Outcomes: make([]Outcome, 0, len(records))}

	for _, rec := range records {
		out := Outcome{CardID: rec.CardID, Player: rec.PlayerName()}

		err := ctx.Err()
		if err == nil {
			err = d.submitter.SubmitScoreRecord(ctx, rec)
		}

		if err != nil {
			out.Error = err.Error()
			report.Failed++
			d.logger.Error("score submission failed",
				"card_id", rec.CardID,
				"player", out.Player,
				"error", err,
			)
		} else {
			out.OK = true
			report.Submitted++
			d.logger.Debug("score submitted", "card_id", rec.CardID, "player", out.Player)
		}
		report.Outcomes = append(report.Outcomes, out)
	}

	return report
}
