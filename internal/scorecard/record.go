// Package scorecard defines the joined score record produced by live
// ingestion and consumed by submission, storage and the leaderboard.
package scorecard

import (
	"time"

	"github.com/discroundup/roundup/internal/frame"
)

// Record is one player's finished entry joined to its owning user.
//
// User is nil when the owner reference never resolved. Records are
// treated as immutable once built; HoleScores must not be modified.
//
// JSON field names follow the results store's REST contract.
type Record struct {
	CardID      string            `json:"card_id"`
	StartDate   time.Time         `json:"start_date"`
	EndDate     time.Time         `json:"end_date,omitzero"`
	LayoutID    string            `json:"layout_id"`
	RoundRating *float64          `json:"round_rating"`
	HoleScores  []frame.HoleScore `json:"hole_scores"`
	User        *frame.User       `json:"user"`
}

// FromEntry joins an entry to its (possibly nil) owner.
// CardID is the entry id: one record per player entry on a card.
func FromEntry(e frame.ScorecardEntry, owner *frame.User) Record {
	holes := make([]frame.HoleScore, len(e.HoleScores))
	copy(holes, e.HoleScores)

	var user *frame.User
	if owner != nil {
		u := *owner
		user = &u
	}

	return Record{
		CardID:      e.ID,
		StartDate:   e.StartDate,
		EndDate:     e.EndDate,
		LayoutID:    e.LayoutID,
		RoundRating: e.RoundRating,
		HoleScores:  holes,
		User:        user,
	}
}

// TotalStrokes sums strokes and penalties over all holes.
func (r Record) TotalStrokes() int {
	total := 0
	for _, h := range r.HoleScores {
		total += h.Total()
	}
	return total
}

// PlayerName is the display name of the owner, or "Unknown Player".
func (r Record) PlayerName() string {
	return r.User.DisplayName()
}

// Resolved reports whether the owner reference resolved to a user.
func (r Record) Resolved() bool {
	return r.User != nil
}
