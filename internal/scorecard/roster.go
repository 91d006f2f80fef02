package scorecard

import (
	"fmt"
	"time"
)

// DateLayout is the calendar-date format used for rounds and check-ins.
const DateLayout = "2006-01-02"

// DefaultDivision is assumed for players with no division.
const DefaultDivision = "recreational"

// Player is a registered league member.
type Player struct {
	// UserID is the scoring service's user id, used to match records.
	UserID    string    `json:"user_id,omitempty"`
	Username  string    `json:"username"`
	FullName  string    `json:"full_name"`
	Division  string    `json:"division"`
	Handicap  int       `json:"handicap"`
	CreatedAt time.Time `json:"created_at,omitzero"`
}

// Checkin registers a player for the round on Date.
type Checkin struct {
	ID        string    `json:"id"`
	Date      string    `json:"date"`
	Username  string    `json:"username"`
	Division  string    `json:"division"`
	Handicap  int       `json:"handicap"`
	Tag       int       `json:"tag,omitempty"`
	CreatedAt time.Time `json:"created_at,omitzero"`
}

// Row is a stored record annotated with the day's check-in of its player.
type Row struct {
	Record
	Date     string `json:"date"`
	Username string `json:"username"`
	FullName string `json:"user_fullname"`
	Division string `json:"division"`
	Handicap int    `json:"handicap"`
	Tag      int    `json:"tag,omitempty"`
}

// ValidateDate checks that s is a YYYY-MM-DD date.
func ValidateDate(s string) error {
	if _, err := time.Parse(DateLayout, s); err != nil {
		return fmt.Errorf("invalid date %q: want YYYY-MM-DD", s)
	}
	return nil
}

// DateOf is the calendar date of t in UTC.
func DateOf(t time.Time) string {
	return t.UTC().Format(DateLayout)
}
