package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/discroundup/roundup/internal/frame"
)

// Hole scores and users are stored as JSON columns so records round-trip
// exactly as they were joined.

func marshalHoles(holes []frame.HoleScore) (string, error) {
	if holes == nil {
		holes = []frame.HoleScore{}
	}
	b, err := json.Marshal(holes)
	if err != nil {
		return "", fmt.Errorf("marshal hole scores: %w", err)
	}
	return string(b), nil
}

func unmarshalHoles(s string) ([]frame.HoleScore, error) {
	holes := []frame.HoleScore{}
	if s == "" {
		return holes, nil
	}
	if err := json.Unmarshal([]byte(s), &holes); err != nil {
		return nil, fmt.Errorf("unmarshal hole scores: %w", err)
	}
	return holes, nil
}

// marshalUser returns NULL for an unresolved owner.
func marshalUser(u *frame.User) (sql.NullString, error) {
	if u == nil {
		return sql.NullString{}, nil
	}
	b, err := json.Marshal(u)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("marshal user: %w", err)
	}
	return sql.NullString{String: string(b), Valid: true}, nil
}

func unmarshalUser(s sql.NullString) (*frame.User, error) {
	if !s.Valid || s.String == "" {
		return nil, nil
	}
	var u frame.User
	if err := json.Unmarshal([]byte(s.String), &u); err != nil {
		return nil, fmt.Errorf("unmarshal user: %w", err)
	}
	return &u, nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse time %q: %w", s, err)
	}
	return t, nil
}
