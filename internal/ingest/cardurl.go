package ingest

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidCardURL is returned when no card id can be extracted.
var ErrInvalidCardURL = errors.New("invalid cardcast url")

// ParseCardID extracts the card id from a cardcast share link: the last
// path segment with any query string or fragment removed. A bare id is
// returned unchanged.
func ParseCardID(link string) (string, error) {
	s := strings.TrimSpace(link)
	if i := strings.IndexAny(s, "?#"); i >= 0 {
		s = s[:i]
	}
	s = strings.TrimRight(s, "/")
	if i := strings.LastIndex(s, "/"); i >= 0 {
		s = s[i+1:]
	}
	if s == "" || strings.ContainsAny(s, " :") {
		return "", fmt.Errorf("%w: %q", ErrInvalidCardURL, link)
	}
	return s, nil
}
