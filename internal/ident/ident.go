// Package ident generates the identifiers used on the sync connection.
//
// Correlation ids only need to be unique within one connection, so they
// are short random strings; collisions are tolerated. Run ids identify an
// ingestion run in the results store and are UUIDv7 (time-sortable).
package ident

import (
	"fmt"
	"math/rand/v2"
	"sync"

	"github.com/google/uuid"
)

const (
	shortIDLength = 8
	alphabet      = "abcdefghijklmnopqrstuvwxyz0123456789"
)

// Generator produces correlation and session ids.
// Implemented by Random (production) and Fixed (tests).
type Generator interface {
	// ShortID returns a lowercase alphanumeric correlation id.
	ShortID() string
	// SessionID returns "<3-digit server>/<short id>" for the connection URL.
	SessionID() string
}

// Random draws ids from math/rand/v2.
//
// Thread-safety: Random is stateless and safe for concurrent use.
type Random struct{}

// ShortID returns 8 random characters from [a-z0-9].
func (Random) ShortID() string {
	b := make([]byte, shortIDLength)
	for i := range b {
		b[i] = alphabet[rand.IntN(len(alphabet))]
	}
	return string(b)
}

// SessionID returns a random server number in [100, 999] joined to a short id.
func (r Random) SessionID() string {
	return fmt.Sprintf("%d/%s", 100+rand.IntN(900), r.ShortID())
}

// Fixed returns predetermined ids for deterministic tests.
//
// Short ids are returned in order; once exhausted, Fixed falls back to
// "id-<n>" so that a test sending more subscriptions than expected still
// produces readable frames rather than panicking mid-session.
//
// Thread-safety: Fixed is safe for concurrent use via internal mutex.
type Fixed struct {
	mu      sync.Mutex
	ids     []string
	idx     int
	session string
}

// NewFixed creates a generator that returns ids in order and the given
// session id.
func NewFixed(session string, ids ...string) *Fixed {
	if session == "" {
		session = "100/testsess"
	}
	return &Fixed{ids: ids, session: session}
}

// ShortID returns the next predetermined id.
func (g *Fixed) ShortID() string {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.idx++
	if g.idx <= len(g.ids) {
		return g.ids[g.idx-1]
	}
	return fmt.Sprintf("id-%d", g.idx)
}

// SessionID returns the fixed session id.
func (g *Fixed) SessionID() string {
	return g.session
}

// NewRunID returns a UUIDv7 string for an ingestion run.
//
// Panics if UUID generation fails (should never happen in practice).
func NewRunID() string {
	return uuid.Must(uuid.NewV7()).String()
}
