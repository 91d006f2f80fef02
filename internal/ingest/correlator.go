package ingest

import (
	"maps"
	"slices"

	"github.com/discroundup/roundup/internal/frame"
	"github.com/discroundup/roundup/internal/scorecard"
)

// Correlator joins scorecard entries to users as both arrive in any order.
//
// An entry whose owner is not yet known is held as pending. It is joined
// when the owner arrives, or with a nil user once a user result has been
// received that does not contain the owner, or when GiveUp is called.
// Each entry id is joined at most once.
//
// The zero value is ready to use. Methods never modify the receiver.
type Correlator struct {
	users         map[string]frame.User
	usersReceived bool

	metaSeen  bool
	entryRefs []string
	expected  int

	joined  map[string]struct{}
	records []scorecard.Record

	pending      map[string]frame.ScorecardEntry
	pendingOrder []string

	completed bool
}

// WithUsers merges users, skipping ids already known, and resolves any
// pending entries the result settles.
func (c Correlator) WithUsers(users []frame.User) (Correlator, []scorecard.Record) {
	c.users = maps.Clone(c.users)
	if c.users == nil {
		c.users = make(map[string]frame.User, len(users))
	}
	for _, u := range users {
		if u.ID == "" {
			continue
		}
		if _, exists := c.users[u.ID]; !exists {
			c.users[u.ID] = u
		}
	}
	c.usersReceived = true

	if len(c.pendingOrder) == 0 {
		return c, nil
	}

	// Every pending owner is either present now or will never arrive.
	var emitted []scorecard.Record
	for _, id := range c.pendingOrder {
		entry := c.pending[id]
		var rec scorecard.Record
		c, rec = c.join(entry, c.lookup(entry.OwnerRef))
		emitted = append(emitted, rec)
	}
	c.pending = nil
	c.pendingOrder = nil
	return c, emitted
}

// WithMeta records the announced entry references. Only the first meta
// counts; later ones are ignored.
func (c Correlator) WithMeta(meta frame.ScorecardMeta) Correlator {
	if c.metaSeen {
		return c
	}
	c.metaSeen = true
	c.entryRefs = uniq(meta.EntryRefs)
	c.expected = len(c.entryRefs)
	return c
}

// WithEntry joins e immediately when possible, otherwise holds it as
// pending. Entries already joined are ignored.
func (c Correlator) WithEntry(e frame.ScorecardEntry) (Correlator, []scorecard.Record) {
	if _, done := c.joined[e.ID]; done {
		return c, nil
	}

	if owner := c.lookup(e.OwnerRef); owner != nil || c.usersReceived || e.OwnerRef == "" {
		var rec scorecard.Record
		c, rec = c.dropPending(e.ID).join(e, owner)
		return c, []scorecard.Record{rec}
	}

	// Hold the latest version of the entry until its owner settles.
	c.pending = maps.Clone(c.pending)
	if c.pending == nil {
		c.pending = make(map[string]frame.ScorecardEntry)
	}
	if _, held := c.pending[e.ID]; !held {
		c.pendingOrder = append(slices.Clip(c.pendingOrder), e.ID)
	}
	c.pending[e.ID] = e
	return c, nil
}

// GiveUp joins every pending entry with a nil user.
func (c Correlator) GiveUp() (Correlator, []scorecard.Record) {
	var emitted []scorecard.Record
	for _, id := range c.pendingOrder {
		var rec scorecard.Record
		c, rec = c.join(c.pending[id], nil)
		emitted = append(emitted, rec)
	}
	c.pending = nil
	c.pendingOrder = nil
	return c, emitted
}

// Complete reports whether every announced entry has been joined.
// It is false until a meta with at least one entry has been seen.
func (c Correlator) Complete() bool {
	return c.metaSeen && c.expected > 0 && len(c.joined) >= c.expected
}

// MarkComplete records that completion has been acted on.
func (c Correlator) MarkComplete() Correlator {
	c.completed = true
	return c
}

// Completed reports whether MarkComplete has been called.
func (c Correlator) Completed() bool { return c.completed }

// MetaSeen reports whether a scorecard meta has been received.
func (c Correlator) MetaSeen() bool { return c.metaSeen }

// Expected is the number of entries announced by the meta.
func (c Correlator) Expected() int { return c.expected }

// Joined is the number of distinct entries joined so far.
func (c Correlator) Joined() int { return len(c.joined) }

// Pending is the number of entries waiting for their owner.
func (c Correlator) Pending() int { return len(c.pendingOrder) }

// UserCount is the number of distinct users received.
func (c Correlator) UserCount() int { return len(c.users) }

// UsersReceived reports whether any user result has arrived.
func (c Correlator) UsersReceived() bool { return c.usersReceived }

// User returns the user with the given id.
func (c Correlator) User(id string) (frame.User, bool) {
	u, ok := c.users[id]
	return u, ok
}

// Records returns the joined records in join order.
func (c Correlator) Records() []scorecard.Record {
	return slices.Clone(c.records)
}

func (c Correlator) lookup(id string) *frame.User {
	if id == "" {
		return nil
	}
	if u, ok := c.users[id]; ok {
		return &u
	}
	return nil
}

func (c Correlator) join(e frame.ScorecardEntry, owner *frame.User) (Correlator, scorecard.Record) {
	rec := scorecard.FromEntry(e, owner)

	c.joined = maps.Clone(c.joined)
	if c.joined == nil {
		c.joined = make(map[string]struct{})
	}
	c.joined[e.ID] = struct{}{}
	c.records = append(slices.Clip(c.records), rec)
	return c, rec
}

func (c Correlator) dropPending(id string) Correlator {
	if _, held := c.pending[id]; !held {
		return c
	}
	c.pending = maps.Clone(c.pending)
	delete(c.pending, id)
	c.pendingOrder = slices.DeleteFunc(slices.Clone(c.pendingOrder), func(p string) bool { return p == id })
	return c
}

func uniq(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
