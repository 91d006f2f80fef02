// Package feed fans ingestion updates out to presentation subscribers.
//
// Publishing never blocks the ingestion loop: each subscriber owns a
// buffered channel and an update that does not fit is dropped and counted.
// A slow dashboard therefore loses progress ticks, never stalls a session.
package feed

import (
	"errors"
	"sync"
	"sync/atomic"

	"github.com/discroundup/roundup/internal/dispatch"
	"github.com/discroundup/roundup/internal/scorecard"
)

var (
	ErrFeedClosed         = errors.New("feed is closed")
	ErrSubscriberExists   = errors.New("subscriber already exists")
	ErrSubscriberNotFound = errors.New("subscriber not found")
	ErrNilChannel         = errors.New("channel cannot be nil")
)

// Kind identifies the payload an Update carries.
type Kind string

const (
	KindStatus   Kind = "status"
	KindProgress Kind = "progress"
	KindRecord   Kind = "record"
	KindReport   Kind = "report"
)

// Status is the connection indicator shown to the user.
type Status string

const (
	StatusIdle         Status = "idle"
	StatusConnecting   Status = "connecting"
	StatusConnected    Status = "connected"
	StatusDisconnected Status = "disconnected"
	StatusCompleted    Status = "completed"
)

// Update is one notification about an ingestion run.
// Only the fields relevant to Kind are set.
type Update struct {
	// Seq is assigned by Publish and increases by one per update.
	Seq    uint64 `json:"seq"`
	Kind   Kind   `json:"kind"`
	RunID  string `json:"run_id"`
	CardID string `json:"card_id,omitempty"`

	Status Status `json:"status,omitempty"`
	Error  string `json:"error,omitempty"`

	Joined   int `json:"joined,omitempty"`
	Expected int `json:"expected,omitempty"`

	Record *scorecard.Record `json:"record,omitempty"`
	Report *dispatch.Report  `json:"report,omitempty"`
}

// Stats counts deliveries for one subscriber.
type Stats struct {
	Sent    uint64 `json:"sent"`
	Dropped uint64 `json:"dropped"`
}

type subscriber struct {
	ch    chan<- Update
	stats Stats
}

// Feed is a non-blocking broadcast of Updates.
//
// Thread-safety: all methods are safe for concurrent use.
type Feed struct {
	mu          sync.RWMutex
	subscribers map[string]*subscriber
	published   uint64
	closed      bool
}

// New creates an empty feed.
func New() *Feed {
	return &Feed{subscribers: make(map[string]*subscriber)}
}

// Subscribe registers ch under id. The feed never closes ch.
func (f *Feed) Subscribe(id string, ch chan<- Update) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return ErrFeedClosed
	}
	if _, exists := f.subscribers[id]; exists {
		return ErrSubscriberExists
	}
	if ch == nil {
		return ErrNilChannel
	}

	f.subscribers[id] = &subscriber{ch: ch}
	return nil
}

// Unsubscribe removes the subscriber registered under id.
func (f *Feed) Unsubscribe(id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, exists := f.subscribers[id]; !exists {
		return ErrSubscriberNotFound
	}
	delete(f.subscribers, id)
	return nil
}

// Publish delivers u to every subscriber that has room for it.
// A no-op once the feed is closed.
func (f *Feed) Publish(u Update) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if f.closed {
		return
	}

	u.Seq = atomic.AddUint64(&f.published, 1)

	for _, sub := range f.subscribers {
		select {
		case sub.ch <- u:
			atomic.AddUint64(&sub.stats.Sent, 1)
		default:
			atomic.AddUint64(&sub.stats.Dropped, 1)
		}
	}
}

// Stats returns delivery counters for the subscriber registered under id.
func (f *Feed) Stats(id string) (Stats, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	sub, exists := f.subscribers[id]
	if !exists {
		return Stats{}, ErrSubscriberNotFound
	}
	return Stats{
		Sent:    atomic.LoadUint64(&sub.stats.Sent),
		Dropped: atomic.LoadUint64(&sub.stats.Dropped),
	}, nil
}

// Published is the number of updates accepted since New.
func (f *Feed) Published() uint64 {
	return atomic.LoadUint64(&f.published)
}

// Close drops all subscribers. Subsequent publishes are ignored.
func (f *Feed) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return
	}
	f.closed = true
	f.subscribers = nil
}
