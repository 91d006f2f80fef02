package ingest

import (
	"context"
	"sync"
)

// FinishFunc observes every session the Manager runs, after it ends.
type FinishFunc func(sum Summary, err error)

// Status is the manager's view for the presentation layer.
type Status struct {
	Active  bool      `json:"active"`
	Current *Snapshot `json:"current,omitempty"`
	Last    *Summary  `json:"last,omitempty"`
}

// Manager runs ingestion sessions in the background, at most one at a time.
//
// Thread-safety: all methods are safe for concurrent use.
type Manager struct {
	base     Config
	onFinish FinishFunc

	mu     sync.Mutex
	active *Session
	cancel context.CancelFunc
	last   *Summary
	wg     sync.WaitGroup
}

// NewManager creates a manager. base supplies every session's
// collaborators; CardID and RunID are filled per session. onFinish may be
// nil.
func NewManager(base Config, onFinish FinishFunc) *Manager {
	return &Manager{base: base, onFinish: onFinish}
}

// Begin parses link and starts a session for it.
//
// If a session is live, Begin returns ErrBusy and changes nothing. The
// session is detached from ctx's cancellation so it outlives the request
// that started it; use Cancel to stop it.
func (m *Manager) Begin(ctx context.Context, link string) (*Session, error) {
	cardID, err := ParseCardID(link)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.active != nil {
		return nil, ErrBusy
	}

	cfg := m.base
	cfg.CardID = cardID
	cfg.RunID = ""
	sess := NewSession(cfg)

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	m.active = sess
	m.cancel = cancel

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		defer cancel()

		sum, err := sess.Run(runCtx)

		m.mu.Lock()
		m.active = nil
		m.cancel = nil
		m.last = &sum
		m.mu.Unlock()

		if m.onFinish != nil {
			m.onFinish(sum, err)
		}
	}()

	return sess, nil
}

// Status returns the live session's snapshot and the last summary.
func (m *Manager) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()

	st := Status{Active: m.active != nil}
	if m.active != nil {
		snap := m.active.Snapshot()
		st.Current = &snap
	}
	if m.last != nil {
		last := *m.last
		st.Last = &last
	}
	return st
}

// Cancel stops the live session. Returns false if none was running.
func (m *Manager) Cancel() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.cancel == nil {
		return false
	}
	m.cancel()
	return true
}

// Wait blocks until every session started so far has finished.
func (m *Manager) Wait() {
	m.wg.Wait()
}
