package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/discroundup/roundup/internal/dispatch"
	"github.com/discroundup/roundup/internal/feed"
	"github.com/discroundup/roundup/internal/frame"
	"github.com/discroundup/roundup/internal/ident"
	"github.com/discroundup/roundup/internal/scorecard"
)

// DefaultSyncURL is the SockJS endpoint of the sync service.
const DefaultSyncURL = "wss://sync.udisc.com/sockjs"

// maxLoggedFrame bounds how much of an undecodable frame is logged.
const maxLoggedFrame = 256

// Publisher receives presentation updates. Implemented by *feed.Feed.
type Publisher interface {
	Publish(feed.Update)
}

type discardPublisher struct{}

func (discardPublisher) Publish(feed.Update) {}

// Options are the policy knobs of a session.
type Options struct {
	// SyncURL is the SockJS base URL. Empty uses DefaultSyncURL.
	SyncURL string

	// MetaTimeout fails the session if no card meta has arrived within
	// this long of connecting. Zero waits forever.
	MetaTimeout time.Duration

	// ResolveTimeout stops waiting for unresolved owners this long after
	// the first entry was held. Held entries are then joined with no user.
	// Zero waits forever.
	ResolveTimeout time.Duration
}

// Config wires a Session.
type Config struct {
	CardID     string
	RunID      string
	Dialer     Dialer
	IDs        ident.Generator
	Dispatcher *dispatch.Dispatcher
	Publisher  Publisher
	Logger     *slog.Logger
	Options    Options
}

// Summary describes a finished session.
type Summary struct {
	RunID      string             `json:"run_id"`
	CardID     string             `json:"card_id"`
	Phase      string             `json:"phase"`
	StartedAt  time.Time          `json:"started_at"`
	EndedAt    time.Time          `json:"ended_at"`
	Expected   int                `json:"expected"`
	Joined     int                `json:"joined"`
	Unresolved int                `json:"unresolved"`
	Records    []scorecard.Record `json:"records"`
	Report     *dispatch.Report   `json:"report,omitempty"`
	Error      string             `json:"error,omitempty"`
}

// Snapshot is the live view of a session, safe to read from any goroutine.
type Snapshot struct {
	RunID     string      `json:"run_id"`
	CardID    string      `json:"card_id"`
	Phase     string      `json:"phase"`
	Status    feed.Status `json:"status"`
	Expected  int         `json:"expected"`
	Joined    int         `json:"joined"`
	Pending   int         `json:"pending"`
	StartedAt time.Time   `json:"started_at"`
}

// Session is one ingestion run: one connection, one card.
//
// Run must be called at most once. All protocol state is owned by the
// goroutine executing Run; other goroutines only read the Snapshot.
type Session struct {
	cardID     string
	runID      string
	dialer     Dialer
	ids        ident.Generator
	machine    Machine
	dispatcher *dispatch.Dispatcher
	publisher  Publisher
	logger     *slog.Logger
	opts       Options

	mu       sync.Mutex
	snapshot Snapshot
}

// NewSession creates a session for cfg.CardID.
// Missing optional collaborators get defaults: random ids, a fresh run id,
// the gorilla dialer, a discarding publisher and slog.Default.
func NewSession(cfg Config) *Session {
	if cfg.IDs == nil {
		cfg.IDs = ident.Random{}
	}
	if cfg.RunID == "" {
		cfg.RunID = ident.NewRunID()
	}
	if cfg.Dialer == nil {
		cfg.Dialer = WebsocketDialer{}
	}
	if cfg.Publisher == nil {
		cfg.Publisher = discardPublisher{}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Options.SyncURL == "" {
		cfg.Options.SyncURL = DefaultSyncURL
	}

	return &Session{
		cardID:     cfg.CardID,
		runID:      cfg.RunID,
		dialer:     cfg.Dialer,
		ids:        cfg.IDs,
		machine:    NewMachine(cfg.IDs),
		dispatcher: cfg.Dispatcher,
		publisher:  cfg.Publisher,
		logger:     cfg.Logger.With("run_id", cfg.RunID, "card_id", cfg.CardID),
		opts:       cfg.Options,
		snapshot: Snapshot{
			RunID:  cfg.RunID,
			CardID: cfg.CardID,
			Phase:  PhaseIdle.String(),
			Status: feed.StatusIdle,
		},
	}
}

// RunID returns the id of this run.
func (s *Session) RunID() string { return s.runID }

// CardID returns the card being ingested.
func (s *Session) CardID() string { return s.cardID }

// Snapshot returns the current live view.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshot
}

// Run connects, drives the handshake until the card completes, submits
// the joined records and returns.
//
// The returned error is a *SessionError when the transport fails, the
// meta timeout expires or ctx is cancelled. Submission failures are not
// errors; they are reported per record in Summary.Report.
func (s *Session) Run(ctx context.Context) (Summary, error) {
	started := time.Now()
	state := s.machine.Begin(s.cardID)
	s.observe(state, feed.StatusConnecting, started)

	url := strings.TrimRight(s.opts.SyncURL, "/") + "/" + s.ids.SessionID() + "/websocket"
	s.logger.Info("connecting to sync service", "url", url)

	conn, err := s.dialer.Dial(ctx, url)
	if err != nil {
		state, _ = s.machine.Step(state, Failed{Err: err})
		if ctx.Err() != nil {
			return s.finish(state, started, nil, s.cancelled(ctx))
		}
		return s.finish(state, started, nil, transportError(s.cardID, err))
	}

	q := newEventQueue()
	readerDone := make(chan struct{})
	go func() {
		defer close(readerDone)
		readLoop(conn, q)
	}()
	defer func() {
		_ = conn.Close()
		<-readerDone
	}()

	s.observe(state, feed.StatusConnected, started)

	var metaC <-chan time.Time
	if s.opts.MetaTimeout > 0 {
		t := time.NewTimer(s.opts.MetaTimeout)
		defer t.Stop()
		metaC = t.C
	}

	var resolveC <-chan time.Time
	var resolveTimer *time.Timer
	defer func() {
		if resolveTimer != nil {
			resolveTimer.Stop()
		}
	}()

	for {
		if ctx.Err() != nil {
			state, _ = s.machine.Step(state, Closed{})
			return s.finish(state, started, nil, s.cancelled(ctx))
		}

		ev, ok := q.TryDequeue()
		if !ok {
			if q.Drained() {
				state, _ = s.machine.Step(state, Closed{})
				return s.finish(state, started, nil, transportError(s.cardID, io.EOF))
			}

			select {
			case <-ctx.Done():
			case <-q.Wait():
			case <-metaC:
				metaC = nil
				if !state.Join.MetaSeen() {
					err := &SessionError{
						Code:    ErrCodeTimeout,
						Message: fmt.Sprintf("no scorecard meta within %s", s.opts.MetaTimeout),
						CardID:  s.cardID,
					}
					state, _ = s.machine.Step(state, Failed{Err: err})
					return s.finish(state, started, nil, err)
				}
			case <-resolveC:
				resolveC = nil
				s.logger.Warn("giving up on unresolved owners", "pending", state.Join.Pending())
				var effects []Effect
				state, effects = s.machine.Step(state, GiveUp{})
				if sum, done, err := s.apply(ctx, conn, &state, effects, started); done {
					return sum, err
				}
			}
			continue
		}

		switch ev.Type {
		case eventFrame:
			for _, msg := range frame.DecodeFrame(ev.Frame) {
				s.logDecode(ev.Frame, msg)

				var effects []Effect
				state, effects = s.machine.Step(state, Received{Msg: msg})
				if sum, done, err := s.apply(ctx, conn, &state, effects, started); done {
					return sum, err
				}
			}
			s.observe(state, "", started)

		case eventClosed:
			s.logger.Info("sync service closed the connection")
			state, _ = s.machine.Step(state, Closed{})
			return s.finish(state, started, nil, transportError(s.cardID, io.EOF))

		case eventFailed:
			s.logger.Error("connection failed", "error", ev.Err)
			state, _ = s.machine.Step(state, Failed{Err: ev.Err})
			return s.finish(state, started, nil, transportError(s.cardID, ev.Err))
		}

		if s.opts.ResolveTimeout > 0 && resolveTimer == nil && state.Join.Pending() > 0 {
			resolveTimer = time.NewTimer(s.opts.ResolveTimeout)
			resolveC = resolveTimer.C
		}
	}
}

// apply executes effects in order. done is true when the session is over.
func (s *Session) apply(ctx context.Context, conn Conn, state *State, effects []Effect, started time.Time) (Summary, bool, error) {
	for _, eff := range effects {
		switch eff := eff.(type) {
		case Send:
			s.logger.Debug("sending frame", "frame", eff.Label)
			if err := conn.WriteMessage(eff.Text); err != nil {
				s.logger.Error("write failed", "frame", eff.Label, "error", err)
				*state, _ = s.machine.Step(*state, Failed{Err: err})
				sum, serr := s.finish(*state, started, nil, transportError(s.cardID, err))
				return sum, true, serr
			}

		case Joined:
			for i := range eff.Records {
				rec := eff.Records[i]
				if !rec.Resolved() {
					s.logger.Warn("entry owner unresolved", "entry_id", rec.CardID)
				}
				s.publisher.Publish(feed.Update{Kind: feed.KindRecord, RunID: s.runID, CardID: s.cardID, Record: &rec})
			}
			s.publisher.Publish(feed.Update{
				Kind:     feed.KindProgress,
				RunID:    s.runID,
				CardID:   s.cardID,
				Joined:   state.Join.Joined(),
				Expected: state.Join.Expected(),
			})

		case Complete:
			s.logger.Info("card complete", "records", len(eff.Records))
			var report dispatch.Report
			if s.dispatcher != nil {
				report = s.dispatcher.Dispatch(ctx, eff.Records)
				s.logger.Info("submission finished", "submitted", report.Submitted, "failed", report.Failed)
			}
			s.publisher.Publish(feed.Update{Kind: feed.KindReport, RunID: s.runID, CardID: s.cardID, Report: &report})
			sum, err := s.finish(*state, started, &report, nil)
			return sum, true, err
		}
	}
	return Summary{}, false, nil
}

func (s *Session) logDecode(raw string, msg frame.Message) {
	if msg.Err == nil {
		s.logger.Debug("frame decoded", "kind", msg.Kind.String())
		return
	}
	if errors.Is(msg.Err, frame.ErrMalformed) {
		s.logger.Warn("dropping undecodable frame", "frame", truncate(raw, maxLoggedFrame), "error", msg.Err)
		return
	}
	s.logger.Debug("ignoring frame", "frame", truncate(raw, maxLoggedFrame), "reason", msg.Err)
}

func (s *Session) cancelled(ctx context.Context) *SessionError {
	return &SessionError{Code: ErrCodeCancelled, Message: "session cancelled", CardID: s.cardID, Err: ctx.Err()}
}

// observe refreshes the snapshot and publishes a status update when status
// is non-empty.
func (s *Session) observe(state State, status feed.Status, started time.Time) {
	s.mu.Lock()
	s.snapshot.Phase = state.Phase.String()
	s.snapshot.Expected = state.Join.Expected()
	s.snapshot.Joined = state.Join.Joined()
	s.snapshot.Pending = state.Join.Pending()
	s.snapshot.StartedAt = started
	if status != "" {
		s.snapshot.Status = status
	}
	s.mu.Unlock()

	if status != "" {
		s.publisher.Publish(feed.Update{Kind: feed.KindStatus, RunID: s.runID, CardID: s.cardID, Status: status})
	}
}

func (s *Session) finish(state State, started time.Time, report *dispatch.Report, err error) (Summary, error) {
	records := state.Join.Records()
	sum := Summary{
		RunID:     s.runID,
		CardID:    s.cardID,
		Phase:     state.Phase.String(),
		StartedAt: started,
		EndedAt:   time.Now(),
		Expected:  state.Join.Expected(),
		Joined:    state.Join.Joined(),
		Records:   records,
		Report:    report,
	}
	for _, r := range records {
		if !r.Resolved() {
			sum.Unresolved++
		}
	}

	status := feed.StatusCompleted
	if err != nil {
		sum.Error = err.Error()
		status = feed.StatusDisconnected
	}

	s.mu.Lock()
	s.snapshot.Phase = sum.Phase
	s.snapshot.Status = status
	s.snapshot.Expected = sum.Expected
	s.snapshot.Joined = sum.Joined
	s.snapshot.Pending = state.Join.Pending()
	s.mu.Unlock()

	upd := feed.Update{Kind: feed.KindStatus, RunID: s.runID, CardID: s.cardID, Status: status}
	if err != nil {
		upd.Error = err.Error()
	}
	s.publisher.Publish(upd)

	return sum, err
}

func readLoop(conn Conn, q *eventQueue) {
	defer q.Close()
	for {
		text, err := conn.ReadMessage()
		if err != nil {
			if errors.Is(err, io.EOF) {
				q.Enqueue(event{Type: eventClosed})
			} else {
				q.Enqueue(event{Type: eventFailed, Err: err})
			}
			return
		}
		if !q.Enqueue(event{Type: eventFrame, Frame: text}) {
			return
		}
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
