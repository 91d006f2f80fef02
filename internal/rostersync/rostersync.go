// Package rostersync mirrors the results API's player list into the local
// store on a schedule, so check-ins and leaderboards can match records by
// user id without a manual import.
package rostersync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"

	"github.com/discroundup/roundup/internal/scorecard"
)

// DefaultInterval is how often Start syncs when no interval is given.
const DefaultInterval = 10 * time.Minute

// ErrRunning is returned by Start when the worker is already scheduled.
var ErrRunning = errors.New("roster sync already running")

// Source lists the players known to the results API.
type Source interface {
	FetchUsers(ctx context.Context) ([]scorecard.Player, error)
}

// Sink stores one player.
type Sink interface {
	UpsertPlayer(ctx context.Context, p scorecard.Player) (scorecard.Player, error)
}

// Result counts the outcome of one sync.
type Result struct {
	Fetched int `json:"fetched"`
	Saved   int `json:"saved"`
	Failed  int `json:"failed"`
}

// Worker pulls the roster from a Source into a Sink.
//
// Thread-safety: SyncOnce may run concurrently with a scheduled sync; Start
// and Stop are safe for concurrent use.
type Worker struct {
	src      Source
	sink     Sink
	interval time.Duration
	logger   *slog.Logger

	mu      sync.Mutex
	sched   gocron.Scheduler
	cancel  context.CancelFunc
	watched chan struct{}
	last    Result
}

// New creates a worker. A non-positive interval means DefaultInterval and a
// nil logger means slog.Default().
func New(src Source, sink Sink, interval time.Duration, logger *slog.Logger) *Worker {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Worker{src: src, sink: sink, interval: interval, logger: logger}
}

// SyncOnce fetches the roster and upserts every player with a username.
// A failed upsert is counted and logged; only a failed fetch is an error.
func (w *Worker) SyncOnce(ctx context.Context) (Result, error) {
	players, err := w.src.FetchUsers(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("fetch roster: %w", err)
	}

	res := Result{Fetched: len(players)}
	for _, p := range players {
		if p.Username == "" {
			res.Failed++
			w.logger.Warn("skipping player without username", "user_id", p.UserID)
			continue
		}
		if _, err := w.sink.UpsertPlayer(ctx, p); err != nil {
			res.Failed++
			w.logger.Warn("failed to save player", "username", p.Username, "error", err)
			continue
		}
		res.Saved++
	}

	w.mu.Lock()
	w.last = res
	w.mu.Unlock()
	return res, nil
}

// Last returns the result of the most recent successful sync.
func (w *Worker) Last() Result {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.last
}

// Start schedules a sync now and then every interval until ctx is done or
// Stop is called. A sync still running when the next is due is skipped.
func (w *Worker) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.sched != nil {
		return ErrRunning
	}

	sched, err := gocron.NewScheduler(gocron.WithLogger(w.logger))
	if err != nil {
		return fmt.Errorf("create scheduler: %w", err)
	}
	runCtx, cancel := context.WithCancel(ctx)

	_, err = sched.NewJob(
		gocron.DurationJob(w.interval),
		gocron.NewTask(func() {
			res, err := w.SyncOnce(runCtx)
			if err != nil {
				w.logger.Error("roster sync failed", "error", err)
				return
			}
			w.logger.Info("roster synced", "fetched", res.Fetched, "saved", res.Saved, "failed", res.Failed)
		}),
		gocron.WithName("roster-sync"),
		gocron.WithStartAt(gocron.WithStartImmediately()),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		cancel()
		_ = sched.Shutdown()
		return fmt.Errorf("schedule roster sync: %w", err)
	}

	sched.Start()
	watched := make(chan struct{})
	w.sched = sched
	w.cancel = cancel
	w.watched = watched

	go func() {
		defer close(watched)
		<-runCtx.Done()
		w.mu.Lock()
		current := w.sched == sched
		if current {
			w.sched = nil
			w.cancel = nil
			w.watched = nil
		}
		w.mu.Unlock()
		if current {
			_ = sched.Shutdown()
		}
	}()
	return nil
}

// Stop shuts the scheduler down, waiting for a running sync and for the
// goroutine watching Start's context. Stopping a worker that is not running
// is a no-op.
func (w *Worker) Stop() error {
	w.mu.Lock()
	sched, cancel, watched := w.sched, w.cancel, w.watched
	w.sched, w.cancel, w.watched = nil, nil, nil
	w.mu.Unlock()

	if sched == nil {
		return nil
	}
	cancel()
	err := sched.Shutdown()
	<-watched
	return err
}
