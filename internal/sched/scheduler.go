// Package sched runs the coach's three cadences: the fast perception loop,
// the slow periodic scout action, and the reasoning loop that fires on state
// change. Reasoning is single-flight with last-value replay: while a pass is
// in flight, any number of newer snapshots collapse into one follow-up pass
// over the latest state.
package sched

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/zkH2O/tftcoach/internal/capture"
	"github.com/zkH2O/tftcoach/internal/logging"
	"github.com/zkH2O/tftcoach/internal/reason"
	"github.com/zkH2O/tftcoach/internal/state"
)

type reasonState int

const (
	stateIdle reasonState = iota
	stateInFlight
	statePendingReplay
)

// Hooks are the scheduler's attachment points. Every hook is required
// except Scout and Deliver.
type Hooks struct {
	// Frame runs one perception iteration: wait for a frame, detect,
	// resolve, fold into the aggregator.
	Frame func(ctx context.Context) error

	// Scout fires the periodic opponent-board check.
	Scout func(ctx context.Context) error

	// Advise runs one reasoning pass over a snapshot.
	Advise func(ctx context.Context, snap *state.Snapshot) (*reason.Advice, error)

	// Deliver hands finished advice to the player.
	Deliver func(ctx context.Context, advice *reason.Advice) error
}

// Scheduler coordinates the cadences over one aggregator.
type Scheduler struct {
	agg         *state.Aggregator
	hooks       Hooks
	scoutPeriod time.Duration

	mu    sync.Mutex
	rstat reasonState
	wg    sync.WaitGroup // tracks the in-flight reasoning goroutine
}

// New creates a scheduler. scoutPeriod <= 0 disables the scout cadence.
func New(agg *state.Aggregator, hooks Hooks, scoutPeriod time.Duration) *Scheduler {
	return &Scheduler{agg: agg, hooks: hooks, scoutPeriod: scoutPeriod}
}

// Run drives all cadences until ctx is cancelled or the frame source is
// exhausted. It returns only after every loop and any in-flight reasoning
// pass has finished.
func (s *Scheduler) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error { return s.frameLoop(ctx) })
	if s.scoutPeriod > 0 && s.hooks.Scout != nil {
		g.Go(func() error { return s.scoutLoop(ctx) })
	}
	g.Go(func() error { return s.reasonLoop(ctx) })

	err := g.Wait()
	s.wg.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// frameLoop runs perception back to back; pacing lives in the frame source.
// Per-frame errors are logged and skipped, source exhaustion is terminal.
func (s *Scheduler) frameLoop(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := s.hooks.Frame(ctx)
		switch {
		case err == nil:
		case errors.Is(err, capture.ErrSourceExhausted):
			logging.Scheduler("frame source exhausted, stopping")
			return err
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			return err
		default:
			logging.Scheduler("frame skipped: %v", err)
		}
	}
}

func (s *Scheduler) scoutLoop(ctx context.Context) error {
	ticker := time.NewTicker(s.scoutPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := s.hooks.Scout(ctx); err != nil {
				logging.Scheduler("scout skipped: %v", err)
			}
		}
	}
}

// reasonLoop converts change notifications into single-flight reasoning.
func (s *Scheduler) reasonLoop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.agg.Changed():
			s.trigger(ctx)
		}
	}
}

// trigger starts a reasoning pass, or marks one pending if a pass is
// already in flight. Consecutive triggers while in flight coalesce: only
// the latest snapshot is ever replayed.
func (s *Scheduler) trigger(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.rstat {
	case stateIdle:
		s.rstat = stateInFlight
		s.launch(ctx)
	case stateInFlight, statePendingReplay:
		s.rstat = statePendingReplay
		logging.SchedulerDebug("reasoning busy, replay pending")
	}
}

// launch starts the invoke goroutine. Caller holds s.mu.
func (s *Scheduler) launch(ctx context.Context) {
	snap := s.agg.Current()
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		advice, err := s.hooks.Advise(ctx, snap)
		s.onComplete(ctx, snap, advice, err)
	}()
}

// onComplete resolves one finished pass. A pending replay supersedes the
// result: the advice is stale by version and dropped, and a fresh pass
// starts over the latest snapshot. A failed pass always lands in Idle, even
// with a replay pending: failures are reported, never retried.
func (s *Scheduler) onComplete(ctx context.Context, snap *state.Snapshot, advice *reason.Advice, err error) {
	s.mu.Lock()
	replay := err == nil && s.rstat == statePendingReplay && ctx.Err() == nil
	if replay {
		s.rstat = stateInFlight
		s.launch(ctx)
	} else {
		s.rstat = stateIdle
	}
	s.mu.Unlock()

	if err != nil {
		logging.Scheduler("reasoning pass for v%d failed: %v", snap.Version, err)
		return
	}
	// Stale by version: a newer snapshot exists, so either a replay just
	// launched or its notification is still waiting in the channel. Either
	// way a fresh pass covers it; this result is dropped.
	if latest := s.agg.Current().Version; snap.Version < latest {
		logging.Scheduler("discarding stale advice for v%d, current is v%d", snap.Version, latest)
		return
	}
	if replay {
		return
	}
	if s.hooks.Deliver == nil {
		return
	}
	if err := s.hooks.Deliver(ctx, advice); err != nil {
		logging.Scheduler("advice delivery failed: %v", err)
	}
}
