package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/stonefire/cloudsync/internal/credentials"
	"github.com/stonefire/cloudsync/internal/engine"
	"github.com/stonefire/cloudsync/internal/syncerr"
)

type State int32

const (
	StateWaiting State = iota
	StateRunning
)

func (s State) String() string {
	if s == StateRunning {
		return "running"
	}
	return "waiting"
}

// Runner runs one sync pass.
type Runner interface {
	RunPass(ctx context.Context) (*engine.PassReport, error)
}

type Config struct {
	At         TimeOfDay
	RunOnStart bool
}

// Scheduler runs a pass once a day at a fixed local time. A failed pass is
// logged and retried at the next wake; it never stops the loop.
type Scheduler struct {
	runner     Runner
	at         TimeOfDay
	runOnStart bool
	state      atomic.Int32
	now        func() time.Time
}

func New(runner Runner, cfg *Config) *Scheduler {
	return &Scheduler{
		runner:     runner,
		at:         cfg.At,
		runOnStart: cfg.RunOnStart,
		now:        time.Now,
	}
}

func (s *Scheduler) State() State {
	return State(s.state.Load())
}

// Run blocks until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	slog.Info("scheduler start", "at", s.at.String(), "runOnStart", s.runOnStart)
	defer slog.Info("scheduler stop")

	if s.runOnStart {
		s.RunOnce(ctx)
	}

	for {
		wake := NextWake(s.now(), s.at)
		slog.Info("next sync pass", "at", wake.Format(time.RFC3339), "in", wake.Sub(s.now()).Round(time.Second))

		// timer, not ticker: a long pass must not queue up extra wakes
		timer := time.NewTimer(wake.Sub(s.now()))
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}

		s.RunOnce(ctx)
	}
}

// RunOnce runs one pass and classifies its outcome. It returns the pass error, already logged.
func (s *Scheduler) RunOnce(ctx context.Context) error {
	s.state.Store(int32(StateRunning))
	defer s.state.Store(int32(StateWaiting))

	report, err := s.runner.RunPass(ctx)
	switch {
	case err == nil:
		slog.Info("sync pass complete", "report", report)
	case ctx.Err() != nil && errors.Is(err, ctx.Err()):
		slog.Info("sync pass interrupted", "error", err)
	case errors.Is(err, engine.ErrPassAlreadyRunning):
		slog.Info("sync pass skipped, previous pass still running")
	case errors.Is(err, credentials.ErrRefreshRejected):
		slog.Warn("refresh token rejected, re-authorization required", "error", err, "notify", true)
	default:
		slog.Error("sync pass failed", "stage", engine.StageOf(err), "kind", syncerr.KindOf(err), "error", err, "report", report)
	}
	return err
}
