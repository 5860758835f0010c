package reconcile

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

type Scheduler struct {
	cron       *cron.Cron
	reconciler *Reconciler
	schedule   string
	timeout    time.Duration
}

func NewScheduler(r *Reconciler, schedule string) *Scheduler {
	logger := cronLogger{l: slog.Default().With("component", "cron")}
	return &Scheduler{
		cron:       cron.New(cron.WithLogger(logger), cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger))),
		reconciler: r,
		schedule:   schedule,
		timeout:    2 * time.Minute,
	}
}

// Start registers the reconcile job and starts the cron loop.
func (s *Scheduler) Start() error {
	_, err := s.cron.AddFunc(s.schedule, s.run)
	if err != nil {
		return err
	}
	slog.Info("reconcile scheduler started", "schedule", s.schedule)
	s.cron.Start()
	return nil
}

// Stop waits for a running pass to finish.
func (s *Scheduler) Stop(ctx context.Context) {
	done := s.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
	}
}

func (s *Scheduler) run() {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	res, err := s.reconciler.RunOnce(ctx)
	if err != nil {
		slog.Error("reconcile pass failed", "error", err)
		return
	}
	if res.Examined > 0 {
		slog.Info("reconcile pass finished", "examined", res.Examined, "rolled_back", res.RolledBack, "failed", res.Failed)
	}
}

// cronLogger adapts slog to cron.Logger.
type cronLogger struct {
	l *slog.Logger
}

func (c cronLogger) Info(msg string, keysAndValues ...interface{}) {
	c.l.Debug(msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	c.l.Error(msg, append(keysAndValues, "error", err)...)
}
