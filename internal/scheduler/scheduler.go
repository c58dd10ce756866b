// Package scheduler triggers periodic catalog refreshes.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// Scheduler wraps robfig/cron and tracks the next scheduled refresh.
type Scheduler struct {
	mu       sync.RWMutex
	c        *cron.Cron
	entryID  cron.EntryID
	cronExpr string
	timeout  time.Duration
}

// New creates a stopped Scheduler. Call Start to activate it.
// timeout bounds one scheduled refresh; zero means no limit.
func New(timeout time.Duration) *Scheduler {
	logger := cronLogger{l: slog.Default().With("component", "scheduler")}
	return &Scheduler{
		c: cron.New(cron.WithLogger(logger), cron.WithChain(
			cron.Recover(logger),
			cron.SkipIfStillRunning(logger),
		)),
		timeout: timeout,
	}
}

// SetRefresh replaces the refresh job. An empty expression removes it.
// If the scheduler is already running, the change takes effect immediately.
func (s *Scheduler) SetRefresh(expr string, fn func(context.Context) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if expr == "" {
		if s.entryID != 0 {
			s.c.Remove(s.entryID)
			s.entryID = 0
		}
		s.cronExpr = ""
		slog.Info("scheduler: refresh job removed")
		return nil
	}

	id, err := s.c.AddFunc(expr, func() { s.run(fn) })
	if err != nil {
		return fmt.Errorf("invalid cron expression %q: %w", expr, err)
	}
	if s.entryID != 0 {
		s.c.Remove(s.entryID)
	}
	s.entryID = id
	s.cronExpr = expr
	slog.Info("scheduler: refresh job set", "cron", expr)
	return nil
}

func (s *Scheduler) run(fn func(context.Context) error) {
	ctx := context.Background()
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	if err := fn(ctx); err != nil {
		slog.Error("scheduler: refresh failed", "error", err)
	}
}

// Start begins the cron loop.
func (s *Scheduler) Start() {
	s.c.Start()
}

// Stop halts the cron loop and waits for a running refresh to return.
func (s *Scheduler) Stop() {
	<-s.c.Stop().Done()
}

// NextRunAt returns the next scheduled time, or nil if no job is set or the
// scheduler has not been started.
func (s *Scheduler) NextRunAt() *time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.entryID == 0 {
		return nil
	}
	entry := s.c.Entry(s.entryID)
	if entry.ID == 0 || entry.Next.IsZero() {
		return nil
	}
	t := entry.Next
	return &t
}

// CronExpr returns the current cron expression.
func (s *Scheduler) CronExpr() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cronExpr
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
