package retention

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// EventPruner deletes journal events created before a cutoff.
type EventPruner interface {
	PruneEvents(ctx context.Context, before time.Time) (int, error)
}

// Scheduler runs journal pruning on a cron schedule.
type Scheduler struct {
	pruner    EventPruner
	retention time.Duration
	schedule  string
	logger    *slog.Logger
	now       func() time.Time

	mu      sync.Mutex
	cron    *cron.Cron
	running bool
}

// New creates a scheduler that deletes events older than retention. A zero
// retention keeps events forever. An empty schedule disables Start but
// RunOnce still works.
func New(p EventPruner, retention time.Duration, schedule string, logger *slog.Logger) (*Scheduler, error) {
	if retention < 0 {
		return nil, fmt.Errorf("retention must not be negative, got %s", retention)
	}
	if schedule != "" {
		if _, err := cron.ParseStandard(schedule); err != nil {
			return nil, fmt.Errorf("invalid cron schedule %q: %w", schedule, err)
		}
	}
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	return &Scheduler{
		pruner:    p,
		retention: retention,
		schedule:  schedule,
		logger:    logger,
		now:       time.Now,
		cron:      cron.New(),
	}, nil
}

// RunOnce deletes every event older than the retention window and returns
// how many were removed.
func (s *Scheduler) RunOnce(ctx context.Context) (int, error) {
	if s.retention == 0 {
		return 0, nil
	}
	cutoff := s.now().UTC().Add(-s.retention)
	n, err := s.pruner.PruneEvents(ctx, cutoff)
	if err != nil {
		pruneErrorsTotal.Inc()
		return 0, fmt.Errorf("prune before %s: %w", cutoff.Format(time.RFC3339), err)
	}
	prunedTotal.Add(float64(n))
	return n, nil
}

// Start schedules pruning and returns immediately. Jobs run with ctx, and
// cancelling it stops the scheduler.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.schedule == "" || s.retention == 0 {
		s.logger.Info("retention: pruning disabled")
		return nil
	}
	if s.running {
		return fmt.Errorf("retention scheduler already running")
	}

	if _, err := s.cron.AddFunc(s.schedule, func() { s.run(ctx) }); err != nil {
		return fmt.Errorf("schedule pruning: %w", err)
	}
	s.cron.Start()
	s.running = true

	s.logger.Info("retention: scheduler started",
		"schedule", s.schedule,
		"retention", s.retention.String(),
	)

	go func() {
		<-ctx.Done()
		s.Stop()
	}()
	return nil
}

func (s *Scheduler) run(ctx context.Context) {
	n, err := s.RunOnce(ctx)
	if err != nil {
		s.logger.Error("retention: scheduled pruning failed", "error", err)
		return
	}
	if n > 0 {
		s.logger.Info("retention: pruned journal", "deleted", n)
	} else {
		s.logger.Debug("retention: nothing to prune")
	}
}

// Stop halts the scheduler and waits for a running job to finish. It is
// safe to call more than once.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return
	}
	<-s.cron.Stop().Done()
	s.running = false
	s.logger.Info("retention: scheduler stopped")
}

// Running reports whether the scheduler has been started and not stopped.
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// NextRun returns when pruning runs next, or false when nothing is
// scheduled.
func (s *Scheduler) NextRun() (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return time.Time{}, false
	}
	entries := s.cron.Entries()
	if len(entries) == 0 {
		return time.Time{}, false
	}
	return entries[0].Next, true
}
