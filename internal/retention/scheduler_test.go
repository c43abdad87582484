package retention

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	"github.com/seantiz/gradbridge/internal/model"
	"github.com/seantiz/gradbridge/internal/store"
)

type fakePruner struct {
	mu      sync.Mutex
	cutoffs []time.Time
	n       int
	err     error
}

func (f *fakePruner) PruneEvents(_ context.Context, before time.Time) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cutoffs = append(f.cutoffs, before)
	return f.n, f.err
}

func (f *fakePruner) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.cutoffs)
}

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var m dto.Metric
	if err := c.Write(&m); err != nil {
		t.Fatalf("read counter: %v", err)
	}
	return m.GetCounter().GetValue()
}

func TestNewRejectsBadSchedule(t *testing.T) {
	if _, err := New(&fakePruner{}, time.Hour, "every tuesday", nil); err == nil {
		t.Error("New with bad schedule: want error")
	}
	if _, err := New(&fakePruner{}, -time.Hour, "", nil); err == nil {
		t.Error("New with negative retention: want error")
	}
}

func TestRunOnceUsesRetentionCutoff(t *testing.T) {
	p := &fakePruner{n: 3}
	s, err := New(p, 24*time.Hour, "", nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	before := counterValue(t, prunedTotal)
	n, err := s.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if n != 3 {
		t.Errorf("RunOnce = %d, want 3", n)
	}
	if want := now.Add(-24 * time.Hour); !p.cutoffs[0].Equal(want) {
		t.Errorf("cutoff = %v, want %v", p.cutoffs[0], want)
	}
	if got := counterValue(t, prunedTotal) - before; got != 3 {
		t.Errorf("pruned counter delta = %v, want 3", got)
	}
}

func TestRunOnceZeroRetentionKeepsEverything(t *testing.T) {
	p := &fakePruner{}
	s, err := New(p, 0, "", nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if n, err := s.RunOnce(context.Background()); n != 0 || err != nil {
		t.Errorf("RunOnce = %d, %v; want 0, nil", n, err)
	}
	if p.calls() != 0 {
		t.Errorf("store called %d times, want 0", p.calls())
	}
}

func TestRunOnceError(t *testing.T) {
	p := &fakePruner{err: errors.New("disk full")}
	s, err := New(p, time.Hour, "", nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	before := counterValue(t, pruneErrorsTotal)
	if _, err := s.RunOnce(context.Background()); err == nil {
		t.Fatal("RunOnce: want error")
	}
	if got := counterValue(t, pruneErrorsTotal) - before; got != 1 {
		t.Errorf("error counter delta = %v, want 1", got)
	}
}

func TestStartDisabled(t *testing.T) {
	s, err := New(&fakePruner{}, time.Hour, "", nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if s.Running() {
		t.Error("Running() = true with no schedule")
	}
	if _, ok := s.NextRun(); ok {
		t.Error("NextRun reported a run with no schedule")
	}
}

func TestStartAndStop(t *testing.T) {
	s, err := New(&fakePruner{}, time.Hour, "0 3 * * *", nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := s.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := s.Start(ctx); err == nil {
		t.Error("second Start: want error")
	}
	if !s.Running() {
		t.Fatal("Running() = false after Start")
	}
	next, ok := s.NextRun()
	if !ok || next.Hour() != 3 || next.Minute() != 0 {
		t.Errorf("NextRun = %v, %v; want a 03:00 run", next, ok)
	}

	s.Stop()
	s.Stop()
	if s.Running() {
		t.Error("Running() = true after Stop")
	}
}

func TestCancelStopsScheduler(t *testing.T) {
	s, err := New(&fakePruner{}, time.Hour, "@every 1h", nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	if err := s.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	cancel()

	deadline := time.Now().Add(2 * time.Second)
	for s.Running() {
		if time.Now().After(deadline) {
			t.Fatal("scheduler still running after cancel")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestRunOnceAgainstJournal(t *testing.T) {
	db, err := store.NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)
	for _, age := range []time.Duration{10 * 24 * time.Hour, time.Hour} {
		e := &model.LifecycleEvent{
			ID:        model.NewID(),
			Kind:      model.EventGlobalTeardown,
			FromState: "active",
			ToState:   "globally_torn_down",
			CreatedAt: now.Add(-age),
		}
		if err := db.RecordEvent(ctx, e); err != nil {
			t.Fatalf("RecordEvent: %v", err)
		}
	}

	s, err := New(db, 7*24*time.Hour, "", nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	s.now = func() time.Time { return now }

	n, err := s.RunOnce(ctx)
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if n != 1 {
		t.Errorf("pruned %d, want 1", n)
	}
	stats, err := db.GetEventStats(ctx)
	if err != nil {
		t.Fatalf("GetEventStats: %v", err)
	}
	if stats.Total != 1 {
		t.Errorf("remaining = %d, want 1", stats.Total)
	}
}
