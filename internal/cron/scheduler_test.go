package cron

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

// yearly never fires during a test run.
const yearly = "0 0 1 1 *"

func counting(name string, calls *atomic.Int32, err error) Func {
	return Func{JobName: name, Expr: yearly, Fn: func(context.Context) error {
		calls.Add(1)
		return err
	}}
}

func TestScheduler_RegisterJob(t *testing.T) {
	t.Parallel()

	s := NewScheduler(slog.Default())
	if err := s.RegisterJob(&SessionSweepJob{}); err != nil {
		t.Fatalf("RegisterJob: %v", err)
	}
	if err := s.RegisterJob(&SessionSweepJob{ScheduleExpr: "*/5 * * * *"}); err == nil {
		t.Error("duplicate name should fail")
	}
	err := s.RegisterJob(&EmbeddingBackfillJob{ScheduleExpr: "every tuesday"})
	if err == nil || !strings.Contains(err.Error(), "embedding_backfill") {
		t.Errorf("bad schedule error = %v, want it to name the job", err)
	}
	if got := len(s.Status()); got != 1 {
		t.Errorf("Status has %d jobs, want 1", got)
	}
}

func TestParseSchedule(t *testing.T) {
	t.Parallel()
	for _, expr := range []string{"* * * * *", "*/10 * * * *", "@hourly", "0 3 * * 1-5"} {
		if _, err := ParseSchedule(expr); err != nil {
			t.Errorf("ParseSchedule(%q): %v", expr, err)
		}
	}
	for _, expr := range []string{"", "60 * * * *", "0 25 * * *", "* * * * * *"} {
		if _, err := ParseSchedule(expr); err == nil {
			t.Errorf("ParseSchedule(%q) accepted", expr)
		}
	}
}

func TestScheduler_StartStop(t *testing.T) {
	t.Parallel()

	s := NewScheduler(nil)
	var calls atomic.Int32
	_ = s.RegisterJob(counting("sweep", &calls, nil))

	if err := s.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := s.Start(); err == nil {
		t.Error("second Start should fail")
	}
	st := s.Status()
	if st[0].NextRun.IsZero() || st[0].NextRun.Year() < time.Now().Year() {
		t.Errorf("NextRun = %v", st[0].NextRun)
	}
	if err := s.Stop(context.Background()); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if err := s.Stop(context.Background()); err != nil {
		t.Errorf("second Stop: %v", err)
	}
	if calls.Load() != 0 {
		t.Errorf("yearly job ran %d times", calls.Load())
	}
}

func TestScheduler_StopWithoutStart(t *testing.T) {
	t.Parallel()
	if err := NewScheduler(nil).Stop(context.Background()); err != nil {
		t.Fatalf("Stop: %v", err)
	}
}

func TestScheduler_TriggerRecordsStatus(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	boom := errors.New("embedder down")
	s := NewScheduler(slog.Default())
	_ = s.RegisterJob(counting("embedding_backfill", &calls, boom))

	if err := s.Trigger(context.Background(), "embedding_backfill"); !errors.Is(err, boom) {
		t.Fatalf("Trigger = %v, want %v", err, boom)
	}
	if err := s.Trigger(context.Background(), "nope"); !errors.Is(err, ErrUnknownJob) {
		t.Errorf("Trigger(nope) = %v, want ErrUnknownJob", err)
	}

	st := s.Status()[0]
	if st.Runs != 1 || st.LastError != boom.Error() || st.LastRun.IsZero() || st.Running {
		t.Errorf("status = %+v", st)
	}
	if !st.NextRun.IsZero() {
		t.Errorf("NextRun = %v before Start", st.NextRun)
	}
}

func TestScheduler_NoOverlap(t *testing.T) {
	t.Parallel()

	started := make(chan struct{})
	release := make(chan struct{})
	s := NewScheduler(slog.Default())
	_ = s.RegisterJob(Func{JobName: "slow", Expr: yearly, Fn: func(context.Context) error {
		close(started)
		<-release
		return nil
	}})

	done := make(chan error, 1)
	go func() { done <- s.Trigger(context.Background(), "slow") }()
	<-started

	if err := s.Trigger(context.Background(), "slow"); !errors.Is(err, ErrJobBusy) {
		t.Errorf("concurrent Trigger = %v, want ErrJobBusy", err)
	}
	if s.run(context.Background(), s.byName["slow"]) {
		t.Error("scheduled tick ran while the job was busy")
	}
	if st := s.Status()[0]; !st.Running || st.Skipped != 1 {
		t.Errorf("status while busy = %+v", st)
	}

	close(release)
	if err := <-done; err != nil {
		t.Errorf("first Trigger = %v", err)
	}
	if st := s.Status()[0]; st.Running || st.Runs != 1 {
		t.Errorf("status after run = %+v", st)
	}
}

func TestScheduler_StopCancelsRunningJob(t *testing.T) {
	t.Parallel()

	started := make(chan struct{})
	var once atomic.Bool
	s := NewScheduler(slog.Default())
	_ = s.RegisterJob(Func{JobName: "sweep", Expr: "@every 1s", Fn: func(ctx context.Context) error {
		if once.CompareAndSwap(false, true) {
			close(started)
		}
		<-ctx.Done()
		return ctx.Err()
	}})
	if err := s.Start(); err != nil {
		t.Fatal(err)
	}

	select {
	case <-started:
	case <-time.After(5 * time.Second):
		t.Fatal("job never fired")
	}

	stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.Stop(stopCtx); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if st := s.Status()[0]; st.Runs != 1 || !strings.Contains(st.LastError, "canceled") {
		t.Errorf("status = %+v", st)
	}
}

func FuzzParseSchedule(f *testing.F) {
	for _, seed := range []string{"*/5 * * * *", "0 0 * * *", yearly, "@daily", "invalid", "", "60 * * * *"} {
		f.Add(seed)
	}
	f.Fuzz(func(t *testing.T, expr string) {
		sched, err := ParseSchedule(expr)
		if err == nil && sched == nil {
			t.Fatalf("ParseSchedule(%q) returned neither schedule nor error", expr)
		}
	})
}
