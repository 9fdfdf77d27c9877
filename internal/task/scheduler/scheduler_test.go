package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"lightup/internal/alarm"
	"lightup/internal/task/manager"
	logx "lightup/pkg/logx"
)

func TestAddCronValidation(t *testing.T) {
	s := New(Config{}, logx.Nop())
	noop := func(context.Context) error { return nil }

	if err := s.AddCron("", "@hourly", 0, noop); err == nil {
		t.Fatal("empty name accepted")
	}
	if err := s.AddCron("x", "@hourly", 0, nil); err == nil {
		t.Fatal("nil job accepted")
	}
	if err := s.AddCron("x", "every hour", 0, noop); err == nil {
		t.Fatal("bad spec accepted")
	}
	if err := s.AddCron("x", "0 * * * *", 0, noop); err != nil {
		t.Fatalf("AddCron = %v", err)
	}
	if err := s.AddCron("x", "@every 1m", 0, noop); err != nil {
		t.Fatalf("AddCron replace = %v", err)
	}
	if n := len(s.Snapshot().Schedules); n != 1 {
		t.Fatalf("schedules = %d, want 1 after replace", n)
	}
	if err := s.AddCron("x", DisabledSpec, 0, noop); err != nil {
		t.Fatalf("AddCron disabled = %v", err)
	}
	if n := len(s.Snapshot().Schedules); n != 0 {
		t.Fatalf("schedules = %d, want 0 after disabling", n)
	}
}

func TestJobRunsOnSchedule(t *testing.T) {
	s := New(Config{Timezone: "UTC"}, logx.Nop())
	var runs atomic.Int32
	if err := s.AddCron("tick", "@every 1s", time.Second, func(context.Context) error {
		runs.Add(1)
		return nil
	}); err != nil {
		t.Fatal(err)
	}
	s.Start(context.Background())
	defer s.Stop(context.Background())

	snap := s.Snapshot()
	if !snap.Running || snap.Timezone != "UTC" || snap.Schedules[0].Next.IsZero() {
		t.Fatalf("snapshot = %+v", snap)
	}

	deadline := time.Now().Add(5 * time.Second)
	for runs.Load() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("job never ran")
		}
		time.Sleep(20 * time.Millisecond)
	}
}

func TestWrapSkipsOverlapAndRecordsErrors(t *testing.T) {
	s := New(Config{}, logx.Nop())
	release := make(chan struct{})
	started := make(chan struct{})
	d := &scheduleDef{name: "slow", stats: &runStats{}, job: func(context.Context) error {
		close(started)
		<-release
		return errors.New("boom")
	}}
	job := s.wrap(d)

	done := make(chan struct{})
	go func() {
		job.Run()
		close(done)
	}()
	<-started
	job.Run() // overlaps, skipped
	close(release)
	<-done

	d.stats.mu.Lock()
	defer d.stats.mu.Unlock()
	if d.stats.runs != 1 || d.stats.skipped != 1 || d.stats.lastErr != "boom" {
		t.Fatalf("stats = runs %d skipped %d err %q", d.stats.runs, d.stats.skipped, d.stats.lastErr)
	}
}

func TestWrapAppliesTimeout(t *testing.T) {
	s := New(Config{}, logx.Nop())
	var got error
	d := &scheduleDef{name: "bounded", timeout: 10 * time.Millisecond, stats: &runStats{}, job: func(ctx context.Context) error {
		<-ctx.Done()
		got = ctx.Err()
		return got
	}}
	s.wrap(d).Run()
	if !errors.Is(got, context.DeadlineExceeded) {
		t.Fatalf("job ctx err = %v, want deadline exceeded", got)
	}
}

type fakeReconciler struct {
	rep manager.Report
	err error
}

func (f fakeReconciler) Reconcile(context.Context) (manager.Report, error) { return f.rep, f.err }

type fakeNext struct {
	a    *alarm.Alarm
	mins int
}

func (f fakeNext) NextAlarm(context.Context) (*alarm.Alarm, int, error) { return f.a, f.mins, nil }

func TestJobs(t *testing.T) {
	ctx := context.Background()
	if err := Reconcile(fakeReconciler{rep: manager.Report{Clean: true}}, logx.Nop())(ctx); err != nil {
		t.Fatalf("clean reconcile = %v", err)
	}
	drift := manager.Report{Drift: []manager.Drift{{AlarmID: 1, Reason: manager.DriftMissing}}}
	if err := Reconcile(fakeReconciler{rep: drift}, logx.Nop())(ctx); err != nil {
		t.Fatalf("repaired reconcile = %v", err)
	}
	if err := Reconcile(fakeReconciler{err: alarm.Errorf(alarm.ErrInconsistent, "still off")}, logx.Nop())(ctx); err == nil {
		t.Fatal("failed reconcile returned nil")
	}

	if err := Heartbeat(fakeNext{}, logx.Nop())(ctx); err != nil {
		t.Fatal(err)
	}
	a := alarm.MustNew(6, 0, alarm.EveryDay, true, alarm.WithID(9))
	if err := Heartbeat(fakeNext{a: a, mins: 30}, logx.Nop())(ctx); err != nil {
		t.Fatal(err)
	}
}
