package supervisor

import (
	"context"
	"errors"
	"strconv"
	"sync/atomic"
	"testing"
	"time"
)

func TestGoRecoversPanic(t *testing.T) {
	s := New(context.Background())
	s.Go0("boom", func(context.Context) { panic("kaboom") })

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	err := s.Wait(ctx)
	if err == nil {
		t.Fatal("Wait error = nil, want panic error")
	}

	snap := s.Snapshot()
	if len(snap.Goroutines) != 1 || snap.Goroutines[0].Panics != 1 {
		t.Fatalf("snapshot = %+v, want one panic for boom", snap.Goroutines)
	}
	if snap.FirstError == "" {
		t.Fatal("FirstError empty")
	}
}

func TestCancelOnError(t *testing.T) {
	s := New(context.Background(), WithCancelOnError(true))
	stopped := make(chan struct{})
	s.Go0("waiter", func(ctx context.Context) {
		<-ctx.Done()
		close(stopped)
	})
	s.Go("failer", func(context.Context) error { return errors.New("fatal") })

	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("context not cancelled after error")
	}
}

func TestCanceledIsClean(t *testing.T) {
	s := New(context.Background())
	s.Go("loop", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.Stop(ctx); err != nil {
		t.Fatalf("Stop = %v, want nil", err)
	}
	if c := s.Counters(); c.Active != 0 || c.Started != 1 {
		t.Fatalf("Counters = %+v", c)
	}
}

func TestGoRestartRetriesUntilSuccess(t *testing.T) {
	s := New(context.Background())
	var runs atomic.Int32
	s.GoRestart("flaky", func(context.Context) error {
		if runs.Add(1) < 3 {
			return errors.New("transient")
		}
		return nil
	}, WithRestartBackoff(time.Millisecond, 5*time.Millisecond))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.Wait(ctx); err != nil {
		t.Fatalf("Wait = %v", err)
	}
	if runs.Load() != 3 {
		t.Fatalf("runs = %d, want 3", runs.Load())
	}
	for _, g := range s.Snapshot().Goroutines {
		if g.Name == "flaky" && g.Restarts != 2 {
			t.Fatalf("restarts = %d, want 2", g.Restarts)
		}
	}
}

func TestGoRestartGivesUp(t *testing.T) {
	s := New(context.Background())
	s.GoRestart("broken", func(context.Context) error { panic("always") },
		WithRestartBackoff(time.Millisecond, time.Millisecond),
		WithMaxRestarts(2),
		WithFatalOnFinalError(true),
	)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.Wait(ctx); err == nil {
		t.Fatal("Wait = nil, want final error")
	}
}

func TestStatsArePruned(t *testing.T) {
	s := New(context.Background())
	for i := range maxIdleStats + 20 {
		s.Go0("alarm."+strconv.Itoa(i), func(context.Context) {})
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.Wait(ctx); err != nil {
		t.Fatal(err)
	}
	if n := len(s.Snapshot().Goroutines); n > maxIdleStats {
		t.Fatalf("stats entries = %d, want <= %d", n, maxIdleStats)
	}
}
