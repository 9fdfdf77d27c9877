package manager

import (
	"context"
	"testing"
	"time"

	"lightup/internal/alarm"
	"lightup/internal/eventbus"
	"lightup/internal/storage"
	"lightup/internal/task/runner"
)

func mustCheck(t *testing.T, m *Manager, want bool) {
	t.Helper()
	ok, err := m.CheckTasksState(context.Background())
	if err != nil {
		t.Fatalf("CheckTasksState() error: %v", err)
	}
	if ok != want {
		t.Fatalf("CheckTasksState() = %v, want %v", ok, want)
	}
}

func TestCheckTasksStateHeals(t *testing.T) {
	tests := []struct {
		name   string
		drift  func(t *testing.T, m *Manager, store storage.Store, id int64)
		reason string
		check  func(t *testing.T, m *Manager, id int64)
	}{
		{
			name: "disabled behind the manager's back",
			drift: func(t *testing.T, _ *Manager, store storage.Store, id int64) {
				if _, err := store.EditAlarm(context.Background(), id, alarm.Patch{Enabled: alarm.Ref(false)}); err != nil {
					t.Fatalf("store edit: %v", err)
				}
			},
			reason: DriftInactive,
			check: func(t *testing.T, m *Manager, id int64) {
				if m.IsAlarmRunning(id) {
					t.Fatalf("inactive alarm still running after reconcile")
				}
			},
		},
		{
			name: "task died",
			drift: func(t *testing.T, m *Manager, _ storage.Store, id int64) {
				m.mu.Lock()
				task := m.tasks[id]
				m.mu.Unlock()
				task.Stop()
				<-task.Done()
			},
			reason: DriftDead,
			check: func(t *testing.T, m *Manager, id int64) {
				if !m.IsAlarmRunning(id) {
					t.Fatalf("dead task not replaced")
				}
			},
		},
		{
			name: "task missing",
			drift: func(t *testing.T, m *Manager, _ storage.Store, id int64) {
				m.mu.Lock()
				task := m.tasks[id]
				delete(m.tasks, id)
				m.mu.Unlock()
				task.Stop()
			},
			reason: DriftMissing,
			check: func(t *testing.T, m *Manager, id int64) {
				if !m.IsAlarmRunning(id) {
					t.Fatalf("missing task not started")
				}
			},
		},
		{
			name: "record deleted behind the manager's back",
			drift: func(t *testing.T, _ *Manager, store storage.Store, id int64) {
				if err := store.DeleteAlarm(context.Background(), id); err != nil {
					t.Fatalf("store delete: %v", err)
				}
			},
			reason: DriftOrphan,
			check: func(t *testing.T, m *Manager, id int64) {
				if m.IsAlarmRunning(id) {
					t.Fatalf("orphan task still running")
				}
			},
		},
		{
			name: "record edited behind the manager's back",
			drift: func(t *testing.T, _ *Manager, store storage.Store, id int64) {
				if _, err := store.EditAlarm(context.Background(), id, alarm.Patch{Minute: alarm.Ref(45)}); err != nil {
					t.Fatalf("store edit: %v", err)
				}
			},
			reason: DriftStale,
			check: func(t *testing.T, m *Manager, id int64) {
				running := m.RunningAlarms()
				if len(running) != 2 {
					t.Fatalf("RunningAlarms() = %v, want 2", running)
				}
				for _, a := range running {
					if a.ID() == id && a.Minute() != 45 {
						t.Fatalf("task snapshot = %v, want minute 45", a)
					}
				}
			},
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			ctx := context.Background()
			store := storage.NewMemory()
			bus := eventbus.New()
			drift, unsub := bus.Subscribe(8, eventbus.Drift)
			defer unsub()
			m := newManager(t, store, nil, WithBus(bus))

			a, err := m.AddAlarm(ctx, 7, 0, alarm.Weekdays, true)
			if err != nil {
				t.Fatalf("AddAlarm() error: %v", err)
			}
			if _, err := m.AddAlarm(ctx, 8, 0, alarm.Weekend, true); err != nil {
				t.Fatalf("AddAlarm() error: %v", err)
			}
			mustCheck(t, m, true)

			tt.drift(t, m, store, a.ID())
			mustCheck(t, m, false)
			tt.check(t, m, a.ID())
			mustCheck(t, m, true)

			select {
			case e := <-drift:
				d, _ := e.Data.(Drift)
				if e.AlarmID != a.ID() || d.Reason != tt.reason {
					t.Fatalf("drift event = %+v, want %q for alarm %d", e, tt.reason, a.ID())
				}
			case <-time.After(time.Second):
				t.Fatalf("no drift event published")
			}
		})
	}
}

func TestCheckTasksStateStartsAlarmAddedElsewhere(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemory()
	m := newManager(t, store, nil)
	mustCheck(t, m, true)

	a, err := store.AddAlarm(ctx, alarm.MustNew(6, 30, alarm.EveryDay, true))
	if err != nil {
		t.Fatalf("store add: %v", err)
	}
	rep, err := m.Reconcile(ctx)
	if err != nil {
		t.Fatalf("Reconcile() error: %v", err)
	}
	if rep.Clean || rep.Expected != 1 || rep.Running != 1 || len(rep.Drift) != 1 || rep.Drift[0].Reason != DriftMissing {
		t.Fatalf("Reconcile() = %+v, want one repaired missing task", rep)
	}
	if !m.IsAlarmRunning(a.ID()) {
		t.Fatalf("alarm added elsewhere not running")
	}
	mustCheck(t, m, true)
}

func TestCheckTasksStateReportsUnrepairable(t *testing.T) {
	ctx := context.Background()
	clock := runner.NewManualClock(at(1, 9, 30))
	release := make(chan struct{})
	defer close(release)
	entered := make(chan struct{}, 1)
	alert := func(context.Context, runner.Firing) error {
		select {
		case entered <- struct{}{}:
		default:
		}
		<-release
		return nil
	}
	store := storage.NewMemory()
	m := newManager(t, store, alert, WithClock(clock), WithStopTimeouts(10*time.Millisecond, 10*time.Millisecond))
	a, err := m.AddAlarm(ctx, 9, 30, alarm.EveryDay, true)
	if err != nil {
		t.Fatalf("AddAlarm() error: %v", err)
	}
	<-entered

	// The task is stuck in its callback, so it cannot be stopped.
	if _, err := store.EditAlarm(ctx, a.ID(), alarm.Patch{Enabled: alarm.Ref(false)}); err != nil {
		t.Fatalf("store edit: %v", err)
	}
	ok, err := m.CheckTasksState(ctx)
	if ok || !alarm.IsCode(err, alarm.ErrInconsistent) {
		t.Fatalf("CheckTasksState() = %v, %v, want false with inconsistent error", ok, err)
	}
}
