// Package manager keeps one polling task per active alarm in step with the
// persisted alarm collection.
//
// Every mutation goes to the store first and then to the task set. Tasks
// hold snapshots handed out by the manager, so the periodic reconciliation
// pass (CheckTasksState) is an audit that repairs drift caused by writes
// that bypassed the manager, e.g. another process sharing the database.
package manager

import (
	"context"
	"sort"
	"sync"
	"time"

	"lightup/internal/alarm"
	"lightup/internal/eventbus"
	"lightup/internal/storage"
	"lightup/internal/task/runner"
	logx "lightup/pkg/logx"
)

type Manager struct {
	store storage.Store
	alert runner.AlertFunc

	pre         runner.AlertFunc
	post        runner.AlertFunc
	postMinutes int

	guard          *runner.Guard
	clock          runner.Clock
	interval       time.Duration
	stopTimeout    time.Duration
	stopAllTimeout time.Duration
	log            logx.Logger
	bus            eventbus.Bus
	spawn          runner.Spawner
	seed           bool
	noTasks        bool

	// tasks run under ctx, which lives until Close.
	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	tasks    map[int64]*runner.Task
	prealert int
	closed   bool
}

// New builds a manager over store, seeds the demo alarms into an empty store
// and starts a task for every active alarm. alert may be nil.
func New(ctx context.Context, store storage.Store, alert runner.AlertFunc, opts ...Option) (*Manager, error) {
	if store == nil {
		return nil, alarm.Errorf(alarm.ErrInvalid, "manager needs a store")
	}
	m := &Manager{
		store:          store,
		alert:          alert,
		clock:          runner.SystemClock{},
		interval:       runner.DefaultInterval,
		stopTimeout:    DefaultStopTimeout,
		stopAllTimeout: DefaultStopAllTimeout,
		bus:            eventbus.Nop{},
		seed:           true,
		tasks:          map[int64]*runner.Task{},
	}
	for _, o := range opts {
		if o != nil {
			o(m)
		}
	}
	if m.log.IsZero() {
		m.log = logx.Nop()
	}
	m.log = m.log.With(logx.String("comp", "manager"))
	if m.guard == nil {
		m.guard = runner.NewGuard()
	}
	if m.bus == nil {
		m.bus = eventbus.Nop{}
	}
	m.ctx, m.cancel = context.WithCancel(context.Background())

	if m.seed {
		if err := m.seedDemo(ctx); err != nil {
			m.cancel()
			return nil, err
		}
	}
	settings, err := store.Settings(ctx)
	if err != nil {
		m.cancel()
		return nil, err
	}
	m.prealert = settings.PrealertMinutes

	if m.noTasks {
		return m, nil
	}
	active, err := store.ActiveAlarms(ctx)
	if err != nil {
		m.cancel()
		return nil, err
	}
	m.mu.Lock()
	for _, a := range active {
		if err := m.startTaskLocked(a); err != nil {
			m.log.Error("task not started", logx.Int64("alarm_id", a.ID()), logx.Err(err))
		}
	}
	n := len(m.tasks)
	m.mu.Unlock()
	m.log.Info("alarm manager ready", logx.Int("running", n), logx.Int("prealert", m.prealert))
	return m, nil
}

func (m *Manager) seedDemo(ctx context.Context) error {
	n, err := m.store.CountAlarms(ctx)
	if err != nil || n > 0 {
		return err
	}
	demo := []*alarm.Alarm{
		alarm.MustNew(7, 10, alarm.Weekdays, false, alarm.WithLabel("Weekdays")),
		alarm.MustNew(10, 30, alarm.Weekend, false, alarm.WithLabel("Weekend")),
	}
	for _, a := range demo {
		if _, err := m.store.AddAlarm(ctx, a); err != nil {
			return err
		}
	}
	m.log.Info("seeded demo alarms", logx.Int("count", len(demo)))
	return nil
}

// Close stops every task, waiting up to the stop-all timeout. The store is
// left open.
func (m *Manager) Close(ctx context.Context) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.mu.Unlock()

	err := m.stopAll(ctx)
	m.cancel()
	return err
}

func (m *Manager) Store() storage.Store { return m.store }

func (m *Manager) AllAlarms(ctx context.Context) ([]*alarm.Alarm, error) {
	return m.store.AllAlarms(ctx)
}

func (m *Manager) ActiveAlarms(ctx context.Context) ([]*alarm.Alarm, error) {
	return m.store.ActiveAlarms(ctx)
}

func (m *Manager) DisabledAlarms(ctx context.Context) ([]*alarm.Alarm, error) {
	return m.store.DisabledAlarms(ctx)
}

func (m *Manager) Alarm(ctx context.Context, id int64) (*alarm.Alarm, error) {
	return m.store.Alarm(ctx, id)
}

func (m *Manager) NumberOfAlarms(ctx context.Context) (int, error) {
	return m.store.CountAlarms(ctx)
}

// NextAlarm returns the active alarm that fires soonest from now, and the
// minutes until it does. It returns a nil alarm when nothing is active.
func (m *Manager) NextAlarm(ctx context.Context) (*alarm.Alarm, int, error) {
	return m.NextAlarmAt(ctx, m.clock.Now())
}

// NextAlarmAt is NextAlarm against a fixed reference time. Ties go to the
// alarm listed first.
func (m *Manager) NextAlarmAt(ctx context.Context, t time.Time) (*alarm.Alarm, int, error) {
	active, err := m.store.ActiveAlarms(ctx)
	if err != nil {
		return nil, 0, err
	}
	var (
		best    *alarm.Alarm
		bestMin int
	)
	for _, a := range active {
		mins, ok := a.MinutesToAlertAt(t)
		if !ok {
			continue
		}
		if best == nil || mins < bestMin {
			best, bestMin = a, mins
		}
	}
	return best, bestMin, nil
}

// IsAlarmRunning reports whether a live task exists for id.
func (m *Manager) IsAlarmRunning(id int64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[id]
	return ok && t.IsAlive()
}

// RunningAlarms returns the alarms of all live tasks ordered by id, as the
// tasks currently see them.
func (m *Manager) RunningAlarms() []*alarm.Alarm {
	m.mu.Lock()
	out := make([]*alarm.Alarm, 0, len(m.tasks))
	for _, t := range m.tasks {
		if t.IsAlive() {
			out = append(out, t.Alarm())
		}
	}
	m.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
	return out
}

// Offset returns the shift applied to new tasks' offset alarms, 0 if none.
func (m *Manager) Offset() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.offsetLocked()
}

func (m *Manager) offsetLocked() int {
	switch {
	case m.pre != nil:
		return -m.prealert
	case m.post != nil:
		return m.postMinutes
	default:
		return 0
	}
}

// MinutesToNext returns the minutes from t until the soonest active alarm
// fires. ok is false when no alarm is active.
func (m *Manager) MinutesToNext(ctx context.Context, t time.Time) (minutes int, ok bool, err error) {
	a, mins, err := m.NextAlarmAt(ctx, t)
	if err != nil || a == nil {
		return 0, false, err
	}
	return mins, true, nil
}
