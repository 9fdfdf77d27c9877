package manager

import (
	"context"
	"errors"

	"lightup/internal/alarm"
	"lightup/internal/eventbus"
	"lightup/internal/task/runner"
	logx "lightup/pkg/logx"
)

// Drift is one discrepancy found by CheckTasksState.
type Drift struct {
	AlarmID int64  `json:"alarm_id"`
	Reason  string `json:"reason"`
}

const (
	DriftMissing   = "missing task"
	DriftDead      = "dead task"
	DriftStale     = "stale snapshot"
	DriftInactive  = "task for inactive alarm"
	DriftOrphan    = "orphan task"
	DriftRestarted = "restarted after recount"
)

// Report is the outcome of a reconciliation pass.
type Report struct {
	Clean    bool    `json:"clean"`
	Expected int     `json:"expected"`
	Running  int     `json:"running"`
	Drift    []Drift `json:"drift,omitempty"`
}

// CheckTasksState compares the persisted alarms with the live tasks and
// repairs what it can: missing or dead tasks are started, stale snapshots
// are refreshed, tasks for inactive or deleted alarms are stopped. If the
// live count still differs from the active count, the missing tasks are
// restarted once more from a fresh read. It returns true only when nothing
// needed fixing; an error means the drift could not be repaired.
func (m *Manager) CheckTasksState(ctx context.Context) (bool, error) {
	rep, err := m.Reconcile(ctx)
	return rep.Clean, err
}

// Reconcile is CheckTasksState with the full report.
func (m *Manager) Reconcile(ctx context.Context) (Report, error) {
	if m.noTasks {
		return Report{Clean: true}, nil
	}
	all, err := m.store.AllAlarms(ctx)
	if err != nil {
		return Report{}, err
	}
	persisted := make(map[int64]*alarm.Alarm, len(all))
	for _, a := range all {
		persisted[a.ID()] = a
	}

	var (
		rep    Report
		toStop = map[int64]*runner.Task{}
		errs   []error
	)
	note := func(id int64, reason string) {
		rep.Drift = append(rep.Drift, Drift{AlarmID: id, Reason: reason})
	}

	m.mu.Lock()
	for _, a := range all {
		id := a.ID()
		t := m.tasks[id]
		if !a.IsActive() {
			if t != nil {
				note(id, DriftInactive)
				toStop[id] = t
			}
			continue
		}
		rep.Expected++
		switch {
		case t == nil:
			note(id, DriftMissing)
			errs = append(errs, m.startTaskLocked(a))
		case !t.IsAlive():
			note(id, DriftDead)
			delete(m.tasks, id)
			errs = append(errs, m.startTaskLocked(a))
		case !t.Alarm().Equal(a):
			note(id, DriftStale)
			errs = append(errs, t.Edit(a))
		}
	}
	for id, t := range m.tasks {
		if _, ok := persisted[id]; !ok {
			note(id, DriftOrphan)
			toStop[id] = t
		}
	}
	m.mu.Unlock()

	for id, t := range toStop {
		errs = append(errs, m.stopTask(ctx, id, t))
	}

	rep.Running = m.liveCount()
	if rep.Running < rep.Expected {
		// Fewer tasks than active alarms after the repair pass: read the
		// store again and start whatever is still missing.
		errs = append(errs, m.restartMissing(ctx, &rep))
		rep.Running = m.liveCount()
	}

	rep.Clean = len(rep.Drift) == 0
	for _, d := range rep.Drift {
		m.bus.Publish(eventbus.Event{Type: eventbus.Drift, AlarmID: d.AlarmID, Data: d})
		m.log.Warn("task drift repaired", logx.Int64("alarm_id", d.AlarmID), logx.String("reason", d.Reason))
	}
	m.bus.Publish(eventbus.Event{Type: eventbus.Reconciled, Data: rep})

	repairErr := errors.Join(errs...)
	if rep.Running != rep.Expected {
		rep.Clean = false
		err := alarm.Wrap(alarm.ErrInconsistent, errors.Join(repairErr, errors.New("live task count differs from active alarms")),
			"%d tasks running for %d active alarms", rep.Running, rep.Expected)
		m.log.Error("reconciliation failed", logx.Int("running", rep.Running), logx.Int("expected", rep.Expected), logx.Err(err))
		return rep, err
	}
	if repairErr != nil {
		rep.Clean = false
		return rep, alarm.Wrap(alarm.ErrInconsistent, repairErr, "reconciliation repairs failed")
	}
	return rep, nil
}

func (m *Manager) restartMissing(ctx context.Context, rep *Report) error {
	active, err := m.store.ActiveAlarms(ctx)
	if err != nil {
		return err
	}
	rep.Expected = len(active)
	var errs []error
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range active {
		t := m.tasks[a.ID()]
		if t != nil && t.IsAlive() {
			continue
		}
		if t != nil {
			delete(m.tasks, a.ID())
		}
		rep.Drift = append(rep.Drift, Drift{AlarmID: a.ID(), Reason: DriftRestarted})
		errs = append(errs, m.startTaskLocked(a))
	}
	return errors.Join(errs...)
}

func (m *Manager) liveCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, t := range m.tasks {
		if t.IsAlive() {
			n++
		}
	}
	return n
}
