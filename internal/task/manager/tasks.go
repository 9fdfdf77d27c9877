package manager

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"lightup/internal/alarm"
	"lightup/internal/eventbus"
	"lightup/internal/task/runner"
	logx "lightup/pkg/logx"
)

// startTaskLocked starts a task for an active alarm. Callers hold m.mu and
// have checked that no task exists for the id.
func (m *Manager) startTaskLocked(a *alarm.Alarm) error {
	if m.noTasks || m.closed || !a.IsActive() {
		return nil
	}
	opts := []runner.Option{
		runner.WithGuard(m.guard),
		runner.WithClock(m.clock),
		runner.WithInterval(m.interval),
		runner.WithLogger(m.log.With(logx.String("comp", "task"))),
	}
	if m.spawn != nil {
		opts = append(opts, runner.WithSpawner(m.spawn))
	}
	if fn := m.offsetAlert(); fn != nil {
		// Tasks always carry the offset callback so a later settings change
		// can enable the offset alarm; 0 keeps it off.
		off := m.offsetLocked()
		if _, err := a.Offset(off); err != nil {
			m.log.Warn("offset alarm skipped", logx.Int64("alarm_id", a.ID()), logx.Int("offset", off), logx.Err(err))
			off = 0
		}
		opts = append(opts, runner.WithOffset(off, fn))
	}

	t, err := runner.New(a, m.primaryAlert(), opts...)
	if err != nil {
		return err
	}
	if err := t.Start(m.ctx); err != nil {
		return err
	}
	m.tasks[a.ID()] = t
	m.bus.Publish(eventbus.Event{Type: eventbus.TaskStarted, AlarmID: a.ID(), Data: a.Clone()})
	return nil
}

func (m *Manager) primaryAlert() runner.AlertFunc {
	return func(ctx context.Context, f runner.Firing) error {
		m.bus.Publish(eventbus.Event{Type: eventbus.Fired, Time: f.At, AlarmID: f.Alarm.ID(), Data: f})
		if m.alert == nil {
			return nil
		}
		return m.alert(ctx, f)
	}
}

func (m *Manager) offsetAlert() runner.AlertFunc {
	fn, typ := m.pre, eventbus.Prealert
	if fn == nil {
		fn, typ = m.post, eventbus.Postalert
	}
	if fn == nil {
		return nil
	}
	return func(ctx context.Context, f runner.Firing) error {
		m.bus.Publish(eventbus.Event{Type: typ, Time: f.At, AlarmID: f.Alarm.ID(), Data: f})
		return fn(ctx, f)
	}
}

// syncTask brings the task for a in line with it: stop it when a is no
// longer active, hand it the new snapshot when alive, replace it when dead,
// or start one when missing. It never leaves two tasks for one id.
func (m *Manager) syncTask(ctx context.Context, a *alarm.Alarm) error {
	id := a.ID()
	m.mu.Lock()
	t := m.tasks[id]
	switch {
	case t != nil && !a.IsActive():
		m.mu.Unlock()
		return m.stopTask(ctx, id, t)
	case t != nil && t.IsAlive():
		err := t.Edit(a)
		m.mu.Unlock()
		return err
	case t != nil:
		delete(m.tasks, id)
		m.log.Warn("replacing dead task", logx.Int64("alarm_id", id))
	}
	err := m.startTaskLocked(a)
	m.mu.Unlock()
	return err
}

// stopTask stops t and waits for it up to the single-task timeout. The map
// entry is dropped only once the task has exited; a task that outlives the
// wait stays visible to reconciliation.
func (m *Manager) stopTask(ctx context.Context, id int64, t *runner.Task) error {
	t.Stop()
	wctx, cancel := context.WithTimeout(ctx, m.stopTimeout)
	err := t.Wait(wctx)
	cancel()

	m.mu.Lock()
	if err == nil && m.tasks[id] == t {
		delete(m.tasks, id)
	}
	m.mu.Unlock()

	if err != nil {
		m.log.Warn("task did not stop in time", logx.Int64("alarm_id", id), logx.Duration("timeout", m.stopTimeout))
		return err
	}
	m.bus.Publish(eventbus.Event{Type: eventbus.TaskStopped, AlarmID: id})
	return nil
}

// stopAll stops every task in parallel within the stop-all timeout.
func (m *Manager) stopAll(ctx context.Context) error {
	m.mu.Lock()
	tasks := make(map[int64]*runner.Task, len(m.tasks))
	for id, t := range m.tasks {
		tasks[id] = t
		t.Stop()
	}
	m.mu.Unlock()
	if len(tasks) == 0 {
		return nil
	}

	wctx, cancel := context.WithTimeout(ctx, m.stopAllTimeout)
	defer cancel()
	var g errgroup.Group
	for _, t := range tasks {
		t := t
		g.Go(func() error { return t.Wait(wctx) })
	}
	waitErr := g.Wait()

	alive := 0
	m.mu.Lock()
	for id, t := range tasks {
		if t.IsAlive() {
			alive++
			continue
		}
		if m.tasks[id] == t {
			delete(m.tasks, id)
		}
		m.bus.Publish(eventbus.Event{Type: eventbus.TaskStopped, AlarmID: id})
	}
	m.mu.Unlock()

	if waitErr != nil || alive > 0 {
		return alarm.Wrap(alarm.ErrTimeout, errors.Join(waitErr, fmt.Errorf("%d tasks alive", alive)),
			"stop all tasks within %s", m.stopAllTimeout)
	}
	m.log.Debug("all tasks stopped", logx.Int("count", len(tasks)))
	return nil
}

// applyOffset re-derives the offset alarm of every live task.
func (m *Manager) applyOffset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.offsetAlert() == nil {
		return
	}
	off := m.offsetLocked()
	for id, t := range m.tasks {
		if err := t.SetOffset(off); err != nil {
			m.log.Warn("offset not applied", logx.Int64("alarm_id", id), logx.Int("offset", off), logx.Err(err))
		}
	}
}
