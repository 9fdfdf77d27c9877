package manager

import (
	"context"
	"errors"
	"strings"
	"time"

	"lightup/internal/alarm"
	"lightup/internal/storage"
	logx "lightup/pkg/logx"
)

// AddAlarm validates and persists a new alarm and starts its task when it
// is active. It returns the stored alarm with its id and timestamp.
func (m *Manager) AddAlarm(ctx context.Context, hour, minute int, repeat alarm.Repeat, enabled bool, opts ...alarm.Option) (*alarm.Alarm, error) {
	start := time.Now()
	a, err := alarm.New(hour, minute, repeat, enabled, opts...)
	if err != nil {
		m.audit(ctx, "alarm.add", 0, start, err, "")
		return nil, err
	}
	stored, err := m.store.AddAlarm(ctx, a)
	if err != nil {
		m.audit(ctx, "alarm.add", 0, start, err, "")
		return nil, err
	}
	if err := m.syncTask(ctx, stored); err != nil {
		// The record is persisted; reconciliation retries the task.
		m.log.Error("task not started for new alarm", logx.Int64("alarm_id", stored.ID()), logx.Err(err))
	}
	m.audit(ctx, "alarm.add", stored.ID(), start, nil, stored.String())
	m.log.Info("alarm added", logx.Int64("alarm_id", stored.ID()), logx.String("alarm", stored.String()))
	return stored, nil
}

// EditAlarm writes each field of p to the store on its own. Fields that
// fail validation or persistence are reported in the joined error; the
// others stay applied. The task is synced with whatever was stored.
func (m *Manager) EditAlarm(ctx context.Context, id int64, p alarm.Patch) (*alarm.Alarm, error) {
	start := time.Now()
	meta := strings.Join(p.Fields(), ",")
	if _, err := m.store.Alarm(ctx, id); err != nil {
		m.audit(ctx, "alarm.edit", id, start, err, meta)
		return nil, err
	}

	var errs []error
	applied := 0
	for _, field := range p.Split() {
		if _, err := m.store.EditAlarm(ctx, id, field); err != nil {
			errs = append(errs, err)
			continue
		}
		applied++
	}
	editErr := errors.Join(errs...)

	cur, err := m.store.Alarm(ctx, id)
	if err != nil {
		err = errors.Join(editErr, err)
		m.audit(ctx, "alarm.edit", id, start, err, meta)
		return nil, err
	}
	if applied > 0 {
		if err := m.syncTask(ctx, cur); err != nil {
			editErr = errors.Join(editErr, err)
		}
	}
	m.audit(ctx, "alarm.edit", id, start, editErr, meta)
	if editErr != nil {
		m.log.Warn("alarm edit incomplete", logx.Int64("alarm_id", id), logx.Int("applied", applied), logx.Err(editErr))
	} else {
		m.log.Info("alarm edited", logx.Int64("alarm_id", id), logx.String("fields", meta))
	}
	return cur, editErr
}

// DeleteAlarm stops the alarm's task within the single-task timeout and
// removes the record. Both steps are attempted; either failing is reported.
func (m *Manager) DeleteAlarm(ctx context.Context, id int64) error {
	start := time.Now()
	var stopErr error
	m.mu.Lock()
	t := m.tasks[id]
	m.mu.Unlock()
	if t != nil {
		stopErr = m.stopTask(ctx, id, t)
	}
	err := errors.Join(stopErr, m.store.DeleteAlarm(ctx, id))
	m.audit(ctx, "alarm.delete", id, start, err, "")
	if err == nil {
		m.log.Info("alarm deleted", logx.Int64("alarm_id", id))
	}
	return err
}

// DeleteAllAlarms stops every task within the stop-all timeout and clears
// the store.
func (m *Manager) DeleteAllAlarms(ctx context.Context) error {
	start := time.Now()
	stopErr := m.stopAll(ctx)
	n, err := m.store.DeleteAllAlarms(ctx)
	err = errors.Join(stopErr, err)
	m.audit(ctx, "alarm.delete_all", 0, start, err, "")
	if err == nil {
		m.log.Info("all alarms deleted", logx.Int("count", n))
	}
	return err
}

func (m *Manager) Settings(ctx context.Context) (storage.Settings, error) {
	return m.store.Settings(ctx)
}

func (m *Manager) SetSnoozeMinutes(ctx context.Context, minutes int) error {
	start := time.Now()
	err := m.store.SetSnoozeMinutes(ctx, minutes)
	m.audit(ctx, "settings.snooze", 0, start, err, "")
	return err
}

// SetPrealertMinutes stores the setting and moves the offset alarm of every
// running task. It must stay below one day.
func (m *Manager) SetPrealertMinutes(ctx context.Context, minutes int) error {
	start := time.Now()
	err := checkPrealert(minutes)
	if err == nil {
		err = m.store.SetPrealertMinutes(ctx, minutes)
	}
	m.audit(ctx, "settings.prealert", 0, start, err, "")
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.prealert = minutes
	m.mu.Unlock()
	m.applyOffset()
	return nil
}

func (m *Manager) ResetSettings(ctx context.Context) error {
	start := time.Now()
	err := m.store.ResetSettings(ctx)
	m.audit(ctx, "settings.reset", 0, start, err, "")
	if err != nil {
		return err
	}
	s, err := m.store.Settings(ctx)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.prealert = s.PrealertMinutes
	m.mu.Unlock()
	m.applyOffset()
	return nil
}

func checkPrealert(minutes int) error {
	if minutes >= alarm.MinutesPerDay {
		return alarm.Errorf(alarm.ErrInvalid, "prealert must be under %d minutes, got %d", alarm.MinutesPerDay, minutes)
	}
	return nil
}

func (m *Manager) audit(ctx context.Context, action string, id int64, start time.Time, err error, meta string) {
	e := storage.AuditEntry{
		At:      time.Now(),
		Source:  storage.SourceFrom(ctx),
		Action:  action,
		AlarmID: id,
		OK:      err == nil,
		TookMS:  time.Since(start).Milliseconds(),
		Meta:    meta,
	}
	if err != nil {
		e.Error = err.Error()
	}
	if aerr := m.store.AppendAudit(context.WithoutCancel(ctx), e); aerr != nil {
		m.log.Warn("audit append failed", logx.String("action", action), logx.Err(aerr))
	}
}
