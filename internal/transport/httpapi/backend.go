package httpapi

import (
	"context"

	"lightup/internal/alarm"
	"lightup/internal/runtime/supervisor"
	"lightup/internal/storage"
	"lightup/internal/task/manager"
	"lightup/internal/task/scheduler"
)

// Alarms is the part of the manager the API drives.
type Alarms interface {
	AllAlarms(ctx context.Context) ([]*alarm.Alarm, error)
	ActiveAlarms(ctx context.Context) ([]*alarm.Alarm, error)
	RunningAlarms() []*alarm.Alarm
	NextAlarm(ctx context.Context) (*alarm.Alarm, int, error)
	Alarm(ctx context.Context, id int64) (*alarm.Alarm, error)
	AddAlarm(ctx context.Context, hour, minute int, repeat alarm.Repeat, enabled bool, opts ...alarm.Option) (*alarm.Alarm, error)
	EditAlarm(ctx context.Context, id int64, p alarm.Patch) (*alarm.Alarm, error)
	DeleteAlarm(ctx context.Context, id int64) error
	DeleteAllAlarms(ctx context.Context) error
	Settings(ctx context.Context) (storage.Settings, error)
	SetSnoozeMinutes(ctx context.Context, minutes int) error
	SetPrealertMinutes(ctx context.Context, minutes int) error
	Reconcile(ctx context.Context) (manager.Report, error)
}

// HealthFunc reports supervisor snapshots by component name.
type HealthFunc func() map[string]supervisor.Snapshot

// JobsFunc reports the periodic job schedule.
type JobsFunc func() scheduler.Snapshot

var _ Alarms = (*manager.Manager)(nil)
