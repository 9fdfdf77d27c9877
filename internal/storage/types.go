package storage

import (
	"context"
	"errors"
	"time"

	"lightup/internal/alarm"
)

var (
	// ErrNotFound is returned for an unknown alarm id.
	ErrNotFound = &alarm.Error{Code: alarm.ErrNotFound, Description: "alarm not found"}
	ErrClosed   = errors.New("storage closed")
)

const (
	DefaultSnoozeMinutes   = 3
	DefaultPrealertMinutes = 15
)

// Config configures storage.
type Config struct {
	Driver string
	// Path is the database or snapshot file for sqlite and file.
	Path string
	// DSN is the postgres connection string.
	DSN         string
	BusyTimeout time.Duration // sqlite only; 0 means default
	// ConnectAttempts bounds postgres connection retries at startup.
	ConnectAttempts int
	ConnectDelay    time.Duration
}

// Settings are the global alarm settings.
type Settings struct {
	SnoozeMinutes   int `json:"snooze_minutes"`
	PrealertMinutes int `json:"prealert_minutes"`
}

func DefaultSettings() Settings {
	return Settings{SnoozeMinutes: DefaultSnoozeMinutes, PrealertMinutes: DefaultPrealertMinutes}
}

// AuditEntry records an operator action.
type AuditEntry struct {
	At      time.Time `json:"at"`
	Source  string    `json:"source"`
	Action  string    `json:"action"`
	AlarmID int64     `json:"alarm_id,omitempty"`
	OK      bool      `json:"ok"`
	Error   string    `json:"error,omitempty"`
	TookMS  int64     `json:"took_ms"`
	Meta    string    `json:"meta,omitempty"`
}

// AlarmStore is the alarm collection.
type AlarmStore interface {
	// AllAlarms returns every alarm ordered by id.
	AllAlarms(ctx context.Context) ([]*alarm.Alarm, error)
	// ActiveAlarms returns the enabled alarms with at least one repeat day.
	ActiveAlarms(ctx context.Context) ([]*alarm.Alarm, error)
	// DisabledAlarms returns the alarms with enabled unset.
	DisabledAlarms(ctx context.Context) ([]*alarm.Alarm, error)
	Alarm(ctx context.Context, id int64) (*alarm.Alarm, error)
	CountAlarms(ctx context.Context) (int, error)
	// AddAlarm stores a copy of a under a fresh id. A zero timestamp is
	// replaced with the current time. The stored copy is returned.
	AddAlarm(ctx context.Context, a *alarm.Alarm) (*alarm.Alarm, error)
	// EditAlarm applies every valid field of p. Invalid fields keep their
	// stored value and are reported in the joined error. The timestamp is
	// refreshed only when every field applied.
	EditAlarm(ctx context.Context, id int64, p alarm.Patch) (*alarm.Alarm, error)
	DeleteAlarm(ctx context.Context, id int64) error
	// DeleteAllAlarms returns the number of removed alarms.
	DeleteAllAlarms(ctx context.Context) (int, error)
}

// SettingsStore holds the single settings row.
type SettingsStore interface {
	Settings(ctx context.Context) (Settings, error)
	SetSnoozeMinutes(ctx context.Context, minutes int) error
	SetPrealertMinutes(ctx context.Context, minutes int) error
	ResetSettings(ctx context.Context) error
}

// Store is the full persistence API.
type Store interface {
	AlarmStore
	SettingsStore

	AppendAudit(ctx context.Context, e AuditEntry) error
	PutDedup(ctx context.Context, key string, until time.Time) error
	GetDedup(ctx context.Context, key string) (until time.Time, ok bool, err error)
	Close() error
}

type sourceKey struct{}

// WithSource tags ctx with the presentation layer acting on the store
// ("http", "cli", "telegram"). It ends up in audit entries.
func WithSource(ctx context.Context, source string) context.Context {
	return context.WithValue(ctx, sourceKey{}, source)
}

// SourceFrom returns the tag set by WithSource, or "internal".
func SourceFrom(ctx context.Context) string {
	if s, ok := ctx.Value(sourceKey{}).(string); ok && s != "" {
		return s
	}
	return "internal"
}
