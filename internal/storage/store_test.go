package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lightup/internal/alarm"
	logx "lightup/pkg/logx"
)

type driverCase struct {
	name string
	open func(t *testing.T) Store
}

func drivers() []driverCase {
	return []driverCase{
		{"memory", func(t *testing.T) Store { return NewMemory() }},
		{"file", func(t *testing.T) Store {
			st, err := Open(Config{Driver: "file", Path: filepath.Join(t.TempDir(), "alarms.json")}, logx.Nop())
			require.NoError(t, err)
			return st
		}},
		{"sqlite", func(t *testing.T) Store {
			st, err := Open(Config{Driver: "sqlite", Path: filepath.Join(t.TempDir(), "lightup.db")}, logx.Nop())
			require.NoError(t, err)
			return st
		}},
		{"postgres", func(t *testing.T) Store {
			dsn := os.Getenv("LIGHTUP_TEST_PG_DSN")
			if dsn == "" {
				t.Skip("LIGHTUP_TEST_PG_DSN not set")
			}
			st, err := Open(Config{Driver: "postgres", DSN: dsn, ConnectAttempts: 1}, logx.Nop())
			require.NoError(t, err)
			_, err = st.DeleteAllAlarms(context.Background())
			require.NoError(t, err)
			require.NoError(t, st.ResetSettings(context.Background()))
			return st
		}},
	}
}

func forEachDriver(t *testing.T, fn func(t *testing.T, st Store)) {
	for _, d := range drivers() {
		d := d
		t.Run(d.name, func(t *testing.T) {
			st := d.open(t)
			t.Cleanup(func() { _ = st.Close() })
			fn(t, st)
		})
	}
}

func TestStoreAddAndGet(t *testing.T) {
	forEachDriver(t, func(t *testing.T, st Store) {
		ctx := context.Background()
		in := alarm.MustNew(9, 30, alarm.Days(alarm.Monday, alarm.Thursday), true, alarm.WithLabel("gym"))

		got, err := st.AddAlarm(ctx, in)
		require.NoError(t, err)
		require.True(t, got.HasID())
		assert.NotZero(t, got.Timestamp())
		assert.False(t, in.HasID(), "caller's alarm must not be mutated")

		back, err := st.Alarm(ctx, got.ID())
		require.NoError(t, err)
		assert.True(t, back.Equal(got), "got %v, want %v", back, got)
		assert.Equal(t, "gym", back.Label())

		second, err := st.AddAlarm(ctx, alarm.MustNew(6, 0, alarm.Weekend, false, alarm.WithTimestamp(42)))
		require.NoError(t, err)
		assert.Greater(t, second.ID(), got.ID())
		assert.Greater(t, second.Timestamp(), int64(42), "write time replaces the caller's timestamp")

		n, err := st.CountAlarms(ctx)
		require.NoError(t, err)
		assert.Equal(t, 2, n)

		_, err = st.Alarm(ctx, second.ID()+100)
		assert.ErrorIs(t, err, ErrNotFound)
		assert.True(t, alarm.IsCode(err, alarm.ErrNotFound))
	})
}

func TestStoreFilters(t *testing.T) {
	forEachDriver(t, func(t *testing.T, st Store) {
		ctx := context.Background()
		active, err := st.AddAlarm(ctx, alarm.MustNew(7, 0, alarm.Weekdays, true))
		require.NoError(t, err)
		_, err = st.AddAlarm(ctx, alarm.MustNew(8, 0, alarm.Repeat{}, true))
		require.NoError(t, err)
		disabled, err := st.AddAlarm(ctx, alarm.MustNew(9, 0, alarm.EveryDay, false))
		require.NoError(t, err)

		all, err := st.AllAlarms(ctx)
		require.NoError(t, err)
		require.Len(t, all, 3)
		for i := 1; i < len(all); i++ {
			assert.Less(t, all[i-1].ID(), all[i].ID())
		}

		act, err := st.ActiveAlarms(ctx)
		require.NoError(t, err)
		require.Len(t, act, 1)
		assert.Equal(t, active.ID(), act[0].ID())

		dis, err := st.DisabledAlarms(ctx)
		require.NoError(t, err)
		require.Len(t, dis, 1)
		assert.Equal(t, disabled.ID(), dis[0].ID())
	})
}

func TestStoreEditPartialFailure(t *testing.T) {
	forEachDriver(t, func(t *testing.T, st Store) {
		ctx := context.Background()
		a, err := st.AddAlarm(ctx, alarm.MustNew(7, 0, alarm.Weekdays, true))
		require.NoError(t, err)

		got, err := st.EditAlarm(ctx, a.ID(), alarm.Patch{Hour: alarm.Ref(25), Minute: alarm.Ref(45)})
		require.Error(t, err)
		assert.True(t, alarm.IsCode(err, alarm.ErrInvalid))
		require.NotNil(t, got)
		assert.Equal(t, 7, got.Hour())
		assert.Equal(t, 45, got.Minute())
		assert.Equal(t, a.Timestamp(), got.Timestamp(), "timestamp only moves on a clean edit")

		back, err := st.Alarm(ctx, a.ID())
		require.NoError(t, err)
		assert.Equal(t, 45, back.Minute())

		got, err = st.EditAlarm(ctx, a.ID(), alarm.Patch{Enabled: alarm.Ref(false), Label: alarm.Ref("off")})
		require.NoError(t, err)
		assert.False(t, got.Enabled())
		assert.Equal(t, "off", got.Label())
		assert.GreaterOrEqual(t, got.Timestamp(), a.Timestamp())

		_, err = st.EditAlarm(ctx, a.ID()+100, alarm.Patch{Hour: alarm.Ref(1)})
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestStoreDelete(t *testing.T) {
	forEachDriver(t, func(t *testing.T, st Store) {
		ctx := context.Background()
		a, err := st.AddAlarm(ctx, alarm.MustNew(7, 0, alarm.Weekdays, true))
		require.NoError(t, err)
		_, err = st.AddAlarm(ctx, alarm.MustNew(8, 0, alarm.Weekdays, true))
		require.NoError(t, err)

		require.NoError(t, st.DeleteAlarm(ctx, a.ID()))
		assert.ErrorIs(t, st.DeleteAlarm(ctx, a.ID()), ErrNotFound)

		n, err := st.DeleteAllAlarms(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, n)

		count, err := st.CountAlarms(ctx)
		require.NoError(t, err)
		assert.Zero(t, count)

		// Ids are not reused after a delete.
		b, err := st.AddAlarm(ctx, alarm.MustNew(9, 0, alarm.Weekdays, true))
		require.NoError(t, err)
		assert.Greater(t, b.ID(), a.ID()+1)
	})
}

func TestStoreSettings(t *testing.T) {
	forEachDriver(t, func(t *testing.T, st Store) {
		ctx := context.Background()
		s, err := st.Settings(ctx)
		require.NoError(t, err)
		assert.Equal(t, DefaultSettings(), s)

		require.NoError(t, st.SetSnoozeMinutes(ctx, 5))
		require.NoError(t, st.SetPrealertMinutes(ctx, 0))
		err = st.SetPrealertMinutes(ctx, -1)
		assert.True(t, alarm.IsCode(err, alarm.ErrInvalid))

		s, err = st.Settings(ctx)
		require.NoError(t, err)
		assert.Equal(t, Settings{SnoozeMinutes: 5, PrealertMinutes: 0}, s)

		require.NoError(t, st.ResetSettings(ctx))
		s, err = st.Settings(ctx)
		require.NoError(t, err)
		assert.Equal(t, DefaultSettings(), s)
	})
}

func TestStoreDedupAndAudit(t *testing.T) {
	forEachDriver(t, func(t *testing.T, st Store) {
		ctx := context.Background()
		until := time.Now().Add(time.Hour).Truncate(time.Millisecond)
		require.NoError(t, st.PutDedup(ctx, "alarm:1:primary", until))

		got, ok, err := st.GetDedup(ctx, "alarm:1:primary")
		require.NoError(t, err)
		require.True(t, ok)
		assert.True(t, got.Equal(until), "got %v, want %v", got, until)

		_, ok, err = st.GetDedup(ctx, "missing")
		require.NoError(t, err)
		assert.False(t, ok)

		require.NoError(t, st.AppendAudit(ctx, AuditEntry{Source: "test", Action: "alarm.add", AlarmID: 1, OK: true}))
	})
}

func TestFileStoreSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "state", "alarms.json")
	cfg := Config{Driver: "file", Path: path}

	st, err := Open(cfg, logx.Nop())
	require.NoError(t, err)
	a, err := st.AddAlarm(ctx, alarm.MustNew(22, 15, alarm.Days(alarm.Friday), true, alarm.WithLabel("late")))
	require.NoError(t, err)
	require.NoError(t, st.SetSnoozeMinutes(ctx, 9))
	require.NoError(t, st.AppendAudit(ctx, AuditEntry{Source: "test", Action: "alarm.add", OK: true}))
	require.NoError(t, st.Close())

	st, err = Open(cfg, logx.Nop())
	require.NoError(t, err)
	defer st.Close()

	back, err := st.Alarm(ctx, a.ID())
	require.NoError(t, err)
	assert.True(t, back.Equal(a))
	s, err := st.Settings(ctx)
	require.NoError(t, err)
	assert.Equal(t, 9, s.SnoozeMinutes)

	b, err := st.AddAlarm(ctx, alarm.MustNew(5, 0, alarm.EveryDay, true))
	require.NoError(t, err)
	assert.Greater(t, b.ID(), a.ID())

	audit, err := os.ReadFile(filepath.Join(filepath.Dir(path), "alarms.audit.jsonl"))
	require.NoError(t, err)
	assert.Contains(t, string(audit), `"action":"alarm.add"`)
}

func TestMemoryClosed(t *testing.T) {
	st := NewMemory()
	require.NoError(t, st.Close())
	_, err := st.AllAlarms(context.Background())
	assert.ErrorIs(t, err, ErrClosed)
}

func TestMemoryAuditRetained(t *testing.T) {
	st := NewMemory()
	ctx := WithSource(context.Background(), "cli")
	require.NoError(t, st.AppendAudit(ctx, AuditEntry{Source: SourceFrom(ctx), Action: "settings.snooze", OK: true}))
	entries := st.Audit()
	require.Len(t, entries, 1)
	assert.Equal(t, "cli", entries[0].Source)
	assert.False(t, entries[0].At.IsZero())
	assert.Equal(t, "internal", SourceFrom(context.Background()))
}

func TestOpenUnknownDriver(t *testing.T) {
	_, err := Open(Config{Driver: "oracle"}, logx.Nop())
	assert.True(t, alarm.IsCode(err, alarm.ErrInvalid))
}

func TestMemoryStampsEveryWrite(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	clock := time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return clock }

	a, err := m.AddAlarm(ctx, alarm.MustNew(7, 0, alarm.Weekdays, true, alarm.WithTimestamp(42)))
	require.NoError(t, err)
	assert.Equal(t, clock.Unix(), a.Timestamp())

	clock = clock.Add(time.Hour)
	_, err = m.EditAlarm(ctx, a.ID(), alarm.Patch{Hour: alarm.Ref(25)})
	require.Error(t, err)
	back, err := m.Alarm(ctx, a.ID())
	require.NoError(t, err)
	assert.Equal(t, a.Timestamp(), back.Timestamp())

	got, err := m.EditAlarm(ctx, a.ID(), alarm.Patch{Hour: alarm.Ref(6)})
	require.NoError(t, err)
	assert.Equal(t, clock.Unix(), got.Timestamp())
}
