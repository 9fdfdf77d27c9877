package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lightup/internal/alarm"
	"lightup/internal/task/runner"
	logx "lightup/pkg/logx"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "lightup.yaml")
	require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
	return p
}

const memoryConfig = `
logging:
  level: error
storage:
  driver: memory
scheduler:
  poll_interval: 20ms
  reconcile: "-"
  heartbeat: "-"
http:
  enabled: false
  addr: 127.0.0.1:0
systemd:
  enabled: false
`

func startApp(t *testing.T, body string) *App {
	t.Helper()
	a, err := New(writeConfig(t, body))
	require.NoError(t, err)
	require.NoError(t, a.Start(context.Background()))
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = a.Stop(ctx, StopAppStop)
	})
	return a
}

func TestStartSeedsAndRunsDemoAlarms(t *testing.T) {
	a := startApp(t, memoryConfig)
	all, err := a.Manager().AllAlarms(context.Background())
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "Weekdays", all[0].Label())
	assert.Equal(t, "Weekend", all[1].Label())
	// Demo alarms are seeded disabled.
	assert.Empty(t, a.Manager().RunningAlarms())

	_, err = a.Manager().EditAlarm(context.Background(), all[0].ID(), alarm.Patch{Enabled: alarm.Ref(true)})
	require.NoError(t, err)
	assert.Eventually(t, func() bool { return a.Manager().IsAlarmRunning(all[0].ID()) }, 2*time.Second, 10*time.Millisecond)

	health := a.Health()
	assert.Contains(t, health, "app")
	assert.Contains(t, health, "notifier")
}

func TestAlertQueuesNotification(t *testing.T) {
	a := startApp(t, memoryConfig)
	al := alarm.MustNew(7, 30, alarm.Weekdays, true, alarm.WithID(9), alarm.WithLabel("Work"))
	f := runner.Firing{ID: "9-1", Kind: runner.KindPrimary, Alarm: al, At: time.Now()}

	require.NoError(t, a.alert("alarm")(context.Background(), f))
	assert.Eventually(t, func() bool {
		for _, h := range a.notif.History() {
			if h.FiringID == "9-1" && h.Error == "" {
				return true
			}
		}
		return false
	}, 2*time.Second, 10*time.Millisecond)
}

func TestApplyReloadsJobsAndLogging(t *testing.T) {
	a := startApp(t, memoryConfig)
	prev := a.cfgm.Get()
	next := *prev
	next.Scheduler.Reconcile = "@every 1m"
	next.Logging.Level = "debug"

	a.apply(prev, &next)
	snap := a.sched.Snapshot()
	names := make([]string, 0, len(snap.Schedules))
	for _, s := range snap.Schedules {
		names = append(names, s.Name)
	}
	assert.Contains(t, names, "alarms.reconcile")
}

func TestOneshotNeverStartsTasks(t *testing.T) {
	p := writeConfig(t, memoryConfig)
	ctx := context.Background()
	o, err := OpenOneshot(ctx, p, logx.Nop())
	require.NoError(t, err)
	defer func() { _ = o.Close(ctx) }()

	a, err := o.Manager.AddAlarm(ctx, 6, 0, alarm.EveryDay, true)
	require.NoError(t, err)
	assert.False(t, o.Manager.IsAlarmRunning(a.ID()))
	assert.Empty(t, o.Manager.RunningAlarms())
	assert.Equal(t, "memory", o.Config.Storage.Driver)
}
