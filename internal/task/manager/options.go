package manager

import (
	"time"

	"lightup/internal/eventbus"
	"lightup/internal/task/runner"
	logx "lightup/pkg/logx"
)

const (
	DefaultStopTimeout    = 10 * time.Second
	DefaultStopAllTimeout = 15 * time.Second
)

type Option func(*Manager)

func WithLogger(log logx.Logger) Option { return func(m *Manager) { m.log = log } }

func WithBus(b eventbus.Bus) Option { return func(m *Manager) { m.bus = b } }

func WithClock(c runner.Clock) Option { return func(m *Manager) { m.clock = c } }

// WithPollInterval sets how often each task reads the clock.
func WithPollInterval(d time.Duration) Option { return func(m *Manager) { m.interval = d } }

// WithStopTimeouts bounds the wait for one task and for all tasks to stop.
func WithStopTimeouts(one, all time.Duration) Option {
	return func(m *Manager) {
		if one > 0 {
			m.stopTimeout = one
		}
		if all > 0 {
			m.stopAllTimeout = all
		}
	}
}

// WithSeed controls whether an empty store gets the two demo alarms.
func WithSeed(enabled bool) Option { return func(m *Manager) { m.seed = enabled } }

// WithPrealert fires fn prealert_minutes before every alarm. The offset
// follows the stored setting.
func WithPrealert(fn runner.AlertFunc) Option { return func(m *Manager) { m.pre = fn } }

// WithPostalert fires fn minutes after every alarm. It is ignored when a
// prealert callback is set.
func WithPostalert(minutes int, fn runner.AlertFunc) Option {
	return func(m *Manager) {
		m.postMinutes = minutes
		m.post = fn
	}
}

func WithGuard(g *runner.Guard) Option { return func(m *Manager) { m.guard = g } }

// WithSpawner runs task loops through s, typically a supervisor.
func WithSpawner(s runner.Spawner) Option { return func(m *Manager) { m.spawn = s } }

// WithoutTasks makes the manager a pure store front: no task is ever
// started. One-shot CLI commands use it.
func WithoutTasks() Option { return func(m *Manager) { m.noTasks = true } }
