package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	logx "lightup/pkg/logx"
)

const (
	DefaultStorageDriver  = "sqlite"
	DefaultStoragePath    = "./lightup.db"
	DefaultPollInterval   = time.Second
	DefaultStopTimeout    = 10 * time.Second
	DefaultStopAllTimeout = 15 * time.Second
	DefaultReconcileSpec  = "@every 1m"
	DefaultHeartbeatSpec  = "@hourly"
	DefaultHTTPAddr       = "127.0.0.1:8080"
	DefaultNotifyWorkers  = 1
	DefaultNotifyQueue    = 64
	DefaultNotifyRate     = 1
	DefaultNotifyRetryMax = 2
	DefaultRetryBase      = 500 * time.Millisecond
	DefaultDedupWindow    = 2 * time.Minute
	DefaultTelegramPoll   = 10 * time.Second

	// DisabledSpec turns a periodic job off.
	DisabledSpec = "-"
)

// Default returns a config with every default filled in.
func Default() *Config {
	cfg := &Config{Logging: LoggingConfig{Console: true}}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	if strings.TrimSpace(c.Logging.Level) == "" {
		c.Logging.Level = "info"
	}
	if strings.TrimSpace(c.Storage.Driver) == "" {
		c.Storage.Driver = DefaultStorageDriver
	}
	if strings.TrimSpace(c.Storage.Path) == "" && c.Storage.Driver == DefaultStorageDriver {
		c.Storage.Path = DefaultStoragePath
	}
	s := &c.Scheduler
	if s.PollInterval == "" {
		s.PollInterval = DefaultPollInterval.String()
	}
	if s.StopTimeout == "" {
		s.StopTimeout = DefaultStopTimeout.String()
	}
	if s.StopAllTimeout == "" {
		s.StopAllTimeout = DefaultStopAllTimeout.String()
	}
	if s.Reconcile == "" {
		s.Reconcile = DefaultReconcileSpec
	}
	if s.Heartbeat == "" {
		s.Heartbeat = DefaultHeartbeatSpec
	}
	n := &c.Notifier
	if n.Workers <= 0 {
		n.Workers = DefaultNotifyWorkers
	}
	if n.QueueSize <= 0 {
		n.QueueSize = DefaultNotifyQueue
	}
	if n.RatePerSec <= 0 {
		n.RatePerSec = DefaultNotifyRate
	}
	if n.RetryMax == 0 {
		n.RetryMax = DefaultNotifyRetryMax
	}
	if c.HTTP.Addr == "" {
		c.HTTP.Addr = DefaultHTTPAddr
	}
}

// Validate reports every invalid field, joined.
func (c *Config) Validate() error {
	var errs []error
	add := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}

	if !logx.ValidLevel(c.Logging.Level) {
		add(fmt.Errorf("logging.level: unknown level %q", c.Logging.Level))
	}
	if c.Logging.Telegram.MinLevel != "" && !logx.ValidLevel(c.Logging.Telegram.MinLevel) {
		add(fmt.Errorf("logging.telegram.min_level: unknown level %q", c.Logging.Telegram.MinLevel))
	}

	switch strings.ToLower(strings.TrimSpace(c.Storage.Driver)) {
	case "memory", "mem", "none", "sqlite", "sqlite3":
	case "file":
		if strings.TrimSpace(c.Storage.Path) == "" {
			add(errors.New("storage.path: required for the file driver"))
		}
	case "postgres", "postgresql", "pg":
		if strings.TrimSpace(c.Storage.DSN) == "" {
			add(errors.New("storage.dsn: required for the postgres driver"))
		}
	default:
		add(fmt.Errorf("storage.driver: unknown driver %q", c.Storage.Driver))
	}
	_, err := ParseDurationField("storage.busy_timeout", c.Storage.BusyTimeout)
	add(err)
	_, err = ParseDurationField("storage.connect_delay", c.Storage.ConnectDelay)
	add(err)

	for path, raw := range map[string]string{
		"scheduler.poll_interval":    c.Scheduler.PollInterval,
		"scheduler.stop_timeout":     c.Scheduler.StopTimeout,
		"scheduler.stop_all_timeout": c.Scheduler.StopAllTimeout,
		"notifier.retry_base":        c.Notifier.RetryBase,
		"notifier.dedup_window":      c.Notifier.DedupWindow,
		"telegram.poll_timeout":      c.Telegram.PollTimeout,
		"http.read_timeout":          c.HTTP.ReadTimeout,
	} {
		_, err := ParseDurationField(path, raw)
		add(err)
	}
	add(validSpec("scheduler.reconcile", c.Scheduler.Reconcile))
	add(validSpec("scheduler.heartbeat", c.Scheduler.Heartbeat))
	if _, err := c.Scheduler.Location(); err != nil {
		add(fmt.Errorf("scheduler.timezone: %w", err))
	}

	if m := c.Alarms.PostalertMinutes; m < 0 || m >= 24*60 {
		add(fmt.Errorf("alarms.postalert_minutes: %d out of range [0, 1439]", m))
	}
	if c.Notifier.RetryMax < 0 {
		add(errors.New("notifier.retry_max: must be >= 0"))
	}
	if c.Logging.Telegram.RatePerSec < 0 {
		add(errors.New("logging.telegram.rate_per_sec: must be >= 0"))
	}
	if c.HTTP.IsEnabled() && strings.TrimSpace(c.HTTP.Addr) == "" {
		add(errors.New("http.addr: required when http is enabled"))
	}
	return errors.Join(errs...)
}

func validSpec(path, spec string) error {
	spec = strings.TrimSpace(spec)
	if spec == "" || spec == DisabledSpec {
		return nil
	}
	if _, err := cron.ParseStandard(spec); err != nil {
		return fmt.Errorf("%s: invalid cron spec %q: %w", path, spec, err)
	}
	return nil
}

// Location resolves Timezone. Empty means time.Local.
func (s SchedulerConfig) Location() (*time.Location, error) {
	tz := strings.TrimSpace(s.Timezone)
	if tz == "" {
		return time.Local, nil
	}
	return time.LoadLocation(tz)
}

// Durations returns the parsed scheduler timings. Invalid values fall back
// to defaults; Validate reports them.
func (s SchedulerConfig) Durations() (poll, stop, stopAll time.Duration) {
	poll, _ = ParseDurationOrDefault("scheduler.poll_interval", s.PollInterval, DefaultPollInterval)
	stop, _ = ParseDurationOrDefault("scheduler.stop_timeout", s.StopTimeout, DefaultStopTimeout)
	stopAll, _ = ParseDurationOrDefault("scheduler.stop_all_timeout", s.StopAllTimeout, DefaultStopAllTimeout)
	return poll, stop, stopAll
}

func (n NotifierConfig) RetryBaseDuration() time.Duration {
	d, _ := ParseDurationOrDefault("notifier.retry_base", n.RetryBase, DefaultRetryBase)
	return d
}

func (n NotifierConfig) DedupWindowDuration() time.Duration {
	d, _ := ParseDurationOrDefault("notifier.dedup_window", n.DedupWindow, DefaultDedupWindow)
	return d
}

func (t TelegramConfig) PollTimeoutDuration() time.Duration {
	d, _ := ParseDurationOrDefault("telegram.poll_timeout", t.PollTimeout, DefaultTelegramPoll)
	return d
}
