package config

import (
	"reflect"
	"sort"
	"strings"

	logx "lightup/pkg/logx"
)

// Change summarizes a reload for logging. Attrs never carry secrets.
type Change struct {
	Sections []string
	// Restart lists sections that only take effect after a restart.
	Restart []string
	Attrs   []logx.Field
}

func (c Change) Empty() bool { return len(c.Sections) == 0 }

// SummarizeChange compares two configs section by section.
func SummarizeChange(oldCfg, newCfg *Config) Change {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}
	var ch Change
	mark := func(section string, restart bool, attrs ...logx.Field) {
		ch.Sections = append(ch.Sections, section)
		if restart {
			ch.Restart = append(ch.Restart, section)
		}
		ch.Attrs = append(ch.Attrs, attrs...)
	}

	if !reflect.DeepEqual(oldCfg.Logging, newCfg.Logging) {
		mark("logging", false,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.file", newCfg.Logging.File.Enabled),
			logx.Bool("logging.telegram", newCfg.Logging.Telegram.Enabled),
		)
	}
	if !reflect.DeepEqual(oldCfg.Storage, newCfg.Storage) {
		mark("storage", true,
			logx.String("storage.driver", newCfg.Storage.Driver),
			logx.Bool("storage.dsn_set", strings.TrimSpace(newCfg.Storage.DSN) != ""),
		)
	}
	if !reflect.DeepEqual(oldCfg.Scheduler, newCfg.Scheduler) {
		// Poll and stop timings are fixed when tasks start.
		timings := oldCfg.Scheduler.PollInterval != newCfg.Scheduler.PollInterval ||
			oldCfg.Scheduler.StopTimeout != newCfg.Scheduler.StopTimeout ||
			oldCfg.Scheduler.StopAllTimeout != newCfg.Scheduler.StopAllTimeout ||
			oldCfg.Scheduler.Timezone != newCfg.Scheduler.Timezone
		mark("scheduler", timings,
			logx.String("scheduler.reconcile", newCfg.Scheduler.Reconcile),
			logx.String("scheduler.heartbeat", newCfg.Scheduler.Heartbeat),
		)
	}
	if !reflect.DeepEqual(oldCfg.Alarms, newCfg.Alarms) {
		mark("alarms", oldCfg.Alarms.PrealertEnabled() != newCfg.Alarms.PrealertEnabled() ||
			oldCfg.Alarms.PostalertMinutes != newCfg.Alarms.PostalertMinutes,
			logx.Bool("alarms.prealert", newCfg.Alarms.PrealertEnabled()),
			logx.Int("alarms.postalert_minutes", newCfg.Alarms.PostalertMinutes),
		)
	}
	if !reflect.DeepEqual(oldCfg.Notifier, newCfg.Notifier) {
		mark("notifier", oldCfg.Notifier.Workers != newCfg.Notifier.Workers ||
			oldCfg.Notifier.QueueSize != newCfg.Notifier.QueueSize ||
			oldCfg.Notifier.IsEnabled() != newCfg.Notifier.IsEnabled(),
			logx.Int("notifier.rate_per_sec", newCfg.Notifier.RatePerSec),
			logx.Int("notifier.retry_max", newCfg.Notifier.RetryMax),
		)
	}
	if !reflect.DeepEqual(oldCfg.Telegram, newCfg.Telegram) {
		tokenChanged := oldCfg.Telegram.Token != newCfg.Telegram.Token
		mark("telegram", tokenChanged || oldCfg.Telegram.Commands != newCfg.Telegram.Commands,
			logx.Bool("telegram.token_set", newCfg.Telegram.Token != ""),
			logx.Bool("telegram.token_changed", tokenChanged),
			logx.Int64("telegram.chat_id", newCfg.Telegram.ChatID),
		)
	}
	if !reflect.DeepEqual(oldCfg.HTTP, newCfg.HTTP) {
		mark("http", true,
			logx.Bool("http.enabled", newCfg.HTTP.IsEnabled()),
			logx.String("http.addr", newCfg.HTTP.Addr),
		)
	}
	if !reflect.DeepEqual(oldCfg.Systemd, newCfg.Systemd) {
		mark("systemd", true, logx.Bool("systemd.enabled", newCfg.Systemd.IsEnabled()))
	}

	sort.Strings(ch.Sections)
	sort.Strings(ch.Restart)
	return ch
}
