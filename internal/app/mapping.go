package app

import (
	"time"

	"lightup/internal/config"
	"lightup/internal/notifier"
	"lightup/internal/task/scheduler"
	"lightup/internal/transport/httpapi"
	"lightup/internal/transport/telegram"
	logx "lightup/pkg/logx"
)

func mapLogConfig(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
		Telegram: logx.TelegramConfig{
			Enabled:    cfg.Logging.Telegram.Enabled,
			ThreadID:   cfg.Logging.Telegram.ThreadID,
			MinLevel:   cfg.Logging.Telegram.MinLevel,
			RatePerSec: cfg.Logging.Telegram.RatePerSec,
		},
	}
}

func mapNotifierConfig(cfg *config.Config) notifier.Config {
	n := cfg.Notifier
	return notifier.Config{
		Enabled:     n.IsEnabled(),
		Workers:     n.Workers,
		QueueSize:   n.QueueSize,
		RatePerSec:  n.RatePerSec,
		RetryMax:    n.RetryMax,
		RetryBase:   n.RetryBaseDuration(),
		DedupWindow: n.DedupWindowDuration(),
		BreakerTrip: n.BreakerTrip,
	}
}

func mapTelegramConfig(cfg *config.Config) telegram.Config {
	t := cfg.Telegram
	return telegram.Config{
		Token:        t.Token,
		ChatID:       t.ChatID,
		ThreadID:     t.ThreadID,
		Commands:     t.Commands,
		OwnerUserIDs: t.OwnerUserIDs,
		PollTimeout:  t.PollTimeoutDuration(),
	}
}

func mapHTTPConfig(cfg *config.Config) httpapi.Config {
	read, _ := config.ParseDurationOrDefault("http.read_timeout", cfg.HTTP.ReadTimeout, 10*time.Second)
	return httpapi.Config{
		Enabled:      cfg.HTTP.IsEnabled(),
		Addr:         cfg.HTTP.Addr,
		ReadTimeout:  read,
		WriteTimeout: 2 * read,
		IdleTimeout:  time.Minute,
	}
}

func mapSchedulerConfig(cfg *config.Config) scheduler.Config {
	return scheduler.Config{Timezone: cfg.Scheduler.Timezone}
}
