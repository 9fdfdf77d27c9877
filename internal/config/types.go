package config

// Config is the daemon configuration. Files are JSON or YAML and decoded
// strictly: unknown keys are errors so typos surface at load time.
//
// All durations are Go duration strings (e.g. "500ms", "10s", "1m").
type Config struct {
	Logging   LoggingConfig   `json:"logging"`
	Storage   StorageConfig   `json:"storage"`
	Scheduler SchedulerConfig `json:"scheduler"`
	Alarms    AlarmsConfig    `json:"alarms"`
	Notifier  NotifierConfig  `json:"notifier"`
	Telegram  TelegramConfig  `json:"telegram"`
	HTTP      HTTPConfig      `json:"http"`
	Systemd   SystemdConfig   `json:"systemd"`
}

type LoggingConfig struct {
	Level    string          `json:"level" env:"LIGHTUP_LOG_LEVEL" env-description:"log level (trace, debug, info, warn, error)"`
	Console  bool            `json:"console"`
	File     LoggingFile     `json:"file"`
	Telegram LoggingTelegram `json:"telegram"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

type LoggingTelegram struct {
	Enabled    bool   `json:"enabled"`
	ThreadID   int    `json:"thread_id"`
	MinLevel   string `json:"min_level"`
	RatePerSec int    `json:"rate_per_sec"`
}

// StorageConfig selects the persistence driver.
//
// Example:
//
//	"storage": { "driver": "sqlite", "path": "./lightup.db" }
type StorageConfig struct {
	Driver string `json:"driver" env:"LIGHTUP_STORAGE_DRIVER" env-description:"storage driver (memory, file, sqlite, postgres)"`
	Path   string `json:"path" env:"LIGHTUP_STORAGE_PATH" env-description:"file or sqlite database path"`
	// DSN is only read by the postgres driver. Never logged.
	DSN             string `json:"dsn,omitempty" env:"LIGHTUP_POSTGRES_DSN" env-description:"postgres connection string"`
	BusyTimeout     string `json:"busy_timeout,omitempty"`
	ConnectAttempts int    `json:"connect_attempts,omitempty"`
	ConnectDelay    string `json:"connect_delay,omitempty"`
}

// SchedulerConfig controls alarm task polling and the periodic jobs.
// Reconcile and Heartbeat are cron specs; "-" disables the job.
type SchedulerConfig struct {
	PollInterval   string `json:"poll_interval"`
	StopTimeout    string `json:"stop_timeout"`
	StopAllTimeout string `json:"stop_all_timeout"`
	Reconcile      string `json:"reconcile"`
	Heartbeat      string `json:"heartbeat"`
	// Timezone for alarm wall-clock times. Empty means the host zone.
	Timezone string `json:"timezone,omitempty" env:"LIGHTUP_TIMEZONE"`
}

// AlarmsConfig holds alarm behaviour that is not stored with the alarms.
//
// Bools are pointers so an omitted key keeps its default.
type AlarmsConfig struct {
	SeedDemo         *bool `json:"seed_demo,omitempty"`
	Prealert         *bool `json:"prealert,omitempty"`
	PostalertMinutes int   `json:"postalert_minutes,omitempty"`
}

type NotifierConfig struct {
	Enabled     *bool  `json:"enabled,omitempty"`
	Workers     int    `json:"workers"`
	QueueSize   int    `json:"queue_size"`
	RatePerSec  int    `json:"rate_per_sec"`
	RetryMax    int    `json:"retry_max"`
	RetryBase   string `json:"retry_base"`
	DedupWindow string `json:"dedup_window"`
	// BreakerTrip failed deliveries in a row pause sending with a growing
	// cooldown. Zero means 5, negative disables.
	BreakerTrip int `json:"breaker_trip,omitempty"`
}

type TelegramConfig struct {
	Token string `json:"token" env:"LIGHTUP_TELEGRAM_TOKEN" env-description:"telegram bot token"`
	// ChatID receives alarm notifications.
	ChatID   int64 `json:"chat_id" env:"LIGHTUP_TELEGRAM_CHAT_ID" env-description:"chat receiving alarm notifications"`
	ThreadID int   `json:"thread_id,omitempty"`
	// LogChatID receives log lines when logging.telegram is enabled.
	// Zero falls back to ChatID.
	LogChatID int64 `json:"log_chat_id,omitempty" env:"LIGHTUP_TELEGRAM_LOG_CHAT_ID"`
	// Commands enables the /alarms, /next and /running bot commands.
	Commands     bool    `json:"commands,omitempty"`
	OwnerUserIDs []int64 `json:"owner_user_ids,omitempty"`
	PollTimeout  string  `json:"poll_timeout,omitempty"`
}

type HTTPConfig struct {
	Enabled     *bool    `json:"enabled,omitempty"`
	Addr        string   `json:"addr" env:"LIGHTUP_HTTP_ADDR" env-description:"HTTP API listen address"`
	CORSOrigins []string `json:"cors_origins,omitempty"`
	ReadTimeout string   `json:"read_timeout,omitempty"`
	// Pprof mounts /debug/pprof on the API listener.
	Pprof      bool   `json:"pprof,omitempty"`
	PprofToken string `json:"pprof_token,omitempty" env:"LIGHTUP_PPROF_TOKEN"`
}

type SystemdConfig struct {
	Enabled *bool `json:"enabled,omitempty"`
}

func boolOr(p *bool, def bool) bool {
	if p == nil {
		return def
	}
	return *p
}

func (a AlarmsConfig) SeedDemoEnabled() bool { return boolOr(a.SeedDemo, true) }
func (a AlarmsConfig) PrealertEnabled() bool { return boolOr(a.Prealert, true) }
func (n NotifierConfig) IsEnabled() bool     { return boolOr(n.Enabled, true) }
func (h HTTPConfig) IsEnabled() bool         { return boolOr(h.Enabled, true) }
func (s SystemdConfig) IsEnabled() bool      { return boolOr(s.Enabled, true) }

// EffectiveLogChatID is the chat used for log lines.
func (t TelegramConfig) EffectiveLogChatID() int64 {
	if t.LogChatID != 0 {
		return t.LogChatID
	}
	return t.ChatID
}
