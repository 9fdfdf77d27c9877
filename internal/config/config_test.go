package config

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestParseYAMLAndJSONAgree(t *testing.T) {
	y := writeFile(t, "lightup.yaml", `
logging:
  level: debug
storage:
  driver: memory
scheduler:
  poll_interval: 250ms
  reconcile: "*/5 * * * *"
alarms:
  seed_demo: false
  postalert_minutes: 5
`)
	j := writeFile(t, "lightup.json", `{
  "logging": {"level": "debug"},
  "storage": {"driver": "memory"},
  "scheduler": {"poll_interval": "250ms", "reconcile": "*/5 * * * *"},
  "alarms": {"seed_demo": false, "postalert_minutes": 5}
}`)

	cy, err := NewManager(y).Parse()
	if err != nil {
		t.Fatalf("yaml: %v", err)
	}
	cj, err := NewManager(j).Parse()
	if err != nil {
		t.Fatalf("json: %v", err)
	}
	if hashConfig(cy) != hashConfig(cj) {
		t.Fatalf("yaml and json configs differ:\n%+v\n%+v", cy, cj)
	}
	if cy.Alarms.SeedDemoEnabled() {
		t.Fatalf("SeedDemoEnabled = true, want false")
	}
	if !cy.Alarms.PrealertEnabled() {
		t.Fatalf("PrealertEnabled = false, want default true")
	}
	if poll, stop, all := cy.Scheduler.Durations(); poll != 250*time.Millisecond || stop != DefaultStopTimeout || all != DefaultStopAllTimeout {
		t.Fatalf("Durations = %v %v %v", poll, stop, all)
	}
}

func TestParseRejects(t *testing.T) {
	cases := map[string]string{
		"unknown key":   `{"logging": {"levle": "info"}}`,
		"trailing data": `{} {}`,
		"bad duration":  `{"scheduler": {"poll_interval": "soon"}}`,
		"bad cron":      `{"scheduler": {"reconcile": "every minute"}}`,
		"bad driver":    `{"storage": {"driver": "mongo"}}`,
		"pg needs dsn":  `{"storage": {"driver": "postgres"}}`,
		"bad level":     `{"logging": {"level": "loud"}}`,
		"postalert":     `{"alarms": {"postalert_minutes": 1440}}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			p := writeFile(t, "c.json", body)
			if _, err := NewManager(p).Parse(); err == nil {
				t.Fatalf("Parse(%s) succeeded, want error", body)
			}
		})
	}
}

func TestDefaultsWithoutFile(t *testing.T) {
	cfg, err := NewManager("").Parse()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Storage.Driver != DefaultStorageDriver || cfg.Storage.Path != DefaultStoragePath {
		t.Fatalf("storage = %+v", cfg.Storage)
	}
	if cfg.HTTP.Addr != DefaultHTTPAddr || !cfg.HTTP.IsEnabled() {
		t.Fatalf("http = %+v", cfg.HTTP)
	}
	if cfg.Scheduler.Reconcile != DefaultReconcileSpec || cfg.Scheduler.Heartbeat != DefaultHeartbeatSpec {
		t.Fatalf("scheduler = %+v", cfg.Scheduler)
	}
	n := cfg.Notifier
	if n.Workers != 1 || n.QueueSize != 64 || n.RatePerSec != 1 || n.RetryMax != 2 {
		t.Fatalf("notifier = %+v", n)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("LIGHTUP_TELEGRAM_TOKEN", "123:abc")
	t.Setenv("LIGHTUP_TELEGRAM_CHAT_ID", "-100200")
	t.Setenv("LIGHTUP_HTTP_ADDR", "0.0.0.0:9000")
	t.Setenv("LIGHTUP_LOG_LEVEL", "warn")
	t.Setenv("LIGHTUP_STORAGE_DRIVER", "postgres")
	t.Setenv("LIGHTUP_POSTGRES_DSN", "postgres://u@h/db")

	p := writeFile(t, "c.json", `{"http": {"addr": "127.0.0.1:1"}, "logging": {"level": "debug"}}`)
	cfg, err := NewManager(p).Parse()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Telegram.Token != "123:abc" || cfg.Telegram.ChatID != -100200 {
		t.Fatalf("telegram = %+v", cfg.Telegram)
	}
	if cfg.HTTP.Addr != "0.0.0.0:9000" || cfg.Logging.Level != "warn" {
		t.Fatalf("http.addr = %q, logging.level = %q", cfg.HTTP.Addr, cfg.Logging.Level)
	}
	if cfg.Storage.Driver != "postgres" || cfg.Storage.DSN == "" {
		t.Fatalf("storage = %+v", cfg.Storage)
	}
	if cfg.Telegram.EffectiveLogChatID() != -100200 {
		t.Fatalf("EffectiveLogChatID = %d", cfg.Telegram.EffectiveLogChatID())
	}
	if !strings.Contains(EnvUsage(), "LIGHTUP_TELEGRAM_TOKEN") {
		t.Fatalf("EnvUsage missing token variable:\n%s", EnvUsage())
	}
}

func TestSummarizeChange(t *testing.T) {
	a := Default()
	b := Default()
	if ch := SummarizeChange(a, b); !ch.Empty() {
		t.Fatalf("identical configs changed: %v", ch.Sections)
	}

	b.Logging.Level = "debug"
	b.Scheduler.Reconcile = "@every 30s"
	b.HTTP.Addr = "127.0.0.1:9999"
	b.Telegram.Token = "secret"
	ch := SummarizeChange(a, b)

	want := []string{"http", "logging", "scheduler", "telegram"}
	if strings.Join(ch.Sections, ",") != strings.Join(want, ",") {
		t.Fatalf("Sections = %v, want %v", ch.Sections, want)
	}
	if strings.Join(ch.Restart, ",") != "http,telegram" {
		t.Fatalf("Restart = %v, want [http telegram]", ch.Restart)
	}
}

func TestReloadPublishesOnlyChanges(t *testing.T) {
	p := writeFile(t, "c.json", `{"logging": {"level": "info"}}`)
	m := NewManager(p)
	if _, err := m.Load(); err != nil {
		t.Fatal(err)
	}
	sub := m.Subscribe(1)
	defer m.Unsubscribe(sub)

	ok, err := m.Reload(context.Background())
	if err != nil || ok {
		t.Fatalf("Reload unchanged = %v, %v; want false, nil", ok, err)
	}

	if err := os.WriteFile(p, []byte(`{"logging": {"level": "debug"}}`), 0o644); err != nil {
		t.Fatal(err)
	}
	ok, err = m.Reload(context.Background())
	if err != nil || !ok {
		t.Fatalf("Reload changed = %v, %v; want true, nil", ok, err)
	}
	if got := (<-sub).Logging.Level; got != "debug" {
		t.Fatalf("published level = %q, want debug", got)
	}

	m.SetValidator(func(context.Context, *Config) error { return os.ErrPermission })
	if err := os.WriteFile(p, []byte(`{"logging": {"level": "warn"}}`), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := m.Reload(context.Background()); err == nil {
		t.Fatal("Reload with failing validator succeeded")
	}
	if m.Get().Logging.Level != "debug" {
		t.Fatalf("rejected config was committed")
	}
}

func TestWatchPicksUpEdits(t *testing.T) {
	p := writeFile(t, "c.yaml", "logging:\n  level: info\n")
	m := NewManager(p)
	if _, err := m.Load(); err != nil {
		t.Fatal(err)
	}
	sub := m.Subscribe(4)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = m.Watch(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	deadline := time.After(5 * time.Second)
	tick := time.NewTicker(100 * time.Millisecond)
	defer tick.Stop()
	for {
		select {
		case cfg := <-sub:
			if cfg.Logging.Level == "error" {
				return
			}
		case <-tick.C:
			// Rewrite until the watcher is up and sees it.
			_ = os.WriteFile(p, []byte("logging:\n  level: error\n"), 0o644)
		case <-deadline:
			t.Fatal("no reload published")
		}
	}
}

func TestParseDurationField(t *testing.T) {
	t.Parallel()
	tests := []struct {
		raw     string
		want    time.Duration
		wantErr bool
	}{
		{"", 0, false},
		{"500ms", 500 * time.Millisecond, false},
		{"1d", 24 * time.Hour, false},
		{"2d12h", 60 * time.Hour, false},
		{"-1s", 0, true},
		{"xd", 0, true},
		{"1d12", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, err := ParseDurationField("x", tt.raw)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && got != tt.want {
				t.Fatalf("ParseDurationField(%q) = %v, want %v", tt.raw, got, tt.want)
			}
		})
	}
}
