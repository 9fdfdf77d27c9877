package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"lightup/internal/config"
	"lightup/internal/eventbus"
	"lightup/internal/notifier"
	"lightup/internal/runtime/sdnotify"
	"lightup/internal/runtime/supervisor"
	"lightup/internal/storage"
	"lightup/internal/task/manager"
	"lightup/internal/task/runner"
	"lightup/internal/task/scheduler"
	"lightup/internal/transport/httpapi"
	"lightup/internal/transport/telegram"
	logx "lightup/pkg/logx"
)

// App is the alarm daemon: storage, the alarm manager and everything that
// surfaces it.
type App struct {
	cfgm *config.Manager
	sup  *supervisor.Supervisor

	log   logx.Logger
	logs  *logx.Service
	bus   *eventbus.MemBus
	store storage.Store

	bot   *telegram.Bot
	notif *notifier.Service
	sched *scheduler.Service
	sd    *sdnotify.Notifier

	mgr  *manager.Manager
	http *httpapi.Server
}

// New loads the config and builds every component. Nothing runs until
// Start.
func New(cfgPath string) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	var bot *telegram.Bot
	if cfg.Telegram.Token != "" {
		bot, err = telegram.New(mapTelegramConfig(cfg), logx.NewConsole(cfg.Logging.Level))
		if err != nil {
			return nil, err
		}
	}

	// Chat logging starts disabled so Apply does not warn before the target
	// is set.
	logCfg := mapLogConfig(cfg)
	enableChat := logCfg.Telegram.Enabled
	logCfg.Telegram.Enabled = false
	var sender logx.Sender
	if bot != nil {
		sender = bot
	}
	logSvc, log := logx.New(logCfg, sender)
	logSvc.SetTelegramTarget(cfg.Telegram.EffectiveLogChatID(), cfg.Logging.Telegram.ThreadID)
	logCfg.Telegram.Enabled = enableChat
	logSvc.Apply(logCfg)

	sc, err := mapStorageConfig(cfg)
	if err != nil {
		return nil, err
	}
	store, err := storage.Open(sc, log)
	if err != nil {
		return nil, err
	}
	log.Info("storage opened", logx.String("driver", sc.Driver))

	bus := eventbus.New()

	var ns notifier.Sender = notifier.LogSender{Log: log.With(logx.String("comp", "notifier"))}
	if bot != nil && cfg.Telegram.ChatID != 0 {
		ns = bot
	}
	notif := notifier.New(mapNotifierConfig(cfg), ns,
		notifier.WithLogger(log),
		notifier.WithBus(bus),
		notifier.WithDedupStore(store),
	)

	return &App{
		cfgm:  cfgm,
		log:   log.With(logx.String("comp", "app")),
		logs:  logSvc,
		bus:   bus,
		store: store,
		bot:   bot,
		notif: notif,
		sched: scheduler.New(mapSchedulerConfig(cfg), log),
		sd:    sdnotify.New(cfg.Systemd.IsEnabled(), log),
	}, nil
}

// Done is closed when the app supervisor ends, on a fatal error or Stop.
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error seen by the supervisor.
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

// Manager returns the alarm manager once started.
func (a *App) Manager() *manager.Manager { return a.mgr }

func (a *App) Start(ctx context.Context) error {
	cfg := a.cfgm.Get()
	a.sup = supervisor.New(ctx, supervisor.WithLogger(a.log), supervisor.WithCancelOnError(true))
	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))

	loc, err := cfg.Scheduler.Location()
	if err != nil {
		return err
	}
	poll, stop, stopAll := cfg.Scheduler.Durations()
	opts := []manager.Option{
		manager.WithLogger(a.log),
		manager.WithBus(a.bus),
		manager.WithClock(runner.ZoneClock{Loc: loc}),
		manager.WithPollInterval(poll),
		manager.WithStopTimeouts(stop, stopAll),
		manager.WithSeed(cfg.Alarms.SeedDemoEnabled()),
		manager.WithSpawner(a.sup),
	}
	switch {
	case cfg.Alarms.PrealertEnabled():
		opts = append(opts, manager.WithPrealert(a.alert("prealert")))
	case cfg.Alarms.PostalertMinutes > 0:
		opts = append(opts, manager.WithPostalert(cfg.Alarms.PostalertMinutes, a.alert("postalert")))
	}
	mgr, err := manager.New(ctx, a.store, a.alert("alarm"), opts...)
	if err != nil {
		return err
	}
	a.mgr = mgr

	a.notif.Start(a.sup.Context())

	if a.bot != nil {
		a.bot.Start(a.sup.Context(), mgr)
	}

	if err := a.registerJobs(cfg); err != nil {
		return err
	}
	a.sched.Start(a.sup.Context())

	ropts := []httpapi.RouterOption{
		httpapi.WithCORSOrigins(cfg.HTTP.CORSOrigins),
		httpapi.WithHealth(a.Health),
		httpapi.WithJobs(a.sched.Snapshot),
		httpapi.WithNow(func() time.Time { return time.Now().In(loc) }),
	}
	if cfg.HTTP.Pprof {
		ropts = append(ropts, httpapi.WithProfiler(cfg.HTTP.PprofToken))
	}
	handler := httpapi.NewRouter(mgr, a.log.With(logx.String("comp", "http")), ropts...)
	a.http = httpapi.NewServer(mapHTTPConfig(cfg), handler, a.log)
	a.http.Start(a.sup.Context())

	a.sup.Go0("eventbus.log", a.logEvents)
	a.sup.Go0("config.reload", a.reloadLoop)
	a.sup.Go("config.watch", a.cfgm.Watch)
	a.sup.Go("systemd.watchdog", func(c context.Context) error {
		return a.sd.Watchdog(c, a.healthy)
	})

	n, _ := mgr.NumberOfAlarms(ctx)
	a.sd.Status(fmt.Sprintf("%d alarms, %d running", n, len(mgr.RunningAlarms())))
	a.sd.Ready()
	a.log.Info("app started", logx.Int("alarms", n), logx.String("tz", loc.String()))
	return nil
}

// alert is the callback handed to the manager for kind. Delivery problems
// are logged and never fail the firing.
func (a *App) alert(kind string) runner.AlertFunc {
	return func(ctx context.Context, f runner.Firing) error {
		a.log.Info("alarm alert",
			logx.String("kind", kind),
			logx.String("firing_id", f.ID),
			logx.Int64("alarm_id", f.Alarm.ID()),
			logx.String("alarm", f.Alarm.String()),
		)
		if err := a.notif.Notify(ctx, notifier.FromFiring(f)); err != nil && !errors.Is(err, notifier.ErrDisabled) {
			a.log.Warn("notification not queued", logx.String("firing_id", f.ID), logx.Err(err))
		}
		return nil
	}
}

// Health returns supervisor snapshots by component.
func (a *App) Health() map[string]supervisor.Snapshot {
	out := map[string]supervisor.Snapshot{}
	if a.sup != nil {
		out["app"] = a.sup.Snapshot()
	}
	if s := a.notif.Supervisor(); s != nil {
		out["notifier"] = s.Snapshot()
	}
	if a.bot != nil {
		if s := a.bot.Supervisor(); s != nil {
			out["telegram"] = s.Snapshot()
		}
	}
	if a.http != nil {
		if s := a.http.Supervisor(); s != nil {
			out["http"] = s.Snapshot()
		}
	}
	return out
}

// healthy gates watchdog pings on the store answering.
func (a *App) healthy(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	_, err := a.store.CountAlarms(ctx)
	return err
}

func (a *App) logEvents(c context.Context) {
	events, unsub := a.bus.Subscribe(128)
	defer unsub()
	for {
		select {
		case <-c.Done():
			return
		case e, ok := <-events:
			if !ok {
				return
			}
			a.log.Debug("event", logx.String("type", e.Type), logx.Int64("alarm_id", e.AlarmID), logx.Time("time", e.Time))
		}
	}
}

func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		return nil
	}
	if reason == "" {
		reason = StopUnknown
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))
	a.sd.Stopping()

	// Bounded so one component cannot stall the whole stop; the caller's
	// deadline is never extended.
	step := func(name string, max time.Duration, fn func(context.Context) error) {
		start := time.Now()
		stepCtx, cancel := context.WithTimeout(ctx, max)
		defer cancel()

		done := make(chan error, 1)
		go func() {
			defer func() {
				if r := recover(); r != nil {
					done <- fmt.Errorf("panic in stop step %s: %v", name, r)
				}
			}()
			done <- fn(stepCtx)
		}()

		select {
		case err := <-done:
			if err != nil && !errors.Is(err, http.ErrServerClosed) {
				a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
			}
			a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", time.Since(start)))
		case <-stepCtx.Done():
			a.log.Warn("stop step deadline reached (continuing)",
				logx.String("name", name),
				logx.Duration("elapsed", time.Since(start)),
			)
		}
	}

	step("scheduler", 2*time.Second, func(c context.Context) error { a.sched.Stop(c); return nil })
	step("http", 3*time.Second, func(c context.Context) error {
		if a.http == nil {
			return nil
		}
		return a.http.Stop(c)
	})
	if a.bot != nil {
		step("telegram", 3*time.Second, func(c context.Context) error { a.bot.Stop(c); return nil })
	}
	_, _, stopAll := a.cfgm.Get().Scheduler.Durations()
	step("alarms", stopAll+time.Second, func(c context.Context) error {
		if a.mgr == nil {
			return nil
		}
		return a.mgr.Close(c)
	})
	step("notifier", 2*time.Second, func(c context.Context) error { a.notif.Stop(c); return nil })

	a.sup.Cancel()
	step("supervisor", 2*time.Second, a.sup.Wait)
	step("storage", time.Second, func(context.Context) error { return a.store.Close() })

	a.log.Info("stopped")
	return a.logs.Close()
}
