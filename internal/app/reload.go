package app

import (
	"context"
	"strings"
	"time"

	"lightup/internal/config"
	logx "lightup/pkg/logx"
)

// reloadLoop applies published configs. Sections that only take effect at
// startup are logged as needing a restart.
func (a *App) reloadLoop(c context.Context) {
	sub := a.cfgm.Subscribe(8)
	defer a.cfgm.Unsubscribe(sub)
	last := a.cfgm.Get()
	for {
		select {
		case <-c.Done():
			return
		case next, ok := <-sub:
			if !ok {
				return
			}
			// Coalesce bursts; only the newest config matters.
			for drained := false; !drained; {
				select {
				case newer := <-sub:
					if newer != nil {
						next = newer
					}
				default:
					drained = true
				}
			}
			a.sd.Reloading()
			a.apply(last, next)
			last = next
			a.sd.Ready()
		}
	}
}

func (a *App) apply(prev, next *config.Config) {
	ch := config.SummarizeChange(prev, next)
	if ch.Empty() {
		a.log.Info("config reloaded (no changes)")
		return
	}
	if len(ch.Restart) > 0 {
		a.log.Warn("config changed; restart required for changes to take effect",
			logx.String("sections", strings.Join(ch.Restart, ",")))
	}

	a.logs.SetTelegramTarget(next.Telegram.EffectiveLogChatID(), next.Logging.Telegram.ThreadID)
	a.logs.Apply(mapLogConfig(next))

	ncfg := mapNotifierConfig(next)
	wasEnabled := a.notif.Enabled()
	a.notif.Apply(ncfg)
	switch {
	case !wasEnabled && ncfg.Enabled:
		a.notif.Start(a.sup.Context())
	case wasEnabled && !ncfg.Enabled:
		ctx, cancel := context.WithTimeout(a.sup.Context(), 3*time.Second)
		a.notif.Stop(ctx)
		cancel()
	}

	a.sched.Apply(mapSchedulerConfig(next))
	if err := a.registerJobs(next); err != nil {
		a.log.Warn("periodic jobs not updated", logx.Err(err))
	}

	fields := append([]logx.Field{logx.String("changed", strings.Join(ch.Sections, ","))}, ch.Attrs...)
	a.log.Info("config reloaded", fields...)
}
