// Package sdnotify reports daemon state to systemd: readiness, reloads,
// shutdown and watchdog keep-alives. Outside systemd every call is a no-op.
package sdnotify

import (
	"context"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	logx "lightup/pkg/logx"
)

type Notifier struct {
	enabled bool
	log     logx.Logger
}

func New(enabled bool, log logx.Logger) *Notifier {
	return &Notifier{enabled: enabled, log: log.With(logx.String("comp", "sdnotify"))}
}

func (n *Notifier) Ready()     { n.send(daemon.SdNotifyReady) }
func (n *Notifier) Stopping()  { n.send(daemon.SdNotifyStopping) }
func (n *Notifier) Reloading() { n.send(daemon.SdNotifyReloading) }

// Status sets the one-line status shown by systemctl status.
func (n *Notifier) Status(s string) { n.send("STATUS=" + s) }

func (n *Notifier) send(state string) {
	if n == nil || !n.enabled {
		return
	}
	sent, err := daemon.SdNotify(false, state)
	switch {
	case err != nil:
		n.log.Warn("sd_notify failed", logx.String("state", state), logx.Err(err))
	case sent:
		n.log.Debug("sd_notify sent", logx.String("state", state))
	}
}

// Watchdog pings systemd at half the WatchdogSec interval while healthy
// returns nil, until ctx ends. Without a watchdog it returns at once.
func (n *Notifier) Watchdog(ctx context.Context, healthy func(ctx context.Context) error) error {
	if n == nil || !n.enabled {
		return nil
	}
	interval, err := daemon.SdWatchdogEnabled(false)
	if err != nil || interval <= 0 {
		return err
	}
	t := time.NewTicker(interval / 2)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			if healthy != nil {
				if err := healthy(ctx); err != nil {
					// Missing pings let systemd restart us.
					n.log.Warn("unhealthy; skipping watchdog ping", logx.Err(err))
					continue
				}
			}
			n.send(daemon.SdNotifyWatchdog)
		}
	}
}
