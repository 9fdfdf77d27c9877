package app

import (
	"time"

	"lightup/internal/config"
	"lightup/internal/task/scheduler"
	logx "lightup/pkg/logx"
)

const jobTimeout = 30 * time.Second

// registerJobs (re)registers the periodic alarm jobs from cfg. A disabled
// spec removes the job.
func (a *App) registerJobs(cfg *config.Config) error {
	jlog := a.log.With(logx.String("comp", "jobs"))
	if err := a.sched.AddCron(scheduler.ReconcileJob, cfg.Scheduler.Reconcile, jobTimeout, scheduler.Reconcile(a.mgr, jlog)); err != nil {
		return err
	}
	return a.sched.AddCron(scheduler.HeartbeatJob, cfg.Scheduler.Heartbeat, jobTimeout, scheduler.Heartbeat(a.mgr, jlog))
}
