package scheduler

import (
	"context"
	"time"

	"lightup/internal/alarm"
	"lightup/internal/task/manager"
	logx "lightup/pkg/logx"
)

const (
	ReconcileJob = "alarms.reconcile"
	HeartbeatJob = "alarms.heartbeat"
)

// Reconciler is the manager's reconciliation pass.
type Reconciler interface {
	Reconcile(ctx context.Context) (manager.Report, error)
}

// NextAlarmer reports the upcoming alarm and minutes until it.
type NextAlarmer interface {
	NextAlarm(ctx context.Context) (*alarm.Alarm, int, error)
}

// Reconcile returns the job that checks alarm tasks against storage.
func Reconcile(r Reconciler, log logx.Logger) JobFunc {
	return func(ctx context.Context) error {
		rep, err := r.Reconcile(ctx)
		if err != nil {
			return err
		}
		if !rep.Clean {
			log.Info("alarm tasks reconciled",
				logx.Int("expected", rep.Expected),
				logx.Int("running", rep.Running),
				logx.Any("drift", rep.Drift),
			)
		}
		return nil
	}
}

// Heartbeat returns the job that logs the next alarm.
func Heartbeat(n NextAlarmer, log logx.Logger) JobFunc {
	return func(ctx context.Context) error {
		a, mins, err := n.NextAlarm(ctx)
		if err != nil {
			return err
		}
		if a == nil {
			log.Info("heartbeat: no active alarms")
			return nil
		}
		log.Info("heartbeat: next alarm",
			logx.Int64("alarm_id", a.ID()),
			logx.Int("minutes", mins),
			logx.Time("at", time.Now().Add(time.Duration(mins)*time.Minute).Truncate(time.Minute)),
		)
		return nil
	}
}
