// Package scheduler runs lightup's periodic jobs on cron specs: the task
// reconciliation pass and the next-alarm heartbeat. Alarm firing itself
// is done by the per-alarm tasks, not here.
package scheduler
