package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	logx "lightup/pkg/logx"
)

type Config struct {
	// Timezone is an IANA name. Empty means the host zone.
	Timezone string
}

// JobFunc is one run of a scheduled job.
type JobFunc func(ctx context.Context) error

type scheduleDef struct {
	name    string
	spec    string
	timeout time.Duration
	job     JobFunc
	entryID cron.EntryID
	spread  time.Duration
	stats   *runStats
}

type runStats struct {
	mu      sync.Mutex
	runs    uint64
	skipped uint64
	lastRun time.Time
	lastDur time.Duration
	lastErr string
}

type Service struct {
	mu sync.Mutex

	log    logx.Logger
	cfg    Config
	loc    *time.Location
	parser cron.Parser

	ctx  context.Context
	c    *cron.Cron
	defs []*scheduleDef
}

type ScheduleInfo struct {
	Name    string        `json:"name"`
	Spec    string        `json:"spec"`
	Timeout time.Duration `json:"timeout,omitempty"`
	Next    time.Time     `json:"next,omitzero"`
	Prev    time.Time     `json:"prev,omitzero"`
	Runs    uint64        `json:"runs"`
	Skipped uint64        `json:"skipped"`
	LastDur time.Duration `json:"last_duration,omitempty"`
	LastErr string        `json:"last_error,omitempty"`
}

type Snapshot struct {
	Running   bool           `json:"running"`
	Timezone  string         `json:"timezone"`
	Schedules []ScheduleInfo `json:"schedules"`
}
