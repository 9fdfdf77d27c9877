package supervisor

import (
	"fmt"
	"sort"
	"sync"
	"time"
)

// maxIdleStats bounds how many stopped names are remembered. Alarm tasks
// come and go with alarm ids, so the table would otherwise grow forever.
const maxIdleStats = 256

type Counters struct {
	Active  int64  `json:"active"`
	Started uint64 `json:"started"`
}

// GoroutineStats aggregates every goroutine run under one name.
type GoroutineStats struct {
	Name         string        `json:"name"`
	Active       int64         `json:"active"`
	Started      uint64        `json:"started"`
	Panics       uint64        `json:"panics"`
	Restarts     uint64        `json:"restarts"`
	LastStartAt  time.Time     `json:"last_start_at"`
	LastStopAt   time.Time     `json:"last_stop_at,omitzero"`
	LastErr      string        `json:"last_err,omitempty"`
	LastErrAt    time.Time     `json:"last_err_at,omitzero"`
	LastPanic    string        `json:"last_panic,omitempty"`
	LastRuntime  time.Duration `json:"last_runtime"`
	TotalRuntime time.Duration `json:"total_runtime"`
}

type Snapshot struct {
	Counters   Counters         `json:"counters"`
	FirstError string           `json:"first_error,omitempty"`
	Goroutines []GoroutineStats `json:"goroutines"`
}

type statTable struct {
	mu sync.Mutex
	m  map[string]*GoroutineStats
}

func (t *statTable) get(name string) *GoroutineStats {
	if t.m == nil {
		t.m = map[string]*GoroutineStats{}
	}
	st := t.m[name]
	if st == nil {
		st = &GoroutineStats{Name: name}
		t.m[name] = st
	}
	return st
}

func (t *statTable) start(name string, restart bool) time.Time {
	now := time.Now()
	t.mu.Lock()
	st := t.get(name)
	st.Started++
	st.Active++
	if restart {
		st.Restarts++
	}
	st.LastStartAt = now
	t.mu.Unlock()
	return now
}

func (t *statTable) stop(name string, startedAt time.Time, err error) {
	now := time.Now()
	t.mu.Lock()
	defer t.mu.Unlock()
	st := t.get(name)
	if st.Active > 0 {
		st.Active--
	}
	st.LastStopAt = now
	st.LastRuntime = now.Sub(startedAt)
	st.TotalRuntime += st.LastRuntime
	if err != nil {
		st.LastErr = err.Error()
		st.LastErrAt = now
	}
	t.pruneLocked()
}

func (t *statTable) panicked(name string, p any) {
	t.mu.Lock()
	st := t.get(name)
	st.Panics++
	st.LastPanic = fmt.Sprint(p)
	t.mu.Unlock()
}

// pruneLocked drops the longest-stopped idle names past maxIdleStats.
func (t *statTable) pruneLocked() {
	var idle []*GoroutineStats
	for _, st := range t.m {
		if st.Active == 0 {
			idle = append(idle, st)
		}
	}
	if len(idle) <= maxIdleStats {
		return
	}
	sort.Slice(idle, func(i, j int) bool { return idle[i].LastStopAt.Before(idle[j].LastStopAt) })
	for _, st := range idle[:len(idle)-maxIdleStats] {
		delete(t.m, st.Name)
	}
}

func (s *Supervisor) Counters() Counters {
	if s == nil {
		return Counters{}
	}
	return Counters{Active: s.active.Load(), Started: s.started.Load()}
}

// Snapshot is for health output only. Active names sort first.
func (s *Supervisor) Snapshot() Snapshot {
	if s == nil {
		return Snapshot{}
	}
	snap := Snapshot{Counters: s.Counters()}
	if err := s.Err(); err != nil {
		snap.FirstError = err.Error()
	}

	s.stats.mu.Lock()
	gs := make([]GoroutineStats, 0, len(s.stats.m))
	for _, st := range s.stats.m {
		gs = append(gs, *st)
	}
	s.stats.mu.Unlock()

	sort.Slice(gs, func(i, j int) bool {
		if gs[i].Active != gs[j].Active {
			return gs[i].Active > gs[j].Active
		}
		if !gs[i].LastStartAt.Equal(gs[j].LastStartAt) {
			return gs[i].LastStartAt.After(gs[j].LastStartAt)
		}
		return gs[i].Name < gs[j].Name
	})
	snap.Goroutines = gs
	return snap
}
