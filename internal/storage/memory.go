package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"lightup/internal/alarm"
)

const memoryAuditCap = 1000

type memState struct {
	NextID   int64
	Alarms   map[int64]*alarm.Alarm
	Settings Settings
	Dedup    map[string]int64 // unix milli
}

func newMemState() memState {
	return memState{
		NextID:   1,
		Alarms:   map[int64]*alarm.Alarm{},
		Settings: DefaultSettings(),
		Dedup:    map[string]int64{},
	}
}

// clone copies the maps. Stored alarms are never mutated in place, so the
// pointers can be shared between generations.
func (st memState) clone() memState {
	out := st
	out.Alarms = make(map[int64]*alarm.Alarm, len(st.Alarms))
	for k, v := range st.Alarms {
		out.Alarms[k] = v
	}
	out.Dedup = make(map[string]int64, len(st.Dedup))
	for k, v := range st.Dedup {
		out.Dedup[k] = v
	}
	return out
}

// Memory is an in-process Store. The file driver layers persistence on top
// of it through commit.
type Memory struct {
	mu     sync.Mutex
	st     memState
	closed bool
	audit  []AuditEntry
	now    func() time.Time

	// commit persists the next state before it becomes current.
	commit func(memState) error
}

func NewMemory() *Memory {
	return &Memory{st: newMemState(), now: time.Now}
}

func (m *Memory) read(ctx context.Context) (memState, error) {
	if err := ctxErr(ctx); err != nil {
		return memState{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return memState{}, ErrClosed
	}
	return m.st, nil
}

// update runs fn on a copy of the state and swaps it in once commit
// accepted it. fn may return a value error alongside a state change.
func (m *Memory) update(ctx context.Context, fn func(st *memState) (changed bool, err error)) error {
	if err := ctxErr(ctx); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	next := m.st.clone()
	changed, ferr := fn(&next)
	if !changed {
		return ferr
	}
	if m.commit != nil {
		if err := m.commit(next); err != nil {
			return alarm.Wrap(alarm.ErrStorage, err, "persist state")
		}
	}
	m.st = next
	return ferr
}

func sortedAlarms(st memState, keep func(*alarm.Alarm) bool) []*alarm.Alarm {
	out := make([]*alarm.Alarm, 0, len(st.Alarms))
	for _, a := range st.Alarms {
		if keep == nil || keep(a) {
			out = append(out, a.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
	return out
}

func (m *Memory) AllAlarms(ctx context.Context) ([]*alarm.Alarm, error) {
	st, err := m.read(ctx)
	if err != nil {
		return nil, err
	}
	return sortedAlarms(st, nil), nil
}

func (m *Memory) ActiveAlarms(ctx context.Context) ([]*alarm.Alarm, error) {
	st, err := m.read(ctx)
	if err != nil {
		return nil, err
	}
	return sortedAlarms(st, (*alarm.Alarm).IsActive), nil
}

func (m *Memory) DisabledAlarms(ctx context.Context) ([]*alarm.Alarm, error) {
	st, err := m.read(ctx)
	if err != nil {
		return nil, err
	}
	return sortedAlarms(st, func(a *alarm.Alarm) bool { return !a.Enabled() }), nil
}

func (m *Memory) Alarm(ctx context.Context, id int64) (*alarm.Alarm, error) {
	st, err := m.read(ctx)
	if err != nil {
		return nil, err
	}
	a, ok := st.Alarms[id]
	if !ok {
		return nil, notFound(id)
	}
	return a.Clone(), nil
}

func (m *Memory) CountAlarms(ctx context.Context) (int, error) {
	st, err := m.read(ctx)
	if err != nil {
		return 0, err
	}
	return len(st.Alarms), nil
}

func (m *Memory) AddAlarm(ctx context.Context, a *alarm.Alarm) (*alarm.Alarm, error) {
	var out *alarm.Alarm
	err := m.update(ctx, func(st *memState) (bool, error) {
		stored, err := storedCopy(a, st.NextID, m.now())
		if err != nil {
			return false, err
		}
		st.Alarms[stored.ID()] = stored
		st.NextID++
		out = stored.Clone()
		return true, nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (m *Memory) EditAlarm(ctx context.Context, id int64, p alarm.Patch) (*alarm.Alarm, error) {
	var out *alarm.Alarm
	err := m.update(ctx, func(st *memState) (bool, error) {
		cur, ok := st.Alarms[id]
		if !ok {
			return false, notFound(id)
		}
		next, perr := patched(cur, p, m.now())
		out = next.Clone()
		if next.Equal(cur) {
			return false, perr
		}
		st.Alarms[id] = next
		return true, perr
	})
	if out == nil {
		return nil, err
	}
	return out, err
}

func (m *Memory) DeleteAlarm(ctx context.Context, id int64) error {
	return m.update(ctx, func(st *memState) (bool, error) {
		if _, ok := st.Alarms[id]; !ok {
			return false, notFound(id)
		}
		delete(st.Alarms, id)
		return true, nil
	})
}

func (m *Memory) DeleteAllAlarms(ctx context.Context) (int, error) {
	n := 0
	err := m.update(ctx, func(st *memState) (bool, error) {
		n = len(st.Alarms)
		st.Alarms = map[int64]*alarm.Alarm{}
		return n > 0, nil
	})
	if err != nil {
		return 0, err
	}
	return n, nil
}

func (m *Memory) Settings(ctx context.Context) (Settings, error) {
	st, err := m.read(ctx)
	if err != nil {
		return Settings{}, err
	}
	return st.Settings, nil
}

func (m *Memory) SetSnoozeMinutes(ctx context.Context, minutes int) error {
	if err := checkMinutes("snooze", minutes); err != nil {
		return err
	}
	return m.update(ctx, func(st *memState) (bool, error) {
		st.Settings.SnoozeMinutes = minutes
		return true, nil
	})
}

func (m *Memory) SetPrealertMinutes(ctx context.Context, minutes int) error {
	if err := checkMinutes("prealert", minutes); err != nil {
		return err
	}
	return m.update(ctx, func(st *memState) (bool, error) {
		st.Settings.PrealertMinutes = minutes
		return true, nil
	})
}

func (m *Memory) ResetSettings(ctx context.Context) error {
	return m.update(ctx, func(st *memState) (bool, error) {
		st.Settings = DefaultSettings()
		return true, nil
	})
}

func (m *Memory) AppendAudit(ctx context.Context, e AuditEntry) error {
	if err := ctxErr(ctx); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	m.audit = append(m.audit, auditNow(e))
	if len(m.audit) > memoryAuditCap {
		m.audit = append([]AuditEntry(nil), m.audit[len(m.audit)-memoryAuditCap:]...)
	}
	return nil
}

// Audit returns the retained audit entries, oldest first.
func (m *Memory) Audit() []AuditEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]AuditEntry(nil), m.audit...)
}

func (m *Memory) PutDedup(ctx context.Context, key string, until time.Time) error {
	if key == "" {
		return nil
	}
	return m.update(ctx, func(st *memState) (bool, error) {
		now := m.now().UnixMilli()
		for k, v := range st.Dedup {
			if v < now {
				delete(st.Dedup, k)
			}
		}
		st.Dedup[key] = until.UnixMilli()
		return true, nil
	})
}

func (m *Memory) GetDedup(ctx context.Context, key string) (time.Time, bool, error) {
	st, err := m.read(ctx)
	if err != nil {
		return time.Time{}, false, err
	}
	ms, ok := st.Dedup[key]
	if !ok {
		return time.Time{}, false, nil
	}
	return time.UnixMilli(ms), true, nil
}

func (m *Memory) Close() error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	return nil
}
