package storage

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"lightup/internal/alarm"
	logx "lightup/pkg/logx"
)

// fileStore keeps the state in memory and rewrites a snapshot on every
// change.
//
// Files:
//   - <path>                 (JSON snapshot: alarms, settings, dedup)
//   - <prefix>.audit.jsonl   (append-only JSON Lines)
type fileStore struct {
	*Memory
	log logx.Logger

	path string

	auditMu   sync.Mutex
	auditFile *os.File
}

type fileSnapshot struct {
	NextID   int64            `json:"next_id"`
	Alarms   []alarmRecord    `json:"alarms"`
	Settings *Settings        `json:"settings,omitempty"`
	Dedup    map[string]int64 `json:"dedup,omitempty"`
}

func openFile(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, alarm.Errorf(alarm.ErrInvalid, "storage.path is required for file driver")
	}
	dir := filepath.Dir(path)
	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, alarm.Wrap(alarm.ErrStorage, err, "create %s", dir)
	}

	st, err := loadSnapshot(path)
	if err != nil {
		return nil, err
	}

	af, err := os.OpenFile(filepath.Join(dir, base+".audit.jsonl"), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, alarm.Wrap(alarm.ErrStorage, err, "open audit log")
	}

	mem := NewMemory()
	mem.st = st
	fs := &fileStore{Memory: mem, log: log, path: path, auditFile: af}
	mem.commit = fs.writeSnapshot
	log.Debug("file store opened", logx.String("path", path), logx.Int("alarms", len(st.Alarms)))
	return fs, nil
}

func loadSnapshot(path string) (memState, error) {
	st := newMemState()
	b, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return st, nil
	}
	if err != nil {
		return st, alarm.Wrap(alarm.ErrStorage, err, "read %s", path)
	}
	var snap fileSnapshot
	if err := json.Unmarshal(b, &snap); err != nil {
		return st, alarm.Wrap(alarm.ErrStorage, err, "decode %s", path)
	}
	for _, r := range snap.Alarms {
		a, err := r.alarm()
		if err != nil {
			return st, err
		}
		st.Alarms[a.ID()] = a
		if a.ID() >= st.NextID {
			st.NextID = a.ID() + 1
		}
	}
	if snap.NextID > st.NextID {
		st.NextID = snap.NextID
	}
	if snap.Settings != nil {
		st.Settings = *snap.Settings
	}
	for k, v := range snap.Dedup {
		st.Dedup[k] = v
	}
	return st, nil
}

// writeSnapshot runs under the Memory lock.
func (s *fileStore) writeSnapshot(st memState) error {
	snap := fileSnapshot{
		NextID:   st.NextID,
		Alarms:   make([]alarmRecord, 0, len(st.Alarms)),
		Settings: &st.Settings,
		Dedup:    st.Dedup,
	}
	for _, a := range sortedAlarms(st, nil) {
		snap.Alarms = append(snap.Alarms, recordOf(a))
	}

	tmp := s.path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(snap); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}

func (s *fileStore) AppendAudit(ctx context.Context, e AuditEntry) error {
	if err := ctxErr(ctx); err != nil {
		return err
	}
	s.auditMu.Lock()
	defer s.auditMu.Unlock()
	if s.auditFile == nil {
		return ErrClosed
	}
	return json.NewEncoder(s.auditFile).Encode(auditNow(e))
}

func (s *fileStore) Close() error {
	_ = s.Memory.Close()
	s.auditMu.Lock()
	defer s.auditMu.Unlock()
	if s.auditFile == nil {
		return nil
	}
	err := s.auditFile.Close()
	s.auditFile = nil
	return err
}
