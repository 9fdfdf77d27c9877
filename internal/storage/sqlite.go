package storage

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	"lightup/internal/alarm"
	logx "lightup/pkg/logx"
)

//go:embed migrations.sql
var sqliteMigrations string

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
	now func() time.Time

	opCount    atomic.Uint64
	pruneEvery uint64
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, alarm.Errorf(alarm.ErrInvalid, "sqlite path is required")
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, alarm.Wrap(alarm.ErrStorage, err, "create %s", filepath.Dir(path))
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, alarm.Wrap(alarm.ErrStorage, err, "open sqlite")
	}
	// SQLite prefers a single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	st := &sqliteStore{db: db, log: log, now: time.Now, pruneEvery: 500}

	busy := cfg.BusyTimeout
	if busy <= 0 {
		busy = 5 * time.Second
	}
	_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", busy.Milliseconds()))
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	if _, err := db.ExecContext(context.Background(), sqliteMigrations); err != nil {
		_ = db.Close()
		return nil, alarm.Wrap(alarm.ErrStorage, err, "migrate sqlite")
	}
	log.Debug("sqlite store opened", logx.String("path", path))
	return st, nil
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *sqliteStore) queryAlarms(ctx context.Context, where string, args ...any) ([]*alarm.Alarm, error) {
	q := "SELECT " + alarmColumns + " FROM alarms"
	if where != "" {
		q += " WHERE " + where
	}
	rows, err := s.db.QueryContext(ctx, q+" ORDER BY id", args...)
	if err != nil {
		return nil, storageErr(err, "query alarms")
	}
	defer rows.Close()
	var out []*alarm.Alarm
	for rows.Next() {
		a, err := scanAlarm(rows)
		if err != nil {
			return nil, storageErr(err, "scan alarm")
		}
		out = append(out, a)
	}
	return out, storageErr(rows.Err(), "query alarms")
}

func (s *sqliteStore) AllAlarms(ctx context.Context) ([]*alarm.Alarm, error) {
	return s.queryAlarms(ctx, "")
}

func (s *sqliteStore) ActiveAlarms(ctx context.Context) ([]*alarm.Alarm, error) {
	return s.queryAlarms(ctx, "enabled = 1 AND (monday + tuesday + wednesday + thursday + friday + saturday + sunday) > 0")
}

func (s *sqliteStore) DisabledAlarms(ctx context.Context) ([]*alarm.Alarm, error) {
	return s.queryAlarms(ctx, "enabled = 0")
}

func (s *sqliteStore) Alarm(ctx context.Context, id int64) (*alarm.Alarm, error) {
	a, err := scanAlarm(s.db.QueryRowContext(ctx, "SELECT "+alarmColumns+" FROM alarms WHERE id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound(id)
	}
	if err != nil {
		return nil, storageErr(err, "get alarm")
	}
	return a, nil
}

func (s *sqliteStore) CountAlarms(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM alarms").Scan(&n); err != nil {
		return 0, storageErr(err, "count alarms")
	}
	return n, nil
}

func (s *sqliteStore) AddAlarm(ctx context.Context, a *alarm.Alarm) (*alarm.Alarm, error) {
	// Validate and stamp with a placeholder id; the row id replaces it.
	draft, err := storedCopy(a, 1, s.now())
	if err != nil {
		return nil, err
	}
	cols := strings.TrimPrefix(alarmColumns, "id, ")
	res, err := s.db.ExecContext(ctx,
		"INSERT INTO alarms("+cols+") VALUES("+placeholders(12, 1, false)+")",
		alarmValues(draft)...)
	if err != nil {
		return nil, storageErr(err, "insert alarm")
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, storageErr(err, "insert alarm")
	}
	return storedCopy(draft, id, s.now())
}

func (s *sqliteStore) EditAlarm(ctx context.Context, id int64, p alarm.Patch) (*alarm.Alarm, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, storageErr(err, "begin edit")
	}
	defer func() { _ = tx.Rollback() }()

	cur, err := scanAlarm(tx.QueryRowContext(ctx, "SELECT "+alarmColumns+" FROM alarms WHERE id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound(id)
	}
	if err != nil {
		return nil, storageErr(err, "get alarm")
	}
	next, perr := patched(cur, p, s.now())
	if next.Equal(cur) {
		return next, perr
	}
	args := append(alarmValues(next), id)
	if _, err := tx.ExecContext(ctx, "UPDATE alarms SET "+assignments(false)+" WHERE id = ?", args...); err != nil {
		return nil, storageErr(err, "update alarm")
	}
	if err := tx.Commit(); err != nil {
		return nil, storageErr(err, "commit edit")
	}
	return next, perr
}

func (s *sqliteStore) DeleteAlarm(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM alarms WHERE id = ?", id)
	if err != nil {
		return storageErr(err, "delete alarm")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return notFound(id)
	}
	return nil
}

func (s *sqliteStore) DeleteAllAlarms(ctx context.Context) (int, error) {
	res, err := s.db.ExecContext(ctx, "DELETE FROM alarms")
	if err != nil {
		return 0, storageErr(err, "delete alarms")
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

func (s *sqliteStore) Settings(ctx context.Context) (Settings, error) {
	var out Settings
	err := s.db.QueryRowContext(ctx, "SELECT snooze_minutes, prealert_minutes FROM settings WHERE id = 1").
		Scan(&out.SnoozeMinutes, &out.PrealertMinutes)
	if errors.Is(err, sql.ErrNoRows) {
		return DefaultSettings(), nil
	}
	if err != nil {
		return Settings{}, storageErr(err, "get settings")
	}
	return out, nil
}

func (s *sqliteStore) setSetting(ctx context.Context, column string, v int) error {
	if err := checkMinutes(strings.TrimSuffix(column, "_minutes"), v); err != nil {
		return err
	}
	def := DefaultSettings()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO settings(id, snooze_minutes, prealert_minutes) VALUES(1, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET `+column+` = ?`,
		def.SnoozeMinutes, def.PrealertMinutes, v)
	return storageErr(err, "set "+column)
}

func (s *sqliteStore) SetSnoozeMinutes(ctx context.Context, minutes int) error {
	return s.setSetting(ctx, "snooze_minutes", minutes)
}

func (s *sqliteStore) SetPrealertMinutes(ctx context.Context, minutes int) error {
	return s.setSetting(ctx, "prealert_minutes", minutes)
}

func (s *sqliteStore) ResetSettings(ctx context.Context) error {
	def := DefaultSettings()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO settings(id, snooze_minutes, prealert_minutes) VALUES(1, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET snooze_minutes = excluded.snooze_minutes, prealert_minutes = excluded.prealert_minutes`,
		def.SnoozeMinutes, def.PrealertMinutes)
	return storageErr(err, "reset settings")
}

func (s *sqliteStore) AppendAudit(ctx context.Context, e AuditEntry) error {
	e = auditNow(e)
	var alarmID any
	if e.AlarmID > 0 {
		alarmID = e.AlarmID
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO audit(at, source, action, alarm_id, ok, err, took_ms, meta) VALUES(?,?,?,?,?,?,?,?)`,
		e.At.Format(time.RFC3339Nano), e.Source, e.Action, alarmID, e.OK, nullStr(e.Error), e.TookMS, nullStr(e.Meta),
	)
	return storageErr(err, "append audit")
}

func (s *sqliteStore) PutDedup(ctx context.Context, key string, until time.Time) error {
	if key == "" {
		return nil
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO dedup(key, until) VALUES(?,?)
		 ON CONFLICT(key) DO UPDATE SET until=excluded.until`,
		key, until.UnixMilli(),
	)
	if err == nil && s.opCount.Add(1)%s.pruneEvery == 0 {
		pctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		_, _ = s.db.ExecContext(pctx, `DELETE FROM dedup WHERE until < ?`, s.now().UnixMilli())
		cancel()
	}
	return storageErr(err, "put dedup")
}

func (s *sqliteStore) GetDedup(ctx context.Context, key string) (time.Time, bool, error) {
	if key == "" {
		return time.Time{}, false, nil
	}
	var ms int64
	err := s.db.QueryRowContext(ctx, `SELECT until FROM dedup WHERE key = ?`, key).Scan(&ms)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, storageErr(err, "get dedup")
	}
	return time.UnixMilli(ms), true, nil
}
