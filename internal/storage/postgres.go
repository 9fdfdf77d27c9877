package storage

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/tracelog"

	"lightup/internal/alarm"
	logx "lightup/pkg/logx"
)

//go:embed migrations_postgres.sql
var postgresMigrations string

const (
	defaultPGMaxConns     = 4
	defaultPGConnAttempts = 10
	defaultPGConnDelay    = time.Second
)

type postgresStore struct {
	pool *pgxpool.Pool
	log  logx.Logger
	now  func() time.Time
}

func openPostgres(cfg Config, log logx.Logger) (Store, error) {
	dsn := strings.TrimSpace(cfg.DSN)
	if dsn == "" {
		return nil, alarm.Errorf(alarm.ErrInvalid, "storage.dsn is required for postgres driver")
	}
	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, alarm.Wrap(alarm.ErrInvalid, err, "parse postgres dsn")
	}
	poolConfig.MaxConns = defaultPGMaxConns
	poolConfig.ConnConfig.Tracer = &tracelog.TraceLog{
		Logger:   pgxLogger{log: log},
		LogLevel: tracelog.LogLevelTrace,
	}

	attempts := cfg.ConnectAttempts
	if attempts <= 0 {
		attempts = defaultPGConnAttempts
	}
	delay := cfg.ConnectDelay
	if delay <= 0 {
		delay = defaultPGConnDelay
	}

	var pool *pgxpool.Pool
	for attempts > 0 {
		pool, err = connectPostgres(poolConfig, delay)
		if err == nil {
			break
		}
		attempts--
		log.Warn("postgres is trying to connect", logx.Int("attempts_left", attempts), logx.Err(err))
		if attempts > 0 {
			time.Sleep(delay)
		}
	}
	if err != nil {
		return nil, alarm.Wrap(alarm.ErrStorage, err, "connect postgres")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if _, err := pool.Exec(ctx, postgresMigrations); err != nil {
		pool.Close()
		return nil, alarm.Wrap(alarm.ErrStorage, pgErr(err), "migrate postgres")
	}
	log.Debug("postgres store opened")
	return &postgresStore{pool: pool, log: log, now: time.Now}, nil
}

func connectPostgres(cfg *pgxpool.Config, timeout time.Duration) (*pgxpool.Pool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}

// pgErr flattens a server error into one readable line.
func pgErr(err error) error {
	var pe *pgconn.PgError
	if errors.As(err, &pe) {
		return fmt.Errorf("%s (code %s, detail: %s): %w", pe.Message, pe.Code, pe.Detail, err)
	}
	return err
}

func pgStorageErr(err error, op string) error {
	if err == nil {
		return nil
	}
	return storageErr(pgErr(err), op)
}

func (s *postgresStore) Close() error {
	if s == nil || s.pool == nil {
		return nil
	}
	s.pool.Close()
	return nil
}

func (s *postgresStore) queryAlarms(ctx context.Context, where string, args ...any) ([]*alarm.Alarm, error) {
	q := "SELECT " + alarmColumns + " FROM alarms"
	if where != "" {
		q += " WHERE " + where
	}
	rows, err := s.pool.Query(ctx, q+" ORDER BY id", args...)
	if err != nil {
		return nil, pgStorageErr(err, "query alarms")
	}
	defer rows.Close()
	var out []*alarm.Alarm
	for rows.Next() {
		a, err := scanAlarm(rows)
		if err != nil {
			return nil, pgStorageErr(err, "scan alarm")
		}
		out = append(out, a)
	}
	return out, pgStorageErr(rows.Err(), "query alarms")
}

func (s *postgresStore) AllAlarms(ctx context.Context) ([]*alarm.Alarm, error) {
	return s.queryAlarms(ctx, "")
}

func (s *postgresStore) ActiveAlarms(ctx context.Context) ([]*alarm.Alarm, error) {
	return s.queryAlarms(ctx, "enabled AND (monday OR tuesday OR wednesday OR thursday OR friday OR saturday OR sunday)")
}

func (s *postgresStore) DisabledAlarms(ctx context.Context) ([]*alarm.Alarm, error) {
	return s.queryAlarms(ctx, "NOT enabled")
}

func (s *postgresStore) Alarm(ctx context.Context, id int64) (*alarm.Alarm, error) {
	a, err := scanAlarm(s.pool.QueryRow(ctx, "SELECT "+alarmColumns+" FROM alarms WHERE id = $1", id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, notFound(id)
	}
	if err != nil {
		return nil, pgStorageErr(err, "get alarm")
	}
	return a, nil
}

func (s *postgresStore) CountAlarms(ctx context.Context) (int, error) {
	var n int
	if err := s.pool.QueryRow(ctx, "SELECT COUNT(*) FROM alarms").Scan(&n); err != nil {
		return 0, pgStorageErr(err, "count alarms")
	}
	return n, nil
}

func (s *postgresStore) AddAlarm(ctx context.Context, a *alarm.Alarm) (*alarm.Alarm, error) {
	draft, err := storedCopy(a, 1, s.now())
	if err != nil {
		return nil, err
	}
	cols := strings.TrimPrefix(alarmColumns, "id, ")
	var id int64
	err = s.pool.QueryRow(ctx,
		"INSERT INTO alarms("+cols+") VALUES("+placeholders(12, 1, true)+") RETURNING id",
		alarmValues(draft)...).Scan(&id)
	if err != nil {
		return nil, pgStorageErr(err, "insert alarm")
	}
	return storedCopy(draft, id, s.now())
}

func (s *postgresStore) EditAlarm(ctx context.Context, id int64, p alarm.Patch) (*alarm.Alarm, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, pgStorageErr(err, "begin edit")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	cur, err := scanAlarm(tx.QueryRow(ctx, "SELECT "+alarmColumns+" FROM alarms WHERE id = $1 FOR UPDATE", id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, notFound(id)
	}
	if err != nil {
		return nil, pgStorageErr(err, "get alarm")
	}
	next, perr := patched(cur, p, s.now())
	if next.Equal(cur) {
		return next, perr
	}
	args := append(alarmValues(next), id)
	if _, err := tx.Exec(ctx, "UPDATE alarms SET "+assignments(true)+" WHERE id = $13", args...); err != nil {
		return nil, pgStorageErr(err, "update alarm")
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, pgStorageErr(err, "commit edit")
	}
	return next, perr
}

func (s *postgresStore) DeleteAlarm(ctx context.Context, id int64) error {
	tag, err := s.pool.Exec(ctx, "DELETE FROM alarms WHERE id = $1", id)
	if err != nil {
		return pgStorageErr(err, "delete alarm")
	}
	if tag.RowsAffected() == 0 {
		return notFound(id)
	}
	return nil
}

func (s *postgresStore) DeleteAllAlarms(ctx context.Context) (int, error) {
	tag, err := s.pool.Exec(ctx, "DELETE FROM alarms")
	if err != nil {
		return 0, pgStorageErr(err, "delete alarms")
	}
	return int(tag.RowsAffected()), nil
}

func (s *postgresStore) Settings(ctx context.Context) (Settings, error) {
	var out Settings
	err := s.pool.QueryRow(ctx, "SELECT snooze_minutes, prealert_minutes FROM settings WHERE id = 1").
		Scan(&out.SnoozeMinutes, &out.PrealertMinutes)
	if errors.Is(err, pgx.ErrNoRows) {
		return DefaultSettings(), nil
	}
	if err != nil {
		return Settings{}, pgStorageErr(err, "get settings")
	}
	return out, nil
}

func (s *postgresStore) setSetting(ctx context.Context, column string, v int) error {
	if err := checkMinutes(strings.TrimSuffix(column, "_minutes"), v); err != nil {
		return err
	}
	def := DefaultSettings()
	_, err := s.pool.Exec(ctx,
		`INSERT INTO settings(id, snooze_minutes, prealert_minutes) VALUES(1, $1, $2)
		 ON CONFLICT (id) DO UPDATE SET `+column+` = $3`,
		def.SnoozeMinutes, def.PrealertMinutes, v)
	return pgStorageErr(err, "set "+column)
}

func (s *postgresStore) SetSnoozeMinutes(ctx context.Context, minutes int) error {
	return s.setSetting(ctx, "snooze_minutes", minutes)
}

func (s *postgresStore) SetPrealertMinutes(ctx context.Context, minutes int) error {
	return s.setSetting(ctx, "prealert_minutes", minutes)
}

func (s *postgresStore) ResetSettings(ctx context.Context) error {
	def := DefaultSettings()
	_, err := s.pool.Exec(ctx,
		`INSERT INTO settings(id, snooze_minutes, prealert_minutes) VALUES(1, $1, $2)
		 ON CONFLICT (id) DO UPDATE SET snooze_minutes = EXCLUDED.snooze_minutes, prealert_minutes = EXCLUDED.prealert_minutes`,
		def.SnoozeMinutes, def.PrealertMinutes)
	return pgStorageErr(err, "reset settings")
}

func (s *postgresStore) AppendAudit(ctx context.Context, e AuditEntry) error {
	e = auditNow(e)
	var alarmID any
	if e.AlarmID > 0 {
		alarmID = e.AlarmID
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO audit(at, source, action, alarm_id, ok, err, took_ms, meta) VALUES($1,$2,$3,$4,$5,$6,$7,$8)`,
		e.At, e.Source, e.Action, alarmID, e.OK, nullStr(e.Error), e.TookMS, nullStr(e.Meta))
	return pgStorageErr(err, "append audit")
}

func (s *postgresStore) PutDedup(ctx context.Context, key string, until time.Time) error {
	if key == "" {
		return nil
	}
	batch := &pgx.Batch{}
	batch.Queue(`INSERT INTO dedup(key, until) VALUES($1, $2)
		ON CONFLICT (key) DO UPDATE SET until = EXCLUDED.until`, key, until.UnixMilli())
	batch.Queue(`DELETE FROM dedup WHERE until < $1`, s.now().UnixMilli())
	return pgStorageErr(s.pool.SendBatch(ctx, batch).Close(), "put dedup")
}

func (s *postgresStore) GetDedup(ctx context.Context, key string) (time.Time, bool, error) {
	if key == "" {
		return time.Time{}, false, nil
	}
	var ms int64
	err := s.pool.QueryRow(ctx, `SELECT until FROM dedup WHERE key = $1`, key).Scan(&ms)
	if errors.Is(err, pgx.ErrNoRows) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, pgStorageErr(err, "get dedup")
	}
	return time.UnixMilli(ms), true, nil
}

// pgxLogger routes pgx query traces to logx at trace level.
type pgxLogger struct {
	log logx.Logger
}

func (l pgxLogger) Log(_ context.Context, level tracelog.LogLevel, msg string, data map[string]any) {
	fields := make([]logx.Field, 0, 2)
	if sql, ok := data["sql"].(string); ok {
		fields = append(fields, logx.String("sql", strings.Join(strings.Fields(sql), " ")))
	}
	if err, ok := data["err"].(error); ok {
		fields = append(fields, logx.Err(err))
	}
	switch level {
	case tracelog.LogLevelError:
		l.log.Error("pgx."+msg, fields...)
	case tracelog.LogLevelWarn:
		l.log.Warn("pgx."+msg, fields...)
	default:
		l.log.Trace("pgx."+msg, fields...)
	}
}
