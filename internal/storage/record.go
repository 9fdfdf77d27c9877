package storage

import (
	"context"
	"fmt"
	"time"

	"lightup/internal/alarm"
)

// alarmRecord is the row shape shared by the drivers: one boolean per
// weekday, as in the alarms table.
type alarmRecord struct {
	ID        int64  `json:"id"`
	Hour      int    `json:"hour"`
	Minute    int    `json:"minute"`
	Monday    bool   `json:"monday"`
	Tuesday   bool   `json:"tuesday"`
	Wednesday bool   `json:"wednesday"`
	Thursday  bool   `json:"thursday"`
	Friday    bool   `json:"friday"`
	Saturday  bool   `json:"saturday"`
	Sunday    bool   `json:"sunday"`
	Enabled   bool   `json:"enabled"`
	Label     string `json:"label"`
	Timestamp int64  `json:"timestamp"`
}

func recordOf(a *alarm.Alarm) alarmRecord {
	r := a.Repeat()
	return alarmRecord{
		ID:        a.ID(),
		Hour:      a.Hour(),
		Minute:    a.Minute(),
		Monday:    r[alarm.Monday],
		Tuesday:   r[alarm.Tuesday],
		Wednesday: r[alarm.Wednesday],
		Thursday:  r[alarm.Thursday],
		Friday:    r[alarm.Friday],
		Saturday:  r[alarm.Saturday],
		Sunday:    r[alarm.Sunday],
		Enabled:   a.Enabled(),
		Label:     a.Label(),
		Timestamp: a.Timestamp(),
	}
}

func (r alarmRecord) repeat() alarm.Repeat {
	return alarm.Repeat{r.Monday, r.Tuesday, r.Wednesday, r.Thursday, r.Friday, r.Saturday, r.Sunday}
}

func (r alarmRecord) alarm() (*alarm.Alarm, error) {
	a, err := alarm.New(r.Hour, r.Minute, r.repeat(), r.Enabled,
		alarm.WithID(r.ID), alarm.WithLabel(r.Label), alarm.WithTimestamp(r.Timestamp))
	if err != nil {
		return nil, alarm.Wrap(alarm.ErrStorage, err, "corrupt alarm row %d", r.ID)
	}
	return a, nil
}

// storedCopy rebuilds a under id, stamped with the write time. A caller's
// timestamp is never kept.
func storedCopy(a *alarm.Alarm, id int64, now time.Time) (*alarm.Alarm, error) {
	if a == nil {
		return nil, alarm.Errorf(alarm.ErrInvalid, "nil alarm")
	}
	return alarm.New(a.Hour(), a.Minute(), a.Repeat(), a.Enabled(),
		alarm.WithID(id), alarm.WithLabel(a.Label()), alarm.WithTimestamp(now.Unix()))
}

// patched returns a copy of cur with p applied. The copy is valid even when
// err is not nil: failed fields keep their old values.
func patched(cur *alarm.Alarm, p alarm.Patch, now time.Time) (*alarm.Alarm, error) {
	next := cur.Clone()
	err := p.Apply(next)
	if err == nil && !p.IsEmpty() {
		next.Touch(now)
	}
	return next, err
}

func notFound(id int64) error {
	return fmt.Errorf("alarm %d: %w", id, ErrNotFound)
}

func checkMinutes(name string, v int) error {
	if v < 0 {
		return alarm.Errorf(alarm.ErrInvalid, "%s must not be negative, got %d", name, v)
	}
	return nil
}

func storageErr(err error, op string) error {
	if err == nil {
		return nil
	}
	if alarm.ErrorCode(err) != alarm.ErrInternal {
		return err
	}
	return alarm.Wrap(alarm.ErrStorage, err, "%s", op)
}

func auditNow(e AuditEntry) AuditEntry {
	if e.At.IsZero() {
		e.At = time.Now()
	}
	return e
}

func ctxErr(ctx context.Context) error {
	if ctx == nil {
		return nil
	}
	return ctx.Err()
}
