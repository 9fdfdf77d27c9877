package storage

import (
	"strconv"
	"strings"

	"lightup/internal/alarm"
)

const alarmColumns = "id, hour, minute, monday, tuesday, wednesday, thursday, friday, saturday, sunday, enabled, label, timestamp"

// rowScanner is satisfied by database/sql and pgx rows alike.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanAlarm(row rowScanner) (*alarm.Alarm, error) {
	var r alarmRecord
	if err := row.Scan(&r.ID, &r.Hour, &r.Minute,
		&r.Monday, &r.Tuesday, &r.Wednesday, &r.Thursday, &r.Friday, &r.Saturday, &r.Sunday,
		&r.Enabled, &r.Label, &r.Timestamp); err != nil {
		return nil, err
	}
	return r.alarm()
}

// alarmValues lists the writable columns of a in alarmColumns order, id
// excluded.
func alarmValues(a *alarm.Alarm) []any {
	r := recordOf(a)
	return []any{r.Hour, r.Minute,
		r.Monday, r.Tuesday, r.Wednesday, r.Thursday, r.Friday, r.Saturday, r.Sunday,
		r.Enabled, r.Label, r.Timestamp}
}

// placeholders renders n bind parameters, numbered from start when numbered
// is set ($1, $2 ...), otherwise as '?'.
func placeholders(n, start int, numbered bool) string {
	var b strings.Builder
	for i := 0; i < n; i++ {
		if i > 0 {
			b.WriteString(", ")
		}
		if numbered {
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(start + i))
		} else {
			b.WriteByte('?')
		}
	}
	return b.String()
}

// assignments renders "col = ?" pairs for the writable columns.
func assignments(numbered bool) string {
	cols := strings.Split(alarmColumns, ", ")[1:]
	parts := make([]string, len(cols))
	for i, c := range cols {
		if numbered {
			parts[i] = c + " = $" + strconv.Itoa(i+1)
		} else {
			parts[i] = c + " = ?"
		}
	}
	return strings.Join(parts, ", ")
}

func nullStr(v string) any {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return v
}
