// Package alarm holds the alarm record, its weekly repeat pattern and the
// time arithmetic used to decide when an alarm fires next.
//
// An Alarm is only ever mutated through validated setters: an invalid value
// is rejected and the field keeps its previous value. Alarms handed to the
// scheduler are snapshots (see Clone), never shared references.
package alarm

import (
	"fmt"
	"strings"
	"time"
)

const (
	MinutesPerDay  = 24 * 60
	MinutesPerWeek = DaysPerWeek * MinutesPerDay
)

// Alarm is a recurring, weekday based alarm.
type Alarm struct {
	id        int64
	hour      int
	minute    int
	repeat    Repeat
	enabled   bool
	label     string
	timestamp int64
}

// Option configures an Alarm at construction.
type Option func(*Alarm) error

// WithID sets the persisted identity.
func WithID(id int64) Option {
	return func(a *Alarm) error { return a.AssignID(id) }
}

func WithLabel(label string) Option {
	return func(a *Alarm) error { return a.SetLabel(label) }
}

func WithTimestamp(ts int64) Option {
	return func(a *Alarm) error { return a.SetTimestamp(ts) }
}

// New validates its inputs and returns a new alarm. No alarm is returned
// when any value is out of range.
func New(hour, minute int, repeat Repeat, enabled bool, opts ...Option) (*Alarm, error) {
	a := &Alarm{repeat: repeat, enabled: enabled}
	if err := a.SetHour(hour); err != nil {
		return nil, err
	}
	if err := a.SetMinute(minute); err != nil {
		return nil, err
	}
	for _, o := range opts {
		if o == nil {
			continue
		}
		if err := o(a); err != nil {
			return nil, err
		}
	}
	return a, nil
}

// MustNew is New for literals in tests and seed data.
func MustNew(hour, minute int, repeat Repeat, enabled bool, opts ...Option) *Alarm {
	a, err := New(hour, minute, repeat, enabled, opts...)
	if err != nil {
		panic(err)
	}
	return a
}

// ID returns the persisted id, or 0 if the alarm was never saved.
func (a *Alarm) ID() int64 { return a.id }

func (a *Alarm) HasID() bool { return a.id > 0 }

func (a *Alarm) Hour() int        { return a.hour }
func (a *Alarm) Minute() int      { return a.minute }
func (a *Alarm) Repeat() Repeat   { return a.repeat }
func (a *Alarm) Enabled() bool    { return a.enabled }
func (a *Alarm) Label() string    { return a.label }
func (a *Alarm) Timestamp() int64 { return a.timestamp }

// MinuteOfDay is hour*60+minute.
func (a *Alarm) MinuteOfDay() int { return a.hour*60 + a.minute }

// IsActive reports whether the alarm is enabled and repeats on at least one
// day. Only active alarms are scheduled.
func (a *Alarm) IsActive() bool { return a != nil && a.enabled && a.repeat.Any() }

// AssignID sets the identity once. Reassigning a different id is an error.
func (a *Alarm) AssignID(id int64) error {
	if id <= 0 {
		return Errorf(ErrInvalid, "id must be positive, got %d", id)
	}
	if a.id != 0 && a.id != id {
		return Errorf(ErrIdentity, "alarm already has id %d", a.id)
	}
	a.id = id
	return nil
}

func (a *Alarm) SetHour(h int) error {
	if h < 0 || h > 23 {
		return Errorf(ErrInvalid, "hour must be in [0,23], got %d", h)
	}
	a.hour = h
	return nil
}

func (a *Alarm) SetMinute(m int) error {
	if m < 0 || m > 59 {
		return Errorf(ErrInvalid, "minute must be in [0,59], got %d", m)
	}
	a.minute = m
	return nil
}

func (a *Alarm) SetRepeat(r Repeat) error {
	a.repeat = r
	return nil
}

// SetDay toggles a single repeat day.
func (a *Alarm) SetDay(d Weekday, on bool) error {
	if !d.Valid() {
		return Errorf(ErrInvalid, "weekday must be in [0,6], got %d", int(d))
	}
	a.repeat[d] = on
	return nil
}

func (a *Alarm) SetEnabled(on bool) error {
	a.enabled = on
	return nil
}

func (a *Alarm) SetLabel(label string) error {
	if strings.ContainsAny(label, "\r\n") {
		return Errorf(ErrInvalid, "label must be a single line")
	}
	a.label = label
	return nil
}

func (a *Alarm) SetTimestamp(ts int64) error {
	if ts < 0 {
		return Errorf(ErrInvalid, "timestamp must be >= 0, got %d", ts)
	}
	a.timestamp = ts
	return nil
}

// Touch stamps the alarm with t as seconds since the epoch.
func (a *Alarm) Touch(t time.Time) { a.timestamp = t.Unix() }

// Clone returns an independent copy.
func (a *Alarm) Clone() *Alarm {
	if a == nil {
		return nil
	}
	c := *a
	return &c
}

// SameSchedule compares the fields that decide when an alarm fires.
func (a *Alarm) SameSchedule(b *Alarm) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.hour == b.hour && a.minute == b.minute && a.repeat == b.repeat && a.enabled == b.enabled
}

// Equal compares every field.
func (a *Alarm) Equal(b *Alarm) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// Matches reports whether t falls inside the alarm's firing window: same
// weekday, hour and minute. It ignores the enabled flag.
func (a *Alarm) Matches(t time.Time) bool {
	return a.repeat.Has(WeekdayOf(t)) && t.Hour() == a.hour && t.Minute() == a.minute
}

func (a *Alarm) String() string {
	enabled := "No"
	if a.enabled {
		enabled = "Yes"
	}
	return fmt.Sprintf("Alarm ID: %3d | Time: %02d:%02d | Enabled: %s | Repeat: %s",
		a.id, a.hour, a.minute, enabled, a.repeat)
}
