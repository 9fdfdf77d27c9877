package alarm

import (
	"fmt"
	"strings"
	"time"
)

// Weekday indexes Repeat. Monday is 0.
type Weekday int

const (
	Monday Weekday = iota
	Tuesday
	Wednesday
	Thursday
	Friday
	Saturday
	Sunday
)

// DaysPerWeek is the length of a Repeat pattern.
const DaysPerWeek = 7

var weekdayNames = [DaysPerWeek]string{
	"monday", "tuesday", "wednesday", "thursday", "friday", "saturday", "sunday",
}

var weekdayShort = [DaysPerWeek]string{"Mon", "Tue", "Wed", "Thu", "Fri", "Sat", "Sun"}

func (d Weekday) Valid() bool { return d >= Monday && d <= Sunday }

func (d Weekday) String() string {
	if !d.Valid() {
		return fmt.Sprintf("Weekday(%d)", int(d))
	}
	return weekdayShort[d]
}

// Add moves d by n days, wrapping around the week.
func (d Weekday) Add(n int) Weekday {
	return Weekday(((int(d)+n)%DaysPerWeek + DaysPerWeek) % DaysPerWeek)
}

// Std converts d to the standard library's Sunday-first weekday.
func (d Weekday) Std() time.Weekday { return time.Weekday((int(d) + 1) % DaysPerWeek) }

// WeekdayOf returns the weekday of t in t's location.
func WeekdayOf(t time.Time) Weekday {
	return Weekday((int(t.Weekday()) + 6) % DaysPerWeek)
}

// ParseWeekday accepts short ("mon") or full ("monday") names, any case.
func ParseWeekday(s string) (Weekday, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for i := range weekdayNames {
		if s == weekdayNames[i] || s == strings.ToLower(weekdayShort[i]) {
			return Weekday(i), nil
		}
	}
	return 0, Errorf(ErrInvalid, "unknown weekday %q", s)
}

// Repeat is the set of weekdays an alarm fires on, indexed by Weekday.
type Repeat [DaysPerWeek]bool

// Days builds a Repeat with the given days set.
func Days(days ...Weekday) Repeat {
	var r Repeat
	for _, d := range days {
		if d.Valid() {
			r[d] = true
		}
	}
	return r
}

var (
	EveryDay = Repeat{true, true, true, true, true, true, true}
	Weekdays = Repeat{true, true, true, true, true, false, false}
	Weekend  = Repeat{false, false, false, false, false, true, true}
)

// Any reports whether at least one day is set.
func (r Repeat) Any() bool {
	for _, on := range r {
		if on {
			return true
		}
	}
	return false
}

func (r Repeat) Has(d Weekday) bool { return d.Valid() && r[d] }

// List returns the set days in week order.
func (r Repeat) List() []Weekday {
	out := make([]Weekday, 0, DaysPerWeek)
	for i, on := range r {
		if on {
			out = append(out, Weekday(i))
		}
	}
	return out
}

// Rotate shifts every set day by n days. Rotate(1) moves Sunday to Monday.
func (r Repeat) Rotate(n int) Repeat {
	var out Repeat
	for i, on := range r {
		if on {
			out[Weekday(i).Add(n)] = true
		}
	}
	return out
}

// String renders the pattern as "Mon --- --- Thu --- --- Sun ".
func (r Repeat) String() string {
	var b strings.Builder
	for i, on := range r {
		if on {
			b.WriteString(weekdayShort[i])
		} else {
			b.WriteString("---")
		}
		b.WriteByte(' ')
	}
	return b.String()
}

// ParseRepeat accepts a comma separated day list ("mon,thu"), a 7 character
// mask starting on Monday ("1001000"), or one of "daily", "weekdays",
// "weekend", "none".
func ParseRepeat(s string) (Repeat, error) {
	raw := strings.ToLower(strings.TrimSpace(s))
	switch raw {
	case "daily", "everyday", "all":
		return EveryDay, nil
	case "weekdays":
		return Weekdays, nil
	case "weekend":
		return Weekend, nil
	case "", "none", "never":
		return Repeat{}, nil
	}
	if len(raw) == DaysPerWeek && strings.Trim(raw, "01") == "" {
		var r Repeat
		for i := 0; i < DaysPerWeek; i++ {
			r[i] = raw[i] == '1'
		}
		return r, nil
	}
	var r Repeat
	for _, part := range strings.Split(raw, ",") {
		d, err := ParseWeekday(part)
		if err != nil {
			return Repeat{}, err
		}
		r[d] = true
	}
	return r, nil
}
