package alarm

import (
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/teambition/rrule-go"
)

var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// CronSpec renders the schedule as a standard 5-field cron expression, for
// example "30 9 * * 1,4" for 09:30 on Monday and Thursday.
func (a *Alarm) CronSpec() (string, error) {
	days := a.repeat.List()
	if len(days) == 0 {
		return "", Errorf(ErrInvalid, "alarm %d has no repeat days", a.id)
	}
	dow := make([]string, 0, len(days))
	// cron counts from Sunday=0; keep the list ascending.
	if a.repeat[Sunday] {
		dow = append(dow, "0")
	}
	for _, d := range days {
		if d != Sunday {
			dow = append(dow, strconv.Itoa(int(d.Std())))
		}
	}
	return strconv.Itoa(a.minute) + " " + strconv.Itoa(a.hour) + " * * " + strings.Join(dow, ","), nil
}

// NextAt returns the first firing instant at or after the minute containing
// from, in from's location. ok is false when the alarm has no repeat days.
func (a *Alarm) NextAt(from time.Time) (time.Time, bool) {
	spec, err := a.CronSpec()
	if err != nil {
		return time.Time{}, false
	}
	sched, err := cronParser.Parse(spec)
	if err != nil {
		return time.Time{}, false
	}
	minute := from.Truncate(time.Minute)
	return sched.Next(minute.Add(-time.Second)), true
}

var rruleDays = [DaysPerWeek]rrule.Weekday{
	rrule.MO, rrule.TU, rrule.WE, rrule.TH, rrule.FR, rrule.SA, rrule.SU,
}

// RRule renders the alarm as a weekly recurrence starting at the first
// firing at or after from.
func (a *Alarm) RRule(from time.Time) (*rrule.RRule, error) {
	start, ok := a.NextAt(from)
	if !ok {
		return nil, Errorf(ErrInvalid, "alarm %d has no repeat days", a.id)
	}
	days := a.repeat.List()
	by := make([]rrule.Weekday, 0, len(days))
	for _, d := range days {
		by = append(by, rruleDays[d])
	}
	r, err := rrule.NewRRule(rrule.ROption{
		Freq:      rrule.WEEKLY,
		Dtstart:   start,
		Byweekday: by,
		Byhour:    []int{a.hour},
		Byminute:  []int{a.minute},
		Bysecond:  []int{0},
	})
	if err != nil {
		return nil, Wrap(ErrInternal, err, "build rrule for alarm %d", a.id)
	}
	return r, nil
}
