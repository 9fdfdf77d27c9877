package export

import (
	"fmt"
	"io"
	"time"

	"github.com/emersion/go-ical"

	"lightup/internal/alarm"
)

// ProductID identifies the generator in exported calendars.
const ProductID = "-//lightup//alarms//EN"

// UIDDomain suffixes event UIDs so that they stay stable across exports.
const UIDDomain = "lightup"

// Calendar builds a VCALENDAR with one weekly VEVENT per active alarm,
// starting at each alarm's first firing at or after from. Inactive alarms
// are skipped.
func Calendar(alarms []*alarm.Alarm, from time.Time) (*ical.Calendar, error) {
	cal := ical.NewCalendar()
	cal.Props.SetText(ical.PropVersion, "2.0")
	cal.Props.SetText(ical.PropProductID, ProductID)
	cal.Props.SetText(ical.PropCalendarScale, "GREGORIAN")

	for _, a := range alarms {
		if !a.IsActive() {
			continue
		}
		ev, err := event(a, from)
		if err != nil {
			return nil, err
		}
		cal.Children = append(cal.Children, ev.Component)
	}
	return cal, nil
}

func event(a *alarm.Alarm, from time.Time) (*ical.Event, error) {
	r, err := a.RRule(from)
	if err != nil {
		return nil, err
	}
	start := r.OrigOptions.Dtstart

	ev := ical.NewEvent()
	ev.Props.SetText(ical.PropUID, fmt.Sprintf("alarm-%d@%s", a.ID(), UIDDomain))
	ev.Props.SetText(ical.PropSummary, summary(a))
	ev.Props.SetDateTime(ical.PropDateTimeStamp, from.UTC())
	ev.Props.SetDateTime(ical.PropDateTimeStart, start)
	ev.Props.SetDateTime(ical.PropDateTimeEnd, start.Add(time.Minute))
	if a.Timestamp() > 0 {
		ev.Props.SetDateTime(ical.PropLastModified, time.Unix(a.Timestamp(), 0).UTC())
	}

	// RRULE values are not TEXT; SetText would escape the separators.
	rule := ical.NewProp(ical.PropRecurrenceRule)
	rule.SetValueType(ical.ValueRecurrence)
	rule.Value = r.OrigOptions.RRuleString()
	ev.Props.Set(rule)
	return ev, nil
}

func summary(a *alarm.Alarm) string {
	if a.Label() != "" {
		return fmt.Sprintf("%s %02d:%02d", a.Label(), a.Hour(), a.Minute())
	}
	return fmt.Sprintf("Alarm %d %02d:%02d", a.ID(), a.Hour(), a.Minute())
}

// WriteICS encodes the calendar for alarms to w.
func WriteICS(w io.Writer, alarms []*alarm.Alarm, from time.Time) error {
	cal, err := Calendar(alarms, from)
	if err != nil {
		return err
	}
	if err := ical.NewEncoder(w).Encode(cal); err != nil {
		return alarm.Wrap(alarm.ErrInternal, err, "encode calendar")
	}
	return nil
}
