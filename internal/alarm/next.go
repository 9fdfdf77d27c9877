package alarm

import "time"

// MinutesToAlert returns the minutes from the reference point until the
// alarm next fires. ok is false when no repeat day is set or the reference
// point is out of range.
//
// A reference equal to the alarm time on an enabled day yields 0. The result
// is always in [0, MinutesPerWeek-1].
func (a *Alarm) MinutesToAlert(refHour, refMinute int, refDay Weekday) (minutes int, ok bool) {
	if refHour < 0 || refHour > 23 || refMinute < 0 || refMinute > 59 || !refDay.Valid() {
		return 0, false
	}
	if !a.repeat.Any() {
		return 0, false
	}
	alarmMin := a.MinuteOfDay()
	refMin := refHour*60 + refMinute

	if a.repeat[refDay] && alarmMin >= refMin {
		return alarmMin - refMin, true
	}
	for n := 1; n < DaysPerWeek; n++ {
		if a.repeat[refDay.Add(n)] {
			// The second term is negative when the alarm is earlier in the
			// day than the reference.
			return n*MinutesPerDay + (alarmMin - refMin), true
		}
	}
	// Only today is set and its time has passed.
	return MinutesPerWeek - refMin + alarmMin, true
}

// MinutesToAlertAt is MinutesToAlert for the local wall clock reading of t.
func (a *Alarm) MinutesToAlertAt(t time.Time) (int, bool) {
	return a.MinutesToAlert(t.Hour(), t.Minute(), WeekdayOf(t))
}
