package alarm

// Offset derives the alarm shifted by minutes, negative for a pre-alert and
// positive for a post-alert. When the shift crosses midnight the repeat days
// move with it. The result keeps the id, enabled flag and label and is never
// persisted.
func (a *Alarm) Offset(minutes int) (*Alarm, error) {
	if minutes <= -MinutesPerDay || minutes >= MinutesPerDay {
		return nil, Errorf(ErrInvalid, "offset must be within one day, got %d minutes", minutes)
	}
	total := a.MinuteOfDay() + minutes
	shift := 0
	switch {
	case total < 0:
		total += MinutesPerDay
		shift = -1
	case total >= MinutesPerDay:
		total -= MinutesPerDay
		shift = 1
	}
	o := a.Clone()
	o.hour = total / 60
	o.minute = total % 60
	o.repeat = a.repeat.Rotate(shift)
	return o, nil
}
