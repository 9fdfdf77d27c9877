package alarm

import (
	"errors"
)

// Patch is a partial update. Nil fields are left untouched.
type Patch struct {
	Hour    *int
	Minute  *int
	Repeat  *Repeat
	Enabled *bool
	Label   *string
}

// Ref returns a pointer to v, for building patches.
func Ref[T any](v T) *T { return &v }

func (p Patch) IsEmpty() bool {
	return p.Hour == nil && p.Minute == nil && p.Repeat == nil && p.Enabled == nil && p.Label == nil
}

// TouchesSchedule reports whether applying p can change when the alarm fires.
func (p Patch) TouchesSchedule() bool {
	return p.Hour != nil || p.Minute != nil || p.Repeat != nil || p.Enabled != nil
}

// Split returns one single-field patch per set field, in a fixed order.
func (p Patch) Split() []Patch {
	out := make([]Patch, 0, 5)
	if p.Hour != nil {
		out = append(out, Patch{Hour: p.Hour})
	}
	if p.Minute != nil {
		out = append(out, Patch{Minute: p.Minute})
	}
	if p.Repeat != nil {
		out = append(out, Patch{Repeat: p.Repeat})
	}
	if p.Enabled != nil {
		out = append(out, Patch{Enabled: p.Enabled})
	}
	if p.Label != nil {
		out = append(out, Patch{Label: p.Label})
	}
	return out
}

// Fields names the set fields using their storage column names.
func (p Patch) Fields() []string {
	out := make([]string, 0, 5)
	if p.Hour != nil {
		out = append(out, "hour")
	}
	if p.Minute != nil {
		out = append(out, "minute")
	}
	if p.Repeat != nil {
		out = append(out, "repeat")
	}
	if p.Enabled != nil {
		out = append(out, "enabled")
	}
	if p.Label != nil {
		out = append(out, "label")
	}
	return out
}

// Apply runs every set field through its setter. Failed fields keep their
// previous value; the other fields are still applied.
func (p Patch) Apply(a *Alarm) error {
	var errs []error
	if p.Hour != nil {
		errs = append(errs, a.SetHour(*p.Hour))
	}
	if p.Minute != nil {
		errs = append(errs, a.SetMinute(*p.Minute))
	}
	if p.Repeat != nil {
		errs = append(errs, a.SetRepeat(*p.Repeat))
	}
	if p.Enabled != nil {
		errs = append(errs, a.SetEnabled(*p.Enabled))
	}
	if p.Label != nil {
		errs = append(errs, a.SetLabel(*p.Label))
	}
	return errors.Join(errs...)
}

// Validate checks p against a throwaway alarm.
func (p Patch) Validate() error {
	var scratch Alarm
	return p.Apply(&scratch)
}
