package alarm

import (
	"strings"
	"testing"
	"time"
)

func TestCronSpec(t *testing.T) {
	t.Parallel()
	tests := []struct {
		a    *Alarm
		want string
	}{
		{MustNew(9, 30, Days(Monday, Thursday), true), "30 9 * * 1,4"},
		{MustNew(7, 5, Days(Saturday, Sunday), false), "5 7 * * 0,6"},
		{MustNew(0, 0, EveryDay, true), "0 0 * * 0,1,2,3,4,5,6"},
	}
	for _, tt := range tests {
		got, err := tt.a.CronSpec()
		if err != nil {
			t.Fatalf("CronSpec(%v) error: %v", tt.a, err)
		}
		if got != tt.want {
			t.Fatalf("CronSpec(%v) = %q, want %q", tt.a, got, tt.want)
		}
	}
	if _, err := MustNew(1, 1, Repeat{}, true).CronSpec(); err == nil {
		t.Fatal("CronSpec without days error = nil")
	}
}

func TestNextAtAgreesWithMinutesToAlert(t *testing.T) {
	t.Parallel()
	alarms := []*Alarm{
		MustNew(9, 30, Days(Monday, Thursday), true),
		MustNew(23, 59, Days(Sunday), true),
		MustNew(0, 0, Weekdays, true),
		MustNew(12, 15, Days(Wednesday), true),
	}
	// Monday 2024-01-01, stepping through a full week.
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for _, a := range alarms {
		for m := 0; m < MinutesPerWeek; m += 41 {
			ref := base.Add(time.Duration(m) * time.Minute)
			want, _ := a.MinutesToAlertAt(ref)
			next, ok := a.NextAt(ref)
			if !ok {
				t.Fatalf("NextAt(%v) ok = false", ref)
			}
			if got := int(next.Sub(ref) / time.Minute); got != want {
				t.Fatalf("%v at %v: NextAt gives %d minutes, MinutesToAlert %d", a, ref, got, want)
			}
		}
	}
}

func TestRRule(t *testing.T) {
	t.Parallel()
	a := MustNew(9, 30, Days(Monday, Thursday), true)
	from := time.Date(2024, 1, 2, 10, 0, 0, 0, time.UTC) // Tuesday
	r, err := a.RRule(from)
	if err != nil {
		t.Fatalf("RRule error: %v", err)
	}
	if s := r.String(); !strings.Contains(s, "FREQ=WEEKLY") || !strings.Contains(s, "BYDAY=MO,TH") {
		t.Fatalf("RRule = %q", s)
	}
	got := r.Between(from, from.AddDate(0, 0, 7), true)
	want := []time.Time{
		time.Date(2024, 1, 4, 9, 30, 0, 0, time.UTC),
		time.Date(2024, 1, 8, 9, 30, 0, 0, time.UTC),
	}
	if len(got) != len(want) {
		t.Fatalf("Between = %v, want %v", got, want)
	}
	for i := range want {
		if !got[i].Equal(want[i]) {
			t.Fatalf("occurrence %d = %v, want %v", i, got[i], want[i])
		}
	}
}
