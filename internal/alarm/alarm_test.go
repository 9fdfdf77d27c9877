package alarm

import (
	"errors"
	"testing"
	"time"
)

func TestNewRejectsOutOfRange(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name         string
		hour, minute int
	}{
		{"hour too big", 24, 0},
		{"hour negative", -1, 0},
		{"minute too big", 0, 60},
		{"minute negative", 0, -5},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			a, err := New(tt.hour, tt.minute, EveryDay, true)
			if err == nil {
				t.Fatalf("New(%d, %d) error = nil, want invalid", tt.hour, tt.minute)
			}
			if a != nil {
				t.Fatalf("New(%d, %d) returned an alarm on error", tt.hour, tt.minute)
			}
			if code := ErrorCode(err); code != ErrInvalid {
				t.Fatalf("ErrorCode = %q, want %q", code, ErrInvalid)
			}
		})
	}
}

func TestSettersKeepPreviousValue(t *testing.T) {
	t.Parallel()
	a := MustNew(7, 10, Weekdays, true)

	if err := a.SetHour(25); err == nil {
		t.Fatal("SetHour(25) error = nil")
	}
	if a.Hour() != 7 {
		t.Fatalf("Hour = %d, want 7", a.Hour())
	}
	if err := a.SetMinute(99); err == nil {
		t.Fatal("SetMinute(99) error = nil")
	}
	if a.Minute() != 10 {
		t.Fatalf("Minute = %d, want 10", a.Minute())
	}
	if err := a.SetDay(Weekday(9), true); err == nil {
		t.Fatal("SetDay(9) error = nil")
	}
	if a.Repeat() != Weekdays {
		t.Fatalf("Repeat = %v, want %v", a.Repeat(), Weekdays)
	}
	if err := a.SetTimestamp(-1); err == nil {
		t.Fatal("SetTimestamp(-1) error = nil")
	}
	if err := a.SetLabel("two\nlines"); err == nil {
		t.Fatal("SetLabel with newline error = nil")
	}
}

func TestIsActive(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		repeat  Repeat
		enabled bool
		want    bool
	}{
		{"enabled with days", Days(Friday), true, true},
		{"disabled with days", Days(Friday), false, false},
		{"enabled without days", Repeat{}, true, false},
		{"disabled without days", Repeat{}, false, false},
	}
	for _, tt := range tests {
		if got := MustNew(8, 0, tt.repeat, tt.enabled).IsActive(); got != tt.want {
			t.Fatalf("%s: IsActive = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestAssignID(t *testing.T) {
	t.Parallel()
	a := MustNew(8, 0, EveryDay, true)
	if a.HasID() {
		t.Fatal("new alarm has an id")
	}
	if err := a.AssignID(4); err != nil {
		t.Fatalf("AssignID(4) error: %v", err)
	}
	if err := a.AssignID(4); err != nil {
		t.Fatalf("AssignID(4) again error: %v", err)
	}
	if err := a.AssignID(5); ErrorCode(err) != ErrIdentity {
		t.Fatalf("AssignID(5) code = %q, want %q", ErrorCode(err), ErrIdentity)
	}
	if a.ID() != 4 {
		t.Fatalf("ID = %d, want 4", a.ID())
	}
}

func TestString(t *testing.T) {
	t.Parallel()
	a := MustNew(9, 30, Days(Monday, Thursday, Sunday), true, WithID(10))
	want := "Alarm ID:  10 | Time: 09:30 | Enabled: Yes | Repeat: Mon --- --- Thu --- --- Sun "
	if got := a.String(); got != want {
		t.Fatalf("String() =\n%q\nwant\n%q", got, want)
	}
}

func TestCloneIsIndependent(t *testing.T) {
	t.Parallel()
	a := MustNew(9, 30, Days(Monday), true, WithID(1))
	c := a.Clone()
	_ = c.SetDay(Tuesday, true)
	_ = c.SetHour(10)
	if a.Repeat().Has(Tuesday) || a.Hour() != 9 {
		t.Fatalf("original mutated through clone: %v", a)
	}
	if a.SameSchedule(c) {
		t.Fatal("SameSchedule = true after edit")
	}
}

func TestMatches(t *testing.T) {
	t.Parallel()
	a := MustNew(6, 45, Days(Saturday), false)
	// 2024-01-06 is a Saturday.
	at := time.Date(2024, 1, 6, 6, 45, 30, 0, time.UTC)
	if !a.Matches(at) {
		t.Fatalf("Matches(%v) = false", at)
	}
	if a.Matches(at.Add(time.Minute)) {
		t.Fatal("Matches one minute later = true")
	}
	if a.Matches(at.AddDate(0, 0, 1)) {
		t.Fatal("Matches on Sunday = true")
	}
}

func TestPatchApplyPartialFailure(t *testing.T) {
	t.Parallel()
	a := MustNew(9, 30, Days(Monday), true)
	p := Patch{Hour: Ref(30), Minute: Ref(15), Enabled: Ref(false)}
	err := p.Apply(a)
	if err == nil {
		t.Fatal("Apply error = nil, want hour failure")
	}
	var ae *Error
	if !errors.As(err, &ae) || ae.Code != ErrInvalid {
		t.Fatalf("Apply error = %v, want invalid", err)
	}
	if a.Hour() != 9 || a.Minute() != 15 || a.Enabled() {
		t.Fatalf("after Apply: %v", a)
	}
	if got := len(p.Split()); got != 3 {
		t.Fatalf("len(Split) = %d, want 3", got)
	}
	if !p.TouchesSchedule() {
		t.Fatal("TouchesSchedule = false")
	}
	if (Patch{Label: Ref("x")}).TouchesSchedule() {
		t.Fatal("label-only patch touches schedule")
	}
}

func TestIsCodeThroughWrap(t *testing.T) {
	t.Parallel()
	inner := Errorf(ErrNotFound, "alarm 3")
	err := Wrap(ErrStorage, inner, "edit")
	if !IsCode(err, ErrStorage) || !IsCode(err, ErrNotFound) {
		t.Fatalf("IsCode failed for %v", err)
	}
	if IsCode(err, ErrTimeout) {
		t.Fatal("IsCode(timeout) = true")
	}
	if ErrorCode(errors.New("plain")) != ErrInternal {
		t.Fatal("plain error should map to internal")
	}
}
