package alarm

import (
	"testing"
	"time"
)

func TestWeekdayOf(t *testing.T) {
	t.Parallel()
	// 2024-01-01 is a Monday.
	base := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 7; i++ {
		got := WeekdayOf(base.AddDate(0, 0, i))
		if got != Weekday(i) {
			t.Fatalf("WeekdayOf(+%d) = %v, want %v", i, got, Weekday(i))
		}
		if got.Std() != base.AddDate(0, 0, i).Weekday() {
			t.Fatalf("Std(%v) = %v", got, got.Std())
		}
	}
}

func TestRepeatRotate(t *testing.T) {
	t.Parallel()
	r := Days(Monday, Sunday)
	if got := r.Rotate(1); got != Days(Monday, Tuesday) {
		t.Fatalf("Rotate(1) = %v", got)
	}
	if got := r.Rotate(-1); got != Days(Saturday, Sunday) {
		t.Fatalf("Rotate(-1) = %v", got)
	}
	if got := r.Rotate(7); got != r {
		t.Fatalf("Rotate(7) = %v", got)
	}
}

func TestParseRepeat(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in   string
		want Repeat
	}{
		{"mon,thu", Days(Monday, Thursday)},
		{"Monday, Sunday", Days(Monday, Sunday)},
		{"1001000", Days(Monday, Thursday)},
		{"weekdays", Weekdays},
		{"weekend", Weekend},
		{"daily", EveryDay},
		{"none", Repeat{}},
	}
	for _, tt := range tests {
		got, err := ParseRepeat(tt.in)
		if err != nil {
			t.Fatalf("ParseRepeat(%q) error: %v", tt.in, err)
		}
		if got != tt.want {
			t.Fatalf("ParseRepeat(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
	if _, err := ParseRepeat("mon,funday"); ErrorCode(err) != ErrInvalid {
		t.Fatalf("ParseRepeat(funday) code = %q", ErrorCode(err))
	}
}

func TestRepeatString(t *testing.T) {
	t.Parallel()
	if got, want := Weekend.String(), "--- --- --- --- --- Sat Sun "; got != want {
		t.Fatalf("String() = %q, want %q", got, want)
	}
}
